package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/leadscout/hiring-feed-collector/internal/config"
)

// ErrNotFound is returned by Get when a key has never been written
var ErrNotFound = errors.New("storage: key not found")

// Keys used for durable state
const (
	KeyLeads          = "leads"
	KeySettings       = "settings"
	KeyPromptTemplate = "prompt_template"
	KeyProvider       = "provider"
)

// Storage interface defines the contract for durable key/value state
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStorage(), nil
	case "sqlite":
		return NewSQLiteStorage(ctx, cfg)
	case "dynamodb":
		return NewDynamoDBStorage(cfg)
	case "mongodb":
		return NewMongoDBStorage(ctx, cfg)
	case "postgresql":
		return NewPostgreSQLStorage(ctx, cfg)
	case "redis":
		return NewRedisStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
