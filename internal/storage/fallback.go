package storage

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Fallback wraps a primary Storage and degrades to process memory when the
// primary fails. Once degraded it stays degraded for the rest of the process.
type Fallback struct {
	primary  Storage
	memory   *MemoryStorage
	mu       sync.RWMutex
	degraded bool
}

// NewFallback creates a Fallback around primary. A nil primary starts degraded.
func NewFallback(primary Storage) *Fallback {
	return &Fallback{
		primary:  primary,
		memory:   NewMemoryStorage(),
		degraded: primary == nil,
	}
}

// Degraded reports whether the in-memory store is in use
func (f *Fallback) Degraded() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.degraded
}

func (f *Fallback) degrade(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.degraded {
		zap.L().Warn("storage: primary unavailable, using in-memory state", zap.String("op", op), zap.Error(err))
		f.degraded = true
	}
}

// Get reads from the primary, falling back to memory on failure
func (f *Fallback) Get(ctx context.Context, key string) ([]byte, error) {
	if !f.Degraded() {
		value, err := f.primary.Get(ctx, key)
		if err == nil || errors.Is(err, ErrNotFound) {
			return value, err
		}
		f.degrade("get", err)
	}
	return f.memory.Get(ctx, key)
}

// Put writes to the primary, falling back to memory on failure.
// Writes are mirrored to memory so a later degrade keeps the latest state.
func (f *Fallback) Put(ctx context.Context, key string, value []byte) error {
	_ = f.memory.Put(ctx, key, value)
	if f.Degraded() {
		return nil
	}
	if err := f.primary.Put(ctx, key, value); err != nil {
		f.degrade("put", err)
	}
	return nil
}

// Close closes the primary storage
func (f *Fallback) Close() error {
	if f.primary == nil {
		return nil
	}
	return f.primary.Close()
}
