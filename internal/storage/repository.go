package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/leadscout/hiring-feed-collector/internal/models"
)

// Repository provides typed access to durable state. Loads never fail: an
// absent key or an unreadable value yields the documented default.
type Repository struct {
	store           Storage
	defaultPrompt   string
	defaultProvider models.ProviderSelection
}

// NewRepository creates a new repository over store
func NewRepository(store Storage, defaultPrompt string, defaultProvider models.ProviderSelection) *Repository {
	return &Repository{
		store:           store,
		defaultPrompt:   defaultPrompt,
		defaultProvider: defaultProvider,
	}
}

// LoadLeads returns the persisted lead list, or an empty list
func (r *Repository) LoadLeads(ctx context.Context) []models.Lead {
	var leads []models.Lead
	if !r.loadJSON(ctx, KeyLeads, &leads) {
		return []models.Lead{}
	}
	if leads == nil {
		leads = []models.Lead{}
	}
	return leads
}

// SaveLeads persists the full lead list
func (r *Repository) SaveLeads(ctx context.Context, leads []models.Lead) error {
	if leads == nil {
		leads = []models.Lead{}
	}
	return r.saveJSON(ctx, KeyLeads, leads)
}

// LoadSettings returns the persisted settings merged over defaults
func (r *Repository) LoadSettings(ctx context.Context) models.Settings {
	settings := models.DefaultSettings()
	r.loadJSON(ctx, KeySettings, &settings)
	return settings.Normalize()
}

// SaveSettings persists normalized settings
func (r *Repository) SaveSettings(ctx context.Context, settings models.Settings) error {
	return r.saveJSON(ctx, KeySettings, settings.Normalize())
}

// LoadPromptTemplate returns the classification prompt template
func (r *Repository) LoadPromptTemplate(ctx context.Context) string {
	value, err := r.store.Get(ctx, KeyPromptTemplate)
	if err != nil || len(value) == 0 {
		r.logLoadError(KeyPromptTemplate, err)
		return r.defaultPrompt
	}
	return string(value)
}

// SavePromptTemplate persists the classification prompt template
func (r *Repository) SavePromptTemplate(ctx context.Context, template string) error {
	if err := r.store.Put(ctx, KeyPromptTemplate, []byte(template)); err != nil {
		return fmt.Errorf("failed to store %s: %w", KeyPromptTemplate, err)
	}
	return nil
}

// LoadProviderSelection returns the stored provider selection
func (r *Repository) LoadProviderSelection(ctx context.Context) models.ProviderSelection {
	selection := r.defaultProvider
	if !r.loadJSON(ctx, KeyProvider, &selection) {
		return r.defaultProvider
	}
	if selection.Kind == "" {
		selection.Kind = r.defaultProvider.Kind
	}
	if selection.Model == "" && selection.Kind == r.defaultProvider.Kind {
		selection.Model = r.defaultProvider.Model
	}
	return selection
}

// SaveProviderSelection persists the provider selection
func (r *Repository) SaveProviderSelection(ctx context.Context, selection models.ProviderSelection) error {
	return r.saveJSON(ctx, KeyProvider, selection)
}

func (r *Repository) loadJSON(ctx context.Context, key string, dest any) bool {
	value, err := r.store.Get(ctx, key)
	if err != nil {
		r.logLoadError(key, err)
		return false
	}
	if err := json.Unmarshal(value, dest); err != nil {
		zap.L().Warn("storage: ignoring unreadable value", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (r *Repository) saveJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}

func (r *Repository) logLoadError(key string, err error) {
	if err != nil && !errors.Is(err, ErrNotFound) {
		zap.L().Warn("storage: load failed, using default", zap.String("key", key), zap.Error(err))
	}
}
