package portfolio

import (
	"context"
	"regexp"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/storage"
)

var settingKey = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)

// SettingsService manages key/value application settings.
type SettingsService struct {
	store storage.Store
}

// NewSettingsService creates a SettingsService.
func NewSettingsService(store storage.Store) *SettingsService {
	return &SettingsService{store: store}
}

// List returns every setting ordered by key.
func (s *SettingsService) List(ctx context.Context) ([]models.Setting, error) {
	settings, err := s.store.ListSettings(ctx)
	return settings, fromStore(err)
}

// Get returns one setting, or ErrNotFound.
func (s *SettingsService) Get(ctx context.Context, key string) (*models.Setting, error) {
	setting, err := s.store.GetSetting(ctx, key)
	return setting, fromStore(err)
}

// Put creates or replaces a setting. Keys are lower-case and at most 64
// characters of letters, digits, '_', '.' and '-'.
func (s *SettingsService) Put(ctx context.Context, key, value string) (*models.Setting, error) {
	if !settingKey.MatchString(key) {
		return nil, invalid("key", "%q is not a valid setting key", key)
	}
	setting := &models.Setting{Key: key, Value: value}
	if err := s.store.PutSetting(ctx, setting); err != nil {
		return nil, fromStore(err)
	}
	return setting, nil
}
