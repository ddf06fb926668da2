package switcher

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/exeteres/wg-relay/internal/store"
)

// Settings are the cache options saved with every switch.
type Settings struct {
	CacheEnabled bool
	TTLSeconds   int64
}

func (s Settings) Validate() error {
	if s.TTLSeconds <= 0 {
		return fmt.Errorf("cache ttl must be a positive number of seconds, got %d", s.TTLSeconds)
	}
	return nil
}

// ParseTTL parses a TTL entered by an operator. Unlike the stored value, an
// invalid entry is an error rather than "always stale".
func ParseTTL(raw string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("cache ttl must be a positive number of seconds, got %q", raw)
	}
	return v, nil
}

// LoadSettings reads the current cache settings.
func LoadSettings(ctx context.Context, s store.ConfigStore) (Settings, error) {
	state, err := store.ReadCacheState(ctx, s)
	if err != nil {
		return Settings{}, err
	}
	ttl := state.TTLSeconds
	if ttl <= 0 {
		ttl = store.DefaultCacheTTLSeconds
	}
	return Settings{CacheEnabled: state.Enabled, TTLSeconds: ttl}, nil
}

// SaveSettings writes and durably saves the cache settings without switching.
func SaveSettings(ctx context.Context, s store.ConfigStore, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := s.Set(ctx, store.SectionConfig, store.KeyCacheEnabled, store.FormatBool(settings.CacheEnabled)); err != nil {
		return fmt.Errorf("set %s: %w", store.KeyCacheEnabled, err)
	}
	if err := s.Set(ctx, store.SectionConfig, store.KeyCacheTTL, strconv.FormatInt(settings.TTLSeconds, 10)); err != nil {
		return fmt.Errorf("set %s: %w", store.KeyCacheTTL, err)
	}
	if err := s.Save(ctx); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
