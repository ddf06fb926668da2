package store

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// ConfigStore is a sectioned string key/value store. Set stages a change that
// Get observes immediately; Save makes staged changes durable.
type ConfigStore interface {
	Get(ctx context.Context, section, key string) (string, bool, error)
	Set(ctx context.Context, section, key, value string) error
	Save(ctx context.Context) error
}

const (
	SectionConfig  = "config"
	SectionServers = "servers"

	KeyCacheEnabled       = "cache_enabled"
	KeyCacheTTL           = "cache_ttl"
	KeyLastFetch          = "last_fetch"
	KeyWireGuardInterface = "wireguard_interface"
	KeyServersData        = "data"

	DefaultCacheTTLSeconds    = 86400
	DefaultWireGuardInterface = "MullvadWG"
)

// CacheState is derived from the store on every resolution and never kept
// across calls. TTLSeconds <= 0 means every tier is stale.
type CacheState struct {
	Enabled    bool
	LastFetch  int64
	TTLSeconds int64
}

// Fresh reports whether the store-held blob may be trusted at now.
func (c CacheState) Fresh(now time.Time) bool {
	if !c.Enabled || c.LastFetch <= 0 || c.TTLSeconds <= 0 {
		return false
	}
	return now.Unix()-c.LastFetch < c.TTLSeconds
}

// FreshSince reports whether data written at modTime is still within the TTL.
func (c CacheState) FreshSince(modTime, now time.Time) bool {
	if c.TTLSeconds <= 0 {
		return false
	}
	return now.Unix()-modTime.Unix() < c.TTLSeconds
}

func ReadCacheState(ctx context.Context, s ConfigStore) (CacheState, error) {
	enabled, _, err := s.Get(ctx, SectionConfig, KeyCacheEnabled)
	if err != nil {
		return CacheState{}, err
	}
	lastFetch, _, err := s.Get(ctx, SectionConfig, KeyLastFetch)
	if err != nil {
		return CacheState{}, err
	}
	ttl, _, err := s.Get(ctx, SectionConfig, KeyCacheTTL)
	if err != nil {
		return CacheState{}, err
	}
	return CacheState{
		Enabled:    strings.TrimSpace(enabled) == "1",
		LastFetch:  parseEpoch(lastFetch),
		TTLSeconds: ParseTTL(ttl),
	}, nil
}

// ParseTTL returns the default TTL for an unset value and 0 (always stale)
// for anything that is not a positive integer.
func ParseTTL(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultCacheTTLSeconds
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

func parseEpoch(raw string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// WireGuardInterface returns the tunnel interface to reload after a switch.
func WireGuardInterface(ctx context.Context, s ConfigStore) (string, error) {
	v, _, err := s.Get(ctx, SectionConfig, KeyWireGuardInterface)
	if err != nil {
		return "", err
	}
	if v = strings.TrimSpace(v); v == "" {
		return DefaultWireGuardInterface, nil
	}
	return v, nil
}

func FormatBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// Change is a settings write observed by a Watcher.
type Change struct {
	Section string
	Key     string
	Value   string
	Deleted bool
}

// Watcher is implemented by stores shared between gateways that can report
// writes made by others.
type Watcher interface {
	Watch(ctx context.Context, fn func(Change)) error
}

// AsWatcher finds a Watcher in s or the stores it wraps.
func AsWatcher(s ConfigStore) (Watcher, bool) {
	for s != nil {
		if w, ok := s.(Watcher); ok {
			return w, true
		}
		u, ok := s.(interface{ Unwrap() ConfigStore })
		if !ok {
			return nil, false
		}
		s = u.Unwrap()
	}
	return nil, false
}
