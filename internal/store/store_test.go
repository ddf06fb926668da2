package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"filippo.io/age"
)

type memStore struct {
	values map[string]string
	getErr error
	saves  int
}

func newMemStore() *memStore {
	return &memStore{values: map[string]string{}}
}

func (m *memStore) Get(_ context.Context, section, key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[section+"."+key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, section, key, value string) error {
	m.values[section+"."+key] = value
	return nil
}

func (m *memStore) Save(_ context.Context) error {
	m.saves++
	return nil
}

func TestParseTTL(t *testing.T) {
	t.Parallel()

	cases := map[string]int64{
		"":       DefaultCacheTTLSeconds,
		"  ":     DefaultCacheTTLSeconds,
		"3600":   3600,
		" 60 ":   60,
		"0":      0,
		"-5":     0,
		"abc":    0,
		"1.5":    0,
		"86400s": 0,
	}
	for in, want := range cases {
		if got := ParseTTL(in); got != want {
			t.Fatalf("ParseTTL(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestReadCacheState(t *testing.T) {
	t.Parallel()

	s := newMemStore()
	s.values["config.cache_enabled"] = "1"
	s.values["config.last_fetch"] = "1700000000"
	s.values["config.cache_ttl"] = "600"

	st, err := ReadCacheState(context.Background(), s)
	if err != nil {
		t.Fatalf("ReadCacheState: %v", err)
	}
	if !st.Enabled || st.LastFetch != 1700000000 || st.TTLSeconds != 600 {
		t.Fatalf("unexpected state: %#v", st)
	}

	empty, err := ReadCacheState(context.Background(), newMemStore())
	if err != nil {
		t.Fatalf("ReadCacheState: %v", err)
	}
	if empty.Enabled || empty.LastFetch != 0 || empty.TTLSeconds != DefaultCacheTTLSeconds {
		t.Fatalf("unexpected defaults: %#v", empty)
	}

	broken := newMemStore()
	broken.getErr = errors.New("boom")
	if _, err := ReadCacheState(context.Background(), broken); err == nil {
		t.Fatalf("expected error")
	}
}

func TestCacheStateFresh(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	for _, tc := range []struct {
		name string
		st   CacheState
		want bool
	}{
		{"fresh", CacheState{Enabled: true, LastFetch: now.Unix() - 10, TTLSeconds: 86400}, true},
		{"age equals ttl", CacheState{Enabled: true, LastFetch: now.Unix() - 60, TTLSeconds: 60}, false},
		{"age just below ttl", CacheState{Enabled: true, LastFetch: now.Unix() - 59, TTLSeconds: 60}, true},
		{"disabled", CacheState{Enabled: false, LastFetch: now.Unix() - 10, TTLSeconds: 86400}, false},
		{"never fetched", CacheState{Enabled: true, TTLSeconds: 86400}, false},
		{"zero ttl", CacheState{Enabled: true, LastFetch: now.Unix(), TTLSeconds: 0}, false},
		{"negative ttl", CacheState{Enabled: true, LastFetch: now.Unix(), TTLSeconds: -1}, false},
	} {
		if got := tc.st.Fresh(now); got != tc.want {
			t.Fatalf("%s: Fresh = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCacheStateFreshSince_IgnoresEnabledFlag(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	st := CacheState{Enabled: false, TTLSeconds: 100}
	if !st.FreshSince(now.Add(-99*time.Second), now) {
		t.Fatalf("expected fresh file")
	}
	if st.FreshSince(now.Add(-100*time.Second), now) {
		t.Fatalf("expected stale file")
	}
	st.TTLSeconds = 0
	if st.FreshSince(now, now) {
		t.Fatalf("zero ttl must always be stale")
	}
}

func TestWireGuardInterface(t *testing.T) {
	t.Parallel()

	s := newMemStore()
	got, err := WireGuardInterface(context.Background(), s)
	if err != nil || got != DefaultWireGuardInterface {
		t.Fatalf("unexpected default: %q err=%v", got, err)
	}
	s.values["config.wireguard_interface"] = " wg1 "
	got, err = WireGuardInterface(context.Background(), s)
	if err != nil || got != "wg1" {
		t.Fatalf("unexpected interface: %q err=%v", got, err)
	}
}

type watchingStore struct{ *memStore }

func (watchingStore) Watch(context.Context, func(Change)) error { return nil }

func TestAsWatcher(t *testing.T) {
	t.Parallel()

	if _, ok := AsWatcher(newMemStore()); ok {
		t.Fatalf("plain store must not be a watcher")
	}
	w := watchingStore{newMemStore()}
	if _, ok := AsWatcher(w); !ok {
		t.Fatalf("expected watcher")
	}
	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity: %v", err)
	}
	if _, ok := AsWatcher(NewSealed(w, id)); !ok {
		t.Fatalf("expected watcher through sealed wrapper")
	}
}
