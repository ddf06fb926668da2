package switcher

import (
	"context"
	"testing"
)

func TestSaveSettings(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	if err := SaveSettings(context.Background(), st, Settings{CacheEnabled: false, TTLSeconds: 600}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	if st.saved["config.cache_enabled"] != "0" || st.saved["config.cache_ttl"] != "600" {
		t.Fatalf("unexpected saved values: %#v", st.saved)
	}

	got, err := LoadSettings(context.Background(), st)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got.CacheEnabled || got.TTLSeconds != 600 {
		t.Fatalf("unexpected settings: %#v", got)
	}
}

func TestSaveSettings_RejectsInvalidTTL(t *testing.T) {
	t.Parallel()

	st := newMemStore()
	if err := SaveSettings(context.Background(), st, Settings{TTLSeconds: -1}); err == nil {
		t.Fatalf("expected error")
	}
	if len(st.values) != 0 {
		t.Fatalf("expected nothing written: %#v", st.values)
	}
}

func TestParseTTL(t *testing.T) {
	t.Parallel()

	if v, err := ParseTTL(" 3600 "); err != nil || v != 3600 {
		t.Fatalf("unexpected result: %d %v", v, err)
	}
	for _, raw := range []string{"", "0", "-1", "1h"} {
		if _, err := ParseTTL(raw); err == nil {
			t.Fatalf("ParseTTL(%q): expected error", raw)
		}
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	t.Parallel()

	got, err := LoadSettings(context.Background(), newMemStore())
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got.CacheEnabled || got.TTLSeconds != 86400 {
		t.Fatalf("unexpected defaults: %#v", got)
	}
}
