package inifile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpen_MissingFile_IsEmpty(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "missing.ini"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok, err := s.Get(context.Background(), "config", "cache_ttl"); ok || err != nil {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
}

func TestSetGetSave_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "etc", "relay.ini")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	blob := `{"locations":{"se-sto":{"country":"Sweden","city":"Stockholm #1; main"}},"wireguard":{"relays":[]}}`
	if err := s.Set(ctx, "config", "cache_ttl", "3600"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "servers", "data", blob); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Staged values are visible before Save.
	if v, ok, _ := s.Get(ctx, "config", "cache_ttl"); !ok || v != "3600" {
		t.Fatalf("unexpected staged value %q ok=%v", v, ok)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no file before Save, err=%v", err)
	}

	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600; got %v", st.Mode().Perm())
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, ok, _ := reopened.Get(ctx, "servers", "data"); !ok || v != blob {
		t.Fatalf("blob mismatch after reload:\n got %q\nwant %q", v, blob)
	}
	if v, ok, _ := reopened.Get(ctx, "config", "cache_ttl"); !ok || v != "3600" {
		t.Fatalf("unexpected ttl after reload: %q", v)
	}
}

func TestSave_MultilineValue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "relay.ini")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	armored := "-----BEGIN AGE ENCRYPTED FILE-----\nYWdlLWVuY3J5cHRpb24ub3JnL3YxCi0+\n-----END AGE ENCRYPTED FILE-----"
	if err := s.Set(ctx, "servers", "data", armored); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, ok, _ := reopened.Get(ctx, "servers", "data")
	if !ok || strings.TrimSpace(v) != armored {
		t.Fatalf("multiline mismatch: %q", v)
	}
}

func TestSet_RequiresSectionAndKey(t *testing.T) {
	t.Parallel()

	s, err := Open(filepath.Join(t.TempDir(), "relay.ini"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set(context.Background(), " ", "k", "v"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestOpen_EmptyPath_Errors(t *testing.T) {
	t.Parallel()

	if _, err := Open(" "); err == nil {
		t.Fatalf("expected error")
	}
}
