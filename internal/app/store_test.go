package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
	"github.com/alicebob/miniredis/v2"

	"github.com/exeteres/wg-relay/internal/config"
	"github.com/exeteres/wg-relay/internal/executor"
	"github.com/exeteres/wg-relay/internal/store"
)

func TestOpenStore_INIWithSealing(t *testing.T) {
	t.Parallel()

	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity: %v", err)
	}
	cfg := config.Config{
		StoreBackend: config.StoreINI,
		StorePath:    filepath.Join(t.TempDir(), "relay.ini"),
		AgeIdentity:  id.String(),
	}

	ctx := context.Background()
	st, closeFn, err := OpenStore(cfg, nil)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer closeFn()
	if err := st.Set(ctx, store.SectionServers, store.KeyServersData, `{"wireguard":{}}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := st.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, _, err := OpenStore(config.Config{StoreBackend: config.StoreINI, StorePath: cfg.StorePath}, nil)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	v, ok, err := raw.Get(ctx, store.SectionServers, store.KeyServersData)
	if err != nil || !ok || !strings.Contains(v, "AGE ENCRYPTED FILE") {
		t.Fatalf("expected sealed value on disk, got %q ok=%v err=%v", v, ok, err)
	}

	reopened, _, err := OpenStore(cfg, nil)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	v, _, err = reopened.Get(ctx, store.SectionServers, store.KeyServersData)
	if err != nil || v != `{"wireguard":{}}` {
		t.Fatalf("unexpected unsealed value %q err=%v", v, err)
	}
}

func TestOpenStore_Redis(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	st, closeFn, err := OpenStore(config.Config{StoreBackend: config.StoreRedis, RedisAddr: mr.Addr(), StorePrefix: "gw"}, nil)
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer closeFn()

	ctx := context.Background()
	if err := st.Set(ctx, store.SectionConfig, store.KeyCacheTTL, "60"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := st.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := mr.HGet("gw:config", "cache_ttl"); got != "60" {
		t.Fatalf("unexpected redis value %q", got)
	}
}

func TestOpenStore_Errors(t *testing.T) {
	t.Parallel()

	if _, _, err := OpenStore(config.Config{StoreBackend: "nope"}, nil); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
	cfg := config.Config{
		StoreBackend: config.StoreINI,
		StorePath:    filepath.Join(t.TempDir(), "relay.ini"),
		AgeIdentity:  "not-an-identity",
	}
	if _, _, err := OpenStore(cfg, nil); err == nil {
		t.Fatalf("expected error for bad identity")
	}
}

func TestNew_WiresHistory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.Config{
		StoreBackend: config.StoreINI,
		StorePath:    filepath.Join(dir, "relay.ini"),
		Commands:     executor.DefaultCommands(),
		HistoryPath:  filepath.Join(dir, "history.db"),
	}
	a, err := New(cfg, Hooks{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if a.History == nil || a.Workflow == nil || a.Resolver == nil {
		t.Fatalf("expected wired components: %#v", a)
	}
	if a.Executor.ServersFile() != "/tmp/mullvad_servers.json" {
		t.Fatalf("unexpected servers file %q", a.Executor.ServersFile())
	}
}
