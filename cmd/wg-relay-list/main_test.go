package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/exeteres/wg-relay/internal/config"
	"github.com/exeteres/wg-relay/internal/executor"
)

func failingFetchConfig(t *testing.T, addr string) config.Config {
	t.Helper()
	dir := t.TempDir()
	fetch := filepath.Join(dir, "fetch.sh")
	if err := os.WriteFile(fetch, []byte("#!/bin/sh\necho unreachable >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write fetch.sh: %v", err)
	}
	cmds := executor.DefaultCommands()
	cmds.Fetch = fetch
	cmds.ServersFile = filepath.Join(dir, "servers.json")
	return config.Config{
		StoreBackend:   config.StoreRedis,
		RedisAddr:      addr,
		StorePrefix:    "test",
		Commands:       cmds,
		CommandTimeout: 5 * time.Second,
	}
}

func waitNoConnections(t *testing.T, mr *miniredis.Miniredis) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for mr.CurrentConnectionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("store connections still open: %d", mr.CurrentConnectionCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRun_RefreshErrorClosesStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := failingFetchConfig(t, mr.Addr())

	var out bytes.Buffer
	err := run(context.Background(), cfg, options{refresh: true}, &out, nil)
	if err == nil || !strings.Contains(err.Error(), "refresh error") {
		t.Fatalf("expected refresh error, got %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output %q", out.String())
	}
	waitNoConnections(t, mr)
}

func TestRun_EmptyListAfterFailedFetch(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := failingFetchConfig(t, mr.Addr())

	var out bytes.Buffer
	if err := run(context.Background(), cfg, options{}, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasSuffix(out.String(), "0 servers\n") {
		t.Fatalf("unexpected output %q", out.String())
	}
	waitNoConnections(t, mr)
}
