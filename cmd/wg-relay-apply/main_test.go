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
	"github.com/exeteres/wg-relay/internal/model"
	"github.com/exeteres/wg-relay/internal/switcher"
)

func TestRun_UnknownServerClosesStore(t *testing.T) {
	mr := miniredis.RunT(t)

	dir := t.TempDir()
	fetch := filepath.Join(dir, "fetch.sh")
	if err := os.WriteFile(fetch, []byte("#!/bin/sh\nexit 1\n"), 0o755); err != nil {
		t.Fatalf("write fetch.sh: %v", err)
	}
	cmds := executor.DefaultCommands()
	cmds.Fetch = fetch
	cmds.ServersFile = filepath.Join(dir, "servers.json")
	cfg := config.Config{
		StoreBackend:   config.StoreRedis,
		RedisAddr:      mr.Addr(),
		StorePrefix:    "test",
		Commands:       cmds,
		CommandTimeout: 5 * time.Second,
		HistoryPath:    filepath.Join(dir, "history.db"),
	}

	var out bytes.Buffer
	err := run(context.Background(), cfg, "se-sto-wg-001", switcher.AutoConfirm, &out, nil)
	if err == nil || !strings.Contains(err.Error(), `unknown server "se-sto-wg-001"`) {
		t.Fatalf("expected unknown server error, got %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mr.CurrentConnectionCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("store connections still open: %d", mr.CurrentConnectionCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPromptConfirmer(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "": false} {
		var out bytes.Buffer
		ok, err := promptConfirmer(strings.NewReader(in), &out).Confirm(context.Background(), model.SwitchRequest{Hostname: "se-sto-wg-001", IPv4: "185.213.154.68", Port: 51820})
		if err != nil || ok != want {
			t.Fatalf("input %q: ok=%v err=%v", in, ok, err)
		}
		if !strings.Contains(out.String(), "Switch to se-sto-wg-001") {
			t.Fatalf("unexpected prompt %q", out.String())
		}
	}
}
