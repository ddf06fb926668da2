package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/exeteres/wg-relay/internal/app"
	"github.com/exeteres/wg-relay/internal/config"
	"github.com/exeteres/wg-relay/internal/model"
	"github.com/exeteres/wg-relay/internal/relaylist"
	"github.com/exeteres/wg-relay/internal/switcher"
)

type listed struct {
	model.ServerRecord
	Label     string `json:"label"`
	Selection string `json:"selection"`
}

func main() {
	_ = godotenv.Load()
	logger := log.New(os.Stderr, "wg-relay-list ", log.LstdFlags|log.LUTC)

	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	refresh := fs.Bool("refresh", false, "fetch a fresh server list instead of using the cache")
	asJSON := fs.Bool("json", false, "print servers as JSON")
	if err := fs.Parse(os.Args[1:]); err != nil || fs.NArg() != 0 {
		logger.Fatalf("usage: %s [--refresh] [--json]", os.Args[0])
	}

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, options{refresh: *refresh, asJSON: *asJSON}, os.Stdout, logger)
	stop()
	if err != nil {
		logger.Fatalf("%v", err)
	}
}

type options struct {
	refresh bool
	asJSON  bool
}

// run returns instead of exiting so the app is always closed.
func run(ctx context.Context, cfg config.Config, opts options, stdout io.Writer, logger *log.Logger) error {
	a, err := app.New(cfg, app.Hooks{
		OnFetchStart: func() { fmt.Fprintln(os.Stderr, "Downloading latest server list...") },
		Notify:       func(err error) { fmt.Fprintf(os.Stderr, "Failed to fetch server list: %v\n", err) },
	}, logger)
	if err != nil {
		return fmt.Errorf("setup error: %w", err)
	}
	defer a.Close()

	var l model.RelayList
	if opts.refresh {
		l, err = a.Resolver.Refresh(ctx)
		if err != nil {
			return fmt.Errorf("refresh error: %w", err)
		}
	} else {
		l = a.Resolver.Resolve(ctx)
	}

	records := relaylist.Parse(l)
	out := make([]listed, 0, len(records))
	for _, r := range records {
		sel, err := switcher.EncodeSelection(model.NewSwitchRequest(r))
		if err != nil {
			return fmt.Errorf("encode selection: %w", err)
		}
		out = append(out, listed{ServerRecord: r, Label: r.Label(), Selection: sel})
	}

	if opts.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "HOSTNAME\tLOCATION\tIPV4\tLABEL")
	for _, s := range out {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Hostname, s.CityCode, s.IPv4, s.Label)
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(stdout, "%d servers\n", len(out))
	return nil
}
