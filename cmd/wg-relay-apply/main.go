package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/exeteres/wg-relay/internal/app"
	"github.com/exeteres/wg-relay/internal/config"
	"github.com/exeteres/wg-relay/internal/model"
	"github.com/exeteres/wg-relay/internal/relaylist"
	"github.com/exeteres/wg-relay/internal/switcher"
)

func main() {
	_ = godotenv.Load()
	logger := log.New(os.Stderr, "wg-relay-apply ", log.LstdFlags|log.LUTC)

	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(os.Args[1:]); err != nil || fs.NArg() != 1 {
		logger.Fatalf("usage: %s [--yes] <hostname|selection-json>", os.Args[0])
	}
	target := strings.TrimSpace(fs.Arg(0))

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	confirm := switcher.Confirmer(switcher.AutoConfirm)
	if !*yes {
		confirm = promptConfirmer(os.Stdin, os.Stdout)
	}
	err = run(ctx, cfg, target, confirm, os.Stdout, logger)
	stop()
	if err != nil {
		logger.Fatalf("%v", err)
	}
}

// run returns instead of exiting so the app is always closed.
func run(ctx context.Context, cfg config.Config, target string, confirm switcher.Confirmer, stdout io.Writer, logger *log.Logger) error {
	a, err := app.New(cfg, app.Hooks{
		Confirmer:     confirm,
		OnFetchStart:  func() { fmt.Fprintln(os.Stderr, "Downloading latest server list...") },
		Notify:        func(err error) { fmt.Fprintf(os.Stderr, "Failed to fetch server list: %v\n", err) },
		OnStateChange: func(_ string, s switcher.State) { fmt.Fprintf(os.Stderr, "... %s\n", s) },
	}, logger)
	if err != nil {
		return fmt.Errorf("setup error: %w", err)
	}
	defer a.Close()

	req, err := resolveTarget(ctx, a, target)
	if err != nil {
		return fmt.Errorf("selection error: %w", err)
	}
	settings, err := switcher.LoadSettings(ctx, a.Store)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	res, err := a.Workflow.Run(ctx, req, settings)
	if err != nil {
		if se, ok := switcher.AsStageError(err); ok {
			return fmt.Errorf("apply server: %s", se.Detail())
		}
		return fmt.Errorf("switch error: %w", err)
	}
	if res.Cancelled {
		_, _ = fmt.Fprintln(stdout, "Cancelled.")
		return nil
	}

	_, _ = fmt.Fprintf(stdout, "Server changed to %s. Verifying connection...\n", req.Hostname)
	select {
	case <-ctx.Done():
	case st := <-res.Verified:
		printStatus(stdout, st.Display())
	}
	return nil
}

func resolveTarget(ctx context.Context, a *app.App, target string) (model.SwitchRequest, error) {
	if strings.HasPrefix(target, "{") {
		return switcher.ParseSelection(target)
	}
	if target == "" {
		return model.SwitchRequest{}, switcher.ErrNoSelection
	}
	rec, ok := relaylist.Find(relaylist.Parse(a.Resolver.Resolve(ctx)), target)
	if !ok {
		return model.SwitchRequest{}, fmt.Errorf("unknown server %q", target)
	}
	return model.NewSwitchRequest(rec), nil
}

func promptConfirmer(in io.Reader, out io.Writer) switcher.Confirmer {
	r := bufio.NewReader(in)
	return switcher.ConfirmFunc(func(_ context.Context, req model.SwitchRequest) (bool, error) {
		_, _ = fmt.Fprintf(out, "Switch to %s (%s:%d)? This will briefly interrupt the VPN connection. [y/N] ", req.Hostname, req.IPv4, req.Port)
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	})
}

func printStatus(w io.Writer, st model.ConnectionStatus) {
	conn := "Disconnected"
	if st.Connected {
		conn = "Connected"
	}
	_, _ = fmt.Fprintf(w, "Connection:       %s\n", conn)
	_, _ = fmt.Fprintf(w, "Current Server:   %s\n", st.CurrentServer)
	_, _ = fmt.Fprintf(w, "Endpoint:         %s\n", st.Endpoint)
	_, _ = fmt.Fprintf(w, "Latest Handshake: %s\n", st.LatestHandshake)
	_, _ = fmt.Fprintf(w, "Transfer (RX/TX): %s / %s\n", st.TransferRx, st.TransferTx)
	if st.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:            %s\n", st.Error)
	}
}
