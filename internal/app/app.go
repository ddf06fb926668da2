package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/exeteres/wg-relay/internal/cache"
	"github.com/exeteres/wg-relay/internal/config"
	"github.com/exeteres/wg-relay/internal/execx"
	"github.com/exeteres/wg-relay/internal/executor"
	"github.com/exeteres/wg-relay/internal/history"
	"github.com/exeteres/wg-relay/internal/model"
	"github.com/exeteres/wg-relay/internal/store"
	"github.com/exeteres/wg-relay/internal/switcher"
)

// Hooks carries the presentation callbacks of the binary being built.
type Hooks struct {
	Confirmer     switcher.Confirmer
	OnFetchStart  func()
	OnFetchEnd    func()
	Notify        func(err error)
	OnStateChange func(runID string, s switcher.State)
	OnVerified    func(runID string, st model.ConnectionStatus)
}

type App struct {
	Store    store.ConfigStore
	Executor *executor.Executor
	Resolver *cache.Resolver
	Workflow *switcher.Workflow
	// History is nil when HISTORY_PATH is unset.
	History *history.Store

	closers []func() error
}

func New(cfg config.Config, hooks Hooks, logger *log.Logger) (*App, error) {
	st, closeStore, err := OpenStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &App{Store: st, closers: []func() error{closeStore}}

	a.Executor = executor.New(execx.Runner{}, cfg.Commands, cfg.CommandTimeout, logger)
	a.Resolver = cache.New(cache.Options{
		Store:        st,
		Fetcher:      a.Executor,
		Logger:       logger,
		OnFetchStart: hooks.OnFetchStart,
		OnFetchEnd:   hooks.OnFetchEnd,
		Notify:       hooks.Notify,
	})

	opts := switcher.Options{
		Store:         st,
		Executor:      a.Executor,
		Confirmer:     hooks.Confirmer,
		Logger:        logger,
		OnStateChange: hooks.OnStateChange,
		OnVerified:    hooks.OnVerified,
	}
	if cfg.HistoryPath != "" {
		h, err := history.Open(cfg.HistoryPath)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.History = h
		a.closers = append(a.closers, h.Close)
		opts.History = h
	}
	a.Workflow = switcher.New(opts)
	return a, nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Serve runs an HTTP server on port until ctx ends.
func Serve(ctx context.Context, port int, h http.Handler, logger *log.Logger) error {
	addr := ":" + strconv.Itoa(port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	defer ln.Close()

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.Printf("listening on %s", ln.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == nil || err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
