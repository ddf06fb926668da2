package daemon

import (
	"context"
	"log"
	"sync"

	"github.com/exeteres/wg-relay/internal/app"
	"github.com/exeteres/wg-relay/internal/config"
	"github.com/exeteres/wg-relay/internal/httpapi"
	"github.com/exeteres/wg-relay/internal/model"
	"github.com/exeteres/wg-relay/internal/status"
	"github.com/exeteres/wg-relay/internal/store"
	"github.com/exeteres/wg-relay/internal/switcher"
)

// Run polls the connection status and, when a port is configured, serves the
// HTTP API until ctx ends.
func Run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	d := &daemon{logger: logger}

	a, err := app.New(cfg, app.Hooks{
		OnFetchStart:  func() { logger.Printf("fetching server list") },
		OnFetchEnd:    func() { logger.Printf("server list fetch finished") },
		Notify:        func(err error) { logger.Printf("failed to fetch server list err=%v", err) },
		OnStateChange: d.onSwitchState,
		OnVerified:    d.onVerified,
	}, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	p := status.New(a.Executor, logger)
	d.poller = p

	var api *httpapi.Handler
	if cfg.ServerPort != 0 {
		api = httpapi.NewHandler(httpapi.Deps{
			Resolver: a.Resolver,
			Status:   p,
			Switcher: a.Workflow,
			Store:    a.Store,
			History:  historyReader(a),
			Logger:   logger,
		})
		d.api = api
	}

	h := p.Start(ctx, cfg.PollInterval, d.onStatus)
	defer p.Stop(h)

	if w, ok := store.AsWatcher(a.Store); ok {
		go func() {
			if err := w.Watch(ctx, d.onSettingChange); err != nil && ctx.Err() == nil {
				logger.Printf("settings watch stopped err=%v", err)
			}
		}()
	}

	if api == nil {
		<-ctx.Done()
		return nil
	}
	return app.Serve(ctx, cfg.ServerPort, api, logger)
}

func historyReader(a *app.App) httpapi.HistoryReader {
	if a.History == nil {
		return nil
	}
	return a.History
}

type publisher interface {
	Publish(st model.ConnectionStatus)
}

type refresher interface {
	Refresh(ctx context.Context) model.ConnectionStatus
}

type daemon struct {
	logger *log.Logger
	poller refresher
	api    publisher

	mu   sync.Mutex
	last *model.ConnectionStatus
}

// onStatus logs connection changes and forwards every status to the API.
func (d *daemon) onStatus(st model.ConnectionStatus) {
	d.mu.Lock()
	prev := d.last
	d.last = &st
	d.mu.Unlock()

	switch {
	case prev == nil:
		d.logger.Printf("status connected=%v server=%q endpoint=%q", st.Connected, st.CurrentServer, st.Endpoint)
	case prev.Connected != st.Connected || prev.CurrentServer != st.CurrentServer:
		d.logger.Printf("status changed connected=%v server=%q endpoint=%q", st.Connected, st.CurrentServer, st.Endpoint)
	case prev.Error != st.Error && st.Error != "":
		d.logger.Printf("status error err=%q", st.Error)
	}

	if d.api != nil {
		d.api.Publish(st)
	}
}

// onSettingChange logs writes to the shared store, including those made by
// other gateways. The cached blob is reported by size only.
func (d *daemon) onSettingChange(c store.Change) {
	switch {
	case c.Deleted:
		d.logger.Printf("setting removed section=%q key=%q", c.Section, c.Key)
	case c.Section == store.SectionServers && c.Key == store.KeyServersData:
		d.logger.Printf("cached server list updated bytes=%d", len(c.Value))
	default:
		d.logger.Printf("setting changed section=%q key=%q value=%q", c.Section, c.Key, c.Value)
	}
}

func (d *daemon) onSwitchState(runID string, s switcher.State) {
	d.logger.Printf("switch state id=%q state=%q", runID, s)
}

// onVerified refreshes the poller so subscribers see the switched tunnel
// without waiting for the next tick.
func (d *daemon) onVerified(runID string, st model.ConnectionStatus) {
	if !st.Connected {
		d.logger.Printf("switch verification failed id=%q err=%q", runID, st.Error)
	}
	if d.poller != nil {
		d.poller.Refresh(context.Background())
	}
}
