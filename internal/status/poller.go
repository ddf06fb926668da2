// Package status polls the connection status on an interval.
package status

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exeteres/wg-relay/internal/model"
)

const DefaultInterval = 30 * time.Second

// Source reports the connection status. Failures are carried in the returned
// record, never as an error.
type Source interface {
	Status(ctx context.Context) model.ConnectionStatus
}

type Callback func(model.ConnectionStatus)

// Handle identifies a running poll loop. It is owned by the caller of Start.
type Handle struct {
	ID string

	cb     Callback
	cancel context.CancelFunc
	done   chan struct{}
}

// Poller runs at most one poll loop; Start replaces and stops any previous
// loop. Callbacks are never run concurrently.
type Poller struct {
	src    Source
	logger *log.Logger

	mu      sync.Mutex
	current *Handle

	deliverMu sync.Mutex
	latest    model.ConnectionStatus
	hasLatest bool
}

func New(src Source, logger *log.Logger) *Poller {
	return &Poller{src: src, logger: logger}
}

// Start queries the status immediately and then every interval, passing each
// result to cb, until ctx ends or the handle is stopped. A non-positive
// interval means DefaultInterval.
func (p *Poller) Start(ctx context.Context, interval time.Duration, cb Callback) *Handle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{ID: uuid.NewString(), cb: cb, cancel: cancel, done: make(chan struct{})}

	p.mu.Lock()
	prev := p.current
	p.current = h
	p.mu.Unlock()
	if prev != nil {
		p.logf("replacing status poller old=%q new=%q", prev.ID, h.ID)
		p.stop(prev)
	}

	go p.loop(loopCtx, h, interval)
	return h
}

// Stop ends the loop behind h and waits for it to exit. It must not be called
// from the callback.
func (p *Poller) Stop(h *Handle) {
	if h == nil {
		return
	}
	p.mu.Lock()
	if p.current == h {
		p.current = nil
	}
	p.mu.Unlock()
	p.stop(h)
}

// Refresh queries the status now and delivers it to the active callback, if
// any, outside the regular schedule.
func (p *Poller) Refresh(ctx context.Context) model.ConnectionStatus {
	st := p.src.Status(ctx)
	p.mu.Lock()
	h := p.current
	p.mu.Unlock()

	var cb Callback
	if h != nil {
		cb = h.cb
	}
	p.deliver(st, cb)
	return st
}

// Latest returns the most recent status seen by any tick or refresh.
func (p *Poller) Latest() (model.ConnectionStatus, bool) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	return p.latest, p.hasLatest
}

func (p *Poller) loop(ctx context.Context, h *Handle, interval time.Duration) {
	defer close(h.done)

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		st := p.src.Status(ctx)
		if ctx.Err() != nil {
			return
		}
		if st.Error != "" {
			p.logf("status query failed poller=%q err=%q", h.ID, st.Error)
		}
		p.deliver(st, h.cb)

		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (p *Poller) deliver(st model.ConnectionStatus, cb Callback) {
	p.deliverMu.Lock()
	defer p.deliverMu.Unlock()
	p.latest = st
	p.hasLatest = true
	if cb != nil {
		cb(st)
	}
}

func (p *Poller) stop(h *Handle) {
	h.cancel()
	<-h.done
}

func (p *Poller) logf(format string, args ...any) {
	if p.logger == nil {
		return
	}
	p.logger.Printf(format, args...)
}
