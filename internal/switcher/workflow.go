// Package switcher drives a relay switch: confirm, persist settings, apply the
// endpoint, reload the tunnel interface and verify the connection.
package switcher

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exeteres/wg-relay/internal/history"
	"github.com/exeteres/wg-relay/internal/model"
	"github.com/exeteres/wg-relay/internal/store"
)

type State string

const (
	Idle               State = "idle"
	Confirming         State = "confirming"
	Persisting         State = "persisting"
	Applying           State = "applying"
	ReloadingInterface State = "reloading interface"
	Verifying          State = "verifying"
	Failed             State = "failed"
)

const DefaultVerifyDelay = 5 * time.Second

// Persistence selects whether a run saves the cache settings before applying.
type Persistence int

const (
	PersistSettings Persistence = iota
	SkipPersistence
)

type Executor interface {
	ApplyEndpoint(ctx context.Context, req model.SwitchRequest) error
	InterfaceDown(ctx context.Context, iface string) error
	InterfaceUp(ctx context.Context, iface string) error
	Status(ctx context.Context) model.ConnectionStatus
}

type Confirmer interface {
	Confirm(ctx context.Context, req model.SwitchRequest) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, req model.SwitchRequest) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, req model.SwitchRequest) (bool, error) {
	return f(ctx, req)
}

// AutoConfirm accepts every request.
var AutoConfirm = ConfirmFunc(func(context.Context, model.SwitchRequest) (bool, error) { return true, nil })

type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

type Options struct {
	Store     store.ConfigStore
	Executor  Executor
	Confirmer Confirmer
	Logger    *log.Logger

	Persistence Persistence

	// VerifyDelay defaults to DefaultVerifyDelay.
	VerifyDelay time.Duration
	// AfterFunc schedules the verification; defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func())

	// OnStateChange observes every transition.
	OnStateChange func(runID string, s State)
	// OnVerified receives the status read by the deferred verification.
	OnVerified func(runID string, st model.ConnectionStatus)

	// History is optional.
	History Recorder

	Now   func() time.Time
	NewID func() string
}

// Result describes an accepted run. Verified delivers the deferred status
// check exactly once and is nil for a cancelled run.
type Result struct {
	RunID     string
	Cancelled bool
	Verified  <-chan model.ConnectionStatus
}

// Workflow runs at most one switch at a time. A failed run keeps the workflow
// in Failed until Acknowledge is called.
type Workflow struct {
	opts Options

	mu      sync.Mutex
	state   State
	lastErr error
}

func New(opts Options) *Workflow {
	if opts.VerifyDelay <= 0 {
		opts.VerifyDelay = DefaultVerifyDelay
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	if opts.Confirmer == nil {
		opts.Confirmer = AutoConfirm
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Workflow{opts: opts, state: Idle}
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Err returns the error retained by a failed run.
func (w *Workflow) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

// Acknowledge returns a failed workflow to Idle.
func (w *Workflow) Acknowledge() {
	w.mu.Lock()
	if w.state != Failed {
		w.mu.Unlock()
		return
	}
	w.state = Idle
	w.lastErr = nil
	w.mu.Unlock()
	w.notify("", Idle)
}

// Run switches to req. Stages run strictly in order and a failing stage
// stops the run without undoing earlier stages; settings saved before the
// failure stay saved. Run returns once verification is scheduled.
//
// ctx bounds confirmation only. Once the first stage starts, every external
// action runs to completion or to its own command timeout even if ctx ends.
func (w *Workflow) Run(ctx context.Context, req model.SwitchRequest, settings Settings) (Result, error) {
	if req.IsZero() || req.Hostname == "" || req.PublicKey == "" {
		return Result{}, ErrNoSelection
	}
	if err := ValidateRequest(req); err != nil {
		return Result{}, &SelectionFormatError{Err: err}
	}
	if w.opts.Persistence == PersistSettings {
		if err := settings.Validate(); err != nil {
			return Result{}, err
		}
	}

	w.mu.Lock()
	if w.state != Idle {
		w.mu.Unlock()
		return Result{}, ErrBusy
	}
	runID := w.opts.NewID()
	w.state = Confirming
	w.mu.Unlock()
	w.notify(runID, Confirming)

	ok, err := w.opts.Confirmer.Confirm(ctx, req)
	if err != nil {
		return Result{RunID: runID}, w.fail(ctx, runID, req, Confirming, err)
	}
	if !ok {
		w.logf("switch cancelled id=%q hostname=%q", runID, req.Hostname)
		w.setState(runID, Idle)
		w.record(ctx, runID, req, history.OutcomeCancelled, "", "")
		return Result{RunID: runID, Cancelled: true}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{RunID: runID}, w.fail(ctx, runID, req, Confirming, err)
	}
	ctx = context.WithoutCancel(ctx)

	if w.opts.Persistence == PersistSettings {
		w.setState(runID, Persisting)
		if err := SaveSettings(ctx, w.opts.Store, settings); err != nil {
			return Result{RunID: runID}, w.fail(ctx, runID, req, Persisting, err)
		}
	}

	w.setState(runID, Applying)
	if err := w.opts.Executor.ApplyEndpoint(ctx, req); err != nil {
		return Result{RunID: runID}, w.fail(ctx, runID, req, Applying, err)
	}

	w.setState(runID, ReloadingInterface)
	iface, err := store.WireGuardInterface(ctx, w.opts.Store)
	if err != nil {
		return Result{RunID: runID}, w.fail(ctx, runID, req, ReloadingInterface, err)
	}
	if err := w.opts.Executor.InterfaceDown(ctx, iface); err != nil {
		return Result{RunID: runID}, w.fail(ctx, runID, req, ReloadingInterface, err)
	}
	if err := w.opts.Executor.InterfaceUp(ctx, iface); err != nil {
		return Result{RunID: runID}, w.fail(ctx, runID, req, ReloadingInterface, err)
	}

	w.setState(runID, Verifying)
	w.logf("switch applied id=%q hostname=%q iface=%q", runID, req.Hostname, iface)
	w.record(ctx, runID, req, history.OutcomeApplied, "", "")

	verified := make(chan model.ConnectionStatus, 1)
	w.opts.AfterFunc(w.opts.VerifyDelay, func() {
		st := w.opts.Executor.Status(ctx)
		w.logf("switch verified id=%q connected=%v server=%q", runID, st.Connected, st.CurrentServer)
		w.setState(runID, Idle)
		if w.opts.OnVerified != nil {
			w.opts.OnVerified(runID, st)
		}
		verified <- st
		close(verified)
	})

	return Result{RunID: runID, Verified: verified}, nil
}

func (w *Workflow) fail(ctx context.Context, runID string, req model.SwitchRequest, stage State, err error) error {
	se := &StageError{RunID: runID, Stage: stage, Err: err}
	w.logf("switch failed id=%q stage=%q err=%v", runID, stage, err)

	w.mu.Lock()
	w.state = Failed
	w.lastErr = se
	w.mu.Unlock()
	w.notify(runID, Failed)

	w.record(ctx, runID, req, history.OutcomeFailed, string(stage), se.Detail())
	return se
}

func (w *Workflow) setState(runID string, s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	w.notify(runID, s)
}

func (w *Workflow) notify(runID string, s State) {
	if w.opts.OnStateChange != nil {
		w.opts.OnStateChange(runID, s)
	}
}

func (w *Workflow) record(ctx context.Context, runID string, req model.SwitchRequest, outcome history.Outcome, stage, detail string) {
	if w.opts.History == nil {
		return
	}
	err := w.opts.History.Record(context.WithoutCancel(ctx), history.Entry{
		RunID:     runID,
		Hostname:  req.Hostname,
		PublicKey: req.PublicKey,
		IPv4:      req.IPv4,
		Port:      req.Port,
		Outcome:   outcome,
		Stage:     stage,
		Detail:    detail,
		At:        w.opts.Now(),
	})
	if err != nil {
		w.logf("record switch failed id=%q err=%v", runID, err)
	}
}

func (w *Workflow) logf(format string, args ...any) {
	if w.opts.Logger == nil {
		return
	}
	w.opts.Logger.Printf(format, args...)
}
