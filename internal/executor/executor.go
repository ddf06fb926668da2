package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/exeteres/wg-relay/internal/execx"
	"github.com/exeteres/wg-relay/internal/model"
)

const (
	ActionStatus        = "status"
	ActionFetch         = "fetch"
	ActionApply         = "apply"
	ActionInterfaceDown = "ifdown"
	ActionInterfaceUp   = "ifup"
)

type Runner interface {
	Run(ctx context.Context, name string, args ...string) (execx.Result, error)
}

// Commands holds the paths of the external actions.
type Commands struct {
	Status        string
	Fetch         string
	Apply         string
	InterfaceDown string
	InterfaceUp   string
	// ServersFile is where the fetch action leaves the server list.
	ServersFile string
}

func DefaultCommands() Commands {
	return Commands{
		Status:        "/usr/bin/mullvad-get-status.sh",
		Fetch:         "/usr/bin/mullvad-fetch-servers.sh",
		Apply:         "/usr/bin/mullvad-apply-server.sh",
		InterfaceDown: "/sbin/ifdown",
		InterfaceUp:   "/sbin/ifup",
		ServersFile:   "/tmp/mullvad_servers.json",
	}
}

// InvocationError reports an action that could not run or exited non-zero.
type InvocationError struct {
	Action   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *InvocationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s action failed: %v", e.Action, e.Err)
	}
	return fmt.Sprintf("%s action failed with code %d: %s", e.Action, e.ExitCode, e.Detail())
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Detail is the operator-facing reason: stderr when the action wrote any,
// otherwise a generic message.
func (e *InvocationError) Detail() string {
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		return msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "Unknown error"
}

func AsInvocationError(err error) (*InvocationError, bool) {
	var e *InvocationError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

type Executor struct {
	runner  Runner
	cmds    Commands
	timeout time.Duration
	logger  *log.Logger
}

func New(runner Runner, cmds Commands, timeout time.Duration, logger *log.Logger) *Executor {
	return &Executor{runner: runner, cmds: cmds, timeout: timeout, logger: logger}
}

func (e *Executor) ServersFile() string {
	return e.cmds.ServersFile
}

// Status queries the connection status. Failures are folded into the returned
// record; Status never fails.
func (e *Executor) Status(ctx context.Context) model.ConnectionStatus {
	res, err := e.run(ctx, ActionStatus, e.cmds.Status)
	if err != nil {
		e.logf("status query failed err=%v", err)
		return model.ConnectionStatus{Connected: false, Error: "Failed to get status: " + err.Error()}
	}
	st, err := model.DecodeConnectionStatus(res.Stdout)
	if err != nil {
		e.logf("status output malformed err=%v", err)
		return model.ConnectionStatus{Connected: false, Error: "Failed to parse status"}
	}
	return st
}

// Fetch runs the fetch action. On success the payload is at ServersFile.
func (e *Executor) Fetch(ctx context.Context) error {
	_, err := e.run(ctx, ActionFetch, e.cmds.Fetch)
	return err
}

func (e *Executor) ApplyEndpoint(ctx context.Context, req model.SwitchRequest) error {
	_, err := e.run(ctx, ActionApply, e.cmds.Apply, req.Hostname, req.PublicKey, req.IPv4, strconv.Itoa(req.Port))
	return err
}

func (e *Executor) InterfaceDown(ctx context.Context, iface string) error {
	_, err := e.run(ctx, ActionInterfaceDown, e.cmds.InterfaceDown, iface)
	return err
}

func (e *Executor) InterfaceUp(ctx context.Context, iface string) error {
	_, err := e.run(ctx, ActionInterfaceUp, e.cmds.InterfaceUp, iface)
	return err
}

func (e *Executor) run(ctx context.Context, action, name string, args ...string) (execx.Result, error) {
	if strings.TrimSpace(name) == "" {
		return execx.Result{}, &InvocationError{Action: action, ExitCode: -1, Err: errors.New("no command configured")}
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	res, err := e.runner.Run(ctx, name, args...)
	if err != nil {
		return res, &InvocationError{Action: action, ExitCode: -1, Stderr: res.Stderr, Err: err}
	}
	if !res.OK() {
		return res, &InvocationError{Action: action, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}

func (e *Executor) logf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}
