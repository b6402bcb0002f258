// Copyright 2024 Alexandre Mahdhaoui
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package adapter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alexandremahdhaoui/remoteshell/internal/types"
	"github.com/alexandremahdhaoui/remoteshell/internal/util/metrics"
	"github.com/dustin/go-humanize"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

const (
	// DefaultConnectTimeout bounds TCP dial, banner and handshake.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultCommandTimeout bounds one remote command.
	DefaultCommandTimeout = 30 * time.Second
)

// ---------------------------------------------------- INTERFACE --------------------------------------------------- //

// Dialer opens one authenticated transport handle.
//
// Returned errors should already be joined with a types sentinel. Unclassified errors are reported as
// types.ErrUnknownFailure.
type Dialer interface {
	Dial(ctx context.Context, params types.ConnectionParameters) (Conn, error)
}

// Conn is a live transport handle.
type Conn interface {
	// Exec runs command on a pseudo-terminal backed channel and blocks until it terminates or ctx is done.
	// When ctx is done, Exec must return ctx.Err() (possibly wrapped) and discard any partial output.
	Exec(ctx context.Context, command string) (types.CommandResult, error)
	// Close releases the handle.
	Close() error
}

// State is the lifecycle state of a Session.
type State string

const (
	StateDisconnected State = "Disconnected"
	StateConnected    State = "Connected"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	// ConnectTimeout defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration
	// CommandTimeout defaults to DefaultCommandTimeout.
	CommandTimeout time.Duration

	// Logger defaults to logr.Discard().
	Logger logr.Logger
	// Metrics defaults to metrics.NewNoop().
	Metrics metrics.Recorder
	// Clock defaults to clock.RealClock.
	Clock clock.PassiveClock
}

// --------------------------------------------------- CONSTRUCTORS ------------------------------------------------- //

// NewSession returns a disconnected Session dialing through dialer.
func NewSession(dialer Dialer, opts SessionOptions) *Session {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}

	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}

	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}

	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}

	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}

	return &Session{
		dialer: dialer,
		opts:   opts,
		log:    opts.Logger.WithName("session"),
		state:  StateDisconnected,
	}
}

// ------------------------------------------------------ SESSION --------------------------------------------------- //

// Session owns at most one authenticated connection to a remote host.
//
// The invariant state == StateConnected iff conn != nil holds whenever mu is released. lifecycle serializes
// Connect and Disconnect so that a slow dial never blocks IsConnected.
type Session struct {
	dialer Dialer
	opts   SessionOptions
	log    logr.Logger

	lifecycle sync.Mutex

	mu    sync.Mutex
	state State
	conn  Conn
	host  string
	busy  bool
}

// Connect opens a new connection. An existing connection is released first.
//
// Every failure leaves the Session disconnected. Failures are logged at V(1) only, the caller reports them.
func (s *Session) Connect(ctx context.Context, params types.ConnectionParameters) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.IsConnected() {
		s.log.Info("releasing current connection before reconnecting", "host", s.currentHost())
		s.release()
	}

	log := s.log.WithValues("host", params.Host, "port", params.EffectivePort(), "username", params.Username)

	if err := params.Validate(); err != nil {
		log.V(1).Info("connect failed", "err", err.Error())
		s.opts.Metrics.ConnectAttempt(string(types.KindInvalidParameters))

		return err
	}

	log.Info("connecting")

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	conn, err := s.dialer.Dial(dialCtx, params)
	if err != nil {
		err = classifyConnectErr(dialCtx, err)
		log.V(1).Info("connect failed", "err", err.Error(), "kind", types.KindOf(err))
		s.opts.Metrics.ConnectAttempt(string(types.KindOf(err)))

		if conn != nil {
			runFuncAndLogErr(log, conn.Close)
		}

		return err
	}

	s.mu.Lock()
	s.state = StateConnected
	s.conn = conn
	s.host = params.Host
	s.mu.Unlock()

	log.Info("connected")
	s.opts.Metrics.ConnectAttempt(metrics.OutcomeSuccess)
	s.opts.Metrics.SetConnected(true)

	return nil
}

// Execute runs command verbatim on the current connection.
//
// It fails with types.ErrNotConnected without any I/O when disconnected, and with types.ErrBusy while another
// command is in flight. A timed out command leaves the Session connected; any other transport failure tears it down.
func (s *Session) Execute(ctx context.Context, command string) (types.CommandResult, error) {
	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		s.log.Info("refusing to execute a command while disconnected")

		return types.CommandResult{}, types.ErrNotConnected
	}

	if s.busy {
		s.mu.Unlock()
		s.log.Info("refusing to execute a command while another one is running")

		return types.CommandResult{}, types.ErrBusy
	}

	s.busy = true
	conn := s.conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	log := s.log.WithValues("commandID", uuid.NewString())
	log.V(1).Info("executing command", "command", command)

	cmdCtx, cancel := context.WithTimeout(ctx, s.opts.CommandTimeout)
	defer cancel()

	start := s.opts.Clock.Now()
	result, err := conn.Exec(cmdCtx, command)
	duration := s.opts.Clock.Since(start)

	if err != nil {
		err = s.handleExecErr(cmdCtx, log, conn, err)
		s.opts.Metrics.CommandFinished(string(types.KindOf(err)), duration)

		return types.CommandResult{}, err
	}

	log.V(1).Info("command finished",
		"exitStatus", result.ExitStatus,
		"stdout", humanize.Bytes(uint64(len(result.Stdout))),
		"stderr", humanize.Bytes(uint64(len(result.Stderr))),
		"duration", duration.String(),
	)

	if result.ExitStatus != 0 {
		log.Info("command returned a non-zero exit status", "exitStatus", result.ExitStatus)
	}

	s.opts.Metrics.CommandFinished(metrics.OutcomeSuccess, duration)

	return result, nil
}

// Disconnect closes the current connection, if any. It is idempotent and close failures are only logged.
func (s *Session) Disconnect(_ context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.IsConnected() {
		return
	}

	s.release()
}

// IsConnected reports whether the Session holds a handle. It performs no I/O.
func (s *Session) IsConnected() bool {
	return s.State() == StateConnected
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *Session) currentHost() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.host
}

// release transitions to StateDisconnected and closes the previous handle outside the lock.
func (s *Session) release() {
	s.mu.Lock()
	conn, host := s.conn, s.host
	s.state = StateDisconnected
	s.conn = nil
	s.host = ""
	s.mu.Unlock()

	if conn == nil {
		return
	}

	log := s.log.WithValues("host", host)
	log.Info("disconnecting")
	runFuncAndLogErr(log, conn.Close)
	log.Info("disconnected")
	s.opts.Metrics.SetConnected(false)
}

func (s *Session) handleExecErr(ctx context.Context, log logr.Logger, conn Conn, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		log.V(1).Info("command timed out", "err", err.Error(), "timeout", s.opts.CommandTimeout.String())

		return errors.Join(err, types.ErrCommandTimedOut)
	case errors.Is(ctx.Err(), context.Canceled):
		log.V(1).Info("command canceled", "err", err.Error())

		return errors.Join(err, types.ErrUnknownFailure)
	}

	if types.KindOf(err) == types.KindNone {
		err = errors.Join(err, types.ErrUnknownFailure)
	}

	log.V(1).Info("transport failure while executing command, tearing the session down", "err", err.Error())

	// The handle may already have been replaced by a concurrent Connect.
	s.mu.Lock()
	owned := s.conn == conn
	if owned {
		s.state = StateDisconnected
		s.conn = nil
		s.host = ""
	}
	s.mu.Unlock()

	if owned {
		runFuncAndLogErr(log, conn.Close)
		s.opts.Metrics.SetConnected(false)
	}

	return err
}

func classifyConnectErr(ctx context.Context, err error) error {
	if types.KindOf(err) != types.KindNone {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Join(err, types.ErrConnectionTimedOut)
	}

	return errors.Join(err, types.ErrUnknownFailure)
}

func runFuncAndLogErr(log logr.Logger, f func() error) {
	if err := f(); err != nil {
		log.Error(err, "error closing connection")
	}
}
