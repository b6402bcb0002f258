/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"context"
	"strings"

	"github.com/alexandremahdhaoui/remoteshell/internal/types"
	"github.com/go-logr/logr"
	"golang.org/x/sync/semaphore"
)

const (
	TitleConnectionError = "Connection error"
	TitleCommandError    = "Command error"
	TitleError           = "Error"

	// StderrPrefix distinguishes standard error from standard output in the appended text.
	StderrPrefix = "stderr: "
)

// ---------------------------------------------------- INTERFACE --------------------------------------------------- //

// Session is the transport the controller drives. *adapter.Session implements it.
type Session interface {
	Connect(ctx context.Context, params types.ConnectionParameters) error
	Disconnect(ctx context.Context)
	Execute(ctx context.Context, command string) (types.CommandResult, error)
	IsConnected() bool
}

// Presenter receives display events.
type Presenter interface {
	// AppendText appends text to the output view.
	AppendText(kind types.TextKind, text string)
	// ShowError shows one error to the user.
	ShowError(title, message string)
}

// Interaction is what a presentation layer calls on user intents. No method returns an error: every failure is
// reported through the Presenter.
type Interaction interface {
	// HandleConnect connects and reports whether it succeeded.
	HandleConnect(ctx context.Context, params types.ConnectionParameters) bool
	// HandleDisconnect disconnects.
	HandleDisconnect(ctx context.Context)
	// HandleCommand runs command on the remote host.
	HandleCommand(ctx context.Context, command string)
	// Connected reports whether the underlying Session is connected.
	Connected() bool
}

// --------------------------------------------------- CONSTRUCTORS ------------------------------------------------- //

// New returns a new Controller.
func New(session Session, presenter Presenter, log logr.Logger) *Controller {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	return &Controller{
		session:   session,
		presenter: presenter,
		log:       log.WithName("controller"),
		busy:      semaphore.NewWeighted(1),
	}
}

// ---------------------------------------------------- CONTROLLER -------------------------------------------------- //

var _ Interaction = &Controller{}

// Controller translates user intents into Session calls and Session outcomes into display events.
type Controller struct {
	session   Session
	presenter Presenter
	log       logr.Logger

	// busy is held while a command is outstanding.
	busy *semaphore.Weighted
}

func (c *Controller) HandleConnect(ctx context.Context, params types.ConnectionParameters) bool {
	log := c.log.WithValues("host", params.Host)

	if err := c.session.Connect(ctx, params); err != nil {
		log.Error(err, "connect failed", "kind", types.KindOf(err))
		c.presenter.ShowError(TitleConnectionError, connectMessage(err))

		return false
	}

	log.Info("connected to remote host")
	c.presenter.AppendText(types.TextKindInfo, "Connected to "+params.Host+"\n")

	return true
}

func (c *Controller) HandleDisconnect(ctx context.Context) {
	c.session.Disconnect(ctx)
	c.log.Info("disconnected from remote host")
	c.presenter.AppendText(types.TextKindInfo, "Disconnected\n")
}

func (c *Controller) HandleCommand(ctx context.Context, command string) {
	if !c.session.IsConnected() {
		c.log.Info("refusing to run a command while disconnected")
		c.presenter.ShowError(TitleError, "not connected to a server")

		return
	}

	if !c.busy.TryAcquire(1) {
		c.log.Info("refusing to run a command while another one is running", "command", command)
		c.presenter.ShowError(TitleCommandError, commandMessage(types.ErrBusy))

		return
	}
	defer c.busy.Release(1)

	log := c.log.WithValues("command", command)
	log.Info("running command")

	result, err := c.session.Execute(ctx, command)
	if err != nil {
		log.Error(err, "command failed", "kind", types.KindOf(err))
		c.presenter.ShowError(TitleCommandError, commandMessage(err))

		return
	}

	c.presenter.AppendText(types.TextKindEcho, "$ "+command+"\n")

	if result.Stdout != "" {
		log.V(1).Info("command output", "stdout", result.Stdout)
		c.presenter.AppendText(types.TextKindStdout, result.Stdout)
	}

	if result.Stderr != "" {
		log.Info("command wrote to stderr", "stderr", result.Stderr, "exitStatus", result.ExitStatus)

		text := StderrPrefix + result.Stderr
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}

		c.presenter.AppendText(types.TextKindStderr, text)
	}
}

func (c *Controller) Connected() bool {
	return c.session.IsConnected()
}

// ----------------------------------------------------- MESSAGES --------------------------------------------------- //

func connectMessage(err error) string {
	switch types.KindOf(err) {
	case types.KindInvalidParameters:
		return "invalid connection parameters: " + types.Detail(err)
	case types.KindAuthenticationFailed:
		return "authentication failed: invalid username or password"
	case types.KindConnectionTimedOut:
		return "connection timed out: check the network connection and the server status"
	case types.KindProtocolError:
		return "ssh connection error: " + types.Detail(err)
	default:
		return "connection failed: " + types.Detail(err)
	}
}

func commandMessage(err error) string {
	switch types.KindOf(err) {
	case types.KindNotConnected:
		return "not connected to a server"
	case types.KindBusy:
		return "a command is already running"
	case types.KindCommandTimedOut:
		return "command timed out: check the command and the network status"
	case types.KindProtocolError:
		return "ssh command error: " + types.Detail(err)
	default:
		return "command failed: " + types.Detail(err)
	}
}
