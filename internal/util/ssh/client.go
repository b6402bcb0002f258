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

package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/alexandremahdhaoui/remoteshell/internal/types"
	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"
)

// Dialer opens password-authenticated SSH connections.
type Dialer struct {
	opts Options
	log  logr.Logger
}

// NewDialer creates a new Dialer.
func NewDialer(opts Options) *Dialer {
	opts = opts.withDefaults()

	return &Dialer{
		opts: opts,
		log:  opts.Logger.WithName("ssh"),
	}
}

// Dial connects to params.Address() and authenticates with params.Secret.
//
// Public keys are never offered and unknown host keys are accepted without being persisted. The ctx deadline
// bounds the TCP dial, the banner exchange and the handshake.
func (d *Dialer) Dial(ctx context.Context, params types.ConnectionParameters) (*Conn, error) {
	addr := params.Address()
	log := d.log.WithValues("addr", addr)

	config := &ssh.ClientConfig{ //nolint:exhaustruct
		User: params.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(params.Secret),
			// Servers delegating passwords to PAM only offer keyboard-interactive.
			ssh.KeyboardInteractive(answerWithSecret(params.Secret)),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // trust-on-first-use, keys are not persisted.
		BannerCallback: func(message string) error {
			log.V(1).Info("received banner", "banner", message)
			return nil
		},
	}

	if deadline, ok := ctx.Deadline(); ok {
		config.Timeout = time.Until(deadline)
	}

	var netDialer net.Dialer

	raw, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classifyDialErr(ctx, fmt.Errorf("unable to connect to %s: %w", addr, err))
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = raw.SetDeadline(deadline)
	}

	// Unblock the handshake when ctx is canceled before its deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = raw.SetDeadline(time.Now())
	})

	sshConn, chans, reqs, err := ssh.NewClientConn(raw, addr, config)
	if !stop() && err == nil {
		_ = sshConn.Close()
		err = ctx.Err()
	}

	if err != nil {
		_ = raw.Close()
		return nil, classifyHandshakeErr(ctx, fmt.Errorf("ssh handshake with %s failed: %w", addr, err))
	}

	_ = raw.SetDeadline(time.Time{})

	log.V(1).Info("ssh session established", "serverVersion", string(sshConn.ServerVersion()))

	return &Conn{
		client: ssh.NewClient(sshConn, chans, reqs),
		opts:   d.opts,
		log:    log,
	}, nil
}

func answerWithSecret(secret string) ssh.KeyboardInteractiveChallenge {
	return func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = secret
		}

		return answers, nil
	}
}

// ------------------------------------------------------- CONN ----------------------------------------------------- //

// Conn is one authenticated SSH connection.
type Conn struct {
	client *ssh.Client
	opts   Options
	log    logr.Logger
}

// Exec runs command on a new pseudo-terminal backed exec channel and waits for it to terminate.
//
// When ctx is done the channel is closed and ctx.Err() is returned without partial output. A missing exit status
// is reported as types.ExitStatusUnknown.
func (c *Conn) Exec(ctx context.Context, command string) (types.CommandResult, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return types.CommandResult{}, errors.Join(
			fmt.Errorf("unable to create SSH session: %w", err),
			types.ErrProtocol,
		)
	}
	defer runFuncAndLogErr(c.log, session.Close)

	if err := session.RequestPty(
		c.opts.TerminalType,
		c.opts.TerminalHeight,
		c.opts.TerminalWidth,
		c.opts.terminalModes(),
	); err != nil {
		return types.CommandResult{}, errors.Join(
			fmt.Errorf("unable to allocate a pseudo-terminal: %w", err),
			types.ErrProtocol,
		)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	if err := session.Start(command); err != nil {
		return types.CommandResult{}, errors.Join(
			fmt.Errorf("unable to start remote command: %w", err),
			types.ErrProtocol,
		)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case <-ctx.Done():
		// Closing the channel unblocks Wait; the buffers are dropped with it.
		_ = session.Signal(ssh.SIGKILL)
		runFuncAndLogErr(c.log, session.Close)

		return types.CommandResult{}, ctx.Err()
	case err := <-done:
		exitStatus := 0

		var (
			exitErr    *ssh.ExitError
			missingErr *ssh.ExitMissingError
		)

		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			exitStatus = exitErr.ExitStatus()
		case errors.As(err, &missingErr):
			exitStatus = types.ExitStatusUnknown
		default:
			return types.CommandResult{}, fmt.Errorf("remote command failed: %w", err)
		}

		return types.CommandResult{
			Stdout:     decode(stdoutBuf.Bytes()),
			Stderr:     decode(stderrBuf.Bytes()),
			ExitStatus: exitStatus,
		}, nil
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.client.Close()
}
