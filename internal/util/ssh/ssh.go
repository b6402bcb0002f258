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

// Package ssh is the golang.org/x/crypto/ssh transport: password-only dialing, pseudo-terminal command
// execution and classification of protocol failures.
package ssh

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/alexandremahdhaoui/remoteshell/internal/types"
	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"
	"golang.org/x/text/encoding/unicode"
)

const (
	DefaultTerminalType   = "xterm"
	DefaultTerminalWidth  = 80
	DefaultTerminalHeight = 24

	// terminalSpeed is the baud rate advertised for the pseudo-terminal.
	terminalSpeed = 14400
)

// Options configures a Dialer.
type Options struct {
	// TerminalType is the TERM value of the pseudo-terminal. Defaults to DefaultTerminalType.
	TerminalType string
	// TerminalWidth in columns. Defaults to DefaultTerminalWidth.
	TerminalWidth int
	// TerminalHeight in rows. Defaults to DefaultTerminalHeight.
	TerminalHeight int

	// Logger defaults to logr.Discard().
	Logger logr.Logger
}

func (o Options) withDefaults() Options {
	if o.TerminalType == "" {
		o.TerminalType = DefaultTerminalType
	}

	if o.TerminalWidth <= 0 {
		o.TerminalWidth = DefaultTerminalWidth
	}

	if o.TerminalHeight <= 0 {
		o.TerminalHeight = DefaultTerminalHeight
	}

	return o
}

func (o Options) terminalModes() ssh.TerminalModes {
	return ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: terminalSpeed,
		ssh.TTY_OP_OSPEED: terminalSpeed,
	}
}

// ----------------------------------------------------- CLASSIFY --------------------------------------------------- //

// classifyDialErr classifies a failure of the TCP dial, before any SSH byte was exchanged.
func classifyDialErr(ctx context.Context, err error) error {
	if isTimeout(ctx, err) {
		return errors.Join(err, types.ErrConnectionTimedOut)
	}

	return errors.Join(err, types.ErrUnknownFailure)
}

// classifyHandshakeErr classifies a failure of ssh.NewClientConn.
func classifyHandshakeErr(ctx context.Context, err error) error {
	switch {
	case isAuthErr(err):
		return errors.Join(err, types.ErrAuthenticationFailed)
	case isTimeout(ctx, err):
		return errors.Join(err, types.ErrConnectionTimedOut)
	default:
		return errors.Join(err, types.ErrProtocol)
	}
}

// isAuthErr matches the message x/crypto returns when every auth method was rejected. The package does not export
// a typed error for it.
func isAuthErr(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
		return true
	}

	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

// ------------------------------------------------------ DECODE ---------------------------------------------------- //

// decode converts remote output to a string, replacing invalid UTF-8 sequences with U+FFFD.
func decode(b []byte) string {
	if len(b) == 0 {
		return ""
	}

	out, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "\uFFFD")
	}

	return string(out)
}

func runFuncAndLogErr(log logr.Logger, f func() error) {
	if err := f(); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
		log.V(1).Info("error closing ssh session or connection", "err", err.Error())
	}
}
