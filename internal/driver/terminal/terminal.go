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

// Package terminal is a line-oriented presentation layer for the interaction controller.
//
// Lines starting with a slash are meta commands, everything else is sent to the remote host verbatim:
//
//	/connect [user@]host[:port]
//	/disconnect
//	/status
//	/quit
package terminal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/alexandremahdhaoui/remoteshell/internal/controller"
	"github.com/alexandremahdhaoui/remoteshell/internal/types"
	"github.com/go-logr/logr"
	"github.com/kballard/go-shellquote"
)

const (
	metaPrefix = "/"

	// DefaultMaxLineLength bounds one input line, in bytes.
	DefaultMaxLineLength = 1 << 20
)

var (
	errConnectUsage     = errors.New("usage: /connect [user@]host[:port]")
	errInvalidPort      = errors.New("invalid port")
	errUnknownMetaCmd   = errors.New("unknown command")
	errNoDefaultAddress = errors.New("no host given and no default host configured")
	errLineTooLong      = errors.New("input line too long")
)

// SecretFunc returns the secret used for a connection to params.
type SecretFunc func(ctx context.Context, params types.ConnectionParameters) (string, error)

// Options configures a Driver.
type Options struct {
	// Defaults fills the parts left out of a /connect target. Defaults.Secret is used when Secret is nil.
	Defaults types.ConnectionParameters
	// Secret, when set, is called on every /connect.
	Secret SecretFunc
	// Prompt is written before every line read. Empty means no prompt.
	Prompt string
	// MaxLineLength defaults to DefaultMaxLineLength. Longer lines are discarded and reported.
	MaxLineLength int
}

// Driver reads user intents from an input stream and forwards them to a controller.Interaction.
type Driver struct {
	ctrl      controller.Interaction
	presenter *Presenter
	opts      Options
	log       logr.Logger
}

// NewDriver returns a Driver. presenter must be the one ctrl reports to.
func NewDriver(ctrl controller.Interaction, presenter *Presenter, opts Options, log logr.Logger) *Driver {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = DefaultMaxLineLength
	}

	return &Driver{
		ctrl:      ctrl,
		presenter: presenter,
		opts:      opts,
		log:       log.WithName("terminal"),
	}
}

// Run processes lines from in until EOF, /quit or ctx is done, then disconnects.
//
// It returns nil on EOF and /quit, ctx.Err() when ctx is done, or the read error.
func (d *Driver) Run(ctx context.Context, in io.Reader) error {
	defer d.shutdown(ctx)

	lines, readErr, next, stop := readLines(in, d.opts.MaxLineLength)
	defer close(stop)

	for {
		if d.opts.Prompt != "" {
			d.presenter.write(d.opts.Prompt)
		}

		select {
		case next <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case l := <-lines:
			if l.tooLong {
				d.showErr(errLineTooLong)
				continue
			}

			if quit := d.dispatch(ctx, l.text); quit {
				return nil
			}
		}
	}
}

type inputLine struct {
	text    string
	tooLong bool
}

// readLines reads one line per value received on next. Reads happen only on request so that a secret prompt
// sharing the same input never races the reader.
func readLines(in io.Reader, maxLength int) (<-chan inputLine, <-chan error, chan<- struct{}, chan struct{}) {
	var (
		lines   = make(chan inputLine)
		readErr = make(chan error, 1)
		next    = make(chan struct{})
		stop    = make(chan struct{})
	)

	r := bufio.NewReader(in)

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-next:
			}

			l, err := readLine(r, maxLength)
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}

				readErr <- err

				return
			}

			select {
			case <-stop:
				return
			case lines <- l:
			}
		}
	}()

	return lines, readErr, next, stop
}

// readLine reads up to the next newline. The content of a line longer than maxLength is dropped.
func readLine(r *bufio.Reader, maxLength int) (inputLine, error) {
	var (
		buf     []byte
		tooLong bool
		started bool
	)

	for {
		chunk, more, err := r.ReadLine()
		if err != nil {
			if started && errors.Is(err, io.EOF) {
				return inputLine{text: string(buf), tooLong: tooLong}, nil
			}

			return inputLine{}, err
		}

		started = true

		if !tooLong {
			if len(buf)+len(chunk) > maxLength {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}

		if !more {
			return inputLine{text: string(buf), tooLong: tooLong}, nil
		}
	}
}

func (d *Driver) dispatch(ctx context.Context, line string) bool {
	line = strings.TrimRight(line, "\r")

	if strings.TrimSpace(line) == "" {
		return false
	}

	if !strings.HasPrefix(line, metaPrefix) {
		d.ctrl.HandleCommand(ctx, line)
		return false
	}

	args, err := shellquote.Split(strings.TrimPrefix(line, metaPrefix))
	if err != nil || len(args) == 0 {
		d.showErr(fmt.Errorf("%w: %q", errUnknownMetaCmd, line))
		return false
	}

	switch args[0] {
	case "connect":
		d.connect(ctx, args[1:])
	case "disconnect":
		d.ctrl.HandleDisconnect(ctx)
	case "status":
		if d.ctrl.Connected() {
			d.presenter.AppendText(types.TextKindInfo, "connected\n")
		} else {
			d.presenter.AppendText(types.TextKindInfo, "not connected\n")
		}
	case "quit", "exit":
		return true
	default:
		d.showErr(fmt.Errorf("%w: %s%s", errUnknownMetaCmd, metaPrefix, args[0]))
	}

	return false
}

func (d *Driver) connect(ctx context.Context, args []string) {
	if len(args) > 1 {
		d.showErr(errConnectUsage)
		return
	}

	target := ""
	if len(args) == 1 {
		target = args[0]
	}

	params, err := ParseTarget(target, d.opts.Defaults)
	if err != nil {
		d.showErr(err)
		return
	}

	if d.opts.Secret != nil {
		secret, err := d.opts.Secret(ctx, params)
		if err != nil {
			d.log.Error(err, "unable to read secret")
			d.showErr(fmt.Errorf("unable to read secret: %w", err))

			return
		}

		params.Secret = secret
	}

	d.ctrl.HandleConnect(ctx, params)
}

func (d *Driver) showErr(err error) {
	d.log.V(1).Info("rejected input", "err", err.Error())
	d.presenter.ShowError(controller.TitleError, err.Error())
}

func (d *Driver) shutdown(ctx context.Context) {
	if !d.ctrl.Connected() {
		return
	}

	d.ctrl.HandleDisconnect(context.WithoutCancel(ctx))
}

// ParseTarget parses "[user@]host[:port]" and fills the missing parts from defaults, including the secret.
//
// IPv6 hosts with a port must be bracketed, e.g. "root@[::1]:2222".
func ParseTarget(target string, defaults types.ConnectionParameters) (types.ConnectionParameters, error) {
	params := defaults

	if i := strings.LastIndex(target, "@"); i >= 0 {
		params.Username = target[:i]
		target = target[i+1:]
	}

	switch {
	case target == "":
	case strings.HasPrefix(target, "[") || strings.Count(target, ":") == 1:
		host, port, err := net.SplitHostPort(target)
		if err != nil {
			return types.ConnectionParameters{}, errors.Join(err, errConnectUsage)
		}

		p, err := strconv.Atoi(port)
		if err != nil {
			return types.ConnectionParameters{}, fmt.Errorf("%w %q", errInvalidPort, port)
		}

		params.Host = host
		params.Port = p
	default:
		params.Host = target
	}

	if params.Host == "" {
		return types.ConnectionParameters{}, errNoDefaultAddress
	}

	return params, nil
}
