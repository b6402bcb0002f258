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

// Package sshfake provides an in-memory adapter.Dialer that records every call.
package sshfake

import (
	"context"
	"sync"

	"github.com/alexandremahdhaoui/remoteshell/internal/adapter"
	"github.com/alexandremahdhaoui/remoteshell/internal/types"
)

// ExecFunc answers one Exec call.
type ExecFunc = func(ctx context.Context, command string) (types.CommandResult, error)

// Reply returns an ExecFunc answering every command with result.
func Reply(result types.CommandResult) ExecFunc {
	return func(context.Context, string) (types.CommandResult, error) {
		return result, nil
	}
}

// Fail returns an ExecFunc failing every command with err.
func Fail(err error) ExecFunc {
	return func(context.Context, string) (types.CommandResult, error) {
		return types.CommandResult{}, err
	}
}

// Hang returns an ExecFunc that never answers before ctx is done.
func Hang() ExecFunc {
	return func(ctx context.Context, _ string) (types.CommandResult, error) {
		<-ctx.Done()
		return types.CommandResult{}, ctx.Err()
	}
}

// ------------------------------------------------------ DIALER ---------------------------------------------------- //

// Dialer is a fake adapter.Dialer.
type Dialer struct {
	// DialErr, when set, fails every Dial.
	DialErr error
	// PartialConn makes a failing Dial also hand out a Conn, as a transport failing after the handshake would.
	PartialConn bool
	// Exec answers commands on every Conn handed out. Defaults to an empty successful result.
	Exec ExecFunc
	// CloseErr is returned by Conn.Close.
	CloseErr error

	mu     sync.Mutex
	params []types.ConnectionParameters
	conns  []*Conn
}

// Dial implements adapter.Dialer.
func (d *Dialer) Dial(ctx context.Context, params types.ConnectionParameters) (adapter.Conn, error) { //nolint:ireturn
	d.mu.Lock()
	defer d.mu.Unlock()

	d.params = append(d.params, params)

	if d.DialErr != nil && !d.PartialConn {
		return nil, d.DialErr
	}

	exec := d.Exec
	if exec == nil {
		exec = Reply(types.CommandResult{})
	}

	conn := &Conn{exec: exec, closeErr: d.CloseErr}
	d.conns = append(d.conns, conn)

	return conn, d.DialErr
}

// DialCalls returns the parameters of every Dial call.
func (d *Dialer) DialCalls() []types.ConnectionParameters {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]types.ConnectionParameters, len(d.params))
	copy(out, d.params)

	return out
}

// Conns returns every Conn handed out, in order.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]*Conn, len(d.conns))
	copy(out, d.conns)

	return out
}

// ExecCalls returns the commands received by all Conns.
func (d *Dialer) ExecCalls() []string {
	out := make([]string, 0)
	for _, c := range d.Conns() {
		out = append(out, c.Commands()...)
	}

	return out
}

// ------------------------------------------------------- CONN ----------------------------------------------------- //

// Conn is a fake adapter.Conn.
type Conn struct {
	exec     ExecFunc
	closeErr error

	mu       sync.Mutex
	commands []string
	closed   int
}

// Exec implements adapter.Conn.
func (c *Conn) Exec(ctx context.Context, command string) (types.CommandResult, error) {
	c.mu.Lock()
	c.commands = append(c.commands, command)
	c.mu.Unlock()

	return c.exec(ctx, command)
}

// Close implements adapter.Conn.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed++

	return c.closeErr
}

// Commands returns the commands received, in order.
func (c *Conn) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.commands))
	copy(out, c.commands)

	return out
}

// CloseCalls returns how many times Close was called.
func (c *Conn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}
