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

package testutil

import (
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	gliderssh "github.com/gliderlabs/ssh"
	"github.com/stretchr/testify/require"
)

// Reply is the canned answer of an SSHServer to one command.
type Reply struct {
	Stdout     string
	Stderr     string
	ExitStatus int
	// Hang blocks the command until the client closes the channel or the server stops.
	Hang bool
	// NoExitStatus closes the channel without sending an exit status.
	NoExitStatus bool
}

// SSHServer is an in-process password-authenticated SSH server answering exec requests from a table of Replies.
type SSHServer struct {
	Host string
	Port int

	server   *gliderssh.Server
	replies  map[string]Reply
	ptyCount atomic.Int64

	mu       sync.Mutex
	commands []string
}

// StartSSHServer starts an SSHServer on a random loopback port. It is stopped on test cleanup.
//
// Commands missing from replies exit with status 127 and a "command not found" stderr.
func StartSSHServer(t *testing.T, username, password string, replies map[string]Reply) *SSHServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &SSHServer{replies: replies}

	s.server = &gliderssh.Server{ //nolint:exhaustruct
		Handler: s.handle,
		PasswordHandler: func(ctx gliderssh.Context, pass string) bool {
			return ctx.User() == username && pass == password
		},
	}

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	s.Host = host
	s.Port, err = strconv.Atoi(port)
	require.NoError(t, err)

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, gliderssh.ErrServerClosed) {
			t.Logf("ssh test server stopped: %v", err)
		}
	}()

	t.Cleanup(func() {
		_ = s.server.Close()
	})

	return s
}

// Commands returns the commands received so far, in order.
func (s *SSHServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.commands))
	copy(out, s.commands)

	return out
}

// PtyRequests returns how many sessions requested a pseudo-terminal.
func (s *SSHServer) PtyRequests() int {
	return int(s.ptyCount.Load())
}

func (s *SSHServer) handle(sess gliderssh.Session) {
	if _, _, isPty := sess.Pty(); isPty {
		s.ptyCount.Add(1)
	}

	command := strings.Join(sess.Command(), " ")

	s.mu.Lock()
	s.commands = append(s.commands, command)
	s.mu.Unlock()

	reply, ok := s.replies[command]
	if !ok {
		_, _ = io.WriteString(sess.Stderr(), command+": command not found\n")
		_ = sess.Exit(127)

		return
	}

	if reply.Hang {
		<-sess.Context().Done()
		return
	}

	_, _ = io.WriteString(sess, reply.Stdout)
	_, _ = io.WriteString(sess.Stderr(), reply.Stderr)

	if reply.NoExitStatus {
		_ = sess.Close()
		return
	}

	_ = sess.Exit(reply.ExitStatus)
}

// ------------------------------------------------- MISBEHAVING PEERS --------------------------------------------- //

// StartSilentServer accepts TCP connections and never speaks. It returns its address.
func StartSilentServer(t *testing.T) string {
	t.Helper()

	return startRawServer(t, func(conn net.Conn) {
		_, _ = io.Copy(io.Discard, conn)
	})
}

// StartBogusServer sends banner then closes each accepted connection. It returns its address.
func StartBogusServer(t *testing.T, banner string) string {
	t.Helper()

	return startRawServer(t, func(conn net.Conn) {
		_, _ = io.WriteString(conn, banner)
		_ = conn.Close()
	})
}

// ClosedAddress returns a loopback address nothing listens on.
func ClosedAddress(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	return addr
}

func startRawServer(t *testing.T, handle func(conn net.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
	})

	return ln.Addr().String()
}
