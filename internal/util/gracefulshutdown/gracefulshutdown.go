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

package gracefulshutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-logr/logr"
)

// GracefulShutdown holds the process context, the goroutines to await and the hooks to run before exiting.
type GracefulShutdown struct {
	ctx    context.Context
	cancel context.CancelFunc
	name   string
	log    logr.Logger

	once      sync.Once
	readyOnce sync.Once
	wg        *sync.WaitGroup

	// ready is closed when Ready() is called, signaling that all Add() calls have been made.
	// This prevents a race between WaitGroup.Add() and WaitGroup.Wait().
	ready chan struct{}
	// done is closed once the exit function returned.
	done chan struct{}

	hooksMu sync.Mutex
	hooks   []func()

	// exitFunc allows injecting exit behavior for testing
	exitFunc func(int)
}

// NewWithExit creates a new GracefulShutdown with a custom exit function.
// This is primarily useful for testing where os.Exit() would terminate the test process.
func NewWithExit(name string, log logr.Logger, exitFunc func(int)) *GracefulShutdown {
	if log.GetSink() == nil {
		log = logr.Discard()
	}

	// 1. initialize a context canceled by SIGTERM or SIGINT.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)

	gs := &GracefulShutdown{
		ctx:      ctx,
		cancel:   cancel,
		name:     name,
		log:      log.WithName("gracefulshutdown"),
		wg:       &sync.WaitGroup{},
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		exitFunc: exitFunc,
	}

	// 2. Ensure gs.Shutdown is always called at least once when the context is done.
	go func() {
		select {
		case <-gs.ready:
			<-ctx.Done()
		case <-ctx.Done():
			gs.log.Info("context canceled before Ready() was called, proceeding with shutdown anyway")
		}

		gs.Shutdown(0)
	}()

	return gs
}

// New creates a new GracefulShutdown exiting the process with os.Exit.
func New(name string, log logr.Logger) *GracefulShutdown {
	return NewWithExit(name, log, os.Exit)
}

// OnShutdown registers f to run once every awaited goroutine is done. Hooks run in reverse registration order.
func (s *GracefulShutdown) OnShutdown(f func()) {
	s.hooksMu.Lock()
	defer s.hooksMu.Unlock()

	s.hooks = append(s.hooks, f)
}

// Shutdown shuts down the application gracefully. Only the first call has any effect.
func (s *GracefulShutdown) Shutdown(exitCode int) {
	s.once.Do(func() {
		s.log.Info("gracefully shutting down", "name", s.name, "exitCode", exitCode)

		s.cancel()
		s.wg.Wait()

		s.hooksMu.Lock()
		hooks := s.hooks
		s.hooks = nil
		s.hooksMu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			hooks[i]()
		}

		s.exitFunc(exitCode)
		close(s.done)
	})
}

// Context returns the context of the graceful shutdown.
func (s *GracefulShutdown) Context() context.Context {
	return s.ctx
}

// CancelFunc returns the cancel function of the graceful shutdown.
func (s *GracefulShutdown) CancelFunc() context.CancelFunc {
	return s.cancel
}

// WaitGroup returns the wait group of the graceful shutdown.
func (s *GracefulShutdown) WaitGroup() *sync.WaitGroup {
	return s.wg
}

// Done is closed after the exit function returned. With os.Exit it is never closed.
func (s *GracefulShutdown) Done() <-chan struct{} {
	return s.done
}

// Ready signals that all WaitGroup.Add() calls have been made.
//
// Ready is safe to call multiple times; only the first call has any effect.
func (s *GracefulShutdown) Ready() {
	s.readyOnce.Do(func() {
		close(s.ready)
	})
}
