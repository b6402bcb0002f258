//go:build unit

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

package gracefulshutdown_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alexandremahdhaoui/remoteshell/internal/util/gracefulshutdown"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopExit(int) {}

// TestNew verifies NewWithExit returns a live context and a usable wait group.
func TestNew(t *testing.T) {
	gs := gracefulshutdown.NewWithExit("test", logr.Discard(), noopExit)
	require.NotNil(t, gs)

	assert.NoError(t, gs.Context().Err(), "context should not be canceled initially")
	assert.NotNil(t, gs.CancelFunc())
	assert.NotNil(t, gs.WaitGroup())

	select {
	case <-gs.Done():
		t.Fatal("Done should not be closed before Shutdown")
	default:
	}

	gs.CancelFunc()()
	<-gs.Context().Done()
}

// TestGracefulShutdown_Shutdown verifies Shutdown waits for the wait group, runs hooks in reverse order and exits.
func TestGracefulShutdown_Shutdown(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)

	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()

		order = append(order, s)
	}

	gs := gracefulshutdown.NewWithExit("test", logr.Discard(), func(code int) {
		assert.Equal(t, 3, code)
		record("exit")
	})

	gs.WaitGroup().Add(1)
	go func() {
		defer gs.WaitGroup().Done()
		<-gs.Context().Done()
		time.Sleep(10 * time.Millisecond)
		record("worker")
	}()
	gs.Ready()

	gs.OnShutdown(func() { record("close log file") })
	gs.OnShutdown(func() { record("disconnect") })

	gs.Shutdown(3)
	<-gs.Done()

	assert.Equal(t, []string{"worker", "disconnect", "close log file", "exit"}, order)
	assert.Error(t, gs.Context().Err())
}

// TestGracefulShutdown_ShutdownIdempotency verifies Shutdown() is only executed once.
func TestGracefulShutdown_ShutdownIdempotency(t *testing.T) {
	var exitCalls, hookCalls atomic.Int32

	gs := gracefulshutdown.NewWithExit("test", logr.Discard(), func(int) { exitCalls.Add(1) })
	gs.OnShutdown(func() { hookCalls.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(exitCode int) {
			defer wg.Done()
			gs.Shutdown(exitCode)
		}(i)
	}

	wg.Wait()

	assert.Equal(t, int32(1), exitCalls.Load())
	assert.Equal(t, int32(1), hookCalls.Load())
}

// TestGracefulShutdown_CancelTriggersShutdown verifies canceling the context runs the shutdown automatically.
func TestGracefulShutdown_CancelTriggersShutdown(t *testing.T) {
	exited := make(chan int, 1)

	gs := gracefulshutdown.NewWithExit("test", logr.Discard(), func(code int) { exited <- code })
	gs.Ready()
	gs.CancelFunc()()

	select {
	case code := <-exited:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown was not triggered by context cancellation")
	}
}
