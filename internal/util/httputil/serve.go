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

package httputil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/alexandremahdhaoui/remoteshell/internal/util/gracefulshutdown"
	"github.com/go-logr/logr"
)

const shutdownTimeout = 10 * time.Second

// Serve serves the given servers until the GracefulShutdown context is done, then shuts them down.
//
// Serve blocks until every server stopped. A server failing to listen triggers gs.Shutdown(1).
func Serve(servers map[string]*http.Server, gs *gracefulshutdown.GracefulShutdown, log logr.Logger) {
	stopped := make(chan struct{}, len(servers))

	// 1. Run the servers.
	for name, server := range servers {
		log := log.WithValues("server", name, "addr", server.Addr)

		server.BaseContext = func(_ net.Listener) context.Context {
			return logr.NewContext(gs.Context(), log)
		}

		gs.WaitGroup().Add(1)

		go func() {
			defer func() { stopped <- struct{}{} }()

			log.Info("serving")

			if err := listenAndServe(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(err, "server failed")

				// Done() must be called before requesting the shutdown, otherwise Shutdown awaits this goroutine.
				gs.WaitGroup().Done()
				go gs.Shutdown(1)

				return
			}

			gs.WaitGroup().Done()
		}()
	}

	// 2. Signal that all Add() calls have been made.
	gs.Ready()

	// 3. Await context is done.
	<-gs.Context().Done()

	// 4. Gracefully shutdown each server.
	for name, server := range servers {
		log := log.WithValues("server", name)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)

		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(err, "error while shutting down server")
		} else {
			log.Info("gracefully shut down server")
		}

		cancel()
	}

	for range servers {
		<-stopped
	}
}

// listenAndServe serves TLS when the server carries a TLSConfig with its certificates.
func listenAndServe(server *http.Server) error {
	if server.TLSConfig != nil {
		return server.ListenAndServeTLS("", "")
	}

	return server.ListenAndServe()
}
