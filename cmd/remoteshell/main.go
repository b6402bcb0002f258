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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alexandremahdhaoui/remoteshell/internal/adapter"
	"github.com/alexandremahdhaoui/remoteshell/internal/controller"
	"github.com/alexandremahdhaoui/remoteshell/internal/driver/terminal"
	"github.com/alexandremahdhaoui/remoteshell/internal/types"
	"github.com/alexandremahdhaoui/remoteshell/internal/util/gracefulshutdown"
	"github.com/alexandremahdhaoui/remoteshell/internal/util/httputil"
	"github.com/alexandremahdhaoui/remoteshell/internal/util/logging"
	"github.com/alexandremahdhaoui/remoteshell/internal/util/metrics"
	"github.com/alexandremahdhaoui/remoteshell/internal/util/ssh"
	"github.com/alexandremahdhaoui/remoteshell/internal/util/tlsutil"
	"github.com/kballard/go-shellquote"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	Name   = "remoteshell"
	prompt = "> "
)

var (
	Version        = "dev" //nolint:gochecknoglobals // set by ldflags
	CommitSHA      = "n/a" //nolint:gochecknoglobals // set by ldflags
	BuildTimestamp = "n/a" //nolint:gochecknoglobals // set by ldflags
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{ //nolint:exhaustruct
		Use:          Name + " [[user@]host[:port]]",
		Short:        "Run commands on a remote host over a password-authenticated SSH session",
		Version:      fmt.Sprintf("%s (%s) %s", Version, CommitSHA, BuildTimestamp),
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig(configPath(cmd.Flags()))
			if err != nil {
				return err
			}

			if err := config.applyFlags(cmd.Flags()); err != nil {
				return err
			}

			if err := config.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			target := ""
			if len(args) == 1 {
				target = args[0]
			}

			return run(config, target)
		},
	}

	bindFlags(cmd.Flags())

	return cmd
}

func run(config *Config, target string) error {
	_, _ = fmt.Fprintf(
		os.Stderr,
		"Starting %s version %s (%s) %s\n",
		Name,
		Version,
		CommitSHA,
		BuildTimestamp,
	)

	level, err := config.Logging.slogLevel()
	if err != nil {
		return err
	}

	logOpts := logging.DefaultOptions()
	logOpts.Development = config.Logging.Development
	logOpts.Level = level
	logOpts.File = config.Logging.File

	log, closeLog := logging.Setup(logOpts)

	// --------------------------------------------- Metrics ----------------------------------------------------- //

	var (
		recorder = metrics.NewNoop()
		reg      *prometheus.Registry
	)

	if config.MetricsServer.Port != 0 {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), //nolint:exhaustruct
		)

		p, err := metrics.NewPrometheus(reg)
		if err != nil {
			_ = closeLog()
			return fmt.Errorf("registering metrics: %w", err)
		}

		recorder = p
	}

	// --------------------------------------------- Session ----------------------------------------------------- //

	dialer := adapter.NewSSHDialer(ssh.NewDialer(ssh.Options{
		TerminalType:   config.Terminal.Type,
		TerminalWidth:  config.Terminal.Width,
		TerminalHeight: config.Terminal.Height,
		Logger:         log,
	}))

	session := adapter.NewSession(dialer, adapter.SessionOptions{ //nolint:exhaustruct
		ConnectTimeout: config.Timeouts.Connect.Duration,
		CommandTimeout: config.Timeouts.Command.Duration,
		Logger:         log,
		Metrics:        recorder,
	})

	presenter := terminal.NewPresenter(os.Stdout)
	ctrl := controller.New(session, presenter, log)

	interactive := term.IsTerminal(int(os.Stdin.Fd()))

	driverOpts := terminal.Options{
		Defaults: config.defaults(),
		Secret:   newSecretFunc(os.Getenv(SecretEnvKey), os.Stdin, os.Stderr),
	}
	if interactive {
		driverOpts.Prompt = prompt
	}

	driver := terminal.NewDriver(ctrl, presenter, driverOpts, log)

	var servers map[string]*http.Server

	if reg != nil {
		server, err := newMetricsServer(config.MetricsServer, reg, session.IsConnected)
		if err != nil {
			_ = closeLog()
			return err
		}

		servers = map[string]*http.Server{"metrics": server}
	}

	// --------------------------------------------- Run --------------------------------------------------------- //

	gs := gracefulshutdown.New(Name, log)
	gs.OnShutdown(func() { _ = closeLog() })
	gs.OnShutdown(func() { session.Disconnect(context.Background()) })

	var in io.Reader = os.Stdin
	if target != "" {
		in = io.MultiReader(strings.NewReader("/connect "+shellquote.Join(target)+"\n"), os.Stdin)
	}

	gs.WaitGroup().Add(1)

	go func() {
		exitCode := 0

		if err := driver.Run(gs.Context(), in); err != nil && !errors.Is(err, context.Canceled) {
			log.Error(err, "reading input")

			exitCode = 1
		}

		gs.WaitGroup().Done()
		gs.Shutdown(exitCode)
	}()

	if servers != nil {
		httputil.Serve(servers, gs, log)
	} else {
		gs.Ready()
	}

	<-gs.Done()

	return nil
}

func newMetricsServer(
	config MetricsServerConfig,
	gatherer prometheus.Gatherer,
	connected func() bool,
) (*http.Server, error) {
	var handler http.Handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}) //nolint:exhaustruct

	if config.Username != "" {
		handler = httputil.BasicAuth(handler, httputil.StaticCredentials(config.Username, config.Password))
	}

	mux := http.NewServeMux()
	mux.Handle(config.Path, handler)
	registerProbes(mux, config, connected)

	tlsConfig, err := tlsutil.BuildTLSConfig(config.TLS)
	if err != nil {
		return nil, fmt.Errorf("building metrics server TLS config: %w", err)
	}

	return &http.Server{ //nolint:exhaustruct
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           httputil.AccessLog(mux),
		ReadHeaderTimeout: time.Second,
		TLSConfig:         tlsConfig,
	}, nil
}

// newSecretFunc returns envSecret when set, otherwise prompts on the terminal without echo. A non-terminal input
// yields an empty secret.
func newSecretFunc(envSecret string, in *os.File, out io.Writer) terminal.SecretFunc {
	return func(_ context.Context, params types.ConnectionParameters) (string, error) {
		if envSecret != "" {
			return envSecret, nil
		}

		fd := int(in.Fd())
		if !term.IsTerminal(fd) {
			return "", nil
		}

		_, _ = fmt.Fprintf(out, "%s@%s's password: ", params.Username, params.Host)

		b, err := term.ReadPassword(fd)

		_, _ = fmt.Fprintln(out)

		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}

		return string(b), nil
	}
}
