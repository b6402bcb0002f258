//go:build unit

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
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexandremahdhaoui/remoteshell/internal/types"
	"github.com/alexandremahdhaoui/remoteshell/internal/util/certutil"
	"github.com/alexandremahdhaoui/remoteshell/internal/util/tlsutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o600))

	return configPath
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, 22, config.Connection.Port)
	assert.Equal(t, 30*time.Second, config.Timeouts.Connect.Duration)
	assert.Equal(t, 30*time.Second, config.Timeouts.Command.Duration)
	assert.Equal(t, "xterm", config.Terminal.Type)
	assert.Equal(t, 80, config.Terminal.Width)
	assert.Equal(t, 24, config.Terminal.Height)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "logs/remoteshell.log", config.Logging.File)
	assert.Equal(t, 0, config.MetricsServer.Port)
	assert.Equal(t, "/metrics", config.MetricsServer.Path)
	assert.Equal(t, "/healthz", config.MetricsServer.LivenessPath)
	assert.Equal(t, "/readyz", config.MetricsServer.ReadinessPath)
	assert.NoError(t, config.Validate())
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	configPath := writeConfig(t, `
connection:
  host: 10.0.0.5
  username: root
  port: 2222
timeouts:
  connect: 5s
  command: 2m
terminal:
  type: vt100
logging:
  level: debug
  file: ""
  development: true
metricsServer:
  port: 9090
`)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, ConnectionConfig{Host: "10.0.0.5", Username: "root", Port: 2222}, config.Connection)
	assert.Equal(t, 5*time.Second, config.Timeouts.Connect.Duration)
	assert.Equal(t, 2*time.Minute, config.Timeouts.Command.Duration)
	assert.Equal(t, "vt100", config.Terminal.Type)
	assert.Equal(t, 80, config.Terminal.Width, "unset fields keep their default")
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Empty(t, config.Logging.File)
	assert.True(t, config.Logging.Development)
	assert.Equal(t, 9090, config.MetricsServer.Port)
	assert.Equal(t, "/metrics", config.MetricsServer.Path)
	assert.NoError(t, config.Validate())

	level, err := config.Logging.slogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	assert.Equal(t, types.ConnectionParameters{Host: "10.0.0.5", Username: "root", Port: 2222}, config.defaults())
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		config, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
		assert.Nil(t, config)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		config, err := LoadConfig(writeConfig(t, "connection: [unterminated"))
		assert.Error(t, err)
		assert.Nil(t, config)
	})

	t.Run("invalid duration", func(t *testing.T) {
		config, err := LoadConfig(writeConfig(t, "timeouts:\n  connect: soon\n"))
		assert.Error(t, err)
		assert.Nil(t, config)
	})

	t.Run("empty path returns defaults", func(t *testing.T) {
		config, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, NewDefaultConfig(), config)
	})
}

func TestConfig_Validate(t *testing.T) {
	for _, tt := range []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "negative port", mutate: func(c *Config) { c.Connection.Port = -1 }},
		{name: "zero connect timeout", mutate: func(c *Config) { c.Timeouts.Connect.Duration = 0 }},
		{name: "negative command timeout", mutate: func(c *Config) { c.Timeouts.Command.Duration = -time.Second }},
		{name: "negative terminal width", mutate: func(c *Config) { c.Terminal.Width = -1 }},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "chatty" }},
		{name: "metrics port out of range", mutate: func(c *Config) { c.MetricsServer.Port = 70000 }},
		{name: "relative metrics path", mutate: func(c *Config) {
			c.MetricsServer.Port = 9090
			c.MetricsServer.Path = "metrics"
		}},
		{name: "empty readiness path", mutate: func(c *Config) {
			c.MetricsServer.Port = 9090
			c.MetricsServer.ReadinessPath = ""
		}},
		{name: "probe path shadows metrics", mutate: func(c *Config) {
			c.MetricsServer.Port = 9090
			c.MetricsServer.LivenessPath = "/metrics"
		}},
		{name: "username without password", mutate: func(c *Config) { c.MetricsServer.Username = "prom" }},
		{name: "tls cert without key", mutate: func(c *Config) { c.MetricsServer.TLS.CertFile = "tls.crt" }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestConfig_ApplyFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bindFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--host", "example.com",
		"-u", "admin",
		"--command-timeout", "5s",
		"--log-level", "warn",
		"--dev",
		"--metrics-port", "9100",
	}))

	config := NewDefaultConfig()
	config.Connection.Port = 2222
	require.NoError(t, config.applyFlags(fs))

	assert.Equal(t, "example.com", config.Connection.Host)
	assert.Equal(t, "admin", config.Connection.Username)
	assert.Equal(t, 2222, config.Connection.Port, "unset flags must not override the file")
	assert.Equal(t, 30*time.Second, config.Timeouts.Connect.Duration)
	assert.Equal(t, 5*time.Second, config.Timeouts.Command.Duration)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.True(t, config.Logging.Development)
	assert.Equal(t, 9100, config.MetricsServer.Port)
}

func TestConfigPath(t *testing.T) {
	t.Setenv(ConfigPathEnvKey, "/etc/remoteshell/config.yaml")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	bindFlags(fs)
	assert.Equal(t, "/etc/remoteshell/config.yaml", configPath(fs))

	require.NoError(t, fs.Parse([]string{"--config", "./local.yaml"}))
	assert.Equal(t, "./local.yaml", configPath(fs))
}

func TestNewSecretFunc(t *testing.T) {
	t.Run("environment", func(t *testing.T) {
		secret, err := newSecretFunc("from-env", os.Stdin, nil)(context.Background(), types.ConnectionParameters{})
		require.NoError(t, err)
		assert.Equal(t, "from-env", secret)
	})

	t.Run("non-terminal input", func(t *testing.T) {
		f, err := os.CreateTemp(t.TempDir(), "stdin")
		require.NoError(t, err)
		t.Cleanup(func() { _ = f.Close() })

		secret, err := newSecretFunc("", f, nil)(context.Background(), types.ConnectionParameters{})
		require.NoError(t, err)
		assert.Empty(t, secret)
	})
}

func metricsConfig(mutate func(*MetricsServerConfig)) MetricsServerConfig {
	config := NewDefaultConfig().MetricsServer
	config.Port = 9090

	if mutate != nil {
		mutate(&config)
	}

	return config
}

func TestNewMetricsServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_total", Help: "probe"})) //nolint:exhaustruct

	withAuth := func(c *MetricsServerConfig) {
		c.Username = "prom"
		c.Password = "scrape"
	}

	for _, tt := range []struct {
		name           string
		config         MetricsServerConfig
		path           string
		connected      bool
		setupAuth      func(*http.Request)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "open metrics",
			config:         metricsConfig(nil),
			path:           "/metrics",
			setupAuth:      func(*http.Request) {},
			expectedStatus: http.StatusOK,
			expectedBody:   "probe_total",
		},
		{
			name:           "basic auth rejected",
			config:         metricsConfig(withAuth),
			path:           "/metrics",
			setupAuth:      func(*http.Request) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "basic auth accepted",
			config:         metricsConfig(withAuth),
			path:           "/metrics",
			setupAuth:      func(r *http.Request) { r.SetBasicAuth("prom", "scrape") },
			expectedStatus: http.StatusOK,
			expectedBody:   "probe_total",
		},
		{
			name:           "liveness ignores basic auth",
			config:         metricsConfig(withAuth),
			path:           "/healthz",
			setupAuth:      func(*http.Request) {},
			expectedStatus: http.StatusOK,
			expectedBody:   "OK",
		},
		{
			name:           "readiness while disconnected",
			config:         metricsConfig(nil),
			path:           "/readyz",
			setupAuth:      func(*http.Request) {},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "not connected",
		},
		{
			name:           "readiness while connected",
			config:         metricsConfig(nil),
			path:           "/readyz",
			connected:      true,
			setupAuth:      func(*http.Request) {},
			expectedStatus: http.StatusOK,
			expectedBody:   "OK",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			server, err := newMetricsServer(tt.config, reg, func() bool { return tt.connected })
			require.NoError(t, err)
			assert.Nil(t, server.TLSConfig)
			assert.Equal(t, ":9090", server.Addr)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			tt.setupAuth(req)
			rr := httptest.NewRecorder()

			server.Handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
		})
	}
}

func TestNewMetricsServer_TLS(t *testing.T) {
	ca, err := certutil.NewCA()
	require.NoError(t, err)

	caFile, certFile, keyFile, err := ca.WriteFiles(t.TempDir(), "localhost")
	require.NoError(t, err)

	server, err := newMetricsServer(metricsConfig(func(c *MetricsServerConfig) {
		c.TLS = tlsutil.Config{CertFile: certFile, KeyFile: keyFile, CAFile: caFile, ClientAuth: "require"}
	}), prometheus.NewRegistry(), func() bool { return false })
	require.NoError(t, err)
	require.NotNil(t, server.TLSConfig)
	assert.Equal(t, tls.RequireAndVerifyClientCert, server.TLSConfig.ClientAuth)

	_, err = newMetricsServer(metricsConfig(func(c *MetricsServerConfig) {
		c.TLS = tlsutil.Config{CertFile: certFile, KeyFile: "/nonexistent"} //nolint:exhaustruct
	}), prometheus.NewRegistry(), func() bool { return false })
	assert.ErrorIs(t, err, tlsutil.ErrKeyNotFound)
}
