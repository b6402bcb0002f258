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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alexandremahdhaoui/remoteshell/internal/adapter"
	"github.com/alexandremahdhaoui/remoteshell/internal/types"
	"github.com/alexandremahdhaoui/remoteshell/internal/util/logging"
	"github.com/alexandremahdhaoui/remoteshell/internal/util/ssh"
	"github.com/alexandremahdhaoui/remoteshell/internal/util/tlsutil"
	"github.com/spf13/pflag"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

const (
	// ConfigPathEnvKey is the environment variable key for the config file path.
	ConfigPathEnvKey = "REMOTESHELL_CONFIG_PATH"
	// SecretEnvKey is the environment variable key for the connection secret.
	SecretEnvKey = "REMOTESHELL_SECRET"

	flagConfig         = "config"
	flagHost           = "host"
	flagUser           = "user"
	flagPort           = "port"
	flagConnectTimeout = "connect-timeout"
	flagCommandTimeout = "command-timeout"
	flagLogLevel       = "log-level"
	flagLogFile        = "log-file"
	flagDevelopment    = "dev"
	flagMetricsPort    = "metrics-port"
)

// Config holds the configuration of remoteshell.
type Config struct {
	// Connection holds the defaults used by /connect.
	Connection ConnectionConfig `json:"connection"`
	Timeouts   TimeoutsConfig   `json:"timeouts"`
	Terminal   TerminalConfig   `json:"terminal"`
	Logging    LoggingConfig    `json:"logging"`

	// MetricsServer is disabled when Port is 0.
	MetricsServer MetricsServerConfig `json:"metricsServer"`
}

type ConnectionConfig struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Port     int    `json:"port"`
}

type TimeoutsConfig struct {
	// Connect bounds TCP dial, banner and handshake, e.g. "30s".
	Connect metav1.Duration `json:"connect"`
	// Command bounds one remote command, e.g. "30s".
	Command metav1.Duration `json:"command"`
}

type TerminalConfig struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type LoggingConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `json:"level"`
	// File is the JSON log file. Empty disables file logging.
	File        string `json:"file"`
	Development bool   `json:"development"`
}

type MetricsServerConfig struct {
	Port int    `json:"port"`
	Path string `json:"path"`

	LivenessPath  string `json:"livenessPath"`
	ReadinessPath string `json:"readinessPath"`

	// Username and Password, when both set, protect the metrics endpoint with basic auth.
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// TLS serves the endpoint over HTTPS when certFile is set.
	TLS tlsutil.Config `json:"tls,omitempty"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Connection: ConnectionConfig{Port: types.DefaultPort},
		Timeouts: TimeoutsConfig{
			Connect: metav1.Duration{Duration: adapter.DefaultConnectTimeout},
			Command: metav1.Duration{Duration: adapter.DefaultCommandTimeout},
		},
		Terminal: TerminalConfig{
			Type:   ssh.DefaultTerminalType,
			Width:  ssh.DefaultTerminalWidth,
			Height: ssh.DefaultTerminalHeight,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  logging.DefaultFile,
		},
		MetricsServer: MetricsServerConfig{
			Path:          "/metrics",
			LivenessPath:  "/healthz",
			ReadinessPath: "/readyz",
		},
	}
}

// LoadConfig loads the YAML or JSON configuration at configPath on top of the defaults. An empty configPath
// returns the defaults.
func LoadConfig(configPath string) (*Config, error) {
	config := NewDefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	return config, nil
}

// bindFlags registers the flags overriding the configuration file.
func bindFlags(fs *pflag.FlagSet) {
	fs.String(flagConfig, "", fmt.Sprintf("path to the configuration file (env %s)", ConfigPathEnvKey))
	fs.String(flagHost, "", "default remote host")
	fs.StringP(flagUser, "u", "", "default remote username")
	fs.IntP(flagPort, "p", 0, "default remote port")
	fs.Duration(flagConnectTimeout, 0, "connection timeout")
	fs.Duration(flagCommandTimeout, 0, "command timeout")
	fs.String(flagLogLevel, "", "console log level (debug, info, warn, error)")
	fs.String(flagLogFile, "", "JSON log file, empty string disables it")
	fs.Bool(flagDevelopment, false, "development logging")
	fs.Int(flagMetricsPort, 0, "port of the prometheus metrics server, 0 disables it")
}

// configPath returns the --config flag, or the ConfigPathEnvKey environment variable.
func configPath(fs *pflag.FlagSet) string {
	if path, err := fs.GetString(flagConfig); err == nil && path != "" {
		return path
	}

	return os.Getenv(ConfigPathEnvKey)
}

// applyFlags overrides c with every flag explicitly set on fs.
func (c *Config) applyFlags(fs *pflag.FlagSet) error {
	var errs []error

	str := func(name string, dst *string) {
		if !fs.Changed(name) {
			return
		}

		v, err := fs.GetString(name)
		errs = append(errs, err)
		*dst = v
	}

	integer := func(name string, dst *int) {
		if !fs.Changed(name) {
			return
		}

		v, err := fs.GetInt(name)
		errs = append(errs, err)
		*dst = v
	}

	duration := func(name string, dst *metav1.Duration) {
		if !fs.Changed(name) {
			return
		}

		v, err := fs.GetDuration(name)
		errs = append(errs, err)
		dst.Duration = v
	}

	str(flagHost, &c.Connection.Host)
	str(flagUser, &c.Connection.Username)
	integer(flagPort, &c.Connection.Port)
	duration(flagConnectTimeout, &c.Timeouts.Connect)
	duration(flagCommandTimeout, &c.Timeouts.Command)
	str(flagLogLevel, &c.Logging.Level)
	str(flagLogFile, &c.Logging.File)
	integer(flagMetricsPort, &c.MetricsServer.Port)

	if fs.Changed(flagDevelopment) {
		v, err := fs.GetBool(flagDevelopment)
		errs = append(errs, err)
		c.Logging.Development = v
	}

	return errors.Join(errs...)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Connection.Port < 0 || c.Connection.Port > 65535 {
		errs = append(errs, errors.New("connection.port must be between 0 and 65535"))
	}

	if c.Timeouts.Connect.Duration <= 0 {
		errs = append(errs, errors.New("timeouts.connect must be positive"))
	}

	if c.Timeouts.Command.Duration <= 0 {
		errs = append(errs, errors.New("timeouts.command must be positive"))
	}

	if c.Terminal.Width < 0 || c.Terminal.Height < 0 {
		errs = append(errs, errors.New("terminal dimensions cannot be negative"))
	}

	if _, err := c.Logging.slogLevel(); err != nil {
		errs = append(errs, err)
	}

	if c.MetricsServer.Port < 0 || c.MetricsServer.Port > 65535 {
		errs = append(errs, errors.New("metricsServer.port must be between 0 and 65535"))
	}

	if c.MetricsServer.Port != 0 {
		paths := map[string]string{
			"path":          c.MetricsServer.Path,
			"livenessPath":  c.MetricsServer.LivenessPath,
			"readinessPath": c.MetricsServer.ReadinessPath,
		}

		seen := make(map[string]bool, len(paths))

		for _, name := range []string{"path", "livenessPath", "readinessPath"} {
			path := paths[name]
			if !strings.HasPrefix(path, "/") {
				errs = append(errs, fmt.Errorf("metricsServer.%s must start with /", name))
			} else if seen[path] {
				errs = append(errs, fmt.Errorf("metricsServer.%s %q is already in use", name, path))
			}

			seen[path] = true
		}
	}

	if (c.MetricsServer.Username == "") != (c.MetricsServer.Password == "") {
		errs = append(errs, errors.New("metricsServer.username and metricsServer.password must be set together"))
	}

	if tls := c.MetricsServer.TLS; tls.Enabled() && tls.KeyFile == "" {
		errs = append(errs, errors.New("metricsServer.tls.keyFile is required when certFile is set"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

func (l LoggingConfig) slogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level %q: %w", l.Level, err)
	}

	return level, nil
}

// defaults returns the connection parameters /connect starts from. The secret is never part of the file.
func (c *Config) defaults() types.ConnectionParameters {
	return types.ConnectionParameters{
		Host:     c.Connection.Host,
		Username: c.Connection.Username,
		Port:     c.Connection.Port,
	}
}
