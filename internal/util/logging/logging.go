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

// Package logging builds the process logger of the remoteshell binary.
//
// Records fan out to a human-readable console handler and, optionally, to a rotated JSON file. The result is
// exposed as a logr.Logger that callers inject explicitly; no global logger is set.
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/go-logr/logr"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// DefaultFile is the path of the JSON log file.
	DefaultFile = "logs/remoteshell.log"

	fileMaxSizeMB  = 5
	fileMaxBackups = 10
)

// Options configures the logger behavior.
type Options struct {
	// Development reports the caller and enables debug records on the console.
	Development bool

	// Level sets the minimum console log level. Defaults to slog.LevelInfo. The file always records debug.
	Level slog.Level

	// Console receives human-readable records. Defaults to os.Stderr.
	Console io.Writer

	// File is the JSON log file path. Empty disables file logging.
	File string
}

// DefaultOptions returns the default logging options.
func DefaultOptions() Options {
	return Options{
		Development: false,
		Level:       slog.LevelInfo,
		Console:     os.Stderr,
		File:        DefaultFile,
	}
}

// Setup builds a logr.Logger from opts. The returned func flushes and closes the log file.
func Setup(opts Options) (logr.Logger, func() error) {
	if opts.Console == nil {
		opts.Console = os.Stderr
	}

	level := opts.Level
	if opts.Development && level > slog.LevelDebug {
		level = slog.LevelDebug
	}

	console := charmlog.NewWithOptions(opts.Console, charmlog.Options{ //nolint:exhaustruct
		Level:           charmlog.Level(level),
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		ReportCaller:    opts.Development,
		Prefix:          "remoteshell",
	})

	handlers := []slog.Handler{console}
	closeFn := func() error { return nil }

	if opts.File != "" {
		// lumberjack creates the parent directory on first write.
		file := &lumberjack.Logger{ //nolint:exhaustruct
			Filename:   opts.File,
			MaxSize:    fileMaxSizeMB,
			MaxBackups: fileMaxBackups,
		}

		handlers = append(handlers, slog.NewJSONHandler(file, &slog.HandlerOptions{ //nolint:exhaustruct
			AddSource: true,
			Level:     slog.LevelDebug,
		}))
		closeFn = file.Close
	}

	return logr.FromSlogHandler(slogmulti.Fanout(handlers...)), closeFn
}
