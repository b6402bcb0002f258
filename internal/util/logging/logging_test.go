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

package logging_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alexandremahdhaoui/remoteshell/internal/util/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSetup verifies records reach the console by level and the JSON file at debug.
func TestSetup(t *testing.T) {
	var console bytes.Buffer

	file := filepath.Join(t.TempDir(), "logs", "remoteshell.log")

	log, closeFn := logging.Setup(logging.Options{
		Level:   slog.LevelInfo,
		Console: &console,
		File:    file,
	})

	log.WithName("session").Info("connected", "host", "10.0.0.5")
	log.V(1).Info("executing command", "command", "ls")
	log.Error(errors.New("boom"), "connect failed")

	require.NoError(t, closeFn())

	assert.Contains(t, console.String(), "connected")
	assert.Contains(t, console.String(), "10.0.0.5")
	assert.Contains(t, console.String(), "connect failed")
	assert.NotContains(t, console.String(), "executing command")

	f, err := os.Open(file)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	messages := make([]string, 0)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var record map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		messages = append(messages, record["msg"].(string))
	}

	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"connected", "executing command", "connect failed"}, messages)
}

// TestSetup_Development verifies debug records reach the console in development mode.
func TestSetup_Development(t *testing.T) {
	var console bytes.Buffer

	log, closeFn := logging.Setup(logging.Options{Development: true, Console: &console})

	log.V(1).Info("executing command")
	require.NoError(t, closeFn())

	assert.Contains(t, console.String(), "executing command")
}

// TestDefaultOptions verifies the defaults the binary starts from.
func TestDefaultOptions(t *testing.T) {
	opts := logging.DefaultOptions()

	assert.False(t, opts.Development)
	assert.Equal(t, slog.LevelInfo, opts.Level)
	assert.Equal(t, os.Stderr, opts.Console)
	assert.Equal(t, logging.DefaultFile, opts.File)
}
