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

package tlsutil_test

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexandremahdhaoui/remoteshell/internal/util/certutil"
	"github.com/alexandremahdhaoui/remoteshell/internal/util/tlsutil"
)

type files struct {
	ca, cert, key string
}

func writeFiles(t *testing.T) files {
	t.Helper()

	ca, err := certutil.NewCA()
	require.NoError(t, err)

	caFile, certFile, keyFile, err := ca.WriteFiles(t.TempDir(), "localhost", "127.0.0.1")
	require.NoError(t, err)

	return files{ca: caFile, cert: certFile, key: keyFile}
}

func TestBuildTLSConfig_Disabled(t *testing.T) {
	tlsConfig, err := tlsutil.BuildTLSConfig(tlsutil.Config{}) //nolint:exhaustruct
	assert.NoError(t, err)
	assert.Nil(t, tlsConfig)
}

func TestBuildTLSConfig(t *testing.T) {
	f := writeFiles(t)

	for _, tt := range []struct {
		name       string
		config     tlsutil.Config
		clientAuth tls.ClientAuthType
		withCAs    bool
	}{
		{
			name:       "server only",
			config:     tlsutil.Config{CertFile: f.cert, KeyFile: f.key}, //nolint:exhaustruct
			clientAuth: tls.NoClientCert,
		},
		{
			name:       "explicit none ignores the CA",
			config:     tlsutil.Config{CertFile: f.cert, KeyFile: f.key, ClientAuth: "none", CAFile: "/nonexistent"},
			clientAuth: tls.NoClientCert,
		},
		{
			name:       "request",
			config:     tlsutil.Config{CertFile: f.cert, KeyFile: f.key, CAFile: f.ca, ClientAuth: "request"},
			clientAuth: tls.VerifyClientCertIfGiven,
			withCAs:    true,
		},
		{
			name:       "require",
			config:     tlsutil.Config{CertFile: f.cert, KeyFile: f.key, CAFile: f.ca, ClientAuth: "require"},
			clientAuth: tls.RequireAndVerifyClientCert,
			withCAs:    true,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			tlsConfig, err := tlsutil.BuildTLSConfig(tt.config)
			require.NoError(t, err)
			require.NotNil(t, tlsConfig)

			assert.Len(t, tlsConfig.Certificates, 1)
			assert.Equal(t, uint16(tls.VersionTLS12), tlsConfig.MinVersion)
			assert.Equal(t, tt.clientAuth, tlsConfig.ClientAuth)
			assert.Equal(t, tt.withCAs, tlsConfig.ClientCAs != nil)
		})
	}
}

func TestBuildTLSConfig_Errors(t *testing.T) {
	f := writeFiles(t)

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))

	for _, tt := range []struct {
		name     string
		config   tlsutil.Config
		expected error
	}{
		{
			name:     "missing certificate",
			config:   tlsutil.Config{CertFile: "/nonexistent/tls.crt", KeyFile: f.key}, //nolint:exhaustruct
			expected: tlsutil.ErrCertNotFound,
		},
		{
			name:     "missing key",
			config:   tlsutil.Config{CertFile: f.cert, KeyFile: "/nonexistent/tls.key"}, //nolint:exhaustruct
			expected: tlsutil.ErrKeyNotFound,
		},
		{
			name:     "invalid client auth",
			config:   tlsutil.Config{CertFile: f.cert, KeyFile: f.key, ClientAuth: "sometimes"}, //nolint:exhaustruct
			expected: tlsutil.ErrInvalidClientAuth,
		},
		{
			name:     "mismatched key pair",
			config:   tlsutil.Config{CertFile: f.cert, KeyFile: garbage}, //nolint:exhaustruct
			expected: tlsutil.ErrLoadCertFailed,
		},
		{
			name:     "missing CA",
			config:   tlsutil.Config{CertFile: f.cert, KeyFile: f.key, ClientAuth: "require"}, //nolint:exhaustruct
			expected: tlsutil.ErrCANotFound,
		},
		{
			name:     "unparsable CA",
			config:   tlsutil.Config{CertFile: f.cert, KeyFile: f.key, CAFile: garbage, ClientAuth: "require"},
			expected: tlsutil.ErrParseCAFailed,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			tlsConfig, err := tlsutil.BuildTLSConfig(tt.config)
			assert.ErrorIs(t, err, tt.expected)
			assert.Nil(t, tlsConfig)
		})
	}
}
