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

// Package tlsutil builds the server TLS configuration of the metrics endpoint.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var (
	ErrCertNotFound      = errors.New("certificate file not found")
	ErrKeyNotFound       = errors.New("key file not found")
	ErrCANotFound        = errors.New("CA file not found")
	ErrInvalidClientAuth = errors.New("invalid clientAuth value")
	ErrLoadCertFailed    = errors.New("failed to load certificate")
	ErrParseCAFailed     = errors.New("failed to parse CA certificate")
)

// Config holds the TLS configuration parameters. TLS is enabled when CertFile is set.
type Config struct {
	CertFile string `json:"certFile,omitempty"`
	KeyFile  string `json:"keyFile,omitempty"`
	// CAFile verifies client certificates. Required unless ClientAuth is "none".
	CAFile string `json:"caFile,omitempty"`
	// ClientAuth is one of "none" (default), "request" or "require".
	ClientAuth string `json:"clientAuth,omitempty"`
}

// Enabled reports whether TLS is configured.
func (c Config) Enabled() bool {
	return c.CertFile != ""
}

// BuildTLSConfig builds a tls.Config from config. It returns nil, nil when TLS is disabled.
func BuildTLSConfig(config Config) (*tls.Config, error) {
	if !config.Enabled() {
		return nil, nil //nolint:nilnil
	}

	if _, err := os.Stat(config.CertFile); err != nil {
		return nil, errors.Join(fmt.Errorf("%s: %w", config.CertFile, err), ErrCertNotFound)
	}

	if _, err := os.Stat(config.KeyFile); err != nil {
		return nil, errors.Join(fmt.Errorf("%s: %w", config.KeyFile, err), ErrKeyNotFound)
	}

	clientAuth, err := parseClientAuth(config.ClientAuth)
	if err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(config.CertFile, config.KeyFile)
	if err != nil {
		return nil, errors.Join(err, ErrLoadCertFailed)
	}

	tlsConfig := &tls.Config{ //nolint:exhaustruct
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		ClientAuth:   clientAuth,
	}

	if clientAuth == tls.NoClientCert {
		return tlsConfig, nil
	}

	caBytes, err := os.ReadFile(config.CAFile)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("%q: %w", config.CAFile, err), ErrCANotFound)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, ErrParseCAFailed
	}

	tlsConfig.ClientCAs = pool

	return tlsConfig, nil
}

func parseClientAuth(clientAuth string) (tls.ClientAuthType, error) {
	switch clientAuth {
	case "", "none":
		return tls.NoClientCert, nil
	case "request":
		return tls.VerifyClientCertIfGiven, nil
	case "require":
		return tls.RequireAndVerifyClientCert, nil
	default:
		return 0, fmt.Errorf("%w: %q (valid values: none, request, require)", ErrInvalidClientAuth, clientAuth)
	}
}
