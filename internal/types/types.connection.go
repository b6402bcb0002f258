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

package types

import (
	"errors"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the port used when ConnectionParameters.Port is left empty.
const DefaultPort = 22

var (
	errHostCannotBeEmpty     = errors.New("host cannot be empty")
	errUsernameCannotBeEmpty = errors.New("username cannot be empty")
	errPortOutOfRange        = errors.New("port must be between 1 and 65535")
)

// ------------------------------------------------- CONNECTION PARAMETERS ----------------------------------------- //

// ConnectionParameters holds everything needed to open one password-authenticated session.
//
// The struct is passed by value and never persisted.
type ConnectionParameters struct {
	// Host is the hostname or IP address of the remote server.
	Host string
	// Username is the remote account name.
	Username string
	// Secret is the password. It may be empty if the remote server permits it.
	Secret string
	// Port is the remote TCP port. Zero means DefaultPort.
	Port int
}

// EffectivePort returns Port, or DefaultPort when Port is zero.
func (p ConnectionParameters) EffectivePort() int {
	if p.Port == 0 {
		return DefaultPort
	}

	return p.Port
}

// Address returns the "host:port" dial address.
func (p ConnectionParameters) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.EffectivePort()))
}

// Validate checks the client-side constraints. The secret is not validated.
func (p ConnectionParameters) Validate() error {
	var errs []error

	if strings.TrimSpace(p.Host) == "" {
		errs = append(errs, errHostCannotBeEmpty)
	}

	if strings.TrimSpace(p.Username) == "" {
		errs = append(errs, errUsernameCannotBeEmpty)
	}

	if port := p.EffectivePort(); port < 1 || port > 65535 {
		errs = append(errs, errPortOutOfRange)
	}

	if len(errs) == 0 {
		return nil
	}

	return errors.Join(append(errs, ErrInvalidParameters)...)
}
