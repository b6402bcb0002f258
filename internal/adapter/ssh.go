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

package adapter

import (
	"context"

	"github.com/alexandremahdhaoui/remoteshell/internal/types"
	"github.com/alexandremahdhaoui/remoteshell/internal/util/ssh"
)

// NewSSHDialer adapts an ssh.Dialer to the Dialer interface.
func NewSSHDialer(d *ssh.Dialer) Dialer {
	return sshDialer{d: d}
}

type sshDialer struct {
	d *ssh.Dialer
}

// Dial implements Dialer.
func (s sshDialer) Dial(ctx context.Context, params types.ConnectionParameters) (Conn, error) { //nolint:ireturn
	conn, err := s.d.Dial(ctx, params)
	if err != nil {
		return nil, err
	}

	return conn, nil
}
