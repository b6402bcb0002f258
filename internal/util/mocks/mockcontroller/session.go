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

// Package mockcontroller holds testify mocks of the controller package interfaces.
package mockcontroller

import (
	"context"

	"github.com/alexandremahdhaoui/remoteshell/internal/controller"
	"github.com/alexandremahdhaoui/remoteshell/internal/types"
	"github.com/stretchr/testify/mock"
)

var _ controller.Session = &MockSession{}

// MockSession is a mock of controller.Session.
type MockSession struct {
	mock.Mock
}

// NewMockSession returns a MockSession asserting its expectations on test cleanup.
func NewMockSession(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockSession {
	m := &MockSession{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockSession) Connect(ctx context.Context, params types.ConnectionParameters) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockSession) Disconnect(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockSession) Execute(ctx context.Context, command string) (types.CommandResult, error) {
	args := m.Called(ctx, command)
	return args.Get(0).(types.CommandResult), args.Error(1) //nolint:forcetypeassert
}

func (m *MockSession) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}
