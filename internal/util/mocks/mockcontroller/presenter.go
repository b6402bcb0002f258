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

package mockcontroller

import (
	"github.com/alexandremahdhaoui/remoteshell/internal/controller"
	"github.com/alexandremahdhaoui/remoteshell/internal/types"
	"github.com/stretchr/testify/mock"
)

var _ controller.Presenter = &MockPresenter{}

// MockPresenter is a mock of controller.Presenter.
type MockPresenter struct {
	mock.Mock
}

// NewMockPresenter returns a MockPresenter asserting its expectations on test cleanup.
func NewMockPresenter(t interface {
	mock.TestingT
	Cleanup(func())
},
) *MockPresenter {
	m := &MockPresenter{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockPresenter) AppendText(kind types.TextKind, text string) {
	m.Called(kind, text)
}

func (m *MockPresenter) ShowError(title, message string) {
	m.Called(title, message)
}
