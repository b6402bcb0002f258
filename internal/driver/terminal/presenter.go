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

package terminal

import (
	"fmt"
	"io"
	"sync"

	"github.com/alexandremahdhaoui/remoteshell/internal/controller"
	"github.com/alexandremahdhaoui/remoteshell/internal/types"
)

var _ controller.Presenter = &Presenter{}

// Presenter writes display events to a line-oriented output.
type Presenter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPresenter returns a Presenter writing to out.
func NewPresenter(out io.Writer) *Presenter {
	return &Presenter{out: out}
}

// AppendText writes text unmodified. Every kind goes to the same stream.
func (p *Presenter) AppendText(_ types.TextKind, text string) {
	p.write(text)
}

// ShowError writes "[title] message".
func (p *Presenter) ShowError(title, message string) {
	p.write(fmt.Sprintf("[%s] %s\n", title, message))
}

func (p *Presenter) write(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, _ = io.WriteString(p.out, s)
}
