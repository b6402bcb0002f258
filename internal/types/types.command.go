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

// ExitStatusUnknown is reported when the remote side closed the channel without sending an exit status.
const ExitStatusUnknown = -1

// ---------------------------------------------------- COMMAND RESULT --------------------------------------------- //

// CommandResult is the outcome of one remote command invocation.
//
// A non-zero ExitStatus is ordinary result data, not an error.
type CommandResult struct {
	// Stdout is the decoded standard output stream.
	Stdout string
	// Stderr is the decoded standard error stream.
	Stderr string
	// ExitStatus is the numeric status reported by the remote shell.
	ExitStatus int
}

// ------------------------------------------------------ TEXT KIND ------------------------------------------------ //

// TextKind tells a presentation layer what an appended text chunk represents.
type TextKind string

const (
	// TextKindInfo is a status line, e.g. "Connected to 10.0.0.5".
	TextKindInfo TextKind = "info"
	// TextKindEcho is the command as it was sent.
	TextKindEcho TextKind = "echo"
	// TextKindStdout is the remote standard output.
	TextKindStdout TextKind = "stdout"
	// TextKindStderr is the remote standard error, already prefixed.
	TextKindStderr TextKind = "stderr"
)
