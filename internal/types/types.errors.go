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
	"strings"
)

// Failures are reported by joining the underlying cause with exactly one of these sentinels, i.e.
// errors.Join(cause, ErrProtocol). Match them with errors.Is or KindOf.
var (
	ErrInvalidParameters    = errors.New("invalid connection parameters")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrConnectionTimedOut   = errors.New("connection timed out")
	ErrProtocol             = errors.New("ssh protocol error")
	ErrUnknownFailure       = errors.New("unknown failure")
	ErrNotConnected         = errors.New("not connected")
	ErrCommandTimedOut      = errors.New("command timed out")
	ErrBusy                 = errors.New("a command is already running")
)

// ErrorKind is the typed classification of a failure.
type ErrorKind string

const (
	KindNone                 ErrorKind = ""
	KindInvalidParameters    ErrorKind = "InvalidParameters"
	KindAuthenticationFailed ErrorKind = "AuthenticationFailed"
	KindConnectionTimedOut   ErrorKind = "ConnectionTimedOut"
	KindProtocolError        ErrorKind = "ProtocolError"
	KindUnknownFailure       ErrorKind = "UnknownFailure"
	KindNotConnected         ErrorKind = "NotConnected"
	KindCommandTimedOut      ErrorKind = "CommandTimedOut"
	KindBusy                 ErrorKind = "Busy"
)

// kinds is ordered: the first matching sentinel wins.
var kinds = []struct {
	sentinel error
	kind     ErrorKind
}{
	{ErrBusy, KindBusy},
	{ErrNotConnected, KindNotConnected},
	{ErrInvalidParameters, KindInvalidParameters},
	{ErrAuthenticationFailed, KindAuthenticationFailed},
	{ErrConnectionTimedOut, KindConnectionTimedOut},
	{ErrCommandTimedOut, KindCommandTimedOut},
	{ErrProtocol, KindProtocolError},
	{ErrUnknownFailure, KindUnknownFailure},
}

// KindOf returns the ErrorKind carried by err, or KindNone if err is nil or unclassified.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}

	return KindNone
}

// Detail returns the messages of the causes joined with a sentinel, without the sentinels themselves.
func Detail(err error) string {
	if err == nil {
		return ""
	}

	parts := make([]string, 0)
	collectDetail(err, &parts)

	return strings.Join(parts, ": ")
}

func collectDetail(err error, parts *[]string) {
	for _, k := range kinds {
		if err == k.sentinel { //nolint:errorlint // identity check against our own sentinels.
			return
		}
	}

	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			collectDetail(e, parts)
		}

		return
	}

	*parts = append(*parts, err.Error())
}
