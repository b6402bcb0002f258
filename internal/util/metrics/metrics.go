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

// Package metrics records session and command outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "remoteshell"

	// OutcomeSuccess labels an operation that completed without error.
	OutcomeSuccess = "success"
)

// Recorder observes the lifecycle of a remote session.
type Recorder interface {
	// ConnectAttempt records the outcome of one Connect call.
	ConnectAttempt(outcome string)
	// CommandFinished records the outcome and wall time of one Execute call.
	CommandFinished(outcome string, duration time.Duration)
	// SetConnected records whether a session handle is currently held.
	SetConnected(connected bool)
}

// ------------------------------------------------------- NOOP ---------------------------------------------------- //

// NewNoop returns a Recorder that discards everything.
func NewNoop() Recorder {
	return noop{}
}

type noop struct{}

func (noop) ConnectAttempt(string)                 {}
func (noop) CommandFinished(string, time.Duration) {}
func (noop) SetConnected(bool)                     {}

// ---------------------------------------------------- PROMETHEUS ------------------------------------------------- //

// Prometheus is a Recorder backed by prometheus collectors.
type Prometheus struct {
	connects        *prometheus.CounterVec
	commands        *prometheus.CounterVec
	commandDuration prometheus.Histogram
	connected       prometheus.Gauge
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{ //nolint:exhaustruct
			Namespace: namespace,
			Name:      "connect_total",
			Help:      "Number of connection attempts by outcome.",
		}, []string{"outcome"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{ //nolint:exhaustruct
			Namespace: namespace,
			Name:      "command_total",
			Help:      "Number of executed commands by outcome.",
		}, []string{"outcome"}),
		commandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{ //nolint:exhaustruct
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Wall time of executed commands.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{ //nolint:exhaustruct
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while a session is connected.",
		}),
	}

	for _, c := range []prometheus.Collector{p.connects, p.commands, p.commandDuration, p.connected} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// ConnectAttempt implements Recorder.
func (p *Prometheus) ConnectAttempt(outcome string) {
	p.connects.WithLabelValues(outcome).Inc()
}

// CommandFinished implements Recorder.
func (p *Prometheus) CommandFinished(outcome string, duration time.Duration) {
	p.commands.WithLabelValues(outcome).Inc()
	p.commandDuration.Observe(duration.Seconds())
}

// SetConnected implements Recorder.
func (p *Prometheus) SetConnected(connected bool) {
	if connected {
		p.connected.Set(1)
		return
	}

	p.connected.Set(0)
}
