// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the transport level collectors.
type Metrics struct {
	accepted prometheus.Counter
	open     prometheus.Gauge
	requests prometheus.Counter
	written  prometheus.Counter
}

// NewMetrics creates the transport collectors and registers them with
// reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		accepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "httpsvc",
			Subsystem: "transport",
			Name:      "connections_accepted_total",
			Help:      "Total number of accepted connections",
		}),
		open: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "httpsvc",
			Subsystem: "transport",
			Name:      "connections_open",
			Help:      "Number of connections currently owned by the transport",
		}),
		requests: f.NewCounter(prometheus.CounterOpts{
			Namespace: "httpsvc",
			Subsystem: "transport",
			Name:      "requests_total",
			Help:      "Total number of requests read",
		}),
		written: f.NewCounter(prometheus.CounterOpts{
			Namespace: "httpsvc",
			Subsystem: "transport",
			Name:      "bytes_written_total",
			Help:      "Total number of bytes written to connections",
		}),
	}
}

func (m *Metrics) connectionAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
	m.open.Inc()
}

func (m *Metrics) connectionClosed() {
	if m == nil {
		return
	}
	m.open.Dec()
}

func (m *Metrics) requestRead() {
	if m == nil {
		return
	}
	m.requests.Inc()
}

func (m *Metrics) bytesWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.written.Add(float64(n))
}
