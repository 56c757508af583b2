// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package streaming

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the collectors updated by sessions.
type Metrics struct {
	sessions *prometheus.CounterVec
	bytes    prometheus.Counter
	handoffs prometheus.Counter
	chunks   prometheus.Counter
}

// NewMetrics creates the streaming collectors and registers them with
// reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sessions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "httpsvc",
				Subsystem: "streaming",
				Name:      "sessions_total",
				Help:      "Total number of finished streaming sessions",
			},
			[]string{"outcome"},
		),
		bytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "httpsvc",
			Subsystem: "streaming",
			Name:      "bytes_sent_total",
			Help:      "Total number of response body bytes written",
		}),
		handoffs: f.NewCounter(prometheus.CounterOpts{
			Namespace: "httpsvc",
			Subsystem: "streaming",
			Name:      "handoffs_total",
			Help:      "Total number of sessions started on the worker executor",
		}),
		chunks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "httpsvc",
			Subsystem: "streaming",
			Name:      "chunks_total",
			Help:      "Total number of body chunks written",
		}),
	}
}

func (m *Metrics) finished(outcome string) {
	m.sessions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) chunkSent(n int) {
	m.chunks.Inc()
	m.bytes.Add(float64(n))
}

func (m *Metrics) handedOff() {
	m.handoffs.Inc()
}
