package router

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts dispatched commands by outcome.
type Metrics struct {
	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates command metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smsbridge_commands_total",
				Help: "Total dispatched commands",
			},
			[]string{"command", "outcome"}, // outcome is "ok" or a failure kind
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smsbridge_command_duration_seconds",
				Help:    "Command dispatch duration",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
			},
			[]string{"command"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.commands, m.duration)
	}
	return m
}

func (m *Metrics) observe(command string, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, outcome).Inc()
	m.duration.WithLabelValues(command).Observe(elapsed.Seconds())
}
