// Package metrics exports scan results in the Prometheus text format, for the
// node_exporter textfile collector.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lao-tseu-is-alive/go-auth-scythe/internal/authlog"
)

const namespace = "authscythe"

// Metrics holds the gauges describing one scan.
type Metrics struct {
	registry            *prometheus.Registry
	LinesTotal          prometheus.Gauge
	FailedLoginsTotal   prometheus.Gauge
	SourceAddresses     prometheus.Gauge
	TargetUsernames     prometheus.Gauge
	SuspiciousAddresses prometheus.Gauge
	SuspiciousFailures  *prometheus.GaugeVec
}

// NewMetrics registers every gauge on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LinesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Lines read from the auth log in the last scan",
		}),
		FailedLoginsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "failed_logins_total",
			Help:      "Failed password lines found in the last scan",
		}),
		SourceAddresses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_addresses",
			Help:      "Distinct source addresses with failed logins",
		}),
		TargetUsernames: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_usernames",
			Help:      "Distinct usernames targeted by failed logins",
		}),
		SuspiciousAddresses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "suspicious_addresses",
			Help:      "Source addresses at or above the failure threshold",
		}),
		SuspiciousFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "suspicious_failed_logins",
			Help:      "Failed logins per suspicious source address",
		}, []string{"address"}),
	}
	m.registry.MustRegister(
		m.LinesTotal,
		m.FailedLoginsTotal,
		m.SourceAddresses,
		m.TargetUsernames,
		m.SuspiciousAddresses,
		m.SuspiciousFailures,
	)
	return m
}

// Observe sets every gauge from rep. Only suspicious addresses get a labelled series.
func (m *Metrics) Observe(rep *authlog.Report) {
	m.LinesTotal.Set(float64(rep.Lines))
	m.FailedLoginsTotal.Set(float64(rep.Matched))
	m.SourceAddresses.Set(float64(len(rep.IPCounts)))
	m.TargetUsernames.Set(float64(len(rep.UserCounts)))
	m.SuspiciousAddresses.Set(float64(len(rep.SuspiciousIPs)))
	m.SuspiciousFailures.Reset()
	for _, ip := range rep.SuspiciousIPs {
		m.SuspiciousFailures.WithLabelValues(ip).Set(float64(rep.IPCounts[ip]))
	}
}

// WriteTextfile writes the registry to path; the file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}

// WriteTextfile is a shorthand for NewMetrics, Observe and WriteTextfile.
func WriteTextfile(path string, rep *authlog.Report) error {
	m := NewMetrics()
	m.Observe(rep)
	return m.WriteTextfile(path)
}
