// Package exporter writes the result of a check run as Prometheus gauges in
// the node_exporter textfile format.
package exporter

import (
	"codeberg.org/mutker/bwcheck/internal/check"
	"codeberg.org/mutker/bwcheck/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bandwidth"

type metrics struct {
	registry  *prometheus.Registry
	percent   *prometheus.GaugeVec
	status    *prometheus.GaugeVec
	used      *prometheus.GaugeVec
	licensed  *prometheus.GaugeVec
	age       *prometheus.GaugeVec
	threshold *prometheus.GaugeVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		percent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "percent",
			Help:      "Graph value of the last check, percent of licensed bandwidth.",
		}, []string{"host"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "check_status",
			Help:      "Status of the last check (0 OK, 1 WARNING, 2 CRITICAL, 3 UNKNOWN).",
		}, []string{"host"}),
		used: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "used_mbps",
			Help:      "Bandwidth reported by the last overutilization event.",
		}, []string{"host"}),
		licensed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "licensed_mbps",
			Help:      "Licensed bandwidth reported by the last overutilization event.",
		}, []string{"host"}),
		age: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_age_minutes",
			Help:      "Age of the last overutilization event.",
		}, []string{"host"}),
		threshold: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "threshold_percent",
			Help:      "Configured alert thresholds.",
		}, []string{"host", "level"}),
	}

	m.registry.MustRegister(m.percent, m.status, m.used, m.licensed, m.age, m.threshold)
	return m
}

// WriteTextfile writes the gauges for r to path. The file is replaced
// atomically. Gauges that the run could not determine are left out.
func WriteTextfile(path, host string, r check.Result, t check.Thresholds) error {
	m := newMetrics()

	m.status.WithLabelValues(host).Set(float64(r.Status))
	if r.Graph.Known {
		m.percent.WithLabelValues(host).Set(r.Graph.Value)
	}
	if r.Event != nil {
		m.used.WithLabelValues(host).Set(float64(r.Event.UsedMbps))
		m.licensed.WithLabelValues(host).Set(float64(r.Event.LicensedMbps))
		if r.Err == nil {
			m.age.WithLabelValues(host).Set(float64(r.AgeMinutes))
		}
	}
	m.threshold.WithLabelValues(host, "warning").Set(float64(t.Warning))
	m.threshold.WithLabelValues(host, "critical").Set(float64(t.Critical))

	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.New().Wrap(errors.ErrExportMetrics, err)
	}

	return nil
}
