// Package metrics exports run totals in the Prometheus text format, for the
// node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/snapetech/xtream-m3u/internal/catalog"
)

const namespace = "xtream_m3u"

// ClassTotals are the counters of one catalog class for one run.
type ClassTotals struct {
	Entries         int
	Added           int
	Removed         int
	Skipped         int
	FailedFetches   int
	NoEpisodes      int
	UnexpectedShape int
}

// Metrics holds a private registry so only run metrics end up in the textfile.
type Metrics struct {
	reg *prometheus.Registry

	entries    *prometheus.GaugeVec
	added      *prometheus.GaugeVec
	removed    *prometheus.GaugeVec
	skipped    *prometheus.GaugeVec
	failed     *prometheus.GaugeVec
	noEpisodes prometheus.Gauge
	unexpected prometheus.Gauge
	duration   prometheus.Gauge
	lastRun    prometheus.Gauge
	success    prometheus.Gauge
}

func classGauge(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, []string{"class"})
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

// New returns Metrics with every collector registered.
func New() *Metrics {
	m := &Metrics{
		reg:        prometheus.NewRegistry(),
		entries:    classGauge("entries", "Entries written in the last run."),
		added:      classGauge("entries_added", "Entries added since the previous run."),
		removed:    classGauge("entries_removed", "Entries removed since the previous run."),
		skipped:    classGauge("records_skipped", "Malformed records skipped in the last run."),
		failed:     classGauge("fetches_failed", "Category or series fetches that failed in the last run."),
		noEpisodes: gauge("series_without_episodes", "Series whose detail had no episodes."),
		unexpected: gauge("series_unexpected_shape", "Series whose episodes used the flat array shape."),
		duration:   gauge("run_duration_seconds", "Wall time of the last run."),
		lastRun:    gauge("last_run_timestamp_seconds", "Unix time the last run finished."),
		success:    gauge("last_run_success", "1 if the last run finished without a fatal error."),
	}
	m.reg.MustRegister(m.entries, m.added, m.removed, m.skipped, m.failed,
		m.noEpisodes, m.unexpected, m.duration, m.lastRun, m.success)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveClass records the totals of class.
func (m *Metrics) ObserveClass(class catalog.Class, t ClassTotals) {
	l := string(class)
	m.entries.WithLabelValues(l).Set(float64(t.Entries))
	m.added.WithLabelValues(l).Set(float64(t.Added))
	m.removed.WithLabelValues(l).Set(float64(t.Removed))
	m.skipped.WithLabelValues(l).Set(float64(t.Skipped))
	m.failed.WithLabelValues(l).Set(float64(t.FailedFetches))
	if class == catalog.ClassSeries {
		m.noEpisodes.Set(float64(t.NoEpisodes))
		m.unexpected.Set(float64(t.UnexpectedShape))
	}
}

// ObserveRun records the outcome of the whole run.
func (m *Metrics) ObserveRun(started, finished time.Time, err error) {
	m.duration.Set(finished.Sub(started).Seconds())
	m.lastRun.Set(float64(finished.Unix()))
	if err != nil {
		m.success.Set(0)
	} else {
		m.success.Set(1)
	}
}

// WriteFile writes the registry to path atomically.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
