// Package metrics exposes Prometheus counters for budget recomputation,
// month rollover and history export.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Export statuses.
const (
	ExportWritten   = "written"
	ExportDuplicate = "duplicate"
	ExportFailed    = "failed"
)

// Metrics holds all Prometheus metrics of the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Registry is exposed so the /metrics endpoint can serve it.
	Registry *prometheus.Registry

	recomputations *prometheus.CounterVec
	rollovers      *prometheus.CounterVec
	historyExports *prometheus.CounterVec
	publishes      *prometheus.CounterVec
}

// New creates a private registry so tests can build as many instances as they need.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		recomputations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_recomputations_total",
				Help: "Budget metric computations, by memo cache result.",
			},
			[]string{"cache"},
		),
		rollovers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_rollovers_total",
				Help: "Month rollover checks, by outcome.",
			},
			[]string{"outcome"},
		),
		historyExports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_history_exports_total",
				Help: "Archived months handled by the history worker, by status.",
			},
			[]string{"status"},
		),
		publishes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "budget_archive_publishes_total",
				Help: "Archived-month events published to the broker.",
			},
			[]string{"status"},
		),
	}
}

// IncrRecomputation counts a metrics computation; hit tells whether it was served from the memo cache.
func (m *Metrics) IncrRecomputation(hit bool) {
	if m == nil {
		return
	}
	label := "miss"
	if hit {
		label = "hit"
	}
	m.recomputations.WithLabelValues(label).Inc()
}

// IncrRollover counts one period check at start-up, labelled with the
// rollover outcome name.
func (m *Metrics) IncrRollover(outcome string) {
	if m == nil {
		return
	}
	m.rollovers.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrHistoryExport(status string) {
	if m == nil {
		return
	}
	m.historyExports.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrPublish(ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.publishes.WithLabelValues(status).Inc()
}

// HistoryExports returns the export counter for status, for tests and debugging.
func (m *Metrics) HistoryExports(status string) prometheus.Counter {
	return m.historyExports.WithLabelValues(status)
}

// Rollovers returns the rollover counter for outcome.
func (m *Metrics) Rollovers(outcome string) prometheus.Counter {
	return m.rollovers.WithLabelValues(outcome)
}

// Summary gathers every counter series that has been incremented, keyed as
// name{label="value"}. Short-lived commands log it on exit since nothing
// scrapes them.
func (m *Metrics) Summary() (map[string]float64, error) {
	if m == nil {
		return nil, nil
	}
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			if v := metric.GetCounter().GetValue(); v > 0 {
				out[seriesName(mf.GetName(), metric.GetLabel())] = v
			}
		}
	}
	return out, nil
}

func seriesName(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	pairs := make([]string, 0, len(labels))
	for _, l := range labels {
		pairs = append(pairs, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}
