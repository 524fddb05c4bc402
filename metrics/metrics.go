// Package metrics provides Prometheus metrics for PLMXML parsing
package metrics

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Collector records parse measurements. It implements plmxml.Recorder.
type Collector struct {
	ParseTotal          *prometheus.CounterVec
	ParseDuration       prometheus.Histogram
	ElementsTotal       *prometheus.CounterVec
	DiagnosticsTotal    *prometheus.CounterVec
	OccurrencesResolved prometheus.Gauge
}

// NewCollector registers the parse metrics on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		ParseTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plmxml_parse_total",
				Help: "Total number of document parses by outcome",
			},
			[]string{"outcome"},
		),
		ParseDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "plmxml_parse_duration_seconds",
				Help:    "Time taken to read and resolve a document",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),
		ElementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plmxml_elements_total",
				Help: "PLMXML namespace elements read, by local name",
			},
			[]string{"element"},
		),
		DiagnosticsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plmxml_diagnostics_total",
				Help: "Diagnostics reported, by code",
			},
			[]string{"code"},
		),
		OccurrencesResolved: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "plmxml_occurrences_resolved",
				Help: "Distinct occurrences resolved by the last successful parse",
			},
		),
	}
}

// ObserveElement counts one element
func (c *Collector) ObserveElement(local string) {
	c.ElementsTotal.WithLabelValues(local).Inc()
}

// ObserveDiagnostic counts one diagnostic
func (c *Collector) ObserveDiagnostic(code string) {
	c.DiagnosticsTotal.WithLabelValues(code).Inc()
}

// ObserveParse records a finished parse
func (c *Collector) ObserveParse(outcome string, elapsed time.Duration, occurrences int) {
	c.ParseTotal.WithLabelValues(outcome).Inc()
	c.ParseDuration.Observe(elapsed.Seconds())
	if outcome == "ok" {
		c.OccurrencesResolved.Set(float64(occurrences))
	}
}

// Gather returns the plmxml_ metric families of g
func Gather(g prometheus.Gatherer) ([]*dto.MetricFamily, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}
	out := families[:0]
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "plmxml_") {
			out = append(out, mf)
		}
	}
	return out, nil
}

// WriteText writes the plmxml_ families of g in the text exposition format
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := Gather(g)
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metric family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
