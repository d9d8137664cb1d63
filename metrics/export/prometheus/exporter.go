package prometheus

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authguard "github.com/coreledger/authguard"
	"github.com/coreledger/authguard/metrics/export/internaldefs"
)

// ErrNilSource is returned when no metrics source is supplied.
var ErrNilSource = errors.New("nil metrics source")

type metricsSource interface {
	MetricsSnapshot() authguard.MetricsSnapshot
	AuditDropped() uint64
}

// Collector adapts engine metric snapshots to the Prometheus
// collection model. It reads a fresh snapshot on every scrape and is
// safe for concurrent use.
type Collector struct {
	source       metricsSource
	counterDescs []*prometheus.Desc
	histoDescs   []*prometheus.Desc
	droppedDesc  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector reading from the engine.
func NewCollector(engine *authguard.Engine) (*Collector, error) {
	return NewCollectorFromSource(engine)
}

// NewCollectorFromSource creates a collector from a custom snapshot
// source, mainly for tests.
func NewCollectorFromSource(source metricsSource) (*Collector, error) {
	if source == nil {
		return nil, ErrNilSource
	}

	c := &Collector{
		source:       source,
		counterDescs: make([]*prometheus.Desc, 0, len(internaldefs.CounterDefs)),
		histoDescs:   make([]*prometheus.Desc, 0, len(internaldefs.HistogramDefs)),
		droppedDesc: prometheus.NewDesc(
			"authguard_audit_dropped_total",
			"Dropped audit events due to dispatcher backpressure.",
			nil, nil,
		),
	}
	for _, def := range internaldefs.CounterDefs {
		c.counterDescs = append(c.counterDescs, prometheus.NewDesc(def.Name, def.Help, nil, nil))
	}
	for _, def := range internaldefs.HistogramDefs {
		c.histoDescs = append(c.histoDescs, prometheus.NewDesc(def.Name, def.Help, nil, nil))
	}
	return c, nil
}

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, desc := range c.counterDescs {
		ch <- desc
	}
	for _, desc := range c.histoDescs {
		ch <- desc
	}
	ch <- c.droppedDesc
}

// Collect implements [prometheus.Collector].
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source.MetricsSnapshot()

	for i, def := range internaldefs.CounterDefs {
		ch <- prometheus.MustNewConstMetric(
			c.counterDescs[i], prometheus.CounterValue, float64(snapshot.Counters[def.ID]))
	}
	for i, def := range internaldefs.HistogramDefs {
		raw := internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID])
		cumulative := internaldefs.CumulativeBuckets(raw)

		buckets := make(map[float64]uint64, len(internaldefs.HistogramBounds))
		for j, bound := range internaldefs.HistogramBounds {
			buckets[bound] = cumulative[j]
		}
		count := cumulative[len(cumulative)-1]
		// The engine records sample counts only, not a running sum.
		ch <- prometheus.MustNewConstHistogram(c.histoDescs[i], count, 0, buckets)
	}
	ch <- prometheus.MustNewConstMetric(
		c.droppedDesc, prometheus.CounterValue, float64(c.source.AuditDropped()))
}

// Handler registers the collector in a fresh registry and returns the
// scrape handler, for callers that do not run their own registry.
func (c *Collector) Handler() (http.Handler, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(c); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}
