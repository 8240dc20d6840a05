// Package telemetry exposes graph health as Prometheus gauges.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"emergent-kg/backend/internal/metrics"
)

// Collector holds the gauges on a private registry so tests can build as
// many as they like.
type Collector struct {
	registry *prometheus.Registry

	Metric    *prometheus.GaugeVec
	Composite *prometheus.GaugeVec
	Nodes     prometheus.Gauge
	Edges     prometheus.Gauge
	Appends   *prometheus.CounterVec
	Refreshes *prometheus.CounterVec
}

// NewCollector registers every gauge under namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Metric: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_metric",
			Help:      "Current value of a graph health metric",
		}, []string{"metric"}),
		Composite: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_composite",
			Help:      "Current composite score",
		}, []string{"composite"}),
		Nodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_nodes",
			Help:      "Number of nodes in the graph",
		}),
		Edges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "graph_edges",
			Help:      "Number of edges in the graph",
		}),
		Appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appends_total",
			Help:      "Collaborator appends by kind and outcome",
		}, []string{"kind", "status"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Gauge refreshes by outcome",
		}, []string{"status"}),
	}
	c.registry.MustRegister(c.Metric, c.Composite, c.Nodes, c.Edges, c.Appends, c.Refreshes)
	return c
}

// Observe sets every gauge from r.
func (c *Collector) Observe(r metrics.Report) {
	for m, v := range r.Values() {
		c.Metric.WithLabelValues(string(m)).Set(v)
	}
	c.Metric.WithLabelValues("edge_span_raw").Set(r.EdgeSpan.Raw)
	c.Composite.WithLabelValues("legacy").Set(r.Legacy)
	c.Composite.WithLabelValues("current").Set(r.Current)
	c.Nodes.Set(float64(r.Nodes))
	c.Edges.Set(float64(r.Edges))
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
