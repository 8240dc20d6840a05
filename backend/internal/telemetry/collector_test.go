package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emergent-kg/backend/internal/metrics"
)

func TestCollector_Observe(t *testing.T) {
	c := NewCollector("kg")
	r := metrics.Report{Nodes: 4, Edges: 3, CSER: 0.5, DCI: 0.25, TagConvergence: 0.2, ConvergenceHealth: 0.8}
	r.EdgeSpan.Raw = 2
	r.EdgeSpan.Normalized = 2.0 / 3.0
	r.Rescore(metrics.DefaultComposites())

	c.Observe(r)

	assert.Equal(t, 0.5, testutil.ToFloat64(c.Metric.WithLabelValues("cser")))
	assert.Equal(t, 0.25, testutil.ToFloat64(c.Metric.WithLabelValues("dci")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.Metric.WithLabelValues("edge_span_raw")))
	assert.Equal(t, r.Current, testutil.ToFloat64(c.Composite.WithLabelValues("current")))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.Nodes))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.Edges))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("kg")
	c.Observe(metrics.Report{Nodes: 1})
	c.Appends.WithLabelValues("node", "ok").Inc()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "kg_graph_nodes 1"))
	assert.True(t, strings.Contains(body, `kg_appends_total{kind="node",status="ok"} 1`))
}

func TestCollectors_AreIndependent(t *testing.T) {
	a := NewCollector("kg")
	b := NewCollector("kg")
	a.Nodes.Set(7)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Nodes))
}
