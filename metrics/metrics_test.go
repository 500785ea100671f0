package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	Init()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	body := w.Body.String()
	expected := []string{
		"upq_pool_live_connections",
		"upq_pool_acquire_latency_seconds",
		"upq_pool_reconnects_total",
		"upq_router_node_healthy",
		"upq_router_circuit_state",
		"upq_router_replica_lag_seconds",
		"upq_query_total",
		"upq_query_latency_seconds",
	}
	for _, name := range expected {
		if !strings.Contains(body, name) {
			t.Errorf("expected metric %q not found in /metrics output", name)
		}
	}
}

func TestLabeledMetricsAppearAfterUse(t *testing.T) {
	Init()

	PoolLiveConnections.WithLabelValues("node-a").Set(3)
	PoolReconnects.WithLabelValues("node-a").Inc()
	QueryTotal.WithLabelValues("node-a", "ok").Inc()
	QueryLatency.WithLabelValues("node-a").Observe(0.002)
	RouterNodeHealthy.WithLabelValues("node-a").Set(1)
	RouterCircuitState.WithLabelValues("node-a").Set(0)
	RouterReplicaLag.WithLabelValues("node-a").Set(0.05)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, req)

	body := w.Body.String()
	if !strings.Contains(body, `node="node-a"`) {
		t.Error("expected node=\"node-a\" label in /metrics output")
	}
}
