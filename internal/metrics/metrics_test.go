package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Queries.WithLabelValues("ok").Inc()
	m.Refreshes.WithLabelValues("error").Add(2)
	m.CatalogRows.WithLabelValues("versions").Set(42)
	m.QueryDuration.Observe(0.01)

	if got := testutil.ToFloat64(m.Queries.WithLabelValues("ok")); got != 1 {
		t.Errorf("queries ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Refreshes.WithLabelValues("error")); got != 2 {
		t.Errorf("refresh error = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.CatalogRows.WithLabelValues("versions")); got != 42 {
		t.Errorf("catalog rows = %v, want 42", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 4 {
		t.Errorf("gathered %d families, want 4", len(families))
	}
}
