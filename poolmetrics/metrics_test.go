package poolmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCollectorRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, "mysqlcore", "pool")

	c.OpenConnections.Set(3)
	c.IdleConnections.Set(2)
	c.WaitersQueued.Set(1)
	c.WaitTimeouts.Inc()
	c.Cancellations.Inc()
	c.Evictions.Add(2)

	if got := testutil.ToFloat64(c.OpenConnections); got != 3 {
		t.Fatalf("OpenConnections = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.Evictions); got != 2 {
		t.Fatalf("Evictions = %v, want 2", got)
	}

	count, err := testutil.GatherAndCount(reg)
	if err != nil {
		t.Fatal(err)
	}
	if count != 6 {
		t.Fatalf("got %d registered metric families, want 6", count)
	}
}

func TestNewCollectorPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg, "mysqlcore", "pool")

	defer func() {
		if recover() == nil {
			t.Fatal("expected registering the same namespace/subsystem twice to panic")
		}
	}()
	NewCollector(reg, "mysqlcore", "pool")
}
