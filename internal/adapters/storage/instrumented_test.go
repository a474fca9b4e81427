package storage

import (
	"context"
	"testing"
	"time"
)

type countingMetrics struct {
	ops       map[string]int
	failures  map[string]int
	durations int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{ops: map[string]int{}, failures: map[string]int{}}
}

func (m *countingMetrics) IncActionCount(string, bool) {}
func (m *countingMetrics) ObserveActionDuration(string, time.Duration) {}
func (m *countingMetrics) AddRowsSpatialized(string, int64) {}
func (m *countingMetrics) IncCatalogRequests(string, int) {}
func (m *countingMetrics) ObserveCatalogDuration(string, time.Duration) {}
func (m *countingMetrics) ObserveStorageDuration(string, time.Duration) { m.durations++ }
func (m *countingMetrics) IncStorageOperations(op string, success bool) {
	m.ops[op]++
	if !success {
		m.failures[op]++
	}
}

func TestInstrumentedRecordsOperations(t *testing.T) {
	dir := t.TempDir()
	writeStyleFiles(t, dir, map[string]string{"points.sld": "<sld/>"})

	metrics := newCountingMetrics()
	s := NewInstrumented(NewLocalStorage(dir), metrics)
	ctx := context.Background()

	if _, err := s.List(ctx); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if ok, err := s.Exists(ctx, "points"); err != nil || !ok {
		t.Fatalf("Exists() = %v, %v", ok, err)
	}
	r, err := s.GetReader(ctx, "points.sld")
	if err != nil {
		t.Fatalf("GetReader() error = %v", err)
	}
	_ = r.Close()

	if _, err := s.GetReader(ctx, "missing.sld"); err == nil {
		t.Fatal("GetReader() of a missing style should fail")
	}

	want := map[string]int{"list": 1, "exists": 1, "get": 2}
	for op, n := range want {
		if metrics.ops[op] != n {
			t.Errorf("ops[%s] = %d, want %d", op, metrics.ops[op], n)
		}
	}
	if metrics.failures["get"] != 1 || metrics.failures["list"] != 0 {
		t.Errorf("failures = %v", metrics.failures)
	}
	if metrics.durations != 4 {
		t.Errorf("durations = %d, want 4", metrics.durations)
	}
}
