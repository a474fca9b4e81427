package storage

import (
	"context"
	"io"
	"time"

	"github.com/ngds/geobridge/internal/ports/output"
)

// Instrumented records storage metrics around another style source.
type Instrumented struct {
	next    output.StyleSource
	metrics output.MetricsCollector
}

// NewInstrumented wraps next.
func NewInstrumented(next output.StyleSource, metrics output.MetricsCollector) *Instrumented {
	return &Instrumented{next: next, metrics: metrics}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	s.metrics.IncStorageOperations(op, err == nil)
	s.metrics.ObserveStorageDuration(op, time.Since(start))
}

// List implements output.StyleSource.
func (s *Instrumented) List(ctx context.Context) (objects []output.StyleObject, err error) {
	defer func(start time.Time) { s.observe("list", start, err) }(time.Now())
	return s.next.List(ctx)
}

// GetReader implements output.StyleSource. The reported duration covers
// opening the reader, not reading it.
func (s *Instrumented) GetReader(ctx context.Context, key string) (r io.ReadCloser, err error) {
	defer func(start time.Time) { s.observe("get", start, err) }(time.Now())
	return s.next.GetReader(ctx, key)
}

// Exists implements output.StyleSource.
func (s *Instrumented) Exists(ctx context.Context, key string) (ok bool, err error) {
	defer func(start time.Time) { s.observe("exists", start, err) }(time.Now())
	return s.next.Exists(ctx, key)
}

var _ output.StyleSource = (*Instrumented)(nil)
