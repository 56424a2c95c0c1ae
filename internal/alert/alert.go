// Package alert delivers accepted fall alerts to their side effects.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/fallguard/internal/config"
	"github.com/ayusman/fallguard/internal/metrics"
	"github.com/ayusman/fallguard/internal/sensor"
	"github.com/ayusman/fallguard/internal/store"
	"github.com/ayusman/fallguard/internal/window"
)

// Event is one accepted fall alert.
type Event struct {
	ID          string
	DeviceID    string
	OccurredAt  time.Time
	Timestamp   int64 // monotonic ms of the newest sample in Window
	Probability float32
	Config      config.Detection
	Backend     string
	Window      []sensor.Sample
	Summary     window.Summary
}

// Record converts the event into its stored form.
func (e Event) Record() *store.FallEvent {
	return &store.FallEvent{
		ID:               e.ID,
		OccurredAt:       e.OccurredAt,
		TimestampMs:      e.Timestamp,
		Probability:      e.Probability,
		Threshold:        e.Config.FallThreshold,
		SequenceLength:   e.Config.SequenceLength,
		SamplingPeriodMs: e.Config.SamplingPeriodMs,
		Backend:          e.Backend,
		PeakMagnitude:    e.Summary.Peak,
		MeanMagnitude:    e.Summary.Mean,
		StdMagnitude:     e.Summary.StdDev,
		Samples:          e.Window,
	}
}

// Sink performs the side effect of an alert. Alert may block.
type Sink interface {
	Alert(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Alert(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Named is implemented by sinks that report their name in errors and metrics.
type Named interface {
	Name() string
}

// NameOf returns the sink's name, or its type when it has none.
func NameOf(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}

// SinkError is a failure of one sink inside a Multi.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return e.Sink + ": " + e.Err.Error()
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// Multi runs every sink concurrently, each on ctx. A slow or failing sink
// does not hold up the rest; the failures are joined in sink order.
type Multi []Sink

func (m Multi) Alert(ctx context.Context, ev Event) error {
	errs := make([]error, len(m))
	var g errgroup.Group
	for i, s := range m {
		i, s := i, s
		g.Go(func() error {
			if err := s.Alert(ctx, ev); err != nil {
				name := NameOf(s)
				metrics.AlertSinkErrors.WithLabelValues(name).Inc()
				errs[i] = &SinkError{Sink: name, Err: err}
			}
			return nil
		})
	}
	g.Wait()
	return errors.Join(errs...)
}
