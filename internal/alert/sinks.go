package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayusman/fallguard/internal/hook"
	"github.com/ayusman/fallguard/internal/monitoring"
	"github.com/ayusman/fallguard/internal/store"
)

// LogSink writes alerts to the log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Alert(_ context.Context, ev Event) error {
	monitoring.Logf("FALL DETECTED: probability=%.2f threshold=%.2f peak=%.1f backend=%s",
		ev.Probability, ev.Config.FallThreshold, ev.Summary.Peak, ev.Backend)
	return nil
}

// StoreSink records alerts in the fall history.
type StoreSink struct {
	Falls *store.FallRepository
}

func (StoreSink) Name() string { return "store" }

func (s StoreSink) Alert(_ context.Context, ev Event) error {
	if err := s.Falls.Create(ev.Record()); err != nil {
		return fmt.Errorf("record fall: %w", err)
	}
	return nil
}

// HookSink runs every hook subscribed to the fall event.
type HookSink struct {
	Hooks    *hook.Manager
	Executor *hook.Executor
	DeviceID string
}

func (HookSink) Name() string { return "hook" }

func (s HookSink) Alert(ctx context.Context, ev Event) error {
	hooks := s.Hooks.ForEvent(hook.EventFall)
	if len(hooks) == 0 {
		return nil
	}

	params, err := json.Marshal(map[string]any{
		"id":                 ev.ID,
		"threshold":          ev.Config.FallThreshold,
		"sequence_length":    ev.Config.SequenceLength,
		"sampling_period_ms": ev.Config.SamplingPeriodMs,
		"peak_magnitude":     ev.Summary.Peak,
		"backend":            ev.Backend,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	device := ev.DeviceID
	if device == "" {
		device = s.DeviceID
	}

	var errs []error
	for _, h := range hooks {
		req := &hook.Request{
			Event:       hook.EventFall,
			Device:      device,
			Probability: ev.Probability,
			OccurredAt:  ev.OccurredAt,
			Params:      params,
		}
		if _, err := s.Executor.Execute(ctx, h, req); err != nil {
			errs = append(errs, fmt.Errorf("hook %s: %w", h.Manifest.Name, err))
		}
	}
	return errors.Join(errs...)
}
