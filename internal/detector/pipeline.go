package detector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/fallguard/internal/alert"
	"github.com/ayusman/fallguard/internal/classifier"
	"github.com/ayusman/fallguard/internal/metrics"
	"github.com/ayusman/fallguard/internal/monitoring"
	"github.com/ayusman/fallguard/internal/sensor"
	"github.com/ayusman/fallguard/internal/status"
	"github.com/ayusman/fallguard/internal/telemetry"
	"github.com/ayusman/fallguard/internal/window"
)

// onSample runs on the source's delivery goroutine. It never blocks on
// inference, alert delivery or the network.
func (d *Detector) onSample(s sensor.Sample) {
	metrics.SamplesTotal.Inc()

	st := d.window.Push(s)

	// Exactly one telemetry line per sample, annotated once a prediction exists.
	if p, ok := d.Probability(); ok {
		d.telemetry.Send(telemetry.FormatPrediction(s, p))
	} else {
		d.telemetry.Send(telemetry.FormatSample(s))
	}
	d.board.Update(func(snap *status.Snapshot) {
		sample := s
		snap.Sample = &sample
	})

	if !st.Ready {
		return
	}
	if d.paused.Load() {
		d.drop(metrics.DropPaused)
		return
	}
	if d.classifier() == nil {
		d.drop(metrics.DropNotLoaded)
		return
	}
	if !d.busy.CompareAndSwap(false, true) {
		d.drop(metrics.DropBusy)
		return
	}

	select {
	case d.jobs <- job{window: st.Snapshot}:
	default:
		d.busy.Store(false)
		d.drop(metrics.DropBusy)
	}
}

func (d *Detector) drop(reason string) {
	d.dropped.Add(1)
	metrics.WindowsDropped.WithLabelValues(reason).Inc()
}

func (d *Detector) worker(jobs <-chan job, done chan<- struct{}) {
	defer close(done)
	for j := range jobs {
		if !d.inCooldown() {
			d.setState(InferenceInFlight)
		}
		d.infer(j)
		d.busy.Store(false)
	}
}

func (d *Detector) infer(j job) {
	cls := d.classifier()
	if cls == nil {
		d.drop(metrics.DropNotLoaded)
		return
	}

	start := time.Now()
	out, err := cls.Run(j.window)
	metrics.InferenceDuration.Observe(time.Since(start).Seconds())
	d.inferred.Add(1)

	if err != nil {
		metrics.InferencesTotal.WithLabelValues(metrics.ResultError).Inc()
		d.board.SetMessage(fmt.Sprintf("Inference error: %v", err))
		monitoring.Logf("Inference error: %v", err)
		d.settle()
		return
	}
	metrics.InferencesTotal.WithLabelValues(metrics.ResultOK).Inc()

	p := out[1]
	d.predMu.Lock()
	d.probability = p
	d.hasPred = true
	d.predMu.Unlock()
	metrics.FallProbability.Set(float64(p))
	d.board.Update(func(s *status.Snapshot) {
		s.Probability = p
		s.HasPrediction = true
	})

	cfg := d.Config()
	now := j.window[len(j.window)-1].Timestamp
	if p > cfg.FallThreshold && d.acceptAlert(now) {
		d.raise(cls, j.window, p, now)
		return
	}
	d.settle()
}

// settle returns to Armed unless the quiet period is still running.
func (d *Detector) settle() {
	if d.inCooldown() {
		d.setState(Cooldown)
		return
	}
	d.setState(Armed)
}

// acceptAlert applies the debounce using sample time in milliseconds.
func (d *Detector) acceptAlert(now int64) bool {
	d.alertMu.Lock()
	defer d.alertMu.Unlock()

	if d.alerted && now-d.lastAlert <= DebounceMs {
		return false
	}
	d.alerted = true
	d.lastAlert = now
	return true
}

func (d *Detector) raise(cls classifier.Classifier, samples []sensor.Sample, p float32, ts int64) {
	d.setState(Alerting)

	ev := alert.Event{
		ID:          uuid.NewString(),
		DeviceID:    d.deviceID,
		OccurredAt:  d.now(),
		Timestamp:   ts,
		Probability: p,
		Config:      d.Config(),
		Backend:     string(cls.Backend()),
		Window:      samples,
		Summary:     window.Summarize(samples),
	}
	d.alertsOut.Add(1)
	metrics.AlertsTotal.Inc()
	monitoring.Logf("Fall detected (probability %.2f)", p)

	occurred := ev.OccurredAt
	d.board.Update(func(s *status.Snapshot) {
		s.FallDetected = true
		s.LastFall = &occurred
	})

	d.alerts.Add(1)
	go func() {
		defer d.alerts.Done()
		ctx, cancel := context.WithTimeout(context.Background(), AlertTimeout)
		defer cancel()
		if err := d.sink.Alert(ctx, ev); err != nil {
			monitoring.Logf("Alert delivery failed: %v", err)
			d.board.SetMessage(fmt.Sprintf("Alert delivery failed: %v", err))
		}
	}()

	d.enterCooldown()
}

func (d *Detector) enterCooldown() {
	d.coolMu.Lock()
	defer d.coolMu.Unlock()

	d.cooling = true
	d.fall.Store(true)
	d.coolSeq++
	seq := d.coolSeq
	if d.coolTime != nil {
		d.coolTime.Stop()
	}
	d.coolTime = time.AfterFunc(d.quiet, func() { d.endCooldown(seq) })
	d.setState(Cooldown)
}

func (d *Detector) endCooldown(seq uint64) {
	d.coolMu.Lock()
	defer d.coolMu.Unlock()

	if seq != d.coolSeq || !d.cooling {
		return
	}
	d.cooling = false
	d.coolTime = nil
	d.fall.Store(false)
	d.board.Update(func(s *status.Snapshot) { s.FallDetected = false })
	d.state.CompareAndSwap(int32(Cooldown), int32(Armed))
	d.board.Update(func(s *status.Snapshot) { s.State = d.State().String() })
}

// endCooldownNow cancels the quiet period and lowers the fall signal.
func (d *Detector) endCooldownNow() {
	d.coolMu.Lock()
	defer d.coolMu.Unlock()

	d.coolSeq++
	if d.coolTime != nil {
		d.coolTime.Stop()
		d.coolTime = nil
	}
	d.cooling = false
	d.fall.Store(false)
}

func (d *Detector) inCooldown() bool {
	d.coolMu.Lock()
	defer d.coolMu.Unlock()
	return d.cooling
}

func (d *Detector) classifier() classifier.Classifier {
	d.clsMu.RLock()
	defer d.clsMu.RUnlock()
	return d.cls
}

// loadClassifier starts loading a classifier for seqLen. A load that
// completes after a newer one was requested is discarded.
func (d *Detector) loadClassifier(seqLen int) {
	d.clsMu.Lock()
	d.generation++
	gen := d.generation
	d.clsMu.Unlock()

	ctx := d.ctx
	d.loads.Add(1)
	go func() {
		defer d.loads.Done()

		cls, err := d.load(ctx, seqLen)

		d.clsMu.Lock()
		stale := gen != d.generation || ctx.Err() != nil
		if !stale && err == nil {
			d.cls = cls
		}
		d.clsMu.Unlock()

		if stale {
			if cls != nil {
				cls.Close()
			}
			return
		}
		if err != nil {
			msg := LoadErrorMessage(err)
			d.board.SetMessage(msg)
			monitoring.Logf("%s", msg)
			return
		}

		msg := fmt.Sprintf("Model loaded (%s)", cls.Backend())
		if fb, ok := cls.(interface{ Fallback() bool }); ok && fb.Fallback() {
			msg = fmt.Sprintf("Model loaded (%s, fallback)", cls.Backend())
		}
		d.board.Update(func(s *status.Snapshot) {
			s.Backend = string(cls.Backend())
			s.Message = msg
		})
		monitoring.Logf("%s", msg)
	}()
}

// closeClassifier drops the current classifier and invalidates pending loads.
func (d *Detector) closeClassifier() error {
	d.clsMu.Lock()
	cls := d.cls
	d.cls = nil
	d.generation++
	d.clsMu.Unlock()

	d.board.Update(func(s *status.Snapshot) { s.Backend = "" })
	if cls == nil {
		return nil
	}
	return cls.Close()
}

// LoadErrorMessage renders a classifier load failure as a status message.
func LoadErrorMessage(err error) string {
	switch {
	case errors.Is(err, classifier.ErrIncompatibleShape):
		return fmt.Sprintf("Model incompatible: %v", err)
	case errors.Is(err, classifier.ErrNotFound), errors.Is(err, classifier.ErrCorrupt):
		return fmt.Sprintf("Model not found or corrupt: %v", err)
	case errors.Is(err, classifier.ErrBackendUnavailable):
		return fmt.Sprintf("No inference backend available: %v", err)
	default:
		return fmt.Sprintf("Model load failed: %v", err)
	}
}
