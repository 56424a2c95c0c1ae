package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/fallguard/internal/alert"
	"github.com/ayusman/fallguard/internal/classifier"
	"github.com/ayusman/fallguard/internal/config"
	"github.com/ayusman/fallguard/internal/monitoring"
	"github.com/ayusman/fallguard/internal/sensor"
	"github.com/ayusman/fallguard/internal/status"
	"github.com/ayusman/fallguard/internal/telemetry"
	"github.com/ayusman/fallguard/internal/window"
)

// Timing constants.
const (
	// DebounceMs is the minimum sample-time gap between two accepted alerts.
	DebounceMs = 2000
	// DefaultQuietPeriod is how long the fall signal stays raised after an alert.
	DefaultQuietPeriod = 3000 * time.Millisecond
	// AlertTimeout bounds a single delivery to the alert sink.
	AlertTimeout = 30 * time.Second
)

// Loader loads a classifier for windows of seqLen samples. It is called on
// its own goroutine and may take a while.
type Loader func(ctx context.Context, seqLen int) (classifier.Classifier, error)

// Options configures a Detector. Source and Load are required.
type Options struct {
	Source    sensor.Source
	Load      Loader
	Config    config.Detection
	Telemetry telemetry.Sender
	Sink      alert.Sink
	Board     *status.Board
	DeviceID  string

	// QuietPeriod defaults to DefaultQuietPeriod.
	QuietPeriod time.Duration
	// Now supplies the wall-clock time recorded with alerts.
	Now func() time.Time
}

type job struct {
	window []sensor.Sample
}

// Detector runs the sample → window → inference → alert pipeline.
// All exported methods are safe for concurrent use.
type Detector struct {
	source    sensor.Source
	load      Loader
	telemetry telemetry.Sender
	sink      alert.Sink
	board     *status.Board
	deviceID  string
	quiet     time.Duration
	now       func() time.Time

	window *window.Buffer
	state  atomic.Int32
	paused atomic.Bool
	busy   atomic.Bool

	// mu serializes Start, Stop, Reconfigure.
	mu         sync.Mutex
	running    bool
	ctx        context.Context
	cancel     context.CancelFunc
	jobs       chan job
	workerDone chan struct{}

	cfgMu sync.RWMutex
	cfg   config.Detection

	clsMu      sync.RWMutex
	cls        classifier.Classifier
	generation uint64
	loads      sync.WaitGroup

	predMu      sync.RWMutex
	probability float32
	hasPred     bool

	alertMu   sync.Mutex
	alerted   bool
	lastAlert int64

	coolMu   sync.Mutex
	cooling  bool
	coolSeq  uint64
	coolTime *time.Timer
	fall     atomic.Bool

	alerts    sync.WaitGroup
	dropped   atomic.Uint64
	inferred  atomic.Uint64
	alertsOut atomic.Uint64
}

// New creates a Detector. It does not start the source.
func New(opts Options) *Detector {
	cfg := opts.Config
	if cfg == (config.Detection{}) {
		cfg = config.DefaultDetection()
	}
	cfg = cfg.Clamp()

	d := &Detector{
		source:    opts.Source,
		load:      opts.Load,
		telemetry: opts.Telemetry,
		sink:      opts.Sink,
		board:     opts.Board,
		deviceID:  opts.DeviceID,
		quiet:     opts.QuietPeriod,
		now:       opts.Now,
		cfg:       cfg,
		window:    window.New(cfg.SequenceLength),
	}
	if d.telemetry == nil {
		d.telemetry = telemetry.Nop{}
	}
	if d.sink == nil {
		d.sink = alert.LogSink{}
	}
	if d.board == nil {
		d.board = status.NewBoard()
	}
	if d.quiet <= 0 {
		d.quiet = DefaultQuietPeriod
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.source != nil {
		d.source.OnError(d.sourceStopped)
	}
	d.board.Update(func(s *status.Snapshot) {
		s.State = Idle.String()
		s.Config = cfg
	})
	return d
}

// Start begins sample delivery and loads the classifier concurrently.
// A sensor registration failure is returned and leaves the detector idle.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}
	if d.source == nil || d.load == nil {
		return errors.New("detector: source and loader are required")
	}

	cfg := d.Config()
	d.ctx, d.cancel = context.WithCancel(ctx)
	d.window.Reconfigure(cfg.SequenceLength)
	d.resetLocked()
	d.startWorkerLocked()
	d.setState(BufferFilling)

	d.loadClassifier(cfg.SequenceLength)

	if err := d.source.Start(cfg.SamplingPeriod(), d.onSample); err != nil {
		d.cancel()
		d.stopWorkerLocked()
		d.loads.Wait()
		d.closeClassifier()
		d.setState(Idle)
		d.board.SetMessage(fmt.Sprintf("Sensor registration failed: %v", err))
		monitoring.Logf("Sensor registration failed: %v", err)
		return err
	}

	d.running = true
	monitoring.Logf("Detection pipeline started (window %d, period %dms, threshold %.2f)",
		cfg.SequenceLength, cfg.SamplingPeriodMs, cfg.FallThreshold)
	return nil
}

// Stop halts the source, the inference worker and pending alert deliveries,
// then releases the classifier and telemetry. Safe to call more than once.
func (d *Detector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.running = false

	var errs []error
	if err := d.source.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop source: %w", err))
	}
	d.cancel()
	d.stopWorkerLocked()
	d.loads.Wait()
	d.endCooldownNow()
	if err := d.closeClassifier(); err != nil {
		errs = append(errs, fmt.Errorf("close classifier: %w", err))
	}
	d.alerts.Wait()
	if err := d.telemetry.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close telemetry: %w", err))
	}

	d.setState(Idle)
	monitoring.Logf("Detection pipeline stopped")
	return errors.Join(errs...)
}

// sourceStopped publishes a source that ended delivery on its own. Reports
// from a session that has since been restarted are ignored.
func (d *Detector) sourceStopped(err error) {
	if d.source.IsRunning() {
		return
	}
	monitoring.Logf("Sensor stopped: %v", err)
	d.board.SetMessage(fmt.Sprintf("Sensor stopped: %v", err))
}

// Reconfigure applies a new configuration atomically. While running, the
// source is stopped, the in-flight inference finishes, the window, debounce
// and prediction are reset and the source restarts at the new period. A new
// sequence length also reloads the classifier.
func (d *Detector) Reconfigure(cfg config.Detection) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	old := d.Config()
	d.cfgMu.Lock()
	d.cfg = cfg
	d.cfgMu.Unlock()
	d.board.Update(func(s *status.Snapshot) { s.Config = cfg })

	if !d.running {
		d.window.Reconfigure(cfg.SequenceLength)
		d.resetLocked()
		d.board.SetMessage("Configuration updated")
		return nil
	}

	if err := d.source.Stop(); err != nil {
		monitoring.Logf("Error stopping source: %v", err)
	}
	d.stopWorkerLocked()
	d.window.Reconfigure(cfg.SequenceLength)
	d.resetLocked()

	if cfg.SequenceLength != old.SequenceLength {
		d.closeClassifier()
		d.loadClassifier(cfg.SequenceLength)
	}

	d.startWorkerLocked()
	d.setState(BufferFilling)

	if err := d.source.Start(cfg.SamplingPeriod(), d.onSample); err != nil {
		d.running = false
		d.cancel()
		d.stopWorkerLocked()
		d.loads.Wait()
		d.closeClassifier()
		d.setState(Idle)
		d.board.SetMessage(fmt.Sprintf("Sensor registration failed: %v", err))
		return err
	}

	d.board.SetMessage("Configuration updated")
	monitoring.Logf("Configuration updated (window %d, period %dms, threshold %.2f)",
		cfg.SequenceLength, cfg.SamplingPeriodMs, cfg.FallThreshold)
	return nil
}

// Config returns the active configuration.
func (d *Detector) Config() config.Detection {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

// State returns the current state.
func (d *Detector) State() State {
	return State(d.state.Load())
}

// Probability returns the latest fall score and whether one exists yet.
func (d *Detector) Probability() (float32, bool) {
	d.predMu.RLock()
	defer d.predMu.RUnlock()
	return d.probability, d.hasPred
}

// FallDetected reports whether a fall was accepted within the quiet period.
func (d *Detector) FallDetected() bool {
	return d.fall.Load()
}

// Pause stops inference without stopping the source. Telemetry keeps flowing.
func (d *Detector) Pause() {
	if d.paused.CompareAndSwap(false, true) {
		d.board.Update(func(s *status.Snapshot) { s.Paused = true })
		monitoring.Logf("Monitoring paused")
	}
}

// Resume restarts inference after Pause.
func (d *Detector) Resume() {
	if d.paused.CompareAndSwap(true, false) {
		d.board.Update(func(s *status.Snapshot) { s.Paused = false })
		monitoring.Logf("Monitoring resumed")
	}
}

// Paused reports whether inference is paused.
func (d *Detector) Paused() bool {
	return d.paused.Load()
}

// Loaded reports whether a classifier is ready.
func (d *Detector) Loaded() bool {
	return d.classifier() != nil
}

// Running reports whether the detector has been started and not stopped.
func (d *Detector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Buffered returns the number of samples in the window.
func (d *Detector) Buffered() int {
	return d.window.Len()
}

// Stats are pipeline counters since New.
type Stats struct {
	Inferences uint64 `json:"inferences"`
	Dropped    uint64 `json:"dropped"`
	Alerts     uint64 `json:"alerts"`
}

// Stats returns the pipeline counters.
func (d *Detector) Stats() Stats {
	return Stats{
		Inferences: d.inferred.Load(),
		Dropped:    d.dropped.Load(),
		Alerts:     d.alertsOut.Load(),
	}
}

// Board returns the status board the detector publishes to.
func (d *Detector) Board() *status.Board {
	return d.board
}

func (d *Detector) setState(s State) {
	d.state.Store(int32(s))
	d.board.Update(func(snap *status.Snapshot) { snap.State = s.String() })
}

// resetLocked clears the debounce, the cached prediction and the fall signal.
func (d *Detector) resetLocked() {
	d.alertMu.Lock()
	d.alerted = false
	d.lastAlert = 0
	d.alertMu.Unlock()

	d.predMu.Lock()
	d.probability = 0
	d.hasPred = false
	d.predMu.Unlock()

	d.busy.Store(false)
	d.endCooldownNow()
	d.board.Update(func(s *status.Snapshot) {
		s.Probability = 0
		s.HasPrediction = false
		s.FallDetected = false
	})
}

func (d *Detector) startWorkerLocked() {
	d.jobs = make(chan job, 1)
	d.workerDone = make(chan struct{})
	go d.worker(d.jobs, d.workerDone)
}

// stopWorkerLocked waits for the in-flight inference, if any. The source
// must already be stopped.
func (d *Detector) stopWorkerLocked() {
	if d.jobs == nil {
		return
	}
	close(d.jobs)
	<-d.workerDone
	d.jobs = nil
	d.busy.Store(false)
}
