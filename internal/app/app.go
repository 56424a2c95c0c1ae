// Package app wires the fall detection pipeline together: it builds, owns and
// tears down the store, sample source, classifier loader, detector, telemetry
// client, alert sinks and status server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/fallguard/internal/alert"
	"github.com/ayusman/fallguard/internal/classifier"
	"github.com/ayusman/fallguard/internal/config"
	"github.com/ayusman/fallguard/internal/detector"
	"github.com/ayusman/fallguard/internal/hook"
	"github.com/ayusman/fallguard/internal/metrics"
	"github.com/ayusman/fallguard/internal/monitoring"
	"github.com/ayusman/fallguard/internal/sensor"
	"github.com/ayusman/fallguard/internal/server"
	"github.com/ayusman/fallguard/internal/status"
	"github.com/ayusman/fallguard/internal/store"
	"github.com/ayusman/fallguard/internal/telemetry"
)

// DefaultBaudRate is used for serial sensors when the config leaves it unset.
const DefaultBaudRate = 115200

// ErrNoSource is returned by New when neither a serial port nor a replay file
// is configured and no source was supplied.
var ErrNoSource = errors.New("no sample source configured")

// ErrNoModel is returned by New when no model path is configured and no
// loader was supplied.
var ErrNoModel = errors.New("no model configured")

// Config holds the application inputs. The File drives everything; the other
// fields replace the component File would otherwise build.
type Config struct {
	File *config.File

	Store  *store.Store
	Source sensor.Source
	Loader detector.Loader
	// Sinks are delivered to in addition to the configured ones.
	Sinks     []alert.Sink
	StaticDir string

	QuietPeriod time.Duration
}

// App is the running fall detector and everything it depends on.
type App struct {
	file *config.File

	store     *store.Store
	ownsStore bool
	board     *status.Board
	telemetry telemetry.Sender
	client    *telemetry.Client
	hooks     *hook.Manager
	detector  *detector.Detector
	server    *server.Server
	closers   []io.Closer

	closeOnce sync.Once
	closeErr  error
}

// New builds the application from cfg. Nothing is started until Run.
func New(ctx context.Context, cfg Config) (*App, error) {
	file := cfg.File
	if file == nil {
		file = &config.File{}
	}

	a := &App{
		file:  file,
		store: cfg.Store,
		board: status.NewBoard(),
	}

	if err := a.openStore(); err != nil {
		return nil, err
	}

	source := cfg.Source
	if source == nil {
		s, err := NewSource(file.Sensor)
		if err != nil {
			a.Close()
			return nil, err
		}
		source = s
	}

	loader := cfg.Loader
	if loader == nil {
		if file.Model.Path == "" {
			a.Close()
			return nil, ErrNoModel
		}
		loader = ModelLoader(file.Model)
	}

	detection, err := a.detectionConfig()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.telemetry = a.buildTelemetry()

	sinks, err := a.buildSinks(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	sinks = append(sinks, cfg.Sinks...)

	a.detector = detector.New(detector.Options{
		Source:      source,
		Load:        loader,
		Config:      detection,
		Telemetry:   a.telemetry,
		Sink:        sinks,
		Board:       a.board,
		DeviceID:    file.DeviceID,
		QuietPeriod: cfg.QuietPeriod,
	})

	srvConfig := server.Config{
		StaticDir: cfg.StaticDir,
		Detector:  a.detector,
		Board:     a.board,
	}
	if a.store != nil {
		srvConfig.Store = a.store
	}
	a.server = server.New(srvConfig)

	return a, nil
}

func (a *App) openStore() error {
	if a.store != nil || a.file.Store.Path == "" {
		return nil
	}
	s, err := store.New(a.file.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.store = s
	a.ownsStore = true
	return nil
}

// detectionConfig prefers settings persisted through the API over the file.
func (a *App) detectionConfig() (config.Detection, error) {
	cfg := a.file.DetectionOrDefault()
	if a.store == nil {
		return cfg, nil
	}

	settings := a.store.Settings()
	if _, err := settings.Get(store.KeySequenceLength); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read settings: %w", err)
	}

	persisted, err := settings.LoadDetection()
	if err != nil {
		return cfg, fmt.Errorf("failed to load settings: %w", err)
	}
	monitoring.Logf("Using persisted detection settings")
	return persisted, nil
}

func (a *App) buildTelemetry() telemetry.Sender {
	if !a.file.Telemetry.Enabled() {
		return telemetry.Nop{}
	}
	a.client = telemetry.NewClient(telemetry.Options{
		Backoff: a.file.Telemetry.BackoffDuration(telemetry.DefaultBackoff),
		OnStateChange: func(s telemetry.State) {
			metrics.TelemetryState.Set(float64(s))
			if s == telemetry.Connecting {
				metrics.TelemetryConnectAttempts.Inc()
			}
			a.board.Update(func(snap *status.Snapshot) {
				snap.Telemetry = s.String()
			})
		},
	})
	return a.client
}

// buildSinks lists local sinks ahead of network ones. Multi runs them all at
// once, so the order only shows up in joined errors.
func (a *App) buildSinks(ctx context.Context) (alert.Multi, error) {
	sinks := alert.Multi{alert.LogSink{}}

	if a.store != nil {
		sinks = append(sinks, alert.StoreSink{Falls: a.store.Falls()})
	}

	if hc := a.file.Hooks; hc.Dir != "" {
		a.hooks = hook.NewManager(hc.Dir)
		if err := a.hooks.Discover(); err != nil {
			return nil, fmt.Errorf("failed to discover hooks: %w", err)
		}
		monitoring.Logf("Loaded %d hooks from %s", len(a.hooks.List()), hc.Dir)
		sinks = append(sinks, alert.HookSink{
			Hooks:    a.hooks,
			Executor: hook.NewExecutor(hc.TimeoutDuration(hook.DefaultTimeout)),
			DeviceID: a.file.DeviceID,
		})
	}

	if a.file.Redis.Addr != "" {
		rs, err := alert.NewRedisSink(ctx, a.file.Redis.Addr, a.file.Redis.TTLDuration())
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, rs)
		a.closers = append(a.closers, rs)
	}

	if mc := a.file.MQTT; mc.Enabled() {
		ms := alert.NewMQTTSink(alert.MQTTOptions{
			Host:     mc.Host,
			Port:     mc.Port,
			Topic:    mc.Topic,
			ClientID: mc.ClientID,
			Username: mc.Username,
			Password: mc.Password,
			QoS:      mc.QoS,
		})
		sinks = append(sinks, ms)
		a.closers = append(a.closers, ms)
	}

	return sinks, nil
}

// NewSource builds the sample source described by sc. A serial port wins over
// a replay file.
func NewSource(sc config.SensorConfig) (sensor.Source, error) {
	switch {
	case sc.SerialPort != "":
		baud := sc.BaudRate
		if baud <= 0 {
			baud = DefaultBaudRate
		}
		return sensor.NewSerialSource(sc.SerialPort, baud), nil
	case sc.ReplayFile != "":
		samples, err := sensor.LoadReplayFile(sc.ReplayFile)
		if err != nil {
			return nil, err
		}
		return sensor.NewReplaySource(samples, sc.Loop), nil
	default:
		return nil, ErrNoSource
	}
}

// ModelLoader returns a loader that opens the model asset on every call and
// binds it to the first working backend for the requested sequence length.
func ModelLoader(mc config.ModelConfig) detector.Loader {
	backends := make([]classifier.Backend, 0, len(mc.Backends))
	for _, b := range mc.Backends {
		backends = append(backends, classifier.Backend(b))
	}
	order := classifier.ChannelOrder(mc.ChannelOrder)

	return func(ctx context.Context, seqLen int) (classifier.Classifier, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		model, err := classifier.OpenModel(mc.Path)
		if err != nil {
			return nil, err
		}
		defer model.Close()

		h, err := classifier.Load(model, classifier.LoadOptions{
			SequenceLength: seqLen,
			Backends:       backends,
			ChannelOrder:   order,
		})
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

// Run starts the detector, the telemetry connection and, when an address is
// configured, the HTTP server. It blocks until ctx is cancelled or the server
// fails, then closes everything.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)

	if err := a.detector.Start(ctx); err != nil {
		return err
	}

	if a.client != nil {
		tc := a.file.Telemetry
		if err := a.client.Connect(ctx, tc.Host, tc.Port); err != nil {
			return err
		}
		monitoring.Logf("Streaming telemetry to %s", net.JoinHostPort(tc.Host, strconv.Itoa(tc.Port)))
	}

	if addr := a.file.HTTP.Addr; addr != "" {
		g.Go(func() error {
			return a.server.Run(ctx, addr)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	return g.Wait()
}

// Close stops the detector and releases every component. Safe to call more
// than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.detector != nil {
			if err := a.detector.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		if a.telemetry != nil {
			if err := a.telemetry.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		for _, c := range a.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		a.board.Close()
		if a.ownsStore {
			if err := a.store.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		a.closeErr = errors.Join(errs...)
		monitoring.Logf("Detection pipeline stopped")
	})
	return a.closeErr
}

// Detector returns the fall detector.
func (a *App) Detector() *detector.Detector {
	return a.detector
}

// Board returns the shared status board.
func (a *App) Board() *status.Board {
	return a.board
}

// Store returns the store, or nil when persistence is disabled.
func (a *App) Store() *store.Store {
	return a.store
}

// Server returns the HTTP handler.
func (a *App) Server() *server.Server {
	return a.server
}

// Hooks returns the hook manager, or nil when no hook directory is set.
func (a *App) Hooks() *hook.Manager {
	return a.hooks
}
