package app

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/fallguard/internal/alert"
	"github.com/ayusman/fallguard/internal/classifier"
	"github.com/ayusman/fallguard/internal/config"
	"github.com/ayusman/fallguard/internal/sensor"
	"github.com/ayusman/fallguard/internal/store"
	"github.com/ayusman/fallguard/internal/telemetry"
)

func mockLoader(output [2]float32) func(context.Context, int) (classifier.Classifier, error) {
	return func(context.Context, int) (classifier.Classifier, error) {
		return classifier.NewMockClassifier(output), nil
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_RequiresSource(t *testing.T) {
	_, err := New(context.Background(), Config{
		File: &config.File{Model: config.ModelConfig{Path: "model.onnx"}},
	})
	assert.ErrorIs(t, err, ErrNoSource)
}

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(context.Background(), Config{
		File:   &config.File{},
		Source: sensor.NewMockSource(),
	})
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestNewSource(t *testing.T) {
	replay := filepath.Join(t.TempDir(), "walk.csv")
	require.NoError(t, os.WriteFile(replay, []byte("# x,y,z\n0.1,0.2,9.8\n0.3,0.1,9.7\n"), 0644))

	tests := []struct {
		name    string
		cfg     config.SensorConfig
		want    interface{}
		wantErr error
	}{
		{"serial", config.SensorConfig{SerialPort: "/dev/ttyUSB0"}, &sensor.SerialSource{}, nil},
		{"serial wins over replay", config.SensorConfig{SerialPort: "/dev/ttyUSB0", ReplayFile: replay}, &sensor.SerialSource{}, nil},
		{"replay", config.SensorConfig{ReplayFile: replay}, &sensor.ReplaySource{}, nil},
		{"none", config.SensorConfig{}, nil, ErrNoSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewSource(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, src)
		})
	}
}

func TestNewSource_MissingReplayFile(t *testing.T) {
	_, err := NewSource(config.SensorConfig{ReplayFile: filepath.Join(t.TempDir(), "missing.csv")})
	assert.Error(t, err)
}

func TestModelLoader_MissingModel(t *testing.T) {
	load := ModelLoader(config.ModelConfig{Path: filepath.Join(t.TempDir(), "missing.onnx")})
	c, err := load(context.Background(), 40)
	assert.Error(t, err)
	assert.Nil(t, c)
	assert.True(t, errors.Is(err, classifier.ErrNotFound), "got %v", err)
}

func TestDetectionConfig(t *testing.T) {
	fileCfg := config.Detection{SequenceLength: 30, SamplingPeriodMs: 40, FallThreshold: 0.7}

	t.Run("file when nothing persisted", func(t *testing.T) {
		a, err := New(context.Background(), Config{
			File:   &config.File{Detection: &fileCfg},
			Store:  newTestStore(t),
			Source: sensor.NewMockSource(),
			Loader: mockLoader([2]float32{1, 0}),
		})
		require.NoError(t, err)
		defer a.Close()
		assert.Equal(t, fileCfg, a.Detector().Config())
	})

	t.Run("persisted wins", func(t *testing.T) {
		s := newTestStore(t)
		persisted := config.Detection{SequenceLength: 60, SamplingPeriodMs: 20, FallThreshold: 0.6}
		require.NoError(t, s.Settings().SaveDetection(persisted))

		a, err := New(context.Background(), Config{
			File:   &config.File{Detection: &fileCfg},
			Store:  s,
			Source: sensor.NewMockSource(),
			Loader: mockLoader([2]float32{1, 0}),
		})
		require.NoError(t, err)
		defer a.Close()
		assert.Equal(t, persisted, a.Detector().Config())
	})

	t.Run("defaults without store", func(t *testing.T) {
		a, err := New(context.Background(), Config{
			Source: sensor.NewMockSource(),
			Loader: mockLoader([2]float32{1, 0}),
		})
		require.NoError(t, err)
		defer a.Close()
		assert.Equal(t, config.DefaultDetection(), a.Detector().Config())
		assert.Nil(t, a.Store())
		assert.Nil(t, a.Hooks())
	})
}

func TestNew_OpensStoreFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "falls.db")
	a, err := New(context.Background(), Config{
		File:   &config.File{Store: config.StoreConfig{Path: path}},
		Source: sensor.NewMockSource(),
		Loader: mockLoader([2]float32{1, 0}),
	})
	require.NoError(t, err)
	require.NotNil(t, a.Store())
	assert.Equal(t, path, a.Store().Path())

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	_, err = a.Store().Falls().List(0)
	assert.Error(t, err, "owned store should be closed")
}

func TestNew_HookDiscovery(t *testing.T) {
	a, err := New(context.Background(), Config{
		File:   &config.File{Hooks: config.HooksConfig{Dir: t.TempDir()}},
		Source: sensor.NewMockSource(),
		Loader: mockLoader([2]float32{1, 0}),
	})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Hooks())
	assert.Empty(t, a.Hooks().List())
}

func TestNew_RedisUnreachable(t *testing.T) {
	_, err := New(context.Background(), Config{
		File:   &config.File{Redis: config.RedisConfig{Addr: "127.0.0.1:1"}},
		Source: sensor.NewMockSource(),
		Loader: mockLoader([2]float32{1, 0}),
	})
	assert.Error(t, err)
}

// lineCollector accumulates lines received by a telemetry collector.
type lineCollector struct {
	mu    sync.Mutex
	lines []string
}

func (c *lineCollector) handle(_, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *lineCollector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

func TestApp_Run(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	collector, err := telemetry.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer collector.Close()
	received := &lineCollector{}
	go collector.Serve(received.handle)
	port := collector.Addr().(*net.TCPAddr).Port

	s := newTestStore(t)
	src := sensor.NewMockSource()
	rec := alert.NewRecorder()

	a, err := New(context.Background(), Config{
		File: &config.File{
			DeviceID:  "wrist-01",
			Detection: &config.Detection{SequenceLength: 20, SamplingPeriodMs: 31, FallThreshold: 0.5},
			Telemetry: config.TelemetryConfig{Host: "127.0.0.1", Port: port, Backoff: "100ms"},
		},
		Store:       s,
		Source:      src,
		Loader:      mockLoader([2]float32{0.1, 0.9}),
		Sinks:       []alert.Sink{rec},
		QuietPeriod: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return src.IsRunning() && a.Detector().Loaded() &&
			a.Board().Snapshot().Telemetry == telemetry.Connected.String()
	}, 5*time.Second, 10*time.Millisecond)

	ts := int64(1_000)
	require.Eventually(t, func() bool {
		ts += 31
		if err := src.Emit(sensor.Sample{Timestamp: ts, X: 12, Y: -4, Z: 20}); err != nil {
			return false
		}
		return rec.Count() > 0
	}, 5*time.Second, 2*time.Millisecond)

	ev := rec.Events()[0]
	assert.Equal(t, "wrist-01", ev.DeviceID)
	assert.InDelta(t, 0.9, ev.Probability, 1e-6)
	assert.Len(t, ev.Window, 20)

	require.Eventually(t, func() bool {
		falls, err := s.Falls().List(0)
		return err == nil && len(falls) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return received.Len() > 0 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, src.IsRunning())
	assert.Equal(t, "idle", a.Board().Snapshot().State)
}

func TestApp_RunRegistrationFailure(t *testing.T) {
	src := sensor.NewMockSource()
	src.SetStartError(errors.New("no such device"))

	a, err := New(context.Background(), Config{
		Source: src,
		Loader: mockLoader([2]float32{1, 0}),
	})
	require.NoError(t, err)

	err = a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such device")
}
