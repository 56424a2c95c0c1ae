// Package classifier runs the pre-trained fall model over a window of samples.
package classifier

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ayusman/fallguard/internal/monitoring"
	"github.com/ayusman/fallguard/internal/sensor"
)

// Channels is the number of values per sample fed to the model.
const Channels = 3

// Backend names an inference backend.
type Backend string

const (
	BackendCUDA Backend = "cuda"
	BackendCPU  Backend = "cpu"
)

// DefaultBackends is the order backends are tried in when none is given.
var DefaultBackends = []Backend{BackendCUDA, BackendCPU}

// ChannelOrder is the per-sample layout of the input tensor.
type ChannelOrder string

const (
	ChannelOrderXYZ ChannelOrder = "xyz"
	ChannelOrderZXY ChannelOrder = "zxy"
)

// Classifier turns a full window into a [no-fall, fall] score pair.
type Classifier interface {
	Run(window []sensor.Sample) ([2]float32, error)
	Backend() Backend
	Close() error
}

// Engine executes the model on a flattened 1 x steps x 3 input.
type Engine interface {
	Infer(input []float32, steps int) ([]float32, error)
	Close() error
}

// Opener creates an engine for the model on the given backend.
type Opener func(model *Model, backend Backend) (Engine, error)

// LoadOptions controls Load.
type LoadOptions struct {
	SequenceLength int
	Backends       []Backend
	ChannelOrder   ChannelOrder
	// Open defaults to OpenDNN.
	Open Opener
}

// Handle is a loaded model bound to one backend. Run calls are serialized.
type Handle struct {
	mu       sync.Mutex
	engine   Engine
	backend  Backend
	fallback bool
	steps    int
	order    ChannelOrder
	input    []float32
	closed   bool
}

// Load tries each backend in order and returns a handle for the first one
// that opens and passes a canary inference on a zero window. The error is
// returned only when every backend fails; it joins the per-backend failures.
func Load(model *Model, opts LoadOptions) (*Handle, error) {
	if model == nil {
		return nil, &LoadError{Kind: NotFound, Err: errors.New("no model")}
	}
	if opts.SequenceLength <= 0 {
		return nil, &LoadError{Kind: IncompatibleShape, Err: fmt.Errorf("sequence length %d", opts.SequenceLength)}
	}
	backends := opts.Backends
	if len(backends) == 0 {
		backends = DefaultBackends
	}
	order := opts.ChannelOrder
	if order == "" {
		order = ChannelOrderXYZ
	}
	open := opts.Open
	if open == nil {
		open = OpenDNN
	}

	var errs []error
	for i, b := range backends {
		engine, err := open(model, b)
		if err != nil {
			errs = append(errs, asLoadError(b, BackendUnavailable, err))
			monitoring.Logf("classifier: %s backend unavailable: %v", b, err)
			continue
		}

		h := &Handle{
			engine:   engine,
			backend:  b,
			fallback: i > 0,
			steps:    opts.SequenceLength,
			order:    order,
			input:    make([]float32, opts.SequenceLength*Channels),
		}
		if _, err := h.infer(); err != nil {
			engine.Close()
			kind := Corrupt
			if errors.Is(err, ErrShape) {
				kind = IncompatibleShape
			}
			errs = append(errs, asLoadError(b, kind, err))
			monitoring.Logf("classifier: %s backend failed canary: %v", b, err)
			continue
		}
		return h, nil
	}

	if len(errs) == 1 {
		return nil, errs[0]
	}
	return nil, errors.Join(errs...)
}

func asLoadError(b Backend, kind LoadErrorKind, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		if le.Backend == "" {
			le.Backend = b
		}
		return le
	}
	return &LoadError{Kind: kind, Backend: b, Err: err}
}

// Backend returns the backend the handle runs on.
func (h *Handle) Backend() Backend {
	return h.backend
}

// Fallback reports whether the preferred backend failed and a later one was used.
func (h *Handle) Fallback() bool {
	return h.fallback
}

// Run classifies a full window. Output index 1 is the fall score.
func (h *Handle) Run(window []sensor.Sample) ([2]float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return [2]float32{}, &InferenceError{Err: ErrClosed}
	}
	if len(window) != h.steps {
		return [2]float32{}, &InferenceError{
			Err: fmt.Errorf("%w: window has %d samples, model expects %d", ErrShape, len(window), h.steps),
		}
	}

	Encode(h.input, window, h.order)
	out, err := h.infer()
	if err != nil {
		return [2]float32{}, &InferenceError{Err: err}
	}
	return out, nil
}

func (h *Handle) infer() ([2]float32, error) {
	out, err := h.engine.Infer(h.input, h.steps)
	if err != nil {
		return [2]float32{}, err
	}
	if len(out) < 2 {
		return [2]float32{}, fmt.Errorf("%w: model produced %d outputs, want 2", ErrShape, len(out))
	}
	return [2]float32{out[0], out[1]}, nil
}

// Close releases the engine. Safe to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.engine.Close()
}

// Encode writes window into dst as steps x 3 float32 values in the given
// channel order. dst must hold len(window)*3 values.
func Encode(dst []float32, window []sensor.Sample, order ChannelOrder) {
	for i, s := range window {
		j := i * Channels
		switch order {
		case ChannelOrderZXY:
			dst[j], dst[j+1], dst[j+2] = s.Z, s.X, s.Y
		default:
			dst[j], dst[j+1], dst[j+2] = s.X, s.Y, s.Z
		}
	}
}
