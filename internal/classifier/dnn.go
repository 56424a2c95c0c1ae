package classifier

import (
	"encoding/binary"
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// DNNEngine runs an ONNX model through the OpenCV dnn module.
type DNNEngine struct {
	net  gocv.Net
	blob []byte
}

// OpenDNN parses the model and binds it to the requested backend.
func OpenDNN(model *Model, backend Backend) (Engine, error) {
	data, err := model.Bytes()
	if err != nil {
		return nil, err
	}

	var (
		netBackend gocv.NetBackendType
		netTarget  gocv.NetTargetType
	)
	switch backend {
	case BackendCUDA:
		netBackend, netTarget = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	case BackendCPU:
		netBackend, netTarget = gocv.NetBackendDefault, gocv.NetTargetCPU
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}

	net, err := gocv.ReadNetFromONNXBytes(data)
	if err != nil {
		return nil, &LoadError{Kind: Corrupt, Backend: backend, Err: err}
	}
	if net.Empty() {
		net.Close()
		return nil, &LoadError{Kind: Corrupt, Backend: backend, Err: fmt.Errorf("empty network from %s", model.Path)}
	}

	if err := net.SetPreferableBackend(netBackend); err != nil {
		net.Close()
		return nil, fmt.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(netTarget); err != nil {
		net.Close()
		return nil, fmt.Errorf("set target: %w", err)
	}

	return &DNNEngine{net: net}, nil
}

// Infer feeds a 1 x steps x 3 float32 tensor and returns the flattened output.
func (e *DNNEngine) Infer(input []float32, steps int) ([]float32, error) {
	if len(input) != steps*Channels {
		return nil, fmt.Errorf("%w: input has %d values, want %d", ErrShape, len(input), steps*Channels)
	}

	size := len(input) * 4
	if cap(e.blob) < size {
		e.blob = make([]byte, size)
	}
	e.blob = e.blob[:size]
	for i, v := range input {
		binary.LittleEndian.PutUint32(e.blob[i*4:], math.Float32bits(v))
	}

	blob, err := gocv.NewMatWithSizesFromBytes([]int{1, steps, Channels}, gocv.MatTypeCV32F, e.blob)
	if err != nil {
		return nil, fmt.Errorf("create input blob: %w", err)
	}
	defer blob.Close()

	if err := e.net.SetInput(blob, ""); err != nil {
		return nil, fmt.Errorf("%w: set input: %v", ErrShape, err)
	}

	out := e.net.Forward("")
	defer out.Close()
	if out.Empty() || out.Total() < 2 {
		return nil, fmt.Errorf("%w: forward produced %d values", ErrShape, out.Total())
	}

	values, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	result := make([]float32, len(values))
	copy(result, values)
	return result, nil
}

// Close releases the network.
func (e *DNNEngine) Close() error {
	return e.net.Close()
}
