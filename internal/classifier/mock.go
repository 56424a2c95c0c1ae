package classifier

import (
	"sync"

	"github.com/ayusman/fallguard/internal/sensor"
)

// MockClassifier is a Classifier returning a configurable output.
type MockClassifier struct {
	mu      sync.Mutex
	output  [2]float32
	err     error
	calls   int
	closed  bool
	backend Backend
	block   chan struct{}
}

// NewMockClassifier creates a mock that always returns output.
func NewMockClassifier(output [2]float32) *MockClassifier {
	return &MockClassifier{output: output, backend: BackendCPU}
}

// SetOutput changes the returned scores.
func (m *MockClassifier) SetOutput(output [2]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.output = output
}

// SetError makes subsequent Run calls fail with err wrapped in an InferenceError.
func (m *MockClassifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Block makes Run wait until the returned function is called.
func (m *MockClassifier) Block() (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.block = ch
	m.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.block == ch {
				m.block = nil
			}
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Run implements Classifier.
func (m *MockClassifier) Run(window []sensor.Sample) ([2]float32, error) {
	m.mu.Lock()
	m.calls++
	block := m.block
	m.mu.Unlock()

	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return [2]float32{}, &InferenceError{Err: m.err}
	}
	return m.output, nil
}

// Backend implements Classifier.
func (m *MockClassifier) Backend() Backend {
	return m.backend
}

// Close implements Classifier.
func (m *MockClassifier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns how many times Run was called.
func (m *MockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockClassifier) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockEngine is an Engine with scripted behaviour.
type MockEngine struct {
	mu        sync.Mutex
	output    []float32
	err       error
	lastInput []float32
	calls     int
	closed    bool
}

// NewMockEngine returns an engine producing output for every call.
func NewMockEngine(output ...float32) *MockEngine {
	return &MockEngine{output: output}
}

// SetError makes subsequent Infer calls fail.
func (e *MockEngine) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Infer implements Engine.
func (e *MockEngine) Infer(input []float32, steps int) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.lastInput = append(e.lastInput[:0], input...)
	if e.err != nil {
		return nil, e.err
	}
	return append([]float32(nil), e.output...), nil
}

// LastInput returns a copy of the most recent input tensor.
func (e *MockEngine) LastInput() []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]float32(nil), e.lastInput...)
}

// Calls returns how many times Infer was called.
func (e *MockEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Close implements Engine.
func (e *MockEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Closed reports whether Close was called.
func (e *MockEngine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
