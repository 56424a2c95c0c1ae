// Package sensor provides accelerometer sample delivery for the fall detection pipeline.
package sensor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Default sampling settings.
const (
	DefaultPeriod = 31 * time.Millisecond
	MinPeriod     = 5 * time.Millisecond
)

var (
	// ErrSourceNotRunning is returned when emitting on a source that has not been started.
	ErrSourceNotRunning = errors.New("sensor source is not running")
	// ErrStreamEnded is reported when a source runs out of input.
	ErrStreamEnded = errors.New("sample stream ended")
)

// Sample is a single timestamped 3-axis accelerometer reading.
// Timestamp is a monotonic millisecond counter, not wall-clock time.
type Sample struct {
	Timestamp int64   `json:"t"`
	X         float32 `json:"x"`
	Y         float32 `json:"y"`
	Z         float32 `json:"z"`
}

// Handler receives samples on the source's own delivery goroutine.
type Handler func(Sample)

// ErrorHandler receives the error that ended delivery.
type ErrorHandler func(error)

// Source defines the interface for accelerometer sample delivery.
//
// Start registers the handler and begins delivering samples at the requested
// period. The period is advisory: hardware may deliver faster or slower.
// Stop halts delivery; once it returns the handler is not called again.
//
// When delivery ends without Stop, for example because the device was
// unplugged, the source marks itself not running and then calls the handler
// set with OnError.
type Source interface {
	Start(period time.Duration, h Handler) error
	Stop() error
	IsRunning() bool
	OnError(fn ErrorHandler)
}

// RegistrationError reports that a source could not be registered with the
// underlying device. No samples will ever arrive from the failed source.
type RegistrationError struct {
	Source string
	Err    error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register %s sensor: %v", e.Source, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

var clockStart = time.Now()

// NowMillis returns milliseconds elapsed on the process monotonic clock.
func NowMillis() int64 {
	return time.Since(clockStart).Milliseconds()
}

// ParseLine parses a reading of the form "x,y,z" or "x:1.0,y:2.0,z:3.0".
// Any trailing fields after the third axis are ignored.
func ParseLine(line string) (Sample, error) {
	fields := strings.FieldsFunc(strings.TrimSpace(line), func(r rune) bool {
		return r == ',' || r == ';' || r == '\t' || r == ' '
	})
	if len(fields) < 3 {
		return Sample{}, fmt.Errorf("parse sample %q: want 3 fields, got %d", line, len(fields))
	}

	var axes [3]float32
	for i := 0; i < 3; i++ {
		field := fields[i]
		if idx := strings.IndexByte(field, ':'); idx >= 0 {
			field = field[idx+1:]
		}
		v, err := strconv.ParseFloat(field, 32)
		if err != nil {
			return Sample{}, fmt.Errorf("parse sample %q: %w", line, err)
		}
		axes[i] = float32(v)
	}

	return Sample{X: axes[0], Y: axes[1], Z: axes[2]}, nil
}
