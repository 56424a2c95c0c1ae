// Package telemetry streams samples and predictions to a remote collector as
// newline-terminated ASCII lines over TCP.
package telemetry

import (
	"fmt"

	"github.com/ayusman/fallguard/internal/sensor"
)

// State is the connection state of a telemetry client.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Sender accepts telemetry lines. Send never blocks and never fails; lines
// that cannot be delivered are dropped.
type Sender interface {
	Send(line string)
	State() State
	Close() error
}

// FormatSample renders a sample without a prediction.
func FormatSample(s sensor.Sample) string {
	return fmt.Sprintf("x:%.3f,y:%.3f,z:%.3f", s.X, s.Y, s.Z)
}

// FormatPrediction renders a sample annotated with the latest fall probability.
func FormatPrediction(s sensor.Sample, probability float32) string {
	return fmt.Sprintf("x:%.3f,y:%.3f,z:%.3f,pred:%.2f", s.X, s.Y, s.Z, probability)
}

// Nop is the Sender used when telemetry is disabled.
type Nop struct{}

func (Nop) Send(string) {}

func (Nop) State() State { return Disconnected }

func (Nop) Close() error { return nil }
