// Package detector is the fall detection pipeline: it windows incoming
// samples, schedules inference and turns fall scores into debounced alerts.
package detector

import "fmt"

// State is the detector lifecycle state.
type State int32

const (
	Idle State = iota
	BufferFilling
	Armed
	InferenceInFlight
	Alerting
	Cooldown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case BufferFilling:
		return "buffer_filling"
	case Armed:
		return "armed"
	case InferenceInFlight:
		return "inference_in_flight"
	case Alerting:
		return "alerting"
	case Cooldown:
		return "cooldown"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
