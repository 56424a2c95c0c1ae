package window

import (
	"math"

	"github.com/ayusman/fallguard/internal/sensor"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the acceleration magnitude over a window.
// Values are in the sensor's units (m/s² for phone and watch accelerometers).
type Summary struct {
	Peak   float64 `json:"peak"`
	Min    float64 `json:"min"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

// Magnitudes returns the Euclidean norm of each sample.
func Magnitudes(samples []sensor.Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		x, y, z := float64(s.X), float64(s.Y), float64(s.Z)
		out[i] = math.Sqrt(x*x + y*y + z*z)
	}
	return out
}

// Summarize computes magnitude statistics for a window.
// An empty window yields a zero Summary.
func Summarize(samples []sensor.Sample) Summary {
	if len(samples) == 0 {
		return Summary{}
	}

	mags := Magnitudes(samples)
	mean, std := stat.MeanStdDev(mags, nil)
	if len(mags) == 1 {
		std = 0
	}

	return Summary{
		Peak:   floats.Max(mags),
		Min:    floats.Min(mags),
		Mean:   mean,
		StdDev: std,
	}
}
