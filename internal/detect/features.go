package detect

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// WaveformFeatures summarizes one frame's raw ADC waveform. Attached to
// every DetectionResult so consumers can plot signal health without keeping
// the full waveform.
type WaveformFeatures struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	RMS    float64 `json:"rms"`
	Peak   int16   `json:"peak"`
}

// Summarize computes waveform summary features.
func Summarize(samples []int16) WaveformFeatures {
	if len(samples) == 0 {
		return WaveformFeatures{}
	}

	values := make([]float64, len(samples))
	var sumSquares float64
	var peak int16
	for i, s := range samples {
		v := float64(s)
		values[i] = v
		sumSquares += v * v
		if abs16(s) > abs16(peak) {
			peak = s
		}
	}

	return WaveformFeatures{
		Mean:   stat.Mean(values, nil),
		StdDev: stat.StdDev(values, nil),
		RMS:    math.Sqrt(sumSquares / float64(len(values))),
		Peak:   peak,
	}
}

func abs16(v int16) int32 {
	if v < 0 {
		return -int32(v)
	}
	return int32(v)
}
