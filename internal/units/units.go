// Package units provides shared constants and conversions for distance values.
package units

import "math"

// CmPerMeter is the number of centimeters in a meter.
const CmPerMeter = 100

// CorrectDistance normalizes the sensor's raw max-distance field to whole
// centimeters. The device firmware reports ranges under 10 in meters and
// ranges of 10 and above in centimeters already; the cutoff is a documented
// unit heuristic of the firmware, not a measurement, and must be preserved
// as-is.
func CorrectDistance(raw float64) int {
	if raw < 10 {
		return int(math.Round(raw * CmPerMeter))
	}
	return int(math.Round(raw))
}

// CmToMeters converts centimeters to meters.
func CmToMeters(cm float64) float64 {
	return cm / CmPerMeter
}
