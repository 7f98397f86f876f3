package detect

import "math"

// ActivityEvent reports whether the distance reading moved more than the
// configured threshold between consecutive valid frames.
type ActivityEvent struct {
	Detected   bool    `json:"detected"`
	DeltaCm    float64 `json:"delta_cm"`
	Occurrence int     `json:"occurrence"`
}

// ActivityMonitor tracks the previous distance reading across frames. State
// lives for the whole worker run and is reset only by an explicit restart.
// Not safe for concurrent use; owned by the worker goroutine.
type ActivityMonitor struct {
	previous *int
	count    int
}

// Update compares the current distance against the previous one. A nil
// distance (or no previous reading yet) reports no activity; the previous
// distance is always replaced with the current value, so a nil reading
// resets tracking.
func (m *ActivityMonitor) Update(distanceCm *int, thresholdCm float64) ActivityEvent {
	ev := ActivityEvent{Occurrence: m.count}

	if m.previous != nil && distanceCm != nil {
		ev.DeltaCm = math.Abs(float64(*distanceCm - *m.previous))
		if ev.DeltaCm > thresholdCm {
			m.count++
			ev.Detected = true
			ev.Occurrence = m.count
		}
	}

	if distanceCm != nil {
		v := *distanceCm
		m.previous = &v
	} else {
		m.previous = nil
	}
	return ev
}

// Reset clears the previous-distance tracking and the occurrence counter.
func (m *ActivityMonitor) Reset() {
	m.previous = nil
	m.count = 0
}
