package detect

import "sync"

// Stats tracks monotonically increasing detection counters with thread-safe
// operations. Counters are only ever reset by constructing a fresh Stats for
// a new worker run.
type Stats struct {
	mu        sync.Mutex
	attempts  int64
	broken    int64
	valid     int64
	positive  int64
	negative  int64
	uncertain int64
	activity  int64
}

// StatsSnapshot is an immutable copy of the counters, consistent with the
// result it is attached to: counters are bumped before the result is
// emitted.
type StatsSnapshot struct {
	TotalAttempts int64 `json:"total_attempts"`
	BrokenFrames  int64 `json:"broken_frames"`
	ValidFrames   int64 `json:"valid_frames"`
	Positive      int64 `json:"positive"`
	Negative      int64 `json:"negative"`
	Uncertain     int64 `json:"uncertain"`
	Activity      int64 `json:"activity_events"`
}

// NewStats creates zeroed counters.
func NewStats() *Stats {
	return &Stats{}
}

// AddAttempt counts one poll attempt.
func (s *Stats) AddAttempt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
}

// AddBroken counts one broken frame and returns the new broken total.
func (s *Stats) AddBroken() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broken++
	return s.broken
}

// AddValid counts one valid frame.
func (s *Stats) AddValid() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid++
}

// AddVerdict counts one classifier verdict by label.
func (s *Stats) AddVerdict(label Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch label {
	case VerdictPositive:
		s.positive++
	case VerdictNegative:
		s.negative++
	default:
		s.uncertain++
	}
}

// AddActivity counts one activity event.
func (s *Stats) AddActivity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity++
}

// Snapshot returns a consistent copy of all counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		TotalAttempts: s.attempts,
		BrokenFrames:  s.broken,
		ValidFrames:   s.valid,
		Positive:      s.positive,
		Negative:      s.negative,
		Uncertain:     s.uncertain,
		Activity:      s.activity,
	}
}
