package detect

import (
	"testing"
	"time"

	"github.com/banshee-data/presence.report/internal/timeutil"
)

func TestThrottleSleepsRemainder(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	rc := NewRateController(clock)

	start := rc.Begin()
	clock.Advance(120 * time.Millisecond) // processing took 120ms
	rc.Throttle(start, 500*time.Millisecond)

	sleeps := clock.Sleeps()
	if len(sleeps) != 1 {
		t.Fatalf("got %d sleeps, want 1", len(sleeps))
	}
	if sleeps[0] != 380*time.Millisecond {
		t.Errorf("slept %v, want 380ms", sleeps[0])
	}
}

func TestThrottleSkipsWhenOverBudget(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	rc := NewRateController(clock)

	start := rc.Begin()
	clock.Advance(700 * time.Millisecond)
	rc.Throttle(start, 500*time.Millisecond)

	if n := len(clock.Sleeps()); n != 0 {
		t.Errorf("got %d sleeps, want 0 when processing exceeds the delay", n)
	}
}

func TestRateEstimator(t *testing.T) {
	e := NewRateEstimator(10)
	base := time.Unix(0, 0)

	if got := e.Observe(base); got != 0 {
		t.Errorf("rate with one sample = %v, want 0", got)
	}

	// Nine more samples at 500ms spacing: 10 samples over 4.5s.
	var got float64
	for i := 1; i < 10; i++ {
		got = e.Observe(base.Add(time.Duration(i) * 500 * time.Millisecond))
	}
	if got != 2 {
		t.Errorf("rate = %v, want 2", got)
	}
}

func TestRateEstimatorSlidesWindow(t *testing.T) {
	e := NewRateEstimator(10)
	base := time.Unix(0, 0)

	// Ten slow samples at 1/s, then fast samples at 4/s. Once the window has
	// slid past the slow ones the estimate reflects only the recent cadence.
	ts := base
	for i := 0; i < 10; i++ {
		e.Observe(ts)
		ts = ts.Add(time.Second)
	}
	var got float64
	for i := 0; i < 10; i++ {
		got = e.Observe(ts)
		ts = ts.Add(250 * time.Millisecond)
	}
	if got != 4 {
		t.Errorf("rate = %v, want 4 after window slides", got)
	}
}

func TestRateEstimatorZeroSpan(t *testing.T) {
	e := NewRateEstimator(5)
	now := time.Unix(0, 0)
	e.Observe(now)
	if got := e.Observe(now); got != 0 {
		t.Errorf("rate with zero span = %v, want 0", got)
	}
}
