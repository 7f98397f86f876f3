package detect

import (
	"time"

	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/timeutil"
)

// RateController throttles the loop so valid readings are processed at a
// configured cadence. Broken readings never pass through it, so the link
// recovers from a bad frame as fast as it can poll.
type RateController struct {
	clock timeutil.Clock
}

// NewRateController creates a rate controller on the given clock.
func NewRateController(clock timeutil.Clock) *RateController {
	return &RateController{clock: clock}
}

// Begin marks the start of processing for a valid reading.
func (c *RateController) Begin() time.Time {
	return c.clock.Now()
}

// Throttle sleeps for whatever remains of the inter-reading delay since
// start. If processing already took longer than the delay it returns
// immediately and logs a rate miss; that is an observability event, not an
// error.
func (c *RateController) Throttle(start time.Time, delay time.Duration) {
	elapsed := c.clock.Since(start)
	if elapsed < delay {
		c.clock.Sleep(delay - elapsed)
		return
	}
	monitoring.Logf("rate: processing took %v, target %v", elapsed, delay)
}

// RateEstimator computes the observed valid-reading throughput from a
// bounded window of the most recent valid-reading timestamps.
type RateEstimator struct {
	window int
	times  []time.Time
}

// NewRateEstimator creates an estimator over the last window timestamps.
func NewRateEstimator(window int) *RateEstimator {
	if window < 2 {
		window = 2
	}
	return &RateEstimator{window: window}
}

// Observe records one valid-reading timestamp and returns the current rate
// in readings per second: (count−1)/(newest−oldest) once at least two
// samples exist, else 0.
func (e *RateEstimator) Observe(t time.Time) float64 {
	e.times = append(e.times, t)
	if len(e.times) > e.window {
		e.times = e.times[len(e.times)-e.window:]
	}

	if len(e.times) < 2 {
		return 0
	}
	span := e.times[len(e.times)-1].Sub(e.times[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(e.times)-1) / span
}
