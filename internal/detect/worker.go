package detect

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/presence.report/internal/config"
	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/sensor"
	"github.com/banshee-data/presence.report/internal/timeutil"
)

// SensorSource is the slice of the sensor link the worker depends on.
type SensorSource interface {
	// RequestFrame polls one reading. (nil, nil) is a broken reading;
	// a non-nil error is link-fatal.
	RequestFrame(startTimeMs float64) (*sensor.Frame, error)

	// SetLed dispatches the remote LED command without blocking.
	SetLed(on bool)
}

// Result is the per-iteration snapshot handed to the consumer. Immutable.
type Result struct {
	RunID           string           `json:"run_id"`
	Sequence        int64            `json:"sequence"`
	Frame           *sensor.Frame    `json:"-"`
	DistanceCm      int              `json:"distance_cm"`
	Verdict         Verdict          `json:"verdict"`
	InferenceMillis float64          `json:"inference_ms"`
	Activity        ActivityEvent    `json:"activity"`
	Led             LedState         `json:"led"`
	Features        WaveformFeatures `json:"features"`
	Stats           StatsSnapshot    `json:"stats"`
	Rate            float64          `json:"rate"`
	Timestamp       time.Time        `json:"timestamp"`
}

// WorkerOptions wires a Worker's collaborators.
type WorkerOptions struct {
	Source     SensorSource
	Classifier Classifier
	Config     *config.Holder
	Clock      timeutil.Clock

	// StartTimeMs is the session time base from the device handshake.
	StartTimeMs float64

	// ResultBuffer sets the capacity of the result channel. Defaults to 16.
	ResultBuffer int
}

// Worker runs the detection loop on its own goroutine. All mutable loop
// state (counters, LED state, previous distance) is confined to that
// goroutine; the consumer sees it only through the result channel and
// snapshot accessors.
type Worker struct {
	source     SensorSource
	classifier Classifier
	cfg        *config.Holder
	clock      timeutil.Clock

	runID       string
	startTimeMs float64

	results chan Result
	broken  chan int64

	stats    *Stats
	activity ActivityMonitor
	led      *LedTimer
	rate     *RateController
	window   *RateEstimator

	observedRate atomicFloat
}

// NewWorker assembles a detection worker.
func NewWorker(opts WorkerOptions) *Worker {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.ResultBuffer <= 0 {
		opts.ResultBuffer = 16
	}

	w := &Worker{
		source:      opts.Source,
		classifier:  opts.Classifier,
		cfg:         opts.Config,
		clock:       opts.Clock,
		runID:       uuid.NewString(),
		startTimeMs: opts.StartTimeMs,
		results:     make(chan Result, opts.ResultBuffer),
		broken:      make(chan int64, 16),
		stats:       NewStats(),
		rate:        NewRateController(opts.Clock),
		window:      NewRateEstimator(10),
	}
	w.led = NewLedTimer(opts.Clock, LedControllerFunc(opts.Source.SetLed))
	return w
}

// RunID identifies this worker session.
func (w *Worker) RunID() string {
	return w.runID
}

// Results returns the channel on which one Result per valid reading is
// delivered, in strict poll order.
func (w *Worker) Results() <-chan Result {
	return w.results
}

// Broken returns the channel carrying broken-frame count notifications. The
// channel is best-effort: when the consumer lags, notifications are dropped
// rather than stalling the loop.
func (w *Worker) Broken() <-chan int64 {
	return w.broken
}

// StatsSnapshot returns the current counters. Safe to call from any
// goroutine.
func (w *Worker) StatsSnapshot() StatsSnapshot {
	return w.stats.Snapshot()
}

// ObservedRate returns the most recent throughput estimate in valid
// readings per second. Safe to call from any goroutine.
func (w *Worker) ObservedRate() float64 {
	return w.observedRate.Load()
}

// Run executes the detection loop until the context is canceled or the link
// fails. The result channel is closed on exit, and the LED is forced off on
// every exit path. A link-fatal error is returned to the caller; normal
// cancellation returns nil.
func (w *Worker) Run(ctx context.Context) error {
	cfg := w.cfg.Snapshot()
	monitoring.Logf("detect: worker %s started (threshold %.0fcm, led %.0fs, target %.1f/s)",
		w.runID, cfg.GetDistanceThresholdCm(), cfg.GetLedTimerSeconds(), cfg.GetSignalsPerSecond())

	defer close(w.results)
	defer w.led.ForceOff()
	defer w.logFinalStats()

	var sequence int64
	for {
		// Cooperative stop, checked once per iteration, never mid-poll.
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		frame, err := w.source.RequestFrame(w.startTimeMs)
		w.stats.AddAttempt()
		if err != nil {
			return fmt.Errorf("sensor link failed: %w", err)
		}
		if frame == nil {
			n := w.stats.AddBroken()
			select {
			case w.broken <- n:
			default:
			}
			// No delay for broken readings: poll again immediately.
			continue
		}

		// Copy-on-read configuration snapshot for this iteration.
		cfg := w.cfg.Snapshot()
		start := w.rate.Begin()
		w.stats.AddValid()
		sequence++

		distance := frame.DistanceCm
		activity := w.activity.Update(&distance, cfg.GetDistanceThresholdCm())
		if activity.Detected {
			w.stats.AddActivity()
			monitoring.Logf("detect: activity #%d, distance change %.1f cm", activity.Occurrence, activity.DeltaCm)
		}

		inferStart := w.clock.Now()
		verdict, cerr := w.classifier.Classify(frame.Samples)
		inferMillis := float64(w.clock.Since(inferStart)) / float64(time.Millisecond)
		if cerr != nil {
			// The gateway contract says the classifier reports uncertainty
			// instead of failing; if the process itself breaks we degrade to
			// an uncertain verdict and keep the loop alive.
			monitoring.Logf("detect: classifier error, treating as uncertain: %v", cerr)
			verdict = Verdict{Label: VerdictUncertain}
		}
		w.stats.AddVerdict(verdict.Label)

		led := w.led.Observe(activity.Detected, verdict.Label, cfg.GetLedTimerSeconds())

		rate := w.window.Observe(w.clock.Now())
		w.observedRate.Store(rate)

		result := Result{
			RunID:           w.runID,
			Sequence:        sequence,
			Frame:           frame,
			DistanceCm:      frame.DistanceCm,
			Verdict:         verdict,
			InferenceMillis: inferMillis,
			Activity:        activity,
			Led:             led,
			Features:        Summarize(frame.Samples),
			Stats:           w.stats.Snapshot(),
			Rate:            rate,
			Timestamp:       w.clock.Now(),
		}

		select {
		case w.results <- result:
		case <-ctx.Done():
			return nil
		}

		// Throttle only after a confirmed-valid reading.
		w.rate.Throttle(start, cfg.GetSignalDelay())
	}
}

// atomicFloat is a float64 published across goroutines via atomic bit
// conversion.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }

func (w *Worker) logFinalStats() {
	s := w.stats.Snapshot()
	if s.ValidFrames == 0 {
		return
	}
	validPct := float64(s.ValidFrames) / float64(s.TotalAttempts) * 100
	monitoring.Logf("detect: worker %s finished: %d attempts, %d valid (%.1f%%), %d broken, %d positive, %d negative, %d uncertain, %d activity events",
		w.runID, s.TotalAttempts, s.ValidFrames, validPct, s.BrokenFrames, s.Positive, s.Negative, s.Uncertain, s.Activity)
}
