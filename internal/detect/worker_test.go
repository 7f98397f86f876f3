package detect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/presence.report/internal/config"
	"github.com/banshee-data/presence.report/internal/sensor"
	"github.com/banshee-data/presence.report/internal/timeutil"
)

var errLinkDown = errors.New("link down")

// scriptedSource replays a fixed sequence of poll outcomes. A step with a nil
// frame and nil error is a broken reading; once the script runs out every
// poll fails with errLinkDown.
type scriptedSource struct {
	steps []scriptStep
	leds  []bool
}

type scriptStep struct {
	frame *sensor.Frame
	err   error
}

func (s *scriptedSource) RequestFrame(float64) (*sensor.Frame, error) {
	if len(s.steps) == 0 {
		return nil, errLinkDown
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.frame, step.err
}

func (s *scriptedSource) SetLed(on bool) {
	s.leds = append(s.leds, on)
}

type classifierFunc func(samples []int16) (Verdict, error)

func (f classifierFunc) Classify(samples []int16) (Verdict, error) { return f(samples) }

func validFrame(distanceCm int) scriptStep {
	return scriptStep{frame: &sensor.Frame{
		DistanceCm: distanceCm,
		Samples:    []int16{10, -20, 30},
	}}
}

func brokenFrame() scriptStep {
	return scriptStep{}
}

func newTestWorker(source *scriptedSource, cls Classifier) (*Worker, *timeutil.MockClock) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	clock.AdvanceOnSleep = true
	if cls == nil {
		cls = &StaticClassifier{Verdict: Verdict{Label: VerdictNegative, Confidence: 0.9}}
	}
	w := NewWorker(WorkerOptions{
		Source:     source,
		Classifier: cls,
		Config:     config.NewHolder(nil),
		Clock:      clock,
	})
	return w, clock
}

func runWorker(t *testing.T, w *Worker) (results []Result, runErr error) {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- w.Run(context.Background()) }()
	for r := range w.Results() {
		results = append(results, r)
	}
	return results, <-errc
}

func TestWorkerPipeline(t *testing.T) {
	source := &scriptedSource{steps: []scriptStep{
		validFrame(100),
		validFrame(100),
		brokenFrame(),
		validFrame(200),
	}}
	w, _ := newTestWorker(source, nil)

	results, err := runWorker(t, w)
	if !errors.Is(err, errLinkDown) {
		t.Fatalf("Run() error = %v, want errLinkDown", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	for i, r := range results {
		if r.Sequence != int64(i+1) {
			t.Errorf("result %d: Sequence = %d, want %d", i, r.Sequence, i+1)
		}
		if r.RunID != w.RunID() {
			t.Errorf("result %d: RunID = %q, want %q", i, r.RunID, w.RunID())
		}
	}

	// Third reading jumps 100cm: activity.
	if results[0].Activity.Detected || results[1].Activity.Detected {
		t.Error("steady readings must not report activity")
	}
	if !results[2].Activity.Detected {
		t.Error("100cm jump must report activity")
	}
	if !results[2].Led.On {
		t.Error("activity must turn the LED on")
	}

	stats := results[2].Stats
	if stats.TotalAttempts != 4 || stats.ValidFrames != 3 || stats.BrokenFrames != 1 {
		t.Errorf("Stats = %+v, want 4 attempts, 3 valid, 1 broken", stats)
	}
	if stats.Activity != 1 {
		t.Errorf("Stats.Activity = %d, want 1", stats.Activity)
	}

	// LED on from activity, then forced off when the link failed.
	if len(source.leds) != 2 || source.leds[0] != true || source.leds[1] != false {
		t.Errorf("led commands = %v, want [true false]", source.leds)
	}
}

func TestWorkerBrokenSkipsThrottle(t *testing.T) {
	source := &scriptedSource{steps: []scriptStep{
		brokenFrame(),
		brokenFrame(),
		validFrame(100),
	}}
	w, clock := newTestWorker(source, nil)

	results, err := runWorker(t, w)
	if !errors.Is(err, errLinkDown) {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	// Only the valid reading throttles.
	if n := len(clock.Sleeps()); n != 1 {
		t.Errorf("got %d sleeps, want 1", n)
	}

	// Broken notifications carry the running broken total.
	var broken []int64
	for {
		select {
		case n := <-w.Broken():
			broken = append(broken, n)
			continue
		default:
		}
		break
	}
	if len(broken) != 2 || broken[0] != 1 || broken[1] != 2 {
		t.Errorf("broken notifications = %v, want [1 2]", broken)
	}
}

func TestWorkerClassifierErrorDegradesToUncertain(t *testing.T) {
	source := &scriptedSource{steps: []scriptStep{validFrame(100)}}
	cls := classifierFunc(func([]int16) (Verdict, error) {
		return Verdict{}, errors.New("model crashed")
	})
	w, _ := newTestWorker(source, cls)

	results, err := runWorker(t, w)
	if !errors.Is(err, errLinkDown) {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Verdict.Label != VerdictUncertain {
		t.Errorf("Verdict = %v, want uncertain", results[0].Verdict.Label)
	}
	if w.StatsSnapshot().Uncertain != 1 {
		t.Error("classifier failure must count as uncertain")
	}
}

func TestWorkerLedCountdownAcrossTicks(t *testing.T) {
	// 32 valid negatives at the default 2/s cadence cover 15.5s of wall
	// clock, enough for the 15s default timer to expire after the initial
	// activity jump.
	steps := []scriptStep{validFrame(100)}
	for i := 0; i < 32; i++ {
		steps = append(steps, validFrame(300))
	}
	source := &scriptedSource{steps: steps}
	w, _ := newTestWorker(source, nil)

	results, err := runWorker(t, w)
	if !errors.Is(err, errLinkDown) {
		t.Fatalf("Run() error = %v", err)
	}

	if !results[1].Led.On {
		t.Fatal("LED must be on after the activity jump")
	}
	last := results[len(results)-1]
	if last.Led.On {
		t.Error("LED must have timed out on sustained negatives")
	}
}

func TestWorkerPositivesHoldLed(t *testing.T) {
	steps := []scriptStep{validFrame(100)}
	for i := 0; i < 60; i++ {
		steps = append(steps, validFrame(300))
	}
	source := &scriptedSource{steps: steps}
	cls := &StaticClassifier{Verdict: Verdict{Label: VerdictPositive, Confidence: 0.95}}
	w, _ := newTestWorker(source, cls)

	results, err := runWorker(t, w)
	if !errors.Is(err, errLinkDown) {
		t.Fatalf("Run() error = %v", err)
	}

	// 30s of positives at 2/s, twice the timer duration: never off.
	for i, r := range results[1:] {
		if !r.Led.On {
			t.Fatalf("result %d: LED off despite positive verdicts", i+1)
		}
		if r.Led.CounterSeconds != 0 {
			t.Fatalf("result %d: counter = %v, want 0 while positive", i+1, r.Led.CounterSeconds)
		}
	}
}

func TestWorkerCancel(t *testing.T) {
	// An endless script; cancellation is the only exit.
	source := &scriptedSource{}
	for i := 0; i < 10000; i++ {
		source.steps = append(source.steps, validFrame(100))
	}
	w, _ := newTestWorker(source, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	var seen int
	for range w.Results() {
		seen++
		if seen == 5 {
			cancel()
		}
	}
	if err := <-errc; err != nil {
		t.Errorf("Run() after cancel = %v, want nil", err)
	}
	if seen < 5 {
		t.Errorf("saw %d results before close, want at least 5", seen)
	}
}

func TestWorkerObservedRate(t *testing.T) {
	steps := make([]scriptStep, 12)
	for i := range steps {
		steps[i] = validFrame(100)
	}
	source := &scriptedSource{steps: steps}
	w, _ := newTestWorker(source, nil)

	if _, err := runWorker(t, w); !errors.Is(err, errLinkDown) {
		t.Fatalf("Run() error = %v", err)
	}

	// The mock clock advances exactly the 500ms throttle per reading, so the
	// estimator converges on the configured 2/s.
	if got := w.ObservedRate(); got != 2 {
		t.Errorf("ObservedRate() = %v, want 2", got)
	}
}
