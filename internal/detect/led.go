package detect

import (
	"time"

	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/timeutil"
)

// LedController issues the physical LED command. The call must not block;
// the sensor link dispatches it on its own goroutine.
type LedController interface {
	SetLed(on bool)
}

// LedControllerFunc adapts a function to LedController.
type LedControllerFunc func(on bool)

// SetLed calls the wrapped function.
func (f LedControllerFunc) SetLed(on bool) { f(on) }

// LedState is a snapshot of the timer state machine, included in every
// DetectionResult.
type LedState struct {
	On             bool    `json:"on"`
	CounterSeconds float64 `json:"counter_seconds"`
}

// LedTimer is the counter-based LED state machine. While off, a new activity
// event turns the LED on and starts the counter at zero. While on, the
// counter accumulates wall-clock time between ticks; a positive verdict
// zeroes it (level-triggered: one positive reading refreshes the timer even
// mid-countdown), and a run of negative or uncertain verdicts whose counter
// reaches the configured duration turns the LED off.
//
// The internal on flag is the source of truth for LED state even if the
// physical command fails; that inconsistency window is accepted and logged
// by the command path, never corrected silently here.
//
// Not safe for concurrent use; owned by the worker goroutine.
type LedTimer struct {
	clock timeutil.Clock
	ctrl  LedController

	on         bool
	counter    float64 // seconds accumulated while on
	lastUpdate time.Time
}

// NewLedTimer creates a timer in the Off state.
func NewLedTimer(clock timeutil.Clock, ctrl LedController) *LedTimer {
	return &LedTimer{clock: clock, ctrl: ctrl}
}

// Observe advances the state machine by one valid reading. The counter is
// advanced by the elapsed wall-clock time before the verdict is evaluated,
// so a tick that arrives after the duration has already passed still honors
// the verdict it carries.
func (t *LedTimer) Observe(activityDetected bool, verdict Label, durationSeconds float64) LedState {
	now := t.clock.Now()

	if !t.on {
		if activityDetected {
			t.on = true
			t.counter = 0
			t.lastUpdate = now
			t.ctrl.SetLed(true)
			monitoring.Logf("led: on, timer started (%.0fs)", durationSeconds)
		}
		return t.state()
	}

	t.counter += now.Sub(t.lastUpdate).Seconds()
	t.lastUpdate = now

	switch verdict {
	case VerdictPositive:
		// Presence confirmed: restart the countdown. This covers both the
		// ordinary sub-threshold refresh and the ≥-duration self-refresh;
		// the LED can never time out while positives keep arriving.
		t.counter = 0
	default:
		if t.counter >= durationSeconds {
			t.on = false
			t.counter = 0
			t.lastUpdate = time.Time{}
			t.ctrl.SetLed(false)
			monitoring.Logf("led: off, %s after %.0fs without confirmation", verdict, durationSeconds)
		}
	}
	return t.state()
}

// ForceOff turns the LED off regardless of timer state. Called on worker
// shutdown so the physical LED is never left on.
func (t *LedTimer) ForceOff() {
	if !t.on {
		return
	}
	t.on = false
	t.counter = 0
	t.lastUpdate = time.Time{}
	t.ctrl.SetLed(false)
	monitoring.Logf("led: forced off on shutdown")
}

// State returns the current snapshot without advancing the machine.
func (t *LedTimer) State() LedState {
	return t.state()
}

func (t *LedTimer) state() LedState {
	return LedState{On: t.on, CounterSeconds: t.counter}
}
