package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/presence.report/internal/timeutil"
)

type recordingLed struct {
	calls []bool
}

func (r *recordingLed) SetLed(on bool) {
	r.calls = append(r.calls, on)
}

func TestLedTurnsOnWithActivity(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	led := &recordingLed{}
	timer := NewLedTimer(clock, led)

	// No activity: stays off regardless of verdict.
	st := timer.Observe(false, VerdictPositive, 15)
	assert.False(t, st.On)
	assert.Empty(t, led.calls)

	st = timer.Observe(true, VerdictNegative, 15)
	assert.True(t, st.On)
	assert.Equal(t, 0.0, st.CounterSeconds)
	assert.Equal(t, []bool{true}, led.calls)
}

func TestLedPositiveKeepsResetting(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	led := &recordingLed{}
	timer := NewLedTimer(clock, led)

	timer.Observe(true, VerdictUncertain, 15)

	// Positives at one-second spacing far past the duration: the LED never
	// times out while presence keeps being confirmed.
	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		st := timer.Observe(false, VerdictPositive, 15)
		assert.True(t, st.On, "tick %d", i)
		assert.Equal(t, 0.0, st.CounterSeconds, "tick %d", i)
	}
	assert.Equal(t, []bool{true}, led.calls)
}

func TestLedTimesOutOnNegatives(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	led := &recordingLed{}
	timer := NewLedTimer(clock, led)

	timer.Observe(true, VerdictNegative, 15)

	for i := 0; i < 14; i++ {
		clock.Advance(time.Second)
		st := timer.Observe(false, VerdictNegative, 15)
		assert.True(t, st.On, "tick %d", i)
	}

	clock.Advance(time.Second)
	st := timer.Observe(false, VerdictNegative, 15)
	assert.False(t, st.On)
	assert.Equal(t, []bool{true, false}, led.calls)
}

func TestLedUncertainCountsTowardTimeout(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	led := &recordingLed{}
	timer := NewLedTimer(clock, led)

	timer.Observe(true, VerdictUncertain, 5)
	clock.Advance(5 * time.Second)
	st := timer.Observe(false, VerdictUncertain, 5)
	assert.False(t, st.On)
}

func TestLedPositiveRefreshMidCountdown(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	led := &recordingLed{}
	timer := NewLedTimer(clock, led)

	timer.Observe(true, VerdictNegative, 15)

	clock.Advance(10 * time.Second)
	timer.Observe(false, VerdictNegative, 15) // counter = 10

	clock.Advance(time.Second)
	st := timer.Observe(false, VerdictPositive, 15)
	assert.Equal(t, 0.0, st.CounterSeconds)

	// Another 14 negative seconds: still on, the countdown restarted.
	clock.Advance(14 * time.Second)
	st = timer.Observe(false, VerdictNegative, 15)
	assert.True(t, st.On)

	clock.Advance(time.Second)
	st = timer.Observe(false, VerdictNegative, 15)
	assert.False(t, st.On)
}

func TestLedLateTickStillHonorsVerdict(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	led := &recordingLed{}
	timer := NewLedTimer(clock, led)

	timer.Observe(true, VerdictNegative, 15)

	// A single tick arriving long after the duration: a positive verdict on
	// that tick still resets the counter instead of timing out.
	clock.Advance(40 * time.Second)
	st := timer.Observe(false, VerdictPositive, 15)
	assert.True(t, st.On)
	assert.Equal(t, 0.0, st.CounterSeconds)

	// The same late arrival with a negative verdict turns it off.
	clock.Advance(40 * time.Second)
	st = timer.Observe(false, VerdictNegative, 15)
	assert.False(t, st.On)
}

func TestLedActivityWhileOnDoesNotRestart(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	led := &recordingLed{}
	timer := NewLedTimer(clock, led)

	timer.Observe(true, VerdictNegative, 15)
	clock.Advance(10 * time.Second)

	// Activity alone does not reset the counter; only a positive verdict does.
	st := timer.Observe(true, VerdictNegative, 15)
	assert.True(t, st.On)
	assert.Equal(t, 10.0, st.CounterSeconds)
}

func TestLedForceOff(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	led := &recordingLed{}
	timer := NewLedTimer(clock, led)

	timer.ForceOff() // off already: no command issued
	assert.Empty(t, led.calls)

	timer.Observe(true, VerdictPositive, 15)
	timer.ForceOff()
	assert.False(t, timer.State().On)
	assert.Equal(t, []bool{true, false}, led.calls)
}
