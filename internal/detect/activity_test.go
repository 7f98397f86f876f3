package detect

import "testing"

func intp(v int) *int { return &v }

func TestActivityFirstReadingNeverDetects(t *testing.T) {
	var m ActivityMonitor
	ev := m.Update(intp(500), 10)
	if ev.Detected {
		t.Error("first reading must not detect activity")
	}
	if ev.Occurrence != 0 {
		t.Errorf("Occurrence = %d, want 0", ev.Occurrence)
	}
}

func TestActivityThresholdIsStrict(t *testing.T) {
	var m ActivityMonitor
	m.Update(intp(100), 10)

	// A delta exactly at the threshold does not count.
	if ev := m.Update(intp(110), 10); ev.Detected {
		t.Error("delta == threshold must not detect")
	}
	// One centimeter more does.
	if ev := m.Update(intp(121), 10); !ev.Detected {
		t.Error("delta > threshold must detect")
	}
}

func TestActivitySequence(t *testing.T) {
	var m ActivityMonitor

	readings := []int{50, 50, 65}
	var events []ActivityEvent
	for _, r := range readings {
		events = append(events, m.Update(intp(r), 10))
	}

	if events[0].Detected || events[1].Detected {
		t.Error("steady readings must not detect")
	}
	if !events[2].Detected {
		t.Error("jump from 50 to 65 must detect with threshold 10")
	}
	if events[2].DeltaCm != 15 {
		t.Errorf("DeltaCm = %v, want 15", events[2].DeltaCm)
	}
	if events[2].Occurrence != 1 {
		t.Errorf("Occurrence = %d, want 1", events[2].Occurrence)
	}
}

func TestActivityDirectionIgnored(t *testing.T) {
	var m ActivityMonitor
	m.Update(intp(200), 10)
	if ev := m.Update(intp(150), 10); !ev.Detected || ev.DeltaCm != 50 {
		t.Errorf("movement toward the sensor: got %+v", ev)
	}
}

func TestActivityNilResetsTracking(t *testing.T) {
	var m ActivityMonitor
	m.Update(intp(100), 10)

	if ev := m.Update(nil, 10); ev.Detected {
		t.Error("nil reading must not detect")
	}
	// After a nil reading the next comparison starts fresh.
	if ev := m.Update(intp(500), 10); ev.Detected {
		t.Error("reading after nil must not detect")
	}
}

func TestActivityPreviousIsCopied(t *testing.T) {
	var m ActivityMonitor
	v := 100
	m.Update(&v, 10)
	v = 500 // caller mutates its variable after the call

	if ev := m.Update(intp(105), 10); ev.Detected {
		t.Error("stored previous value must be a copy, not an alias")
	}
}

func TestActivityReset(t *testing.T) {
	var m ActivityMonitor
	m.Update(intp(100), 10)
	m.Update(intp(200), 10)
	m.Reset()

	ev := m.Update(intp(999), 10)
	if ev.Detected {
		t.Error("first reading after Reset must not detect")
	}
	if ev.Occurrence != 0 {
		t.Errorf("Occurrence = %d, want 0 after Reset", ev.Occurrence)
	}
}
