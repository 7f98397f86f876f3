package units

import "testing"

func TestCorrectDistanceMeters(t *testing.T) {
	// Values below 10 are meters and convert to rounded centimeters.
	cases := []struct {
		raw  float64
		want int
	}{
		{0, 0},
		{0.5, 50},
		{1.234, 123},
		{2.165, 217},
		{9.999, 1000},
	}
	for _, c := range cases {
		if got := CorrectDistance(c.raw); got != c.want {
			t.Errorf("CorrectDistance(%v) = %d, want %d", c.raw, got, c.want)
		}
	}
}

func TestCorrectDistanceCentimeters(t *testing.T) {
	// Values at or above 10 are already centimeters and only get rounded.
	cases := []struct {
		raw  float64
		want int
	}{
		{10, 10},
		{10.4, 10},
		{150.6, 151},
		{216, 216},
	}
	for _, c := range cases {
		if got := CorrectDistance(c.raw); got != c.want {
			t.Errorf("CorrectDistance(%v) = %d, want %d", c.raw, got, c.want)
		}
	}
}

func TestCmToMeters(t *testing.T) {
	if got := CmToMeters(216); got != 2.16 {
		t.Errorf("CmToMeters(216) = %v, want 2.16", got)
	}
}
