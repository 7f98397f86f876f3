// Package detect implements the presence-detection pipeline: classifier
// gateway, activity monitoring, the LED timer state machine, valid-reading
// rate control, and the detection worker that ties them together.
package detect

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// Label is the classifier's per-frame decision.
type Label int

const (
	// VerdictUncertain means the classifier's confidence was below its own
	// threshold. The gateway never derives this itself; it trusts the
	// external classifier's call.
	VerdictUncertain Label = iota

	// VerdictPositive means presence detected.
	VerdictPositive

	// VerdictNegative means no presence.
	VerdictNegative
)

// String implements fmt.Stringer.
func (l Label) String() string {
	switch l {
	case VerdictPositive:
		return "positive"
	case VerdictNegative:
		return "negative"
	default:
		return "uncertain"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Label) UnmarshalText(text []byte) error {
	switch string(text) {
	case "positive":
		*l = VerdictPositive
	case "negative":
		*l = VerdictNegative
	case "uncertain":
		*l = VerdictUncertain
	default:
		return fmt.Errorf("unknown verdict label %q", string(text))
	}
	return nil
}

// Verdict is the classifier output for one frame. Immutable.
type Verdict struct {
	Label         Label     `json:"label"`
	Confidence    float64   `json:"confidence"`
	Probabilities []float64 `json:"probs"`
}

// Classifier produces a verdict from a raw waveform. Implementations must be
// deterministic for identical input and side-effect-free, and must return an
// uncertain verdict rather than failing when their internal confidence is
// below threshold.
type Classifier interface {
	Classify(samples []int16) (Verdict, error)
}

// ExecClassifier invokes an external classifier binary per frame: the
// waveform is written to its stdin as little-endian int16 values and the
// verdict is read from its stdout as a single JSON object:
//
//	{"label":"positive","confidence":0.97,"probs":[0.03,0.97]}
type ExecClassifier struct {
	// Command is the classifier binary; Args its fixed arguments.
	Command string
	Args    []string

	// Timeout bounds one inference call. Defaults to 10s.
	Timeout time.Duration
}

// Classify runs the external classifier on one waveform.
func (c *ExecClassifier) Classify(samples []int16) (Verdict, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stdin := &bytes.Buffer{}
	stdin.Grow(2 * len(samples))
	if err := binary.Write(stdin, binary.LittleEndian, samples); err != nil {
		return Verdict{}, fmt.Errorf("encode waveform: %w", err)
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Verdict{}, fmt.Errorf("classifier %q: %w (stderr: %s)", c.Command, err, stderr.String())
	}

	var v Verdict
	if err := json.Unmarshal(stdout.Bytes(), &v); err != nil {
		return Verdict{}, fmt.Errorf("decode classifier verdict: %w", err)
	}
	if v.Confidence < 0 || v.Confidence > 1 {
		return Verdict{}, fmt.Errorf("classifier confidence %v out of [0,1]", v.Confidence)
	}
	return v, nil
}

// StaticClassifier returns the same verdict for every frame. Used in dev
// mode when no classifier binary is configured, and in tests.
type StaticClassifier struct {
	Verdict Verdict
}

// Classify returns the fixed verdict.
func (c *StaticClassifier) Classify([]int16) (Verdict, error) {
	return c.Verdict, nil
}
