// Package remote issues shell commands on the sensor host over SSH. The
// only production consumer is the LED actuator path, which pokes a
// memory-mapped GPIO register through the device's monitor utility.
package remote

import (
	"fmt"
	"os/exec"
	"strings"
)

// Logger defines the interface for debug logging.
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...interface{}) {}

// CommandRunner runs one shell command on the device and returns its
// combined output. Satisfied by *Executor; fakes implement it in tests.
type CommandRunner interface {
	Run(command string) (string, error)
}

// Executor runs commands on the sensor host via the system ssh client.
type Executor struct {
	Host   string
	Port   int
	User   string
	SSHKey string
	DryRun bool
	Logger Logger
}

// NewExecutor creates an executor targeting user@host:port.
func NewExecutor(host string, port int, user, sshKey string, dryRun bool) *Executor {
	return &Executor{
		Host:   host,
		Port:   port,
		User:   user,
		SSHKey: sshKey,
		DryRun: dryRun,
		Logger: nopLogger{},
	}
}

// SetLogger sets the debug logger for the executor.
func (e *Executor) SetLogger(logger Logger) {
	if logger != nil {
		e.Logger = logger
	}
}

// Run executes a command on the device. Stderr content is surfaced in the
// returned output; a non-zero exit is an error.
func (e *Executor) Run(command string) (string, error) {
	if e.DryRun {
		return fmt.Sprintf("[DRY-RUN] Would execute: %s", command), nil
	}

	e.Logger.Debugf("Executing on %s: %s", e.Host, command)
	cmd := e.buildSSHCommand(command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		e.Logger.Debugf("Remote command failed: %v, output: %s", err, output)
		return string(output), fmt.Errorf("remote command %q: %w", command, err)
	}
	return string(output), nil
}

func (e *Executor) buildSSHCommand(command string) *exec.Cmd {
	args := []string{}

	if e.SSHKey != "" {
		args = append(args, "-i", e.SSHKey)
	}
	if e.Port != 0 && e.Port != 22 {
		args = append(args, "-p", fmt.Sprintf("%d", e.Port))
	}

	// The device is reached over a direct link-local connection and
	// regenerates its host key on reflash, so strict checking is disabled.
	args = append(args, "-o", "StrictHostKeyChecking=no")
	args = append(args, "-o", "UserKnownHostsFile=/dev/null")
	args = append(args, "-o", "LogLevel=ERROR")

	target := e.Host
	if e.User != "" && !strings.Contains(target, "@") {
		target = fmt.Sprintf("%s@%s", e.User, target)
	}

	args = append(args, target, command)
	return exec.Command("ssh", args...)
}

// LedSwitch drives the device LED by writing its GPIO register through a
// CommandRunner. The commands are full shell command strings, e.g.
// "/opt/redpitaya/bin/monitor 0x40000030 0x80".
type LedSwitch struct {
	Runner CommandRunner
	OnCmd  string
	OffCmd string
}

// LedOn issues the LED-on command.
func (s *LedSwitch) LedOn() error {
	_, err := s.Runner.Run(s.OnCmd)
	return err
}

// LedOff issues the LED-off command.
func (s *LedSwitch) LedOff() error {
	_, err := s.Runner.Run(s.OffCmd)
	return err
}
