// Package config holds the detection system configuration: sensor
// connection settings and the runtime-tunable detection parameters.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// DefaultConfigPath is the path to the canonical defaults file, the single
// source of truth for default detection values.
const DefaultConfigPath = "config/detection.defaults.json"

// Config represents the detection configuration. Fields are pointers so a
// partial JSON document can overlay defaults; the Get* methods supply the
// fallback values. The same schema is accepted by the runtime
// /api/detect/config endpoint.
type Config struct {
	// Sensor connection
	SensorHost      *string `json:"sensor_host,omitempty"`
	DataPort        *int    `json:"data_port,omitempty"`
	SamplesPerBlock *int    `json:"samples_per_block,omitempty"`
	ReadTimeout     *string `json:"read_timeout,omitempty"` // duration string like "5s"

	// Remote actuator session
	SSHPort       *int    `json:"ssh_port,omitempty"`
	SSHUser       *string `json:"ssh_user,omitempty"`
	SSHKey        *string `json:"ssh_key,omitempty"`
	LedOnCommand  *string `json:"led_on_command,omitempty"`
	LedOffCommand *string `json:"led_off_command,omitempty"`

	// Detection params (runtime tunable)
	DistanceThresholdCm *float64 `json:"distance_threshold_cm,omitempty"`
	LedTimerSeconds     *float64 `json:"led_timer_seconds,omitempty"`
	SignalsPerSecond    *float64 `json:"signals_per_second,omitempty"`

	// Classifier gateway
	ClassifierCommand *string  `json:"classifier_command,omitempty"`
	ClassifierArgs    []string `json:"classifier_args,omitempty"`

	// Consumer-facing surfaces
	Listen     *string `json:"listen,omitempty"`
	MQTTBroker *string `json:"mqtt_broker,omitempty"`
	MQTTTopic  *string `json:"mqtt_topic,omitempty"`
}

// EmptyConfig returns a Config with all fields unset.
func EmptyConfig() *Config {
	return &Config{}
}

// LoadConfig loads a Config from a JSON file. Fields omitted from the JSON
// keep their defaults, so partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid. Invalid values
// are rejected here, at the boundary, so the detection loop never sees
// out-of-range configuration.
func (c *Config) Validate() error {
	if c.DistanceThresholdCm != nil && *c.DistanceThresholdCm <= 0 {
		return fmt.Errorf("distance_threshold_cm must be positive, got %v", *c.DistanceThresholdCm)
	}
	if c.LedTimerSeconds != nil && *c.LedTimerSeconds <= 0 {
		return fmt.Errorf("led_timer_seconds must be positive, got %v", *c.LedTimerSeconds)
	}
	if c.SignalsPerSecond != nil && *c.SignalsPerSecond <= 0 {
		return fmt.Errorf("signals_per_second must be positive, got %v", *c.SignalsPerSecond)
	}
	if c.SamplesPerBlock != nil && *c.SamplesPerBlock <= 0 {
		return fmt.Errorf("samples_per_block must be positive, got %d", *c.SamplesPerBlock)
	}
	if c.DataPort != nil && (*c.DataPort < 1 || *c.DataPort > 65535) {
		return fmt.Errorf("data_port out of range: %d", *c.DataPort)
	}
	if c.ReadTimeout != nil && *c.ReadTimeout != "" {
		if _, err := time.ParseDuration(*c.ReadTimeout); err != nil {
			return fmt.Errorf("invalid read_timeout %q: %w", *c.ReadTimeout, err)
		}
	}
	return nil
}

// GetSensorHost returns the sensor host or the default link-local address.
func (c *Config) GetSensorHost() string {
	if c.SensorHost == nil {
		return "169.254.148.148"
	}
	return *c.SensorHost
}

// GetDataPort returns the sensor's UDP data port.
func (c *Config) GetDataPort() int {
	if c.DataPort == nil {
		return 61231
	}
	return *c.DataPort
}

// GetSamplesPerBlock returns the raw ADC sample count per block.
func (c *Config) GetSamplesPerBlock() int {
	if c.SamplesPerBlock == nil {
		return 25000
	}
	return *c.SamplesPerBlock
}

// GetReadTimeout parses and returns the socket read timeout.
func (c *Config) GetReadTimeout() time.Duration {
	if c.ReadTimeout == nil || *c.ReadTimeout == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(*c.ReadTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// GetSSHPort returns the device SSH port.
func (c *Config) GetSSHPort() int {
	if c.SSHPort == nil {
		return 22
	}
	return *c.SSHPort
}

// GetSSHUser returns the device SSH user.
func (c *Config) GetSSHUser() string {
	if c.SSHUser == nil {
		return "root"
	}
	return *c.SSHUser
}

// GetSSHKey returns the SSH identity file, or empty for agent/default auth.
func (c *Config) GetSSHKey() string {
	if c.SSHKey == nil {
		return ""
	}
	return *c.SSHKey
}

// GetLedOnCommand returns the remote LED-on command.
func (c *Config) GetLedOnCommand() string {
	if c.LedOnCommand == nil {
		return "/opt/redpitaya/bin/monitor 0x40000030 0x80"
	}
	return *c.LedOnCommand
}

// GetLedOffCommand returns the remote LED-off command.
func (c *Config) GetLedOffCommand() string {
	if c.LedOffCommand == nil {
		return "/opt/redpitaya/bin/monitor 0x40000030 0x0"
	}
	return *c.LedOffCommand
}

// GetDistanceThresholdCm returns the activity threshold in centimeters.
func (c *Config) GetDistanceThresholdCm() float64 {
	if c.DistanceThresholdCm == nil {
		return 10
	}
	return *c.DistanceThresholdCm
}

// GetLedTimerSeconds returns the LED timer duration in seconds.
func (c *Config) GetLedTimerSeconds() float64 {
	if c.LedTimerSeconds == nil {
		return 15
	}
	return *c.LedTimerSeconds
}

// GetSignalsPerSecond returns the target valid-reading rate.
func (c *Config) GetSignalsPerSecond() float64 {
	if c.SignalsPerSecond == nil {
		return 2
	}
	return *c.SignalsPerSecond
}

// GetSignalDelay returns the inter-reading delay derived from the target
// rate.
func (c *Config) GetSignalDelay() time.Duration {
	return time.Duration(float64(time.Second) / c.GetSignalsPerSecond())
}

// GetClassifierCommand returns the classifier binary path, or empty when no
// classifier is configured.
func (c *Config) GetClassifierCommand() string {
	if c.ClassifierCommand == nil {
		return ""
	}
	return *c.ClassifierCommand
}

// GetListen returns the HTTP listen address.
func (c *Config) GetListen() string {
	if c.Listen == nil {
		return ":8080"
	}
	return *c.Listen
}

// GetMQTTBroker returns the MQTT broker URL, or empty when publishing is
// disabled.
func (c *Config) GetMQTTBroker() string {
	if c.MQTTBroker == nil {
		return ""
	}
	return *c.MQTTBroker
}

// GetMQTTTopic returns the MQTT topic for detection results.
func (c *Config) GetMQTTTopic() string {
	if c.MQTTTopic == nil {
		return "presence/detections"
	}
	return *c.MQTTTopic
}

// overlay returns a copy of c with any non-nil field of patch applied.
func (c *Config) overlay(patch *Config) *Config {
	merged := *c
	if patch.SensorHost != nil {
		merged.SensorHost = patch.SensorHost
	}
	if patch.DataPort != nil {
		merged.DataPort = patch.DataPort
	}
	if patch.SamplesPerBlock != nil {
		merged.SamplesPerBlock = patch.SamplesPerBlock
	}
	if patch.ReadTimeout != nil {
		merged.ReadTimeout = patch.ReadTimeout
	}
	if patch.SSHPort != nil {
		merged.SSHPort = patch.SSHPort
	}
	if patch.SSHUser != nil {
		merged.SSHUser = patch.SSHUser
	}
	if patch.SSHKey != nil {
		merged.SSHKey = patch.SSHKey
	}
	if patch.LedOnCommand != nil {
		merged.LedOnCommand = patch.LedOnCommand
	}
	if patch.LedOffCommand != nil {
		merged.LedOffCommand = patch.LedOffCommand
	}
	if patch.DistanceThresholdCm != nil {
		merged.DistanceThresholdCm = patch.DistanceThresholdCm
	}
	if patch.LedTimerSeconds != nil {
		merged.LedTimerSeconds = patch.LedTimerSeconds
	}
	if patch.SignalsPerSecond != nil {
		merged.SignalsPerSecond = patch.SignalsPerSecond
	}
	if patch.ClassifierCommand != nil {
		merged.ClassifierCommand = patch.ClassifierCommand
	}
	if patch.ClassifierArgs != nil {
		merged.ClassifierArgs = patch.ClassifierArgs
	}
	if patch.Listen != nil {
		merged.Listen = patch.Listen
	}
	if patch.MQTTBroker != nil {
		merged.MQTTBroker = patch.MQTTBroker
	}
	if patch.MQTTTopic != nil {
		merged.MQTTTopic = patch.MQTTTopic
	}
	return &merged
}

// Holder publishes the active configuration to the detection loop. The loop
// takes one immutable snapshot per iteration; consumers update it through
// Apply, which validates before swapping, so a running loop never observes
// invalid or half-written configuration.
type Holder struct {
	current atomic.Pointer[Config]
}

// NewHolder creates a holder seeded with cfg (or an empty config when nil).
func NewHolder(cfg *Config) *Holder {
	if cfg == nil {
		cfg = EmptyConfig()
	}
	h := &Holder{}
	h.current.Store(cfg)
	return h
}

// Snapshot returns the active configuration. Callers must treat it as
// read-only.
func (h *Holder) Snapshot() *Config {
	return h.current.Load()
}

// Apply validates the patch, overlays it on the active configuration, and
// publishes the result atomically.
func (h *Holder) Apply(patch *Config) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	for {
		cur := h.current.Load()
		merged := cur.overlay(patch)
		if h.current.CompareAndSwap(cur, merged) {
			return nil
		}
	}
}
