// Package config loads the agent's JSON configuration and environment
// overrides.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/envsensor/internal/discovery"
)

// DefaultConfigPath is where the agent looks for its config when --config
// is not given. A missing file at this path is not an error.
const DefaultConfigPath = "/etc/envsensor/envsensor.json"

// AgentConfig is the on-disk configuration. Every field is optional; the
// Get* methods supply defaults for omitted values so partial configs are
// safe.
type AgentConfig struct {
	// Serial link
	SerialPort    *string          `json:"serial_port,omitempty"` // empty means discover by label
	DeviceLabel   *string          `json:"device_label,omitempty"`
	DeviceRules   []discovery.Rule `json:"device_rules,omitempty"`
	BaudRate      *int             `json:"baud_rate,omitempty"`
	DataBits      *int             `json:"data_bits,omitempty"`
	StopBits      *int             `json:"stop_bits,omitempty"`
	Parity        *string          `json:"parity,omitempty"`
	SerialTimeout *string          `json:"serial_timeout,omitempty"` // duration string like "5s"

	// Polling and escalation
	PollInterval     *string `json:"poll_interval,omitempty"`
	FailureThreshold *int    `json:"failure_threshold,omitempty"`
	RebootCommand    *string `json:"reboot_command,omitempty"`
	DryRun           *bool   `json:"dry_run,omitempty"`

	// Reading log
	LogFile     *string `json:"log_file,omitempty"` // empty disables the log
	LogInterval *string `json:"log_interval,omitempty"`

	// Camera
	CameraPath      *string `json:"camera_path,omitempty"`
	CameraCommand   *string `json:"camera_command,omitempty"`
	CaptureInterval *string `json:"capture_interval,omitempty"`
	CaptureBackoff  *string `json:"capture_max_backoff,omitempty"`
	FreshnessBound  *string `json:"freshness_bound,omitempty"`

	// Sinks and surfaces
	DBPath       *string `json:"db_path,omitempty"`
	MQTTBroker   *string `json:"mqtt_broker,omitempty"`
	MQTTUsername *string `json:"mqtt_username,omitempty"`
	MQTTPassword *string `json:"mqtt_password,omitempty"`
	Station      *string `json:"station,omitempty"`
	Listen       *string `json:"listen,omitempty"`

	// Process
	LogLevel *string `json:"log_level,omitempty"`
	Env      *string `json:"env,omitempty"`
}

func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }
func ptrBool(v bool) *bool       { return &v }

// EmptyConfig returns an AgentConfig with all fields nil.
func EmptyConfig() *AgentConfig {
	return &AgentConfig{}
}

// LoadConfig loads an AgentConfig from a JSON file. The file must have a
// .json extension and be under 1MB.
func LoadConfig(path string) (*AgentConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
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

// LoadConfigIfExists is LoadConfig, except a missing file yields an empty
// config.
func LoadConfigIfExists(path string) (*AgentConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return EmptyConfig(), nil
	}
	return LoadConfig(path)
}

// Validate checks that set values are usable.
func (c *AgentConfig) Validate() error {
	durations := map[string]*string{
		"serial_timeout":      c.SerialTimeout,
		"poll_interval":       c.PollInterval,
		"log_interval":        c.LogInterval,
		"capture_interval":    c.CaptureInterval,
		"capture_max_backoff": c.CaptureBackoff,
		"freshness_bound":     c.FreshnessBound,
	}
	for name, v := range durations {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	if c.FailureThreshold != nil && *c.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be at least 1, got %d", *c.FailureThreshold)
	}
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if c.LogLevel != nil && *c.LogLevel != "" {
		if _, err := ParseLevel(*c.LogLevel); err != nil {
			return err
		}
	}
	for i, r := range c.DeviceRules {
		if r.Label == "" {
			return fmt.Errorf("device_rules[%d]: label is required", i)
		}
		if r.VID == "" && r.PID == "" && r.SerialNumber == "" {
			return fmt.Errorf("device_rules[%d]: one of vid, pid or serial_number is required", i)
		}
	}
	return nil
}

func getString(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func getDuration(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return def // default on parse error
	}
	return d
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func (c *AgentConfig) GetSerialPort() string    { return getString(c.SerialPort, "") }
func (c *AgentConfig) GetDeviceLabel() string   { return getString(c.DeviceLabel, discovery.DefaultLabel) }
func (c *AgentConfig) GetBaudRate() int         { return getInt(c.BaudRate, 9600) }
func (c *AgentConfig) GetDataBits() int         { return getInt(c.DataBits, 8) }
func (c *AgentConfig) GetStopBits() int         { return getInt(c.StopBits, 1) }
func (c *AgentConfig) GetParity() string        { return getString(c.Parity, "none") }
func (c *AgentConfig) GetFailureThreshold() int { return getInt(c.FailureThreshold, 3) }
func (c *AgentConfig) GetRebootCommand() string { return getString(c.RebootCommand, "reboot") }
func (c *AgentConfig) GetLogFile() string       { return getString(c.LogFile, "") }
func (c *AgentConfig) GetCameraPath() string    { return getString(c.CameraPath, "/root/camera_light.jpg") }
func (c *AgentConfig) GetCameraCommand() string {
	return getString(c.CameraCommand, "libcamera-jpeg -o {path}")
}
func (c *AgentConfig) GetDBPath() string       { return getString(c.DBPath, "") }
func (c *AgentConfig) GetMQTTBroker() string   { return getString(c.MQTTBroker, "") }
func (c *AgentConfig) GetMQTTUsername() string { return getString(c.MQTTUsername, "") }
func (c *AgentConfig) GetMQTTPassword() string { return getString(c.MQTTPassword, "") }
func (c *AgentConfig) GetListen() string       { return getString(c.Listen, ":8080") }
func (c *AgentConfig) GetEnv() string          { return getString(c.Env, "prod") }

// GetStation names this agent in MQTT topics; it defaults to the hostname.
func (c *AgentConfig) GetStation() string {
	if c.Station != nil && *c.Station != "" {
		return *c.Station
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "envsensor"
}

func (c *AgentConfig) GetDryRun() bool {
	return c.DryRun != nil && *c.DryRun
}

func (c *AgentConfig) GetSerialTimeout() time.Duration {
	return getDuration(c.SerialTimeout, 5*time.Second)
}

// GetPollInterval returns the pause between polls. An explicit "0s" polls
// back to back.
func (c *AgentConfig) GetPollInterval() time.Duration {
	return getDuration(c.PollInterval, time.Second)
}

func (c *AgentConfig) GetLogInterval() time.Duration {
	return getDuration(c.LogInterval, 60*time.Second)
}

func (c *AgentConfig) GetCaptureInterval() time.Duration {
	return getDuration(c.CaptureInterval, 60*time.Second)
}

func (c *AgentConfig) GetCaptureBackoff() time.Duration {
	return getDuration(c.CaptureBackoff, 10*time.Minute)
}

func (c *AgentConfig) GetFreshnessBound() time.Duration {
	return getDuration(c.FreshnessBound, 300*time.Second)
}

func (c *AgentConfig) GetLogLevel() slog.Level {
	l, err := ParseLevel(getString(c.LogLevel, "info"))
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// ParseLevel accepts debug, info, warn/warning and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q", s)
}

// envBinding maps an environment variable onto a config field.
type envBinding struct {
	name string
	set  func(c *AgentConfig, v string) error
}

func stringSetter(field func(c *AgentConfig) **string) func(*AgentConfig, string) error {
	return func(c *AgentConfig, v string) error {
		*field(c) = ptrString(v)
		return nil
	}
}

var envBindings = []envBinding{
	{"ENVSENSOR_SERIAL_PORT", stringSetter(func(c *AgentConfig) **string { return &c.SerialPort })},
	{"ENVSENSOR_DEVICE_LABEL", stringSetter(func(c *AgentConfig) **string { return &c.DeviceLabel })},
	{"ENVSENSOR_BAUD_RATE", func(c *AgentConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ENVSENSOR_BAUD_RATE: %w", err)
		}
		c.BaudRate = ptrInt(n)
		return nil
	}},
	{"ENVSENSOR_FAILURE_THRESHOLD", func(c *AgentConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ENVSENSOR_FAILURE_THRESHOLD: %w", err)
		}
		c.FailureThreshold = ptrInt(n)
		return nil
	}},
	{"ENVSENSOR_POLL_INTERVAL", stringSetter(func(c *AgentConfig) **string { return &c.PollInterval })},
	{"ENVSENSOR_LOG_FILE", stringSetter(func(c *AgentConfig) **string { return &c.LogFile })},
	{"ENVSENSOR_LOG_INTERVAL", stringSetter(func(c *AgentConfig) **string { return &c.LogInterval })},
	{"ENVSENSOR_CAMERA_PATH", stringSetter(func(c *AgentConfig) **string { return &c.CameraPath })},
	{"ENVSENSOR_REBOOT_COMMAND", stringSetter(func(c *AgentConfig) **string { return &c.RebootCommand })},
	{"ENVSENSOR_DB_PATH", stringSetter(func(c *AgentConfig) **string { return &c.DBPath })},
	{"ENVSENSOR_MQTT_BROKER", stringSetter(func(c *AgentConfig) **string { return &c.MQTTBroker })},
	{"ENVSENSOR_MQTT_USERNAME", stringSetter(func(c *AgentConfig) **string { return &c.MQTTUsername })},
	{"ENVSENSOR_MQTT_PASSWORD", stringSetter(func(c *AgentConfig) **string { return &c.MQTTPassword })},
	{"ENVSENSOR_STATION", stringSetter(func(c *AgentConfig) **string { return &c.Station })},
	{"ENVSENSOR_LISTEN", stringSetter(func(c *AgentConfig) **string { return &c.Listen })},
	{"ENVSENSOR_DRY_RUN", func(c *AgentConfig, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ENVSENSOR_DRY_RUN: %w", err)
		}
		c.DryRun = ptrBool(b)
		return nil
	}},
	{"LOG_LEVEL", stringSetter(func(c *AgentConfig) **string { return &c.LogLevel })},
	{"APP_ENV", stringSetter(func(c *AgentConfig) **string { return &c.Env })},
}

// ApplyEnv overrides fields from environment variables found by lookup
// (os.LookupEnv in production) and revalidates.
func (c *AgentConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, b := range envBindings {
		v, ok := lookup(b.name)
		if !ok {
			continue
		}
		if err := b.set(c, strings.TrimSpace(v)); err != nil {
			return err
		}
	}
	return c.Validate()
}
