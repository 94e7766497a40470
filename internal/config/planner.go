package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the checked-in planner defaults.
const DefaultConfigPath = "config/planner.defaults.json"

// Defaults used when a field is omitted.
const (
	DefaultTickPeriod        = 100 * time.Millisecond
	DefaultObstacleTopic     = "lidar_obstacle_info"
	DefaultTrafficLightTopic = "yolov8_traffic_light_info"
	DefaultDetectionTopic    = "detections"
	DefaultLaneTopic         = "yolov8_lane_info"
	DefaultCommandTopic      = "topic_control_signal"
	DefaultListen            = ":8080"
	DefaultGRPCListen        = "localhost:50061"
	DefaultDBPath            = "planner.db"
)

// PlannerConfig is the root configuration. Every field is optional; the Get*
// methods supply defaults, so partial files are safe.
type PlannerConfig struct {
	// Control loop
	TickPeriod *string `json:"tick_period,omitempty" yaml:"tick_period,omitempty"` // duration string like "100ms"
	StaleAfter *string `json:"stale_after,omitempty" yaml:"stale_after,omitempty"` // "0s" disables expiry

	// Channel source identifiers. They only name the topics; they never
	// change decisions.
	ObstacleTopic     *string `json:"obstacle_topic,omitempty" yaml:"obstacle_topic,omitempty"`
	TrafficLightTopic *string `json:"traffic_light_topic,omitempty" yaml:"traffic_light_topic,omitempty"`
	DetectionTopic    *string `json:"detection_topic,omitempty" yaml:"detection_topic,omitempty"`
	LaneTopic         *string `json:"lane_topic,omitempty" yaml:"lane_topic,omitempty"`
	CommandTopic      *string `json:"command_topic,omitempty" yaml:"command_topic,omitempty"`

	// Transports
	PerceptionPort *string `json:"perception_port,omitempty" yaml:"perception_port,omitempty"`
	ActuatorPort   *string `json:"actuator_port,omitempty" yaml:"actuator_port,omitempty"`
	BaudRate       *int    `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	DataBits       *int    `json:"data_bits,omitempty" yaml:"data_bits,omitempty"`
	StopBits       *int    `json:"stop_bits,omitempty" yaml:"stop_bits,omitempty"`
	Parity         *string `json:"parity,omitempty" yaml:"parity,omitempty"`
	UDPListen      *string `json:"udp_listen,omitempty" yaml:"udp_listen,omitempty"`

	// Services
	Listen       *string `json:"listen,omitempty" yaml:"listen,omitempty"`
	GRPCListen   *string `json:"grpc_listen,omitempty" yaml:"grpc_listen,omitempty"`
	DBPath       *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	RecordInputs *bool   `json:"record_inputs,omitempty" yaml:"record_inputs,omitempty"`
}

// EmptyPlannerConfig returns a config with every field unset.
func EmptyPlannerConfig() *PlannerConfig {
	return &PlannerConfig{}
}

// LoadPlannerConfig reads a JSON (.json) or YAML (.yaml, .yml) config file
// and validates it.
func LoadPlannerConfig(path string) (*PlannerConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
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

	cfg := EmptyPlannerConfig()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", ext, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching parent directories
// so it works from package test directories. Panics on failure; intended for
// test setup.
func MustLoadDefaultConfig() *PlannerConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadPlannerConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that set values are usable.
func (c *PlannerConfig) Validate() error {
	if c.TickPeriod != nil && *c.TickPeriod != "" {
		d, err := time.ParseDuration(*c.TickPeriod)
		if err != nil {
			return fmt.Errorf("invalid tick_period '%s': %w", *c.TickPeriod, err)
		}
		if d <= 0 {
			return fmt.Errorf("tick_period must be positive, got %s", d)
		}
	}

	if c.StaleAfter != nil && *c.StaleAfter != "" {
		d, err := time.ParseDuration(*c.StaleAfter)
		if err != nil {
			return fmt.Errorf("invalid stale_after '%s': %w", *c.StaleAfter, err)
		}
		if d < 0 {
			return fmt.Errorf("stale_after must be non-negative, got %s", d)
		}
	}

	for key, v := range map[string]*string{
		"obstacle_topic":      c.ObstacleTopic,
		"traffic_light_topic": c.TrafficLightTopic,
		"detection_topic":     c.DetectionTopic,
		"lane_topic":          c.LaneTopic,
		"command_topic":       c.CommandTopic,
	} {
		if v != nil && strings.TrimSpace(*v) == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
	}

	// Each input channel needs its own topic or the gateway cannot route it.
	seen := make(map[string]string)
	for _, ch := range []struct{ key, name string }{
		{"obstacle_topic", c.GetObstacleTopic()},
		{"traffic_light_topic", c.GetTrafficLightTopic()},
		{"detection_topic", c.GetDetectionTopic()},
		{"lane_topic", c.GetLaneTopic()},
	} {
		if other, dup := seen[ch.name]; dup {
			return fmt.Errorf("%s and %s both use topic %q", other, ch.key, ch.name)
		}
		seen[ch.name] = ch.key
	}

	if c.BaudRate != nil && *c.BaudRate < 0 {
		return fmt.Errorf("baud_rate must be non-negative, got %d", *c.BaudRate)
	}
	return nil
}

func (c *PlannerConfig) topic(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func (c *PlannerConfig) str(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

// GetTickPeriod returns the control period.
func (c *PlannerConfig) GetTickPeriod() time.Duration {
	if c.TickPeriod == nil || *c.TickPeriod == "" {
		return DefaultTickPeriod
	}
	d, err := time.ParseDuration(*c.TickPeriod)
	if err != nil || d <= 0 {
		return DefaultTickPeriod
	}
	return d
}

// GetStaleAfter returns the channel expiry; 0 (the default) disables it.
func (c *PlannerConfig) GetStaleAfter() time.Duration {
	if c.StaleAfter == nil || *c.StaleAfter == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.StaleAfter)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func (c *PlannerConfig) GetObstacleTopic() string {
	return c.topic(c.ObstacleTopic, DefaultObstacleTopic)
}

func (c *PlannerConfig) GetTrafficLightTopic() string {
	return c.topic(c.TrafficLightTopic, DefaultTrafficLightTopic)
}

func (c *PlannerConfig) GetDetectionTopic() string {
	return c.topic(c.DetectionTopic, DefaultDetectionTopic)
}

func (c *PlannerConfig) GetLaneTopic() string {
	return c.topic(c.LaneTopic, DefaultLaneTopic)
}

func (c *PlannerConfig) GetCommandTopic() string {
	return c.topic(c.CommandTopic, DefaultCommandTopic)
}

// GetPerceptionPort returns the perception serial device; empty disables it.
func (c *PlannerConfig) GetPerceptionPort() string { return c.str(c.PerceptionPort, "") }

// GetActuatorPort returns the actuator serial device; empty disables it.
func (c *PlannerConfig) GetActuatorPort() string { return c.str(c.ActuatorPort, "") }

// GetBaudRate returns the configured baud rate, or 0 to let the serial layer
// pick its default.
func (c *PlannerConfig) GetBaudRate() int {
	if c.BaudRate == nil {
		return 0
	}
	return *c.BaudRate
}

func (c *PlannerConfig) GetDataBits() int {
	if c.DataBits == nil {
		return 0
	}
	return *c.DataBits
}

func (c *PlannerConfig) GetStopBits() int {
	if c.StopBits == nil {
		return 0
	}
	return *c.StopBits
}

func (c *PlannerConfig) GetParity() string { return c.str(c.Parity, "") }

// GetUDPListen returns the perception UDP address; empty disables it.
func (c *PlannerConfig) GetUDPListen() string { return c.str(c.UDPListen, "") }

func (c *PlannerConfig) GetListen() string { return c.str(c.Listen, DefaultListen) }

// GetGRPCListen returns the telemetry address; empty disables the server.
func (c *PlannerConfig) GetGRPCListen() string { return c.str(c.GRPCListen, DefaultGRPCListen) }

func (c *PlannerConfig) GetDBPath() string { return c.str(c.DBPath, DefaultDBPath) }

// GetRecordInputs reports whether raw input envelopes are logged to the DB.
func (c *PlannerConfig) GetRecordInputs() bool {
	if c.RecordInputs == nil {
		return false
	}
	return *c.RecordInputs
}
