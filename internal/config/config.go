package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default communication monitor timings, used when the monitor is not configured
const (
	DefaultPollInterval  = 10000
	DefaultTimeToWarning = 20000
	DefaultTimeToError   = 30000
)

var (
	ErrInvalidCameraID = errors.New("camera id should be in range between 1 to 7")
	ErrInvalidSpeed    = errors.New("speed out of range")
	ErrInvalidMonitor  = errors.New("invalid communication monitor timing")
	ErrInvalidControl  = errors.New("invalid control method")
)

// Error reports an invalid configuration value. The adapter is not built
// when one is returned.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config holds the camera adapter settings. It is read once at startup and
// never changed afterwards.
type Config struct {
	ID      int    `mapstructure:"id" yaml:"id"`
	Name    string `mapstructure:"name" yaml:"name"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`

	Control ControlConfig `mapstructure:"control" yaml:"control"`

	// Not all cameras support the VISCA home command, absolute position is used when false
	HomeCmdSupport   bool `mapstructure:"homeCmdSupport" yaml:"homeCmdSupport"`
	HomePanPosition  int  `mapstructure:"homePanPosition" yaml:"homePanPosition"`
	HomeTiltPosition int  `mapstructure:"homeTiltPosition" yaml:"homeTiltPosition"`
	HomeZoomPosition int  `mapstructure:"homeZoomPosition" yaml:"homeZoomPosition"`

	PanSpeedSlow  int `mapstructure:"panSpeedSlow" yaml:"panSpeedSlow"`   // 0-0x18, 0 = camera default
	PanSpeedFast  int `mapstructure:"panSpeedFast" yaml:"panSpeedFast"`   // 0-0x18, 0 = maximum
	TiltSpeedSlow int `mapstructure:"tiltSpeedSlow" yaml:"tiltSpeedSlow"` // 0-0x14, 0 = camera default
	TiltSpeedFast int `mapstructure:"tiltSpeedFast" yaml:"tiltSpeedFast"` // 0-0x14, 0 = maximum

	// Time a direction must be held before fast speed is engaged, 0 disables
	FastSpeedHoldTimeMs int `mapstructure:"fastSpeedHoldTimeMs" yaml:"fastSpeedHoldTimeMs"`

	SupportsAutoMode   bool `mapstructure:"supportsAutoMode" yaml:"supportsAutoMode"`
	SupportsOffMode    bool `mapstructure:"supportsOffMode" yaml:"supportsOffMode"`
	DisablePresetStore bool `mapstructure:"disablePresetStore" yaml:"disablePresetStore"`

	Presets []Preset `mapstructure:"presets" yaml:"presets"`

	CommunicationMonitorProperties *MonitorConfig `mapstructure:"communicationMonitorProperties" yaml:"communicationMonitorProperties,omitempty"`

	Server ServerConfig `mapstructure:"server" yaml:"server"`
}

// ControlConfig selects the transport
type ControlConfig struct {
	Method   string `mapstructure:"method" yaml:"method"` // serial, tcp or udp
	Port     string `mapstructure:"port" yaml:"port"`     // serial device, e.g. /dev/ttyUSB0
	BaudRate int    `mapstructure:"baudRate" yaml:"baudRate"`
	Address  string `mapstructure:"address" yaml:"address"` // host:port for tcp/udp
}

// MonitorConfig drives the communication monitor. Times are milliseconds.
type MonitorConfig struct {
	PollInterval  int    `mapstructure:"pollInterval" yaml:"pollInterval"`
	TimeToWarning int    `mapstructure:"timeToWarning" yaml:"timeToWarning"`
	TimeToError   int    `mapstructure:"timeToError" yaml:"timeToError"`
	PollString    string `mapstructure:"pollString" yaml:"pollString"` // comma separated inquiry names
}

// Preset is a stored camera position
type Preset struct {
	ID          int    `mapstructure:"id" yaml:"id" json:"id"`
	Description string `mapstructure:"description" yaml:"description" json:"description"`
	IsDefined   bool   `mapstructure:"isDefined" yaml:"isDefined" json:"is_defined"`
}

// ServerConfig configures the control bus bridge
type ServerConfig struct {
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Metrics bool   `mapstructure:"metrics" yaml:"metrics"`
}

// Load reads the configuration from path, or from visca-camera.yaml in the
// working or home directory when path is empty. VISCA_* environment variables
// override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("visca-camera")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix("VISCA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("id", 1)
	v.SetDefault("name", "Camera")
	v.SetDefault("enabled", true)
	v.SetDefault("control.method", "serial")
	v.SetDefault("control.port", "/dev/ttyUSB0")
	v.SetDefault("control.baudRate", 9600)
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.metrics", true)
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.ID < 1 || c.ID > 7 {
		return &Error{Field: "id", Err: ErrInvalidCameraID}
	}

	speeds := []struct {
		field string
		value int
		max   int
	}{
		{"panSpeedSlow", c.PanSpeedSlow, 0x18},
		{"panSpeedFast", c.PanSpeedFast, 0x18},
		{"tiltSpeedSlow", c.TiltSpeedSlow, 0x14},
		{"tiltSpeedFast", c.TiltSpeedFast, 0x14},
	}
	for _, s := range speeds {
		if s.value < 0 || s.value > s.max {
			return &Error{Field: s.field, Err: fmt.Errorf("%w: %d (max %d)", ErrInvalidSpeed, s.value, s.max)}
		}
	}

	if c.FastSpeedHoldTimeMs < 0 {
		return &Error{Field: "fastSpeedHoldTimeMs", Err: fmt.Errorf("must not be negative: %d", c.FastSpeedHoldTimeMs)}
	}

	if m := c.CommunicationMonitorProperties; m != nil {
		if m.PollInterval <= 0 || m.TimeToWarning <= 0 || m.TimeToError <= 0 {
			return &Error{Field: "communicationMonitorProperties", Err: fmt.Errorf("%w: times must be positive", ErrInvalidMonitor)}
		}
		if m.TimeToWarning >= m.TimeToError {
			return &Error{Field: "communicationMonitorProperties", Err: fmt.Errorf("%w: timeToWarning must be less than timeToError", ErrInvalidMonitor)}
		}
	}

	switch c.Control.Method {
	case "", "serial", "tcp", "udp":
	default:
		return &Error{Field: "control.method", Err: fmt.Errorf("%w: %s", ErrInvalidControl, c.Control.Method)}
	}

	return nil
}

// FastSpeedHoldTime returns the hold duration before fast speed engages
func (c *Config) FastSpeedHoldTime() time.Duration {
	return time.Duration(c.FastSpeedHoldTimeMs) * time.Millisecond
}

// Monitor returns the monitor timings and poll list, applying defaults
func (c *Config) Monitor() (poll, warning, failure time.Duration, names []string) {
	m := c.CommunicationMonitorProperties
	if m == nil {
		m = &MonitorConfig{
			PollInterval:  DefaultPollInterval,
			TimeToWarning: DefaultTimeToWarning,
			TimeToError:   DefaultTimeToError,
		}
	}

	for _, name := range strings.Split(m.PollString, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}

	return time.Duration(m.PollInterval) * time.Millisecond,
		time.Duration(m.TimeToWarning) * time.Millisecond,
		time.Duration(m.TimeToError) * time.Millisecond,
		names
}
