// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. VSHARK_CAPTURE_INTERFACE.
const EnvPrefix = "VSHARK"

// minBufferCeiling keeps the frame buffer larger than the biggest IPv4 frame.
const minBufferCeiling = 64 * 1024

// Config is the top-level configuration.
type Config struct {
	Capture  CaptureConfig  `mapstructure:"capture" yaml:"capture"`
	Framer   FramerConfig   `mapstructure:"framer" yaml:"framer"`
	History  HistoryConfig  `mapstructure:"history" yaml:"history"`
	Activity ActivityConfig `mapstructure:"activity" yaml:"activity"`
	UI       UIConfig       `mapstructure:"ui" yaml:"ui"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Export   ExportConfig   `mapstructure:"export" yaml:"export"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// CaptureConfig describes the capture feed.
type CaptureConfig struct {
	Command   string   `mapstructure:"command" yaml:"command"`
	Interface string   `mapstructure:"interface" yaml:"interface"`
	Format    string   `mapstructure:"format" yaml:"format"` // pcap | raw
	FIFO      string   `mapstructure:"fifo" yaml:"fifo"`     // empty = stdout pipe
	File      string   `mapstructure:"file" yaml:"file"`     // replay instead of spawning
	Args      []string `mapstructure:"args" yaml:"args"`     // replaces the default arguments
	ExtraArgs []string `mapstructure:"extra_args" yaml:"extra_args"`
}

// FramerConfig configures the stream framer.
type FramerConfig struct {
	BufferCeiling  int  `mapstructure:"buffer_ceiling" yaml:"buffer_ceiling"`
	ReadSize       int  `mapstructure:"read_size" yaml:"read_size"`
	VerifyChecksum bool `mapstructure:"verify_checksum" yaml:"verify_checksum"`
}

// HistoryConfig bounds the packet history.
type HistoryConfig struct {
	Capacity int `mapstructure:"capacity" yaml:"capacity"`
}

// ActivityConfig configures the packet rate series.
type ActivityConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Window   int           `mapstructure:"window" yaml:"window"`
}

// UIConfig sets the foreground loop cadence.
type UIConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval" yaml:"refresh_interval"`
	PollTimeout     time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
}

// EngineConfig sizes the record queue between worker and foreground.
type EngineConfig struct {
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// ServerConfig configures the remote view.
type ServerConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// ExportConfig configures optional record export.
type ExportConfig struct {
	NATS NATSConfig `mapstructure:"nats" yaml:"nats"`
}

// NATSConfig configures the NATS record tap.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
	Buffer  int    `mapstructure:"buffer" yaml:"buffer"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string        `mapstructure:"level" yaml:"level"`
	Format string        `mapstructure:"format" yaml:"format"` // text | json
	File   LogFileConfig `mapstructure:"file" yaml:"file"`
}

// LogFileConfig configures the rotated log file.
type LogFileConfig struct {
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"interface": "capture.interface",
	"file":      "capture.file",
	"format":    "capture.format",
	"fifo":      "capture.fifo",
	"listen":    "server.listen",
	"log-level": "log.level",
}

// Load reads the configuration. path may be empty, in which case only
// defaults, environment and flags apply. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg, err := Load("", nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	// Capture
	v.SetDefault("capture.command", "dumpcap")
	v.SetDefault("capture.interface", "any")
	v.SetDefault("capture.format", "pcap")
	v.SetDefault("capture.fifo", "")
	v.SetDefault("capture.file", "")
	v.SetDefault("capture.args", []string{})
	v.SetDefault("capture.extra_args", []string{})

	// Framer
	v.SetDefault("framer.buffer_ceiling", 1<<20)
	v.SetDefault("framer.read_size", 4096)
	v.SetDefault("framer.verify_checksum", true)

	// State
	v.SetDefault("history.capacity", 50)
	v.SetDefault("activity.interval", 200*time.Millisecond)
	v.SetDefault("activity.window", 100)
	v.SetDefault("ui.refresh_interval", 50*time.Millisecond)
	v.SetDefault("ui.poll_timeout", 20*time.Millisecond)
	v.SetDefault("engine.queue_size", 4096)

	// Outer surfaces
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("export.nats.enabled", false)
	v.SetDefault("export.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("export.nats.subject", "vshark.records")
	v.SetDefault("export.nats.buffer", 1024)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file.path", "vshark.log")
	v.SetDefault("log.file.max_size_mb", 10)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.max_age_days", 7)
	v.SetDefault("log.file.compress", false)
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Capture.Format) {
	case "pcap", "raw":
	default:
		return fmt.Errorf("capture.format must be pcap or raw, got %q", c.Capture.Format)
	}
	if c.Capture.File == "" && c.Capture.Command == "" {
		return fmt.Errorf("capture.command is required when capture.file is empty")
	}
	if c.Framer.BufferCeiling < minBufferCeiling {
		return fmt.Errorf("framer.buffer_ceiling must be at least %d, got %d", minBufferCeiling, c.Framer.BufferCeiling)
	}
	if c.Framer.ReadSize <= 0 {
		return fmt.Errorf("framer.read_size must be positive, got %d", c.Framer.ReadSize)
	}
	if c.History.Capacity <= 0 {
		return fmt.Errorf("history.capacity must be positive, got %d", c.History.Capacity)
	}
	if c.Activity.Interval <= 0 {
		return fmt.Errorf("activity.interval must be positive, got %s", c.Activity.Interval)
	}
	if c.Activity.Window <= 0 {
		return fmt.Errorf("activity.window must be positive, got %d", c.Activity.Window)
	}
	if c.UI.RefreshInterval <= 0 || c.UI.PollTimeout <= 0 {
		return fmt.Errorf("ui.refresh_interval and ui.poll_timeout must be positive")
	}
	if c.Engine.QueueSize <= 0 {
		return fmt.Errorf("engine.queue_size must be positive, got %d", c.Engine.QueueSize)
	}
	if c.Export.NATS.Enabled {
		if c.Export.NATS.Subject == "" {
			return fmt.Errorf("export.nats.subject is required when export is enabled")
		}
		if c.Export.NATS.Buffer <= 0 {
			return fmt.Errorf("export.nats.buffer must be positive, got %d", c.Export.NATS.Buffer)
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}
