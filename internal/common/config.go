package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Export      ExportDirConfig `toml:"export"`
	Render      RenderConfig    `toml:"render"`
	Timeout     TimeoutConfig   `toml:"timeout"`
	Progress    ProgressConfig  `toml:"progress"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// ExportDirConfig is the [export] section: what to export and where.
type ExportDirConfig struct {
	OutputDirectory  string   `toml:"output_directory" validate:"required"`
	Formats          []string `toml:"formats" validate:"required,min=1"`
	Theme            string   `toml:"theme"`
	BackgroundColor  string   `toml:"background_color"`
	NamingStrategy   string   `toml:"naming_strategy"` // sequential, descriptive, source-line, template
	NameTemplate     string   `toml:"name_template"`
	OrganizeByFormat bool     `toml:"organize_by_format"`
	Overwrite        bool     `toml:"overwrite"`
	MaxDepth         int      `toml:"max_depth" validate:"min=1"`
	Width            int      `toml:"width"`
	Height           int      `toml:"height"`
}

// RenderConfig is the [render] section: backend selection and tuning.
type RenderConfig struct {
	CLICommand         string        `toml:"cli_command"`          // mermaid CLI binary (default: "mmdc")
	Headless           bool          `toml:"headless"`             // headless Chrome for the web strategy
	NoSandbox          bool          `toml:"no_sandbox"`           // pass --no-sandbox to Chrome
	DisableGPU         bool          `toml:"disable_gpu"`          // pass --disable-gpu to Chrome
	RequestTimeout     time.Duration `toml:"request_timeout"`      // per-render timeout
	MermaidJSPath      string        `toml:"mermaid_js_path"`      // local mermaid.js bundle for offline rendering
	JavaScriptWaitTime time.Duration `toml:"javascript_wait_time"` // settle time after render call
}

// TimeoutConfig is the [timeout] section: watchdog thresholds and throttle.
// Zero thresholds use the per-operation-type defaults.
type TimeoutConfig struct {
	SoftTimeout    time.Duration `toml:"soft_timeout"`
	MediumTimeout  time.Duration `toml:"medium_timeout"`
	HardTimeout    time.Duration `toml:"hard_timeout"`
	NuclearTimeout time.Duration `toml:"nuclear_timeout"`
	ExportCooldown time.Duration `toml:"export_cooldown"` // minimum gap between export starts
}

// ProgressConfig is the [progress] section: tick and cleanup tuning.
type ProgressConfig struct {
	TickInterval    time.Duration `toml:"tick_interval"`    // metrics/notification tick (default: 100ms)
	StaleTimeout    time.Duration `toml:"stale_timeout"`    // auto-cleanup threshold (default: 5m)
	MemoryThreshold uint64        `toml:"memory_threshold"` // bytes before a memory warning (default: 256MB)
	HistorySize     int           `toml:"history_size"`     // performance ring buffer entries (default: 100)
}

// SchedulerConfig is the [scheduler] section: cron-driven re-export.
type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron expression
	Root     string `toml:"root"`     // directory re-exported on each tick
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // time format for logs
}

// NewDefaultConfig returns a configuration with production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Server: ServerConfig{
			Port: 8190,
			Host: "localhost",
		},
		Export: ExportDirConfig{
			OutputDirectory: "./exports",
			Formats:         []string{"svg", "png"},
			Theme:           "default",
			BackgroundColor: "transparent",
			NamingStrategy:  "descriptive",
			MaxDepth:        10,
		},
		Render: RenderConfig{
			CLICommand:         "mmdc",
			Headless:           true,
			DisableGPU:         true,
			RequestTimeout:     30 * time.Second,
			JavaScriptWaitTime: 2 * time.Second,
		},
		Timeout: TimeoutConfig{
			// Zero thresholds fall back to the per-operation-type defaults.
			ExportCooldown: time.Second,
		},
		Progress: ProgressConfig{
			TickInterval:    100 * time.Millisecond,
			StaleTimeout:    5 * time.Minute,
			MemoryThreshold: 256 * 1024 * 1024,
			HistorySize:     100,
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "0 * * * *",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/history",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
	}
}

// LoadFromFiles loads configuration starting from defaults, merging each
// file in order (later files override earlier ones), then applying
// environment overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c.Export); err != nil {
		return fmt.Errorf("invalid export configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
// Environment variables take precedence over all config files.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("MERMAID_EXPORT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("MERMAID_EXPORT_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("MERMAID_EXPORT_OUTPUT_DIR"); v != "" {
		config.Export.OutputDirectory = v
	}
	if v := os.Getenv("MERMAID_EXPORT_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("MERMAID_EXPORT_CLI"); v != "" {
		config.Render.CLICommand = v
	}
}
