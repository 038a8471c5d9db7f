package config

import (
	"os"
	"time"

	"codeberg.org/mutker/capturectl/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel = "info"

	defaultFrameRate      = 30
	defaultStatusInterval = 1000
	defaultQueueDepth     = 256
	defaultTelemetryDB    = "/var/lib/capturectl/telemetry.db"
)

// Config holds the engine configuration, layered from the config file,
// CAPTURECTL_* environment variables and command-line flags.
type Config struct {
	FrameRate      int    `mapstructure:"framerate"`
	Microphone     bool   `mapstructure:"microphone"`
	OutputDir      string `mapstructure:"output_dir"`
	StatusInterval int    `mapstructure:"status_interval"` // milliseconds
	QueueDepth     int    `mapstructure:"queue_depth"`
	Telemetry      bool   `mapstructure:"telemetry"`
	TelemetryDB    string `mapstructure:"database"`
	LogLevel       string `mapstructure:"log_level"`
}

// StatusPollInterval returns the status poll cadence as a duration.
func (c *Config) StatusPollInterval() time.Duration {
	return time.Duration(c.StatusInterval) * time.Millisecond
}

// Load reads configuration from all sources and validates it.
func Load() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	v.SetDefault("framerate", defaultFrameRate)
	v.SetDefault("microphone", true)
	v.SetDefault("output_dir", defaultOutputDir())
	v.SetDefault("status_interval", defaultStatusInterval)
	v.SetDefault("queue_depth", defaultQueueDepth)
	v.SetDefault("telemetry", false)
	v.SetDefault("database", defaultTelemetryDB)
	v.SetDefault("log_level", DefaultLogLevel)

	flags := pflag.NewFlagSet("capturectl", pflag.ContinueOnError)
	flags.ParseErrorsWhitelist.UnknownFlags = true
	flags.Int("framerate", defaultFrameRate, "Target capture frame rate")
	flags.Bool("microphone", true, "Enable microphone capture")
	flags.String("output-dir", defaultOutputDir(), "Directory for recording segments")
	flags.Int("status-interval", defaultStatusInterval, "Status poll interval in milliseconds")
	flags.Bool("telemetry", false, "Persist telemetry snapshots to the database")
	flags.String("database", defaultTelemetryDB, "Path to the telemetry database")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	bindings := map[string]string{
		"framerate":       "framerate",
		"microphone":      "microphone",
		"output_dir":      "output-dir",
		"status_interval": "status-interval",
		"telemetry":       "telemetry",
		"database":        "database",
		"log_level":       "log-level",
	}
	for key, flagName := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(flagName)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix("CAPTURECTL")
	v.AutomaticEnv()

	if configPath := os.Getenv("CAPTURECTL_CONFIG"); configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("capturectl")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks if the current configuration is valid.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !validLogLevel(c.LogLevel) {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.StatusInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "status_interval must be positive")
	}
	if c.QueueDepth <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "queue_depth must be positive")
	}
	if c.OutputDir == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "output_dir must be set")
	}
	if c.Telemetry && c.TelemetryDB == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "database must be set when telemetry is enabled")
	}

	return nil
}

func validLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}

func defaultOutputDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/capturectl/recordings"
	}

	return os.TempDir()
}
