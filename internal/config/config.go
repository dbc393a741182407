// Package config loads the configuration of the asyncstep command.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	defaultPollIntervalMillis = 1000
	defaultPoolPolicy         = "queue"
	defaultLogLevel           = "info"
	defaultLogFormat          = "text"

	EnvTimeoutMillis = "ASYNCSTEP_TIMEOUT_MILLIS"
	EnvLogLevel      = "ASYNCSTEP_LOG_LEVEL"
	EnvMetricsAddr   = "ASYNCSTEP_METRICS_ADDR"
)

type Pool struct {
	// Capacity bounds concurrently running workers, 0 means unbounded.
	Capacity int    `yaml:"capacity"`
	Policy   string `yaml:"policy"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config of one backup step run.
type Config struct {
	TimeoutMillis      int64 `yaml:"timeoutMillis"`
	PollIntervalMillis int64 `yaml:"pollIntervalMillis"`
	InterruptOnCancel  bool  `yaml:"interruptOnCancel"`
	Pool               Pool  `yaml:"pool"`

	// Source is the data directory holding the resource categories.
	Source string `yaml:"source"`
	// Target is the backup directory.
	Target string `yaml:"target"`

	// DiagnosticsDB is an optional SQLite file recording diagnostics.
	DiagnosticsDB string `yaml:"diagnosticsDB"`
	// MetricsAddr is an optional listen address serving /metrics and /healthz.
	MetricsAddr string `yaml:"metricsAddr"`

	Log Log `yaml:"log"`
}

func Default() Config {
	return Config{
		PollIntervalMillis: defaultPollIntervalMillis,
		Pool:               Pool{Policy: defaultPoolPolicy},
		Log:                Log{Level: defaultLogLevel, Format: defaultLogFormat},
	}
}

// LoadFile reads the YAML file at path, see Load.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Load(f)
}

// Load decodes YAML over the defaults, applies environment overrides and
// validates the result. Unknown fields are rejected.
func Load(r io.Reader) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvTimeoutMillis); ok && v != "" {
		millis, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeoutMillis, err)
		}
		c.TimeoutMillis = millis
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvMetricsAddr); ok && v != "" {
		c.MetricsAddr = v
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.TimeoutMillis <= 0 {
		errs = append(errs, fmt.Errorf("timeoutMillis must be greater than zero, got %d", c.TimeoutMillis))
	}
	if c.PollIntervalMillis <= 0 {
		errs = append(errs, fmt.Errorf("pollIntervalMillis must be greater than zero, got %d", c.PollIntervalMillis))
	}
	if c.Pool.Capacity < 0 {
		errs = append(errs, fmt.Errorf("pool.capacity must not be negative, got %d", c.Pool.Capacity))
	}
	if c.Pool.Policy != "queue" && c.Pool.Policy != "reject" {
		errs = append(errs, fmt.Errorf("pool.policy must be queue or reject, got %q", c.Pool.Policy))
	}
	if c.Source == "" {
		errs = append(errs, errors.New("source is required"))
	}
	if c.Target == "" {
		errs = append(errs, errors.New("target is required"))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// NewLogger creates a logrus logger writing to w with the configured level
// and formatter. The configuration is expected to be validated.
func NewLogger(w io.Writer, l Log) *logrus.Logger {
	logger := logrus.New()
	logger.Out = w
	if level, err := logrus.ParseLevel(l.Level); err == nil {
		logger.SetLevel(level)
	}
	if strings.EqualFold(l.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	}
	return logger
}
