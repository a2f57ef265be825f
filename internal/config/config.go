package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/ligustah/numsort/internal/progress"
	"github.com/ligustah/numsort/internal/retry"
	"gopkg.in/yaml.v3"
)

// Config defines configuration for the numsort sort command.
type Config struct {
	Input        string        `yaml:"input"`
	Output       string        `yaml:"output"`
	TempURL      string        `yaml:"temp_url"`
	ChunkSize    int           `yaml:"chunk_size"`
	Workers      int           `yaml:"workers"`
	MaxOpenFiles int           `yaml:"max_open_files"`
	ReadBuffer   int64         `yaml:"read_buffer"`
	MergeBuffer  int64         `yaml:"merge_buffer"`
	WriteBuffer  int64         `yaml:"write_buffer"`
	Compress     bool          `yaml:"compress"`
	Checksum     bool          `yaml:"checksum"`
	Mmap         bool          `yaml:"mmap"`
	KeepTemps    bool          `yaml:"keep_temps"`
	Progress     bool          `yaml:"progress"`
	LogScale     bool          `yaml:"log_scale"`
	SortTimeout  time.Duration `yaml:"sort_timeout"`
	Retry        RetryConfig   `yaml:"retry"`
}

// RetryConfig defines retry behavior for temp storage.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// Policy converts the configuration to a retry policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		Attempts:   r.Attempts,
		Backoff:    r.Backoff,
		MaxBackoff: r.MaxBackoff,
	}
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		ChunkSize:    10_000_000,
		Workers:      runtime.NumCPU(),
		MaxOpenFiles: 500,
		ReadBuffer:   8 * 1024 * 1024,
		MergeBuffer:  1024 * 1024,
		WriteBuffer:  8 * 1024 * 1024,
		Checksum:     true,
		SortTimeout:  24 * time.Hour,
		Retry: RetryConfig{
			Attempts:   3,
			Backoff:    500 * time.Millisecond,
			MaxBackoff: 10 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with human-readable sizes and
// durations.
type yamlConfig struct {
	Input        string          `yaml:"input"`
	Output       string          `yaml:"output"`
	TempURL      string          `yaml:"temp_url"`
	ChunkSize    int             `yaml:"chunk_size"`
	Workers      int             `yaml:"workers"`
	MaxOpenFiles int             `yaml:"max_open_files"`
	ReadBuffer   string          `yaml:"read_buffer"`
	MergeBuffer  string          `yaml:"merge_buffer"`
	WriteBuffer  string          `yaml:"write_buffer"`
	Compress     bool            `yaml:"compress"`
	Checksum     *bool           `yaml:"checksum"`
	Mmap         bool            `yaml:"mmap"`
	KeepTemps    bool            `yaml:"keep_temps"`
	Progress     bool            `yaml:"progress"`
	LogScale     bool            `yaml:"log_scale"`
	SortTimeout  string          `yaml:"sort_timeout"`
	Retry        yamlRetryConfig `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts   int    `yaml:"attempts"`
	Backoff    string `yaml:"backoff"`
	MaxBackoff string `yaml:"max_backoff"`
}

// LoadFromFile loads configuration from a YAML file. Keys that are absent
// keep their defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.Input != "" {
		cfg.Input = yc.Input
	}
	if yc.Output != "" {
		cfg.Output = yc.Output
	}
	if yc.TempURL != "" {
		cfg.TempURL = yc.TempURL
	}
	if yc.ChunkSize != 0 {
		cfg.ChunkSize = yc.ChunkSize
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	if yc.MaxOpenFiles != 0 {
		cfg.MaxOpenFiles = yc.MaxOpenFiles
	}
	for _, b := range []struct {
		key string
		val string
		dst *int64
	}{
		{"read_buffer", yc.ReadBuffer, &cfg.ReadBuffer},
		{"merge_buffer", yc.MergeBuffer, &cfg.MergeBuffer},
		{"write_buffer", yc.WriteBuffer, &cfg.WriteBuffer},
	} {
		if b.val == "" {
			continue
		}
		size, err := progress.ParseBytes(b.val)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", b.key, err)
		}
		*b.dst = size
	}
	cfg.Compress = yc.Compress
	if yc.Checksum != nil {
		cfg.Checksum = *yc.Checksum
	}
	cfg.Mmap = yc.Mmap
	cfg.KeepTemps = yc.KeepTemps
	cfg.Progress = yc.Progress
	cfg.LogScale = yc.LogScale
	if yc.SortTimeout != "" {
		d, err := time.ParseDuration(yc.SortTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse sort_timeout: %w", err)
		}
		cfg.SortTimeout = d
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Backoff != "" {
		d, err := time.ParseDuration(yc.Retry.Backoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.backoff: %w", err)
		}
		cfg.Retry.Backoff = d
	}
	if yc.Retry.MaxBackoff != "" {
		d, err := time.ParseDuration(yc.Retry.MaxBackoff)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_backoff: %w", err)
		}
		cfg.Retry.MaxBackoff = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the NUMSORT_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("NUMSORT_INPUT"); v != "" {
		c.Input = v
	}
	if v := os.Getenv("NUMSORT_OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv("NUMSORT_TEMP_URL"); v != "" {
		c.TempURL = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"NUMSORT_CHUNK_SIZE", &c.ChunkSize},
		{"NUMSORT_WORKERS", &c.Workers},
		{"NUMSORT_MAX_OPEN_FILES", &c.MaxOpenFiles},
		{"NUMSORT_RETRY_ATTEMPTS", &c.Retry.Attempts},
	}
	for _, e := range ints {
		if v := os.Getenv(e.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", e.name, err)
			}
			*e.dst = n
		}
	}

	sizes := []struct {
		name string
		dst  *int64
	}{
		{"NUMSORT_READ_BUFFER", &c.ReadBuffer},
		{"NUMSORT_MERGE_BUFFER", &c.MergeBuffer},
		{"NUMSORT_WRITE_BUFFER", &c.WriteBuffer},
	}
	for _, e := range sizes {
		if v := os.Getenv(e.name); v != "" {
			size, err := progress.ParseBytes(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", e.name, err)
			}
			*e.dst = size
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"NUMSORT_COMPRESS", &c.Compress},
		{"NUMSORT_CHECKSUM", &c.Checksum},
		{"NUMSORT_MMAP", &c.Mmap},
		{"NUMSORT_KEEP_TEMPS", &c.KeepTemps},
		{"NUMSORT_PROGRESS", &c.Progress},
		{"NUMSORT_LOG_SCALE", &c.LogScale},
	}
	for _, e := range bools {
		if v := os.Getenv(e.name); v != "" {
			*e.dst = v == "true" || v == "1"
		}
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"NUMSORT_SORT_TIMEOUT", &c.SortTimeout},
		{"NUMSORT_RETRY_BACKOFF", &c.Retry.Backoff},
		{"NUMSORT_RETRY_MAX_BACKOFF", &c.Retry.MaxBackoff},
	}
	for _, e := range durations {
		if v := os.Getenv(e.name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", e.name, err)
			}
			*e.dst = d
		}
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Input == "" {
		return errors.New("config: input is required")
	}
	if c.Output == "" {
		return errors.New("config: output is required")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.MaxOpenFiles < 2 {
		return errors.New("config: max_open_files must be at least 2")
	}
	if c.ReadBuffer <= 0 || c.MergeBuffer <= 0 || c.WriteBuffer <= 0 {
		return errors.New("config: buffer sizes must be positive")
	}
	if c.SortTimeout <= 0 {
		return errors.New("config: sort_timeout must be positive")
	}
	if c.Retry.Attempts < 0 {
		return errors.New("config: retry.attempts must not be negative")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored, so a bool can only be switched on.
func (c Config) Merge(override Config) Config {
	if override.Input != "" {
		c.Input = override.Input
	}
	if override.Output != "" {
		c.Output = override.Output
	}
	if override.TempURL != "" {
		c.TempURL = override.TempURL
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.MaxOpenFiles != 0 {
		c.MaxOpenFiles = override.MaxOpenFiles
	}
	if override.ReadBuffer != 0 {
		c.ReadBuffer = override.ReadBuffer
	}
	if override.MergeBuffer != 0 {
		c.MergeBuffer = override.MergeBuffer
	}
	if override.WriteBuffer != 0 {
		c.WriteBuffer = override.WriteBuffer
	}
	if override.Compress {
		c.Compress = true
	}
	if override.Checksum {
		c.Checksum = true
	}
	if override.Mmap {
		c.Mmap = true
	}
	if override.KeepTemps {
		c.KeepTemps = true
	}
	if override.Progress {
		c.Progress = true
	}
	if override.LogScale {
		c.LogScale = true
	}
	if override.SortTimeout != 0 {
		c.SortTimeout = override.SortTimeout
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}
