// Package config loads the motion recorder settings from a flat JSON file.
// Every field is optional; the Get* accessors fall back to the defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/motion.report/internal/window"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/motion.defaults.json"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	defaultListenHost       = "0.0.0.0"
	defaultListenPort       = 30007
	defaultReadChunkBytes   = 1024
	defaultOutputDir        = "output"
	defaultDBPath           = "motion.db"
	defaultAdminListen      = "localhost:8080"
	defaultAsyncRender      = true
	defaultReadPollInterval = 100 * time.Millisecond
)

// Config is the root configuration.
type Config struct {
	// Listener
	ListenHost     *string `json:"listen_host,omitempty"`
	ListenPort     *int    `json:"listen_port,omitempty"`
	ReadChunkBytes *int    `json:"read_chunk_bytes,omitempty"`

	// Window rotation
	WindowSize      *int     `json:"window_size,omitempty"`
	ArmThreshold    *int     `json:"arm_threshold,omitempty"`
	RotateThreshold *int     `json:"rotate_threshold,omitempty"`
	SampleRate      *float64 `json:"sample_rate,omitempty"`
	GyroScale       *float64 `json:"gyro_scale,omitempty"`

	// Outputs
	OutputDir   *string `json:"output_dir,omitempty"`
	DBPath      *string `json:"db_path,omitempty"`
	AdminListen *string `json:"admin_listen,omitempty"`
	AsyncRender *bool   `json:"async_render,omitempty"`

	ReadPollInterval *string `json:"read_poll_interval,omitempty"` // duration string like "100ms"
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// DefaultConfig returns a Config with every field populated.
func DefaultConfig() *Config {
	w := window.DefaultConfig()
	return &Config{
		ListenHost:       ptrString(defaultListenHost),
		ListenPort:       ptrInt(defaultListenPort),
		ReadChunkBytes:   ptrInt(defaultReadChunkBytes),
		WindowSize:       ptrInt(w.Size),
		ArmThreshold:     ptrInt(w.ArmAt),
		RotateThreshold:  ptrInt(w.RotateBelow),
		SampleRate:       ptrFloat64(w.SampleRate),
		GyroScale:        ptrFloat64(w.GyroScale),
		OutputDir:        ptrString(defaultOutputDir),
		DBPath:           ptrString(defaultDBPath),
		AdminListen:      ptrString(defaultAdminListen),
		AsyncRender:      ptrBool(defaultAsyncRender),
		ReadPollInterval: ptrString(defaultReadPollInterval.String()),
	}
}

// LoadConfig loads a Config from a JSON file. The file must have a .json
// extension and be under 1MB. Omitted fields stay nil and read as defaults.
func LoadConfig(path string) (*Config, error) {
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

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that are set, then the effective window
// thresholds as a whole.
func (c *Config) Validate() error {
	if c.ListenPort != nil && (*c.ListenPort < 0 || *c.ListenPort > 65535) {
		return fmt.Errorf("%w: listen_port must be between 0 and 65535, got %d", ErrInvalidConfig, *c.ListenPort)
	}
	if c.ReadChunkBytes != nil && *c.ReadChunkBytes <= 0 {
		return fmt.Errorf("%w: read_chunk_bytes must be positive, got %d", ErrInvalidConfig, *c.ReadChunkBytes)
	}
	if c.OutputDir != nil && *c.OutputDir == "" {
		return fmt.Errorf("%w: output_dir must not be empty", ErrInvalidConfig)
	}
	if c.ReadPollInterval != nil && *c.ReadPollInterval != "" {
		d, err := time.ParseDuration(*c.ReadPollInterval)
		if err != nil {
			return fmt.Errorf("%w: read_poll_interval %q: %v", ErrInvalidConfig, *c.ReadPollInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("%w: read_poll_interval must be positive, got %s", ErrInvalidConfig, d)
		}
	}
	if err := c.WindowConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// WindowConfig returns the effective rotation thresholds.
func (c *Config) WindowConfig() window.Config {
	w := window.DefaultConfig()
	if c.WindowSize != nil {
		w.Size = *c.WindowSize
	}
	if c.ArmThreshold != nil {
		w.ArmAt = *c.ArmThreshold
	}
	if c.RotateThreshold != nil {
		w.RotateBelow = *c.RotateThreshold
	}
	if c.SampleRate != nil {
		w.SampleRate = *c.SampleRate
	}
	if c.GyroScale != nil {
		w.GyroScale = *c.GyroScale
	}
	return w
}

// GetListenHost returns the listen_host value or the default.
func (c *Config) GetListenHost() string {
	if c.ListenHost == nil {
		return defaultListenHost
	}
	return *c.ListenHost
}

// GetListenPort returns the listen_port value or the default.
func (c *Config) GetListenPort() int {
	if c.ListenPort == nil {
		return defaultListenPort
	}
	return *c.ListenPort
}

// GetListenAddr joins the listen host and port.
func (c *Config) GetListenAddr() string {
	return net.JoinHostPort(c.GetListenHost(), strconv.Itoa(c.GetListenPort()))
}

// GetReadChunkBytes returns the read_chunk_bytes value or the default.
func (c *Config) GetReadChunkBytes() int {
	if c.ReadChunkBytes == nil {
		return defaultReadChunkBytes
	}
	return *c.ReadChunkBytes
}

// GetOutputDir returns the output_dir value or the default.
func (c *Config) GetOutputDir() string {
	if c.OutputDir == nil {
		return defaultOutputDir
	}
	return *c.OutputDir
}

// GetDBPath returns the db_path value or the default.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return defaultDBPath
	}
	return *c.DBPath
}

// GetAdminListen returns the admin_listen value or the default.
func (c *Config) GetAdminListen() string {
	if c.AdminListen == nil {
		return defaultAdminListen
	}
	return *c.AdminListen
}

// GetAsyncRender returns the async_render value or the default.
func (c *Config) GetAsyncRender() bool {
	if c.AsyncRender == nil {
		return defaultAsyncRender
	}
	return *c.AsyncRender
}

// GetReadPollInterval parses and returns the read_poll_interval.
func (c *Config) GetReadPollInterval() time.Duration {
	if c.ReadPollInterval == nil || *c.ReadPollInterval == "" {
		return defaultReadPollInterval
	}
	d, err := time.ParseDuration(*c.ReadPollInterval)
	if err != nil || d <= 0 {
		return defaultReadPollInterval // default on parse error
	}
	return d
}
