// Package config loads the YAML configuration of the mml2svg command.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-mml2svg/internal/fileutil"
	"github.com/alnah/go-mml2svg/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrInvalidValue    = errors.New("invalid config value")
)

// Field limits.
const (
	MaxPathLength   = 4096 // PATH_MAX on Linux
	MaxMarkerLength = 64
	MaxListenLength = 255
	MaxWorkers      = 64
	MaxParams       = 64
)

// appDir is the directory searched under the user config directory.
const appDir = "go-mml2svg"

// Defaults applied by DefaultConfig.
const (
	DefaultListen       = "127.0.0.1:6543"
	DefaultJobTimeout   = "30s"
	DefaultStartTimeout = "60s"
	DefaultStopGrace    = "5s"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// Config holds all configuration for the command.
type Config struct {
	Engine EngineConfig `yaml:"engine"`
	Pool   PoolConfig   `yaml:"pool"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
	Output OutputConfig `yaml:"output"`
}

// EngineConfig defines how the XSLT engine is launched.
type EngineConfig struct {
	Java       string            `yaml:"java"`               // executable (default: "java")
	JavaOpts   []string          `yaml:"javaOpts,omitempty"` // e.g. ["-Xss8m"]
	SaxonJar   string            `yaml:"saxonJar"`           // empty = run java directly
	Stylesheet string            `yaml:"stylesheet"`         // required
	Args       []string          `yaml:"args,omitempty"`     // extra engine arguments
	Params     map[string]string `yaml:"params,omitempty"`   // stylesheet parameters
	Marker     string            `yaml:"marker"`             // protocol marker (empty = default)
}

// PoolConfig defines worker pool behavior. Durations use Go syntax ("30s").
type PoolConfig struct {
	Workers      int    `yaml:"workers"`          // 0 = auto from GOMAXPROCS
	JobTimeout   string `yaml:"jobTimeout"`       // per job
	StartTimeout string `yaml:"startTimeout"`     // launch and warm-up
	StopGrace    string `yaml:"stopGrace"`        // wait before killing
	Warmup       *bool  `yaml:"warmup,omitempty"` // nil = enabled
	CarryLimit   int    `yaml:"carryLimit"`       // 0 = library default
	LineLimit    int    `yaml:"lineLimit"`        // 0 = library default
}

// ServerConfig defines the HTTP endpoint.
type ServerConfig struct {
	Listen       string `yaml:"listen"`
	MaxBodyBytes int64  `yaml:"maxBodyBytes"` // 0 = server default
}

// LogConfig defines log output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// OutputConfig defines where batch conversions write.
type OutputConfig struct {
	DefaultDir string `yaml:"defaultDir"` // empty = next to the source
}

// Timeouts holds the parsed pool durations.
type Timeouts struct {
	Job   time.Duration
	Start time.Duration
	Grace time.Duration
}

// Timeouts parses the pool durations. Empty fields take their defaults.
func (p PoolConfig) Timeouts() (Timeouts, error) {
	var t Timeouts
	var err error
	if t.Job, err = parseDuration("pool.jobTimeout", p.JobTimeout, DefaultJobTimeout); err != nil {
		return t, err
	}
	if t.Start, err = parseDuration("pool.startTimeout", p.StartTimeout, DefaultStartTimeout); err != nil {
		return t, err
	}
	if t.Grace, err = parseDuration("pool.stopGrace", p.StopGrace, DefaultStopGrace); err != nil {
		return t, err
	}
	return t, nil
}

// WarmupEnabled reports whether workers run a handshake document at start.
func (p PoolConfig) WarmupEnabled() bool {
	return p.Warmup == nil || *p.Warmup
}

func parseDuration(field, value, fallback string) (time.Duration, error) {
	if value == "" {
		value = fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidValue, field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %s: must be positive, got %s", ErrInvalidValue, field, value)
	}
	return d, nil
}

// Validate checks field values and lengths.
// Called automatically by LoadConfig, but available for callers that
// assemble a Config from flags and environment.
func (c *Config) Validate() error {
	paths := []struct{ name, value string }{
		{"engine.java", c.Engine.Java},
		{"engine.saxonJar", c.Engine.SaxonJar},
		{"engine.stylesheet", c.Engine.Stylesheet},
		{"output.defaultDir", c.Output.DefaultDir},
	}
	for _, p := range paths {
		if err := validateFieldLength(p.name, p.value, MaxPathLength); err != nil {
			return err
		}
	}
	if err := validateFieldLength("engine.marker", c.Engine.Marker, MaxMarkerLength); err != nil {
		return err
	}
	if strings.ContainsAny(c.Engine.Marker, " \t\r\n=") {
		return fmt.Errorf("%w: engine.marker: %q must not contain spaces or '='", ErrInvalidValue, c.Engine.Marker)
	}
	if len(c.Engine.Params) > MaxParams {
		return fmt.Errorf("%w: engine.params: %d entries (max %d)", ErrInvalidValue, len(c.Engine.Params), MaxParams)
	}
	for name := range c.Engine.Params {
		if name == "" || strings.ContainsAny(name, " \t=") {
			return fmt.Errorf("%w: engine.params: invalid parameter name %q", ErrInvalidValue, name)
		}
	}

	if c.Pool.Workers < 0 || c.Pool.Workers > MaxWorkers {
		return fmt.Errorf("%w: pool.workers: must be between 0 and %d, got %d", ErrInvalidValue, MaxWorkers, c.Pool.Workers)
	}
	if c.Pool.CarryLimit < 0 {
		return fmt.Errorf("%w: pool.carryLimit: must not be negative", ErrInvalidValue)
	}
	if c.Pool.LineLimit < 0 {
		return fmt.Errorf("%w: pool.lineLimit: must not be negative", ErrInvalidValue)
	}
	if _, err := c.Pool.Timeouts(); err != nil {
		return err
	}

	if c.Server.Listen == "" {
		return fmt.Errorf("%w: server.listen: must not be empty", ErrInvalidValue)
	}
	if err := validateFieldLength("server.listen", c.Server.Listen, MaxListenLength); err != nil {
		return err
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("%w: server.maxBodyBytes: must not be negative", ErrInvalidValue)
	}

	if c.Log.Level != "" {
		switch strings.ToLower(c.Log.Level) {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("%w: log.level: %q (must be debug, info, warn, or error)", ErrInvalidValue, c.Log.Level)
		}
	}
	if c.Log.Format != "" {
		switch strings.ToLower(c.Log.Format) {
		case "text", "json":
		default:
			return fmt.Errorf("%w: log.format: %q (must be text or json)", ErrInvalidValue, c.Log.Format)
		}
	}
	return nil
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			JobTimeout:   DefaultJobTimeout,
			StartTimeout: DefaultStartTimeout,
			StopGrace:    DefaultStopGrace,
		},
		Server: ServerConfig{Listen: DefaultListen},
		Log:    LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Returns error if the file is not found (no silent fallback).
//
// Fields left out of the file keep their DefaultConfig values. Relative
// engine paths are resolved against the config file's directory.
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if fileutil.IsFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	cfg := DefaultConfig()
	if err := yamlutil.ReadFileStrict(configPath, cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := filepath.Dir(configPath)
	cfg.Engine.SaxonJar = resolveRelative(base, cfg.Engine.SaxonJar)
	cfg.Engine.Stylesheet = resolveRelative(base, cfg.Engine.Stylesheet)

	return cfg, nil
}

// resolveRelative anchors a relative path at base. Empty stays empty.
func resolveRelative(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/go-mml2svg/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		localPath := name + ext
		if fileutil.FileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, appDir, name+ext)
			if fileutil.FileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}
