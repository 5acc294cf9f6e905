package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/alnah/go-mml2svg/internal/config"
)

const envPrefix = "MML2SVG_"

// envConfig holds configuration from environment variables.
// Provides container-friendly overrides without requiring YAML files.
type envConfig struct {
	ConfigPath string        // MML2SVG_CONFIG: config file name or path
	Java       string        // MML2SVG_JAVA: java executable
	SaxonJar   string        // MML2SVG_SAXON_JAR: Saxon jar path
	Stylesheet string        // MML2SVG_STYLESHEET: stylesheet path
	Marker     string        // MML2SVG_MARKER: protocol marker
	Timeout    time.Duration // MML2SVG_TIMEOUT: per-job timeout
	Workers    int           // MML2SVG_WORKERS: engine processes
	Listen     string        // MML2SVG_LISTEN: server address
	LogLevel   string        // MML2SVG_LOG_LEVEL
	LogFormat  string        // MML2SVG_LOG_FORMAT
	OutputDir  string        // MML2SVG_OUTPUT_DIR: default output directory
}

// knownEnvVars lists valid MML2SVG_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	"MML2SVG_CONFIG":     true,
	"MML2SVG_JAVA":       true,
	"MML2SVG_SAXON_JAR":  true,
	"MML2SVG_STYLESHEET": true,
	"MML2SVG_MARKER":     true,
	"MML2SVG_TIMEOUT":    true,
	"MML2SVG_WORKERS":    true,
	"MML2SVG_LISTEN":     true,
	"MML2SVG_LOG_LEVEL":  true,
	"MML2SVG_LOG_FORMAT": true,
	"MML2SVG_OUTPUT_DIR": true,
	"MML2SVG_CONTAINER":  true, // read by doctor
}

// loadEnvConfig reads configuration through getenv.
// Unparseable timeout and worker values are ignored.
func loadEnvConfig(getenv func(string) string) *envConfig {
	cfg := &envConfig{
		ConfigPath: getenv("MML2SVG_CONFIG"),
		Java:       getenv("MML2SVG_JAVA"),
		SaxonJar:   getenv("MML2SVG_SAXON_JAR"),
		Stylesheet: getenv("MML2SVG_STYLESHEET"),
		Marker:     getenv("MML2SVG_MARKER"),
		Listen:     getenv("MML2SVG_LISTEN"),
		LogLevel:   getenv("MML2SVG_LOG_LEVEL"),
		LogFormat:  getenv("MML2SVG_LOG_FORMAT"),
		OutputDir:  getenv("MML2SVG_OUTPUT_DIR"),
	}

	if timeout := getenv("MML2SVG_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}

	if workers := getenv("MML2SVG_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			cfg.Workers = w
		}
	}

	return cfg
}

// warnUnknownEnvVars writes a warning for each unrecognized MML2SVG_* variable.
// Helps catch typos like MML2SVG_STYLESHET.
func warnUnknownEnvVars(w io.Writer, environ []string) {
	for _, env := range environ {
		if !strings.HasPrefix(env, envPrefix) {
			continue
		}
		name, _, _ := strings.Cut(env, "=")
		if !knownEnvVars[name] {
			fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
		}
	}
}

// applyEnvConfig overrides config values with those set in the environment.
// Precedence: CLI flags > env vars > config file > defaults
// (CLI flags are applied later by the merge functions).
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	setString(&cfg.Engine.Java, env.Java)
	setString(&cfg.Engine.SaxonJar, env.SaxonJar)
	setString(&cfg.Engine.Stylesheet, env.Stylesheet)
	setString(&cfg.Engine.Marker, env.Marker)
	setString(&cfg.Server.Listen, env.Listen)
	setString(&cfg.Log.Level, env.LogLevel)
	setString(&cfg.Log.Format, env.LogFormat)
	setString(&cfg.Output.DefaultDir, env.OutputDir)

	if env.Timeout > 0 {
		cfg.Pool.JobTimeout = env.Timeout.String()
	}
	if env.Workers > 0 {
		cfg.Pool.Workers = env.Workers
	}
}

// setString assigns v to *dst unless v is empty.
func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
