package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alnah/go-mml2svg/internal/config"
	"github.com/alnah/go-mml2svg/internal/fileutil"
	"github.com/alnah/go-mml2svg/internal/hints"
	"github.com/alnah/go-mml2svg/internal/logging"
)

// loadConfig builds the effective configuration before command flags:
// the config file named by --config or MML2SVG_CONFIG (defaults if neither),
// then environment overrides, then the common flags.
func loadConfig(common *commonFlags, env *Environment) (*config.Config, error) {
	envCfg := loadEnvConfig(env.Getenv)

	name := common.config
	if name == "" {
		name = envCfg.ConfigPath
	}

	cfg := config.DefaultConfig()
	if name != "" {
		loaded, err := config.LoadConfig(name)
		if err != nil {
			if errors.Is(err, config.ErrConfigNotFound) {
				return nil, fmt.Errorf("loading config: %w%s", err, hints.ForConfigNotFound(userConfigPaths(name)))
			}
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	applyEnvConfig(envCfg, cfg)
	mergeCommonFlags(common, cfg)
	return cfg, nil
}

// userConfigPaths returns where a named config would be looked up
// under the user config directory.
func userConfigPaths(name string) []string {
	if fileutil.IsFilePath(name) {
		return nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(dir, "go-mml2svg", name+".yaml")}
}

// mergeCommonFlags applies logging flags. --verbose wins over --quiet.
func mergeCommonFlags(f *commonFlags, cfg *config.Config) {
	setString(&cfg.Log.Level, f.logLevel)
	setString(&cfg.Log.Format, f.logFormat)
	if f.verbose {
		cfg.Log.Level = "debug"
	} else if f.quiet && f.logLevel == "" {
		cfg.Log.Level = "error"
	}
}

// mergeEngineFlags applies engine flags that were set.
func mergeEngineFlags(f *engineFlags, cfg *config.Config) {
	setString(&cfg.Engine.Java, f.java)
	setString(&cfg.Engine.SaxonJar, f.saxonJar)
	setString(&cfg.Engine.Stylesheet, f.stylesheet)
	setString(&cfg.Engine.Marker, f.marker)
}

// mergePoolFlags applies pool flags that were set.
func mergePoolFlags(f *poolFlags, cfg *config.Config) {
	if f.workers > 0 {
		cfg.Pool.Workers = f.workers
	}
	setString(&cfg.Pool.JobTimeout, f.timeout)
}

// newLogger builds the command logger from the log settings.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return logging.New(w, logging.Options{
		Level: cfg.Log.Level,
		JSON:  logging.IsJSON(cfg.Log.Format),
	})
}
