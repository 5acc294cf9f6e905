package main

import (
	"fmt"

	"github.com/alnah/go-mml2svg/internal/yamlutil"
)

// runConfigCmd prints the effective configuration as YAML.
// The output can be saved and passed back with --config.
func runConfigCmd(args []string, env *Environment) error {
	flags, err := parseConfigFlags(args, env.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(&flags.common, env)
	if err != nil {
		return err
	}
	mergeEngineFlags(&flags.engine, cfg)
	mergePoolFlags(&flags.pool, cfg)
	setString(&cfg.Server.Listen, flags.listen)
	if err := cfg.Validate(); err != nil {
		return err
	}

	out, err := yamlutil.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	_, err = env.Stdout.Write(out)
	return err
}
