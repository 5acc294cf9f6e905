package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alnah/go-mml2svg"
	"github.com/alnah/go-mml2svg/internal/config"
)

// Pool abstracts the engine pool for testability.
type Pool interface {
	Convert(ctx context.Context, doc mml2svg.Document) (*mml2svg.Result, error)
	States() []mml2svg.State
	Start(ctx context.Context) error
	Stop() error
	Size() int
}

// Compile-time check that mml2svg.Pool implements Pool.
var _ Pool = (*mml2svg.Pool)(nil)

// PoolFactory creates a pool of the given size.
type PoolFactory func(size int, opts ...mml2svg.Option) (Pool, error)

func newEnginePool(size int, opts ...mml2svg.Option) (Pool, error) {
	p, err := mml2svg.NewPool(size, opts...)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// poolOptions translates the configuration into library options.
// reg may be nil to leave metrics unregistered.
func poolOptions(cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) ([]mml2svg.Option, error) {
	t, err := cfg.Pool.Timeouts()
	if err != nil {
		return nil, err
	}

	opts := []mml2svg.Option{
		mml2svg.WithEngine(engineConfig(cfg.Engine)),
		mml2svg.WithJobTimeout(t.Job),
		mml2svg.WithStartTimeout(t.Start),
		mml2svg.WithStopGrace(t.Grace),
		mml2svg.WithLogger(logger),
	}
	if cfg.Engine.Marker != "" {
		opts = append(opts, mml2svg.WithMarker(cfg.Engine.Marker))
	}
	if !cfg.Pool.WarmupEnabled() {
		opts = append(opts, mml2svg.WithWarmup(nil))
	}
	if cfg.Pool.CarryLimit > 0 || cfg.Pool.LineLimit > 0 {
		carry, perJob := cfg.Pool.CarryLimit, cfg.Pool.LineLimit
		if carry == 0 {
			carry = mml2svg.DefaultCarryLimit
		}
		if perJob == 0 {
			perJob = mml2svg.DefaultLineLimit
		}
		opts = append(opts, mml2svg.WithDiagnosticLimits(carry, perJob))
	}
	if reg != nil {
		opts = append(opts, mml2svg.WithRegisterer(reg))
	}
	return opts, nil
}

func engineConfig(e config.EngineConfig) mml2svg.EngineConfig {
	return mml2svg.EngineConfig{
		Java:       e.Java,
		JavaOpts:   e.JavaOpts,
		SaxonJar:   e.SaxonJar,
		Stylesheet: e.Stylesheet,
		Args:       e.Args,
		Params:     e.Params,
	}
}

// newPool sizes and creates the pool described by cfg.
func newPool(cfg *config.Config, env *Environment, logger *slog.Logger, reg prometheus.Registerer) (Pool, error) {
	opts, err := poolOptions(cfg, logger, reg)
	if err != nil {
		return nil, err
	}
	size := mml2svg.ResolvePoolSize(cfg.Pool.Workers)
	logger.Debug("pool configured", "workers", size, "engine", engineConfig(cfg.Engine).String())
	return env.NewPool(size, opts...)
}
