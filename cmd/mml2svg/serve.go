package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alnah/go-mml2svg/internal/hints"
	"github.com/alnah/go-mml2svg/internal/logging"
	"github.com/alnah/go-mml2svg/internal/server"
)

// ErrListen is returned when the server address cannot be bound.
var ErrListen = errors.New("cannot listen")

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// runServe runs the HTTP server until ctx is canceled, then drains
// requests and stops the engines.
func runServe(ctx context.Context, args []string, env *Environment) error {
	flags, err := parseServeFlags(args, env.Stderr)
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
	if flags.maxBody > 0 {
		cfg.Server.MaxBodyBytes = flags.maxBody
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.Configure(env.Stderr, logging.Options{
		Level: cfg.Log.Level,
		JSON:  logging.IsJSON(cfg.Log.Format),
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pool, err := newPool(cfg, env, logger, reg)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("%w: %v%s", ErrListen, err, hints.ForListen(cfg.Server.Listen))
	}

	if !flags.lazy {
		if err := pool.Start(ctx); err != nil {
			_ = ln.Close()
			return errors.Join(fmt.Errorf("starting engines: %w", err), pool.Stop())
		}
	}

	srv := &http.Server{
		Handler: server.New(pool, server.Options{
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
			Gatherer:     reg,
			Logger:       logger,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Info("listening", "addr", ln.Addr().String(), "workers", pool.Size())
	if !flags.common.quiet {
		fmt.Fprintf(env.Stdout, "Listening on http://%s (%d workers)\n", ln.Addr(), pool.Size())
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		return errors.Join(fmt.Errorf("serving: %w", err), pool.Stop())
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down: %w", err))
	}
	if err := pool.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stopping engines: %w", err))
	}
	return errors.Join(errs...)
}
