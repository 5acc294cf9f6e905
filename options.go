package mml2svg

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alnah/go-mml2svg/internal/metrics"
)

// Defaults for worker and manager behavior.
const (
	defaultJobTimeout   = 30 * time.Second
	defaultStartTimeout = 60 * time.Second
	defaultStopGrace    = 5 * time.Second
)

// Default diagnostic limits, see WithDiagnosticLimits.
const (
	DefaultCarryLimit = 1000
	DefaultLineLimit  = 10000
)

// DefaultWarmup is the handshake document converted when a worker starts.
var DefaultWarmup = Document(`<math xmlns="http://www.w3.org/1998/Math/MathML"><mi>x</mi></math>`)

// Option configures a Manager or Pool.
type Option func(*settings)

// settings holds configuration shared by every worker of a Manager or Pool.
type settings struct {
	engine       EngineConfig
	marker       string
	jobTimeout   time.Duration
	startTimeout time.Duration
	stopGrace    time.Duration
	warmup       Document
	carryLimit   int
	lineLimit    int
	logger       *slog.Logger
	registerer   prometheus.Registerer
	metrics      *metrics.Collector
}

func defaultSettings() settings {
	return settings{
		marker:       DefaultMarker,
		jobTimeout:   defaultJobTimeout,
		startTimeout: defaultStartTimeout,
		stopGrace:    defaultStopGrace,
		warmup:       DefaultWarmup,
		carryLimit:   DefaultCarryLimit,
		lineLimit:    DefaultLineLimit,
		logger:       slog.New(slog.DiscardHandler),
	}
}

// newSettings applies opts over the defaults and registers metrics once.
func newSettings(opts []Option) (settings, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	if _, err := newMarker(s.marker); err != nil {
		return s, err
	}
	if s.metrics == nil && s.registerer != nil {
		c, err := metrics.New(s.registerer)
		if err != nil {
			return s, err
		}
		s.metrics = c
	}
	return s, nil
}

// WithEngine sets how the engine is launched.
func WithEngine(e EngineConfig) Option {
	return func(s *settings) {
		s.engine = e
	}
}

// WithJobTimeout bounds one conversion once it reaches the engine.
// Panics if d <= 0 (programmer error, similar to time.NewTicker).
func WithJobTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("mml2svg: WithJobTimeout duration must be positive")
	}
	return func(s *settings) {
		s.jobTimeout = d
	}
}

// WithStartTimeout bounds the startup handshake.
// Panics if d <= 0.
func WithStartTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("mml2svg: WithStartTimeout duration must be positive")
	}
	return func(s *settings) {
		s.startTimeout = d
	}
}

// WithStopGrace sets how long a stopping engine may take to exit before
// its process group is killed.
// Panics if d <= 0.
func WithStopGrace(d time.Duration) Option {
	if d <= 0 {
		panic("mml2svg: WithStopGrace duration must be positive")
	}
	return func(s *settings) {
		s.stopGrace = d
	}
}

// WithMarker overrides the protocol marker prefix.
func WithMarker(prefix string) Option {
	return func(s *settings) {
		s.marker = prefix
	}
}

// WithWarmup sets the handshake document. nil disables the handshake.
func WithWarmup(doc Document) Option {
	return func(s *settings) {
		s.warmup = doc
	}
}

// WithDiagnosticLimits bounds the carry-over buffer and the lines kept per
// job. Values <= 0 remove the limit.
func WithDiagnosticLimits(carry, perJob int) Option {
	return func(s *settings) {
		s.carryLimit = carry
		s.lineLimit = perJob
	}
}

// WithLogger sets the structured logger. nil keeps logging disabled.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRegisterer exposes job and restart metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *settings) {
		s.registerer = reg
	}
}

// withMetrics shares one collector between the managers of a Pool.
func withMetrics(c *metrics.Collector) Option {
	return func(s *settings) {
		s.metrics = c
	}
}
