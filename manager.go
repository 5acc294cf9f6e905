package mml2svg

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alnah/go-mml2svg/internal/metrics"
)

// Manager serializes conversions onto one Worker, starting it lazily and
// replacing it after any failure that leaves its streams in doubt.
//
// Manager is safe for concurrent use. Callers queue for the single job
// slot in arrival order.
type Manager struct {
	cfg     settings
	logger  *slog.Logger
	metrics *metrics.Collector

	slot chan struct{} // one job or lifecycle change at a time

	mu       sync.Mutex
	worker   *Worker
	state    State
	stopping int
}

// NewManager creates a stopped Manager. No engine is launched until Start
// or the first Convert.
func NewManager(opts ...Option) (*Manager, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return newManager(s), nil
}

func newManager(s settings) *Manager {
	return &Manager{
		cfg:     s,
		logger:  s.logger,
		metrics: s.metrics,
		slot:    make(chan struct{}, 1),
	}
}

// State reports the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// A pending Stop owns the final state.
	if m.stopping > 0 && s != StateStopped {
		return
	}
	m.state = s
}

// acquire takes the job slot or gives up with ctx.
func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() { <-m.slot }

// Start launches the engine if it is not running. Calling Start on a
// running Manager is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	if _, err := m.ensureWorker(ctx); err != nil {
		return err
	}
	m.setState(StateReady)
	return nil
}

// ensureWorker returns a live worker, launching one if needed.
// The caller holds the job slot.
func (m *Manager) ensureWorker(ctx context.Context) (*Worker, error) {
	m.mu.Lock()
	w := m.worker
	m.mu.Unlock()

	if w != nil && w.IsAlive() {
		return w, nil
	}
	if w != nil {
		m.logger.Warn("engine exited between jobs, restarting", "worker", w.ID(), "exit_code", w.ExitCode())
		m.metrics.Restart("exited")
		_ = w.Stop()
	}

	m.setState(StateStarting)
	w = newWorker(m.cfg)
	if err := w.Start(ctx); err != nil {
		m.mu.Lock()
		m.worker = nil
		m.mu.Unlock()
		m.setState(StateStopped)
		m.logger.Error("engine failed to start", "error", err)
		return nil, err
	}

	m.mu.Lock()
	m.worker = w
	m.mu.Unlock()
	return w, nil
}

// Convert runs doc through the engine and returns its SVG output.
//
// Invalid documents fail with ErrEmptyDocument or ErrInvalidDocument and
// never reach the engine. Failures after the job was sent are *JobError;
// the engine is then discarded and a fresh one serves the next call.
func (m *Manager) Convert(ctx context.Context, doc Document) (*Result, error) {
	start := time.Now()
	res, err := m.convert(ctx, doc)
	m.metrics.ObserveJob(KindOf(err).String(), time.Since(start))
	return res, err
}

func (m *Manager) convert(ctx context.Context, doc Document) (*Result, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	w, err := m.ensureWorker(ctx)
	if err != nil {
		return nil, err
	}

	m.setState(StateBusy)
	m.metrics.Busy(1)
	res, err := w.Convert(ctx, doc)
	m.metrics.Busy(-1)

	var jobErr *JobError
	if errors.As(err, &jobErr) {
		m.logger.Error("job failed, replacing engine",
			"worker", w.ID(), "job", jobErr.Token, "kind", jobErr.Kind.String(), "error", err)
		m.metrics.Restart(jobErr.Kind.String())
		if stopErr := w.Stop(); stopErr != nil {
			m.logger.Warn("engine did not stop cleanly", "worker", w.ID(), "error", stopErr)
		}
		m.mu.Lock()
		m.worker = nil
		m.mu.Unlock()
		m.setState(StateStarting)
		return nil, err
	}

	m.setState(StateReady)
	if err != nil {
		return nil, err
	}
	if warnings := res.Diagnostics.Warnings(); len(warnings) > 0 {
		m.logger.Debug("job finished with warnings", "job", res.Token, "warnings", len(warnings))
	}
	return res, nil
}

// Stop waits for the job in flight, then ends the engine. A later Convert
// starts a new one. Stop on a stopped Manager returns nil.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.stopping++
	m.mu.Unlock()

	m.slot <- struct{}{}
	defer m.release()

	m.mu.Lock()
	w := m.worker
	m.worker = nil
	m.state = StateStopped
	m.stopping--
	m.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.Stop()
}

// Close stops the engine. It implements io.Closer.
func (m *Manager) Close() error {
	return m.Stop()
}
