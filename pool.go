package mml2svg

import (
	"context"
	"errors"
	"runtime"
	"sync"
)

// Pool sizing constants.
const (
	// MinPoolSize ensures at least one engine is available.
	MinPoolSize = 1

	// MaxPoolSize caps engine JVMs to limit memory (~150MB each).
	MaxPoolSize = 8

	// cpuDivisor leaves headroom for JVM compiler and GC threads.
	cpuDivisor = 2
)

// Pool spreads conversions over several Managers, each owning one engine.
// Managers are created lazily on first acquire to avoid startup delay.
// A Pool of size 1 behaves like a single Manager.
type Pool struct {
	cfg      settings
	size     int
	managers []*Manager
	free     chan *Manager
	mu       sync.Mutex
	created  int
}

// NewPool creates a pool with capacity for n engines. Options apply to
// every engine; metrics are registered once and shared.
func NewPool(n int, opts ...Option) (*Pool, error) {
	if n < 1 {
		n = 1
	}
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	return &Pool{
		cfg:      s,
		size:     n,
		managers: make([]*Manager, 0, n),
		free:     make(chan *Manager, n),
	}, nil
}

// acquire gets an idle manager, creating one if capacity allows.
// It blocks until one is released or ctx is done.
func (p *Pool) acquire(ctx context.Context) (*Manager, error) {
	select {
	case m := <-p.free:
		return m, nil
	default:
	}

	p.mu.Lock()
	if p.created < p.size {
		p.created++
		m := newManager(p.cfg)
		p.managers = append(p.managers, m)
		p.mu.Unlock()
		return m, nil
	}
	p.mu.Unlock()

	select {
	case m := <-p.free:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release returns a manager to the pool. free never fills past size.
func (p *Pool) release(m *Manager) {
	p.free <- m
}

// Convert runs doc on the first idle engine. Errors are those of
// Manager.Convert.
func (p *Pool) Convert(ctx context.Context, doc Document) (*Result, error) {
	m, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.release(m)
	return m.Convert(ctx, doc)
}

// Start creates and warms every engine concurrently.
// Returns an aggregated error if any engine fails to start.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	for p.created < p.size {
		m := newManager(p.cfg)
		p.managers = append(p.managers, m)
		p.created++
		p.free <- m
	}
	managers := append([]*Manager(nil), p.managers...)
	p.mu.Unlock()

	errs := make([]error, len(managers))
	var wg sync.WaitGroup
	for i, m := range managers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.Start(ctx)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Stop ends every engine, waiting for jobs in flight. The pool stays
// usable; the next Convert starts engines again.
// Returns an aggregated error if multiple engines fail to stop.
func (p *Pool) Stop() error {
	p.mu.Lock()
	managers := append([]*Manager(nil), p.managers...)
	p.mu.Unlock()

	var errs []error
	for _, m := range managers {
		if err := m.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops every engine. It implements io.Closer.
func (p *Pool) Close() error {
	return p.Stop()
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return p.size
}

// States returns the state of each engine created so far, in creation order.
func (p *Pool) States() []State {
	p.mu.Lock()
	managers := append([]*Manager(nil), p.managers...)
	p.mu.Unlock()

	states := make([]State, len(managers))
	for i, m := range managers {
		states[i] = m.State()
	}
	return states
}

// ResolvePoolSize determines the pool size.
// Priority: explicit workers > GOMAXPROCS-based calculation.
func ResolvePoolSize(workers int) int {
	if workers > 0 {
		return workers
	}

	// GOMAXPROCS is adjusted by automaxprocs in containers.
	n := runtime.GOMAXPROCS(0) / cpuDivisor

	if n < MinPoolSize {
		return MinPoolSize
	}
	if n > MaxPoolSize {
		return MaxPoolSize
	}
	return n
}
