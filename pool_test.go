package mml2svg

// Notes:
// - ResolvePoolSize: pure sizing rules
// - Pool tests run against the helper engine; each test owns its pool
// - Metrics are checked on a private registry, never the default one

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Compile-time interface check.
var _ interface {
	Start(context.Context) error
	Convert(context.Context, Document) (*Result, error)
	Stop() error
	Close() error
	Size() int
	States() []State
} = (*Pool)(nil)

func TestResolvePoolSize(t *testing.T) {
	t.Parallel()

	gomaxprocs := runtime.GOMAXPROCS(0)

	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{
			name:    "explicit takes priority",
			workers: 4,
			want:    4,
		},
		{
			name:    "explicit=1 for sequential",
			workers: 1,
			want:    1,
		},
		{
			name:    "explicit can exceed max",
			workers: 16,
			want:    16,
		},
		{
			name:    "zero uses auto calculation",
			workers: 0,
			want:    min(max(gomaxprocs/cpuDivisor, MinPoolSize), MaxPoolSize),
		},
		{
			name:    "negative uses auto calculation",
			workers: -3,
			want:    min(max(gomaxprocs/cpuDivisor, MinPoolSize), MaxPoolSize),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ResolvePoolSize(tt.workers)
			if got != tt.want {
				t.Errorf("ResolvePoolSize(%d) = %d, want %d", tt.workers, got, tt.want)
			}
		})
	}
}

func newTestPool(t *testing.T, n int, opts ...Option) *Pool {
	t.Helper()
	pool, err := NewPool(n, append(testOptions(t, ""), opts...)...)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	t.Cleanup(func() { _ = pool.Stop() })
	return pool
}

func TestPool_Size(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int
		want int
	}{
		{"size 1", 1, 1},
		{"size 4", 4, 4},
		{"size 0 becomes 1", 0, 1},
		{"negative becomes 1", -1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pool := newTestPool(t, tt.size)
			if got := pool.Size(); got != tt.want {
				t.Errorf("Size() = %d, want %d", got, tt.want)
			}
			if got := len(pool.States()); got != 0 {
				t.Errorf("len(States()) = %d before use, want 0", got)
			}
		})
	}
}

func TestPool_Convert_Concurrent(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 3)
	ctx := testContext(t)

	const callers = 12
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ident := fmt.Sprintf("p%d", i)
			res, err := pool.Convert(ctx, mathDoc(ident))
			if err != nil {
				errs <- fmt.Errorf("caller %d: %w", i, err)
				return
			}
			if got := string(res.Output); got != svgFor(ident) {
				errs <- fmt.Errorf("caller %d got %q, want %q", i, got, svgFor(ident))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(testTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		t.Fatal("concurrent conversions timed out - possible deadlock")
	}
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if got := len(pool.States()); got < 1 || got > 3 {
		t.Errorf("engines created = %d, want 1..3", got)
	}
}

func TestPool_StartStop(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 2)
	ctx := testContext(t)

	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i, s := range pool.States() {
		if s != StateReady {
			t.Errorf("engine %d state = %v, want %v", i, s, StateReady)
		}
	}
	if got := len(pool.States()); got != 2 {
		t.Errorf("len(States()) = %d, want 2", got)
	}

	if err := pool.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	for i, s := range pool.States() {
		if s != StateStopped {
			t.Errorf("engine %d state after Stop = %v, want %v", i, s, StateStopped)
		}
	}

	if _, err := pool.Convert(ctx, mathDoc("x")); err != nil {
		t.Errorf("Convert() after Stop error = %v", err)
	}
}

func TestPool_Start_Failure(t *testing.T) {
	t.Parallel()

	pool, err := NewPool(2, testOptions(t, "exit")...)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	t.Cleanup(func() { _ = pool.Stop() })

	err = pool.Start(testContext(t))
	if KindOf(err) != KindStartup {
		t.Errorf("Start() KindOf = %v (%v), want %v", KindOf(err), err, KindStartup)
	}
}

func TestPool_Convert_CanceledWhileQueued(t *testing.T) {
	t.Parallel()

	pool := newTestPool(t, 1)
	ctx := testContext(t)
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Hold the only engine.
	mgr, err := pool.acquire(ctx)
	if err != nil {
		t.Fatalf("acquire() error = %v", err)
	}
	defer pool.release(mgr)

	queued, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := pool.Convert(queued, mathDoc("x")); KindOf(err) != KindCanceled {
		t.Errorf("Convert() while queued KindOf = %v (%v), want %v", KindOf(err), err, KindCanceled)
	}
}

func TestPool_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	pool := newTestPool(t, 2, WithRegisterer(reg))
	ctx := testContext(t)

	for _, doc := range []Document{mathDoc("a"), mathDoc("b"), mathDoc("semantics")} {
		_, _ = pool.Convert(ctx, doc)
	}

	// A second pool on the same registry shares the collectors.
	if _, err := NewPool(1, WithRegisterer(reg)); err != nil {
		t.Fatalf("second NewPool() error = %v", err)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	counts := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "mml2svg_jobs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				counts[lp.GetValue()] += m.GetCounter().GetValue()
			}
		}
	}
	if counts["success"] != 2 || counts["engine"] != 1 {
		t.Errorf("jobs_total = %v, want success=2 engine=1", counts)
	}
	got, err := testutil.GatherAndCount(reg, "mml2svg_worker_restarts_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if got != 1 {
		t.Errorf("restart series = %d, want 1", got)
	}
}
