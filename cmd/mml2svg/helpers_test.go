package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-mml2svg"
)

// fakePool converts without an engine. Documents containing "fail" fail
// with an engine error; those containing "warn" carry one warning.
type fakePool struct {
	mu       sync.Mutex
	size     int
	opts     int
	starts   int
	stops    int
	startErr error
	docs     []string
	states   []mml2svg.State
}

var _ Pool = (*fakePool)(nil)

func (p *fakePool) Convert(ctx context.Context, doc mml2svg.Document) (*mml2svg.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.docs = append(p.docs, string(doc))
	p.mu.Unlock()

	text := string(doc)
	if strings.Contains(text, "fail") {
		return nil, &mml2svg.JobError{
			Kind:     mml2svg.KindEngine,
			Token:    "fake-1",
			ExitCode: -1,
			Diagnostics: mml2svg.Diagnostics{Lines: []mml2svg.DiagnosticLine{
				{Level: mml2svg.LevelError, Text: "Error: bad formula"},
			}},
		}
	}
	res := &mml2svg.Result{Output: []byte("<svg>" + text + "</svg>"), Token: "fake-1"}
	if strings.Contains(text, "warn") {
		res.Diagnostics.Lines = []mml2svg.DiagnosticLine{
			{Level: mml2svg.LevelWarning, Text: "Warning: mglyph ignored"},
		}
	}
	return res, nil
}

func (p *fakePool) States() []mml2svg.State { return p.states }

func (p *fakePool) Start(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	return p.startErr
}

func (p *fakePool) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

func (p *fakePool) Size() int { return p.size }

func (p *fakePool) converted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.docs...)
}

func (p *fakePool) counts() (starts, stops int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts, p.stops
}

// testEnv is an Environment backed by buffers, an explicit variable map
// and a fakePool.
type testEnv struct {
	*Environment
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	pool   *fakePool
	vars   map[string]string
}

func newTestEnv(t *testing.T, vars map[string]string) *testEnv {
	t.Helper()
	if vars == nil {
		vars = map[string]string{}
	}
	te := &testEnv{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		pool:   &fakePool{},
		vars:   vars,
	}
	te.Environment = &Environment{
		Now:    func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
		Stdin:  strings.NewReader(""),
		Stdout: te.stdout,
		Stderr: te.stderr,
		Getenv: func(k string) string { return te.vars[k] },
		Environ: func() []string {
			out := make([]string, 0, len(te.vars))
			for k, v := range te.vars {
				out = append(out, k+"="+v)
			}
			return out
		},
		NewPool: func(size int, opts ...mml2svg.Option) (Pool, error) {
			te.pool.mu.Lock()
			te.pool.size = size
			te.pool.opts = len(opts)
			te.pool.mu.Unlock()
			return te.pool, nil
		},
	}
	return te
}

// writeFile creates path under dir with content and returns its full path.
func writeFile(t *testing.T, dir, path, content string) string {
	t.Helper()
	full := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return full
}

// engineFiles creates a stylesheet and returns the flags pointing to it.
func engineFiles(t *testing.T) []string {
	t.Helper()
	xsl := writeFile(t, t.TempDir(), "pmml2svg.xsl", "<xsl:stylesheet/>")
	return []string{"--stylesheet", xsl}
}
