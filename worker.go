package mml2svg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alnah/go-mml2svg/internal/process"
)

// Stream buffering between the engine pipes and the job reader.
const (
	stdoutQueue   = 64
	stderrQueue   = 256
	readerBufSize = 64 << 10

	// exitProbe bounds the wait for an exit status after a stream closes.
	exitProbe = time.Second
)

var errStreamClosed = errors.New("stream closed mid-frame")

// Worker owns one long-lived engine process and its three pipes.
//
// A Worker runs at most one job at a time and is not safe for concurrent
// use; Manager serializes access. Once a job fails with a *JobError the
// worker must be stopped and replaced.
type Worker struct {
	cfg    settings
	framer *Framer
	diag   *DiagnosticParser
	logger *slog.Logger

	id  string
	seq uint64

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	in     *bufio.Writer
	stdout chan []byte
	stderr chan []byte
	pipes  []io.Closer

	quit    chan struct{} // closed by Stop; pumps switch to discarding
	drained chan struct{} // closed when both pumps returned
	exited  chan struct{} // closed when the process was reaped
	state   *os.ProcessState

	stopOnce sync.Once
	stopErr  error
}

// newWorker creates an unstarted worker. s must come from newSettings.
func newWorker(s settings) *Worker {
	m, _ := newMarker(s.marker)
	id := uuid.NewString()[:8]
	return &Worker{
		cfg:    s,
		framer: &Framer{marker: m},
		diag:   newDiagnosticParser(m, s.carryLimit, s.lineLimit),
		logger: s.logger.With("worker", id),
		id:     id,
		quit:   make(chan struct{}),
	}
}

// ID returns the short identifier embedded in this worker's job tokens.
func (w *Worker) ID() string { return w.id }

// Start launches the engine and, when a warm-up document is configured,
// runs it as a handshake within the start timeout.
func (w *Worker) Start(ctx context.Context) error {
	if w.cmd != nil {
		return fmt.Errorf("%w: worker %s already started", ErrStartup, w.id)
	}

	name, args, err := w.cfg.engine.command(w.framer.marker)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStartup, err)
	}

	cmd := exec.Command(name, args...) // #nosec G204 -- engine command comes from configuration
	cmd.Dir = w.cfg.engine.Dir
	cmd.Env = append(os.Environ(), w.cfg.engine.Env...)
	process.SetProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: stdin pipe: %v", ErrStartup, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return fmt.Errorf("%w: stdout pipe: %v", ErrStartup, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return fmt.Errorf("%w: stderr pipe: %v", ErrStartup, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrStartup, err)
	}

	w.cmd = cmd
	w.stdin = stdin
	w.in = bufio.NewWriter(stdin)
	w.stdout = make(chan []byte, stdoutQueue)
	w.stderr = make(chan []byte, stderrQueue)
	w.pipes = []io.Closer{stdout, stderr}
	w.drained = make(chan struct{})
	w.exited = make(chan struct{})

	var pumps sync.WaitGroup
	pumps.Add(2)
	go w.pump(stdout, w.stdout, &pumps)
	go w.pump(stderr, w.stderr, &pumps)
	go func() {
		pumps.Wait()
		close(w.drained)
	}()
	// Process.Wait rather than Cmd.Wait: liveness must not depend on the
	// pipes being drained, and the pumps close the read ends themselves.
	go func() {
		state, _ := cmd.Process.Wait()
		w.state = state
		close(w.exited)
	}()

	w.logger.Info("engine started", "pid", cmd.Process.Pid, "engine", w.cfg.engine.String())

	if w.cfg.warmup == nil {
		return nil
	}
	hctx, cancel := context.WithTimeout(ctx, w.cfg.startTimeout)
	defer cancel()
	if _, err := w.Convert(hctx, w.cfg.warmup); err != nil {
		_ = w.Stop()
		return fmt.Errorf("%w: handshake: %w", ErrStartup, err)
	}
	return nil
}

// pump forwards lines from r to out until EOF. After Stop it discards.
func (w *Worker) pump(r io.ReadCloser, out chan<- []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	defer close(out)
	defer r.Close()

	br := bufio.NewReaderSize(r, readerBufSize)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			select {
			case out <- line:
			case <-w.quit:
				_, _ = io.Copy(io.Discard, br)
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// IsAlive reports whether the engine process is running. It never blocks.
func (w *Worker) IsAlive() bool {
	if w.cmd == nil {
		return false
	}
	select {
	case <-w.exited:
		return false
	case <-w.quit:
		return false
	default:
		return true
	}
}

// ExitCode returns the engine exit status, or -1 while it runs.
func (w *Worker) ExitCode() int {
	if w.exited == nil {
		return -1
	}
	select {
	case <-w.exited:
		if w.state != nil {
			return w.state.ExitCode()
		}
	default:
	}
	return -1
}

// Stop ends the engine: stdin is closed so a well-behaved engine exits; if
// it is still running after the grace period its process group is killed.
// Stop is idempotent and releases every pipe.
func (w *Worker) Stop() error {
	w.stopOnce.Do(func() {
		w.stopErr = w.stop()
	})
	return w.stopErr
}

func (w *Worker) stop() error {
	close(w.quit)
	if w.cmd == nil {
		return nil
	}
	pid := w.cmd.Process.Pid
	_ = w.stdin.Close()

	grace := time.NewTimer(w.cfg.stopGrace)
	defer grace.Stop()

	select {
	case <-w.exited:
	case <-grace.C:
		w.logger.Warn("engine ignored end of input, killing", "pid", pid)
		process.KillProcessGroup(pid)
		_ = w.cmd.Process.Kill()
		select {
		case <-w.exited:
		case <-time.After(w.cfg.stopGrace):
			w.closePipes()
			return fmt.Errorf("%w: pid %d", ErrStopTimeout, pid)
		}
	}

	// A descendant may still hold the pipes open.
	select {
	case <-w.drained:
	case <-time.After(w.cfg.stopGrace):
		process.KillProcessGroup(pid)
		w.closePipes()
	}

	w.logger.Info("engine stopped", "pid", pid, "exit_code", w.ExitCode())
	return nil
}

func (w *Worker) closePipes() {
	for _, p := range w.pipes {
		_ = p.Close()
	}
}

// Convert runs one job. Invalid documents are rejected before anything is
// written and leave the worker usable. Any *JobError leaves it unusable.
func (w *Worker) Convert(ctx context.Context, doc Document) (*Result, error) {
	doc, err := w.framer.Normalize(doc)
	if err != nil {
		return nil, err
	}
	if !w.IsAlive() {
		return nil, &JobError{Kind: KindEngine, ExitCode: w.ExitCode(), Err: errors.New("engine not running")}
	}

	w.seq++
	job := Job{Token: w.id + "-" + strconv.FormatUint(w.seq, 10), Document: doc}
	start := time.Now()

	if err := w.collectPending(); err != nil {
		return nil, w.protocolError(job.Token, err)
	}
	if err := w.diag.Begin(job.Token); err != nil {
		return nil, w.protocolError(job.Token, err)
	}

	// The write runs on its own so a wedged engine cannot block past the timeout.
	written := make(chan error, 1)
	go func() {
		if err := w.framer.Encode(w.in, job); err != nil {
			written <- err
			return
		}
		written <- w.in.Flush()
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.jobTimeout)
	defer cancel()

	dec := w.framer.decoder(job.Token)
	stdout, stderr := w.stdout, w.stderr
	for written != nil || stdout != nil || stderr != nil {
		select {
		case err := <-written:
			written = nil
			if err != nil {
				return nil, w.streamClosed(job.Token, fmt.Errorf("writing request: %w", err))
			}

		case line, ok := <-stdout:
			if !ok {
				return nil, w.streamClosed(job.Token, fmt.Errorf("output %w", errStreamClosed))
			}
			done, err := dec.feed(line)
			if err != nil {
				return nil, w.protocolError(job.Token, err)
			}
			if done {
				stdout = nil
			}

		case line, ok := <-stderr:
			if !ok {
				return nil, w.streamClosed(job.Token, fmt.Errorf("diagnostic %w", errStreamClosed))
			}
			done, err := w.diag.Feed(string(line))
			if err != nil {
				return nil, w.protocolError(job.Token, err)
			}
			if done {
				stderr = nil
			}

		case <-jobCtx.Done():
			kind, cause := KindTimeout, error(fmt.Errorf("no job boundary after %s", w.cfg.jobTimeout))
			if ctx.Err() != nil {
				kind, cause = KindCanceled, ctx.Err()
			}
			return nil, &JobError{Kind: kind, Token: job.Token, Diagnostics: w.diag.Finish(), ExitCode: -1, Err: cause}
		}
	}

	diag := w.diag.Finish()
	if !dec.ok || diag.hasOwnErrors() {
		return nil, &JobError{Kind: KindEngine, Token: job.Token, Diagnostics: diag, ExitCode: -1}
	}

	return &Result{
		Output:      dec.output(),
		Diagnostics: diag,
		Token:       job.Token,
		Duration:    time.Since(start),
	}, nil
}

// collectPending moves diagnostics logged since the last job into the
// carry-over buffer. Output between jobs cannot belong to anyone.
func (w *Worker) collectPending() error {
	for {
		select {
		case line, ok := <-w.stderr:
			if !ok {
				return nil
			}
			if _, err := w.diag.Feed(string(line)); err != nil {
				return err
			}
		case line, ok := <-w.stdout:
			if !ok {
				return nil
			}
			return fmt.Errorf("unexpected output between jobs: %.80q", line)
		default:
			return nil
		}
	}
}

func (w *Worker) protocolError(token string, err error) *JobError {
	w.logger.Error("engine framing lost", "job", token, "error", err)
	return &JobError{Kind: KindProtocol, Token: token, Diagnostics: w.diag.Finish(), ExitCode: -1, Err: err}
}

// streamClosed classifies a premature end of stream. An engine that exited
// with an error or was killed by a signal failed; anything else means the
// framing was lost.
func (w *Worker) streamClosed(token string, cause error) *JobError {
	probe, cancel := context.WithTimeout(context.Background(), exitProbe)
	defer cancel()

	// Whatever the engine logged before dying explains the failure.
	for w.stderr != nil {
		select {
		case line, ok := <-w.stderr:
			if !ok {
				w.stderr = nil
				continue
			}
			_, _ = w.diag.Feed(string(line))
		case <-probe.Done():
			w.stderr = nil
		}
	}
	failed := false
	select {
	case <-w.exited:
		failed = w.state != nil && !w.state.Success()
	case <-probe.Done():
	}

	diag := w.diag.Finish()
	code := w.ExitCode()
	if failed {
		return &JobError{Kind: KindEngine, Token: token, Diagnostics: diag, ExitCode: code, Err: cause}
	}
	w.logger.Error("engine stream closed", "job", token, "error", cause)
	return &JobError{Kind: KindProtocol, Token: token, Diagnostics: diag, ExitCode: code, Err: cause}
}
