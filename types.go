package mml2svg

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Document is raw MathML markup handed to the engine.
type Document []byte

// Job is a document bound to the token that frames it on the engine streams.
type Job struct {
	Token    string
	Document Document
}

// Result holds the outcome of a successful conversion.
type Result struct {
	Output      []byte      // SVG bytes as written by the engine
	Diagnostics Diagnostics // engine log lines attributed to this job
	Token       string      // job token, useful to correlate with engine logs
	Duration    time.Duration
}

// Kind tags the outcome of a conversion so callers can branch on it
// without inspecting error types.
type Kind int

const (
	KindSuccess  Kind = iota
	KindInvalid       // document rejected before reaching the engine
	KindStartup       // engine could not be launched or failed its handshake
	KindTimeout       // no job boundary observed in time
	KindEngine        // engine reported a failure or exited non-zero
	KindProtocol      // framing lost; output could not be attributed
	KindCanceled      // caller gave up while the job was queued or in flight
)

var kindNames = map[Kind]string{
	KindSuccess:  "success",
	KindInvalid:  "invalid",
	KindStartup:  "startup",
	KindTimeout:  "timeout",
	KindEngine:   "engine",
	KindProtocol: "protocol",
	KindCanceled: "canceled",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// sentinel returns the package error matching k, or nil.
func (k Kind) sentinel() error {
	switch k {
	case KindStartup:
		return ErrStartup
	case KindTimeout:
		return ErrTimeout
	case KindEngine:
		return ErrEngine
	case KindProtocol:
		return ErrProtocol
	}
	return nil
}

// JobError is returned when a job fails after reaching the engine.
// It matches ErrTimeout, ErrEngine or ErrProtocol with errors.Is and
// carries whatever diagnostics were captured before the failure.
type JobError struct {
	Kind        Kind
	Token       string
	Diagnostics Diagnostics
	ExitCode    int   // engine exit status, -1 if it was still running
	Err         error // underlying cause, may be nil
}

func (e *JobError) Error() string {
	msg := e.Kind.String() + " failure"
	if s := e.Kind.sentinel(); s != nil {
		msg = s.Error()
	}
	if e.Token != "" {
		msg += " (job " + e.Token + ")"
	}
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit status %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if first := e.Diagnostics.FirstError(); first != "" {
		msg += ": " + first
	}
	return msg
}

func (e *JobError) Unwrap() []error {
	var errs []error
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf classifies err. A nil error is KindSuccess.
func KindOf(err error) Kind {
	if err == nil {
		return KindSuccess
	}
	// Handshake failures wrap a JobError; startup wins.
	if errors.Is(err, ErrStartup) {
		return KindStartup
	}
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	switch {
	case errors.Is(err, ErrEmptyDocument), errors.Is(err, ErrInvalidDocument):
		return KindInvalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrProtocol):
		return KindProtocol
	case errors.Is(err, ErrEngineNotFound), errors.Is(err, ErrSaxonJarNotFound),
		errors.Is(err, ErrStylesheetNotFound):
		return KindStartup
	}
	return KindEngine
}

// State is the lifecycle state of a Manager.
type State int

const (
	StateStopped  State = iota // no engine process
	StateStarting              // engine launching, or a replacement is pending
	StateReady                 // engine warm and idle
	StateBusy                  // a job is in flight
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateBusy:
		return "busy"
	}
	return fmt.Sprintf("state(%d)", int(s))
}
