package mml2svg

import (
	"fmt"
	"regexp"
	"strings"
)

// Level classifies one engine diagnostic line.
type Level int

const (
	LevelOther Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	}
	return "other"
}

// Line classification patterns. Saxon reports recoverable errors as
// warnings, so that check runs before the error patterns.
var (
	recoverablePattern = regexp.MustCompile(`(?i)^\s*recoverable error\b`)
	errorPatterns      = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*(?:LOG:\s*)?(?:fatal\s+)?error\b`),
		regexp.MustCompile(`(?i)\berror reported by xml parser\b`),
		regexp.MustCompile(`^\s*(?:Error\s+)?[A-Z]{4}\d{4}\b`), // XPath/XSLT codes, e.g. XTDE0640
	}
	warningPattern = regexp.MustCompile(`(?i)\bwarning\b`)
	infoPattern    = regexp.MustCompile(`(?i)\binfo\b`)
)

// classify returns the level of a diagnostic line.
func classify(line string) Level {
	if recoverablePattern.MatchString(line) {
		return LevelWarning
	}
	for _, p := range errorPatterns {
		if p.MatchString(line) {
			return LevelError
		}
	}
	if warningPattern.MatchString(line) {
		return LevelWarning
	}
	if infoPattern.MatchString(line) {
		return LevelInfo
	}
	return LevelOther
}

// DiagnosticLine is one line of engine diagnostics.
type DiagnosticLine struct {
	Level   Level
	Text    string
	Carried bool // logged after the previous job's sentinel
}

// Diagnostics is the engine log attributed to one job.
//
// The engine logs asynchronously to its result output, so a job may carry
// lines emitted just after the previous job finished. Those lines are
// flagged Carried. Carry-over never spans more than one job.
type Diagnostics struct {
	Lines   []DiagnosticLine
	Dropped int // lines discarded because a limit was reached
}

// String returns the diagnostic text, one line per entry.
func (d Diagnostics) String() string {
	var b strings.Builder
	for i, l := range d.Lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.Text)
	}
	return b.String()
}

// Contains reports whether any line contains substr.
func (d Diagnostics) Contains(substr string) bool {
	for _, l := range d.Lines {
		if strings.Contains(l.Text, substr) {
			return true
		}
	}
	return false
}

// Filter returns the text of lines at the given level.
func (d Diagnostics) Filter(level Level) []string {
	var out []string
	for _, l := range d.Lines {
		if l.Level == level {
			out = append(out, l.Text)
		}
	}
	return out
}

// Warnings returns warning lines.
func (d Diagnostics) Warnings() []string { return d.Filter(LevelWarning) }

// Errors returns error lines.
func (d Diagnostics) Errors() []string { return d.Filter(LevelError) }

// FirstError returns the first error line, or "" if there is none.
func (d Diagnostics) FirstError() string {
	for _, l := range d.Lines {
		if l.Level == LevelError {
			return strings.TrimSpace(l.Text)
		}
	}
	return ""
}

// hasOwnErrors reports error lines that were not carried over.
func (d Diagnostics) hasOwnErrors() bool {
	for _, l := range d.Lines {
		if l.Level == LevelError && !l.Carried {
			return true
		}
	}
	return false
}

type parserState int

const (
	parserIdle parserState = iota
	parserCollecting
)

// DiagnosticParser splits one engine's stderr into per-job diagnostics.
//
// Between jobs it buffers lines in a bounded carry-over buffer. Begin moves
// that buffer into the new job; Feed appends until the job's sentinel line.
// A sentinel for any other token, or one arriving with no job in flight,
// is a protocol error.
type DiagnosticParser struct {
	marker   marker
	maxCarry int
	maxLines int

	state   parserState
	token   string
	carry   []DiagnosticLine
	dropped int
	current Diagnostics
}

// newDiagnosticParser creates a parser. Limits <= 0 mean unbounded.
func newDiagnosticParser(m marker, maxCarry, maxLines int) *DiagnosticParser {
	return &DiagnosticParser{marker: m, maxCarry: maxCarry, maxLines: maxLines}
}

// Begin starts collecting for token, seeding the job with carried lines.
func (p *DiagnosticParser) Begin(token string) error {
	if p.state != parserIdle {
		return fmt.Errorf("diagnostics for job %s still open", p.token)
	}
	p.state = parserCollecting
	p.token = token
	p.current = Diagnostics{Lines: p.carry, Dropped: p.dropped}
	p.carry = nil
	p.dropped = 0
	return nil
}

// Feed consumes one stderr line. It reports done when the sentinel for the
// current job is seen.
func (p *DiagnosticParser) Feed(line string) (done bool, err error) {
	line = strings.TrimRight(line, "\r\n")

	fr, marked, err := p.marker.parse(line)
	if err != nil {
		return false, err
	}
	if marked && fr.kind == frameDone {
		if p.state != parserCollecting {
			return false, fmt.Errorf("sentinel for job %s with no job in flight", fr.token)
		}
		if fr.token != p.token {
			return false, fmt.Errorf("sentinel for job %s while reading job %s", fr.token, p.token)
		}
		p.state = parserIdle
		return true, nil
	}

	entry := DiagnosticLine{Level: classify(line), Text: line}
	if p.state == parserCollecting {
		if p.maxLines > 0 && len(p.current.Lines) >= p.maxLines {
			p.current.Dropped++
			return false, nil
		}
		p.current.Lines = append(p.current.Lines, entry)
		return false, nil
	}

	entry.Carried = true
	if p.maxCarry > 0 && len(p.carry) >= p.maxCarry {
		p.carry = p.carry[1:]
		p.dropped++
	}
	p.carry = append(p.carry, entry)
	return false, nil
}

// Finish returns the collected diagnostics and resets the job.
// Any job still open is abandoned.
func (p *DiagnosticParser) Finish() Diagnostics {
	d := p.current
	p.current = Diagnostics{}
	p.state = parserIdle
	p.token = ""
	return d
}
