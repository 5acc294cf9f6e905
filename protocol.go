package mml2svg

import (
	"fmt"
	"strings"
)

// DefaultMarker prefixes every protocol line exchanged with the engine.
const DefaultMarker = "%%mml2svg"

// Frame line keys.
const (
	keyJob    = "job"
	keyEnd    = "end"
	keyDone   = "done"
	keyStatus = "status"
)

// Result statuses reported on the stdout terminator line.
const (
	statusOK    = "ok"
	statusError = "error"
)

type frameKind int

const (
	frameJob frameKind = iota + 1
	frameEnd
	frameDone
)

// frame is one parsed protocol line.
type frame struct {
	kind   frameKind
	token  string
	status string
}

// marker formats and recognizes protocol lines. A protocol line is the
// prefix, one space, then space-separated key=value pairs; the first pair
// names the frame.
type marker struct {
	prefix string
}

func newMarker(prefix string) (marker, error) {
	if prefix == "" || strings.ContainsAny(prefix, " \t\r\n=") {
		return marker{}, fmt.Errorf("%w: %q", ErrInvalidMarker, prefix)
	}
	return marker{prefix: prefix}, nil
}

func (m marker) header(token string) string {
	return m.prefix + " " + keyJob + "=" + token
}

func (m marker) trailer(token string) string {
	return m.prefix + " " + keyEnd + "=" + token
}

// done formats the stdout terminator, or the stderr sentinel when status is empty.
func (m marker) done(token, status string) string {
	line := m.prefix + " " + keyDone + "=" + token
	if status != "" {
		line += " " + keyStatus + "=" + status
	}
	return line
}

// isMarked reports whether line starts like a protocol line.
func (m marker) isMarked(line string) bool {
	rest, ok := strings.CutPrefix(strings.TrimLeft(line, " \t"), m.prefix)
	return ok && (rest == "" || rest[0] == ' ' || rest[0] == '\t')
}

// parse decodes a protocol line. ok is false for ordinary text; a marked
// line that does not decode returns an error.
func (m marker) parse(line string) (f frame, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	if !m.isMarked(line) {
		return frame{}, false, nil
	}
	rest := strings.TrimPrefix(strings.TrimLeft(line, " \t"), m.prefix)
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return frame{}, true, fmt.Errorf("empty protocol line %q", line)
	}

	key, token, found := strings.Cut(fields[0], "=")
	if !found || token == "" {
		return frame{}, true, fmt.Errorf("malformed protocol line %q", line)
	}
	switch key {
	case keyJob:
		f.kind = frameJob
	case keyEnd:
		f.kind = frameEnd
	case keyDone:
		f.kind = frameDone
	default:
		return frame{}, true, fmt.Errorf("unknown protocol frame %q", key)
	}
	f.token = token

	for _, field := range fields[1:] {
		k, v, _ := strings.Cut(field, "=")
		if k == keyStatus {
			f.status = v
		}
	}
	return f, true, nil
}
