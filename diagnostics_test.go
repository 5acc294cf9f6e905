package mml2svg

// Notes:
// - classify: Saxon and stylesheet log formats seen in practice
// - DiagnosticParser: carry-over between jobs, limits, sentinel misuse

import (
	"slices"
	"strconv"
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want Level
	}{
		{line: "LOG: INFO: MathML2SVG converting 42 bytes", want: LevelInfo},
		{line: "LOG: WARNING: Cannot determine bounding box for glyph", want: LevelWarning},
		{line: "Warning: at xsl:template on line 12", want: LevelWarning},
		{line: "Recoverable error on line 7: ambiguous rule match", want: LevelWarning},
		{line: "Error reported by XML parser: Content is not allowed in prolog.", want: LevelError},
		{line: "Error at xsl:value-of on line 3", want: LevelError},
		{line: "Fatal error during transformation: stack overflow", want: LevelError},
		{line: "LOG: ERROR: unsupported element", want: LevelError},
		{line: "XTDE0640: Circular definition of variable", want: LevelError},
		{line: "  Error XPTY0004: Required item type", want: LevelError},
		{line: "Saxon-HE 12.4 from Saxonica", want: LevelOther},
		{line: "", want: LevelOther},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			t.Parallel()

			if got := classify(tt.line); got != tt.want {
				t.Errorf("classify(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestLevel_String(t *testing.T) {
	t.Parallel()

	tests := map[Level]string{
		LevelOther:   "other",
		LevelInfo:    "info",
		LevelWarning: "warning",
		LevelError:   "error",
		Level(42):    "other",
	}
	for level, want := range tests {
		if got := level.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", int(level), got, want)
		}
	}
}

func TestDiagnostics_Accessors(t *testing.T) {
	t.Parallel()

	d := Diagnostics{Lines: []DiagnosticLine{
		{Level: LevelInfo, Text: "LOG: INFO: start"},
		{Level: LevelWarning, Text: "LOG: WARNING: late glyph", Carried: true},
		{Level: LevelError, Text: "  Error at line 3  "},
		{Level: LevelError, Text: "Error at line 9"},
	}}

	if got, want := d.String(), "LOG: INFO: start\nLOG: WARNING: late glyph\n  Error at line 3  \nError at line 9"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if !d.Contains("late glyph") || d.Contains("absent") {
		t.Error("Contains() mismatch")
	}
	if got := d.Warnings(); !slices.Equal(got, []string{"LOG: WARNING: late glyph"}) {
		t.Errorf("Warnings() = %q", got)
	}
	if got := d.Errors(); len(got) != 2 {
		t.Errorf("len(Errors()) = %d, want 2", len(got))
	}
	if got := d.FirstError(); got != "Error at line 3" {
		t.Errorf("FirstError() = %q, want trimmed first error", got)
	}
	if (Diagnostics{}).FirstError() != "" {
		t.Error("FirstError() on empty diagnostics should be empty")
	}
}

func TestDiagnostics_HasOwnErrors(t *testing.T) {
	t.Parallel()

	carried := Diagnostics{Lines: []DiagnosticLine{
		{Level: LevelError, Text: "Error from last job", Carried: true},
		{Level: LevelInfo, Text: "LOG: INFO: ok"},
	}}
	if carried.hasOwnErrors() {
		t.Error("hasOwnErrors() = true for carried-only errors")
	}

	own := Diagnostics{Lines: []DiagnosticLine{{Level: LevelError, Text: "Error now"}}}
	if !own.hasOwnErrors() {
		t.Error("hasOwnErrors() = false for a job error")
	}
}

// feedAll feeds lines and fails the test on error. It returns whether the
// last line completed the job.
func feedAll(t *testing.T, p *DiagnosticParser, lines ...string) bool {
	t.Helper()
	var done bool
	for _, line := range lines {
		var err error
		done, err = p.Feed(line)
		if err != nil {
			t.Fatalf("Feed(%q) error = %v", line, err)
		}
	}
	return done
}

func newTestParser(t *testing.T, maxCarry, maxLines int) *DiagnosticParser {
	t.Helper()
	m, err := newMarker(DefaultMarker)
	if err != nil {
		t.Fatalf("newMarker() error = %v", err)
	}
	return newDiagnosticParser(m, maxCarry, maxLines)
}

func TestDiagnosticParser_CarryOver(t *testing.T) {
	t.Parallel()

	p := newTestParser(t, 0, 0)

	if err := p.Begin("w-1"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if !feedAll(t, p, "LOG: INFO: one\n", "%%mml2svg done=w-1\n") {
		t.Fatal("sentinel did not complete job 1")
	}
	first := p.Finish()

	// Logged after job 1 finished.
	feedAll(t, p, "LOG: WARNING: late\n")

	if err := p.Begin("w-2"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	feedAll(t, p, "LOG: INFO: two\n", "%%mml2svg done=w-2\n")
	second := p.Finish()

	if len(first.Lines) != 1 || first.Contains("late") {
		t.Errorf("job 1 diagnostics = %q, want only its own line", first.String())
	}
	want := []DiagnosticLine{
		{Level: LevelWarning, Text: "LOG: WARNING: late", Carried: true},
		{Level: LevelInfo, Text: "LOG: INFO: two"},
	}
	if !slices.Equal(second.Lines, want) {
		t.Errorf("job 2 lines = %+v, want %+v", second.Lines, want)
	}

	if err := p.Begin("w-3"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	feedAll(t, p, "%%mml2svg done=w-3\n")
	if third := p.Finish(); len(third.Lines) != 0 {
		t.Errorf("job 3 lines = %+v, want none", third.Lines)
	}
}

func TestDiagnosticParser_Limits(t *testing.T) {
	t.Parallel()

	t.Run("carry keeps newest", func(t *testing.T) {
		t.Parallel()

		p := newTestParser(t, 2, 0)
		feedAll(t, p, "a", "b", "c")
		if err := p.Begin("w-1"); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		d := p.Finish()
		if got := d.String(); got != "b\nc" {
			t.Errorf("carried = %q, want %q", got, "b\nc")
		}
		if d.Dropped != 1 {
			t.Errorf("Dropped = %d, want 1", d.Dropped)
		}
	})

	t.Run("carry flood stays bounded", func(t *testing.T) {
		t.Parallel()

		const limit, total = 100, 100000
		p := newTestParser(t, limit, 0)
		for i := range total {
			if _, err := p.Feed(strconv.Itoa(i)); err != nil {
				t.Fatalf("Feed() error = %v", err)
			}
		}
		if cap(p.carry) > 4*limit {
			t.Errorf("cap(carry) = %d, want at most %d", cap(p.carry), 4*limit)
		}
		if err := p.Begin("w-1"); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		d := p.Finish()
		if len(d.Lines) != limit {
			t.Fatalf("carried %d lines, want %d", len(d.Lines), limit)
		}
		if first := d.Lines[0].Text; first != strconv.Itoa(total-limit) {
			t.Errorf("oldest carried = %q, want %q", first, strconv.Itoa(total-limit))
		}
		if d.Dropped != total-limit {
			t.Errorf("Dropped = %d, want %d", d.Dropped, total-limit)
		}
	})

	t.Run("job keeps oldest", func(t *testing.T) {
		t.Parallel()

		p := newTestParser(t, 0, 2)
		if err := p.Begin("w-1"); err != nil {
			t.Fatalf("Begin() error = %v", err)
		}
		if !feedAll(t, p, "a", "b", "c", "d", "%%mml2svg done=w-1") {
			t.Fatal("sentinel after limit did not complete the job")
		}
		d := p.Finish()
		if got := d.String(); got != "a\nb" {
			t.Errorf("lines = %q, want %q", got, "a\nb")
		}
		if d.Dropped != 2 {
			t.Errorf("Dropped = %d, want 2", d.Dropped)
		}
	})
}

func TestDiagnosticParser_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(*DiagnosticParser) error
		line    string
		wantErr string
	}{
		{
			name:    "sentinel with no job",
			setup:   func(*DiagnosticParser) error { return nil },
			line:    "%%mml2svg done=w-1",
			wantErr: "no job in flight",
		},
		{
			name:    "sentinel for another job",
			setup:   func(p *DiagnosticParser) error { return p.Begin("w-2") },
			line:    "%%mml2svg done=w-1",
			wantErr: "while reading job w-2",
		},
		{
			name:    "malformed marker line",
			setup:   func(p *DiagnosticParser) error { return p.Begin("w-1") },
			line:    "%%mml2svg ???",
			wantErr: "malformed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newTestParser(t, 0, 0)
			if err := tt.setup(p); err != nil {
				t.Fatalf("setup error = %v", err)
			}
			_, err := p.Feed(tt.line)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Feed(%q) error = %v, want containing %q", tt.line, err, tt.wantErr)
			}
		})
	}
}

func TestDiagnosticParser_BeginTwice(t *testing.T) {
	t.Parallel()

	p := newTestParser(t, 0, 0)
	if err := p.Begin("w-1"); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := p.Begin("w-2"); err == nil {
		t.Error("second Begin() without Finish should fail")
	}
	p.Finish()
	if err := p.Begin("w-2"); err != nil {
		t.Errorf("Begin() after Finish error = %v", err)
	}
}
