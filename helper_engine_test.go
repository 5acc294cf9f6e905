package mml2svg

// Notes:
// - TestHelperEngine is not a test: the suite re-executes its own binary
//   with GO_MML2SVG_HELPER_ENGINE=1 to get a fake engine that speaks the
//   job protocol, so no JVM or Saxon is needed
// - Document content selects the engine behavior (see helperJob)
// - GO_MML2SVG_HELPER_MODE selects whole-process behavior:
//   "exit" dies before reading, "ignore-eof" keeps running after stdin closes

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

const (
	helperEnv     = "GO_MML2SVG_HELPER_ENGINE"
	helperModeEnv = "GO_MML2SVG_HELPER_MODE"
)

// testTimeout bounds every test that talks to a helper engine.
const testTimeout = 30 * time.Second

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func TestHelperEngine(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		t.Skip("helper engine process")
	}
	os.Exit(runHelperEngine(os.Stdin, os.Stdout, os.Stderr, flag.Args()))
}

// runHelperEngine reads framed jobs until end of input.
func runHelperEngine(stdin io.Reader, stdout, stderr io.Writer, args []string) int {
	prefix := DefaultMarker
	for _, arg := range args {
		if v, ok := strings.CutPrefix(arg, markerParam+"="); ok {
			prefix = v
		}
	}
	m, err := newMarker(prefix)
	if err != nil {
		fmt.Fprintln(stderr, "Error: bad marker parameter")
		return 2
	}

	mode := os.Getenv(helperModeEnv)
	if mode == "exit" {
		fmt.Fprintln(stderr, "Error: could not compile stylesheet")
		return 2
	}

	sc := bufio.NewScanner(stdin)
	sc.Buffer(make([]byte, 64<<10), 1<<20)

	var (
		token string
		body  []string
		inJob bool
	)
	for sc.Scan() {
		line := sc.Text()
		fr, marked, err := m.parse(line)
		if err != nil {
			fmt.Fprintln(stderr, "Error: unreadable frame:", line)
			return 1
		}
		switch {
		case marked && fr.kind == frameJob:
			token, body, inJob = fr.token, body[:0], true
		case marked && fr.kind == frameEnd:
			inJob = false
			if code := helperJob(m, token, strings.Join(body, "\n"), stdout, stderr); code >= 0 {
				return code
			}
		case inJob:
			body = append(body, line)
		}
	}

	if mode == "ignore-eof" {
		time.Sleep(time.Hour)
	}
	return 0
}

// helperJob answers one job. It returns an exit code to terminate the
// engine, or -1 to keep serving.
//
// Behaviors by document content:
//   - "crash": logs a fatal error and exits 3
//   - "sigkill": logs an out of memory error and kills itself
//   - "hang": never answers
//   - "desync": terminates with a foreign token
//   - "semantics": reports an XML parser error, status=error
//   - "mglyph": logs a warning before the sentinel
//   - "unbounded": logs a warning after the sentinel
//   - "slow": takes 50ms
func helperJob(m marker, token, doc string, stdout, stderr io.Writer) int {
	fmt.Fprintf(stderr, "LOG: INFO: MathML2SVG converting %d bytes\n", len(doc))

	switch {
	case strings.Contains(doc, "crash"):
		fmt.Fprintln(stderr, "Fatal error during transformation: crash requested")
		return 3
	case strings.Contains(doc, "sigkill"):
		fmt.Fprintln(stderr, "java.lang.OutOfMemoryError: Java heap space")
		if p, err := os.FindProcess(os.Getpid()); err == nil {
			_ = p.Kill()
		}
		time.Sleep(time.Hour)
	case strings.Contains(doc, "hang"):
		time.Sleep(time.Hour)
	case strings.Contains(doc, "desync"):
		fmt.Fprintln(stdout, helperSVG(doc))
		fmt.Fprintln(stdout, m.done("stale-1", statusOK))
		fmt.Fprintln(stderr, m.done(token, ""))
		return -1
	case strings.Contains(doc, "semantics"):
		fmt.Fprintln(stderr, "Error reported by XML parser: <semantics> is not supported")
		fmt.Fprintln(stdout, m.done(token, statusError))
		fmt.Fprintln(stderr, m.done(token, ""))
		return -1
	case strings.Contains(doc, "mglyph"):
		fmt.Fprintln(stderr, "LOG: WARNING: <mglyph> rendered as a placeholder")
	case strings.Contains(doc, "slow"):
		time.Sleep(50 * time.Millisecond)
	}

	fmt.Fprintln(stdout, helperSVG(doc))
	fmt.Fprintln(stdout, m.done(token, statusOK))
	fmt.Fprintln(stderr, m.done(token, ""))

	if strings.Contains(doc, "unbounded") {
		fmt.Fprintln(stderr, "LOG: WARNING: Cannot determine bounding box for glyph")
	}
	return -1
}

// helperSVG is the fake engine's rendering: the document text in a <text>.
func helperSVG(doc string) string {
	text := strings.TrimSpace(tagPattern.ReplaceAllString(doc, ""))
	return `<svg xmlns="http://www.w3.org/2000/svg"><text>` + text + `</text></svg>`
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// helperEngine returns an EngineConfig that launches the helper engine.
// mode is empty for a well-behaved engine.
func helperEngine(t testing.TB, mode string) EngineConfig {
	t.Helper()

	xsl := filepath.Join(t.TempDir(), "pmml2svg.xsl")
	if err := os.WriteFile(xsl, []byte("<xsl:stylesheet version=\"2.0\"/>\n"), 0o600); err != nil {
		t.Fatalf("writing stylesheet: %v", err)
	}
	env := []string{helperEnv + "=1"}
	if mode != "" {
		env = append(env, helperModeEnv+"="+mode)
	}
	return EngineConfig{
		Java:       os.Args[0],
		Stylesheet: xsl,
		Args:       []string{"-test.run=^TestHelperEngine$", "--"},
		Env:        env,
	}
}

// testOptions are the options every helper-backed test starts from.
func testOptions(t testing.TB, mode string) []Option {
	t.Helper()
	return []Option{
		WithEngine(helperEngine(t, mode)),
		WithJobTimeout(5 * time.Second),
		WithStartTimeout(10 * time.Second),
		WithStopGrace(500 * time.Millisecond),
	}
}

// newTestManager creates a Manager on the helper engine, stopped on cleanup.
func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	mgr, err := NewManager(append(testOptions(t, ""), opts...)...)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { _ = mgr.Stop() })
	return mgr
}

// testContext returns a context bounded by testTimeout.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// mathDoc wraps an identifier in a MathML document.
func mathDoc(ident string) Document {
	return Document(`<math xmlns="http://www.w3.org/1998/Math/MathML"><mi>` + ident + `</mi></math>`)
}

// svgFor is what the helper engine renders for mathDoc(ident).
func svgFor(ident string) string {
	return `<svg xmlns="http://www.w3.org/2000/svg"><text>` + ident + `</text></svg>`
}
