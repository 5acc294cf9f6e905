package mml2svg

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/alnah/go-mml2svg/internal/fileutil"
)

// defaultJava is the executable used when EngineConfig.Java is empty.
const defaultJava = "java"

// markerParam passes the protocol marker to the engine as a stylesheet parameter.
const markerParam = "mml2svgMarker"

// EngineConfig describes how to launch the transformation engine.
//
// With SaxonJar set the command is
//
//	java [JavaOpts...] -jar SaxonJar [Args...] -xsl:Stylesheet [name=value...]
//
// Without it, Java is run directly and JavaOpts are ignored. The engine must
// speak the job protocol described in the package documentation.
type EngineConfig struct {
	Java       string            // executable name or path (default "java")
	JavaOpts   []string          // JVM options, e.g. "-Xss8m"
	SaxonJar   string            // path to the Saxon (or wrapper) jar
	Stylesheet string            // path to the MathML to SVG stylesheet
	Args       []string          // extra engine arguments before -xsl
	Params     map[string]string // stylesheet parameters
	Env        []string          // extra environment, "KEY=value"
	Dir        string            // working directory, empty for current
}

// command resolves the executable and arguments. Paths are checked to exist
// so that a misconfigured engine fails at start rather than on first job.
func (e EngineConfig) command(m marker) (string, []string, error) {
	if e.Stylesheet == "" {
		return "", nil, fmt.Errorf("%w: no stylesheet configured", ErrStylesheetNotFound)
	}
	xsl, err := filepath.Abs(e.Stylesheet)
	if err != nil || !fileutil.FileExists(xsl) {
		return "", nil, fmt.Errorf("%w: %s", ErrStylesheetNotFound, e.Stylesheet)
	}

	java := e.Java
	if java == "" {
		java = defaultJava
	}
	exe, err := exec.LookPath(java)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s: %v", ErrEngineNotFound, java, err)
	}

	var args []string
	if e.SaxonJar != "" {
		jar, absErr := filepath.Abs(e.SaxonJar)
		if absErr != nil || !fileutil.FileExists(jar) {
			return "", nil, fmt.Errorf("%w: %s", ErrSaxonJarNotFound, e.SaxonJar)
		}
		args = append(args, e.JavaOpts...)
		args = append(args, "-jar", jar)
	}
	args = append(args, e.Args...)
	args = append(args, "-xsl:"+xsl)

	names := make([]string, 0, len(e.Params))
	for name := range e.Params {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		args = append(args, name+"="+e.Params[name])
	}
	args = append(args, markerParam+"="+m.prefix)

	return exe, args, nil
}

// String renders the engine invocation for logs.
func (e EngineConfig) String() string {
	parts := []string{e.Java}
	if e.Java == "" {
		parts[0] = defaultJava
	}
	if e.SaxonJar != "" {
		parts = append(parts, "-jar", e.SaxonJar)
	}
	parts = append(parts, "-xsl:"+e.Stylesheet)
	return strings.Join(parts, " ")
}
