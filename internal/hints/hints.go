// Package hints provides actionable error hints for common failure scenarios.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"os"
	"strings"

	"github.com/alnah/go-mml2svg/internal/fileutil"
)

// IsInContainer detects if running inside a Docker container or similar.
// Checks for /.dockerenv file which Docker creates automatically.
var IsInContainer = func() bool {
	return fileutil.FileExists("/.dockerenv")
}

// ForEngineNotFound returns hints for a missing java executable.
// Suggests MML2SVG_JAVA and JAVA_HOME, and a JRE package in containers.
func ForEngineNotFound() string {
	var hints []string

	if home := os.Getenv("JAVA_HOME"); home != "" {
		hints = append(hints, "set MML2SVG_JAVA="+strings.TrimRight(home, "/\\")+"/bin/java")
	} else {
		hints = append(hints, "install a Java runtime or set MML2SVG_JAVA to its java binary")
	}

	if IsInContainer() {
		hints = append(hints, "add a JRE to the image (e.g. default-jre-headless)")
	}

	return formatHints(hints)
}

// ForSaxonJar returns hints for a missing Saxon jar.
func ForSaxonJar() string {
	return format("set --saxon-jar or MML2SVG_SAXON_JAR to the Saxon-HE jar")
}

// ForStylesheet returns hints for a missing MathML to SVG stylesheet.
func ForStylesheet() string {
	return format("set --stylesheet or MML2SVG_STYLESHEET to pmml2svg.xsl")
}

// ForTimeout returns a hint about increasing timeout for slow operations.
func ForTimeout() string {
	return format("for large formulas, use --timeout flag")
}

// ForEngineError returns a hint for documents the engine refused.
func ForEngineError() string {
	return format("check the document is presentation MathML; run with --log-level debug for engine output")
}

// ForConfigNotFound returns hints for config file not found errors.
// Suggests --config flag and creating a config in ~/.config/go-mml2svg/.
func ForConfigNotFound(searchedPaths []string) string {
	hint := "use --config /path/to/file.yaml"

	for _, p := range searchedPaths {
		if strings.Contains(filepathSlash(p), ".config/go-mml2svg") {
			hint += " or create " + p
			break
		}
	}

	return format(hint)
}

// ForOutputDirectory returns hints for output directory creation errors.
func ForOutputDirectory() string {
	return format("check parent directory exists and is writable")
}

// ForListen returns hints for an address the server could not bind.
func ForListen(addr string) string {
	return format("is another process listening on " + addr + "? use --listen to pick another address")
}

func filepathSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// format creates a single hint string with consistent formatting.
func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

// formatHints joins multiple hints with consistent formatting.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}
