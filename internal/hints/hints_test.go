package hints

// Notes:
// - ForEngineNotFound tests cannot use t.Parallel() because they:
//   1. Use t.Setenv() which modifies process environment
//   2. Modify the package-level IsInContainer variable
// These are acceptable gaps: we test observable behavior through environment manipulation.

import (
	"strings"
	"testing"
)

func TestForEngineNotFound_JavaHome(t *testing.T) {
	orig := IsInContainer
	defer func() { IsInContainer = orig }()
	IsInContainer = func() bool { return false }

	t.Setenv("JAVA_HOME", "/usr/lib/jvm/java-17/")

	hint := ForEngineNotFound()

	if !strings.HasPrefix(hint, "\n  hint: ") {
		t.Errorf("expected hint prefix, got %q", hint)
	}
	if !strings.Contains(hint, "MML2SVG_JAVA=/usr/lib/jvm/java-17/bin/java") {
		t.Errorf("expected JAVA_HOME based suggestion, got %q", hint)
	}
	if strings.Contains(hint, "image") {
		t.Error("should not suggest image changes outside containers")
	}
}

func TestForEngineNotFound_NoJavaHome(t *testing.T) {
	orig := IsInContainer
	defer func() { IsInContainer = orig }()
	IsInContainer = func() bool { return false }

	t.Setenv("JAVA_HOME", "")

	hint := ForEngineNotFound()

	if !strings.Contains(hint, "install a Java runtime") {
		t.Errorf("expected install suggestion, got %q", hint)
	}
}

func TestForEngineNotFound_InContainer(t *testing.T) {
	orig := IsInContainer
	defer func() { IsInContainer = orig }()
	IsInContainer = func() bool { return true }

	t.Setenv("JAVA_HOME", "")

	hint := ForEngineNotFound()

	if !strings.Contains(hint, "add a JRE to the image") {
		t.Errorf("expected container suggestion, got %q", hint)
	}
	if strings.Count(hint, "hint:") != 1 {
		t.Errorf("hints should be joined on one line, got %q", hint)
	}
}

func TestStaticHints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		hint string
		want string
	}{
		{"saxon jar", ForSaxonJar(), "MML2SVG_SAXON_JAR"},
		{"stylesheet", ForStylesheet(), "--stylesheet"},
		{"timeout", ForTimeout(), "--timeout"},
		{"engine error", ForEngineError(), "presentation MathML"},
		{"output directory", ForOutputDirectory(), "writable"},
		{"listen", ForListen(":6543"), "listening on :6543"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if !strings.HasPrefix(tt.hint, "\n  hint: ") {
				t.Errorf("hint %q missing prefix", tt.hint)
			}
			if !strings.Contains(tt.hint, tt.want) {
				t.Errorf("hint %q missing %q", tt.hint, tt.want)
			}
		})
	}
}

func TestForConfigNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		searched []string
		want     string
		notWant  string
	}{
		{
			name:     "suggests user config path",
			searched: []string{"prod.yaml", "/home/u/.config/go-mml2svg/prod.yaml"},
			want:     "or create /home/u/.config/go-mml2svg/prod.yaml",
		},
		{
			name:     "windows separators",
			searched: []string{`C:\Users\u\.config\go-mml2svg\prod.yaml`},
			want:     "or create",
		},
		{
			name:     "no user path",
			searched: []string{"prod.yaml"},
			want:     "use --config",
			notWant:  "or create",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hint := ForConfigNotFound(tt.searched)
			if !strings.Contains(hint, tt.want) {
				t.Errorf("ForConfigNotFound() = %q, want %q", hint, tt.want)
			}
			if tt.notWant != "" && strings.Contains(hint, tt.notWant) {
				t.Errorf("ForConfigNotFound() = %q, should not contain %q", hint, tt.notWant)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	if got := format(""); got != "" {
		t.Errorf("format(\"\") = %q, want empty", got)
	}
	if got := formatHints(nil); got != "" {
		t.Errorf("formatHints(nil) = %q, want empty", got)
	}
	if got := formatHints([]string{"a", "b"}); got != "\n  hint: a; b" {
		t.Errorf("formatHints() = %q", got)
	}
}
