package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-mml2svg"
	"github.com/alnah/go-mml2svg/internal/config"
	"github.com/alnah/go-mml2svg/internal/fileutil"
	"github.com/alnah/go-mml2svg/internal/hints"
)

// doctorResult holds all diagnostic information.
type doctorResult struct {
	Status   string     `json:"status"` // "ready", "warnings", "errors"
	Engine   engineInfo `json:"engine"`
	Env      envInfo    `json:"environment"`
	System   systemInfo `json:"system"`
	Warnings []string   `json:"warnings,omitempty"`
	Errors   []string   `json:"errors,omitempty"`
}

// engineInfo holds engine detection results.
type engineInfo struct {
	JavaFound      bool   `json:"java_found"`
	JavaPath       string `json:"java_path,omitempty"`
	JavaVersion    string `json:"java_version,omitempty"`
	SaxonJar       string `json:"saxon_jar,omitempty"`
	SaxonJarFound  bool   `json:"saxon_jar_found"`
	Stylesheet     string `json:"stylesheet,omitempty"`
	StylesheetOK   bool   `json:"stylesheet_found"`
	Marker         string `json:"marker"`
	DefaultWorkers int    `json:"default_workers"`
}

// envInfo holds environment detection results.
type envInfo struct {
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	Container     bool   `json:"container"`
	ContainerHint string `json:"container_hint,omitempty"`
	CI            bool   `json:"ci"`
	JavaHome      string `json:"java_home,omitempty"`
}

// systemInfo holds system check results.
type systemInfo struct {
	TempWritable   bool   `json:"temp_writable"`
	OutputDir      string `json:"output_dir,omitempty"`
	OutputWritable bool   `json:"output_writable"`
}

// runDoctorCmd executes the doctor command and returns an exit code.
// Exit codes: 0 = OK (including warnings), 1 = errors found.
func runDoctorCmd(args []string, env *Environment) int {
	flags, err := parseDoctorFlags(args, env.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return ExitSuccess
	}
	if err != nil {
		fmt.Fprintf(env.Stderr, "error: %v\n", err)
		return exitCodeFor(err)
	}

	cfg, err := loadConfig(&flags.common, env)
	if err != nil {
		fmt.Fprintf(env.Stderr, "error: %v\n", err)
		return exitCodeFor(err)
	}
	mergeEngineFlags(&flags.engine, cfg)

	result := runDoctor(cfg, env.Getenv)

	if flags.json {
		enc := json.NewEncoder(env.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
	} else {
		printDoctorResult(env.Stdout, result)
	}

	if result.Status == "errors" {
		return ExitGeneral
	}
	return ExitSuccess
}

// runDoctor performs all diagnostic checks.
func runDoctor(cfg *config.Config, getenv func(string) string) *doctorResult {
	result := &doctorResult{
		Status: "ready",
		Env: envInfo{
			OS:       runtime.GOOS,
			Arch:     runtime.GOARCH,
			JavaHome: getenv("JAVA_HOME"),
		},
	}

	checkEngine(result, cfg.Engine)
	checkEnvironment(result, getenv)
	checkSystem(result, cfg.Output.DefaultDir)

	if len(result.Errors) > 0 {
		result.Status = "errors"
	} else if len(result.Warnings) > 0 {
		result.Status = "warnings"
	}

	return result
}

// checkEngine locates java, the Saxon jar and the stylesheet.
func checkEngine(result *doctorResult, e config.EngineConfig) {
	result.Engine.Marker = e.Marker
	if result.Engine.Marker == "" {
		result.Engine.Marker = mml2svg.DefaultMarker
	}
	result.Engine.DefaultWorkers = mml2svg.ResolvePoolSize(0)

	java := e.Java
	if java == "" {
		java = "java"
	}
	javaPath, err := exec.LookPath(java)
	if err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Java not found (%s)%s", java, hints.ForEngineNotFound()))
	} else {
		result.Engine.JavaFound = true
		result.Engine.JavaPath = javaPath
		// java -version writes to stderr.
		out, err := exec.Command(javaPath, "-version").CombinedOutput() // #nosec G204 -- configured java binary
		if err == nil {
			first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
			result.Engine.JavaVersion = strings.TrimSpace(first)
		} else {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("Could not get Java version: %v", err))
		}
	}

	result.Engine.SaxonJar = e.SaxonJar
	switch {
	case e.SaxonJar == "":
		result.Warnings = append(result.Warnings,
			"No Saxon jar configured; java is run directly"+hints.ForSaxonJar())
	case fileutil.FileExists(e.SaxonJar):
		result.Engine.SaxonJarFound = true
	default:
		result.Errors = append(result.Errors,
			fmt.Sprintf("Saxon jar not found at %s%s", e.SaxonJar, hints.ForSaxonJar()))
	}

	result.Engine.Stylesheet = e.Stylesheet
	switch {
	case e.Stylesheet == "":
		result.Errors = append(result.Errors, "No stylesheet configured"+hints.ForStylesheet())
	case fileutil.FileExists(e.Stylesheet):
		result.Engine.StylesheetOK = true
	default:
		result.Errors = append(result.Errors,
			fmt.Sprintf("Stylesheet not found at %s%s", e.Stylesheet, hints.ForStylesheet()))
	}
}

// checkEnvironment detects container and CI environments.
func checkEnvironment(result *doctorResult, getenv func(string) string) {
	result.Env.Container, result.Env.ContainerHint = isContainer(getenv)

	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}
	for _, v := range ciVars {
		if getenv(v) != "" {
			result.Env.CI = true
			break
		}
	}
}

// isContainer detects if running in a container environment.
// Returns (isContainer, hint) where hint indicates which signal was detected.
func isContainer(getenv func(string) string) (bool, string) {
	if getenv("MML2SVG_CONTAINER") == "1" {
		return true, "MML2SVG_CONTAINER=1"
	}
	if hints.IsInContainer() {
		return true, "/.dockerenv"
	}
	if v := getenv("container"); v != "" {
		return true, "container=" + v
	}
	if getenv("KUBERNETES_SERVICE_HOST") != "" {
		return true, "KUBERNETES_SERVICE_HOST"
	}
	return false, ""
}

// checkSystem verifies the temp and output directories are writable.
func checkSystem(result *doctorResult, outputDir string) {
	tmpDir := os.TempDir()
	if err := fileutil.CheckWritableDir(tmpDir); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Temp directory not writable: %s", tmpDir))
	} else {
		result.System.TempWritable = true
	}

	if outputDir == "" {
		return
	}
	result.System.OutputDir = outputDir
	if !fileutil.DirExists(outputDir) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Output directory %s does not exist yet; it will be created", outputDir))
		return
	}
	if err := fileutil.CheckWritableDir(outputDir); err != nil {
		result.Errors = append(result.Errors,
			fmt.Sprintf("Output directory not writable: %s%s", outputDir, hints.ForOutputDirectory()))
		return
	}
	result.System.OutputWritable = true
}

// printDoctorResult outputs human-readable diagnostic results.
func printDoctorResult(w io.Writer, r *doctorResult) {
	fmt.Fprintln(w, "mml2svg doctor")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Engine")
	if r.Engine.JavaFound {
		fmt.Fprintf(w, "  [OK] Java: %s\n", r.Engine.JavaPath)
		if r.Engine.JavaVersion != "" {
			fmt.Fprintf(w, "  [OK] Version: %s\n", r.Engine.JavaVersion)
		}
	} else {
		fmt.Fprintln(w, "  [ERROR] Java: not found")
	}
	if r.Engine.SaxonJarFound {
		fmt.Fprintf(w, "  [OK] Saxon jar: %s\n", r.Engine.SaxonJar)
	} else if r.Engine.SaxonJar != "" {
		fmt.Fprintf(w, "  [ERROR] Saxon jar: %s not found\n", r.Engine.SaxonJar)
	}
	if r.Engine.StylesheetOK {
		fmt.Fprintf(w, "  [OK] Stylesheet: %s\n", r.Engine.Stylesheet)
	} else {
		fmt.Fprintln(w, "  [ERROR] Stylesheet: not found")
	}
	fmt.Fprintf(w, "  [OK] Marker: %s\n", r.Engine.Marker)
	fmt.Fprintf(w, "  [OK] Default workers: %d\n", r.Engine.DefaultWorkers)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment")
	fmt.Fprintf(w, "  [OK] Platform: %s/%s\n", r.Env.OS, r.Env.Arch)
	if r.Env.Container {
		fmt.Fprintf(w, "  [OK] Container: detected (%s)\n", r.Env.ContainerHint)
	}
	if r.Env.CI {
		fmt.Fprintln(w, "  [OK] CI: detected")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "System")
	if r.System.TempWritable {
		fmt.Fprintln(w, "  [OK] Temp directory: writable")
	} else {
		fmt.Fprintln(w, "  [ERROR] Temp directory: not writable")
	}
	if r.System.OutputWritable {
		fmt.Fprintf(w, "  [OK] Output directory: %s writable\n", r.System.OutputDir)
	}
	fmt.Fprintln(w)

	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		for _, warn := range r.Warnings {
			fmt.Fprintf(w, "  [WARN] %s\n", warn)
		}
		fmt.Fprintln(w)
	}

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Errors:")
		for _, err := range r.Errors {
			fmt.Fprintf(w, "  [ERROR] %s\n", err)
		}
		fmt.Fprintln(w)
	}

	switch r.Status {
	case "ready":
		fmt.Fprintln(w, "Status: Ready to convert")
	case "warnings":
		fmt.Fprintln(w, "Status: Ready with warnings")
	case "errors":
		fmt.Fprintln(w, "Status: Not ready (see errors above)")
	}
}
