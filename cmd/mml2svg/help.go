package main

import (
	"fmt"
	"io"

	"github.com/alnah/go-mml2svg"
)

// printUsage prints the main usage message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mml2svg <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve      Serve MathML to SVG conversion over HTTP")
	fmt.Fprintln(w, "  convert    Convert MathML files to SVG")
	fmt.Fprintln(w, "  doctor     Check the engine installation")
	fmt.Fprintln(w, "  config     Print the effective configuration")
	fmt.Fprintln(w, "  version    Show version information")
	fmt.Fprintln(w, "  help       Show help for a command")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'mml2svg help <command>' for details on a specific command.")
}

// printEngineUsage prints the flags shared by commands that launch engines.
func printEngineUsage(w io.Writer) {
	fmt.Fprintln(w, "Engine:")
	fmt.Fprintln(w, "      --java <path>         Java executable (default: java on PATH)")
	fmt.Fprintln(w, "      --saxon-jar <path>    Saxon-HE jar")
	fmt.Fprintln(w, "      --stylesheet <path>   MathML to SVG stylesheet")
	fmt.Fprintf(w, "      --marker <s>          Protocol marker prefix (default: %s)\n", mml2svg.DefaultMarker)
	fmt.Fprintln(w)
}

// printPoolUsage prints the pool flags.
func printPoolUsage(w io.Writer) {
	fmt.Fprintln(w, "Pool:")
	fmt.Fprintln(w, "  -w, --workers <n>         Engine processes (0 = auto)")
	fmt.Fprintln(w, "  -t, --timeout <d>         Per-job timeout (e.g., 30s, 2m)")
	fmt.Fprintln(w)
}

// printCommonUsage prints the flags every command accepts.
func printCommonUsage(w io.Writer) {
	fmt.Fprintln(w, "Output Control:")
	fmt.Fprintln(w, "  -c, --config <name>       Config file name or path")
	fmt.Fprintln(w, "      --log-level <s>       debug, info, warn, error")
	fmt.Fprintln(w, "      --log-format <s>      text, json")
	fmt.Fprintln(w, "  -q, --quiet               Only show errors")
	fmt.Fprintln(w, "  -v, --verbose             Show detailed timing and engine logs")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  MML2SVG_CONFIG, MML2SVG_JAVA, MML2SVG_SAXON_JAR, MML2SVG_STYLESHEET,")
	fmt.Fprintln(w, "  MML2SVG_MARKER, MML2SVG_TIMEOUT, MML2SVG_WORKERS, MML2SVG_LISTEN,")
	fmt.Fprintln(w, "  MML2SVG_LOG_LEVEL, MML2SVG_LOG_FORMAT, MML2SVG_OUTPUT_DIR")
	fmt.Fprintln(w, "  Flags override environment, which overrides the config file.")
}

// printServeUsage prints usage for the serve command.
func printServeUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mml2svg serve [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Serve MathML to SVG conversion over HTTP.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Endpoints:")
	fmt.Fprintln(w, "  POST /, /convert          Form field MathML (value or file) -> image/svg+xml")
	fmt.Fprintln(w, "  GET  /healthz             Engine states as JSON")
	fmt.Fprintln(w, "  GET  /metrics             Prometheus metrics")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Server:")
	fmt.Fprintln(w, "  -l, --listen <addr>       Listen address (default: 127.0.0.1:6543)")
	fmt.Fprintln(w, "      --max-body <bytes>    Maximum request body")
	fmt.Fprintln(w, "      --lazy                Start engines on first request")
	fmt.Fprintln(w)
	printEngineUsage(w)
	printPoolUsage(w)
	printCommonUsage(w)
}

// printConvertUsage prints usage for the convert command.
func printConvertUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mml2svg convert <input>... [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Convert MathML files to SVG.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Arguments:")
	fmt.Fprintln(w, "  input    .mml, .mathml or .xml file, directory, or - for stdin")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Input/Output:")
	fmt.Fprintln(w, "  -o, --output <path>       Output .svg file or directory")
	fmt.Fprintln(w)
	printEngineUsage(w)
	printPoolUsage(w)
	printCommonUsage(w)
}

// printDoctorUsage prints usage for the doctor command.
func printDoctorUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mml2svg doctor [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Check java, the Saxon jar, the stylesheet and the environment.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "      --json                Output as JSON")
	fmt.Fprintln(w)
	printEngineUsage(w)
	printCommonUsage(w)
}

// printConfigUsage prints usage for the config command.
func printConfigUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: mml2svg config [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Print the effective configuration as YAML, after the config file,")
	fmt.Fprintln(w, "environment and flags are applied.")
	fmt.Fprintln(w)
	printEngineUsage(w)
	printPoolUsage(w)
	printCommonUsage(w)
}

// runHelp prints help for a specific command.
func runHelp(args []string, env *Environment) {
	if len(args) == 0 {
		printUsage(env.Stdout)
		return
	}

	switch args[0] {
	case "serve":
		printServeUsage(env.Stdout)
	case "convert":
		printConvertUsage(env.Stdout)
	case "doctor":
		printDoctorUsage(env.Stdout)
	case "config":
		printConfigUsage(env.Stdout)
	case "version":
		fmt.Fprintln(env.Stdout, "Usage: mml2svg version")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show version information.")
	case "help":
		fmt.Fprintln(env.Stdout, "Usage: mml2svg help [command]")
		fmt.Fprintln(env.Stdout)
		fmt.Fprintln(env.Stdout, "Show help for a command.")
	default:
		fmt.Fprintf(env.Stderr, "Unknown command: %s\n", args[0])
		printUsage(env.Stderr)
	}
}
