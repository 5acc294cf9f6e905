package main

import (
	"errors"
	"fmt"
	"io"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-mml2svg/internal/config"
)

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config    string
	logLevel  string
	logFormat string
	quiet     bool
	verbose   bool
}

// engineFlags holds engine launch flags.
type engineFlags struct {
	java       string
	saxonJar   string
	stylesheet string
	marker     string
}

// poolFlags holds worker pool flags.
type poolFlags struct {
	workers int
	timeout string
}

// serveFlags holds all flags for the serve command.
type serveFlags struct {
	common  commonFlags
	engine  engineFlags
	pool    poolFlags
	listen  string
	maxBody int64
	lazy    bool
}

// convertFlags holds all flags for the convert command.
type convertFlags struct {
	common commonFlags
	engine engineFlags
	pool   poolFlags
	output string
}

// doctorFlags holds flags for the doctor command.
type doctorFlags struct {
	common commonFlags
	engine engineFlags
	json   bool
}

// configFlags holds flags for the config command.
type configFlags struct {
	common commonFlags
	engine engineFlags
	pool   poolFlags
	listen string
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "log format: text, json")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only show errors")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "show detailed timing and engine logs")
}

// addEngineFlags adds engine launch flags to a FlagSet.
func addEngineFlags(fs *flag.FlagSet, f *engineFlags) {
	fs.StringVar(&f.java, "java", "", "java executable (default: java on PATH)")
	fs.StringVar(&f.saxonJar, "saxon-jar", "", "Saxon-HE jar path")
	fs.StringVar(&f.stylesheet, "stylesheet", "", "MathML to SVG stylesheet path")
	fs.StringVar(&f.marker, "marker", "", "protocol marker prefix")
}

// addPoolFlags adds pool flags to a FlagSet.
func addPoolFlags(fs *flag.FlagSet, f *poolFlags) {
	fs.IntVarP(&f.workers, "workers", "w", 0, "engine processes (0 = auto)")
	fs.StringVarP(&f.timeout, "timeout", "t", "", "per-job timeout (e.g., 30s, 2m)")
}

// newFlagSet returns a FlagSet that reports errors instead of exiting.
func newFlagSet(name string, stderr io.Writer, usage func(io.Writer)) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { usage(stderr) }
	return fs
}

// parseError wraps a flag parse error as a usage error. ErrHelp passes through.
func parseError(err error) error {
	if errors.Is(err, flag.ErrHelp) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUsage, err)
}

// parseServeFlags parses serve command flags.
func parseServeFlags(args []string, stderr io.Writer) (*serveFlags, error) {
	f := &serveFlags{}
	fs := newFlagSet("serve", stderr, printServeUsage)

	fs.StringVarP(&f.listen, "listen", "l", "", "listen address (default "+config.DefaultListen+")")
	fs.Int64Var(&f.maxBody, "max-body", 0, "maximum request body in bytes")
	fs.BoolVar(&f.lazy, "lazy", false, "start engines on first request instead of at startup")
	addCommonFlags(fs, &f.common)
	addEngineFlags(fs, &f.engine)
	addPoolFlags(fs, &f.pool)

	if err := fs.Parse(args); err != nil {
		return nil, parseError(err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: serve takes no arguments, got %q", ErrUsage, fs.Args())
	}
	if err := validateWorkers(f.pool.workers); err != nil {
		return nil, err
	}
	return f, nil
}

// parseConvertFlags parses convert command flags and returns positional args.
func parseConvertFlags(args []string, stderr io.Writer) (*convertFlags, []string, error) {
	f := &convertFlags{}
	fs := newFlagSet("convert", stderr, printConvertUsage)

	fs.StringVarP(&f.output, "output", "o", "", "output file or directory")
	addCommonFlags(fs, &f.common)
	addEngineFlags(fs, &f.engine)
	addPoolFlags(fs, &f.pool)

	if err := fs.Parse(args); err != nil {
		return nil, nil, parseError(err)
	}
	if err := validateWorkers(f.pool.workers); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}

// parseDoctorFlags parses doctor command flags.
func parseDoctorFlags(args []string, stderr io.Writer) (*doctorFlags, error) {
	f := &doctorFlags{}
	fs := newFlagSet("doctor", stderr, printDoctorUsage)

	fs.BoolVar(&f.json, "json", false, "output as JSON")
	addCommonFlags(fs, &f.common)
	addEngineFlags(fs, &f.engine)

	if err := fs.Parse(args); err != nil {
		return nil, parseError(err)
	}
	return f, nil
}

// parseConfigFlags parses config command flags.
func parseConfigFlags(args []string, stderr io.Writer) (*configFlags, error) {
	f := &configFlags{}
	fs := newFlagSet("config", stderr, printConfigUsage)

	fs.StringVarP(&f.listen, "listen", "l", "", "listen address")
	addCommonFlags(fs, &f.common)
	addEngineFlags(fs, &f.engine)
	addPoolFlags(fs, &f.pool)

	if err := fs.Parse(args); err != nil {
		return nil, parseError(err)
	}
	if err := validateWorkers(f.pool.workers); err != nil {
		return nil, err
	}
	return f, nil
}

// validateWorkers checks that the worker count is within valid bounds.
func validateWorkers(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: %d (must be >= 0, 0 means auto)", ErrInvalidWorkerCount, n)
	}
	if n > config.MaxWorkers {
		return fmt.Errorf("%w: %d (maximum is %d)", ErrInvalidWorkerCount, n, config.MaxWorkers)
	}
	return nil
}
