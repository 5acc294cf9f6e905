package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alnah/go-mml2svg"
	"github.com/alnah/go-mml2svg/internal/config"
	"github.com/alnah/go-mml2svg/internal/fileutil"
	"github.com/alnah/go-mml2svg/internal/hints"
)

// Sentinel errors for CLI operations.
var (
	ErrUsage              = errors.New("invalid usage")
	ErrNoInput            = errors.New("no input specified")
	ErrNoFiles            = errors.New("no MathML files found")
	ErrReadInput          = errors.New("failed to read MathML file")
	ErrWriteOutput        = errors.New("failed to write SVG file")
	ErrInvalidExtension   = errors.New("file must have .mml, .mathml or .xml extension")
	ErrInvalidWorkerCount = errors.New("invalid worker count")
	ErrConversionFailed   = errors.New("conversion failed")
)

// File permission constants.
const (
	dirPermissions  = 0o750 // rwxr-x---: owner full, group read+execute
	filePermissions = 0o644 // rw-r--r--: owner read+write, others read
)

// stdioPath stands for stdin as an input and stdout as an output.
const stdioPath = "-"

// inputExtensions are the file extensions picked up from directories.
var inputExtensions = []string{".mml", ".mathml", ".xml"}

// FileToConvert represents a single file to process.
type FileToConvert struct {
	InputPath  string
	OutputPath string
}

// ConversionResult holds the outcome of a single conversion.
type ConversionResult struct {
	InputPath  string
	OutputPath string
	Warnings   []string
	Err        error
	Duration   time.Duration
}

// runConvert orchestrates the conversion process.
func runConvert(ctx context.Context, args []string, env *Environment) error {
	flags, positional, err := parseConvertFlags(args, env.Stderr)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(&flags.common, env)
	if err != nil {
		return err
	}
	mergeEngineFlags(&flags.engine, cfg)
	mergePoolFlags(&flags.pool, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if len(positional) == 0 {
		return ErrNoInput
	}

	outputDir := resolveOutputDir(flags.output, cfg)
	var files []FileToConvert
	for _, input := range positional {
		found, err := discoverFiles(input, outputDir)
		if err != nil {
			return fmt.Errorf("discovering files: %w", err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		return fmt.Errorf("%w in %s", ErrNoFiles, strings.Join(positional, ", "))
	}
	if isSVGPath(outputDir) && len(files) > 1 {
		return fmt.Errorf("%w: --output %s names a file but %d inputs were found", ErrUsage, outputDir, len(files))
	}

	// No more engines than files.
	cfg.Pool.Workers = min(mml2svg.ResolvePoolSize(cfg.Pool.Workers), len(files))

	logger := newLogger(cfg, env.Stderr)
	pool, err := newPool(cfg, env, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.Stop(); err != nil {
			logger.Warn("stopping engines", "error", err)
		}
	}()

	results := convertBatch(ctx, pool, files, env)
	failed := printResults(results, flags.common.quiet, flags.common.verbose, env)
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d files: %w", ErrConversionFailed, failed, len(results), firstError(results))
	}
	return nil
}

// resolveOutputDir picks the output location: flag, then config.
func resolveOutputDir(flagOutput string, cfg *config.Config) string {
	if flagOutput != "" {
		return flagOutput
	}
	return cfg.Output.DefaultDir
}

// discoverFiles finds all MathML files to convert under inputPath.
func discoverFiles(inputPath, outputDir string) ([]FileToConvert, error) {
	if inputPath == stdioPath {
		out := stdioPath
		if isSVGPath(outputDir) {
			out = outputDir
		}
		return []FileToConvert{{InputPath: stdioPath, OutputPath: out}}, nil
	}

	info, err := os.Stat(inputPath)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		if err := validateInputExtension(inputPath); err != nil {
			return nil, err
		}
		outPath, err := resolveOutputPath(inputPath, outputDir, "")
		if err != nil {
			return nil, err
		}
		return []FileToConvert{{InputPath: inputPath, OutputPath: outPath}}, nil
	}

	var files []FileToConvert
	err = filepath.WalkDir(inputPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("scanning %s: %w", path, err)
		}
		if d.IsDir() || !hasInputExtension(path) {
			return nil
		}
		outPath, err := resolveOutputPath(path, outputDir, inputPath)
		if err != nil {
			return err
		}
		files = append(files, FileToConvert{InputPath: path, OutputPath: outPath})
		return nil
	})

	return files, err
}

// resolveOutputPath determines the SVG output path for a MathML file.
// Directory inputs keep their layout below outputDir.
func resolveOutputPath(inputPath, outputDir, baseInputDir string) (string, error) {
	if isSVGPath(outputDir) {
		return outputDir, nil
	}

	svgName, err := fileutil.ReplaceExt(filepath.Base(inputPath), "svg")
	if err != nil {
		return "", err
	}

	if outputDir == "" {
		return filepath.Join(filepath.Dir(inputPath), svgName), nil
	}

	if baseInputDir != "" {
		if relPath, err := filepath.Rel(baseInputDir, inputPath); err == nil {
			return filepath.Join(outputDir, filepath.Dir(relPath), svgName), nil
		}
	}

	return filepath.Join(outputDir, svgName), nil
}

func isSVGPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".svg")
}

func hasInputExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range inputExtensions {
		if ext == want {
			return true
		}
	}
	return false
}

// validateInputExtension checks that an explicit input file is MathML.
func validateInputExtension(path string) error {
	if !hasInputExtension(path) {
		return fmt.Errorf("%w: got %q", ErrInvalidExtension, filepath.Ext(path))
	}
	return nil
}

// convertBatch processes files concurrently, one goroutine per engine.
// Results keep the order of files.
func convertBatch(ctx context.Context, pool Pool, files []FileToConvert, env *Environment) []ConversionResult {
	if len(files) == 0 {
		return nil
	}

	concurrency := min(pool.Size(), len(files))

	results := make([]ConversionResult, len(files))
	var wg sync.WaitGroup
	jobs := make(chan int, len(files))

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					results[idx] = ConversionResult{
						InputPath: files[idx].InputPath,
						Err:       ctx.Err(),
					}
					continue
				}
				results[idx] = convertFile(ctx, pool, files[idx], env)
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	return results
}

// convertFile processes a single file and returns the result.
func convertFile(ctx context.Context, pool Pool, f FileToConvert, env *Environment) ConversionResult {
	start := time.Now()
	result := ConversionResult{
		InputPath:  f.InputPath,
		OutputPath: f.OutputPath,
	}
	fail := func(err error) ConversionResult {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	content, err := readInput(f.InputPath, env.Stdin)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", ErrReadInput, err))
	}

	res, err := pool.Convert(ctx, mml2svg.Document(content))
	if err != nil {
		return fail(err)
	}
	result.Warnings = res.Diagnostics.Warnings()

	if err := writeOutput(f.OutputPath, res.Output, env.Stdout); err != nil {
		return fail(err)
	}

	result.Duration = time.Since(start)
	return result
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == stdioPath {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path) // #nosec G304 -- discovered path
}

func writeOutput(path string, svg []byte, stdout io.Writer) error {
	if path == stdioPath {
		if _, err := stdout.Write(svg); err != nil {
			return fmt.Errorf("%w: %v", ErrWriteOutput, err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return fmt.Errorf("%w: creating output directory: %v%s", ErrWriteOutput, err, hints.ForOutputDirectory())
	}
	// #nosec G306 -- SVGs are meant to be readable
	if err := os.WriteFile(path, svg, filePermissions); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteOutput, err)
	}
	return nil
}

// ResultSummary holds the count of succeeded and failed conversions.
type ResultSummary struct {
	Succeeded int
	Failed    int
	Warnings  int
}

// countResults tallies succeeded and failed conversions.
func countResults(results []ConversionResult) ResultSummary {
	var summary ResultSummary
	for _, r := range results {
		if r.Err != nil {
			summary.Failed++
		} else {
			summary.Succeeded++
		}
		summary.Warnings += len(r.Warnings)
	}
	return summary
}

// firstError returns the error of the first failed result.
func firstError(results []ConversionResult) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// printResults outputs conversion results and returns the failure count.
// Status lines go to stderr when the SVG itself is written to stdout.
func printResults(results []ConversionResult, quiet, verbose bool, env *Environment) int {
	summary := countResults(results)

	status := env.Stdout
	for _, r := range results {
		if r.OutputPath == stdioPath {
			status = env.Stderr
		}
	}

	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(env.Stderr, "FAILED %s: %v\n", r.InputPath, r.Err)
			continue
		}

		for _, w := range r.Warnings {
			fmt.Fprintf(env.Stderr, "warning: %s: %s\n", r.InputPath, w)
		}

		if quiet || r.OutputPath == stdioPath {
			continue
		}

		if verbose {
			fmt.Fprintf(status, "%s -> %s (%v)\n", r.InputPath, r.OutputPath, r.Duration.Round(time.Millisecond))
		} else {
			fmt.Fprintf(status, "Created %s\n", r.OutputPath)
		}
	}

	if !quiet && len(results) > 1 {
		fmt.Fprintf(status, "\n%d succeeded, %d failed, %d warnings\n", summary.Succeeded, summary.Failed, summary.Warnings)
	}

	return summary.Failed
}
