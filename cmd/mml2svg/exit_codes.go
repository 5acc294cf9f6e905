package main

import (
	"errors"
	"os"

	"github.com/alnah/go-mml2svg"
	"github.com/alnah/go-mml2svg/internal/config"
	"github.com/alnah/go-mml2svg/internal/hints"
)

// Exit codes for the mml2svg CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // Successful conversion
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // File not found, permission denied
	ExitEngine  = 4 // Engine missing, failed to start, or failed a job
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Engine errors (exit 4)
	if errors.Is(err, mml2svg.ErrEngineNotFound) ||
		errors.Is(err, mml2svg.ErrSaxonJarNotFound) ||
		errors.Is(err, mml2svg.ErrStylesheetNotFound) ||
		errors.Is(err, mml2svg.ErrStartup) ||
		errors.Is(err, mml2svg.ErrStopTimeout) ||
		errors.Is(err, mml2svg.ErrTimeout) ||
		errors.Is(err, mml2svg.ErrEngine) ||
		errors.Is(err, mml2svg.ErrProtocol) {
		return ExitEngine
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, ErrReadInput) ||
		errors.Is(err, ErrWriteOutput) ||
		errors.Is(err, ErrNoInput) ||
		errors.Is(err, ErrNoFiles) ||
		errors.Is(err, ErrListen) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, mml2svg.ErrEmptyDocument) ||
		errors.Is(err, mml2svg.ErrInvalidDocument) ||
		errors.Is(err, mml2svg.ErrInvalidMarker) ||
		errors.Is(err, ErrUsage) ||
		errors.Is(err, ErrInvalidExtension) ||
		errors.Is(err, ErrInvalidWorkerCount) {
		return ExitUsage
	}

	return ExitGeneral
}

// hintFor returns an actionable hint for engine failures, or "".
func hintFor(err error) string {
	switch {
	case errors.Is(err, mml2svg.ErrEngineNotFound):
		return hints.ForEngineNotFound()
	case errors.Is(err, mml2svg.ErrSaxonJarNotFound):
		return hints.ForSaxonJar()
	case errors.Is(err, mml2svg.ErrStylesheetNotFound):
		return hints.ForStylesheet()
	case errors.Is(err, mml2svg.ErrTimeout):
		return hints.ForTimeout()
	case errors.Is(err, mml2svg.ErrEngine):
		return hints.ForEngineError()
	}
	return ""
}
