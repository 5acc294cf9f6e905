package mml2svg

import "errors"

// Sentinel errors for library operations.
var (
	ErrEmptyDocument   = errors.New("document cannot be empty")
	ErrInvalidDocument = errors.New("invalid document")

	// Worker lifecycle errors.
	ErrStartup     = errors.New("engine failed to start")
	ErrStopTimeout = errors.New("engine did not exit after kill")

	// Job errors. Each one reaches callers wrapped in a *JobError.
	ErrTimeout  = errors.New("engine timed out")
	ErrEngine   = errors.New("engine reported an error")
	ErrProtocol = errors.New("engine protocol desynchronized")

	// Engine configuration errors.
	ErrEngineNotFound     = errors.New("engine executable not found")
	ErrSaxonJarNotFound   = errors.New("saxon jar not found")
	ErrStylesheetNotFound = errors.New("stylesheet not found")
	ErrInvalidMarker      = errors.New("invalid protocol marker")
)
