package rag

import "errors"

// Error categories used across the retrieval pipeline. Callers match them
// with errors.Is after any amount of fmt.Errorf("%w") wrapping.
var (
	// ErrValidation covers rejected inputs: bad file extension or size,
	// invalid or traversing paths.
	ErrValidation = errors.New("validation error")

	// ErrRetrieval covers an unreadable index or an embedding-provider
	// failure during add or search.
	ErrRetrieval = errors.New("retrieval error")

	// ErrGeneration covers SQL-generation and answer-synthesis failures.
	ErrGeneration = errors.New("generation error")

	// ErrExecution covers relational query failures.
	ErrExecution = errors.New("execution error")

	// ErrStorage covers snapshot persistence failures.
	ErrStorage = errors.New("storage error")
)
