package models

import "errors"

// Error taxonomy for the ingestion and query paths. Components wrap these
// sentinels with %w so callers can classify failures with errors.Is.
var (
	// ErrInvalidInput marks malformed documents or queries. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingService marks an embedding call that failed after bounded
	// retries. On ingestion the chunk is skipped; on retrieval the query fails.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrGenerationService marks an answer generation failure after retries.
	ErrGenerationService = errors.New("generation service error")

	// ErrDimensionMismatch marks an insert whose vector dimensionality does
	// not match the index. The offending insert is rejected; the rest of the
	// batch continues.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrModelMismatch marks an insert whose embedding model version differs
	// from the index's. Stale vectors are never mixed with new-model vectors.
	ErrModelMismatch = errors.New("embedding model version mismatch")

	// ErrTimeout marks an operation that exceeded its caller-supplied
	// deadline. Surfaced as a degraded-answer signal, not a crash.
	ErrTimeout = errors.New("operation timed out")

	// ErrFetch marks a fetcher failure for a source URL.
	ErrFetch = errors.New("fetch error")
)
