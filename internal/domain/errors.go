package domain

import "errors"

var (
	// ErrInvalidConfiguration indicates malformed chunking or retrieval
	// parameters. It is raised before any work is attempted.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrDimensionMismatch indicates an embedding whose length disagrees with
	// the index dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingUnavailable indicates the embedding provider failed or timed out.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")
)
