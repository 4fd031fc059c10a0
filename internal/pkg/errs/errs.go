// Package errs defines the typed errors shared across the chatbot pipeline.
// Callers branch on error type with errors.As rather than string matching.
package errs

import "fmt"

// DomainError indicates a query referenced an unknown documentation domain.
type DomainError struct {
	Domain string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("unknown documentation domain %q", e.Domain)
}

// EmbeddingError wraps a failure from the embedding provider.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed (provider %s): %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// CompletionError wraps a failure from the chat completion provider,
// including mid-stream failures.
type CompletionError struct {
	Provider string
	Err      error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed (provider %s): %v", e.Provider, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// StorageError wraps a vector store failure. Stored reports how many chunks
// of a batch were persisted before the failure, so ingestion callers can
// resume rather than re-index from scratch.
type StorageError struct {
	Op     string
	Stored int
	Err    error
}

func (e *StorageError) Error() string {
	if e.Stored > 0 {
		return fmt.Sprintf("vector store %s failed after %d chunks: %v", e.Op, e.Stored, e.Err)
	}
	return fmt.Sprintf("vector store %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ValidationError indicates rejected user input. Hint, when set, is safe to
// show the user.
type ValidationError struct {
	Field string
	Hint  string
}

func (e *ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Hint)
	}
	return fmt.Sprintf("invalid %s", e.Field)
}

// ConfigError indicates invalid or missing configuration discovered at
// startup.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}
