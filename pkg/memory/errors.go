package memory

import (
	"errors"
	"fmt"
)

// Failure categories for callers that branch on error class rather than
// message. Concrete causes are wrapped underneath.
var (
	// ErrEmbedding covers model load, inference and remote API failures.
	ErrEmbedding = errors.New("embedding failure")
	// ErrIndex covers vector index search and persistence failures.
	ErrIndex = errors.New("vector index failure")
	// ErrStore covers relational store failures.
	ErrStore = errors.New("store failure")
)

func embeddingErr(err error) error {
	return fmt.Errorf("%w: %w", ErrEmbedding, err)
}

func indexErr(err error) error {
	return fmt.Errorf("%w: %w", ErrIndex, err)
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStore, err)
}
