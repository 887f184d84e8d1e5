// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"

	"castmon/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	// AddViolation records a violation if the (post, rule) pair is new.
	// It returns true when a record was created and false when the pair
	// already existed.
	AddViolation(ctx context.Context, v model.Violation) (bool, error)
	ViolationsByAuthor(ctx context.Context, authorID string) ([]model.Violation, error)
	Violations(ctx context.Context) ([]model.Violation, error)

	Close() error
}
