package store

import "errors"

// Error categories. Every error returned by grove matches exactly one of these
// with errors.Is.
var (
	// ErrNotFound is returned when an entity doesn't exist or its TTL has expired.
	ErrNotFound = errors.New("grove: entity not found")

	// ErrInvalidRequest is returned for requests that can never succeed as stated,
	// such as a replace target outside the addressed hierarchy.
	ErrInvalidRequest = errors.New("grove: invalid request")

	// ErrStorage wraps any failure reported by DynamoDB.
	ErrStorage = errors.New("grove: storage failure")

	// ErrCorruption is returned when stored data violates a structural invariant,
	// such as a cycle in the document tree.
	ErrCorruption = errors.New("grove: corrupted hierarchy")
)

// Causes. These are always wrapped together with one of the categories above.
var (
	// ErrParentNotFound is returned when the parent entity doesn't exist or is soft-deleted.
	ErrParentNotFound = errors.New("grove: parent entity not found")

	// ErrAlreadyExists is returned when attempting to create an entity with an existing ID.
	ErrAlreadyExists = errors.New("grove: entity already exists")

	// ErrHasChildren is returned when attempting to hard-delete an entity with child documents.
	ErrHasChildren = errors.New("grove: entity has children")

	// ErrConcurrentModification is returned when optimistic lock fails (version mismatch).
	ErrConcurrentModification = errors.New("grove: entity was modified concurrently")

	// ErrTransactionTooLarge is returned when a transaction needs more item
	// operations than Config.MaxTransactItems allows.
	ErrTransactionTooLarge = errors.New("grove: transaction too large")
)
