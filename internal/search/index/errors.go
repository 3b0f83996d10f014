package index

import (
	"errors"
	"fmt"
)

// ErrVectorLengthMismatch indicates two vectors have different dimensions.
var ErrVectorLengthMismatch = errors.New("vector length mismatch")

// ErrStoreNotFound indicates a required store artifact is missing.
var ErrStoreNotFound = errors.New("vector store not found")

// IntegrityError reports a store whose artifacts disagree on shape or
// content. Such a store is unusable and is never repaired automatically.
type IntegrityError struct {
	Path   string
	Reason string
}

func (e *IntegrityError) Error() string {
	if e.Path == "" {
		return "store integrity error: " + e.Reason
	}
	return fmt.Sprintf("store integrity error in %s: %s", e.Path, e.Reason)
}
