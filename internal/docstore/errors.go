package docstore

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrNoChange may be returned by a MutateFunc to finish an Update without writing.
	ErrNoChange = errors.New("docstore: no change")
)

// ConflictError reports that the stored revision no longer matches the
// precondition of a write.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("docstore: revision conflict on %s", e.Path)
}

// UpstreamError wraps any other failure talking to the repo host.
type UpstreamError struct {
	Op     string
	Path   string
	Status int
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("docstore: %s %s: status %d: %v", e.Op, e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("docstore: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsConflict reports whether err is a revision conflict.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}
