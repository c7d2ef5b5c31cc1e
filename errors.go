package normcache

import (
	"errors"
	"fmt"
)

var (
	ErrUnidentifiable = errors.New("normcache: entity has no resolvable identity")
	ErrNetwork        = errors.New("normcache: backend unreachable")
	ErrRejected       = errors.New("normcache: backend rejected mutation")
	ErrClosed         = errors.New("normcache: cache closed")
	ErrForeignType    = errors.New("normcache: identity belongs to another type")
)

// ReconciliationError reports a mutation result that could not be applied.
// A reconciliation step that fails applies nothing.
type ReconciliationError struct {
	Op     Op
	Entity Entity
	Err    error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("normcache: reconcile %s %s/%q: %v", e.Op, e.Entity.TypeTag, e.Entity.ID, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// FailureKind classifies why a mutation did not reach the cache.
type FailureKind int

const (
	FailureNetwork FailureKind = iota + 1
	FailureRejected
)

func (k FailureKind) String() string {
	switch k {
	case FailureNetwork:
		return "network"
	case FailureRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// FailureError is returned by Coordinator when the backend call fails.
// Message carries the backend-provided reason verbatim.
type FailureError struct {
	Kind    FailureKind
	Op      Op
	Message string
	Err     error
}

func (e *FailureError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *FailureError) Unwrap() error { return e.Err }

// Is matches ErrNetwork and ErrRejected by kind.
func (e *FailureError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == FailureNetwork
	case ErrRejected:
		return e.Kind == FailureRejected
	}
	return false
}

// Rejected builds the error a Backend returns when the server refuses a mutation
// (validation, conflict, permissions).
func Rejected(message string) error {
	return &FailureError{Kind: FailureRejected, Message: message}
}

// classifyFailure converts a backend error into a FailureError for op.
// Errors that are not already classified count as transport failures.
func classifyFailure(op Op, err error) *FailureError {
	var fe *FailureError
	if errors.As(err, &fe) {
		out := *fe
		out.Op = op
		if out.Message == "" && out.Err != nil {
			out.Message = out.Err.Error()
		}
		return &out
	}
	return &FailureError{Kind: FailureNetwork, Op: op, Message: err.Error(), Err: err}
}
