package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies trace and recall failures so callers can present an
// actionable diagnostic.
type ErrorKind string

// Canonical error kinds.
const (
	// KindNotFound signals an unknown batch or link id.
	KindNotFound ErrorKind = "not_found"
	// KindInvalidDepth signals a traversal depth outside the configured range.
	KindInvalidDepth ErrorKind = "invalid_depth"
	// KindCycleDetected signals the defensive traversal noticed a cycle.
	// It is surfaced as a report warning, not a failure, but is available as
	// a kind for callers that treat corrupted stores as fatal.
	KindCycleDetected ErrorKind = "cycle_detected"
	// KindGraphTooLarge signals the affected set exceeded the safety cap.
	// A partial result is never returned in its place.
	KindGraphTooLarge ErrorKind = "graph_too_large"
	// KindTimeout signals the caller's deadline elapsed before the
	// computation finished.
	KindTimeout ErrorKind = "timeout"
	// KindConservationViolation signals a link whose quantity_used exceeds
	// the source batch's remaining quantity, rejected at write time.
	KindConservationViolation ErrorKind = "conservation_violation"
)

// Error is the typed failure returned by graph, trace, and recall operations.
// It always carries a kind, a human-readable message, and the offending
// batch/link ids when known.
type Error struct {
	Kind     ErrorKind
	Message  string
	BatchIDs []string
	LinkIDs  []string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.BatchIDs) > 0 {
		fmt.Fprintf(&b, " (batches: %s)", strings.Join(e.BatchIDs, ", "))
	}
	if len(e.LinkIDs) > 0 {
		fmt.Fprintf(&b, " (links: %s)", strings.Join(e.LinkIDs, ", "))
	}
	return b.String()
}

// Is matches errors by kind so callers can use errors.Is with sentinel kinds.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// NotFoundError constructs a KindNotFound error for a batch id.
func NotFoundError(batchID string) *Error {
	return &Error{
		Kind:     KindNotFound,
		Message:  fmt.Sprintf("batch %s not found", batchID),
		BatchIDs: []string{batchID},
	}
}

// InvalidDepthError constructs a KindInvalidDepth error.
func InvalidDepthError(depth, ceiling int) *Error {
	return &Error{
		Kind:    KindInvalidDepth,
		Message: fmt.Sprintf("depth %d outside allowed range [0, %d]", depth, ceiling),
	}
}

// GraphTooLargeError constructs a KindGraphTooLarge error.
func GraphTooLargeError(visited, cap int, batchID string) *Error {
	return &Error{
		Kind:     KindGraphTooLarge,
		Message:  fmt.Sprintf("traversal visited %d batches, exceeding safety cap %d", visited, cap),
		BatchIDs: []string{batchID},
	}
}

// TimeoutError constructs a KindTimeout error.
func TimeoutError(operation string, batchID string) *Error {
	e := &Error{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("%s aborted: deadline exceeded", operation),
	}
	if batchID != "" {
		e.BatchIDs = []string{batchID}
	}
	return e
}

// ErrKind reports the kind carried by err, or empty when err is not a domain error.
func ErrKind(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is a KindNotFound domain error.
func IsNotFound(err error) bool { return ErrKind(err) == KindNotFound }
