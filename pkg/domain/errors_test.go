package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorRendersIDs(t *testing.T) {
	err := GraphTooLargeError(100001, 100000, "batch-a")
	msg := err.Error()
	if !strings.Contains(msg, "graph_too_large") || !strings.Contains(msg, "batch-a") {
		t.Fatalf("unexpected message %q", msg)
	}

	withLinks := &Error{Kind: KindCycleDetected, Message: "loop", LinkIDs: []string{"l-1", "l-2"}}
	if !strings.Contains(withLinks.Error(), "l-1, l-2") {
		t.Fatalf("unexpected message %q", withLinks.Error())
	}
}

func TestErrorKindMatching(t *testing.T) {
	err := NotFoundError("batch-a")
	if !IsNotFound(err) {
		t.Fatalf("expected not_found")
	}
	wrapped := fmt.Errorf("lookup failed: %w", err)
	if ErrKind(wrapped) != KindNotFound {
		t.Fatalf("kind must survive wrapping, got %q", ErrKind(wrapped))
	}
	if !errors.Is(wrapped, &Error{Kind: KindNotFound}) {
		t.Fatalf("errors.Is by kind failed")
	}
	if errors.Is(wrapped, &Error{Kind: KindTimeout}) {
		t.Fatalf("kinds must not cross-match")
	}
	if ErrKind(errors.New("plain")) != "" {
		t.Fatalf("non-domain errors have no kind")
	}
}

func TestConstructors(t *testing.T) {
	if err := InvalidDepthError(12, 10); ErrKind(err) != KindInvalidDepth {
		t.Fatalf("unexpected kind")
	}
	if err := TimeoutError("trace", "batch-a"); len(err.BatchIDs) != 1 {
		t.Fatalf("expected batch id carried")
	}
	if err := TimeoutError("trace", ""); len(err.BatchIDs) != 0 {
		t.Fatalf("empty batch id must not be recorded")
	}
}
