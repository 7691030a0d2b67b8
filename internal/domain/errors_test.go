package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestUserMessage(t *testing.T) {
	if got := UserMessage(nil); got != "" {
		t.Fatalf("expected empty message, got %q", got)
	}
	wrapped := fmt.Errorf("join: %w", ErrNicknameTaken)
	if got := UserMessage(wrapped); got != ErrNicknameTaken.Error() {
		t.Fatalf("expected validation message, got %q", got)
	}
	if got := UserMessage(errors.New("dial tcp: connection refused")); got != "something went wrong, please try again" {
		t.Fatalf("expected generic message, got %q", got)
	}
	if !IsValidation(fmt.Errorf("advance: %w", ErrStaleQuestion)) || IsValidation(errors.New("boom")) {
		t.Fatalf("unexpected validation classification")
	}
}
