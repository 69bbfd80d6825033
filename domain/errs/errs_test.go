package errs

import (
	"errors"
	"fmt"
	"testing"
)

var errTest = New(KindSolvency, "InsufficientBalance")

func TestDetailedErrorMatchesSentinel(t *testing.T) {
	err := errTest.With(F("available", 5), F("required", 10))

	if !errors.Is(err, errTest) {
		t.Error("detailed error should match its sentinel")
	}
	if KindOf(err) != KindSolvency {
		t.Errorf("expected solvency kind, got %s", KindOf(err))
	}
	if got := err.Error(); got != "InsufficientBalance: available=5 required=10" {
		t.Errorf("unexpected message %q", got)
	}
	v, ok := err.Value("required")
	if !ok || v != 10 {
		t.Errorf("expected required=10, got %v", v)
	}
}

func TestKindOfLooksThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("place order: %w", errTest.With(F("x", 1)))

	if KindOf(wrapped) != KindSolvency {
		t.Error("kind lost through wrapping")
	}
	if CodeOf(wrapped) != "InsufficientBalance" {
		t.Errorf("unexpected code %q", CodeOf(wrapped))
	}
	if Details(wrapped)["x"] != "1" {
		t.Errorf("unexpected details %v", Details(wrapped))
	}
}

func TestForeignErrorsAreUnknown(t *testing.T) {
	if KindOf(errors.New("disk full")) != KindUnknown {
		t.Error("foreign error should be unknown")
	}
	if CodeOf(nil) != "" {
		t.Error("nil error has no code")
	}
}
