package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindRetryable(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindValidation, false},
		{KindNotFound, false},
		{KindConflict, false},
		{KindTransientUpstream, true},
		{KindCorruption, false},
		{KindFatal, false},
	}
	for _, c := range cases {
		if got := c.kind.Retryable(); got != c.want {
			t.Errorf("Kind(%q).Retryable() = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	t.Run("with op", func(t *testing.T) {
		err := New(KindValidation, "resolver.Resolve", "sandbox is required")
		want := "resolver.Resolve: sandbox is required"
		if got := err.Error(); got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	})

	t.Run("without op", func(t *testing.T) {
		err := &Error{Kind: KindValidation, Message: "sandbox is required"}
		if got := err.Error(); got != "sandbox is required" {
			t.Errorf("Error() = %q, want %q", got, "sandbox is required")
		}
	})
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	wrapped := Wrap(KindTransientUpstream, "provider.Create", "failed to create instance", cause)

	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should see through Unwrap to cause")
	}
	if wrapped.Retryable() != true {
		t.Error("transient_upstream errors should be retryable")
	}
}

func TestIs(t *testing.T) {
	t.Run("matches kind through wrapping", func(t *testing.T) {
		inner := New(KindNotFound, "storage.Get", "thread not found")
		outer := fmt.Errorf("resolve thread: %w", inner)

		if !Is(outer, KindNotFound) {
			t.Error("Is should find the wrapped *Error's kind")
		}
		if Is(outer, KindConflict) {
			t.Error("Is should not match a different kind")
		}
	})

	t.Run("false for a plain error", func(t *testing.T) {
		if Is(errors.New("boom"), KindFatal) {
			t.Error("Is should be false for a non-*Error")
		}
	})
}

func TestSentinelErrorsAreStructured(t *testing.T) {
	for _, sentinel := range []*Error{ErrSandboxUnavailable, ErrAlreadyRunning, ErrLeaseBusy} {
		if sentinel.Kind != KindConflict {
			t.Errorf("sentinel %q: Kind = %q, want %q", sentinel.Message, sentinel.Kind, KindConflict)
		}
		if sentinel.Op == "" {
			t.Errorf("sentinel %q: Op should not be empty", sentinel.Message)
		}
	}
}
