package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	err := ErrSessionStoreUnavailable.WithInternal(stdErrors.New("dial tcp: timeout"))

	want := ErrSessionStoreUnavailable.Message + ": dial tcp: timeout"
	if err.Error() != want {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", http.StatusTeapot)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}
	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}
	if !stdErrors.Is(with, with.Internal) {
		t.Fatal("expected errors.Is to reach the internal error")
	}
}

func TestFromError(t *testing.T) {
	if out := FromError(ErrUnauthorized); out != ErrUnauthorized {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	out := FromError(stdErrors.New("raw"))
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}

	if FromError(nil) != nil {
		t.Fatal("expected nil for nil input")
	}
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("session id is required")
	if err.Code != ErrBadRequest.Code || err.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected error: %+v", err)
	}
	if err.Message != "session id is required" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("login: %w", ErrSessionStoreUnavailable.WithInternal(stdErrors.New("timeout")))

	if !stdErrors.Is(wrapped, ErrSessionStoreUnavailable) {
		t.Fatal("expected copy to match its sentinel")
	}
	if stdErrors.Is(wrapped, ErrUnauthorized) {
		t.Fatal("expected different codes not to match")
	}
	if !stdErrors.Is(NewBadRequest("custom"), ErrBadRequest) {
		t.Fatal("expected bad request helper to match ErrBadRequest")
	}
}
