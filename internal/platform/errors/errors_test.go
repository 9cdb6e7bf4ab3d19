package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	base := New(CodeSessionMismatch, "session mismatch")
	other := New(CodeSessionMismatch, "different message, same code")

	if !stderrors.Is(other, base) {
		t.Fatal("expected errors with the same code to match")
	}
	if stderrors.Is(New(CodeRealmNotFound, "realm not found"), base) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	wrapped := Wrap(CodeNotFound, "lookup failed", cause)

	if !stderrors.Is(wrapped, cause) {
		t.Fatal("expected wrapped cause to be found in chain")
	}
	if wrapped.Error() != "lookup failed" {
		t.Fatalf("message = %q, want %q", wrapped.Error(), "lookup failed")
	}
}

func TestWrappedDomainErrorSurvivesFmtErrorf(t *testing.T) {
	inner := New(CodeInvalidCredentials, "invalid credentials")
	outer := fmt.Errorf("authenticate: %w", inner)

	var domainErr *Error
	if !stderrors.As(outer, &domainErr) {
		t.Fatal("expected domain error in chain")
	}
	if domainErr.Code != CodeInvalidCredentials {
		t.Fatalf("code = %q, want %q", domainErr.Code, CodeInvalidCredentials)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeRealmNotFound, http.StatusNotFound},
		{CodeRealmNameInvalid, http.StatusBadRequest},
		{CodeInvalidCredentials, http.StatusUnauthorized},
		{CodeSessionMismatch, http.StatusConflict},
		{CodeUserStoreTimeout, http.StatusServiceUnavailable},
		{CodeUnknown, http.StatusInternalServerError},
		{Code("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.code, got, tc.want)
		}
	}
}
