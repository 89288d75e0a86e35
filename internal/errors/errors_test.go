package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestGetCodeThroughWrapping(t *testing.T) {
	t.Parallel()

	base := New(CodeDeadlineExceeded, "proof window closed")
	wrapped := fmt.Errorf("submit proof: %w", base)

	if got := GetCode(wrapped); got != CodeDeadlineExceeded {
		t.Fatalf("expected DEADLINE_EXCEEDED through wrap, got %s", got)
	}
	if !IsCode(wrapped, CodeDeadlineExceeded) {
		t.Fatal("expected IsCode match through wrap")
	}
	if GetCode(stderrors.New("plain")) != CodeUnknown {
		t.Fatal("expected UNKNOWN for non-domain error")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("connection refused")
	err := Wrap(CodeProofStoreUnavailable, "proof store put", cause)
	if !stderrors.Is(err, cause) {
		t.Fatal("expected wrapped cause to match errors.Is")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code Code
		want int
	}{
		{CodeInvalidSchedule, http.StatusBadRequest},
		{CodeCycleNotPending, http.StatusConflict},
		{CodeDeadlineExceeded, http.StatusConflict},
		{CodeLockedOut, http.StatusLocked},
		{CodeNotFound, http.StatusNotFound},
		{CodeProofStoreUnavailable, http.StatusServiceUnavailable},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("code %s: expected status %d, got %d", tc.code, tc.want, got)
		}
	}
}
