package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignInMessageForCode(t *testing.T) {
	cases := []struct {
		code     string
		expected string
	}{
		{"auth/popup-closed-by-user", MsgPopupClosed},
		{"auth/cancelled-popup-request", MsgPopupClosed},
		{"auth/popup-blocked", MsgPopupBlocked},
		{"auth/network-request-failed", MsgNetworkFailure},
		{"auth/too-many-requests", MsgRateLimited},
		{"auth/account-exists-with-different-credential", MsgAccountConflict},
		{"  auth/popup-blocked  ", MsgPopupBlocked},
		{"auth/something-unheard-of", MsgSignInFailed},
		{"", MsgSignInFailed},
	}
	for _, testCase := range cases {
		if message := SignInMessageForCode(testCase.code); message != testCase.expected {
			t.Fatalf("code %q: expected %q, got %q", testCase.code, testCase.expected, message)
		}
	}
}

func TestSignInMessageForError(t *testing.T) {
	if message := SignInMessageForError(nil); message != "" {
		t.Fatalf("expected no message for nil error, got %q", message)
	}
	if message := SignInMessageForError(fmt.Errorf("wrapped: %w", jwt.ErrTokenExpired)); message != MsgSessionExpired {
		t.Fatalf("expected expiry message, got %q", message)
	}
	if message := SignInMessageForError(context.DeadlineExceeded); message != MsgNetworkFailure {
		t.Fatalf("expected network message for a deadline, got %q", message)
	}
	if message := SignInMessageForError(context.Canceled); message != MsgNetworkFailure {
		t.Fatalf("expected network message for a cancellation, got %q", message)
	}
	if message := SignInMessageForError(errors.New("boom")); message != MsgSignInFailed {
		t.Fatalf("expected generic message, got %q", message)
	}
}
