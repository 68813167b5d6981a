package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/marismas/boda/backend/internal/rsvp"
)

func TestRSVPStreamDeliversInitialStateAndSubsequentWrites(t *testing.T) {
	harness := newTestHarness(t, nil, "")
	token := harness.mintToken(t, "guest-1")

	ctx, cancel := context.WithCancel(context.Background())
	request := httptest.NewRequest(http.MethodGet, "/rsvp/stream", nil).WithContext(ctx)
	request.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		harness.handler.ServeHTTP(recorder, request)
	}()

	// Give the stream time to register and flush the initial null payload,
	// then push a write through the gateway.
	time.Sleep(100 * time.Millisecond)
	userID := mustStreamUserID(t)
	if _, err := harness.service.Save(context.Background(), userID, "", "", streamResponse(), false); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream handler did not stop after cancellation")
	}

	body := recorder.Body.String()
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if contentType := recorder.Header().Get("Content-Type"); contentType != "text/event-stream" {
		t.Fatalf("expected an event stream, got %q", contentType)
	}
	if !strings.HasPrefix(body, "event: rsvp-change\ndata: null\n\n") {
		t.Fatalf("expected the initial null event, got %q", body)
	}
	if strings.Count(body, "event: rsvp-change") != 2 {
		t.Fatalf("expected two events, got %q", body)
	}
	if !strings.Contains(body, `"attendance":"yes"`) {
		t.Fatalf("expected the saved answers in the stream, got %q", body)
	}
}

func mustStreamUserID(t *testing.T) rsvp.UserID {
	t.Helper()
	userID, err := rsvp.NewUserID("guest-1")
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return userID
}

func streamResponse() rsvp.Response {
	return rsvp.Response{Attendance: rsvp.AttendanceYes}
}

func TestRSVPStreamRequiresAuthentication(t *testing.T) {
	harness := newTestHarness(t, nil, "")

	recorder := harness.do(t, http.MethodGet, "/rsvp/stream", "", nil, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}
