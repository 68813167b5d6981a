package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/marismas/boda/backend/internal/rsvp"
)

const (
	streamEventRSVPChanged = "rsvp-change"
	streamHeartbeatPeriod  = 25 * time.Second
	streamBufferSize       = 16
)

// handleRSVPStream pushes the guest's submission over SSE: the current state
// on connect and an event for every subsequent write, including the guest's
// own saves from another tab. A nil payload is delivered as data: null.
func (h *httpHandler) handleRSVPStream(c *gin.Context) {
	claims, ok := h.sessionClaims(c)
	if !ok {
		return
	}
	userID, ok := h.guestID(c, claims)
	if !ok {
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming_unsupported"})
		return
	}

	events := make(chan *rsvp.Submission, streamBufferSize)
	unsubscribe, err := h.rsvpService.Subscribe(userID, func(submission *rsvp.Submission) {
		select {
		case events <- submission:
		default:
		}
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeatPeriod)
	defer heartbeat.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case submission := <-events:
			if err := writeStreamEvent(c.Writer, submission); err != nil {
				h.logger.Debug("rsvp stream write failed",
					zap.String("user_id", userID.String()),
					zap.Error(err))
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(c.Writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeStreamEvent(writer http.ResponseWriter, submission *rsvp.Submission) error {
	payload := []byte("null")
	if submission != nil {
		encoded, err := json.Marshal(submission)
		if err != nil {
			return err
		}
		payload = encoded
	}
	_, err := fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", streamEventRSVPChanged, payload)
	return err
}
