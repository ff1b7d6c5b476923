package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/NNTin/d-cogs/internal/transport"
	"github.com/gin-gonic/gin"
)

const (
	eventHeartbeat    = "heartbeat"
	heartbeatInterval = 25 * time.Second
)

// handleGuildEvents tails one guild's envelope stream as server-sent events.
// The dashboard uses it to watch what viewers receive.
func (h *httpHandler) handleGuildEvents(c *gin.Context) {
	guildID := c.Param("guildID")
	if !h.guildServed(c, guildID) {
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	stream, cleanup := h.events.Subscribe(ctx, guildID)
	defer cleanup()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case envelope, open := <-stream:
			if !open {
				return
			}
			if err := writeServerSentEvent(c.Writer, envelope); err != nil {
				return
			}
			c.Writer.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", eventHeartbeat); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func writeServerSentEvent(w io.Writer, envelope transport.Envelope) error {
	payload, err := json.Marshal(eventPayload(envelope))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", envelope.EventType, payload)
	return err
}

func eventPayload(envelope transport.Envelope) interface{} {
	if envelope.EventType == transport.EventClientIDUpdate {
		return gin.H{"client_id": envelope.ClientID}
	}
	return envelope.Record
}
