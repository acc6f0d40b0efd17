package webmonitor

import (
	"fmt"
	"net/http"
	"time"

	"github.com/beststop/parking-server/internal/logger"
)

// streamEventsFromChannel streams pre-serialized result events to an SSE client.
// The first event, if any, is written before waiting on the channel.
func streamEventsFromChannel(w http.ResponseWriter, r *http.Request, first *SerializedEvent,
	eventCh <-chan *SerializedEvent, useProtobuf bool, keepalive time.Duration) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Add custom header to indicate format
	if useProtobuf {
		w.Header().Set("X-Content-Format", "application/protobuf")
	} else {
		w.Header().Set("X-Content-Format", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(event *SerializedEvent) bool {
		data := event.JSONData
		if useProtobuf {
			data = event.ProtobufData
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			logger.Debug("SSE", "Client disconnected during event write: %v", err)
			return false
		}
		flusher.Flush()
		return true
	}

	if first != nil && !send(first) {
		return
	}

	ticker := time.NewTicker(keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				// Channel closed, client should disconnect
				return
			}
			if !send(event) {
				return
			}
		case <-ticker.C:
			// Send keepalive comment to prevent timeout
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				logger.Debug("SSE", "Client disconnected during keepalive: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
