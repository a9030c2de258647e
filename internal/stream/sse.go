package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const keepaliveInterval = 30 * time.Second

// SSEHandler serves the live update stream to browser surfaces.
type SSEHandler struct {
	hub    *Hub
	logger *zap.SugaredLogger
}

func NewSSEHandler(hub *Hub, logger *zap.SugaredLogger) *SSEHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SSEHandler{hub: hub, logger: logger}
}

// ServeHTTP implements http.Handler for the SSE endpoint.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	subscriberID := uuid.New().String()
	h.logger.Infow("new SSE connection", "subscriber_id", subscriberID)

	updates := h.hub.Subscribe(subscriberID)
	defer h.hub.Unsubscribe(subscriberID)

	fmt.Fprintf(w, ": connected\n\n")
	fmt.Fprintf(w, "retry: 2000\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Infow("SSE client disconnected", "subscriber_id", subscriberID)
			return

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()

		case u, ok := <-updates:
			if !ok {
				h.logger.Infow("update channel closed", "subscriber_id", subscriberID)
				return
			}

			data, err := json.Marshal(u)
			if err != nil {
				h.logger.Errorw("failed to encode update", "error", err)
				continue
			}

			fmt.Fprintf(w, "event: %s\n", u.Type)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
