package handler

import (
	"net/http"
	"time"
)

// BookCounter reports the size of the in-memory book.
type BookCounter interface {
	OpenCount() int
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	book      BookCounter
	mode      string
	startedAt time.Time
}

// NewHealthHandler creates a HealthHandler. book may be nil in modes that
// hold no positions.
func NewHealthHandler(book BookCounter, mode string) *HealthHandler {
	return &HealthHandler{book: book, mode: mode, startedAt: time.Now().UTC()}
}

// HealthCheck responds with a simple JSON status indicating the process is alive.
// GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if h.book != nil {
		body["open_positions"] = h.book.OpenCount()
	}
	writeJSON(w, http.StatusOK, body)
}
