package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// Book is the read side of the position registry.
type Book interface {
	ListActive() []domain.Position
	ListByToken(tokenID string) []domain.Position
	Get(id string) (domain.Position, bool)
	Groups() []domain.PositionGroup
}

// Closer exits a position on operator request.
type Closer interface {
	ClosePosition(ctx context.Context, id string, reason domain.ExitReason) domain.Outcome
}

// PositionHandler serves position-related HTTP endpoints.
type PositionHandler struct {
	book   Book
	closer Closer
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(book Book, closer Closer, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		book:   book,
		closer: closer,
		logger: logger.With(slog.String("handler", "positions")),
	}
}

type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListPositions returns open positions, optionally filtered by token and owner.
// GET /api/positions?token_id=...&username=...
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var positions []domain.Position
	if tokenID := q.Get("token_id"); tokenID != "" {
		positions = h.book.ListByToken(tokenID)
	} else {
		positions = h.book.ListActive()
	}

	if user := q.Get("username"); user != "" {
		filtered := positions[:0]
		for _, p := range positions {
			if p.Username == user {
				filtered = append(filtered, p)
			}
		}
		positions = filtered
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// GetPosition returns one position, including recently closed ones still
// held in memory.
// GET /api/positions/{id}
func (h *PositionHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	pos, ok := h.book.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "position not found")
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

type groupResponse struct {
	TokenID           string    `json:"tokenId"`
	Token             string    `json:"token"`
	MemberIDs         []string  `json:"memberIds"`
	TotalExposure     float64   `json:"totalExposure"`
	AverageEntryPrice float64   `json:"averageEntryPrice"`
	CombinedTargets   []float64 `json:"combinedTargets"`
	ExitStrategy      string    `json:"exitStrategy"`
	Status            string    `json:"status"`
}

// ListGroups returns every per-token group.
// GET /api/groups
func (h *PositionHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups := h.book.Groups()
	out := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupResponse{
			TokenID:           g.TokenID,
			Token:             g.Token,
			MemberIDs:         g.MemberIDs,
			TotalExposure:     g.TotalExposure,
			AverageEntryPrice: g.AverageEntryPrice,
			CombinedTargets:   g.CombinedTargets,
			ExitStrategy:      string(g.ExitStrategy),
			Status:            string(g.Status),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": out})
}

type closeRequest struct {
	Reason string `json:"reason"`
}

// ClosePosition fully exits a position.
// POST /api/positions/{id}/close
func (h *PositionHandler) ClosePosition(w http.ResponseWriter, r *http.Request) {
	if h.closer == nil {
		writeError(w, http.StatusServiceUnavailable, "manual close not available in this mode")
		return
	}
	id := r.PathValue("id")
	var req closeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	out := h.closer.ClosePosition(r.Context(), id, domain.ExitReason(req.Reason))
	if !out.Success {
		status := http.StatusConflict
		if _, ok := h.book.Get(id); !ok {
			status = http.StatusNotFound
		}
		h.logger.WarnContext(r.Context(), "handler: close position failed",
			slog.String("position_id", id),
			slog.String("message", out.Message),
		)
		writeError(w, status, out.Message)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
