package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/purvik6062/trading-ai-agent-sub001/internal/domain"
)

// ArchiveBrowser reads archived position batches back from cold storage.
type ArchiveBrowser interface {
	ListDay(ctx context.Context, day time.Time) ([]domain.BlobInfo, error)
	Load(ctx context.Context, path string) ([]domain.PositionRecord, error)
}

const archivePrefix = "archive/positions/"

// ArchiveHandler serves archived position records.
type ArchiveHandler struct {
	archive ArchiveBrowser
	logger  *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(archive ArchiveBrowser, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{archive: archive, logger: logger.With(slog.String("handler", "archive"))}
}

type archiveObjectResponse struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
}

type archivedPositionResponse struct {
	ID           string           `json:"id"`
	Username     string           `json:"username"`
	VaultAddress string           `json:"vaultAddress"`
	Status       string           `json:"status"`
	ExitTxHash   string           `json:"exitTxHash,omitempty"`
	UpdatedAt    string           `json:"updatedAt"`
	Position     *domain.Position `json:"position,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// ListDay returns the archive batches written on a UTC day.
// GET /api/archive?day=2025-03-01
func (h *ArchiveHandler) ListDay(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if v := r.URL.Query().Get("day"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		day = t
	}

	infos, err := h.archive.ListDay(r.Context(), day)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archive failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list archive")
		return
	}
	out := make([]archiveObjectResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, archiveObjectResponse{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"day": day.Format(time.DateOnly), "objects": out})
}

// LoadBatch returns the records of one archive batch. Records whose
// document no longer decodes are listed with their error.
// GET /api/archive/records?path=archive/positions/2025/03/01/....jsonl
func (h *ArchiveHandler) LoadBatch(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if !strings.HasPrefix(path, archivePrefix) || strings.Contains(path, "..") {
		writeError(w, http.StatusBadRequest, "path must point into "+archivePrefix)
		return
	}

	recs, err := h.archive.Load(r.Context(), path)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: load archive failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load archive batch")
		return
	}
	out := make([]archivedPositionResponse, 0, len(recs))
	for _, rec := range recs {
		item := archivedPositionResponse{
			ID:           rec.ID,
			Username:     rec.Username,
			VaultAddress: rec.VaultAddress,
			Status:       string(rec.Status),
			ExitTxHash:   rec.ExitTxHash,
			UpdatedAt:    rec.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if pos, err := rec.Decode(); err != nil {
			item.Error = err.Error()
		} else {
			item.Position = &pos
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "records": out})
}
