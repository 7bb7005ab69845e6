package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// PauseSwitch gates all state-changing operations.
type PauseSwitch interface {
	Pause()
	Resume()
	Paused() bool
}

// MarketAdmin toggles per-market availability.
type MarketAdmin interface {
	SetEnabled(ctx context.Context, id uint64, enabled bool) error
}

// Archiver moves cold data to blob storage.
type Archiver interface {
	ArchiveMarket(ctx context.Context, marketID uint64) error
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
}

// AdminHandler serves the operator endpoints behind HMAC auth.
type AdminHandler struct {
	pause    PauseSwitch
	markets  MarketAdmin
	archiver Archiver
	logger   *slog.Logger
}

func NewAdminHandler(pause PauseSwitch, markets MarketAdmin, archiver Archiver, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{pause: pause, markets: markets, archiver: archiver, logger: logger}
}

func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.pause.Pause()
	h.logger.WarnContext(r.Context(), "admin: engine paused")
	writeJSON(w, http.StatusOK, map[string]any{"paused": true})
}

func (h *AdminHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.pause.Resume()
	h.logger.InfoContext(r.Context(), "admin: engine resumed")
	writeJSON(w, http.StatusOK, map[string]any{"paused": false})
}

func (h *AdminHandler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"paused": h.pause.Paused()})
}

func (h *AdminHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	if err := h.markets.SetEnabled(r.Context(), id, enabled); err != nil {
		writeServiceError(h.logger, w, r, "set enabled", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "enabled": enabled})
}

func (h *AdminHandler) EnableMarket(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

func (h *AdminHandler) DisableMarket(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

// ArchiveMarket snapshots one market and its event log to blob storage.
func (h *AdminHandler) ArchiveMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	if err := h.archiver.ArchiveMarket(r.Context(), id); err != nil {
		writeServiceError(h.logger, w, r, "archive market", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "status": "archived"})
}

type archiveEventsRequest struct {
	RetentionDays int `json:"retention_days"`
}

// ArchiveEvents copies events older than the retention window to blob
// storage.
func (h *AdminHandler) ArchiveEvents(w http.ResponseWriter, r *http.Request) {
	var req archiveEventsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RetentionDays <= 0 {
		writeError(w, http.StatusBadRequest, "retention_days must be positive")
		return
	}
	before := time.Now().AddDate(0, 0, -req.RetentionDays)
	count, err := h.archiver.ArchiveEvents(r.Context(), before)
	if err != nil {
		writeServiceError(h.logger, w, r, "archive events", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archived": count, "before": before.UTC()})
}
