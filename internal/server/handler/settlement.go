package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/openpredict/ammd/internal/domain"
)

// SettlementService covers post-resolution claims and refund recovery.
type SettlementService interface {
	ClaimEarnings(ctx context.Context, sender string, marketID uint64) (domain.U128, error)
	RetryRefund(ctx context.Context, marketID uint64) error
}

type SettlementHandler struct {
	svc    SettlementService
	logger *slog.Logger
}

func NewSettlementHandler(svc SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{svc: svc, logger: logger}
}

// ClaimEarnings pays out an account's winning shares on a finalized market.
func (h *SettlementHandler) ClaimEarnings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	var req accountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Account == "" {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}
	amount, err := h.svc.ClaimEarnings(r.Context(), req.Account, id)
	if err != nil {
		writeServiceError(h.logger, w, r, "claim earnings", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "claimed": amount})
}

// CallbackBus is the durable stream the oracle callback endpoint appends
// to. The settlement consumer drains it independently of request handling.
type CallbackBus interface {
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// CallbackHandler ingests oracle resolution callbacks.
type CallbackHandler struct {
	bus    CallbackBus
	stream string
	logger *slog.Logger
}

func NewCallbackHandler(bus CallbackBus, stream string, logger *slog.Logger) *CallbackHandler {
	return &CallbackHandler{bus: bus, stream: stream, logger: logger}
}

// Resolve accepts a resolution callback and appends it to the settlement
// stream. Finalization happens asynchronously; 202 only acknowledges
// durable receipt.
func (h *CallbackHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var cb domain.ResolutionCallback
	if !decodeBody(w, r, &cb) {
		return
	}
	payload, err := json.Marshal(cb)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid callback")
		return
	}
	if err := h.bus.StreamAppend(r.Context(), h.stream, payload); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: append callback",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"market_id": cb.MarketID,
		"status":    "queued",
	})
}

// RetryRefund reattempts a failed excess-bond refund.
func (h *SettlementHandler) RetryRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	if err := h.svc.RetryRefund(r.Context(), id); err != nil {
		writeServiceError(h.logger, w, r, "retry refund", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "status": "refunded"})
}
