package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openpredict/ammd/internal/domain"
)

// TransferService accepts collateral transfer-calls. The msg field selects
// the funded operation (buy, add liquidity, create data request).
type TransferService interface {
	HandleTransfer(ctx context.Context, sender, token string, amount domain.U128, msg string) (domain.U128, error)
}

type TransferHandler struct {
	svc    TransferService
	logger *slog.Logger
}

func NewTransferHandler(svc TransferService, logger *slog.Logger) *TransferHandler {
	return &TransferHandler{svc: svc, logger: logger}
}

type transferRequest struct {
	Sender string `json:"sender"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
	Msg    string `json:"msg"`
}

// HandleTransfer mirrors the token transfer-call entry point. The response
// reports how much of the attached amount was consumed; the remainder is
// refunded to the sender.
func (h *TransferHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Sender == "" || req.Token == "" {
		writeError(w, http.StatusBadRequest, "sender and token are required")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	unused, err := h.svc.HandleTransfer(r.Context(), req.Sender, req.Token, amount, req.Msg)
	if err != nil {
		writeServiceError(h.logger, w, r, "handle transfer", err)
		return
	}
	used, err := amount.Sub(unused)
	if err != nil {
		writeServiceError(h.logger, w, r, "handle transfer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"used":     used,
		"refunded": unused,
	})
}
