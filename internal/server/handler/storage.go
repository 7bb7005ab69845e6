package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openpredict/ammd/internal/domain"
)

// StorageService manages per-account storage deposits.
type StorageService interface {
	Deposit(ctx context.Context, account string, amount domain.U128) error
	Withdraw(ctx context.Context, account string, amount domain.U128) (domain.U128, error)
	Balance(ctx context.Context, account string) (domain.StorageBalance, error)
}

type StorageHandler struct {
	svc    StorageService
	logger *slog.Logger
}

func NewStorageHandler(svc StorageService, logger *slog.Logger) *StorageHandler {
	return &StorageHandler{svc: svc, logger: logger}
}

func (h *StorageHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}
	bal, err := h.svc.Balance(r.Context(), account)
	if err != nil {
		writeServiceError(h.logger, w, r, "storage balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account, "balance": bal})
}

type storageAmountRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (h *StorageHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req storageAmountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Account == "" {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	if err := h.svc.Deposit(r.Context(), req.Account, amount); err != nil {
		writeServiceError(h.logger, w, r, "storage deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": req.Account, "deposited": amount})
}

// Withdraw releases deposit not backing stored data. A zero amount releases
// the full free balance.
func (h *StorageHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req storageAmountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Account == "" {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	released, err := h.svc.Withdraw(r.Context(), req.Account, amount)
	if err != nil {
		writeServiceError(h.logger, w, r, "storage withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": req.Account, "released": released})
}
