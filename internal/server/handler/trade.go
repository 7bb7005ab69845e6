package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openpredict/ammd/internal/domain"
)

// TradingService covers the operations that spend shares or pool tokens.
// Collateral-funded operations (buy, add liquidity) enter through the
// transfer endpoint instead.
type TradingService interface {
	Sell(ctx context.Context, sender string, marketID uint64, amountOut domain.U128, outcomeTarget uint16, maxSharesIn domain.U128) error
	ExitLiquidity(ctx context.Context, sender string, marketID uint64, totalIn domain.U128) error
	WithdrawFees(ctx context.Context, sender string, marketID uint64) (domain.U128, error)
	RedeemCollateral(ctx context.Context, sender string, marketID uint64, amount domain.U128) error
}

type TradeHandler struct {
	svc    TradingService
	logger *slog.Logger
}

func NewTradeHandler(svc TradingService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{svc: svc, logger: logger}
}

type sellRequest struct {
	Account       string `json:"account"`
	AmountOut     string `json:"amount_out"`
	OutcomeTarget uint16 `json:"outcome_target"`
	MaxSharesIn   string `json:"max_shares_in"`
}

func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	var req sellRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Account == "" {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}
	amountOut, err := parseAmount(req.AmountOut)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount_out")
		return
	}
	maxSharesIn, err := parseAmount(req.MaxSharesIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid max_shares_in")
		return
	}
	if err := h.svc.Sell(r.Context(), req.Account, id, amountOut, req.OutcomeTarget, maxSharesIn); err != nil {
		writeServiceError(h.logger, w, r, "sell", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "amount_out": amountOut})
}

type exitRequest struct {
	Account string `json:"account"`
	TotalIn string `json:"total_in"`
}

func (h *TradeHandler) ExitLiquidity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	var req exitRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Account == "" {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}
	totalIn, err := parseAmount(req.TotalIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid total_in")
		return
	}
	if err := h.svc.ExitLiquidity(r.Context(), req.Account, id, totalIn); err != nil {
		writeServiceError(h.logger, w, r, "exit liquidity", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "total_in": totalIn})
}

type accountRequest struct {
	Account string `json:"account"`
}

func (h *TradeHandler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
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
	amount, err := h.svc.WithdrawFees(r.Context(), req.Account, id)
	if err != nil {
		writeServiceError(h.logger, w, r, "withdraw fees", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "withdrawn": amount})
}

type redeemRequest struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

// RedeemCollateral burns an equal amount of every outcome token for
// collateral on an unresolved market.
func (h *TradeHandler) RedeemCollateral(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	var req redeemRequest
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
	if err := h.svc.RedeemCollateral(r.Context(), req.Account, id, amount); err != nil {
		writeServiceError(h.logger, w, r, "redeem collateral", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "redeemed": amount})
}
