package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/openpredict/ammd/internal/domain"
)

// MarketService is the subset of the market service the handler needs.
type MarketService interface {
	Create(ctx context.Context, creator string, args domain.CreateMarketArgs) (uint64, error)
	Get(ctx context.Context, id uint64) (*domain.Market, error)
	List(ctx context.Context, opts domain.ListOpts) ([]*domain.Market, error)
	Count(ctx context.Context) (int64, error)
	PoolBalances(ctx context.Context, id uint64) ([]domain.U128, error)
	SpotPrice(ctx context.Context, id uint64, outcome uint16) (domain.U128, error)
	SpotPriceSansFee(ctx context.Context, id uint64, outcome uint16) (domain.U128, error)
	ShareBalances(ctx context.Context, id uint64, account string) ([]domain.ShareBalance, error)
	PoolTokenBalance(ctx context.Context, id uint64, account string) (domain.U128, error)
	WithdrawableFees(ctx context.Context, id uint64, account string) (domain.U128, error)
	Events(ctx context.Context, id uint64, opts domain.ListOpts) ([]domain.Event, error)
}

// MarketHandler serves market metadata, pool state, and price queries.
type MarketHandler struct {
	svc    MarketService
	logger *slog.Logger
}

func NewMarketHandler(svc MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{svc: svc, logger: logger}
}

type createMarketRequest struct {
	Creator string                  `json:"creator"`
	Market  domain.CreateMarketArgs `json:"market"`
}

// CreateMarket registers an unfunded market. The pool stays unseeded until
// the first liquidity transfer arrives.
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Creator == "" {
		writeError(w, http.StatusBadRequest, "creator is required")
		return
	}
	id, err := h.svc.Create(r.Context(), req.Creator, req.Market)
	if err != nil {
		writeServiceError(h.logger, w, r, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"market_id": id})
}

type listMarketsResponse struct {
	Markets []*domain.Market `json:"markets"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	markets, err := h.svc.List(r.Context(), opts)
	if err != nil {
		writeServiceError(h.logger, w, r, "list markets", err)
		return
	}
	total, err := h.svc.Count(r.Context())
	if err != nil {
		writeServiceError(h.logger, w, r, "count markets", err)
		return
	}
	if markets == nil {
		markets = []*domain.Market{}
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   total,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market": m,
		"state":  m.State(domain.NowMillis()),
	})
}

func (h *MarketHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	reserves, err := h.svc.PoolBalances(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, "pool balances", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reserves": reserves})
}

type outcomePrice struct {
	Outcome uint16      `json:"outcome"`
	Price   domain.U128 `json:"price"`
	SansFee domain.U128 `json:"price_sans_fee"`
}

// GetPrices returns the marginal price of every outcome, with and without
// the swap fee.
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	m, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(h.logger, w, r, "get market", err)
		return
	}
	prices := make([]outcomePrice, 0, m.OutcomeCount())
	for o := uint16(0); o < m.OutcomeCount(); o++ {
		p, err := h.svc.SpotPrice(r.Context(), id, o)
		if err != nil {
			writeServiceError(h.logger, w, r, "spot price", err)
			return
		}
		sf, err := h.svc.SpotPriceSansFee(r.Context(), id, o)
		if err != nil {
			writeServiceError(h.logger, w, r, "spot price sans fee", err)
			return
		}
		prices = append(prices, outcomePrice{Outcome: o, Price: p, SansFee: sf})
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "prices": prices})
}

// GetBalances returns an account's share balances, LP tokens, and
// withdrawable fees for one market.
func (h *MarketHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	account := r.PathValue("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "account is required")
		return
	}
	shares, err := h.svc.ShareBalances(r.Context(), id, account)
	if err != nil {
		writeServiceError(h.logger, w, r, "share balances", err)
		return
	}
	lp, err := h.svc.PoolTokenBalance(r.Context(), id, account)
	if err != nil {
		writeServiceError(h.logger, w, r, "lp balance", err)
		return
	}
	fees, err := h.svc.WithdrawableFees(r.Context(), id, account)
	if err != nil {
		writeServiceError(h.logger, w, r, "withdrawable fees", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":         id,
		"account":           account,
		"shares":            shares,
		"pool_tokens":       lp,
		"withdrawable_fees": fees,
	})
}

func (h *MarketHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}
	events, err := h.svc.Events(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeServiceError(h.logger, w, r, "list events", err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "events": events})
}
