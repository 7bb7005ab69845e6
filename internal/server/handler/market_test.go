package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/numeric"
)

type fakeMarketService struct {
	markets map[uint64]*domain.Market
	created domain.CreateMarketArgs
	creator string
}

func (f *fakeMarketService) Create(_ context.Context, creator string, args domain.CreateMarketArgs) (uint64, error) {
	f.creator = creator
	f.created = args
	return 7, nil
}

func (f *fakeMarketService) Get(_ context.Context, id uint64) (*domain.Market, error) {
	m, ok := f.markets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarketService) List(_ context.Context, _ domain.ListOpts) ([]*domain.Market, error) {
	var out []*domain.Market
	for _, m := range f.markets {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMarketService) Count(_ context.Context) (int64, error) {
	return int64(len(f.markets)), nil
}

func (f *fakeMarketService) PoolBalances(ctx context.Context, id uint64) ([]domain.U128, error) {
	m, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.Pool.Reserves, nil
}

func (f *fakeMarketService) SpotPrice(_ context.Context, _ uint64, outcome uint16) (domain.U128, error) {
	return numeric.FromUint64(uint64(outcome)*100 + 500), nil
}

func (f *fakeMarketService) SpotPriceSansFee(_ context.Context, _ uint64, outcome uint16) (domain.U128, error) {
	return numeric.FromUint64(uint64(outcome)*100 + 490), nil
}

func (f *fakeMarketService) ShareBalances(_ context.Context, id uint64, account string) ([]domain.ShareBalance, error) {
	return []domain.ShareBalance{
		{MarketID: id, Outcome: 0, Account: account, Balance: numeric.FromUint64(10)},
		{MarketID: id, Outcome: 1, Account: account, Balance: numeric.Zero()},
	}, nil
}

func (f *fakeMarketService) PoolTokenBalance(_ context.Context, _ uint64, _ string) (domain.U128, error) {
	return numeric.FromUint64(42), nil
}

func (f *fakeMarketService) WithdrawableFees(_ context.Context, _ uint64, _ string) (domain.U128, error) {
	return numeric.FromUint64(3), nil
}

func (f *fakeMarketService) Events(_ context.Context, id uint64, _ domain.ListOpts) ([]domain.Event, error) {
	return []domain.Event{{ID: "ev-1", MarketID: id, Kind: domain.EventMarketCreated}}, nil
}

func testMarket(id uint64) *domain.Market {
	return &domain.Market{
		ID:          id,
		Description: "Will it rain tomorrow?",
		OutcomeTags: []string{"YES", "NO"},
		EndTime:     domain.NowMillis() + 60_000,
		Enabled:     true,
		Pool: domain.Pool{
			MarketID:           id,
			CollateralDecimals: 6,
			Reserves:           []domain.U128{numeric.FromUint64(100), numeric.FromUint64(100)},
			Weights:            []domain.U128{numeric.FromUint64(1), numeric.FromUint64(1)},
		},
	}
}

func newMarketMux(svc MarketService) *http.ServeMux {
	h := NewMarketHandler(svc, slog.Default())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets", h.ListMarkets)
	mux.HandleFunc("POST /api/markets", h.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", h.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/pool", h.GetPool)
	mux.HandleFunc("GET /api/markets/{id}/prices", h.GetPrices)
	mux.HandleFunc("GET /api/markets/{id}/balances/{account}", h.GetBalances)
	mux.HandleFunc("GET /api/markets/{id}/events", h.ListEvents)
	return mux
}

func doGet(t *testing.T, mux *http.ServeMux, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func bytesReader(s string) *strings.Reader { return strings.NewReader(s) }

func TestGetMarket(t *testing.T) {
	svc := &fakeMarketService{markets: map[uint64]*domain.Market{3: testMarket(3)}}
	mux := newMarketMux(svc)

	rec, body := doGet(t, mux, "/api/markets/3")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, string(domain.StateOpen), body["state"])

	rec, body = doGet(t, mux, "/api/markets/99")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, body["error"], "not found")

	rec, _ = doGet(t, mux, "/api/markets/abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMarkets(t *testing.T) {
	svc := &fakeMarketService{markets: map[uint64]*domain.Market{
		0: testMarket(0),
		1: testMarket(1),
	}}
	rec, body := doGet(t, newMarketMux(svc), "/api/markets?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(2), body["total"])
	require.Len(t, body["markets"], 2)
}

func TestCreateMarket(t *testing.T) {
	svc := &fakeMarketService{markets: map[uint64]*domain.Market{}}
	mux := newMarketMux(svc)

	payload := `{"creator":"alice","market":{"description":"q","outcome_tags":["YES","NO"]}}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/markets", bytesReader(payload))
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "alice", svc.creator)
	require.Equal(t, "q", svc.created.Description)

	// Missing creator.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/markets", bytesReader(`{"market":{}}`))
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPrices(t *testing.T) {
	svc := &fakeMarketService{markets: map[uint64]*domain.Market{3: testMarket(3)}}
	rec, body := doGet(t, newMarketMux(svc), "/api/markets/3/prices")
	require.Equal(t, http.StatusOK, rec.Code)

	prices, ok := body["prices"].([]any)
	require.True(t, ok)
	require.Len(t, prices, 2)
	first := prices[0].(map[string]any)
	require.Equal(t, "500", first["price"])
	require.Equal(t, "490", first["price_sans_fee"])
}

func TestGetBalances(t *testing.T) {
	svc := &fakeMarketService{markets: map[uint64]*domain.Market{3: testMarket(3)}}
	rec, body := doGet(t, newMarketMux(svc), "/api/markets/3/balances/alice")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "alice", body["account"])
	require.Equal(t, "42", body["pool_tokens"])
	require.Equal(t, "3", body["withdrawable_fees"])
	require.Len(t, body["shares"], 2)
}

func TestParseListOpts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/api/markets?limit=%d&offset=20&enabled_only=true&category=sports", maxLimit*2), nil)
	opts := parseListOpts(req)
	require.Equal(t, maxLimit, opts.Limit)
	require.Equal(t, 20, opts.Offset)
	require.True(t, opts.EnabledOnly)
	require.Equal(t, "sports", opts.Category)

	opts = parseListOpts(httptest.NewRequest(http.MethodGet, "/api/markets", nil))
	require.Equal(t, defaultLimit, opts.Limit)
	require.Zero(t, opts.Offset)
	require.False(t, opts.EnabledOnly)
}
