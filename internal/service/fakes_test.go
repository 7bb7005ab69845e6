package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/numeric"
)

type fakeLocks struct{}

func (fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

type fakeCache struct{}

func (fakeCache) Set(context.Context, *domain.Market) error          { return nil }
func (fakeCache) Get(context.Context, uint64) (*domain.Market, error) { return nil, domain.ErrNotFound }
func (fakeCache) Invalidate(context.Context, uint64) error           { return nil }

type fakePrices struct {
	mu     sync.Mutex
	latest map[uint64][]domain.U128
}

func newFakePrices() *fakePrices {
	return &fakePrices{latest: make(map[uint64][]domain.U128)}
}

func (f *fakePrices) SetPrices(_ context.Context, marketID uint64, prices []domain.U128, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest[marketID] = prices
	return nil
}

func (f *fakePrices) GetPrices(_ context.Context, marketID uint64) ([]domain.U128, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.latest[marketID]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	return p, time.Now(), nil
}

func (f *fakePrices) Invalidate(_ context.Context, marketID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.latest, marketID)
	return nil
}

type fakeBus struct {
	mu       sync.Mutex
	messages [][]byte
	streams  map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{streams: make(map[string][][]byte)}
}

func (f *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, payload)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (f *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams[stream] = append(f.streams[stream], payload)
	return nil
}

func (f *fakeBus) StreamRead(_ context.Context, stream string, _ string, _ int) ([]domain.StreamMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StreamMessage
	for i, p := range f.streams[stream] {
		out = append(out, domain.StreamMessage{ID: string(rune('1' + i)), Payload: p})
	}
	return out, nil
}

type transfer struct {
	token  string
	to     string
	amount domain.U128
}

type fakeTokens struct {
	mu           sync.Mutex
	decimals     uint8
	failTransfer bool
	transfers    []transfer
}

func newFakeTokens(decimals uint8) *fakeTokens {
	return &fakeTokens{decimals: decimals}
}

func (f *fakeTokens) Info(_ context.Context, token string) (domain.TokenInfo, error) {
	return domain.TokenInfo{Address: token, Symbol: "TST", Decimals: f.decimals}, nil
}

func (f *fakeTokens) Transfer(_ context.Context, token, to string, amount domain.U128) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTransfer {
		return errors.New("transfer rejected")
	}
	f.transfers = append(f.transfers, transfer{token: token, to: to, amount: amount})
	return nil
}

func (f *fakeTokens) sent(to string) domain.U128 {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := numeric.Zero()
	for _, t := range f.transfers {
		if t.to == to {
			total, _ = total.Add(t.amount)
		}
	}
	return total
}

type fakeOracle struct {
	config     domain.OracleConfig
	configErr  error
	requestErr error
	requests   []domain.NewDataRequestArgs
}

func (f *fakeOracle) FetchConfig(context.Context) (domain.OracleConfig, error) {
	if f.configErr != nil {
		return domain.OracleConfig{}, f.configErr
	}
	return f.config, nil
}

func (f *fakeOracle) CreateRequest(_ context.Context, bond domain.U128, args domain.NewDataRequestArgs) (domain.U128, error) {
	if f.requestErr != nil {
		return numeric.Zero(), f.requestErr
	}
	f.requests = append(f.requests, args)
	return bond, nil
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []uint64
}

func (f *fakeArchiver) ArchiveMarket(_ context.Context, marketID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, marketID)
	return nil
}

func (f *fakeArchiver) ArchiveEvents(context.Context, time.Time) (int64, error) { return 0, nil }
