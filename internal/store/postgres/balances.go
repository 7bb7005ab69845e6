package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/numeric"
)

func parseAmount(s string) (domain.U128, error) {
	if s == "" {
		return numeric.Zero(), nil
	}
	v, err := numeric.FromString(s)
	if err != nil {
		return numeric.Zero(), fmt.Errorf("postgres: parse amount %q: %w", s, err)
	}
	return v, nil
}

// GetShareBalance returns an account's balance of one outcome token.
// Missing rows read as zero.
func (l *Ledger) GetShareBalance(ctx context.Context, marketID uint64, outcome uint16, account string) (domain.U128, error) {
	var raw string
	err := l.pool.QueryRow(ctx, `
		SELECT balance FROM share_balances
		WHERE market_id = $1 AND outcome = $2 AND account = $3`,
		marketID, outcome, account,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return numeric.Zero(), nil
	}
	if err != nil {
		return numeric.Zero(), fmt.Errorf("postgres: get share balance: %w", err)
	}
	return parseAmount(raw)
}

// ListShareBalances returns the account's balance for every outcome of
// the market, zeros included.
func (l *Ledger) ListShareBalances(ctx context.Context, marketID uint64, account string) ([]domain.ShareBalance, error) {
	m, err := l.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	rows, err := l.pool.Query(ctx, `
		SELECT outcome, balance FROM share_balances
		WHERE market_id = $1 AND account = $2`,
		marketID, account,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list share balances: %w", err)
	}
	defer rows.Close()

	byOutcome := make(map[uint16]domain.U128)
	for rows.Next() {
		var outcome uint16
		var raw string
		if err := rows.Scan(&outcome, &raw); err != nil {
			return nil, fmt.Errorf("postgres: scan share balance: %w", err)
		}
		v, err := parseAmount(raw)
		if err != nil {
			return nil, err
		}
		byOutcome[outcome] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list share balances rows: %w", err)
	}

	out := make([]domain.ShareBalance, 0, m.OutcomeCount())
	for o := uint16(0); o < m.OutcomeCount(); o++ {
		out = append(out, domain.ShareBalance{
			MarketID: marketID,
			Outcome:  o,
			Account:  account,
			Balance:  byOutcome[o],
		})
	}
	return out, nil
}

// GetLPBalance returns an account's pool token position. Missing rows
// read as zero.
func (l *Ledger) GetLPBalance(ctx context.Context, marketID uint64, account string) (domain.LPBalance, error) {
	zero := domain.LPBalance{
		MarketID:      marketID,
		Account:       account,
		Balance:       numeric.Zero(),
		WithdrawnFees: numeric.Zero(),
	}

	var rawBalance, rawWithdrawn string
	err := l.pool.QueryRow(ctx, `
		SELECT balance, withdrawn_fees FROM lp_balances
		WHERE market_id = $1 AND account = $2`,
		marketID, account,
	).Scan(&rawBalance, &rawWithdrawn)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("postgres: get lp balance: %w", err)
	}

	if zero.Balance, err = parseAmount(rawBalance); err != nil {
		return zero, err
	}
	if zero.WithdrawnFees, err = parseAmount(rawWithdrawn); err != nil {
		return zero, err
	}
	return zero, nil
}

// ListLPHolders returns every account with a non-zero pool token balance.
func (l *Ledger) ListLPHolders(ctx context.Context, marketID uint64) ([]domain.LPBalance, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT account, balance, withdrawn_fees FROM lp_balances
		WHERE market_id = $1 AND balance <> '0'`,
		marketID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list lp holders: %w", err)
	}
	defer rows.Close()

	var out []domain.LPBalance
	for rows.Next() {
		lb := domain.LPBalance{MarketID: marketID}
		var rawBalance, rawWithdrawn string
		if err := rows.Scan(&lb.Account, &rawBalance, &rawWithdrawn); err != nil {
			return nil, fmt.Errorf("postgres: scan lp holder: %w", err)
		}
		if lb.Balance, err = parseAmount(rawBalance); err != nil {
			return nil, err
		}
		if lb.WithdrawnFees, err = parseAmount(rawWithdrawn); err != nil {
			return nil, err
		}
		out = append(out, lb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list lp holders rows: %w", err)
	}
	return out, nil
}

// GetStorage returns an account's storage balance. Missing rows read as
// the zero balance.
func (l *Ledger) GetStorage(ctx context.Context, account string) (domain.StorageBalance, error) {
	zero := domain.StorageBalance{Account: account}

	var rawDeposit, rawUsed string
	err := l.pool.QueryRow(ctx, `
		SELECT deposit, used FROM storage_balances WHERE account = $1`,
		account,
	).Scan(&rawDeposit, &rawUsed)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, nil
	}
	if err != nil {
		return zero, fmt.Errorf("postgres: get storage balance: %w", err)
	}

	if zero.Deposit, err = parseAmount(rawDeposit); err != nil {
		return zero, err
	}
	if zero.Used, err = parseAmount(rawUsed); err != nil {
		return zero, err
	}
	return zero, nil
}

// ListEventsBefore returns every event older than the cutoff, across all
// markets, for bulk archival.
func (l *Ledger) ListEventsBefore(ctx context.Context, before domain.Millis) ([]domain.Event, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, market_id, kind, account, payload, at FROM events
		WHERE at < $1 ORDER BY at, id`,
		int64(before),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %d: %w", before, err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var ev domain.Event
		var payload []byte
		var at int64
		if err := rows.Scan(&ev.ID, &ev.MarketID, &ev.Kind, &ev.Account, &payload, &at); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("postgres: decode event payload: %w", err)
			}
		}
		ev.At = domain.Millis(at)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events before rows: %w", err)
	}
	return out, nil
}

// ListEvents returns a market's events in chronological order.
func (l *Ledger) ListEvents(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Event, error) {
	query := "SELECT id, kind, account, payload, at FROM events WHERE market_id = $1 ORDER BY at, id"
	args := []any{marketID}
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		ev := domain.Event{MarketID: marketID}
		var payload []byte
		var at int64
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Account, &payload, &at); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("postgres: decode event payload: %w", err)
			}
		}
		ev.At = domain.Millis(at)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return out, nil
}
