package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openpredict/ammd/internal/domain"
)

// Ledger implements domain.Ledger on PostgreSQL. The full market record
// is stored as a JSONB document alongside a few filterable columns;
// balances and events live in relational tables. Commit applies a whole
// mutation in one transaction.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a Ledger backed by the given connection pool.
func NewLedger(client *Client) *Ledger {
	return &Ledger{pool: client.Pool()}
}

// CreateMarket inserts the market at the next dense id, starting at zero.
// The id is assigned inside the insert so concurrent creates cannot race
// past each other without one of them failing on the primary key.
func (l *Ledger) CreateMarket(ctx context.Context, m *domain.Market) (uint64, error) {
	for {
		var next uint64
		err := l.pool.QueryRow(ctx,
			"SELECT COALESCE(MAX(id) + 1, 0) FROM markets").Scan(&next)
		if err != nil {
			return 0, fmt.Errorf("postgres: next market id: %w", err)
		}

		m.ID = next
		m.Pool.MarketID = next
		doc, err := json.Marshal(m)
		if err != nil {
			return 0, fmt.Errorf("postgres: marshal market: %w", err)
		}

		_, err = l.pool.Exec(ctx, `
			INSERT INTO markets (id, enabled, finalized, categories, created_at, updated_at, doc)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.ID, m.Enabled, m.Finalized, m.Categories,
			int64(m.CreatedAt), int64(m.UpdatedAt), doc,
		)
		if err == nil {
			return m.ID, nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return 0, fmt.Errorf("postgres: create market: %w", err)
	}
}

func isUniqueViolation(err error) bool {
	var pgErr interface{ SQLState() string }
	return errors.As(err, &pgErr) && pgErr.SQLState() == "23505"
}

func scanMarketDoc(raw []byte) (*domain.Market, error) {
	var m domain.Market
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("postgres: decode market doc: %w", err)
	}
	return &m, nil
}

// GetMarket retrieves a market by id.
func (l *Ledger) GetMarket(ctx context.Context, id uint64) (*domain.Market, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx,
		"SELECT doc FROM markets WHERE id = $1", id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return scanMarketDoc(raw)
}

// ListMarkets returns markets ordered by id with optional filters.
func (l *Ledger) ListMarkets(ctx context.Context, opts domain.ListOpts) ([]*domain.Market, error) {
	query := "SELECT doc FROM markets"
	var conds []string
	var args []any

	if opts.EnabledOnly {
		conds = append(conds, "enabled")
	}
	if opts.Category != "" {
		args = append(args, opts.Category)
		conds = append(conds, fmt.Sprintf("$%d = ANY(categories)", len(args)))
	}
	for i, cond := range conds {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += " ORDER BY id"
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
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []*domain.Market
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		m, err := scanMarketDoc(raw)
		if err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// CountMarkets returns the total number of markets.
func (l *Ledger) CountMarkets(ctx context.Context) (int64, error) {
	var count int64
	if err := l.pool.QueryRow(ctx, "SELECT COUNT(*) FROM markets").Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// Commit applies the mutation in a single transaction.
func (l *Ledger) Commit(ctx context.Context, mut domain.Mutation) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if mut.Market != nil {
		doc, err := json.Marshal(mut.Market)
		if err != nil {
			return fmt.Errorf("postgres: marshal market %d: %w", mut.Market.ID, err)
		}
		tag, err := tx.Exec(ctx, `
			UPDATE markets
			SET enabled = $2, finalized = $3, categories = $4, updated_at = $5, doc = $6
			WHERE id = $1`,
			mut.Market.ID, mut.Market.Enabled, mut.Market.Finalized,
			mut.Market.Categories, int64(mut.Market.UpdatedAt), doc,
		)
		if err != nil {
			return fmt.Errorf("postgres: update market %d: %w", mut.Market.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
	}

	for _, sb := range mut.Shares {
		_, err := tx.Exec(ctx, `
			INSERT INTO share_balances (market_id, outcome, account, balance)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (market_id, outcome, account) DO UPDATE SET
				balance = EXCLUDED.balance`,
			sb.MarketID, sb.Outcome, sb.Account, sb.Balance.String(),
		)
		if err != nil {
			return fmt.Errorf("postgres: upsert share balance: %w", err)
		}
	}

	for _, lb := range mut.LP {
		_, err := tx.Exec(ctx, `
			INSERT INTO lp_balances (market_id, account, balance, withdrawn_fees)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (market_id, account) DO UPDATE SET
				balance        = EXCLUDED.balance,
				withdrawn_fees = EXCLUDED.withdrawn_fees`,
			lb.MarketID, lb.Account, lb.Balance.String(), lb.WithdrawnFees.String(),
		)
		if err != nil {
			return fmt.Errorf("postgres: upsert lp balance: %w", err)
		}
	}

	for _, st := range mut.Storage {
		_, err := tx.Exec(ctx, `
			INSERT INTO storage_balances (account, deposit, used)
			VALUES ($1, $2, $3)
			ON CONFLICT (account) DO UPDATE SET
				deposit = EXCLUDED.deposit,
				used    = EXCLUDED.used`,
			st.Account, st.Deposit.String(), st.Used.String(),
		)
		if err != nil {
			return fmt.Errorf("postgres: upsert storage balance: %w", err)
		}
	}

	for _, ev := range mut.Events {
		var payload []byte
		if ev.Payload != nil {
			payload, err = json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("postgres: marshal event payload: %w", err)
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO events (id, market_id, kind, account, payload, at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO NOTHING`,
			ev.ID, ev.MarketID, ev.Kind, ev.Account, payload, int64(ev.At),
		)
		if err != nil {
			return fmt.Errorf("postgres: insert event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit mutation: %w", err)
	}
	return nil
}

var _ domain.Ledger = (*Ledger)(nil)
