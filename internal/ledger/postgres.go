package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/quantfolio/quantfolio/internal/positions"
	"github.com/quantfolio/quantfolio/internal/returns"
)

// PostgresStore reads versioned ledger data. Valuations and lots carry the
// commit id they were materialized under; queries never read across commits.
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresStore creates a ledger store over an open sqlx handle.
func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout}
}

type valuationRow struct {
	Date    time.Time `db:"valuation_date"`
	Value   string    `db:"value"`
	NetFlow string    `db:"net_flow"`
}

func (s *PostgresStore) Series(ctx context.Context, commitID, portfolioID string, window Window) (returns.Series, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT valuation_date, value, net_flow
		FROM portfolio_valuations
		WHERE commit_id = $1 AND portfolio_id = $2
		  AND ($3::date IS NULL OR valuation_date >= $3)
		  AND ($4::date IS NULL OR valuation_date <= $4)
		ORDER BY valuation_date ASC`

	var rows []valuationRow
	if err := s.db.SelectContext(ctx, &rows, query, commitID, portfolioID, nullableDate(window.From), nullableDate(window.To)); err != nil {
		return nil, fmt.Errorf("ledger: querying series for %s@%s: %w", portfolioID, commitID, err)
	}
	if len(rows) == 0 {
		if known, err := s.commitExists(ctx, commitID); err != nil {
			return nil, err
		} else if !known {
			return nil, &ErrCommitNotFound{CommitID: commitID}
		}
		return nil, &ErrPortfolioNotFound{PortfolioID: portfolioID}
	}

	series := make(returns.Series, 0, len(rows))
	for _, row := range rows {
		value, err := decimal.NewFromString(row.Value)
		if err != nil {
			return nil, fmt.Errorf("ledger: bad valuation for %s on %s: %w", portfolioID, row.Date.Format("2006-01-02"), err)
		}
		flow, err := decimal.NewFromString(row.NetFlow)
		if err != nil {
			return nil, fmt.Errorf("ledger: bad net flow for %s on %s: %w", portfolioID, row.Date.Format("2006-01-02"), err)
		}
		series = append(series, returns.Observation{Date: row.Date, Value: value, NetFlow: flow})
	}
	return series, nil
}

type lotRow struct {
	Symbol      string    `db:"symbol"`
	OpenQty     string    `db:"open_qty"`
	OriginalQty string    `db:"original_qty"`
	CostBasis   string    `db:"cost_basis"`
	Currency    string    `db:"currency"`
	OpenedAt    time.Time `db:"opened_at"`
}

func (s *PostgresStore) Positions(ctx context.Context, commitID, portfolioID string, asof time.Time) ([]positions.Lot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT symbol, open_qty, original_qty, cost_basis, currency, opened_at
		FROM tax_lots
		WHERE commit_id = $1 AND portfolio_id = $2 AND opened_at <= $3 AND open_qty > 0
		ORDER BY opened_at ASC, symbol ASC`

	var rows []lotRow
	if err := s.db.SelectContext(ctx, &rows, query, commitID, portfolioID, asof); err != nil {
		return nil, fmt.Errorf("ledger: querying lots for %s@%s: %w", portfolioID, commitID, err)
	}
	if len(rows) == 0 {
		if known, err := s.commitExists(ctx, commitID); err != nil {
			return nil, err
		} else if !known {
			return nil, &ErrCommitNotFound{CommitID: commitID}
		}
	}

	lots := make([]positions.Lot, 0, len(rows))
	for _, row := range rows {
		lot, err := row.toLot()
		if err != nil {
			return nil, err
		}
		if err := lot.Validate(); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

func (row lotRow) toLot() (positions.Lot, error) {
	openQty, err := decimal.NewFromString(row.OpenQty)
	if err != nil {
		return positions.Lot{}, fmt.Errorf("ledger: bad open_qty for %s: %w", row.Symbol, err)
	}
	originalQty, err := decimal.NewFromString(row.OriginalQty)
	if err != nil {
		return positions.Lot{}, fmt.Errorf("ledger: bad original_qty for %s: %w", row.Symbol, err)
	}
	costBasis, err := decimal.NewFromString(row.CostBasis)
	if err != nil {
		return positions.Lot{}, fmt.Errorf("ledger: bad cost_basis for %s: %w", row.Symbol, err)
	}
	return positions.Lot{
		Symbol:      row.Symbol,
		OpenQty:     openQty,
		OriginalQty: originalQty,
		CostBasis:   costBasis,
		Currency:    row.Currency,
		OpenedAt:    row.OpenedAt,
	}, nil
}

func (s *PostgresStore) commitExists(ctx context.Context, commitID string) (bool, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(1) FROM ledger_commits WHERE id = $1`, commitID); err != nil {
		return false, fmt.Errorf("ledger: checking commit %s: %w", commitID, err)
	}
	return count > 0, nil
}

func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
