package pricing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// PostgresStore reads pricing packs from the pricing_packs table. The table
// stores the frozen price/FX payload as JSONB; rows are written once by the
// pack builder and never updated.
type PostgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresStore creates a pack store over an open sqlx handle.
func NewPostgresStore(db *sqlx.DB, timeout time.Duration) *PostgresStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PostgresStore{db: db, timeout: timeout}
}

type packRow struct {
	ID           string    `db:"id"`
	AsOf         time.Time `db:"asof"`
	BaseCurrency string    `db:"base_ccy"`
	Payload      []byte    `db:"payload"`
	CreatedAt    time.Time `db:"created_at"`
}

func (s *PostgresStore) Pack(ctx context.Context, id string) (*Pack, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row packRow
	query := `SELECT id, asof, base_ccy, payload, created_at FROM pricing_packs WHERE id = $1`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ErrPackNotFound{ID: id}
		}
		return nil, fmt.Errorf("pricing: querying pack %s: %w", id, err)
	}

	var payload struct {
		Prices  map[string]string `json:"prices"`
		FXRates map[string]string `json:"fx_rates"`
	}
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		return nil, fmt.Errorf("pricing: decoding pack %s payload: %w", id, err)
	}

	pack := &Pack{
		ID:           row.ID,
		AsOf:         row.AsOf,
		BaseCurrency: row.BaseCurrency,
		Prices:       make(map[string]decimal.Decimal, len(payload.Prices)),
		FXRates:      make(map[string]decimal.Decimal, len(payload.FXRates)),
		CreatedAt:    row.CreatedAt,
	}
	for sym, raw := range payload.Prices {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("pricing: pack %s price for %s: %w", id, sym, err)
		}
		pack.Prices[sym] = d
	}
	for ccy, raw := range payload.FXRates {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("pricing: pack %s fx rate for %s: %w", id, ccy, err)
		}
		pack.FXRates[ccy] = d
	}
	return pack, nil
}

// Insert stores a freshly built pack. Duplicate ids fail: packs are
// write-once.
func (s *PostgresStore) Insert(ctx context.Context, pack *Pack) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload := struct {
		Prices  map[string]string `json:"prices"`
		FXRates map[string]string `json:"fx_rates"`
	}{
		Prices:  make(map[string]string, len(pack.Prices)),
		FXRates: make(map[string]string, len(pack.FXRates)),
	}
	for sym, d := range pack.Prices {
		payload.Prices[sym] = d.String()
	}
	for ccy, d := range pack.FXRates {
		payload.FXRates[ccy] = d.String()
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pricing: encoding pack %s payload: %w", pack.ID, err)
	}

	query := `INSERT INTO pricing_packs (id, asof, base_ccy, payload, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, query, pack.ID, pack.AsOf, pack.BaseCurrency, b, pack.CreatedAt); err != nil {
		return fmt.Errorf("pricing: inserting pack %s: %w", pack.ID, err)
	}
	return nil
}
