// Package ledger reads versioned portfolio history: valuation series for the
// return engine and open tax lots for valuation. Every read is pinned to a
// ledger commit id, so two reads with the same commit observe identical data
// no matter what has been booked since.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/quantfolio/quantfolio/internal/positions"
	"github.com/quantfolio/quantfolio/internal/returns"
)

// Window bounds a series query, inclusive on both ends.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ErrCommitNotFound reports an unknown ledger commit id.
type ErrCommitNotFound struct {
	CommitID string
}

func (e *ErrCommitNotFound) Error() string {
	return fmt.Sprintf("ledger: commit %q not found", e.CommitID)
}

// ErrPortfolioNotFound reports a portfolio the commit does not contain.
type ErrPortfolioNotFound struct {
	PortfolioID string
}

func (e *ErrPortfolioNotFound) Error() string {
	return fmt.Sprintf("ledger: portfolio %q not found", e.PortfolioID)
}

// Store is the read contract the analytics capabilities depend on.
// Implementations must be deterministic per commit id.
type Store interface {
	// Series returns the dated valuation history of a portfolio within the
	// window, ascending by date, with a valuation recorded on every external
	// flow date.
	Series(ctx context.Context, commitID, portfolioID string, window Window) (returns.Series, error)

	// Positions returns the open tax lots of a portfolio as of the given
	// date.
	Positions(ctx context.Context, commitID, portfolioID string, asof time.Time) ([]positions.Lot, error)
}
