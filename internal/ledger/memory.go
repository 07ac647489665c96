package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/quantfolio/quantfolio/internal/positions"
	"github.com/quantfolio/quantfolio/internal/returns"
)

// MemoryStore is an in-process Store for tests and demo mode. Data is loaded
// once per commit id and read-only afterwards, mirroring the immutability of
// a real ledger commit.
type MemoryStore struct {
	mu      sync.RWMutex
	commits map[string]*commitData
}

type commitData struct {
	series map[string]returns.Series
	lots   map[string][]positions.Lot
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{commits: make(map[string]*commitData)}
}

// LoadSeries attaches a valuation series to (commit, portfolio).
func (s *MemoryStore) LoadSeries(commitID, portfolioID string, series returns.Series) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit(commitID).series[portfolioID] = series
}

// LoadPositions attaches open lots to (commit, portfolio).
func (s *MemoryStore) LoadPositions(commitID, portfolioID string, lots []positions.Lot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit(commitID).lots[portfolioID] = lots
}

func (s *MemoryStore) commit(commitID string) *commitData {
	c, ok := s.commits[commitID]
	if !ok {
		c = &commitData{series: make(map[string]returns.Series), lots: make(map[string][]positions.Lot)}
		s.commits[commitID] = c
	}
	return c
}

func (s *MemoryStore) Series(ctx context.Context, commitID, portfolioID string, window Window) (returns.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.commits[commitID]
	if !ok {
		return nil, &ErrCommitNotFound{CommitID: commitID}
	}
	full, ok := c.series[portfolioID]
	if !ok {
		return nil, &ErrPortfolioNotFound{PortfolioID: portfolioID}
	}

	var out returns.Series
	for _, obs := range full {
		if !window.From.IsZero() && obs.Date.Before(window.From) {
			continue
		}
		if !window.To.IsZero() && obs.Date.After(window.To) {
			continue
		}
		out = append(out, obs)
	}
	return out, nil
}

func (s *MemoryStore) Positions(ctx context.Context, commitID, portfolioID string, asof time.Time) ([]positions.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.commits[commitID]
	if !ok {
		return nil, &ErrCommitNotFound{CommitID: commitID}
	}
	lots, ok := c.lots[portfolioID]
	if !ok {
		return nil, &ErrPortfolioNotFound{PortfolioID: portfolioID}
	}

	var out []positions.Lot
	for _, lot := range lots {
		if !asof.IsZero() && lot.OpenedAt.After(asof) {
			continue
		}
		out = append(out, lot)
	}
	return out, nil
}
