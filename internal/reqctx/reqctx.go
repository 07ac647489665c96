// Package reqctx carries the immutable per-request evaluation context.
//
// Every capability invoked during one pattern run observes the same frozen
// pricing pack and the same ledger commit, which is what makes results
// reproducible: re-running a pattern against the same Ctx must yield the
// same answer.
package reqctx

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Ctx is the immutable request context threaded through every step of a
// pattern run. It is passed by value and never stored in package state.
type Ctx struct {
	// PricingPackID identifies a frozen snapshot of prices and FX rates
	// for one as-of date.
	PricingPackID string `json:"pricing_pack_id"`

	// LedgerCommitID pins the transaction-history version every step reads.
	LedgerCommitID string `json:"ledger_commit_id"`

	// AsOf is the valuation date the pricing pack was built for.
	AsOf time.Time `json:"asof_date"`

	// TraceID correlates log lines and trace entries for one run.
	TraceID string `json:"trace_id"`
}

// New constructs a request context with a freshly minted trace id.
func New(pricingPackID, ledgerCommitID string, asof time.Time) Ctx {
	return Ctx{
		PricingPackID:  pricingPackID,
		LedgerCommitID: ledgerCommitID,
		AsOf:           asof,
		TraceID:        uuid.NewString(),
	}
}

// WithTraceID returns a copy carrying the given trace id. Used when a caller
// already owns a correlation id (e.g. an upstream request id).
func (c Ctx) WithTraceID(id string) Ctx {
	c.TraceID = id
	return c
}

// Scope renders the context as the template scope exposed to pattern args
// under "ctx". Keys mirror the wire names used in result envelopes.
func (c Ctx) Scope() map[string]any {
	return map[string]any{
		"pricing_pack_id":  c.PricingPackID,
		"ledger_commit_id": c.LedgerCommitID,
		"asof_date":        c.AsOf.Format("2006-01-02"),
		"trace_id":         c.TraceID,
	}
}

// MarshalZerologObject lets a Ctx be attached to log events wholesale.
func (c Ctx) MarshalZerologObject(e *zerolog.Event) {
	e.Str("trace_id", c.TraceID).
		Str("pricing_pack_id", c.PricingPackID).
		Str("ledger_commit_id", c.LedgerCommitID).
		Str("asof_date", c.AsOf.Format("2006-01-02"))
}
