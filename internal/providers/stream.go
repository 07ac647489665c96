package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// QuoteStream consumes a vendor websocket feed and keeps the latest quote
// per symbol. The pack builder reads the snapshot at end of day; nothing in
// the request path ever touches the stream.
type QuoteStream struct {
	url    string
	dialer *websocket.Dialer

	mu     sync.RWMutex
	latest map[string]decimal.Decimal
}

// NewQuoteStream creates a stream client for a vendor websocket endpoint.
func NewQuoteStream(url string) *QuoteStream {
	return &QuoteStream{
		url:    url,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		latest: make(map[string]decimal.Decimal),
	}
}

type streamTick struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Run consumes the feed until ctx is cancelled, reconnecting with a fixed
// backoff on read or dial failure.
func (s *QuoteStream) Run(ctx context.Context) error {
	const backoff = 5 * time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.consume(ctx); err != nil {
			log.Warn().Err(err).Str("url", s.url).Msg("quote stream disconnected, backing off")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

func (s *QuoteStream) consume(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("providers: dialing quote stream: %w", err)
	}
	defer conn.Close()

	// The watcher must not outlive this connection: a reconnecting stream
	// would otherwise stack one goroutine per attempt until ctx ends.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var tick streamTick
		if err := json.Unmarshal(msg, &tick); err != nil {
			log.Debug().Err(err).Msg("skipping undecodable stream message")
			continue
		}
		price, err := decimal.NewFromString(tick.Price)
		if err != nil || tick.Symbol == "" {
			continue
		}
		s.mu.Lock()
		s.latest[tick.Symbol] = price
		s.mu.Unlock()
	}
}

// Snapshot returns a copy of the latest quotes.
func (s *QuoteStream) Snapshot() map[string]decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(s.latest))
	for sym, price := range s.latest {
		out[sym] = price
	}
	return out
}
