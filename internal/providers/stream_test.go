package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestQuoteStream_SnapshotTracksLatestQuote(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.WriteJSON(streamTick{Symbol: "AAPL", Price: "230.5"}))
		require.NoError(t, conn.WriteJSON(streamTick{Symbol: "AAPL", Price: "231.0"}))
	}))
	defer srv.Close()

	stream := NewQuoteStream(wsURL(srv))
	// consume returns once the server drops the connection.
	_ = stream.consume(context.Background())

	assert.Eventually(t, func() bool {
		q, ok := stream.Snapshot()["AAPL"]
		return ok && q.String() == "231"
	}, time.Second, 10*time.Millisecond)
}

func TestQuoteStream_SkipsMalformedTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
		require.NoError(t, conn.WriteJSON(streamTick{Symbol: "", Price: "1"}))
		require.NoError(t, conn.WriteJSON(streamTick{Symbol: "MSFT", Price: "nope"}))
		require.NoError(t, conn.WriteJSON(streamTick{Symbol: "MSFT", Price: "415.25"}))
	}))
	defer srv.Close()

	stream := NewQuoteStream(wsURL(srv))
	_ = stream.consume(context.Background())

	snap := stream.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, "415.25", snap["MSFT"].String())
}

func TestQuoteStream_ReconnectsWithoutLeakingWatchers(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drop every connection immediately to force a reconnect.
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn.Close()
	}))
	defer srv.Close()

	stream := NewQuoteStream(wsURL(srv))
	before := runtime.NumGoroutine()

	for i := 0; i < 50; i++ {
		err := stream.consume(context.Background())
		require.Error(t, err)
	}

	// Each consume call's connection watcher must exit with its connection,
	// not linger until the parent context ends.
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+3
	}, 2*time.Second, 20*time.Millisecond)
}

func TestQuoteStream_RunStopsOnCancel(t *testing.T) {
	stream := NewQuoteStream("ws://127.0.0.1:1/unreachable")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := stream.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
