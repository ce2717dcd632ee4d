package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"solana-coil-detector/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// captureSink records every event the feed forwards.
type captureSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *captureSink) Ingest(ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *captureSink) snapshot() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	return out
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within 5s")
}

func TestFeed_Connect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	sink := &captureSink{}
	feed, err := NewFeed(context.Background(), wsURL(server), sink, nil, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	defer feed.Close()

	if feed.closed.Load() {
		t.Error("feed should not be closed")
	}
}

func TestFeed_ForwardsDecodedEvents(t *testing.T) {
	rows := []Row{
		{Type: RowSwap, TimestampMs: 1000, Slot: 10, Pool: "pool-a", Token: "mint-a",
			TxSignature: "sig1", Side: "buy", Price: 0.5, BaseAmt: 100, QuoteAmt: 50, Taker: "wallet1"},
		{Type: RowLiquidity, TimestampMs: 1001, Slot: 10, Pool: "pool-a",
			XReserve: 1000, YReserve: 50000, FeeBps: 30, Kind: "update"},
		{Type: RowAuthority, TimestampMs: 1002, Slot: 11, Pool: "pool-a",
			Mint: "mint-a", MintAuth: true},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, row := range rows {
			msg, _ := json.Marshal(row)
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	sink := &captureSink{}
	feed, err := NewFeed(context.Background(), wsURL(server), sink, nil, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	defer feed.Close()

	waitFor(t, func() bool { return len(sink.snapshot()) == 3 })

	events := sink.snapshot()

	swap, ok := events[0].(*domain.SwapEvent)
	if !ok {
		t.Fatalf("event 0: expected *SwapEvent, got %T", events[0])
	}
	if swap.Pool != "pool-a" || swap.Side != "buy" || swap.QuoteAmt != 50 {
		t.Errorf("swap fields wrong: %+v", swap)
	}

	lp, ok := events[1].(*domain.LiquidityEvent)
	if !ok {
		t.Fatalf("event 1: expected *LiquidityEvent, got %T", events[1])
	}
	if lp.YReserve != 50000 || lp.FeeBps != 30 {
		t.Errorf("liquidity fields wrong: %+v", lp)
	}
	if lp.TopHolderLPShare != -1 {
		t.Errorf("missing lp_top_share should decode to -1, got %v", lp.TopHolderLPShare)
	}

	auth, ok := events[2].(*domain.AuthorityEvent)
	if !ok {
		t.Fatalf("event 2: expected *AuthorityEvent, got %T", events[2])
	}
	if auth.Mint != "mint-a" || !auth.MintAuth {
		t.Errorf("authority fields wrong: %+v", auth)
	}
}

func TestFeed_SkipsBadRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"swap","pool":"p","side":"sideways"}`))
		good, _ := json.Marshal(Row{Type: RowSwap, TimestampMs: 1, Slot: 1, Pool: "p", Side: "sell", QuoteAmt: 5})
		conn.WriteMessage(websocket.TextMessage, good)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	sink := &captureSink{}
	feed, err := NewFeed(context.Background(), wsURL(server), sink, nil, zerolog.Nop(), nil)
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	defer feed.Close()

	waitFor(t, func() bool { return len(sink.snapshot()) == 1 })

	if ev := sink.snapshot()[0]; ev.EventPool() != "p" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestFeed_ReconnectsAfterDrop(t *testing.T) {
	var connCount sync.WaitGroup
	connCount.Add(2)

	var once1, once2 sync.Once
	served := 0
	var mu sync.Mutex

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		mu.Lock()
		served++
		n := served
		mu.Unlock()

		if n == 1 {
			once1.Do(connCount.Done)
			// Drop the first connection immediately to force a reconnect.
			conn.Close()
			return
		}

		once2.Do(connCount.Done)
		msg, _ := json.Marshal(Row{Type: RowSwap, TimestampMs: 1, Slot: 1, Pool: "p", Side: "buy", QuoteAmt: 1})
		conn.WriteMessage(websocket.TextMessage, msg)
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	cfg := DefaultFeedConfig()
	cfg.ReconnectDelay = 10 * time.Millisecond
	cfg.ReconnectRate = 1000

	sink := &captureSink{}
	feed, err := NewFeed(context.Background(), wsURL(server), sink, nil, zerolog.Nop(), &cfg)
	if err != nil {
		t.Fatalf("NewFeed: %v", err)
	}
	defer feed.Close()

	done := make(chan struct{})
	go func() {
		connCount.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second connection never arrived")
	}

	waitFor(t, func() bool { return len(sink.snapshot()) == 1 })
}

func TestRow_Event_UnknownType(t *testing.T) {
	r := Row{Type: "mystery", Pool: "p"}
	if _, err := r.Event(); err == nil {
		t.Error("expected error for unknown row type")
	}
}

func TestRow_Event_MissingPool(t *testing.T) {
	r := Row{Type: RowSwap, Side: "buy"}
	if _, err := r.Event(); err == nil {
		t.Error("expected error for row without pool")
	}
}

func TestRow_Event_LPTopShare(t *testing.T) {
	share := 0.42
	r := Row{Type: RowLiquidity, Pool: "p", LPTopShare: &share}
	ev, err := r.Event()
	if err != nil {
		t.Fatalf("Event: %v", err)
	}
	lp := ev.(*domain.LiquidityEvent)
	if lp.TopHolderLPShare != 0.42 {
		t.Errorf("TopHolderLPShare = %v, want 0.42", lp.TopHolderLPShare)
	}
}
