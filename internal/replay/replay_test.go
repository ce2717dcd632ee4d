package replay

import (
	"context"
	"math/rand"
	"strings"
	"testing"
	"time"

	"solana-coil-detector/internal/ingest"
)

func swapRow(slot, ts int64, sig string, idx int, side string) ingest.Row {
	return ingest.Row{
		Type:        ingest.RowSwap,
		TimestampMs: ts,
		Slot:        slot,
		Pool:        "pool-1",
		TxSignature: sig,
		EventIndex:  idx,
		Token:       "mint-1",
		Side:        side,
		Price:       1.0,
		BaseAmt:     10,
		QuoteAmt:    10,
		Taker:       "wallet-" + sig,
	}
}

func recording() []ingest.Row {
	t0 := int64(1_700_000_000_000)
	share := 0.5
	rows := []ingest.Row{
		{
			Type: ingest.RowLiquidity, TimestampMs: t0, Slot: 1, Pool: "pool-1",
			XReserve: 1e6, YReserve: 1e6, FeeBps: 25, Kind: "add", LPTopShare: &share,
		},
		{
			Type: ingest.RowAuthority, TimestampMs: t0, Slot: 1, Pool: "pool-1",
			Mint: "mint-1",
		},
	}
	side := "buy"
	for i := int64(0); i < 40; i++ {
		rows = append(rows, swapRow(2+i, t0+i*1500, "sig-a", int(i), side))
		if side == "buy" {
			side = "sell"
		} else {
			side = "buy"
		}
	}
	return rows
}

func shuffled(rows []ingest.Row, seed int64) []ingest.Row {
	out := make([]ingest.Row, len(rows))
	copy(out, rows)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func TestSortRows_ChainOrder(t *testing.T) {
	rows := []ingest.Row{
		{Type: ingest.RowSwap, Slot: 5, TxSignature: "b", EventIndex: 0, Pool: "p", Side: "buy"},
		{Type: ingest.RowSwap, Slot: 5, TxSignature: "a", EventIndex: 1, Pool: "p", Side: "buy"},
		{Type: ingest.RowSwap, Slot: 5, TxSignature: "a", EventIndex: 0, Pool: "p", Side: "buy"},
		{Type: ingest.RowLiquidity, Slot: 4, Pool: "p"},
		{Type: ingest.RowSwap, Slot: 4, Pool: "p", Side: "sell"},
	}
	SortRows(rows)

	if rows[0].Type != ingest.RowLiquidity || rows[0].Slot != 4 {
		t.Fatalf("rows[0] = %+v, want the slot-4 lp row (type breaks the tie)", rows[0])
	}
	if rows[1].Slot != 4 || rows[1].Type != ingest.RowSwap {
		t.Fatalf("rows[1] = %+v, want the slot-4 swap", rows[1])
	}
	want := []struct {
		sig string
		idx int
	}{{"a", 0}, {"a", 1}, {"b", 0}}
	for i, w := range want {
		got := rows[2+i]
		if got.TxSignature != w.sig || got.EventIndex != w.idx {
			t.Errorf("rows[%d] = (%s, %d), want (%s, %d)", 2+i, got.TxSignature, got.EventIndex, w.sig, w.idx)
		}
	}
}

func TestReadRows_SkipsBlankFailsMalformed(t *testing.T) {
	good := `{"type":"swap","ts":1,"slot":1,"pool":"p","side":"buy"}

{"type":"lp","ts":2,"slot":2,"pool":"p"}`
	rows, err := ReadRows(strings.NewReader(good))
	if err != nil {
		t.Fatalf("ReadRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	bad := good + "\nnot-json"
	if _, err := ReadRows(strings.NewReader(bad)); err == nil {
		t.Fatal("expected error for malformed line")
	} else if !strings.Contains(err.Error(), "line 4") {
		t.Errorf("error %q does not name the offending line", err)
	}
}

func TestRun_Deterministic(t *testing.T) {
	rows := recording()
	runner := NewRunner(Options{Interval: time.Second})

	first, err := runner.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := runner.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.Fingerprint == "" || first.Fingerprint != second.Fingerprint {
		t.Errorf("fingerprints differ: %q vs %q", first.Fingerprint, second.Fingerprint)
	}
	if first.Ticks == 0 {
		t.Error("expected at least one tick")
	}
	if len(first.Pools) != 1 || first.Pools[0] != "pool-1" {
		t.Errorf("pools = %v, want [pool-1]", first.Pools)
	}
}

func TestRun_InputOrderIrrelevant(t *testing.T) {
	rows := recording()
	runner := NewRunner(Options{Interval: time.Second})

	base, err := runner.Run(context.Background(), rows)
	if err != nil {
		t.Fatalf("base run: %v", err)
	}
	for seed := int64(1); seed <= 3; seed++ {
		got, err := runner.Run(context.Background(), shuffled(rows, seed))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if got.Fingerprint != base.Fingerprint {
			t.Errorf("seed %d: fingerprint diverged from sorted input", seed)
		}
	}
}

func TestRun_EmptyRecording(t *testing.T) {
	res, err := NewRunner(Options{}).Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Ticks != 0 || len(res.Signals) != 0 {
		t.Errorf("empty recording produced activity: %+v", res)
	}
}

func TestRun_RejectsBadRow(t *testing.T) {
	rows := recording()
	rows = append(rows, ingest.Row{Type: "swap", Slot: 99, Pool: "pool-1", Side: "sideways"})
	if _, err := NewRunner(Options{}).Run(context.Background(), rows); err == nil {
		t.Fatal("expected error for undecodable row")
	}
}

func TestVerify(t *testing.T) {
	res, err := Verify(context.Background(), recording(), Options{Interval: time.Second})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if res.Fingerprint == "" {
		t.Error("expected a fingerprint")
	}
}
