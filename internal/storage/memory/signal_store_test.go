package memory

import (
	"context"
	"errors"
	"testing"

	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/storage"
)

func TestSignalStore_InsertAndGet(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	sig := &domain.DetectorSignal{
		TimestampMs: 1704067200000,
		Pool:        "pool1",
		Token:       "tok1",
		SignalType:  domain.SignalTypeLong,
		Score:       0.8,
		Reasons:     map[string]domain.Reason{domain.PrimitiveVC: {Passed: true, Score: 0.7, Threshold: 0.015}},
		State:       "ENTER",
	}
	if err := store.Insert(ctx, sig); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByPool(ctx, "pool1")
	if err != nil {
		t.Fatalf("GetByPool failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 signal, got %d", len(got))
	}
	if got[0].Score != 0.8 || got[0].SignalType != domain.SignalTypeLong {
		t.Errorf("signal mismatch: %+v", got[0])
	}
	if r := got[0].Reasons[domain.PrimitiveVC]; !r.Passed || r.Threshold != 0.015 {
		t.Errorf("reasons not preserved: %+v", r)
	}
}

func TestSignalStore_DuplicateKey(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	sig := &domain.DetectorSignal{TimestampMs: 1000, Pool: "pool1"}
	if err := store.Insert(ctx, sig); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	if err := store.Insert(ctx, sig); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
	// Same pool at a different tick is a new row.
	if err := store.Insert(ctx, &domain.DetectorSignal{TimestampMs: 2000, Pool: "pool1"}); err != nil {
		t.Errorf("distinct timestamp rejected: %v", err)
	}
}

func TestSignalStore_GetSince(t *testing.T) {
	store := NewSignalStore()
	ctx := context.Background()

	for _, ts := range []int64{3000, 1000, 2000} {
		if err := store.Insert(ctx, &domain.DetectorSignal{TimestampMs: ts, Pool: "pool1"}); err != nil {
			t.Fatalf("Insert ts=%d failed: %v", ts, err)
		}
	}

	got, err := store.GetSince(ctx, 2000)
	if err != nil {
		t.Fatalf("GetSince failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 signals, got %d", len(got))
	}
	if got[0].TimestampMs != 2000 || got[1].TimestampMs != 3000 {
		t.Errorf("not ordered by timestamp: %d, %d", got[0].TimestampMs, got[1].TimestampMs)
	}
}

func TestCursorStore_RoundTrip(t *testing.T) {
	store := NewCursorStore()
	ctx := context.Background()

	if _, err := store.Get(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound before first Set, got %v", err)
	}

	if err := store.Set(ctx, &storage.Cursor{TickMs: 5000, Pools: 12}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Set(ctx, &storage.Cursor{TickMs: 7000, Pools: 14}); err != nil {
		t.Fatalf("second Set failed: %v", err)
	}

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.TickMs != 7000 || got.Pools != 14 {
		t.Errorf("cursor mismatch: %+v", got)
	}
}

func TestGapStore_InsertAndGet(t *testing.T) {
	store := NewGapStore()
	ctx := context.Background()

	gaps := []*domain.GapRecord{
		{Pool: "pool1", FromSlot: 100, ToSlot: 90, Dropped: 2, TimestampMs: 2000},
		{Pool: "pool1", FromSlot: 80, ToSlot: 70, Dropped: 1, TimestampMs: 1000},
		{Pool: "pool2", FromSlot: 50, ToSlot: 40, Dropped: 1, TimestampMs: 1500},
	}
	for _, gap := range gaps {
		if err := store.Insert(ctx, gap); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByPool(ctx, "pool1")
	if err != nil {
		t.Fatalf("GetByPool failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 gaps, got %d", len(got))
	}
	if got[0].TimestampMs != 1000 {
		t.Errorf("not ordered by timestamp: first ts=%d", got[0].TimestampMs)
	}
}

func TestSnapshotHistoryStore_Append(t *testing.T) {
	store := NewSnapshotHistoryStore()
	ctx := context.Background()

	batch := []*domain.FeatureSnapshot{
		{Pool: "pool1", TimestampMs: 1000},
		{Pool: "pool1", TimestampMs: 2000},
		{Pool: "pool2", TimestampMs: 1000},
	}
	if err := store.InsertBulk(ctx, batch); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	// History is append-only: the same pool accumulates rows.
	if err := store.InsertBulk(ctx, batch[:1]); err != nil {
		t.Fatalf("second InsertBulk failed: %v", err)
	}

	if got := store.Len(); got != 4 {
		t.Errorf("Len = %d, want 4", got)
	}
	if got := store.ByPool("pool1"); len(got) != 3 {
		t.Errorf("pool1 rows = %d, want 3", len(got))
	}
}
