package dedupe

import (
	"context"
	"testing"
	"time"
)

func TestMemoryDeduper_Claim(t *testing.T) {
	d := NewMemoryDeduper()
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := d.Claim(ctx, "pool1", 5*time.Minute)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v, want win", ok, err)
	}

	// Inside the cooldown the slot stays taken.
	now = now.Add(4 * time.Minute)
	if ok, _ := d.Claim(ctx, "pool1", 5*time.Minute); ok {
		t.Fatal("claim inside cooldown should lose")
	}

	// Other pools are independent.
	if ok, _ := d.Claim(ctx, "pool2", 5*time.Minute); !ok {
		t.Fatal("other pool should win its own slot")
	}

	// The losing claim must not extend pool1's cooldown.
	now = now.Add(90 * time.Second)
	if ok, _ := d.Claim(ctx, "pool1", 5*time.Minute); !ok {
		t.Fatal("claim after cooldown expiry should win")
	}
}
