package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"billdesk/backend/internal/domain"
)

func TestMemoryProductCacheExpiresAndDeletes(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)
	c := NewMemoryProductCache()
	c.now = func() time.Time { return now }

	soap := &domain.Product{Barcode: "8901234567890", Name: "Soap", MRP: decimal.NewFromInt(30)}
	if err := c.Set(ctx, "8901234567890", soap, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Set(ctx, "123", &domain.Product{Name: "Pen"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := c.Get(ctx, "8901234567890")
	if err != nil || !ok || got.Name != "Soap" || !got.MRP.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected cached soap, got %+v ok=%v err=%v", got, ok, err)
	}
	got.Name = "changed"
	if again, _, _ := c.Get(ctx, "8901234567890"); again.Name != "Soap" {
		t.Fatalf("callers must get a copy, got %q", again.Name)
	}

	if err := c.Delete(ctx, "123"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "123"); ok {
		t.Fatalf("deleted key must miss")
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "8901234567890"); ok {
		t.Fatalf("expired key must miss")
	}
}

func TestNoopProductCacheAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c ProductCache = NoopProductCache{}
	if err := c.Set(ctx, "1", &domain.Product{Name: "x"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := c.Get(ctx, "1"); ok || err != nil {
		t.Fatalf("noop cache must miss, ok=%v err=%v", ok, err)
	}
}
