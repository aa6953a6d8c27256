package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"billdesk/backend/internal/cache"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
)

// PaddedLength is the EAN-13 width scanners pad short codes to.
const PaddedLength = 13

// Clean trims a scanned code and rejects codes that cannot be document ids.
func Clean(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("barcode is required")
	}
	if strings.Contains(code, "/") {
		return "", fmt.Errorf("barcode %q contains '/'", code)
	}
	return code, nil
}

// Variants lists the keys a scanned code may be stored under, in lookup
// order: as scanned, without leading zeros, and zero-padded to 13 digits.
// Duplicates are dropped.
func Variants(code string) []string {
	raw := strings.TrimSpace(code)
	if raw == "" {
		return nil
	}
	out := []string{raw}
	add := func(v string) {
		if v == "" {
			return
		}
		for _, existing := range out {
			if existing == v {
				return
			}
		}
		out = append(out, v)
	}
	add(strings.TrimLeft(raw, "0"))
	if isDigits(raw) && len(raw) < PaddedLength {
		add(strings.Repeat("0", PaddedLength-len(raw)) + raw)
	}
	return out
}

// CanonicalKey is shared by every variant of a code, so it can key caches.
func CanonicalKey(code string) string {
	raw := strings.TrimSpace(code)
	if raw == "" {
		return ""
	}
	if stripped := strings.TrimLeft(raw, "0"); stripped != "" {
		return stripped
	}
	// All zeros: "0", "00" and the padded form are one code.
	return "0"
}

// Resolve reads every variant of code under collection concurrently and
// returns the first one that exists, in variant order. When none exists the
// returned snapshot has Exists=false and the path of the first variant.
func Resolve(ctx context.Context, r store.Reader, collection string, code string) (*store.Snapshot, error) {
	variants := Variants(code)
	if len(variants) == 0 {
		return nil, fmt.Errorf("barcode is required")
	}
	snaps := make([]*store.Snapshot, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	for i, variant := range variants {
		i, variant := i, variant
		g.Go(func() error {
			snap, err := r.Get(gctx, collection+"/"+variant)
			if err != nil {
				return err
			}
			snaps[i] = snap
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, snap := range snaps {
		if snap.Exists {
			return snap, nil
		}
	}
	return snaps[0], nil
}

// Catalog serves read-side lookups. Product entries go through the cache;
// inventory always comes from the store.
type Catalog struct {
	store  store.Store
	cache  cache.ProductCache
	ttl    time.Duration
	logger *zap.Logger
}

func New(st store.Store, productCache cache.ProductCache, ttl time.Duration, logger *zap.Logger) *Catalog {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{store: st, cache: productCache, ttl: ttl, logger: logger}
}

// Product resolves a scanned code to a catalog product. ok is false when no
// variant exists.
func (c *Catalog) Product(ctx context.Context, code string) (*domain.Product, bool, error) {
	key := CanonicalKey(code)
	if cached, hit, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("product cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		return cached, true, nil
	}

	snap, err := Resolve(ctx, c.store, domain.ProductsCollection, code)
	if err != nil {
		return nil, false, err
	}
	if !snap.Exists {
		return nil, false, nil
	}
	var product domain.Product
	if err := snap.DataTo(&product); err != nil {
		return nil, false, err
	}
	product.Barcode = snap.ID
	if err := c.cache.Set(ctx, key, &product, c.ttl); err != nil {
		c.logger.Warn("product cache write failed", zap.String("key", key), zap.Error(err))
	}
	return &product, true, nil
}

func (c *Catalog) Inventory(ctx context.Context, shopID string, code string) (*domain.InventoryItem, bool, error) {
	snap, err := Resolve(ctx, c.store, domain.InventoryCollection(shopID), code)
	if err != nil {
		return nil, false, err
	}
	if !snap.Exists {
		return nil, false, nil
	}
	var item domain.InventoryItem
	if err := snap.DataTo(&item); err != nil {
		return nil, false, err
	}
	item.Barcode = snap.ID
	return &item, true, nil
}

// Invalidate drops the cached product for every variant of code.
func (c *Catalog) Invalidate(ctx context.Context, code string) {
	if err := c.cache.Delete(ctx, CanonicalKey(code)); err != nil {
		c.logger.Warn("product cache invalidation failed", zap.String("barcode", code), zap.Error(err))
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
