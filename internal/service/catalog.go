package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/catalog"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
)

const (
	opUpsertProduct   = "upsertProduct"
	opSetInventory    = "setInventoryItem"
	opDeleteInventory = "deleteInventoryItem"
)

var hundred = decimal.NewFromInt(100)

// UpsertProduct merges catalog data into the global product stored under
// any variant of barcode, or creates it under the barcode as given.
func (s *Service) UpsertProduct(ctx context.Context, barcode string, req domain.UpsertProductRequest) (product domain.Product, err error) {
	started := s.clock()
	defer func() { s.observe(opUpsertProduct, started, err) }()

	code, err := catalog.Clean(barcode)
	if err != nil {
		return domain.Product{}, apperr.Wrap(apperr.InvalidArgument, err, err.Error())
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Product{}, apperr.New(apperr.InvalidArgument, "name is required")
	}
	if req.MRP.IsNegative() {
		return domain.Product{}, apperr.New(apperr.InvalidArgument, "mrp must not be negative")
	}
	if req.GSTPercent.IsNegative() || req.GSTPercent.GreaterThan(hundred) {
		return domain.Product{}, apperr.New(apperr.InvalidArgument, "gstPercent must be between 0 and 100")
	}

	product = domain.Product{
		Name:       name,
		Category:   strings.TrimSpace(req.Category),
		Brand:      strings.TrimSpace(req.Brand),
		Unit:       strings.TrimSpace(req.Unit),
		MRP:        req.MRP,
		GSTPercent: req.GSTPercent,
	}
	err = s.runTx(ctx, opUpsertProduct, func(ctx context.Context, tx store.Tx) error {
		caller, err := s.loadCaller(ctx, tx)
		if err != nil {
			return err
		}
		if err := requireOwner(caller); err != nil {
			return err
		}
		snap, err := catalog.Resolve(ctx, tx, domain.ProductsCollection, code)
		if err != nil {
			return err
		}
		id := code
		product.CreatedBy = caller.ID
		if snap.Exists {
			id = snap.ID
			var existing domain.Product
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			product.CreatedBy = existing.CreatedBy
		}
		product.Barcode = id
		doc := map[string]any{
			"barcode":    id,
			"name":       product.Name,
			"category":   product.Category,
			"brand":      product.Brand,
			"unit":       product.Unit,
			"mrp":        product.MRP,
			"gstPercent": product.GSTPercent,
			"updatedAt":  store.ServerTimestamp,
		}
		if !snap.Exists {
			doc["createdBy"] = caller.ID
		}
		return tx.SetMerge(domain.ProductPath(id), doc)
	})
	if err != nil {
		return domain.Product{}, classify(err)
	}
	s.catalog.Invalidate(ctx, code)
	product.UpdatedAt = s.now()
	return product, nil
}

// SetInventoryItem sets the shop's price and stock for a catalog product.
func (s *Service) SetInventoryItem(ctx context.Context, barcode string, req domain.SetInventoryRequest) (item domain.InventoryItem, err error) {
	started := s.clock()
	defer func() { s.observe(opSetInventory, started, err) }()

	code, err := catalog.Clean(barcode)
	if err != nil {
		return domain.InventoryItem{}, apperr.Wrap(apperr.InvalidArgument, err, err.Error())
	}
	if req.SellingPrice.IsNegative() || req.PurchasePrice.IsNegative() {
		return domain.InventoryItem{}, apperr.New(apperr.InvalidArgument, "prices must not be negative")
	}
	if req.Stock < 0 {
		return domain.InventoryItem{}, apperr.New(apperr.InvalidArgument, "stock must not be negative")
	}
	expiry := strings.TrimSpace(req.Expiry)
	if expiry != "" {
		if _, err := time.Parse("2006-01-02", expiry); err != nil {
			return domain.InventoryItem{}, apperr.New(apperr.InvalidArgument, "expiry must be YYYY-MM-DD")
		}
	}

	var shopID string
	err = s.runTx(ctx, opSetInventory, func(ctx context.Context, tx store.Tx) error {
		caller, err := s.loadCaller(ctx, tx)
		if err != nil {
			return err
		}
		shopID, err = requireOwnerShop(caller)
		if err != nil {
			return err
		}
		inv, err := catalog.Resolve(ctx, tx, domain.InventoryCollection(shopID), code)
		if err != nil {
			return err
		}
		prod, err := catalog.Resolve(ctx, tx, domain.ProductsCollection, code)
		if err != nil {
			return err
		}
		if !prod.Exists {
			return apperr.Newf(apperr.NotFound, "product %s not found", code)
		}
		id := prod.ID
		if inv.Exists {
			id = inv.ID
		}
		item = domain.InventoryItem{
			Barcode:       id,
			SellingPrice:  req.SellingPrice,
			PurchasePrice: req.PurchasePrice,
			Stock:         req.Stock,
			Expiry:        expiry,
		}
		return tx.SetMerge(domain.InventoryPath(shopID, id), map[string]any{
			"barcode":       id,
			"sellingPrice":  item.SellingPrice,
			"purchasePrice": item.PurchasePrice,
			"stock":         item.Stock,
			"expiry":        item.Expiry,
			"updatedAt":     store.ServerTimestamp,
		})
	})
	if err != nil {
		return domain.InventoryItem{}, classify(err)
	}
	item.UpdatedAt = s.now()
	s.log(ctx).Info("inventory item set", zap.String("shop_id", shopID), zap.String("barcode", item.Barcode), zap.Int64("stock", item.Stock))
	return item, nil
}

// DeleteInventoryItem removes the item from the shop. The global product is
// left alone.
func (s *Service) DeleteInventoryItem(ctx context.Context, barcode string) (err error) {
	started := s.clock()
	defer func() { s.observe(opDeleteInventory, started, err) }()

	code, err := catalog.Clean(barcode)
	if err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, err.Error())
	}
	return classify(s.runTx(ctx, opDeleteInventory, func(ctx context.Context, tx store.Tx) error {
		caller, err := s.loadCaller(ctx, tx)
		if err != nil {
			return err
		}
		shopID, err := requireOwnerShop(caller)
		if err != nil {
			return err
		}
		inv, err := catalog.Resolve(ctx, tx, domain.InventoryCollection(shopID), code)
		if err != nil {
			return err
		}
		if !inv.Exists {
			return apperr.Newf(apperr.NotFound, "item %s is not in shop inventory", code)
		}
		return tx.Delete(inv.Path)
	}))
}

// ScanLookup resolves a scanned code for the cart: the catalog product, the
// shop's inventory entry if any, and the rate a bill would charge.
func (s *Service) ScanLookup(ctx context.Context, code string) (domain.ScanResult, error) {
	code, err := catalog.Clean(code)
	if err != nil {
		return domain.ScanResult{}, apperr.Wrap(apperr.InvalidArgument, err, err.Error())
	}
	caller, err := s.loadCaller(ctx, s.store)
	if err != nil {
		return domain.ScanResult{}, classify(err)
	}
	shopID, err := requireShop(caller)
	if err != nil {
		return domain.ScanResult{}, err
	}
	product, ok, err := s.catalog.Product(ctx, code)
	if err != nil {
		return domain.ScanResult{}, classify(err)
	}
	if !ok {
		return domain.ScanResult{}, apperr.Newf(apperr.NotFound, "product %s not found", code)
	}
	item, stocked, err := s.catalog.Inventory(ctx, shopID, code)
	if err != nil {
		return domain.ScanResult{}, classify(err)
	}
	result := domain.ScanResult{Product: *product, Rate: product.MRP}
	if stocked {
		result.Inventory = item
		result.Rate = item.SellingPrice
	}
	return result, nil
}
