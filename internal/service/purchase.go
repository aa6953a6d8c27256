package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/catalog"
	"billdesk/backend/internal/counter"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/xid"
)

const opCreatePurchase = "createPurchase"

type purchaseItem struct {
	barcode       string
	name          string
	qty           int64
	purchasePrice decimal.Decimal
}

type purchaseRequest struct {
	supplierID     string
	items          []purchaseItem
	paidAmount     decimal.Decimal
	idempotencyKey string
}

type purchaseReads struct {
	caller    domain.User
	shopID    string
	counters  counter.Counters
	supplier  *store.Snapshot
	request   *store.Snapshot
	inventory []*store.Snapshot
	products  []*store.Snapshot
}

// stockReceipt is the merged inventory write for one inventory document.
type stockReceipt struct {
	path          string
	barcode       string
	qty           int64
	purchasePrice decimal.Decimal
	isNew         bool
	sellingPrice  decimal.Decimal
}

type purchasePlan struct {
	shopID      string
	allocation  counter.Allocation
	purchase    domain.Purchase
	purchaseDoc map[string]any
	receipts    []stockReceipt
	requestKey  string
	requestDoc  map[string]any
	response    domain.CreatePurchaseResponse
}

// CreatePurchase records goods received from a supplier: it numbers the
// purchase, adds the quantities to inventory and books any unpaid amount
// against the supplier, in one transaction.
func (s *Service) CreatePurchase(ctx context.Context, req domain.CreatePurchaseRequest) (resp domain.CreatePurchaseResponse, err error) {
	started := s.clock()
	defer func() { s.observe(opCreatePurchase, started, err) }()

	if _, ok := CallerFromContext(ctx); !ok {
		return domain.CreatePurchaseResponse{}, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	in, err := normalizePurchaseRequest(req)
	if err != nil {
		return domain.CreatePurchaseResponse{}, err
	}

	now := s.now()
	purchaseID := xid.New("")
	var committed *purchasePlan
	err = s.runTx(ctx, opCreatePurchase, func(ctx context.Context, tx store.Tx) error {
		committed = nil
		reads, err := s.readPurchase(ctx, tx, in)
		if err != nil {
			return err
		}
		if reads.request != nil && reads.request.Exists {
			resp, err = replayPurchase(reads.request)
			return err
		}
		plan, err := planPurchase(reads, in, purchaseID, now)
		if err != nil {
			return err
		}
		if err := plan.commit(tx); err != nil {
			return err
		}
		resp = plan.response
		committed = &plan
		return nil
	})
	if err != nil {
		return domain.CreatePurchaseResponse{}, classify(err)
	}

	if committed != nil {
		s.log(ctx).Info("purchase recorded",
			zap.String("shop_id", committed.shopID),
			zap.String("purchase_id", committed.purchase.ID),
			zap.String("purchase_no", committed.purchase.PurchaseNoFormatted),
			zap.String("supplier_id", committed.purchase.SupplierID),
			zap.String("subtotal", committed.purchase.Subtotal.StringFixed(2)),
			zap.String("due", committed.purchase.DueAmount.StringFixed(2)),
		)
	} else {
		s.log(ctx).Info("purchase request replayed", zap.String("purchase_id", resp.PurchaseID))
	}
	return resp, nil
}

func normalizePurchaseRequest(req domain.CreatePurchaseRequest) (purchaseRequest, error) {
	supplierID, err := docID("supplierId", req.SupplierID)
	if err != nil {
		return purchaseRequest{}, err
	}
	if len(req.Items) == 0 {
		return purchaseRequest{}, apperr.New(apperr.InvalidArgument, "purchase has no items")
	}
	items := make([]purchaseItem, 0, len(req.Items))
	for i, item := range req.Items {
		code, err := catalog.Clean(item.Barcode)
		if err != nil {
			return purchaseRequest{}, apperr.Newf(apperr.InvalidArgument, "items[%d]: %v", i, err)
		}
		if item.Qty <= 0 {
			return purchaseRequest{}, apperr.Newf(apperr.InvalidArgument, "items[%d]: qty must be greater than 0", i)
		}
		if item.Qty > domain.MaxLineQty {
			return purchaseRequest{}, apperr.Newf(apperr.InvalidArgument, "items[%d]: qty must not exceed %d", i, domain.MaxLineQty)
		}
		if item.PurchasePrice.IsNegative() {
			return purchaseRequest{}, apperr.Newf(apperr.InvalidArgument, "items[%d]: purchasePrice must not be negative", i)
		}
		items = append(items, purchaseItem{
			barcode:       code,
			name:          strings.TrimSpace(item.Name),
			qty:           item.Qty,
			purchasePrice: item.PurchasePrice,
		})
	}
	if req.PaidAmount.IsNegative() {
		return purchaseRequest{}, apperr.New(apperr.InvalidArgument, "paidAmount must not be negative")
	}
	key, err := normalizeIdempotencyKey(req.IdempotencyKey)
	if err != nil {
		return purchaseRequest{}, err
	}
	return purchaseRequest{
		supplierID:     supplierID,
		items:          items,
		paidAmount:     req.PaidAmount,
		idempotencyKey: key,
	}, nil
}

func (s *Service) readPurchase(ctx context.Context, tx store.Reader, in purchaseRequest) (purchaseReads, error) {
	caller, err := s.loadCaller(ctx, tx)
	if err != nil {
		return purchaseReads{}, err
	}
	shopID, err := requireOwnerShop(caller)
	if err != nil {
		return purchaseReads{}, err
	}

	reads := purchaseReads{
		caller:    caller,
		shopID:    shopID,
		inventory: make([]*store.Snapshot, len(in.items)),
		products:  make([]*store.Snapshot, len(in.items)),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := counter.Read(gctx, tx, shopID)
		reads.counters = c
		return err
	})
	g.Go(func() error {
		snap, err := tx.Get(gctx, domain.SupplierPath(shopID, in.supplierID))
		reads.supplier = snap
		return err
	})
	if in.idempotencyKey != "" {
		g.Go(func() error {
			snap, err := tx.Get(gctx, domain.RequestPath(shopID, in.idempotencyKey))
			reads.request = snap
			return err
		})
	}
	for i, item := range in.items {
		i, item := i, item
		g.Go(func() error {
			snap, err := catalog.Resolve(gctx, tx, domain.InventoryCollection(shopID), item.barcode)
			reads.inventory[i] = snap
			return err
		})
		g.Go(func() error {
			snap, err := catalog.Resolve(gctx, tx, domain.ProductsCollection, item.barcode)
			reads.products[i] = snap
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return purchaseReads{}, err
	}
	return reads, nil
}

func planPurchase(reads purchaseReads, in purchaseRequest, purchaseID string, now time.Time) (purchasePlan, error) {
	if !reads.supplier.Exists {
		return purchasePlan{}, apperr.Newf(apperr.NotFound, "supplier %s not found", in.supplierID)
	}
	var supplier domain.Supplier
	if err := reads.supplier.DataTo(&supplier); err != nil {
		return purchasePlan{}, err
	}
	if !supplier.IsActive {
		return purchasePlan{}, apperr.Newf(apperr.FailedPrecondition, "supplier %s is inactive", in.supplierID)
	}

	lines := make([]domain.PurchaseLine, 0, len(in.items))
	byPath := map[string]int{}
	var receipts []stockReceipt
	subtotal := decimal.Zero

	for i, item := range in.items {
		inv := reads.inventory[i]
		prod := reads.products[i]

		// Stock lands on the document a scan would find: the existing
		// inventory entry, else the catalog's key for the product.
		barcode := item.barcode
		switch {
		case inv.Exists:
			barcode = inv.ID
		case prod.Exists:
			barcode = prod.ID
		}
		path := domain.InventoryPath(reads.shopID, barcode)

		var product domain.Product
		if prod.Exists {
			if err := prod.DataTo(&product); err != nil {
				return purchasePlan{}, err
			}
		}
		name := item.name
		if name == "" {
			name = product.Name
		}
		if name == "" {
			name = barcode
		}

		if idx, ok := byPath[path]; ok {
			receipts[idx].qty += item.qty
			receipts[idx].purchasePrice = item.purchasePrice
		} else {
			byPath[path] = len(receipts)
			receipts = append(receipts, stockReceipt{
				path:          path,
				barcode:       barcode,
				qty:           item.qty,
				purchasePrice: item.purchasePrice,
				isNew:         !inv.Exists,
				sellingPrice:  product.MRP,
			})
		}

		amount := item.purchasePrice.Mul(decimal.NewFromInt(item.qty))
		lines = append(lines, domain.PurchaseLine{
			Barcode:       barcode,
			Name:          name,
			Qty:           item.qty,
			PurchasePrice: item.purchasePrice,
			Amount:        amount,
		})
		subtotal = subtotal.Add(amount)
	}

	due := subtotal.Sub(in.paidAmount)
	if due.IsNegative() {
		due = decimal.Zero
	}

	allocation := counter.Next(reads.counters, counter.Purchase, now.Year())
	purchase := domain.Purchase{
		ID:                  purchaseID,
		PurchaseNo:          allocation.Number,
		PurchaseNoFormatted: allocation.Formatted,
		SupplierID:          in.supplierID,
		SupplierName:        supplier.Name,
		Items:               lines,
		Subtotal:            subtotal,
		PaidAmount:          in.paidAmount,
		DueAmount:           due,
		CreatedBy:           reads.caller.ID,
	}
	purchaseDoc, err := encodeWithTimestamps(purchase, "createdAt")
	if err != nil {
		return purchasePlan{}, err
	}

	response := domain.CreatePurchaseResponse{
		Success:        true,
		PurchaseID:     purchaseID,
		PurchaseNo:     allocation.Formatted,
		PurchaseNumber: allocation.Number,
		Subtotal:       subtotal,
		DueAmount:      due,
	}
	plan := purchasePlan{
		shopID:      reads.shopID,
		allocation:  allocation,
		purchase:    purchase,
		purchaseDoc: purchaseDoc,
		receipts:    receipts,
		requestKey:  in.idempotencyKey,
		response:    response,
	}
	if in.idempotencyKey != "" {
		plan.requestDoc, err = encodeRequestRecord(requestRecord{Operation: opCreatePurchase, Purchase: &response})
		if err != nil {
			return purchasePlan{}, err
		}
	}
	return plan, nil
}

func (p purchasePlan) commit(w store.Writer) error {
	if err := p.allocation.Write(w, p.shopID); err != nil {
		return err
	}
	for _, r := range p.receipts {
		doc := map[string]any{
			"barcode":           r.barcode,
			"stock":             store.Increment(r.qty),
			"lastPurchasePrice": r.purchasePrice,
			"lastPurchaseDate":  store.ServerTimestamp,
			"supplierId":        p.purchase.SupplierID,
			"updatedAt":         store.ServerTimestamp,
		}
		if r.isNew {
			doc["sellingPrice"] = r.sellingPrice
			doc["purchasePrice"] = r.purchasePrice
			doc["expiry"] = ""
		}
		if err := w.SetMerge(r.path, doc); err != nil {
			return err
		}
	}
	if err := w.Create(domain.PurchasePath(p.shopID, p.purchase.ID), p.purchaseDoc); err != nil {
		return err
	}
	if p.purchase.DueAmount.IsPositive() {
		if err := w.Update(domain.SupplierPath(p.shopID, p.purchase.SupplierID), map[string]any{
			"purchaseDue": store.IncrementDecimal(p.purchase.DueAmount),
		}); err != nil {
			return err
		}
	}
	if p.requestKey != "" {
		return w.Create(domain.RequestPath(p.shopID, p.requestKey), p.requestDoc)
	}
	return nil
}
