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

const opCreateBill = "createBill"

type billRequest struct {
	lines          []domain.CartLine
	paymentType    string
	customerName   string
	idempotencyKey string
}

// billLineReads holds the documents read for a BARCODE line; both are nil
// for MANUAL lines.
type billLineReads struct {
	inventory *store.Snapshot
	product   *store.Snapshot
}

type billReads struct {
	caller   domain.User
	shopID   string
	counters counter.Counters
	stats    *store.Snapshot
	request  *store.Snapshot
	lines    []billLineReads
}

type stockDecrement struct {
	path string
	qty  int64
}

// billPlan is the complete write set of one bill. planBill builds it from
// reads alone; commit only issues writes.
type billPlan struct {
	shopID     string
	allocation counter.Allocation
	bill       domain.Bill
	billDoc    map[string]any
	decrements []stockDecrement
	statsPath  string
	statsDoc   map[string]any
	dayTotal   decimal.Decimal
	requestKey string
	requestDoc map[string]any
	response   domain.CreateBillResponse
}

// CreateBill issues a bill for the caller's shop: it numbers the bill,
// decrements stock for catalog lines and adds the sale to today's stats, all
// in one transaction.
func (s *Service) CreateBill(ctx context.Context, req domain.CreateBillRequest) (resp domain.CreateBillResponse, err error) {
	started := s.clock()
	defer func() { s.observe(opCreateBill, started, err) }()

	if _, ok := CallerFromContext(ctx); !ok {
		return domain.CreateBillResponse{}, apperr.New(apperr.Unauthenticated, "authentication required")
	}
	in, err := normalizeBillRequest(req)
	if err != nil {
		return domain.CreateBillResponse{}, err
	}

	now := s.now()
	billID := xid.New("")
	var committed *billPlan
	err = s.runTx(ctx, opCreateBill, func(ctx context.Context, tx store.Tx) error {
		committed = nil
		reads, err := s.readBill(ctx, tx, in, now)
		if err != nil {
			return err
		}
		if reads.request != nil && reads.request.Exists {
			resp, err = replayBill(reads.request)
			return err
		}
		plan, err := planBill(reads, in, billID, now)
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
		return domain.CreateBillResponse{}, classify(err)
	}

	if committed != nil {
		s.log(ctx).Info("bill created",
			zap.String("shop_id", committed.shopID),
			zap.String("bill_id", committed.bill.ID),
			zap.String("bill_no", committed.bill.BillNoFormatted),
			zap.String("grand_total", committed.bill.GrandTotal.StringFixed(2)),
			zap.String("day_total", committed.dayTotal.StringFixed(2)),
			zap.Int("lines", len(committed.bill.Items)),
		)
	} else {
		s.log(ctx).Info("bill request replayed", zap.String("bill_id", resp.BillID), zap.String("bill_no", resp.BillNo))
	}
	return resp, nil
}

func normalizeBillRequest(req domain.CreateBillRequest) (billRequest, error) {
	if len(req.Items) == 0 {
		return billRequest{}, apperr.New(apperr.InvalidArgument, "cart is empty")
	}
	lines := make([]domain.CartLine, 0, len(req.Items))
	for i, line := range req.Items {
		switch l := line.(type) {
		case domain.BarcodeLine:
			code, err := catalog.Clean(l.Barcode)
			if err != nil {
				return billRequest{}, apperr.Newf(apperr.InvalidArgument, "items[%d]: %v", i, err)
			}
			if l.Qty <= 0 {
				return billRequest{}, apperr.Newf(apperr.InvalidArgument, "items[%d]: qty must be greater than 0", i)
			}
			if l.Qty > domain.MaxLineQty {
				return billRequest{}, apperr.Newf(apperr.InvalidArgument, "items[%d]: qty must not exceed %d", i, domain.MaxLineQty)
			}
			lines = append(lines, domain.BarcodeLine{Barcode: code, Qty: l.Qty})
		case domain.ManualLine:
			name := strings.TrimSpace(l.Name)
			if name == "" {
				return billRequest{}, apperr.Newf(apperr.InvalidArgument, "items[%d]: name is required", i)
			}
			if l.Qty < 1 {
				return billRequest{}, apperr.Newf(apperr.InvalidArgument, "items[%d]: qty must be at least 1", i)
			}
			if l.Qty > domain.MaxLineQty {
				return billRequest{}, apperr.Newf(apperr.InvalidArgument, "items[%d]: qty must not exceed %d", i, domain.MaxLineQty)
			}
			if l.Rate.IsNegative() {
				return billRequest{}, apperr.Newf(apperr.InvalidArgument, "items[%d]: rate must not be negative", i)
			}
			lines = append(lines, domain.ManualLine{Name: name, Qty: l.Qty, Rate: l.Rate})
		default:
			return billRequest{}, apperr.Newf(apperr.InvalidArgument, "items[%d]: unsupported item", i)
		}
	}

	paymentType := strings.ToUpper(strings.TrimSpace(req.PaymentType))
	switch paymentType {
	case "":
		paymentType = domain.PaymentCash
	case domain.PaymentCash, domain.PaymentUPI, domain.PaymentCard:
	default:
		return billRequest{}, apperr.Newf(apperr.InvalidArgument, "unsupported payment type %q", req.PaymentType)
	}

	customerName := strings.TrimSpace(req.CustomerName)
	if customerName == "" {
		customerName = domain.DefaultCustomerName
	}

	key, err := normalizeIdempotencyKey(req.IdempotencyKey)
	if err != nil {
		return billRequest{}, err
	}

	return billRequest{
		lines:          lines,
		paymentType:    paymentType,
		customerName:   customerName,
		idempotencyKey: key,
	}, nil
}

// readBill issues every read the bill needs. It gets a Reader, not a Tx, so
// it cannot write.
func (s *Service) readBill(ctx context.Context, tx store.Reader, in billRequest, now time.Time) (billReads, error) {
	caller, err := s.loadCaller(ctx, tx)
	if err != nil {
		return billReads{}, err
	}
	shopID, err := requireShop(caller)
	if err != nil {
		return billReads{}, err
	}

	reads := billReads{
		caller: caller,
		shopID: shopID,
		lines:  make([]billLineReads, len(in.lines)),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := counter.Read(gctx, tx, shopID)
		reads.counters = c
		return err
	})
	g.Go(func() error {
		snap, err := tx.Get(gctx, domain.DailyStatsPath(shopID, now))
		reads.stats = snap
		return err
	})
	if in.idempotencyKey != "" {
		g.Go(func() error {
			snap, err := tx.Get(gctx, domain.RequestPath(shopID, in.idempotencyKey))
			reads.request = snap
			return err
		})
	}
	for i, line := range in.lines {
		i := i
		l, ok := line.(domain.BarcodeLine)
		if !ok {
			continue
		}
		g.Go(func() error {
			snap, err := catalog.Resolve(gctx, tx, domain.InventoryCollection(shopID), l.Barcode)
			reads.lines[i].inventory = snap
			return err
		})
		g.Go(func() error {
			snap, err := catalog.Resolve(gctx, tx, domain.ProductsCollection, l.Barcode)
			reads.lines[i].product = snap
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return billReads{}, err
	}
	return reads, nil
}

func planBill(reads billReads, in billRequest, billID string, now time.Time) (billPlan, error) {
	items := make([]domain.BillLine, 0, len(in.lines))
	demand := map[string]int64{}
	var order []string
	subtotal := decimal.Zero
	totalProfit := decimal.Zero
	var itemsSold int64

	for i, line := range in.lines {
		qty := decimal.NewFromInt(line.Quantity())
		switch l := line.(type) {
		case domain.BarcodeLine:
			rd := reads.lines[i]
			if !rd.inventory.Exists {
				return billPlan{}, apperr.Newf(apperr.FailedPrecondition, "item %s is not in shop inventory", l.Barcode)
			}
			if !rd.product.Exists {
				return billPlan{}, apperr.Newf(apperr.NotFound, "product %s not found", l.Barcode)
			}
			var item domain.InventoryItem
			if err := rd.inventory.DataTo(&item); err != nil {
				return billPlan{}, err
			}
			var product domain.Product
			if err := rd.product.DataTo(&product); err != nil {
				return billPlan{}, err
			}
			name := product.Name
			if name == "" {
				name = rd.product.ID
			}

			path := rd.inventory.Path
			if _, seen := demand[path]; !seen {
				order = append(order, path)
			}
			// Compared before adding so the running demand never overflows.
			if l.Qty > item.Stock-demand[path] {
				return billPlan{}, apperr.Newf(apperr.FailedPrecondition,
					"Insufficient stock for %s: %d available, %d requested", name, item.Stock, demand[path]+l.Qty)
			}
			demand[path] += l.Qty

			rate := item.SellingPrice
			amount := rate.Mul(qty)
			profit := rate.Sub(item.UnitCost()).Mul(qty)
			items = append(items, domain.BillLine{
				Type:    domain.LineBarcode,
				Barcode: rd.inventory.ID,
				Name:    name,
				Qty:     l.Qty,
				Rate:    rate,
				Amount:  amount,
				Profit:  profit,
			})
			subtotal = subtotal.Add(amount)
			totalProfit = totalProfit.Add(profit)
		case domain.ManualLine:
			amount := l.Rate.Mul(qty)
			items = append(items, domain.BillLine{
				Type:   domain.LineManual,
				Name:   l.Name,
				Qty:    l.Qty,
				Rate:   l.Rate,
				Amount: amount,
				Profit: decimal.Zero,
			})
			subtotal = subtotal.Add(amount)
		}
		itemsSold += line.Quantity()
	}

	allocation := counter.Next(reads.counters, counter.Bill, now.Year())
	bill := domain.Bill{
		ID:              billID,
		BillNo:          allocation.Number,
		BillNoFormatted: allocation.Formatted,
		CustomerName:    in.customerName,
		PaymentType:     in.paymentType,
		Items:           items,
		GrandTotal:      subtotal,
		Profit:          totalProfit,
		CreatedBy:       reads.caller.ID,
	}
	billDoc, err := encodeWithTimestamps(bill, "createdAt")
	if err != nil {
		return billPlan{}, err
	}

	decrements := make([]stockDecrement, 0, len(order))
	for _, path := range order {
		decrements = append(decrements, stockDecrement{path: path, qty: demand[path]})
	}

	dayTotal := subtotal
	if reads.stats != nil && reads.stats.Exists {
		var stats domain.DailyStats
		if err := reads.stats.DataTo(&stats); err != nil {
			return billPlan{}, err
		}
		dayTotal = stats.TotalSales.Add(subtotal)
	}

	response := domain.CreateBillResponse{
		Success:    true,
		BillID:     billID,
		BillNo:     allocation.Formatted,
		BillNumber: allocation.Number,
		GrandTotal: subtotal,
	}
	plan := billPlan{
		shopID:     reads.shopID,
		allocation: allocation,
		bill:       bill,
		billDoc:    billDoc,
		decrements: decrements,
		statsPath:  domain.DailyStatsPath(reads.shopID, now),
		statsDoc: map[string]any{
			"date":           domain.StatsDate(now),
			"totalSales":     store.IncrementDecimal(subtotal),
			"totalProfit":    store.IncrementDecimal(totalProfit),
			"totalBills":     store.Increment(1),
			"totalItemsSold": store.Increment(itemsSold),
			"lastUpdated":    store.ServerTimestamp,
		},
		dayTotal:   dayTotal,
		requestKey: in.idempotencyKey,
		response:   response,
	}
	if in.idempotencyKey != "" {
		plan.requestDoc, err = encodeRequestRecord(requestRecord{Operation: opCreateBill, Bill: &response})
		if err != nil {
			return billPlan{}, err
		}
	}
	return plan, nil
}

// commit issues the planned writes, counter first.
func (p billPlan) commit(w store.Writer) error {
	if err := p.allocation.Write(w, p.shopID); err != nil {
		return err
	}
	for _, d := range p.decrements {
		if err := w.Update(d.path, map[string]any{
			"stock":     store.Increment(-d.qty),
			"updatedAt": store.ServerTimestamp,
		}); err != nil {
			return err
		}
	}
	if err := w.Create(domain.BillPath(p.shopID, p.bill.ID), p.billDoc); err != nil {
		return err
	}
	if err := w.SetMerge(p.statsPath, p.statsDoc); err != nil {
		return err
	}
	if p.requestKey != "" {
		return w.Create(domain.RequestPath(p.shopID, p.requestKey), p.requestDoc)
	}
	return nil
}
