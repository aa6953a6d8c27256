package client

import (
	"context"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/domain"
)

// CartItem is one line on the till. Name, Rate and Amount are for display;
// only the identifying fields travel to the server.
type CartItem struct {
	Type    domain.LineType
	Barcode string
	Name    string
	Qty     int64
	Rate    decimal.Decimal
	MRP     decimal.Decimal
}

func (i CartItem) Amount() decimal.Decimal {
	return i.Rate.Mul(decimal.NewFromInt(i.Qty))
}

// BillSummary is what a receipt screen needs after checkout.
type BillSummary struct {
	BillID       string
	BillNo       string
	BillNumber   int64
	CustomerName string
	PaymentType  string
	Items        []CartItem
	GrandTotal   decimal.Decimal
	Duplicate    bool
}

// Cart collects scanned and manual lines until checkout. Stock checks here
// are advisory; the server decides.
type Cart struct {
	client *Client

	mu           sync.Mutex
	items        []CartItem
	customerName string
	paymentType  string
	// checkingOut is set while a Checkout call is in flight; the cart is
	// frozen until it returns.
	checkingOut bool
}

var errCheckoutInProgress = apperr.New(apperr.FailedPrecondition, "checkout in progress")

func NewCart(c *Client) *Cart {
	return &Cart{client: c, customerName: "Walk-in", paymentType: "CASH"}
}

func (c *Cart) SetCustomerName(name string) {
	c.mu.Lock()
	c.customerName = name
	c.mu.Unlock()
}

func (c *Cart) SetPaymentType(paymentType string) {
	c.mu.Lock()
	c.paymentType = paymentType
	c.mu.Unlock()
}

// AddScanned looks code up and adds one unit, merging with an earlier scan
// of the same item.
func (c *Cart) AddScanned(ctx context.Context, code string) (CartItem, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return CartItem{}, apperr.New(apperr.InvalidArgument, "barcode is required")
	}
	scan, err := c.client.ScanLookup(ctx, code)
	if err != nil {
		return CartItem{}, err
	}
	if scan.Inventory == nil {
		return CartItem{}, apperr.New(apperr.FailedPrecondition, "add this product to your shop inventory first")
	}
	barcode := scan.Inventory.Barcode
	if barcode == "" {
		barcode = code
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.checkingOut {
		return CartItem{}, errCheckoutInProgress
	}

	idx := c.indexOf(barcode)
	inCart := int64(0)
	if idx >= 0 {
		inCart = c.items[idx].Qty
	}
	if inCart+1 > scan.Inventory.Stock {
		return CartItem{}, apperr.Newf(apperr.FailedPrecondition, "only %d available", scan.Inventory.Stock)
	}
	if idx >= 0 {
		c.items[idx].Qty++
		return c.items[idx], nil
	}
	item := CartItem{
		Type:    domain.LineBarcode,
		Barcode: barcode,
		Name:    scan.Product.Name,
		Qty:     1,
		Rate:    scan.Rate,
		MRP:     scan.Product.MRP,
	}
	if item.Name == "" {
		item.Name = "Item"
	}
	c.items = append(c.items, item)
	return item, nil
}

func (c *Cart) AddManual(name string, qty int64, rate decimal.Decimal) (CartItem, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return CartItem{}, apperr.New(apperr.InvalidArgument, "item name required")
	case qty < 1:
		return CartItem{}, apperr.New(apperr.InvalidArgument, "valid quantity required")
	case rate.IsNegative():
		return CartItem{}, apperr.New(apperr.InvalidArgument, "valid rate required")
	}
	item := CartItem{Type: domain.LineManual, Name: name, Qty: qty, Rate: rate}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.checkingOut {
		return CartItem{}, errCheckoutInProgress
	}
	c.items = append(c.items, item)
	return item, nil
}

// UpdateQty sets the quantity of line index; zero or less removes it.
func (c *Cart) UpdateQty(index int, qty int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.checkingOut {
		return errCheckoutInProgress
	}
	if index < 0 || index >= len(c.items) {
		return apperr.Newf(apperr.InvalidArgument, "no cart line %d", index)
	}
	if qty <= 0 {
		c.items = append(c.items[:index], c.items[index+1:]...)
		return nil
	}
	c.items[index].Qty = qty
	return nil
}

func (c *Cart) Items() []CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CartItem(nil), c.items...)
}

// Total is the display total; the bill total is computed by the server.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := decimal.Zero
	for _, item := range c.items {
		total = total.Add(item.Amount())
	}
	return total
}

// Checkout submits the cart as one bill. Edits are rejected while the call
// is in flight, so what is cleared on success is exactly what was billed. On
// failure the cart is left untouched and the error keeps its kind. Nothing
// is retried: resubmitting is the caller's decision, and idempotencyKey
// makes a resubmission safe.
func (c *Cart) Checkout(ctx context.Context, idempotencyKey string) (BillSummary, error) {
	c.mu.Lock()
	if c.checkingOut {
		c.mu.Unlock()
		return BillSummary{}, errCheckoutInProgress
	}
	if len(c.items) == 0 {
		c.mu.Unlock()
		return BillSummary{}, apperr.New(apperr.InvalidArgument, "add at least one item")
	}
	c.checkingOut = true
	items := append([]CartItem(nil), c.items...)
	customer := strings.TrimSpace(c.customerName)
	payment := c.paymentType
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.checkingOut = false
		c.mu.Unlock()
	}()

	if customer == "" {
		customer = "Walk-in"
	}

	lines := make(domain.CartLines, 0, len(items))
	for _, item := range items {
		if item.Type == domain.LineManual {
			lines = append(lines, domain.ManualLine{Name: item.Name, Qty: item.Qty, Rate: item.Rate})
			continue
		}
		lines = append(lines, domain.BarcodeLine{Barcode: item.Barcode, Qty: item.Qty})
	}

	resp, err := c.client.CreateBill(ctx, domain.CreateBillRequest{
		Items:          lines,
		PaymentType:    payment,
		CustomerName:   customer,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return BillSummary{}, err
	}

	c.mu.Lock()
	c.items = nil
	c.customerName = "Walk-in"
	c.paymentType = "CASH"
	c.mu.Unlock()

	return BillSummary{
		BillID:       resp.BillID,
		BillNo:       resp.BillNo,
		BillNumber:   resp.BillNumber,
		CustomerName: customer,
		PaymentType:  strings.ToUpper(strings.TrimSpace(payment)),
		Items:        items,
		GrandTotal:   resp.GrandTotal,
		Duplicate:    resp.Duplicate,
	}, nil
}

func (c *Cart) indexOf(barcode string) int {
	for i, item := range c.items {
		if item.Type == domain.LineBarcode && item.Barcode == barcode {
			return i
		}
	}
	return -1
}

// PurchaseDraft collects stock received from one supplier.
type PurchaseDraft struct {
	client *Client

	mu         sync.Mutex
	supplierID string
	items      []domain.PurchaseItemRequest
	paid       decimal.Decimal
}

func NewPurchaseDraft(c *Client, supplierID string) *PurchaseDraft {
	return &PurchaseDraft{client: c, supplierID: supplierID}
}

// Add records qty units at price. A repeated barcode adds to the earlier
// line and takes the newer price.
func (d *PurchaseDraft) Add(barcode string, qty int64, price decimal.Decimal) error {
	barcode = strings.TrimSpace(barcode)
	switch {
	case barcode == "":
		return apperr.New(apperr.InvalidArgument, "barcode is required")
	case qty <= 0:
		return apperr.New(apperr.InvalidArgument, "quantity must be positive")
	case price.IsNegative():
		return apperr.New(apperr.InvalidArgument, "purchase price must not be negative")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.items {
		if d.items[i].Barcode == barcode {
			d.items[i].Qty += qty
			d.items[i].PurchasePrice = price
			return nil
		}
	}
	d.items = append(d.items, domain.PurchaseItemRequest{Barcode: barcode, Qty: qty, PurchasePrice: price})
	return nil
}

func (d *PurchaseDraft) SetPaid(amount decimal.Decimal) {
	d.mu.Lock()
	d.paid = amount
	d.mu.Unlock()
}

func (d *PurchaseDraft) Items() []domain.PurchaseItemRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.PurchaseItemRequest(nil), d.items...)
}

func (d *PurchaseDraft) Subtotal() decimal.Decimal {
	d.mu.Lock()
	defer d.mu.Unlock()
	total := decimal.Zero
	for _, item := range d.items {
		total = total.Add(item.PurchasePrice.Mul(decimal.NewFromInt(item.Qty)))
	}
	return total
}

// Submit sends the draft and clears it on success.
func (d *PurchaseDraft) Submit(ctx context.Context, idempotencyKey string) (domain.CreatePurchaseResponse, error) {
	d.mu.Lock()
	req := domain.CreatePurchaseRequest{
		SupplierID:     d.supplierID,
		Items:          append([]domain.PurchaseItemRequest(nil), d.items...),
		PaidAmount:     d.paid,
		IdempotencyKey: idempotencyKey,
	}
	d.mu.Unlock()

	if len(req.Items) == 0 {
		return domain.CreatePurchaseResponse{}, apperr.New(apperr.InvalidArgument, "add at least one item")
	}
	resp, err := d.client.CreatePurchase(ctx, req)
	if err != nil {
		return domain.CreatePurchaseResponse{}, err
	}

	d.mu.Lock()
	d.items = nil
	d.paid = decimal.Zero
	d.mu.Unlock()
	return resp, nil
}
