package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
)

// BuildReceipt renders a stored bill for a thermal printer, plus a plain
// text preview of the same lines.
func (s *Service) BuildReceipt(ctx context.Context, billID string) (domain.Receipt, error) {
	billID, err := docID("billId", billID)
	if err != nil {
		return domain.Receipt{}, err
	}
	caller, err := s.loadCaller(ctx, s.store)
	if err != nil {
		return domain.Receipt{}, classify(err)
	}
	shopID, err := requireShop(caller)
	if err != nil {
		return domain.Receipt{}, err
	}

	var shopSnap, billSnap *store.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, err := s.store.Get(gctx, domain.ShopPath(shopID))
		shopSnap = snap
		return err
	})
	g.Go(func() error {
		snap, err := s.store.Get(gctx, domain.BillPath(shopID, billID))
		billSnap = snap
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Receipt{}, classify(err)
	}
	if !billSnap.Exists {
		return domain.Receipt{}, apperr.Newf(apperr.NotFound, "bill %s not found", billID)
	}
	var bill domain.Bill
	if err := billSnap.DataTo(&bill); err != nil {
		return domain.Receipt{}, classify(err)
	}
	var shop domain.Shop
	if shopSnap.Exists {
		if err := shopSnap.DataTo(&shop); err != nil {
			return domain.Receipt{}, classify(err)
		}
	}

	lines := receiptLines(shop, bill, s.location)
	escpos := []byte{0x1b, 0x40}
	for _, line := range lines {
		escpos = append(escpos, []byte(line)...)
		escpos = append(escpos, '\n')
	}
	escpos = append(escpos, []byte{0x1d, 0x56, 0x41, 0x10}...)

	return domain.Receipt{
		BillID:       billID,
		BillNo:       bill.BillNoFormatted,
		PreviewText:  strings.Join(lines, "\n"),
		EscposBase64: base64.StdEncoding.EncodeToString(escpos),
		FileName:     fmt.Sprintf("receipt-%s.bin", bill.BillNoFormatted),
	}, nil
}

func receiptLines(shop domain.Shop, bill domain.Bill, loc *time.Location) []string {
	lines := []string{}
	if shop.BusinessName != "" {
		lines = append(lines, shop.BusinessName)
	}
	if shop.Address != "" {
		lines = append(lines, shop.Address)
	}
	if shop.Phone != "" {
		lines = append(lines, "Ph: "+shop.Phone)
	}
	if shop.GSTNumber != "" {
		lines = append(lines, "GSTIN: "+shop.GSTNumber)
	}
	lines = append(lines,
		"================================",
		"Bill No : "+bill.BillNoFormatted,
		"Date    : "+bill.CreatedAt.In(loc).Format("2006-01-02 15:04"),
		"Customer: "+bill.CustomerName,
		"--------------------------------",
	)
	for _, item := range bill.Items {
		lines = append(lines, item.Name)
		lines = append(lines, fmt.Sprintf("  %d x %s = %s", item.Qty, item.Rate.StringFixed(2), item.Amount.StringFixed(2)))
	}
	message := strings.TrimSpace(shop.BillMessage)
	if message == "" {
		message = domain.DefaultBillMessage
	}
	lines = append(lines,
		"--------------------------------",
		"Total   : "+bill.GrandTotal.StringFixed(2),
		"Payment : "+bill.PaymentType,
		"================================",
		message,
		"",
	)
	return lines
}
