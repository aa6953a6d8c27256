package service

import (
	"encoding/base64"
	"strings"
	"testing"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/domain"
)

func TestListBillsNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		if _, err := env.svc.CreateBill(as(testOwner), billFor(domain.ManualLine{Name: "Tea", Qty: 1, Rate: dec("10")})); err != nil {
			t.Fatalf("bill %d: %v", i, err)
		}
	}

	bills, err := env.svc.ListBills(as(testOwner), 2)
	if err != nil {
		t.Fatalf("list bills: %v", err)
	}
	if len(bills) != 2 || bills[0].BillNoFormatted != "2025-00003" || bills[1].BillNoFormatted != "2025-00002" {
		t.Fatalf("unexpected bills %+v", bills)
	}

	_, err = env.svc.ListBills(as(testStaff), 10)
	expectKind(t, err, apperr.PermissionDenied)
}

func TestListBillsPagesByCreationTime(t *testing.T) {
	env := newTestEnv(t)
	bill := func(no string, createdAt string) map[string]any {
		return map[string]any{"billNoFormatted": no, "grandTotal": "10", "createdAt": createdAt}
	}
	if err := env.store.Seed(map[string]any{
		domain.BillPath(testShop, "old"):   bill("2025-00009", "2025-01-29T10:00:00Z"),
		domain.BillPath(testShop, "tie-a"): bill("2025-00003", "2025-01-31T09:00:00Z"),
		domain.BillPath(testShop, "tie-b"): bill("2025-00004", "2025-01-31T09:00:00Z"),
		domain.BillPath(testShop, "new"):   bill("2025-00001", "2025-01-31T09:00:00.5Z"),
		domain.BillPath("s2", "other"):     bill("2025-00099", "2025-01-31T11:00:00Z"),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	bills, err := env.svc.ListBills(as(testOwner), 3)
	if err != nil {
		t.Fatalf("list bills: %v", err)
	}
	var got []string
	for _, b := range bills {
		got = append(got, b.ID)
	}
	if strings.Join(got, ",") != "new,tie-b,tie-a" {
		t.Fatalf("unexpected page %v", got)
	}
}

func TestListPurchasesOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.CreatePurchase(as(testOwner), domain.CreatePurchaseRequest{
		SupplierID: "sup1",
		Items:      []domain.PurchaseItemRequest{{Barcode: penBarcode, Qty: 1, PurchasePrice: dec("4")}},
	}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	purchases, err := env.svc.ListPurchases(as(testOwner), 0)
	if err != nil || len(purchases) != 1 {
		t.Fatalf("list purchases: %v %+v", err, purchases)
	}
	_, err = env.svc.ListPurchases(as(testStaff), 0)
	expectKind(t, err, apperr.PermissionDenied)
}

func TestGetDailyStats(t *testing.T) {
	env := newTestEnv(t)

	empty, err := env.svc.GetDailyStats(as(testOwner), "2025-01-30")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if empty.Date != "2025-01-30" || !empty.TotalSales.IsZero() || empty.TotalBills != 0 {
		t.Fatalf("a day without sales must report zeros, got %+v", empty)
	}

	if _, err := env.svc.CreateBill(as(testStaff), billFor(domain.BarcodeLine{Barcode: soapBarcode, Qty: 2})); err != nil {
		t.Fatalf("bill: %v", err)
	}
	today, err := env.svc.GetDailyStats(as(testOwner), "")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if today.Date != "2025-01-31" || !today.TotalSales.Equal(dec("50")) || !today.TotalProfit.Equal(dec("14")) {
		t.Fatalf("unexpected stats %+v", today)
	}

	_, err = env.svc.GetDailyStats(as(testOwner), "31-01-2025")
	expectKind(t, err, apperr.InvalidArgument)
	_, err = env.svc.GetDailyStats(as(testStaff), "")
	expectKind(t, err, apperr.PermissionDenied)
}

func TestBuildReceipt(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.svc.CreateBill(as(testStaff), domain.CreateBillRequest{
		Items: domain.CartLines{
			domain.BarcodeLine{Barcode: soapBarcode, Qty: 2},
			domain.ManualLine{Name: "Carry bag", Qty: 1, Rate: dec("5")},
		},
		PaymentType: "card",
	})
	if err != nil {
		t.Fatalf("bill: %v", err)
	}

	receipt, err := env.svc.BuildReceipt(as(testStaff), resp.BillID)
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	for _, want := range []string{"Asha Stores", "Bill No : 2025-00001", "Soap", "2 x 25.00 = 50.00", "Total   : 55.00", "Payment : CARD", domain.DefaultBillMessage} {
		if !strings.Contains(receipt.PreviewText, want) {
			t.Fatalf("preview missing %q:\n%s", want, receipt.PreviewText)
		}
	}
	raw, err := base64.StdEncoding.DecodeString(receipt.EscposBase64)
	if err != nil {
		t.Fatalf("decode escpos: %v", err)
	}
	if raw[0] != 0x1b || raw[1] != 0x40 || raw[len(raw)-4] != 0x1d {
		t.Fatalf("escpos stream must start with init and end with cut")
	}
	if receipt.FileName != "receipt-2025-00001.bin" {
		t.Fatalf("unexpected file name %s", receipt.FileName)
	}

	_, err = env.svc.BuildReceipt(as(testStaff), "missing")
	expectKind(t, err, apperr.NotFound)
}
