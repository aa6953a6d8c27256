package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/cache"
	"billdesk/backend/internal/catalog"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/identity"
	"billdesk/backend/internal/metrics"
	"billdesk/backend/internal/store"
	"billdesk/backend/internal/store/memory"
)

const (
	testShop        = "s1"
	testOwner       = "owner-1"
	testStaff       = "staff-1"
	testStaffOff    = "staff-off"
	testOwnerNoShop = "owner-2"
	soapBarcode     = "8901234567890"
	penBarcode      = "123"
)

func testClock() time.Time {
	return time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)
}

type testEnv struct {
	svc   *Service
	store *memory.Store
	cache *cache.MemoryProductCache
}

func newTestEnv(t *testing.T, opts ...memory.Option) *testEnv {
	t.Helper()
	st := memory.New(append([]memory.Option{memory.WithClock(testClock)}, opts...)...)
	shopID := testShop
	staffPerms := domain.Permissions{Sales: true}
	err := st.Seed(map[string]any{
		domain.UserPath(testOwner): domain.User{
			Name: "Asha", Email: "asha@example.com", Role: domain.RoleOwner,
			ShopID: &shopID, IsActive: true, Permissions: domain.AllPermissions(),
		},
		domain.UserPath(testStaff): domain.User{
			Name: "Ravi", Email: "ravi@example.com", Role: domain.RoleStaff,
			ShopID: &shopID, IsActive: true, Permissions: staffPerms,
		},
		domain.UserPath(testStaffOff): domain.User{
			Name: "Old", Email: "old@example.com", Role: domain.RoleStaff,
			ShopID: &shopID, IsActive: false, Permissions: staffPerms,
		},
		domain.UserPath(testOwnerNoShop): domain.User{
			Name: "Nina", Email: "nina@example.com", Role: domain.RoleOwner,
			IsActive: true, Permissions: domain.AllPermissions(),
		},
		domain.ShopPath(testShop): domain.Shop{
			ID: testShop, OwnerID: testOwner, BusinessName: "Asha Stores",
			Phone: "98450 00000", Address: "MG Road",
		},
		domain.ProductPath(soapBarcode): map[string]any{"name": "Soap", "mrp": "30", "gstPercent": "18"},
		domain.ProductPath(penBarcode):  map[string]any{"name": "Pen", "mrp": "10"},
		domain.ProductPath("777"):       map[string]any{"name": "Unstocked", "mrp": "5"},
		domain.InventoryPath(testShop, soapBarcode): map[string]any{
			"barcode": soapBarcode, "sellingPrice": "25", "purchasePrice": "18", "stock": 10,
		},
		domain.InventoryPath(testShop, penBarcode): map[string]any{
			"barcode": penBarcode, "sellingPrice": "20", "purchasePrice": "12", "stock": 50,
		},
		domain.SupplierPath(testShop, "sup1"): map[string]any{
			"name": "Acme Traders", "openingBalance": "0", "purchaseDue": "0", "isActive": true,
		},
		domain.SupplierPath(testShop, "sup-off"): map[string]any{
			"name": "Gone Ltd", "openingBalance": "0", "purchaseDue": "0", "isActive": false,
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	productCache := cache.NewMemoryProductCache()
	svc := New(Deps{
		Store:    st,
		Identity: identity.NewStoreProvider(st),
		Tokens:   identity.NewTokenIssuer("test-secret-test-secret-test-secret", time.Hour),
		Catalog:  catalog.New(st, productCache, time.Minute, nil),
		Metrics:  metrics.New(),
		Clock:    testClock,
	})
	return &testEnv{svc: svc, store: st, cache: productCache}
}

func as(uid string) context.Context {
	return WithCaller(context.Background(), uid)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (e *testEnv) snap(t *testing.T, path string) *store.Snapshot {
	t.Helper()
	snap, err := e.store.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	return snap
}

func (e *testEnv) decode(t *testing.T, path string, v any) {
	t.Helper()
	snap := e.snap(t, path)
	if !snap.Exists {
		t.Fatalf("expected %s to exist", path)
	}
	if err := snap.DataTo(v); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func (e *testEnv) stock(t *testing.T, barcode string) int64 {
	t.Helper()
	var item domain.InventoryItem
	e.decode(t, domain.InventoryPath(testShop, barcode), &item)
	return item.Stock
}

func (e *testEnv) count(t *testing.T, collection string) int {
	t.Helper()
	snaps, err := e.store.List(context.Background(), collection)
	if err != nil {
		t.Fatalf("list %s: %v", collection, err)
	}
	return len(snaps)
}

func expectKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

func TestLoadCallerRules(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		ctx  context.Context
		kind apperr.Kind
	}{
		{name: "no caller", ctx: context.Background(), kind: apperr.Unauthenticated},
		{name: "unknown profile", ctx: as("ghost"), kind: apperr.NotFound},
		{name: "inactive staff", ctx: as(testStaffOff), kind: apperr.PermissionDenied},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.loadCaller(tc.ctx, env.store)
			expectKind(t, err, tc.kind)
		})
	}

	user, err := env.svc.loadCaller(as(testStaff), env.store)
	if err != nil {
		t.Fatalf("load active staff: %v", err)
	}
	if user.ID != testStaff || user.Shop() != testShop {
		t.Fatalf("unexpected caller %+v", user)
	}
}

func TestRequireOwnerShopChecksRoleFirst(t *testing.T) {
	staff := domain.User{Role: domain.RoleStaff}
	if _, err := requireOwnerShop(staff); !apperr.Is(err, apperr.PermissionDenied) {
		t.Fatalf("staff without shop must be permission-denied, got %v", err)
	}
	owner := domain.User{Role: domain.RoleOwner}
	if _, err := requireOwnerShop(owner); !apperr.Is(err, apperr.FailedPrecondition) {
		t.Fatalf("owner without shop must be failed-precondition, got %v", err)
	}
}

func TestDocID(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{value: "sup1", ok: true},
		{value: "  sup1 ", ok: true},
		{value: "", ok: false},
		{value: "a/b", ok: false},
	}
	for _, tc := range tests {
		_, err := docID("id", tc.value)
		if (err == nil) != tc.ok {
			t.Fatalf("docID(%q) err=%v, want ok=%v", tc.value, err, tc.ok)
		}
	}
}
