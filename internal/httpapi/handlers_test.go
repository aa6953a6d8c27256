package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/identity"
	"billdesk/backend/internal/metrics"
	"billdesk/backend/internal/service"
	"billdesk/backend/internal/store/memory"
)

const testSecret = "handler-test-secret-handler-test-secret"

type testServer struct {
	api     *API
	handler http.Handler
	svc     *service.Service
	store   *memory.Store
}

// newTestAPI builds the full stack on the in-memory store: one owner with a
// shop, one stocked product and one supplier.
func newTestAPI(t *testing.T) *testServer {
	t.Helper()

	st := memory.New()
	tokens := identity.NewTokenIssuer(testSecret, time.Hour)
	m := metrics.New()
	svc := service.New(service.Deps{Store: st, Tokens: tokens, Metrics: m})

	ctx := context.Background()
	owner, err := svc.SignUpOwner(ctx, domain.SignUpRequest{Email: "owner@example.com", Password: "owner-pass", Name: "Owner"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	shop, err := svc.CreateShop(service.WithCaller(ctx, owner.UID), domain.CreateShopRequest{BusinessName: "Corner Store"})
	if err != nil {
		t.Fatalf("create shop: %v", err)
	}
	err = st.Seed(map[string]any{
		domain.ProductPath("8901234567890"): map[string]any{"name": "Soap", "mrp": "30"},
		domain.InventoryPath(shop.ID, "8901234567890"): map[string]any{
			"barcode": "8901234567890", "sellingPrice": "25", "purchasePrice": "18", "stock": 10,
		},
		domain.SupplierPath(shop.ID, "sup1"): map[string]any{
			"name": "Acme", "openingBalance": "0", "purchaseDue": "0", "isActive": true,
		},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	api := New(svc, tokens, Options{AllowedOrigin: "*", Metrics: m})
	return &testServer{api: api, handler: api.Handler(), svc: svc, store: st}
}

func (s *testServer) do(t *testing.T, method string, path string, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) signIn(t *testing.T, email string, password string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/auth/sign-in", "", domain.SignInRequest{Email: email, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("sign in %s: %d %s", email, rec.Code, rec.Body.String())
	}
	var resp domain.SignInResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode sign-in: %v", err)
	}
	return resp.AccessToken
}

type errorBody struct {
	Error struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	srv := newTestAPI(t)
	rec := srv.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestCreateBillOverHTTP(t *testing.T) {
	srv := newTestAPI(t)
	token := srv.signIn(t, "owner@example.com", "owner-pass")

	body := `{"items":[{"type":"BARCODE","barcode":"8901234567890","qty":4},{"type":"MANUAL","name":"Bag","qty":1,"rate":"5"}],"paymentType":"UPI"}`
	rec := srv.do(t, http.MethodPost, "/api/v1/rpc/createBill", token, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp domain.CreateBillResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.BillNo == "" || resp.BillNumber != 1 || resp.GrandTotal.String() != "105" {
		t.Fatalf("unexpected response %+v", resp)
	}

	receipt := srv.do(t, http.MethodGet, "/api/v1/bills/"+resp.BillID+"/receipt?format=escpos", token, nil)
	if receipt.Code != http.StatusOK || receipt.Header().Get("Content-Type") != "application/octet-stream" {
		t.Fatalf("unexpected receipt response %d %s", receipt.Code, receipt.Header().Get("Content-Type"))
	}
	if raw := receipt.Body.Bytes(); len(raw) < 2 || raw[0] != 0x1b || raw[1] != 0x40 {
		t.Fatalf("expected ESC/POS stream")
	}
}

func TestCreateBillErrorsMapToStatus(t *testing.T) {
	srv := newTestAPI(t)
	token := srv.signIn(t, "owner@example.com", "owner-pass")

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{name: "unknown field", body: `{"items":[],"discount":5}`, status: http.StatusBadRequest, kind: "invalid-argument"},
		{name: "unknown line type", body: `{"items":[{"type":"GIFT","qty":1}]}`, status: http.StatusBadRequest, kind: "invalid-argument"},
		{name: "extra line field", body: `{"items":[{"type":"BARCODE","barcode":"1","qty":1,"rate":"2"}]}`, status: http.StatusBadRequest, kind: "invalid-argument"},
		{name: "empty cart", body: `{"items":[]}`, status: http.StatusBadRequest, kind: "invalid-argument"},
		{name: "insufficient stock", body: `{"items":[{"type":"BARCODE","barcode":"8901234567890","qty":11}]}`, status: http.StatusPreconditionFailed, kind: "failed-precondition"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/api/v1/rpc/createBill", token, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if body := decodeError(t, rec); body.Error.Kind != tc.kind {
				t.Fatalf("expected kind %s, got %+v", tc.kind, body)
			}
		})
	}
}

func TestStaffFlowOverHTTP(t *testing.T) {
	srv := newTestAPI(t)
	owner := srv.signIn(t, "owner@example.com", "owner-pass")

	rec := srv.do(t, http.MethodPost, "/api/v1/rpc/createStaff", owner, domain.CreateStaffRequest{
		Email: "staff@example.com", Password: "staff-pass", Name: "Staff",
		Permissions: &domain.Permissions{Sales: true},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create staff: %d %s", rec.Code, rec.Body.String())
	}
	var created domain.CreateStaffResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	staff := srv.signIn(t, "staff@example.com", "staff-pass")
	rec = srv.do(t, http.MethodPost, "/api/v1/rpc/createPurchase", staff, domain.CreatePurchaseRequest{SupplierID: "sup1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("validation runs before authorization for empty purchases, got %d", rec.Code)
	}
	rec = srv.do(t, http.MethodPost, "/api/v1/rpc/createPurchase", staff,
		`{"supplierId":"sup1","items":[{"barcode":"8901234567890","qty":1,"purchasePrice":"10"}]}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("staff purchase must be forbidden, got %d", rec.Code)
	}
	rec = srv.do(t, http.MethodGet, "/api/v1/stats/daily", staff, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("staff without profit permission must be forbidden, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodPost, "/api/v1/rpc/deleteStaff", owner, domain.DeleteStaffRequest{StaffID: created.UID})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete staff: %d %s", rec.Code, rec.Body.String())
	}
	rec = srv.do(t, http.MethodPost, "/api/v1/rpc/createBill", staff, `{"items":[{"type":"MANUAL","name":"Tea","qty":1,"rate":"10"}]}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("a deleted staff token must no longer resolve to a profile, got %d", rec.Code)
	}
}

func TestSupplierUpdateRejectsOpeningBalance(t *testing.T) {
	srv := newTestAPI(t)
	owner := srv.signIn(t, "owner@example.com", "owner-pass")

	rec := srv.do(t, http.MethodPatch, "/api/v1/suppliers/sup1", owner, `{"openingBalance":"100"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	rec = srv.do(t, http.MethodPatch, "/api/v1/suppliers/sup1", owner, `{"phone":"12345"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestScanAndDailyStatsCSV(t *testing.T) {
	srv := newTestAPI(t)
	owner := srv.signIn(t, "owner@example.com", "owner-pass")

	rec := srv.do(t, http.MethodGet, "/api/v1/scan/8901234567890", owner, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("scan: %d %s", rec.Code, rec.Body.String())
	}
	var scan domain.ScanResult
	if err := json.NewDecoder(rec.Body).Decode(&scan); err != nil {
		t.Fatalf("decode scan: %v", err)
	}
	if scan.Product.Name != "Soap" || scan.Rate.String() != "25" {
		t.Fatalf("unexpected scan %+v", scan)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/stats/daily?format=csv", owner, nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Body.String(), "date,totalSales") {
		t.Fatalf("unexpected csv response %d %q", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestAPI(t)
	srv.do(t, http.MethodGet, "/healthz", "", nil)
	rec := srv.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "billdesk_http_requests_total") {
		t.Fatalf("expected http request metrics in output")
	}
}
