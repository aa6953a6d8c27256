package httpapi

import (
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/domain"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req domain.SignUpRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	resp, err := a.service.SignUpOwner(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if !a.signInLimiter.Allow(clientKey(r)) {
		writeStatus(w, http.StatusTooManyRequests, "resource-exhausted", "too many sign-in attempts")
		return
	}
	var req domain.SignInRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	resp, err := a.service.SignIn(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBillRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	resp, err := a.service.CreateBill(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req domain.CreatePurchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	resp, err := a.service.CreatePurchase(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCreateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateStaffRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	resp, err := a.service.CreateStaff(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDeleteStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.DeleteStaffRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.service.DeleteStaff(r.Context(), req); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleCreateShop(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateShopRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	shop, err := a.service.CreateShop(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"shop": shop})
}

func (a *API) handleListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := a.service.ListStaff(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": staff})
}

func (a *API) handleUpdateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateStaffRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.service.UpdateStaff(r.Context(), chi.URLParam(r, "id"), req); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleUpsertProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.UpsertProductRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	product, err := a.service.UpsertProduct(r.Context(), chi.URLParam(r, "barcode"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.ScanLookup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleSetInventory(w http.ResponseWriter, r *http.Request) {
	var req domain.SetInventoryRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	item, err := a.service.SetInventoryItem(r.Context(), chi.URLParam(r, "barcode"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

func (a *API) handleDeleteInventory(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteInventoryItem(r.Context(), chi.URLParam(r, "barcode")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleListSuppliers(w http.ResponseWriter, r *http.Request) {
	suppliers, err := a.service.ListSuppliers(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
}

func (a *API) handleCreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSupplierRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	supplier, err := a.service.CreateSupplier(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
}

func (a *API) handleUpdateSupplier(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateSupplierRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.service.UpdateSupplier(r.Context(), chi.URLParam(r, "id"), req); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleDeleteSupplier(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteSupplier(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (a *API) handleListBills(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	bills, err := a.service.ListBills(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bills": bills})
}

func (a *API) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
	purchases, err := a.service.ListPurchases(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"purchases": purchases})
}

// handleReceipt answers with JSON by default; format=escpos streams the raw
// printer bytes as a download.
func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := a.service.BuildReceipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "escpos":
		raw, err := base64.StdEncoding.DecodeString(receipt.EscposBase64)
		if err != nil {
			a.writeError(w, r, apperr.Wrap(apperr.Internal, err, "failed to encode receipt"))
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", receipt.FileName))
		_, _ = w.Write(raw)
	default:
		writeJSON(w, http.StatusOK, receipt)
	}
}

func (a *API) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.service.GetDailyStats(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))) {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"daily-stats-%s.csv\"", stats.Date))
		_ = writeDailyStatsCSV(w, stats)
	default:
		writeJSON(w, http.StatusOK, stats)
	}
}

func writeDailyStatsCSV(w http.ResponseWriter, stats domain.DailyStats) error {
	cw := csv.NewWriter(w)
	records := [][]string{
		{"date", "totalSales", "totalProfit", "totalBills", "totalItemsSold"},
		{
			stats.Date,
			stats.TotalSales.StringFixed(2),
			stats.TotalProfit.StringFixed(2),
			strconv.FormatInt(stats.TotalBills, 10),
			strconv.FormatInt(stats.TotalItemsSold, 10),
		},
	}
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}
