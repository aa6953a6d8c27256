package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateBillRequest struct {
	Items          CartLines `json:"items"`
	PaymentType    string    `json:"paymentType"`
	CustomerName   string    `json:"customerName"`
	IdempotencyKey string    `json:"idempotencyKey,omitempty"`
}

// CreateBillResponse reports the allocated bill. BillNo is the formatted
// number shown to customers; BillNumber is the raw sequence value.
type CreateBillResponse struct {
	Success    bool            `json:"success"`
	BillID     string          `json:"billId"`
	BillNo     string          `json:"billNo"`
	BillNumber int64           `json:"billNumber"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
	Duplicate  bool            `json:"duplicate"`
}

type PurchaseItemRequest struct {
	Barcode       string          `json:"barcode"`
	Name          string          `json:"name,omitempty"`
	Qty           int64           `json:"qty"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
}

type CreatePurchaseRequest struct {
	SupplierID     string                `json:"supplierId"`
	Items          []PurchaseItemRequest `json:"items"`
	PaidAmount     decimal.Decimal       `json:"paidAmount"`
	IdempotencyKey string                `json:"idempotencyKey,omitempty"`
}

type CreatePurchaseResponse struct {
	Success        bool            `json:"success"`
	PurchaseID     string          `json:"purchaseId"`
	PurchaseNo     string          `json:"purchaseNo"`
	PurchaseNumber int64           `json:"purchaseNumber"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	DueAmount      decimal.Decimal `json:"dueAmount"`
	Duplicate      bool            `json:"duplicate"`
}

type CreateStaffRequest struct {
	Email       string       `json:"email"`
	Password    string       `json:"password"`
	Name        string       `json:"name"`
	Permissions *Permissions `json:"permissions,omitempty"`
}

type CreateStaffResponse struct {
	UID string `json:"uid"`
}

type DeleteStaffRequest struct {
	StaffID string `json:"staffId"`
}

type UpdateStaffRequest struct {
	Name        *string      `json:"name,omitempty"`
	Permissions *Permissions `json:"permissions,omitempty"`
	IsActive    *bool        `json:"isActive,omitempty"`
}

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type SignUpResponse struct {
	UID string `json:"uid"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
	UID         string    `json:"uid"`
	Role        Role      `json:"role"`
	ShopID      *string   `json:"shopId"`
}

type CreateShopRequest struct {
	BusinessName string `json:"businessName"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	GSTNumber    string `json:"gstNumber"`
	BillMessage  string `json:"billMessage"`
}

type UpsertProductRequest struct {
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Brand      string          `json:"brand"`
	Unit       string          `json:"unit"`
	MRP        decimal.Decimal `json:"mrp"`
	GSTPercent decimal.Decimal `json:"gstPercent"`
}

type SetInventoryRequest struct {
	SellingPrice  decimal.Decimal `json:"sellingPrice"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	Stock         int64           `json:"stock"`
	Expiry        string          `json:"expiry"`
}

// ScanResult is what a scan resolves to. Inventory is nil when the product
// exists in the catalog but the shop does not stock it.
type ScanResult struct {
	Product   Product        `json:"product"`
	Inventory *InventoryItem `json:"inventory"`
	// Rate is the price a bill would charge: selling price, else MRP.
	Rate decimal.Decimal `json:"rate"`
}

type CreateSupplierRequest struct {
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	Address        string          `json:"address"`
	GSTNumber      string          `json:"gstNumber"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
}

// UpdateSupplierRequest has no opening balance field; it is fixed at
// creation and strict decoding rejects any attempt to send it.
type UpdateSupplierRequest struct {
	Name      *string `json:"name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Address   *string `json:"address,omitempty"`
	GSTNumber *string `json:"gstNumber,omitempty"`
}

type Receipt struct {
	BillID       string `json:"billId"`
	BillNo       string `json:"billNo"`
	PreviewText  string `json:"previewText"`
	EscposBase64 string `json:"escposBase64"`
	FileName     string `json:"fileName"`
}
