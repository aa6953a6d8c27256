package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleOwner Role = "OWNER"
	RoleStaff Role = "STAFF"
)

const (
	PaymentCash = "CASH"
	PaymentUPI  = "UPI"
	PaymentCard = "CARD"
)

const (
	DefaultCustomerName = "Walk-in"
	DefaultBillMessage  = "Thank you for shopping!"
)

// MaxLineQty bounds the quantity of a single bill or purchase line, so sums
// over a request stay far from int64 overflow.
const MaxLineQty int64 = 1_000_000

type Permissions struct {
	Sales          bool `json:"sales"`
	InvoiceHistory bool `json:"invoiceHistory"`
	Accounts       bool `json:"accounts"`
	Profit         bool `json:"profit"`
}

func AllPermissions() Permissions {
	return Permissions{Sales: true, InvoiceHistory: true, Accounts: true, Profit: true}
}

// User is the profile stored at users/{uid}. ShopID is nil until an owner
// creates a shop.
type User struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Role        Role        `json:"role"`
	ShopID      *string     `json:"shopId"`
	IsActive    bool        `json:"isActive"`
	Permissions Permissions `json:"permissions"`
	CreatedAt   time.Time   `json:"createdAt"`
}

func (u User) Shop() string {
	if u.ShopID == nil {
		return ""
	}
	return *u.ShopID
}

type Shop struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"ownerId"`
	BusinessName string    `json:"businessName"`
	Phone        string    `json:"phone"`
	Address      string    `json:"address"`
	GSTNumber    string    `json:"gstNumber"`
	BillMessage  string    `json:"billMessage"`
	CreatedAt    time.Time `json:"createdAt"`
}

// StaffRecord is the shop-side copy of a staff member kept at
// shops/{shopId}/staff/{uid}.
type StaffRecord struct {
	UID         string      `json:"uid"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Permissions Permissions `json:"permissions"`
	IsActive    bool        `json:"isActive"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Product is global catalog data, shared by every shop.
type Product struct {
	Barcode    string          `json:"barcode"`
	Name       string          `json:"name"`
	Category   string          `json:"category"`
	Brand      string          `json:"brand"`
	Unit       string          `json:"unit"`
	MRP        decimal.Decimal `json:"mrp"`
	GSTPercent decimal.Decimal `json:"gstPercent"`
	CreatedBy  string          `json:"createdBy"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

type InventoryItem struct {
	Barcode           string           `json:"barcode"`
	SellingPrice      decimal.Decimal  `json:"sellingPrice"`
	PurchasePrice     decimal.Decimal  `json:"purchasePrice"`
	Stock             int64            `json:"stock"`
	Expiry            string           `json:"expiry"`
	SupplierID        string           `json:"supplierId"`
	LastPurchasePrice *decimal.Decimal `json:"lastPurchasePrice"`
	LastPurchaseDate  *time.Time       `json:"lastPurchaseDate"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// UnitCost is the cost used for profit: the last purchase price when one has
// been recorded, the configured purchase price otherwise.
func (i InventoryItem) UnitCost() decimal.Decimal {
	if i.LastPurchasePrice != nil {
		return *i.LastPurchasePrice
	}
	return i.PurchasePrice
}

type BillLine struct {
	Type    LineType        `json:"type"`
	Barcode string          `json:"barcode,omitempty"`
	Name    string          `json:"name"`
	Qty     int64           `json:"qty"`
	Rate    decimal.Decimal `json:"rate"`
	Amount  decimal.Decimal `json:"amount"`
	Profit  decimal.Decimal `json:"profit"`
}

type Bill struct {
	ID              string          `json:"id"`
	BillNo          int64           `json:"billNo"`
	BillNoFormatted string          `json:"billNoFormatted"`
	CustomerName    string          `json:"customerName"`
	PaymentType     string          `json:"paymentType"`
	Items           []BillLine      `json:"items"`
	GrandTotal      decimal.Decimal `json:"grandTotal"`
	Profit          decimal.Decimal `json:"profit"`
	CreatedBy       string          `json:"createdBy"`
	CreatedAt       time.Time       `json:"createdAt"`
}

type PurchaseLine struct {
	Barcode       string          `json:"barcode"`
	Name          string          `json:"name"`
	Qty           int64           `json:"qty"`
	PurchasePrice decimal.Decimal `json:"purchasePrice"`
	Amount        decimal.Decimal `json:"amount"`
}

type Purchase struct {
	ID                  string          `json:"id"`
	PurchaseNo          int64           `json:"purchaseNo"`
	PurchaseNoFormatted string          `json:"purchaseNoFormatted"`
	SupplierID          string          `json:"supplierId"`
	SupplierName        string          `json:"supplierName"`
	Items               []PurchaseLine  `json:"items"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	PaidAmount          decimal.Decimal `json:"paidAmount"`
	DueAmount           decimal.Decimal `json:"dueAmount"`
	CreatedBy           string          `json:"createdBy"`
	CreatedAt           time.Time       `json:"createdAt"`
}

type DailyStats struct {
	Date           string          `json:"date"`
	TotalSales     decimal.Decimal `json:"totalSales"`
	TotalProfit    decimal.Decimal `json:"totalProfit"`
	TotalBills     int64           `json:"totalBills"`
	TotalItemsSold int64           `json:"totalItemsSold"`
	LastUpdated    *time.Time      `json:"lastUpdated,omitempty"`
}

type Supplier struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Phone          string          `json:"phone"`
	Address        string          `json:"address"`
	GSTNumber      string          `json:"gstNumber"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
	PurchaseDue    decimal.Decimal `json:"purchaseDue"`
	IsActive       bool            `json:"isActive"`
	CreatedAt      time.Time       `json:"createdAt"`
}
