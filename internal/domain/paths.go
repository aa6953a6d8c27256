package domain

import (
	"fmt"
	"time"
)

// Document layout. Every shop-scoped collection lives under shops/{shopId}.

const (
	UsersCollection    = "users"
	ShopsCollection    = "shops"
	ProductsCollection = "products"
)

func UserPath(uid string) string        { return UsersCollection + "/" + uid }
func ShopPath(shopID string) string     { return ShopsCollection + "/" + shopID }
func ProductPath(barcode string) string { return ProductsCollection + "/" + barcode }

func StaffCollection(shopID string) string     { return ShopPath(shopID) + "/staff" }
func InventoryCollection(shopID string) string { return ShopPath(shopID) + "/inventory" }
func BillsCollection(shopID string) string     { return ShopPath(shopID) + "/bills" }
func PurchasesCollection(shopID string) string { return ShopPath(shopID) + "/purchases" }
func SuppliersCollection(shopID string) string { return ShopPath(shopID) + "/suppliers" }

func StaffPath(shopID, uid string) string         { return StaffCollection(shopID) + "/" + uid }
func InventoryPath(shopID, barcode string) string { return InventoryCollection(shopID) + "/" + barcode }
func BillPath(shopID, billID string) string       { return BillsCollection(shopID) + "/" + billID }
func PurchasePath(shopID, id string) string       { return PurchasesCollection(shopID) + "/" + id }
func SupplierPath(shopID, id string) string       { return SuppliersCollection(shopID) + "/" + id }
func CounterPath(shopID string) string            { return ShopPath(shopID) + "/meta/counters" }
func RequestPath(shopID, key string) string       { return ShopPath(shopID) + "/requests/" + key }

// StatsDate is the YYYY-MM-DD form of day in its own location.
func StatsDate(day time.Time) string {
	return day.Format("2006-01-02")
}

// DailyStatsPath names the stats document for day, e.g.
// shops/s1/stats/daily_2025_01_31.
func DailyStatsPath(shopID string, day time.Time) string {
	return fmt.Sprintf("%s/stats/daily_%s", ShopPath(shopID), day.Format("2006_01_02"))
}
