package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"billdesk/backend/internal/apperr"
	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// requirePermission lets owners through and staff only when granted.
func requirePermission(user domain.User, granted bool, what string) error {
	if user.Role == domain.RoleOwner || granted {
		return nil
	}
	return apperr.Newf(apperr.PermissionDenied, "%s permission required", what)
}

// newestFirst pages a collection by createdAt, breaking ties on the
// formatted document number.
func newestFirst(numberField string, limit int) store.Query {
	return store.Query{
		OrderBy: []store.Order{
			{Field: "createdAt", As: store.SortTime, Descending: true},
			{Field: numberField, Descending: true},
		},
		Limit: clampLimit(limit),
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

// ListBills returns the shop's most recent bills, newest first.
func (s *Service) ListBills(ctx context.Context, limit int) ([]domain.Bill, error) {
	caller, err := s.loadCaller(ctx, s.store)
	if err != nil {
		return nil, classify(err)
	}
	shopID, err := requireShop(caller)
	if err != nil {
		return nil, err
	}
	if err := requirePermission(caller, caller.Permissions.InvoiceHistory, "invoice history"); err != nil {
		return nil, err
	}
	snaps, err := s.store.Query(ctx, domain.BillsCollection(shopID), newestFirst("billNoFormatted", limit))
	if err != nil {
		return nil, classify(err)
	}
	bills := make([]domain.Bill, 0, len(snaps))
	for _, snap := range snaps {
		var bill domain.Bill
		if err := snap.DataTo(&bill); err != nil {
			return nil, classify(err)
		}
		bill.ID = snap.ID
		bills = append(bills, bill)
	}
	return bills, nil
}

func (s *Service) ListPurchases(ctx context.Context, limit int) ([]domain.Purchase, error) {
	caller, err := s.loadCaller(ctx, s.store)
	if err != nil {
		return nil, classify(err)
	}
	shopID, err := requireOwnerShop(caller)
	if err != nil {
		return nil, err
	}
	snaps, err := s.store.Query(ctx, domain.PurchasesCollection(shopID), newestFirst("purchaseNoFormatted", limit))
	if err != nil {
		return nil, classify(err)
	}
	purchases := make([]domain.Purchase, 0, len(snaps))
	for _, snap := range snaps {
		var p domain.Purchase
		if err := snap.DataTo(&p); err != nil {
			return nil, classify(err)
		}
		p.ID = snap.ID
		purchases = append(purchases, p)
	}
	return purchases, nil
}

// GetDailyStats returns the totals for date (YYYY-MM-DD, shop timezone).
// An empty date means today. A day without sales reports zeros.
func (s *Service) GetDailyStats(ctx context.Context, date string) (domain.DailyStats, error) {
	caller, err := s.loadCaller(ctx, s.store)
	if err != nil {
		return domain.DailyStats{}, classify(err)
	}
	shopID, err := requireShop(caller)
	if err != nil {
		return domain.DailyStats{}, err
	}
	if err := requirePermission(caller, caller.Permissions.Profit, "profit"); err != nil {
		return domain.DailyStats{}, err
	}

	day := s.now()
	if date = strings.TrimSpace(date); date != "" {
		day, err = time.ParseInLocation("2006-01-02", date, s.location)
		if err != nil {
			return domain.DailyStats{}, apperr.New(apperr.InvalidArgument, "date must be YYYY-MM-DD")
		}
	}

	snap, err := s.store.Get(ctx, domain.DailyStatsPath(shopID, day))
	if err != nil {
		return domain.DailyStats{}, classify(err)
	}
	stats := domain.DailyStats{
		Date:        domain.StatsDate(day),
		TotalSales:  decimal.Zero,
		TotalProfit: decimal.Zero,
	}
	if !snap.Exists {
		return stats, nil
	}
	if err := snap.DataTo(&stats); err != nil {
		return domain.DailyStats{}, classify(err)
	}
	return stats, nil
}
