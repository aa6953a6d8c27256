package counter

import (
	"context"
	"fmt"
	"strconv"

	"billdesk/backend/internal/domain"
	"billdesk/backend/internal/store"
)

type Series string

const (
	Bill     Series = "bill"
	Purchase Series = "purchase"
)

func (s Series) field() string {
	return string(s) + "Series"
}

// Counters mirrors shops/{shopId}/meta/counters: per series, the last number
// issued for each year.
type Counters struct {
	BillSeries     map[string]int64 `json:"billSeries,omitempty"`
	PurchaseSeries map[string]int64 `json:"purchaseSeries,omitempty"`
}

func (c Counters) Last(series Series, year int) int64 {
	key := strconv.Itoa(year)
	switch series {
	case Bill:
		return c.BillSeries[key]
	case Purchase:
		return c.PurchaseSeries[key]
	}
	return 0
}

// Allocation is a number reserved by Next but not yet recorded.
type Allocation struct {
	Series    Series
	Year      int
	Number    int64
	Formatted string
}

// Read loads the shop's counter document. A missing document means nothing
// has been issued yet.
func Read(ctx context.Context, r store.Reader, shopID string) (Counters, error) {
	snap, err := r.Get(ctx, domain.CounterPath(shopID))
	if err != nil {
		return Counters{}, err
	}
	var c Counters
	if !snap.Exists {
		return c, nil
	}
	if err := snap.DataTo(&c); err != nil {
		return Counters{}, err
	}
	return c, nil
}

func Next(c Counters, series Series, year int) Allocation {
	n := c.Last(series, year) + 1
	return Allocation{Series: series, Year: year, Number: n, Formatted: Format(series, year, n)}
}

// Format renders 2025-00001 for bills and PUR-2025-00001 for purchases.
func Format(series Series, year int, n int64) string {
	if series == Purchase {
		return fmt.Sprintf("PUR-%d-%05d", year, n)
	}
	return fmt.Sprintf("%d-%05d", year, n)
}

// Write records the allocation with a merge so other years and series are
// left untouched.
func (a Allocation) Write(w store.Writer, shopID string) error {
	return w.SetMerge(domain.CounterPath(shopID), map[string]any{
		a.Series.field(): map[string]any{strconv.Itoa(a.Year): a.Number},
	})
}

// Allocate reads, advances and records a series in one step, for
// transactions whose only read is the counter itself.
func Allocate(ctx context.Context, tx store.Tx, shopID string, series Series, year int) (Allocation, error) {
	c, err := Read(ctx, tx, shopID)
	if err != nil {
		return Allocation{}, err
	}
	a := Next(c, series, year)
	if err := a.Write(tx, shopID); err != nil {
		return Allocation{}, err
	}
	return a, nil
}
