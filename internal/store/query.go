package store

import (
	"fmt"
	"strings"
	"time"
)

// SortAs says how the values of an ordering field compare.
type SortAs int

const (
	SortString SortAs = iota
	// SortTime compares RFC 3339 timestamps such as ServerTimestamp writes.
	SortTime
	SortNumber
)

type Order struct {
	Field      string
	As         SortAs
	Descending bool
}

// Query asks for one ordered page of a collection. Documents missing an
// order field sort after those that have it; remaining ties go by path.
// A zero Limit returns every document.
type Query struct {
	OrderBy []Order
	Limit   int
}

func (q Query) Validate() error {
	if q.Limit < 0 {
		return fmt.Errorf("query limit must not be negative, got %d", q.Limit)
	}
	for _, o := range q.OrderBy {
		if strings.TrimSpace(o.Field) == "" || strings.Contains(o.Field, ".") {
			return fmt.Errorf("invalid order field %q", o.Field)
		}
		if o.As < SortString || o.As > SortNumber {
			return fmt.Errorf("invalid sort type %d for %q", o.As, o.Field)
		}
	}
	return nil
}

// Compare orders two documents the way q does, path last.
func (q Query) Compare(a, b *Snapshot) int {
	for _, o := range q.OrderBy {
		av, aok := a.Data[o.Field]
		bv, bok := b.Data[o.Field]
		switch {
		case !aok && !bok:
			continue
		case !aok:
			return 1
		case !bok:
			return -1
		}
		c := compareValues(av, bv, o.As)
		if c == 0 {
			continue
		}
		if o.Descending {
			return -c
		}
		return c
	}
	return strings.Compare(a.Path, b.Path)
}

func compareValues(a, b any, as SortAs) int {
	switch as {
	case SortTime:
		at, aerr := time.Parse(time.RFC3339Nano, fmt.Sprint(a))
		bt, berr := time.Parse(time.RFC3339Nano, fmt.Sprint(b))
		if aerr == nil && berr == nil {
			return at.Compare(bt)
		}
	case SortNumber:
		an, aerr := numeric(a)
		bn, berr := numeric(b)
		if aerr == nil && berr == nil {
			return an.Cmp(bn)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
