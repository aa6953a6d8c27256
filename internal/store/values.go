package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type increment struct {
	delta    decimal.Decimal
	integral bool
}

type serverTimestamp struct{}

// ServerTimestamp is replaced by the commit time when the write is applied.
var ServerTimestamp any = serverTimestamp{}

// Increment adds delta to an integer field at commit time. A missing field
// counts as zero.
func Increment(delta int64) any {
	return increment{delta: decimal.NewFromInt(delta), integral: true}
}

// IncrementDecimal adds a money delta at commit time. The result is stored
// as a decimal string, the same form decimal.Decimal encodes to.
func IncrementDecimal(delta decimal.Decimal) any {
	return increment{delta: delta}
}

// Encode converts a struct or map into the document representation used by
// every implementation: JSON-shaped maps with json.Number numbers. Write
// sentinels inside maps are kept for resolution at commit.
func Encode(data any) (map[string]any, error) {
	if m, ok := data.(map[string]any); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			encoded, err := encodeValue(v)
			if err != nil {
				return nil, fmt.Errorf("encode field %q: %w", k, err)
			}
			out[k] = encoded
		}
		return out, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("document must encode to a JSON object: %w", err)
	}
	return out, nil
}

func encodeValue(v any) (any, error) {
	switch val := v.(type) {
	case increment, serverTimestamp, nil, string, bool, json.Number:
		return val, nil
	case map[string]any:
		return Encode(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		var out any
		dec := json.NewDecoder(strings.NewReader(string(raw)))
		dec.UseNumber()
		if err := dec.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

// ApplySet returns the document produced by a Set (merge=false) or SetMerge
// (merge=true) of data onto existing. existing is not modified.
func ApplySet(existing map[string]any, data map[string]any, merge bool, now time.Time) (map[string]any, error) {
	out := map[string]any{}
	if merge {
		out = CloneMap(existing)
	}
	if err := mergeInto(out, data, now); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyUpdate returns existing with each field replaced. Dotted keys address
// nested maps, which are created as needed.
func ApplyUpdate(existing map[string]any, fields map[string]any, now time.Time) (map[string]any, error) {
	out := CloneMap(existing)
	for key, value := range fields {
		parts := strings.Split(key, ".")
		parent := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := parent[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				parent[part] = next
			}
			parent = next
		}
		leaf := parts[len(parts)-1]
		if leaf == "" {
			return nil, fmt.Errorf("empty field path %q", key)
		}
		if m, ok := value.(map[string]any); ok {
			replaced := map[string]any{}
			if err := mergeInto(replaced, m, now); err != nil {
				return nil, err
			}
			parent[leaf] = replaced
			continue
		}
		resolved, err := resolve(value, parent[leaf], now)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		parent[leaf] = resolved
	}
	return out, nil
}

func mergeInto(dst map[string]any, src map[string]any, now time.Time) error {
	for k, v := range src {
		if m, ok := v.(map[string]any); ok {
			sub, _ := dst[k].(map[string]any)
			if sub == nil {
				sub = map[string]any{}
			}
			if err := mergeInto(sub, m, now); err != nil {
				return err
			}
			dst[k] = sub
			continue
		}
		resolved, err := resolve(v, dst[k], now)
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
		dst[k] = resolved
	}
	return nil
}

func resolve(value any, existing any, now time.Time) (any, error) {
	switch v := value.(type) {
	case serverTimestamp:
		return now.UTC().Format(time.RFC3339Nano), nil
	case increment:
		base, err := numeric(existing)
		if err != nil {
			return nil, err
		}
		sum := base.Add(v.delta)
		_, existingIsNumber := existing.(json.Number)
		if existingIsNumber || (existing == nil && v.integral) {
			return json.Number(sum.String()), nil
		}
		return sum.String(), nil
	default:
		return cloneValue(value), nil
	}
}

func numeric(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, nil
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(n)
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case decimal.Decimal:
		return n, nil
	default:
		return decimal.Zero, fmt.Errorf("cannot increment non-numeric value of type %T", v)
	}
}

func CloneMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return CloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
