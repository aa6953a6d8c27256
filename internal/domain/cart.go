package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type LineType string

const (
	LineBarcode LineType = "BARCODE"
	LineManual  LineType = "MANUAL"
)

// CartLine is either a BarcodeLine or a ManualLine. Nothing else satisfies
// it, so a switch over the two types is exhaustive.
type CartLine interface {
	LineType() LineType
	Quantity() int64
	cartLine()
}

// BarcodeLine sells a catalog item at the shop's inventory price.
type BarcodeLine struct {
	Barcode string
	Qty     int64
}

func (BarcodeLine) LineType() LineType { return LineBarcode }
func (l BarcodeLine) Quantity() int64  { return l.Qty }
func (BarcodeLine) cartLine()          {}

func (l BarcodeLine) MarshalJSON() ([]byte, error) {
	return json.Marshal(barcodeWire{Type: LineBarcode, Barcode: l.Barcode, Qty: l.Qty})
}

// ManualLine sells an ad-hoc item at a caller-supplied rate.
type ManualLine struct {
	Name string
	Qty  int64
	Rate decimal.Decimal
}

func (ManualLine) LineType() LineType { return LineManual }
func (l ManualLine) Quantity() int64  { return l.Qty }
func (ManualLine) cartLine()          {}

func (l ManualLine) MarshalJSON() ([]byte, error) {
	rate := l.Rate
	return json.Marshal(manualWire{Type: LineManual, Name: l.Name, Qty: l.Qty, Rate: &rate})
}

type barcodeWire struct {
	Type    LineType `json:"type"`
	Barcode string   `json:"barcode"`
	Qty     int64    `json:"qty"`
}

type manualWire struct {
	Type LineType         `json:"type"`
	Name string           `json:"name"`
	Qty  int64            `json:"qty"`
	Rate *decimal.Decimal `json:"rate"`
}

// CartLines decodes a JSON array of tagged cart lines. Each element must
// carry exactly the fields of its type.
type CartLines []CartLine

func (c *CartLines) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	lines := make(CartLines, 0, len(raw))
	for i, item := range raw {
		line, err := ParseCartLine(item)
		if err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
		lines = append(lines, line)
	}
	*c = lines
	return nil
}

func ParseCartLine(raw []byte) (CartLine, error) {
	var probe struct {
		Type LineType `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	switch probe.Type {
	case LineBarcode:
		var w barcodeWire
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		return BarcodeLine{Barcode: w.Barcode, Qty: w.Qty}, nil
	case LineManual:
		var w manualWire
		if err := decodeStrict(raw, &w); err != nil {
			return nil, err
		}
		if w.Rate == nil {
			return nil, fmt.Errorf("manual item requires a rate")
		}
		return ManualLine{Name: w.Name, Qty: w.Qty, Rate: *w.Rate}, nil
	case "":
		return nil, fmt.Errorf("item type is required")
	default:
		return nil, fmt.Errorf("unknown item type %q", probe.Type)
	}
}

func decodeStrict(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
