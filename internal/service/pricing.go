package service

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/tourism-reservation/internal/model"
)

// DefaultEntranceFee is the per-person fee charged for a place whose fee
// table has no usable "adult" entry.
var DefaultEntranceFee = decimal.NewFromInt(10)

// adultCategory is the fee table key used for place pricing.
const adultCategory = "adult"

// PriceCalculator derives the total price of a reservation from the
// pricing attributes of the booked entity.
type PriceCalculator struct {
	fallbackFee decimal.Decimal
}

// NewPriceCalculator returns a calculator that uses fallbackFee when a
// place fee table cannot be used.  A negative fallback is replaced by
// DefaultEntranceFee.
func NewPriceCalculator(fallbackFee decimal.Decimal) *PriceCalculator {
	if fallbackFee.IsNegative() {
		fallbackFee = DefaultEntranceFee
	}
	return &PriceCalculator{fallbackFee: fallbackFee}
}

// ComputePrice returns unit price × quantity rounded to cents.  Events
// without a ticket price are free.  Places are charged the adult entrance
// fee, falling back to the configured default.
func (p *PriceCalculator) ComputePrice(entity model.Entity, quantity int) decimal.Decimal {
	if quantity < 0 {
		quantity = 0
	}
	unit := decimal.Zero
	switch e := entity.(type) {
	case *model.Event:
		if e.TicketPrice != nil && !e.TicketPrice.IsNegative() {
			unit = *e.TicketPrice
		}
	case *model.Place:
		unit = p.entranceFee(e.EntranceFee)
	}
	return unit.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

// entranceFee extracts the adult fee from a serialized fee table.  Any
// parse problem yields the fallback fee.
func (p *PriceCalculator) entranceFee(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return p.fallbackFee
	}
	var table map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &table); err != nil {
		return p.fallbackFee
	}
	v, ok := table[adultCategory]
	if !ok {
		// Other spellings of the key, in a fixed order.
		keys := make([]string, 0, len(table))
		for k := range table {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if strings.EqualFold(strings.TrimSpace(k), adultCategory) {
				v, ok = table[k], true
				break
			}
		}
	}
	if !ok {
		return p.fallbackFee
	}
	fee, ok := parseFee(v)
	if !ok {
		return p.fallbackFee
	}
	return fee
}

// parseFee accepts a JSON number or a numeric string.
func parseFee(v json.RawMessage) (decimal.Decimal, bool) {
	s := strings.TrimSpace(string(v))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(v, &s); err != nil {
			return decimal.Zero, false
		}
		s = strings.TrimSpace(s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}
