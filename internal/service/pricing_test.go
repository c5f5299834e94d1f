package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/tourism-reservation/internal/model"
)

func TestComputePrice(t *testing.T) {
	calc := NewPriceCalculator(DefaultEntranceFee)
	dec := func(s string) *decimal.Decimal {
		d := decimal.RequireFromString(s)
		return &d
	}

	cases := []struct {
		name   string
		entity model.Entity
		qty    int
		want   string
	}{
		{"event ticket price", &model.Event{ID: 1, TicketPrice: dec("12.5")}, 3, "37.50"},
		{"event without price is free", &model.Event{ID: 1}, 4, "0.00"},
		{"event rounds half up", &model.Event{ID: 1, TicketPrice: dec("0.125")}, 1, "0.13"},
		{"place adult fee", &model.Place{ID: 2, EntranceFee: `{"adult": 8, "child": 4}`}, 2, "16.00"},
		{"place adult fee as string", &model.Place{ID: 2, EntranceFee: `{"Adult": "7.25"}`}, 2, "14.50"},
		{"place exact adult key wins", &model.Place{ID: 2, EntranceFee: `{"Adult": 99, "adult": 6, "ADULT": 50}`}, 2, "12.00"},
		{"place adult spellings resolve in key order", &model.Place{ID: 2, EntranceFee: `{"Adult": 8, "ADULT": 7}`}, 2, "14.00"},
		{"place without adult falls back", &model.Place{ID: 2, EntranceFee: `{"child": 4}`}, 2, "20.00"},
		{"place malformed table falls back", &model.Place{ID: 2, EntranceFee: `{adult: 8`}, 3, "30.00"},
		{"place empty table falls back", &model.Place{ID: 2}, 1, "10.00"},
		{"place negative fee falls back", &model.Place{ID: 2, EntranceFee: `{"adult": -3}`}, 1, "10.00"},
		{"place non-numeric fee falls back", &model.Place{ID: 2, EntranceFee: `{"adult": "free"}`}, 1, "10.00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := calc.ComputePrice(tc.entity, tc.qty)
			assert.Equal(t, tc.want, got.StringFixed(2))
		})
	}
}

func TestComputePrice_Deterministic(t *testing.T) {
	calc := NewPriceCalculator(DefaultEntranceFee)
	p := &model.Place{ID: 9, EntranceFee: `{"Adult": 99, "adult": 10, "ADULT": 3}`}
	first := calc.ComputePrice(p, 2)
	assert.Equal(t, "20.00", first.StringFixed(2))
	for i := 0; i < 50; i++ {
		assert.True(t, first.Equal(calc.ComputePrice(p, 2)))
	}
}

func TestNewPriceCalculator_CustomFallback(t *testing.T) {
	calc := NewPriceCalculator(decimal.RequireFromString("4.5"))
	assert.Equal(t, "9.00", calc.ComputePrice(&model.Place{ID: 1}, 2).StringFixed(2))

	neg := NewPriceCalculator(decimal.NewFromInt(-1))
	assert.Equal(t, "10.00", neg.ComputePrice(&model.Place{ID: 1}, 1).StringFixed(2))
}
