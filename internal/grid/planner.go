// Package grid computes grid levels, order sizes and counter-order prices,
// and matches sells against held inventory lots in FIFO order. Nothing in
// this package performs I/O.
package grid

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/abelprasad/CryptoBear/internal/domain"
)

const (
	// PricePlaces is the quote-currency precision used for level prices.
	PricePlaces int32 = 2
	// QuantityPlaces is the base-asset precision used for order sizes.
	QuantityPlaces int32 = 6
)

var one = decimal.NewFromInt(1)

// Level is a single grid price. Negative indices are buy levels, positive
// indices are sell levels; |Index| grows away from the center.
type Level struct {
	Price decimal.Decimal `json:"price"`
	Index int             `json:"index"`
}

// IsBuy reports whether the level sits below the center.
func (l Level) IsBuy() bool { return l.Index < 0 }

// Levels is the full ladder computed around a center price. Both sides are
// ordered nearest-to-center first.
type Levels struct {
	Buy    []Level         `json:"buy"`
	Sell   []Level         `json:"sell"`
	Center decimal.Decimal `json:"center"`
}

// Planner holds the grid parameters. It is immutable and safe to share.
type Planner struct {
	spread  decimal.Decimal
	perSide int
	risk    decimal.Decimal
}

// NewPlanner returns a Planner for count total levels (count/2 per side,
// remainder discarded), a fractional per-level spread, and the fraction of
// balance committed to each order.
func NewPlanner(spread decimal.Decimal, count int, riskPerTrade decimal.Decimal) *Planner {
	perSide := count / 2
	if perSide < 0 {
		perSide = 0
	}
	return &Planner{spread: spread, perSide: perSide, risk: riskPerTrade}
}

// LevelsPerSide returns count/2.
func (p *Planner) LevelsPerSide() int { return p.perSide }

// Spread returns the per-level spread.
func (p *Planner) Spread() decimal.Decimal { return p.spread }

// ComputeLevels builds the ladder around center. Level i (1-indexed) is
// priced at center*(1-i*spread) on the buy side and center*(1+i*spread) on
// the sell side, each rounded to PricePlaces.
func (p *Planner) ComputeLevels(center decimal.Decimal) Levels {
	lv := Levels{
		Buy:    make([]Level, 0, p.perSide),
		Sell:   make([]Level, 0, p.perSide),
		Center: center,
	}
	for i := 1; i <= p.perSide; i++ {
		step := p.spread.Mul(decimal.NewFromInt(int64(i)))
		lv.Buy = append(lv.Buy, Level{
			Price: center.Mul(one.Sub(step)).Round(PricePlaces),
			Index: -i,
		})
		lv.Sell = append(lv.Sell, Level{
			Price: center.Mul(one.Add(step)).Round(PricePlaces),
			Index: i,
		})
	}
	return lv
}

// PositionSize returns balance*riskPerTrade/price rounded to
// QuantityPlaces. A non-positive price yields domain.ErrInvalidPrice.
func (p *Planner) PositionSize(balance, price decimal.Decimal) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, domain.ErrInvalidPrice
	}
	return balance.Mul(p.risk).Div(price).Round(QuantityPlaces), nil
}

// CounterPrice picks the price for the order placed after a fill.
//
// After a buy fill it returns the lowest sell level strictly above the fill
// price, or the highest sell level when the fill is above them all. After a
// sell fill it returns the highest buy level strictly below the fill price,
// or the lowest buy level. When the relevant side has no levels it falls
// back to filled*(1±spread).
func (p *Planner) CounterPrice(filled decimal.Decimal, side domain.OrderSide, lv Levels) decimal.Decimal {
	if side == domain.OrderSideBuy {
		if len(lv.Sell) == 0 {
			return filled.Mul(one.Add(p.spread)).Round(PricePlaces)
		}
		asc := sortedPrices(lv.Sell, true)
		for _, px := range asc {
			if px.GreaterThan(filled) {
				return px
			}
		}
		return asc[len(asc)-1]
	}

	if len(lv.Buy) == 0 {
		return filled.Mul(one.Sub(p.spread)).Round(PricePlaces)
	}
	desc := sortedPrices(lv.Buy, false)
	for _, px := range desc {
		if px.LessThan(filled) {
			return px
		}
	}
	return desc[len(desc)-1]
}

func sortedPrices(levels []Level, ascending bool) []decimal.Decimal {
	out := make([]decimal.Decimal, len(levels))
	for i, l := range levels {
		out[i] = l.Price
	}
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].LessThan(out[j])
		}
		return out[i].GreaterThan(out[j])
	})
	return out
}
