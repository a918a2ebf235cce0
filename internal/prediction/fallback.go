package prediction

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Default fallback parameters: a price drawn uniformly from [90, 110).
const (
	DefaultFallbackBase   = 100.0
	DefaultFallbackSpread = 10.0
)

// Fallback produces placeholder prices when no model prediction is possible.
// The values carry no information about the symbol.
type Fallback struct {
	base   float64
	spread float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFallback returns a Fallback drawing from src. A nil src seeds from the clock.
func NewFallback(base, spread float64, src rand.Source) *Fallback {
	if src == nil {
		now := uint64(time.Now().UnixNano())
		src = rand.NewPCG(now, now>>7)
	}
	if spread < 0 {
		spread = -spread
	}
	return &Fallback{base: base, spread: spread, rng: rand.New(src)}
}

// Value returns base + U(-spread, +spread) rounded to two decimals.
func (f *Fallback) Value() decimal.Decimal {
	f.mu.Lock()
	u := f.rng.Float64()
	f.mu.Unlock()
	v := f.base + (2*u-1)*f.spread
	return decimal.NewFromFloat(v).Round(2)
}

// Bounds reports the closed interval values are drawn from.
func (f *Fallback) Bounds() (lo, hi decimal.Decimal) {
	return decimal.NewFromFloat(f.base - f.spread), decimal.NewFromFloat(f.base + f.spread)
}
