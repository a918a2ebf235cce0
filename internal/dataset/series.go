package dataset

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is a single daily close.
type PricePoint struct {
	Date  time.Time
	Close decimal.Decimal
}

// Series holds one symbol's closes in ascending date order. Dates are unique;
// gaps in the trading calendar are allowed.
type Series []PricePoint

// Closes returns the close prices as float64, preserving order.
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Close.InexactFloat64()
	}
	return out
}

// Last returns the most recent point.
func (s Series) Last() (PricePoint, bool) {
	if len(s) == 0 {
		return PricePoint{}, false
	}
	return s[len(s)-1], true
}

// Since returns the suffix of points dated on or after t.
func (s Series) Since(t time.Time) Series {
	for i, p := range s {
		if !p.Date.Before(t) {
			return s[i:]
		}
	}
	return Series{}
}

// Row is one accepted record of the raw table.
type Row struct {
	Symbol string
	Date   time.Time
	Close  decimal.Decimal
}

// LoadStats summarises an ingestion pass.
type LoadStats struct {
	Files            int
	FailedFiles      int
	Rows             int
	DroppedBadSymbol int
	DroppedBadDate   int
	DroppedBadClose  int
	DroppedDuplicate int
}

// Dropped is the total number of rejected rows.
func (s LoadStats) Dropped() int {
	return s.DroppedBadSymbol + s.DroppedBadDate + s.DroppedBadClose + s.DroppedDuplicate
}

func (s *LoadStats) merge(o LoadStats) {
	s.Files += o.Files
	s.FailedFiles += o.FailedFiles
	s.Rows += o.Rows
	s.DroppedBadSymbol += o.DroppedBadSymbol
	s.DroppedBadDate += o.DroppedBadDate
	s.DroppedBadClose += o.DroppedBadClose
	s.DroppedDuplicate += o.DroppedDuplicate
}
