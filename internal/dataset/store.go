package dataset

import (
	"cmp"
	"slices"
	"time"
)

// Store is the in-memory raw table grouped by symbol. It is immutable after
// construction and safe for concurrent readers.
type Store struct {
	series  map[string]Series
	symbols []string
	stats   LoadStats
}

// NewStore groups rows by normalised symbol, orders each group by date and
// collapses duplicate dates keeping the last row seen.
func NewStore(rows []Row) *Store {
	s := &Store{}
	grouped := make(map[string][]Row)
	for _, r := range rows {
		sym := NormalizeSymbol(r.Symbol)
		if sym == "" {
			s.stats.DroppedBadSymbol++
			continue
		}
		grouped[sym] = append(grouped[sym], r)
	}

	s.series = make(map[string]Series, len(grouped))
	for sym, group := range grouped {
		// stable so that "last row wins" follows input order
		slices.SortStableFunc(group, func(a, b Row) int { return a.Date.Compare(b.Date) })
		series := make(Series, 0, len(group))
		for _, r := range group {
			p := PricePoint{Date: r.Date, Close: r.Close}
			if n := len(series); n > 0 && series[n-1].Date.Equal(p.Date) {
				series[n-1] = p
				s.stats.DroppedDuplicate++
				continue
			}
			series = append(series, p)
		}
		s.series[sym] = series
		s.symbols = append(s.symbols, sym)
		s.stats.Rows += len(series)
	}
	slices.Sort(s.symbols)
	return s
}

// Series returns a copy of the symbol's series. A missing symbol reports false.
func (s *Store) Series(symbol string) (Series, bool) {
	series, ok := s.series[NormalizeSymbol(symbol)]
	if !ok || len(series) == 0 {
		return nil, false
	}
	return slices.Clone(series), true
}

// Symbols returns the known symbols in sorted order.
func (s *Store) Symbols() []string {
	return slices.Clone(s.symbols)
}

// Stats reports what was accepted and dropped while building the store.
func (s *Store) Stats() LoadStats {
	return s.stats
}

// Summary describes the table for the inspect command.
type Summary struct {
	Symbols   int
	Rows      int
	First     time.Time
	Last      time.Time
	Shortest  int
	Longest   int
	PerSymbol map[string]int
}

// Summarize computes aggregate shape information.
func (s *Store) Summarize() Summary {
	sum := Summary{Symbols: len(s.symbols), PerSymbol: make(map[string]int, len(s.symbols))}
	for _, sym := range s.symbols {
		series := s.series[sym]
		n := len(series)
		sum.Rows += n
		sum.PerSymbol[sym] = n
		if sum.Shortest == 0 || n < sum.Shortest {
			sum.Shortest = n
		}
		sum.Longest = max(sum.Longest, n)
		if n == 0 {
			continue
		}
		if sum.First.IsZero() || series[0].Date.Before(sum.First) {
			sum.First = series[0].Date
		}
		if series[n-1].Date.After(sum.Last) {
			sum.Last = series[n-1].Date
		}
	}
	return sum
}

// TopByLength returns up to n symbols ordered by series length, longest first.
func (s Summary) TopByLength(n int) []string {
	syms := make([]string, 0, len(s.PerSymbol))
	for sym := range s.PerSymbol {
		syms = append(syms, sym)
	}
	slices.SortFunc(syms, func(a, b string) int {
		if c := cmp.Compare(s.PerSymbol[b], s.PerSymbol[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if n > 0 && len(syms) > n {
		syms = syms[:n]
	}
	return syms
}
