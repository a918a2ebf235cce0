package dataset

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrSchemaMismatch indicates a file header does not satisfy the configured schema.
var ErrSchemaMismatch = errors.New("dataset: schema mismatch")

// DefaultDateLayouts are tried in order when parsing the date column.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"02-Jan-2006",
	"01/02/2006",
}

// Schema names the columns the loader requires. Matching is exact and
// case-insensitive; no substring guessing is performed.
type Schema struct {
	SymbolColumn string
	DateColumn   string
	CloseColumn  string
	// SymbolFromFilename takes the symbol from the file stem, which makes
	// SymbolColumn optional. This is the layout of one-file-per-symbol dumps.
	SymbolFromFilename bool
	DateLayouts        []string
}

// DefaultSchema matches the per-symbol daily CSV layout (Date, Symbol, Open, High, Low, Close, ...).
func DefaultSchema() Schema {
	return Schema{
		SymbolColumn:       "Symbol",
		DateColumn:         "Date",
		CloseColumn:        "Close",
		SymbolFromFilename: true,
		DateLayouts:        DefaultDateLayouts,
	}
}

// Validate checks the schema itself is usable.
func (s Schema) Validate() error {
	if strings.TrimSpace(s.DateColumn) == "" {
		return errors.New("dataset: date column must be set")
	}
	if strings.TrimSpace(s.CloseColumn) == "" {
		return errors.New("dataset: close column must be set")
	}
	if !s.SymbolFromFilename && strings.TrimSpace(s.SymbolColumn) == "" {
		return errors.New("dataset: symbol column must be set unless symbols come from file names")
	}
	return nil
}

type columns struct {
	symbol int
	date   int
	close  int
}

func (s Schema) resolve(header []string) (columns, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		key := normalizeColumn(name)
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	lookup := func(name string) (int, error) {
		if i, ok := index[normalizeColumn(name)]; ok {
			return i, nil
		}
		return -1, fmt.Errorf("%w: missing column %q (found %s)", ErrSchemaMismatch, name, strings.Join(header, ","))
	}

	var cols columns
	var err error
	if cols.date, err = lookup(s.DateColumn); err != nil {
		return columns{}, err
	}
	if cols.close, err = lookup(s.CloseColumn); err != nil {
		return columns{}, err
	}
	cols.symbol = -1
	if !s.SymbolFromFilename {
		if cols.symbol, err = lookup(s.SymbolColumn); err != nil {
			return columns{}, err
		}
	}
	return cols, nil
}

func (s Schema) parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	layouts := s.DateLayouts
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return calendarDate(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", v)
}

func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func normalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeSymbol is the canonical form used for lookups.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
