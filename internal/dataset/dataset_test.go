package dataset

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestOpenCSVDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tcs.csv", "Date,Symbol,Series,Open,High,Low,Close\n"+
		"2024-01-03,TCS,EQ,1,1,1,102.5\n"+
		"2024-01-01,TCS,EQ,1,1,1,100\n"+
		"2024-01-02,TCS,EQ,1,1,1,101\n")
	writeFile(t, dir, "INFY.csv", "date,close\n"+
		"2024-01-01,1500\n"+
		"not-a-date,1501\n"+
		"2024-01-02,abc\n"+
		"2024-01-03,-4\n"+
		"2024-01-04,1510\n")
	writeFile(t, dir, "notes.txt", "ignored")

	store, err := Open(context.Background(), Options{Dir: dir, Schema: DefaultSchema()}, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, []string{"INFY", "TCS"}, store.Symbols())

	series, ok := store.Series("tcs")
	require.True(t, ok)
	require.Len(t, series, 3)
	assert.Equal(t, day("2024-01-01"), series[0].Date)
	assert.Equal(t, day("2024-01-03"), series[2].Date)
	assert.True(t, series[2].Close.Equal(decimal.RequireFromString("102.5")))

	stats := store.Stats()
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 5, stats.Rows)
	assert.Equal(t, 1, stats.DroppedBadDate)
	assert.Equal(t, 2, stats.DroppedBadClose)
}

func TestSeriesMissingSymbol(t *testing.T) {
	store := NewStore(nil)
	series, ok := store.Series("NOPE")
	assert.False(t, ok)
	assert.Empty(t, series)
	assert.Empty(t, store.Symbols())
}

func TestDuplicateDatesKeepLast(t *testing.T) {
	store := NewStore([]Row{
		{Symbol: "abc", Date: day("2024-01-02"), Close: decimal.NewFromInt(10)},
		{Symbol: "ABC", Date: day("2024-01-01"), Close: decimal.NewFromInt(9)},
		{Symbol: "ABC", Date: day("2024-01-02"), Close: decimal.NewFromInt(11)},
	})

	series, ok := store.Series("Abc")
	require.True(t, ok)
	require.Len(t, series, 2)
	assert.True(t, series[1].Close.Equal(decimal.NewFromInt(11)))
	assert.Equal(t, 1, store.Stats().DroppedDuplicate)
}

func TestSeriesReturnsCopy(t *testing.T) {
	store := NewStore([]Row{{Symbol: "X", Date: day("2024-01-01"), Close: decimal.NewFromInt(1)}})
	a, _ := store.Series("X")
	a[0].Close = decimal.NewFromInt(99)
	b, _ := store.Series("X")
	assert.True(t, b[0].Close.Equal(decimal.NewFromInt(1)))
}

func TestSeriesConcurrentReads(t *testing.T) {
	var rows []Row
	start := day("2024-01-01")
	for i := 0; i < 100; i++ {
		rows = append(rows, Row{Symbol: "X", Date: start.AddDate(0, 0, i), Close: decimal.NewFromInt(int64(i + 1))})
	}
	store := NewStore(rows)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, ok := store.Series("x")
			assert.True(t, ok)
			assert.Len(t, s, 100)
		}()
	}
	wg.Wait()
}

func TestSchemaMismatchIsReported(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.csv", "Day,Price\n2024-01-01,1\n")

	_, err := Open(context.Background(), Options{Dir: dir, Schema: DefaultSchema()}, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.ErrorIs(t, err, ErrNoData)
	assert.Contains(t, err.Error(), "Day,Price")
}

func TestSchemaMismatchSkipsOnlyBadFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.csv", "Day,Price\n2024-01-01,1\n")
	writeFile(t, dir, "good.csv", "Date,Close\n2024-01-01,1\n")

	store, err := Open(context.Background(), Options{Dir: dir, Schema: DefaultSchema()}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"GOOD"}, store.Symbols())
	assert.Equal(t, 1, store.Stats().FailedFiles)
}

func TestSymbolColumnSchema(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "all.csv", "ticker,day,last\n"+
		"aaa,2024-01-01,1\n"+
		"bbb,02-Jan-2024,2\n")

	schema := Schema{SymbolColumn: "Ticker", DateColumn: "Day", CloseColumn: "Last"}
	store, err := Open(context.Background(), Options{Dir: dir, Schema: schema}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA", "BBB"}, store.Symbols())

	bbb, ok := store.Series("bbb")
	require.True(t, ok)
	assert.Equal(t, day("2024-01-02"), bbb[0].Date)
}

func TestMissingSymbolRowsAreCounted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "all.csv", "ticker,day,last\n"+
		"aaa,2024-01-01,1\n"+
		"  ,2024-01-02,2\n"+
		"\n"+
		"aaa,2024-01-03,3\n"+
		"2024-01-04\n")

	schema := Schema{SymbolColumn: "Ticker", DateColumn: "Day", CloseColumn: "Last"}
	store, err := Open(context.Background(), Options{Dir: dir, Schema: schema}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA"}, store.Symbols())

	stats := store.Stats()
	assert.Equal(t, 2, stats.Rows)
	assert.Equal(t, 1, stats.DroppedBadSymbol)
	assert.Equal(t, 1, stats.DroppedBadDate)
	assert.Equal(t, 2, stats.Dropped())
}

func TestNewStoreCountsBlankSymbols(t *testing.T) {
	store := NewStore([]Row{
		{Symbol: "tcs", Date: day("2024-01-01"), Close: decimal.NewFromInt(1)},
		{Symbol: " ", Date: day("2024-01-02"), Close: decimal.NewFromInt(2)},
	})
	assert.Equal(t, []string{"TCS"}, store.Symbols())
	assert.Equal(t, 1, store.Stats().DroppedBadSymbol)
	assert.Equal(t, 1, store.Stats().Rows)
}

func TestSchemaRequiresExactColumns(t *testing.T) {
	// "Close Price" must not be matched by substring.
	_, err := DefaultSchema().resolve([]string{"Date", "Close Price"})
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	cols, err := DefaultSchema().resolve([]string{"\ufeffDATE", " close "})
	require.NoError(t, err)
	assert.Equal(t, 0, cols.date)
	assert.Equal(t, 1, cols.close)
}

func TestMaxFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "Date,Close\n2024-01-01,1\n")
	writeFile(t, dir, "b.csv", "Date,Close\n2024-01-01,1\n")
	writeFile(t, dir, "c.csv", "Date,Close\n2024-01-01,1\n")

	store, err := Open(context.Background(), Options{Dir: dir, Schema: DefaultSchema(), MaxFiles: 2}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, store.Symbols())

	store, err = Open(context.Background(), Options{Dir: dir, Schema: DefaultSchema()}, zerolog.Nop())
	require.NoError(t, err)
	assert.Len(t, store.Symbols(), 3)
}

func TestParquetDirectory(t *testing.T) {
	dir := t.TempDir()
	base := day("2024-03-01")
	bars := []Bar{
		{Timestamp: base.AddDate(0, 0, 1).UnixMilli(), Close: 11.5},
		{Timestamp: base.UnixMilli(), Close: 10.25},
		{Timestamp: base.AddDate(0, 0, 2).UnixMilli(), Close: 0},
	}
	require.NoError(t, WriteBars(filepath.Join(dir, "msft.parquet"), bars))

	store, err := Open(context.Background(), Options{Dir: dir, Format: "parquet", Schema: DefaultSchema()}, zerolog.Nop())
	require.NoError(t, err)

	series, ok := store.Series("MSFT")
	require.True(t, ok)
	require.Len(t, series, 2)
	assert.Equal(t, base, series[0].Date)
	assert.InDelta(t, 11.5, series[1].Close.InexactFloat64(), 1e-9)
	assert.Equal(t, 1, store.Stats().DroppedBadClose)
}

func TestNewLoaderRejectsUnknownFormat(t *testing.T) {
	_, err := NewLoader(Options{Dir: "x", Format: "xlsx", Schema: DefaultSchema()}, zerolog.Nop())
	assert.Error(t, err)
}

func TestSeriesSince(t *testing.T) {
	s := Series{
		{Date: day("2024-01-01")},
		{Date: day("2024-02-01")},
		{Date: day("2024-03-01")},
	}
	assert.Len(t, s.Since(day("2024-01-15")), 2)
	assert.Len(t, s.Since(day("2023-01-01")), 3)
	assert.Empty(t, s.Since(day("2025-01-01")))
}

func TestSummarize(t *testing.T) {
	store := NewStore([]Row{
		{Symbol: "A", Date: day("2024-01-01"), Close: decimal.NewFromInt(1)},
		{Symbol: "A", Date: day("2024-01-02"), Close: decimal.NewFromInt(1)},
		{Symbol: "B", Date: day("2023-06-01"), Close: decimal.NewFromInt(1)},
	})
	sum := store.Summarize()
	assert.Equal(t, 2, sum.Symbols)
	assert.Equal(t, 3, sum.Rows)
	assert.Equal(t, day("2023-06-01"), sum.First)
	assert.Equal(t, day("2024-01-02"), sum.Last)
	assert.Equal(t, 1, sum.Shortest)
	assert.Equal(t, 2, sum.Longest)
	assert.Equal(t, []string{"A"}, sum.TopByLength(1))
}
