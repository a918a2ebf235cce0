package dataset

import (
	"fmt"
	"math"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
)

// Bar is the on-disk layout of a parquet aggregate file, one file per symbol.
type Bar struct {
	Timestamp    int64   `parquet:"t"` // unix milliseconds
	Open         float64 `parquet:"o"`
	High         float64 `parquet:"h"`
	Low          float64 `parquet:"l"`
	Close        float64 `parquet:"c"`
	Volume       int64   `parquet:"v"`
	VWAP         float64 `parquet:"vw,optional"`
	Transactions int64   `parquet:"n,optional"`
}

// WriteBars stores bars in parquet format at path.
func WriteBars(path string, bars []Bar) error {
	return parquet.WriteFile(path, bars)
}

// parquetReader ignores the configured column names: the Bar layout is fixed
// and the symbol always comes from the file name.
type parquetReader struct{}

func (parquetReader) Extension() string { return "parquet" }

func (parquetReader) ReadFile(path string, _ Schema) ([]Row, LoadStats, error) {
	bars, err := parquet.ReadFile[Bar](path)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("%s: %w", path, err)
	}

	symbol := symbolFromPath(path)
	rows := make([]Row, 0, len(bars))
	var stats LoadStats
	for _, b := range bars {
		if b.Timestamp <= 0 {
			stats.DroppedBadDate++
			continue
		}
		if b.Close <= 0 || math.IsNaN(b.Close) || math.IsInf(b.Close, 0) {
			stats.DroppedBadClose++
			continue
		}
		rows = append(rows, Row{
			Symbol: symbol,
			Date:   calendarDate(time.UnixMilli(b.Timestamp).UTC()),
			Close:  decimal.NewFromFloat(b.Close),
		})
	}
	stats.Rows = len(rows)
	return rows, stats, nil
}
