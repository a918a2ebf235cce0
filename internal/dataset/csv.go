package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

type csvReader struct{}

func (csvReader) Extension() string { return "csv" }

func (csvReader) ReadFile(path string, schema Schema) ([]Row, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, LoadStats{}, fmt.Errorf("%s: empty file", path)
		}
		return nil, LoadStats{}, fmt.Errorf("%s: read header: %w", path, err)
	}
	cols, err := schema.resolve(header)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("%s: %w", path, err)
	}

	fileSymbol := ""
	if schema.SymbolFromFilename {
		fileSymbol = symbolFromPath(path)
	}

	var (
		rows  []Row
		stats LoadStats
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, LoadStats{}, fmt.Errorf("%s: %w", path, err)
		}

		if cols.date >= len(rec) {
			stats.DroppedBadDate++
			continue
		}
		date, err := schema.parseDate(rec[cols.date])
		if err != nil {
			stats.DroppedBadDate++
			continue
		}
		if cols.close >= len(rec) {
			stats.DroppedBadClose++
			continue
		}
		closePrice, ok := parseClose(rec[cols.close])
		if !ok {
			stats.DroppedBadClose++
			continue
		}

		symbol := fileSymbol
		if symbol == "" && cols.symbol >= 0 && cols.symbol < len(rec) {
			symbol = NormalizeSymbol(rec[cols.symbol])
		}
		if symbol == "" {
			stats.DroppedBadSymbol++
			continue
		}
		rows = append(rows, Row{Symbol: symbol, Date: date, Close: closePrice})
	}
	stats.Rows = len(rows)
	return rows, stats, nil
}
