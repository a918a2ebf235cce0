package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"stock-predictor/internal/client"
	"stock-predictor/internal/dataset"
	"stock-predictor/internal/prediction"
)

const dateLayout = "2006-01-02"

// Export renders a symbol's history and its next-day prediction as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
		return errors.New("from must be before to")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)
	opts.CSVPath = a.exportPath(opts.CSVPath)
	opts.PNGPath = a.exportPath(opts.PNGPath)

	series, pred, err := a.exportSource(ctx, opts)
	if err != nil {
		return err
	}

	points := clipSeries(series, opts.From, opts.To)
	if len(points) == 0 {
		a.Logger.Info().Str("symbol", pred.Symbol).Msg("no closes found for export window")
		return nil
	}

	downsampled := downsampleSeries(points, opts.MaxPoints)
	last, _ := series.Last()
	next := nextTradingDay(last.Date)
	a.Logger.Info().
		Str("symbol", pred.Symbol).
		Int("total", len(points)).
		Int("exported", len(downsampled)).
		Str("predicted", pred.PredictedPrice.StringFixed(2)).
		Str("source", string(pred.Source)).
		Msg("exporting series")

	if opts.CSVPath != "" {
		if err := writeSeriesCSV(opts.CSVPath, downsampled, next, pred); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSeriesPNG(opts.PNGPath, downsampled, next, pred); err != nil {
			return err
		}
	}

	return nil
}

// exportSource returns the symbol's closes and its prediction, read either
// from the local dataset or from a running server. The prediction always
// uses the full series, independent of the export window.
func (a *App) exportSource(ctx context.Context, opts ExportOptions) (dataset.Series, prediction.Result, error) {
	if strings.TrimSpace(opts.ServerURL) != "" {
		return a.remoteExportSource(ctx, opts)
	}

	store, err := a.loadDataset(ctx)
	if err != nil {
		return nil, prediction.Result{}, err
	}
	series, ok := store.Series(opts.Symbol)
	if !ok {
		return nil, prediction.Result{}, fmt.Errorf("no data for symbol %s", dataset.NormalizeSymbol(opts.Symbol))
	}
	svc, err := a.localService(store)
	if err != nil {
		return nil, prediction.Result{}, err
	}
	pred, err := svc.Predict(ctx, opts.Symbol)
	if err != nil {
		return nil, prediction.Result{}, err
	}
	return series, pred, nil
}

func (a *App) remoteExportSource(ctx context.Context, opts ExportOptions) (dataset.Series, prediction.Result, error) {
	c, err := a.newClient(opts.ServerURL)
	if err != nil {
		return nil, prediction.Result{}, err
	}
	rng := opts.Range
	if rng == "" {
		rng = "1y"
	}
	prices, err := c.Prices(ctx, opts.Symbol, rng)
	if err != nil {
		return nil, prediction.Result{}, err
	}
	if len(prices) == 0 {
		return nil, prediction.Result{}, fmt.Errorf("no data for symbol %s", dataset.NormalizeSymbol(opts.Symbol))
	}
	series, err := seriesFromPrices(prices)
	if err != nil {
		return nil, prediction.Result{}, err
	}
	pred, err := c.Predict(ctx, opts.Symbol)
	if err != nil {
		return nil, prediction.Result{}, err
	}
	return series, pred, nil
}

func seriesFromPrices(prices []client.PricePoint) (dataset.Series, error) {
	series := make(dataset.Series, 0, len(prices))
	for _, p := range prices {
		d, err := time.Parse(dateLayout, p.Date)
		if err != nil {
			return nil, fmt.Errorf("server price date %q: %w", p.Date, err)
		}
		series = append(series, dataset.PricePoint{Date: d, Close: decimal.NewFromFloat(p.Close)})
	}
	return series, nil
}

// exportPath places bare file names under export.dir.
func (a *App) exportPath(p string) string {
	if p == "" || a.Config.Export.Dir == "" || filepath.IsAbs(p) || filepath.Dir(p) != "." {
		return p
	}
	return filepath.Join(a.Config.Export.Dir, p)
}

// clipSeries keeps points in [from, to).
func clipSeries(series dataset.Series, from, to *time.Time) dataset.Series {
	if from != nil {
		series = series.Since(from.UTC())
	}
	if to == nil {
		return series
	}
	for i, p := range series {
		if !p.Date.Before(to.UTC()) {
			return series[:i]
		}
	}
	return series
}

func downsampleSeries(points dataset.Series, max int) dataset.Series {
	if max <= 0 || len(points) <= max {
		return points
	}
	if max == 1 {
		return points[len(points)-1:]
	}

	result := make(dataset.Series, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

// nextTradingDay skips weekends; exchange holidays are not modelled.
func nextTradingDay(t time.Time) time.Time {
	next := t.AddDate(0, 0, 1)
	for next.Weekday() == time.Saturday || next.Weekday() == time.Sunday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func writeSeriesCSV(path string, points dataset.Series, next time.Time, pred prediction.Result) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"date", "close", "kind"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := writer.Write([]string{p.Date.Format(dateLayout), p.Close.String(), "actual"}); err != nil {
			return err
		}
	}
	record := []string{next.Format(dateLayout), pred.PredictedPrice.StringFixed(2), "predicted_" + string(pred.Source)}
	if err := writer.Write(record); err != nil {
		return err
	}

	writer.Flush()
	return writer.Error()
}

func writeSeriesPNG(path string, points dataset.Series, next time.Time, pred prediction.Result) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(points))
	closes := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.Date
		closes[i] = p.Close.InexactFloat64()
	}
	last := points[len(points)-1]

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  pred.Symbol,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Close",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Close",
				XValues: x,
				YValues: closes,
			},
			chart.TimeSeries{
				Name: fmt.Sprintf("Predicted (%s)", pred.Source),
				Style: chart.Style{
					StrokeColor:     drawing.ColorRed,
					StrokeDashArray: []float64{5, 5},
					DotColor:        drawing.ColorRed,
					DotWidth:        4,
				},
				XValues: []time.Time{last.Date, next},
				YValues: []float64{last.Close.InexactFloat64(), pred.PredictedPrice.InexactFloat64()},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
