// Package prediction serves next-day close predictions from the latest window
// of a symbol's series, degrading to a flagged fallback value when the model
// or the data cannot produce one.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-predictor/internal/dataset"
	"stock-predictor/internal/model"
	"stock-predictor/internal/window"
)

// Source says where a predicted price came from.
type Source string

const (
	SourceModel    Source = "model"
	SourceFallback Source = "fallback"
)

// Result is one prediction.
type Result struct {
	Symbol         string
	PredictedPrice decimal.Decimal
	Source         Source
}

// SeriesSource looks up a symbol's series. A missing symbol is reported with
// ok=false; err is reserved for failures of the source itself.
type SeriesSource interface {
	Series(ctx context.Context, symbol string) (series dataset.Series, ok bool, err error)
}

// Recorder observes served predictions.
type Recorder interface {
	ObservePrediction(source string, elapsed time.Duration)
}

// Journal persists served predictions.
type Journal interface {
	RecordPrediction(ctx context.Context, res Result, modelKind string, at time.Time) error
}

// Options configures a Service.
type Options struct {
	// Model may be nil, in which case every prediction is a fallback.
	Model     model.Regressor
	ModelKind string
	Window    int
	Fallback  *Fallback
	Recorder  Recorder
	Journal   Journal
}

// Service turns a symbol into a prediction.
type Service struct {
	source   SeriesSource
	model    model.Regressor
	kind     string
	window   int
	fallback *Fallback
	recorder Recorder
	journal  Journal
	logger   zerolog.Logger
}

// NewService wires a prediction service. When a model is given its window
// size must match the configured one.
func NewService(source SeriesSource, opts Options, logger zerolog.Logger) (*Service, error) {
	if source == nil {
		return nil, errors.New("prediction: series source is required")
	}
	if opts.Window <= 0 {
		opts.Window = window.DefaultSize
	}
	if opts.Fallback == nil {
		opts.Fallback = NewFallback(DefaultFallbackBase, DefaultFallbackSpread, nil)
	}
	log := logger.With().Str("component", "prediction").Logger()
	if opts.Model != nil && opts.Model.WindowSize() != opts.Window {
		return nil, fmt.Errorf("%w: model expects %d closes, configured window is %d",
			model.ErrWindowSize, opts.Model.WindowSize(), opts.Window)
	}
	if opts.Model == nil {
		log.Warn().Msg("no model loaded, serving fallback predictions only")
	}
	return &Service{
		source:   source,
		model:    opts.Model,
		kind:     opts.ModelKind,
		window:   opts.Window,
		fallback: opts.Fallback,
		recorder: opts.Recorder,
		journal:  opts.Journal,
		logger:   log,
	}, nil
}

// ModelLoaded reports whether predictions can come from a model.
func (s *Service) ModelLoaded() bool { return s.model != nil }

// WindowSize is the number of trailing closes fed to the model.
func (s *Service) WindowSize() int { return s.window }

// Predict returns a prediction for symbol. Missing data or a missing model
// never produce an error; only a failing series source does.
func (s *Service) Predict(ctx context.Context, symbol string) (Result, error) {
	start := time.Now()
	symbol = dataset.NormalizeSymbol(symbol)

	res, err := s.predict(ctx, symbol)
	if err != nil {
		return Result{}, err
	}

	if s.recorder != nil {
		s.recorder.ObservePrediction(string(res.Source), time.Since(start))
	}
	if s.journal != nil {
		if err := s.journal.RecordPrediction(ctx, res, s.kind, start); err != nil {
			s.logger.Warn().Err(err).Str("symbol", symbol).Msg("record prediction failed")
		}
	}
	return res, nil
}

func (s *Service) predict(ctx context.Context, symbol string) (Result, error) {
	if s.model == nil {
		return s.fallbackResult(symbol), nil
	}

	series, ok, err := s.source.Series(ctx, symbol)
	if err != nil {
		return Result{}, fmt.Errorf("lookup %s: %w", symbol, err)
	}
	if !ok {
		s.logger.Debug().Str("symbol", symbol).Msg("unknown symbol, using fallback")
		return s.fallbackResult(symbol), nil
	}

	win, err := window.Latest(series.Closes(), s.window)
	if err != nil {
		s.logger.Debug().Str("symbol", symbol).Int("rows", len(series)).Msg("series shorter than window, using fallback")
		return s.fallbackResult(symbol), nil
	}

	v, err := s.model.Predict(win)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("model prediction failed, using fallback")
		return s.fallbackResult(symbol), nil
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		s.logger.Warn().Str("symbol", symbol).Float64("value", v).Msg("non-finite model output, using fallback")
		return s.fallbackResult(symbol), nil
	}

	return Result{
		Symbol:         symbol,
		PredictedPrice: decimal.NewFromFloat(v).Round(2),
		Source:         SourceModel,
	}, nil
}

func (s *Service) fallbackResult(symbol string) Result {
	return Result{Symbol: symbol, PredictedPrice: s.fallback.Value(), Source: SourceFallback}
}

// StoreSource adapts an in-memory store to SeriesSource.
type StoreSource struct {
	Store interface {
		Series(symbol string) (dataset.Series, bool)
	}
}

func (s StoreSource) Series(_ context.Context, symbol string) (dataset.Series, bool, error) {
	series, ok := s.Store.Series(symbol)
	return series, ok, nil
}
