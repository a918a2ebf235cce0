// Package training builds the windowed dataset across all symbols, fits a
// regressor on a seeded shuffle split and evaluates it on the held-out part.
package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"stock-predictor/internal/artifact"
	"stock-predictor/internal/dataset"
	"stock-predictor/internal/model"
	"stock-predictor/internal/window"
)

var (
	// ErrEmptyDataset is returned when no symbol yields a single example.
	ErrEmptyDataset = errors.New("training: empty dataset")
	// ErrLocked is returned when another training run holds the lock.
	ErrLocked = errors.New("training: another run is in progress")
)

// lockKey identifies the training run advisory lock.
const lockKey int64 = 0x5354_4b50_5244

// SeriesSource enumerates the series to train on.
type SeriesSource interface {
	Symbols() []string
	Series(symbol string) (dataset.Series, bool)
}

// Locker serialises training runs across processes.
type Locker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Options configures a Trainer.
type Options struct {
	Window    int
	TestRatio float64
	Seed      uint64
	Kind      model.Kind
	Forest    model.ForestOptions
	Linear    model.LinearOptions
	// Locker is optional; nil disables cross-process locking.
	Locker Locker
	Now    func() time.Time
}

// Report summarises a training run.
type Report struct {
	Kind           model.Kind
	Window         int
	Symbols        int
	SkippedSymbols int
	Examples       int
	TrainSize      int
	TestSize       int
	RMSE           float64
	MAE            float64
	Duration       time.Duration
	ArtifactPath   string
}

// Dataset is the flattened example matrix.
type Dataset struct {
	X       [][]float64
	Y       []float64
	Symbols int
	Skipped int
}

// Trainer runs the training procedure.
type Trainer struct {
	opts   Options
	logger zerolog.Logger
}

// New validates options and returns a Trainer.
func New(opts Options, logger zerolog.Logger) (*Trainer, error) {
	if opts.Window <= 0 {
		return nil, fmt.Errorf("training: window must be > 0, got %d", opts.Window)
	}
	if opts.TestRatio <= 0 || opts.TestRatio >= 1 {
		return nil, fmt.Errorf("training: test ratio must be in (0,1), got %v", opts.TestRatio)
	}
	if opts.Kind == "" {
		opts.Kind = model.KindForest
	}
	if _, err := model.ParseKind(string(opts.Kind)); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Trainer{
		opts:   opts,
		logger: logger.With().Str("component", "training").Logger(),
	}, nil
}

// Build flattens every symbol's examples. Symbols shorter than window+1 are skipped.
func (t *Trainer) Build(ctx context.Context, src SeriesSource) (Dataset, error) {
	var ds Dataset
	for _, sym := range src.Symbols() {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}
		series, ok := src.Series(sym)
		if !ok || window.Count(len(series), t.opts.Window) == 0 {
			ds.Skipped++
			t.logger.Debug().Str("symbol", sym).Int("rows", len(series)).Msg("skip short series")
			continue
		}
		for ex := range window.Examples(series.Closes(), t.opts.Window) {
			ds.X = append(ds.X, ex.Features)
			ds.Y = append(ds.Y, ex.Target)
		}
		ds.Symbols++
	}
	if len(ds.X) == 0 {
		return ds, ErrEmptyDataset
	}
	return ds, nil
}

// Split shuffles indices with the configured seed and returns train and test
// index sets. The test set holds ceil(n*ratio) examples, leaving at least one
// for training.
func (t *Trainer) Split(n int) (train, test []int) {
	perm := rand.New(rand.NewPCG(t.opts.Seed, t.opts.Seed)).Perm(n)
	nTest := int(math.Ceil(float64(n)*t.opts.TestRatio - 1e-9))
	if nTest >= n {
		nTest = max(n-1, 0)
	}
	return perm[nTest:], perm[:nTest]
}

// Fit builds the dataset, fits the regressor and evaluates it.
func (t *Trainer) Fit(ctx context.Context, src SeriesSource) (*model.Artifact, Report, error) {
	start := t.opts.Now()
	ds, err := t.Build(ctx, src)
	if err != nil {
		return nil, Report{}, err
	}

	trainIdx, testIdx := t.Split(len(ds.X))
	xTrain, yTrain := gather(ds, trainIdx)
	xTest, yTest := gather(ds, testIdx)

	t.logger.Info().
		Str("kind", string(t.opts.Kind)).
		Int("symbols", ds.Symbols).
		Int("skipped", ds.Skipped).
		Int("train", len(trainIdx)).
		Int("test", len(testIdx)).
		Msg("fitting model")

	var reg model.Regressor
	switch t.opts.Kind {
	case model.KindLinear:
		reg, err = model.FitLinear(xTrain, yTrain, t.opts.Linear)
	default:
		reg, err = model.FitForest(ctx, xTrain, yTrain, t.opts.Forest)
	}
	if err != nil {
		return nil, Report{}, fmt.Errorf("fit %s: %w", t.opts.Kind, err)
	}

	metrics := model.Metrics{TrainSize: len(trainIdx), TestSize: len(testIdx)}
	if len(testIdx) > 0 {
		preds := make([]float64, len(xTest))
		for i, x := range xTest {
			if preds[i], err = reg.Predict(x); err != nil {
				return nil, Report{}, fmt.Errorf("evaluate: %w", err)
			}
		}
		metrics.RMSE, metrics.MAE = model.Evaluate(preds, yTest)
	} else {
		t.logger.Warn().Msg("no held-out examples, metrics unavailable")
	}

	finished := t.opts.Now()
	art, err := model.NewArtifact(reg, metrics, finished)
	if err != nil {
		return nil, Report{}, err
	}
	rep := Report{
		Kind:           t.opts.Kind,
		Window:         t.opts.Window,
		Symbols:        ds.Symbols,
		SkippedSymbols: ds.Skipped,
		Examples:       len(ds.X),
		TrainSize:      metrics.TrainSize,
		TestSize:       metrics.TestSize,
		RMSE:           metrics.RMSE,
		MAE:            metrics.MAE,
		Duration:       finished.Sub(start),
	}
	return art, rep, nil
}

// Run fits a model and publishes it at path. Nothing is written on failure.
func (t *Trainer) Run(ctx context.Context, src SeriesSource, path string) (Report, error) {
	if t.opts.Locker != nil {
		unlock, acquired, err := t.opts.Locker.TryAdvisoryLock(ctx, lockKey)
		if err != nil {
			return Report{}, fmt.Errorf("acquire training lock: %w", err)
		}
		if !acquired {
			return Report{}, ErrLocked
		}
		defer unlock()
	}

	art, rep, err := t.Fit(ctx, src)
	if err != nil {
		return rep, err
	}
	if err := artifact.Save(path, art); err != nil {
		return rep, err
	}
	rep.ArtifactPath = path

	t.logger.Info().
		Int("examples", rep.Examples).
		Float64("rmse", rep.RMSE).
		Float64("mae", rep.MAE).
		Dur("duration", rep.Duration).
		Str("artifact", path).
		Msg("model trained")
	return rep, nil
}

func gather(ds Dataset, idx []int) ([][]float64, []float64) {
	x := make([][]float64, len(idx))
	y := make([]float64, len(idx))
	for i, j := range idx {
		x[i] = ds.X[j]
		y[i] = ds.Y[j]
	}
	return x, y
}
