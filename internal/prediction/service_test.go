package prediction

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-predictor/internal/dataset"
	"stock-predictor/internal/model"
	"stock-predictor/internal/window"
)

// meanModel predicts the mean of the window plus a small offset so that
// rounding is exercised.
type meanModel struct {
	size   int
	offset float64
	err    error
	calls  int
	mu     sync.Mutex
}

func (m *meanModel) Predict(w []float64) (float64, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if len(w) != m.size {
		return 0, model.ErrWindowSize
	}
	var sum float64
	for _, v := range w {
		sum += v
	}
	return sum/float64(len(w)) + m.offset, nil
}

func (m *meanModel) WindowSize() int { return m.size }

type constModel struct{ v float64 }

func (c constModel) Predict([]float64) (float64, error) { return c.v, nil }
func (c constModel) WindowSize() int                    { return 30 }

func storeWith(symbol string, n int) *dataset.Store {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]dataset.Row, n)
	for i := range rows {
		rows[i] = dataset.Row{Symbol: symbol, Date: base.AddDate(0, 0, i), Close: decimal.NewFromInt(int64(100 + i))}
	}
	return dataset.NewStore(rows)
}

func newService(t *testing.T, store *dataset.Store, m model.Regressor) *Service {
	t.Helper()
	svc, err := NewService(StoreSource{Store: store}, Options{
		Model:    m,
		Window:   30,
		Fallback: NewFallback(100, 10, rand.NewPCG(1, 2)),
	}, zerolog.Nop())
	require.NoError(t, err)
	return svc
}

func assertFallback(t *testing.T, res Result) {
	t.Helper()
	assert.Equal(t, SourceFallback, res.Source)
	v := res.PredictedPrice.InexactFloat64()
	assert.GreaterOrEqual(t, v, 90.0)
	assert.LessOrEqual(t, v, 110.0)
	assert.LessOrEqual(t, -res.PredictedPrice.Exponent(), int32(2))
}

func TestPredictWithModel(t *testing.T) {
	m := &meanModel{size: 30, offset: 0.004}
	svc := newService(t, storeWith("TCS", 40), m)

	res, err := svc.Predict(context.Background(), "tcs")
	require.NoError(t, err)
	assert.Equal(t, "TCS", res.Symbol)
	assert.Equal(t, SourceModel, res.Source)
	// window is 110..139, mean 124.5
	assert.True(t, res.PredictedPrice.Equal(decimal.RequireFromString("124.5")), res.PredictedPrice.String())
}

func TestPredictIdempotentWithModel(t *testing.T) {
	store := storeWith("TCS", 40)
	series, ok := store.Series("TCS")
	require.True(t, ok)

	var x [][]float64
	var y []float64
	for ex := range window.Examples(series.Closes(), 30) {
		x = append(x, ex.Features)
		y = append(y, ex.Target)
	}
	linear, err := model.FitLinear(x, y, model.LinearOptions{Lambda: 1})
	require.NoError(t, err)
	forest, err := model.FitForest(context.Background(), x, y, model.ForestOptions{Trees: 10, MinLeaf: 1, Seed: 7})
	require.NoError(t, err)

	for name, m := range map[string]model.Regressor{"linear": linear, "forest": forest} {
		svc := newService(t, store, m)
		first, err := svc.Predict(context.Background(), "TCS")
		require.NoError(t, err, name)
		second, err := svc.Predict(context.Background(), "tcs")
		require.NoError(t, err, name)

		assert.Equal(t, SourceModel, first.Source, name)
		assert.Equal(t, first.Symbol, second.Symbol, name)
		assert.Equal(t, first.Source, second.Source, name)
		assert.True(t, first.PredictedPrice.Equal(second.PredictedPrice), "%s: %s != %s", name, first.PredictedPrice, second.PredictedPrice)
	}
}

func TestPredictUnknownSymbolFallsBack(t *testing.T) {
	m := &meanModel{size: 30}
	svc := newService(t, storeWith("TCS", 40), m)

	res, err := svc.Predict(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", res.Symbol)
	assertFallback(t, res)
	assert.Zero(t, m.calls)
}

func TestPredictShortSeriesFallsBack(t *testing.T) {
	m := &meanModel{size: 30}
	svc := newService(t, storeWith("TCS", 29), m)

	res, err := svc.Predict(context.Background(), "TCS")
	require.NoError(t, err)
	assertFallback(t, res)
	assert.Zero(t, m.calls)
}

func TestPredictExactlyWindowUsesModel(t *testing.T) {
	svc := newService(t, storeWith("TCS", 30), &meanModel{size: 30})

	res, err := svc.Predict(context.Background(), "TCS")
	require.NoError(t, err)
	assert.Equal(t, SourceModel, res.Source)
}

func TestPredictWithoutModel(t *testing.T) {
	svc := newService(t, storeWith("TCS", 40), nil)
	assert.False(t, svc.ModelLoaded())

	for i := 0; i < 50; i++ {
		res, err := svc.Predict(context.Background(), "TCS")
		require.NoError(t, err)
		assertFallback(t, res)
	}
}

func TestPredictModelErrorFallsBack(t *testing.T) {
	svc := newService(t, storeWith("TCS", 40), &meanModel{size: 30, err: errors.New("boom")})
	res, err := svc.Predict(context.Background(), "TCS")
	require.NoError(t, err)
	assertFallback(t, res)
}

func TestPredictNonFiniteFallsBack(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		svc := newService(t, storeWith("TCS", 40), constModel{v: v})
		res, err := svc.Predict(context.Background(), "TCS")
		require.NoError(t, err)
		assertFallback(t, res)
	}
}

func TestPredictModelRounding(t *testing.T) {
	svc := newService(t, storeWith("TCS", 40), constModel{v: 123.456})
	res, err := svc.Predict(context.Background(), "TCS")
	require.NoError(t, err)
	assert.Equal(t, "123.46", res.PredictedPrice.StringFixed(2))
}

type failingSource struct{}

func (failingSource) Series(context.Context, string) (dataset.Series, bool, error) {
	return nil, false, errors.New("source down")
}

func TestPredictSourceErrorPropagates(t *testing.T) {
	svc, err := NewService(failingSource{}, Options{Model: &meanModel{size: 30}, Window: 30}, zerolog.Nop())
	require.NoError(t, err)
	_, err = svc.Predict(context.Background(), "TCS")
	assert.Error(t, err)
}

func TestNewServiceRejectsWindowMismatch(t *testing.T) {
	_, err := NewService(StoreSource{Store: storeWith("A", 1)}, Options{Model: &meanModel{size: 10}, Window: 30}, zerolog.Nop())
	assert.ErrorIs(t, err, model.ErrWindowSize)
}

type recorder struct {
	mu      sync.Mutex
	sources []string
}

func (r *recorder) ObservePrediction(source string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, source)
}

type journal struct {
	results []Result
	err     error
}

func (j *journal) RecordPrediction(_ context.Context, res Result, _ string, _ time.Time) error {
	j.results = append(j.results, res)
	return j.err
}

func TestPredictNotifiesRecorderAndJournal(t *testing.T) {
	rec := &recorder{}
	jr := &journal{err: errors.New("db down")}
	svc, err := NewService(StoreSource{Store: storeWith("TCS", 40)}, Options{
		Model:    &meanModel{size: 30},
		Window:   30,
		Recorder: rec,
		Journal:  jr,
	}, zerolog.Nop())
	require.NoError(t, err)

	_, err = svc.Predict(context.Background(), "TCS")
	require.NoError(t, err, "journal failures must not fail the prediction")
	_, err = svc.Predict(context.Background(), "NONE")
	require.NoError(t, err)

	assert.Equal(t, []string{"model", "fallback"}, rec.sources)
	require.Len(t, jr.results, 2)
	assert.Equal(t, SourceFallback, jr.results[1].Source)
}

func TestPredictConcurrent(t *testing.T) {
	svc := newService(t, storeWith("TCS", 60), &meanModel{size: 30})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sym := "TCS"
			if i%2 == 1 {
				sym = "NONE"
			}
			res, err := svc.Predict(context.Background(), sym)
			assert.NoError(t, err)
			assert.NotEmpty(t, res.Source)
		}(i)
	}
	wg.Wait()
}

func TestFallbackBoundsAndPrecision(t *testing.T) {
	f := NewFallback(100, 10, rand.NewPCG(7, 7))
	lo, hi := f.Bounds()
	for i := 0; i < 1000; i++ {
		v := f.Value()
		assert.True(t, v.GreaterThanOrEqual(lo) && v.LessThanOrEqual(hi), v.String())
		assert.True(t, v.Equal(v.Round(2)))
	}
}

func TestFallbackDeterministicWithSeed(t *testing.T) {
	a := NewFallback(100, 10, rand.NewPCG(3, 4))
	b := NewFallback(100, 10, rand.NewPCG(3, 4))
	for i := 0; i < 10; i++ {
		assert.True(t, a.Value().Equal(b.Value()))
	}
}
