// Package model holds the regressors that map a close-price window to the
// next close, and the artifact envelope they are persisted in.
package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrWindowSize is returned when an input window has the wrong length.
var ErrWindowSize = errors.New("model: window size mismatch")

// Regressor predicts the next close from a window of trailing closes.
// Implementations are immutable once fitted and safe for concurrent use.
type Regressor interface {
	Predict(window []float64) (float64, error)
	WindowSize() int
}

// Kind identifies a regressor implementation.
type Kind string

const (
	KindForest Kind = "forest"
	KindLinear Kind = "linear"
)

// ParseKind validates a configured model kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindForest, KindLinear:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("model: unknown kind %q (use forest or linear)", s)
	}
}

func checkWindow(window []float64, size int) error {
	if len(window) != size {
		return fmt.Errorf("%w: got %d, want %d", ErrWindowSize, len(window), size)
	}
	return nil
}

// Metrics are held-out evaluation results.
type Metrics struct {
	RMSE      float64 `msgpack:"rmse"`
	MAE       float64 `msgpack:"mae"`
	TrainSize int     `msgpack:"train_size"`
	TestSize  int     `msgpack:"test_size"`
}

// Evaluate computes RMSE and MAE of predictions against targets.
func Evaluate(predicted, actual []float64) (rmse, mae float64) {
	if len(predicted) == 0 || len(predicted) != len(actual) {
		return math.NaN(), math.NaN()
	}
	n := float64(len(actual))
	rmse = floats.Distance(predicted, actual, 2) / math.Sqrt(n)
	mae = floats.Distance(predicted, actual, 1) / n
	return rmse, mae
}
