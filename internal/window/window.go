// Package window turns a close-price series into fixed-width feature vectors.
// The same extraction feeds both training and serving, so a model only ever
// sees windows built here.
package window

import (
	"errors"
	"fmt"
	"iter"
)

// DefaultSize is the number of trailing closes in a window.
const DefaultSize = 30

// ErrInsufficientData is returned when a series is shorter than the window.
var ErrInsufficientData = errors.New("window: insufficient data")

// Example is one supervised pair. Features aliases the input closes and must
// not be modified.
type Example struct {
	Features []float64
	Target   float64
}

// Latest returns a copy of the last size closes, oldest first.
func Latest(closes []float64, size int) ([]float64, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window: invalid size %d", size)
	}
	if len(closes) < size {
		return nil, fmt.Errorf("%w: have %d closes, need %d", ErrInsufficientData, len(closes), size)
	}
	out := make([]float64, size)
	copy(out, closes[len(closes)-size:])
	return out, nil
}

// Examples yields (closes[i-size:i], closes[i]) for every i in [size, len(closes)).
func Examples(closes []float64, size int) iter.Seq[Example] {
	return func(yield func(Example) bool) {
		if size <= 0 {
			return
		}
		for i := size; i < len(closes); i++ {
			ex := Example{Features: closes[i-size : i : i], Target: closes[i]}
			if !yield(ex) {
				return
			}
		}
	}
}

// Count is the number of examples Examples yields for a series of length n.
func Count(n, size int) int {
	if size <= 0 {
		return 0
	}
	return max(0, n-size)
}
