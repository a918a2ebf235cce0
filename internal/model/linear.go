package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// LinearOptions controls ridge regression.
type LinearOptions struct {
	Lambda float64
}

// Linear is a ridge regression over the window with an unpenalised intercept.
type Linear struct {
	Window    int       `msgpack:"window"`
	Intercept float64   `msgpack:"intercept"`
	Coef      []float64 `msgpack:"coef"`
}

var _ Regressor = (*Linear)(nil)

// FitLinear solves (XcᵀXc + λI)β = Xcᵀyc on mean-centred data.
func FitLinear(x [][]float64, y []float64, opts LinearOptions) (*Linear, error) {
	if len(x) == 0 {
		return nil, errors.New("model: no training examples")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("model: %d feature rows but %d targets", len(x), len(y))
	}
	if opts.Lambda < 0 {
		return nil, errors.New("model: lambda must be >= 0")
	}
	n, p := len(x), len(x[0])

	design := mat.NewDense(n, p, nil)
	for i, row := range x {
		if len(row) != p {
			return nil, fmt.Errorf("%w: row %d has %d features, want %d", ErrWindowSize, i, len(row), p)
		}
		design.SetRow(i, row)
	}

	means := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, design)
		means[j] = stat.Mean(col, nil)
		floats.AddConst(-means[j], col)
		design.SetCol(j, col)
	}
	yMean := stat.Mean(y, nil)
	yc := make([]float64, n)
	copy(yc, y)
	floats.AddConst(-yMean, yc)

	var gram mat.Dense
	gram.Mul(design.T(), design)
	sym := mat.NewSymDense(p, nil)
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			v := gram.At(i, j)
			if i == j {
				v += opts.Lambda
			}
			sym.SetSym(i, j, v)
		}
	}

	var rhs mat.VecDense
	rhs.MulVec(design.T(), mat.NewVecDense(n, yc))

	var beta mat.VecDense
	var chol mat.Cholesky
	if chol.Factorize(sym) {
		if err := chol.SolveVecTo(&beta, &rhs); err != nil {
			return nil, fmt.Errorf("model: ridge solve: %w", err)
		}
	} else if err := beta.SolveVec(sym, &rhs); err != nil {
		return nil, fmt.Errorf("model: ridge solve: %w", err)
	}

	coef := make([]float64, p)
	for j := range coef {
		coef[j] = beta.AtVec(j)
	}
	return &Linear{
		Window:    p,
		Intercept: yMean - floats.Dot(coef, means),
		Coef:      coef,
	}, nil
}

func (l *Linear) Predict(window []float64) (float64, error) {
	if err := checkWindow(window, l.Window); err != nil {
		return 0, err
	}
	return l.Intercept + floats.Dot(l.Coef, window), nil
}

func (l *Linear) WindowSize() int { return l.Window }
