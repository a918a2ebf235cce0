package model

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// ArtifactVersion is bumped whenever the encoded layout changes.
const ArtifactVersion = 1

// Artifact is the persisted form of a trained regressor. Exactly one of
// Forest or Linear is set, according to Kind.
type Artifact struct {
	Version    int       `msgpack:"version"`
	Kind       Kind      `msgpack:"kind"`
	WindowSize int       `msgpack:"window_size"`
	TrainedAt  time.Time `msgpack:"trained_at"`
	Metrics    Metrics   `msgpack:"metrics"`
	Forest     *Forest   `msgpack:"forest,omitempty"`
	Linear     *Linear   `msgpack:"linear,omitempty"`
}

// NewArtifact wraps a fitted regressor.
func NewArtifact(r Regressor, metrics Metrics, trainedAt time.Time) (*Artifact, error) {
	a := &Artifact{
		Version:    ArtifactVersion,
		WindowSize: r.WindowSize(),
		TrainedAt:  trainedAt.UTC(),
		Metrics:    metrics,
	}
	switch m := r.(type) {
	case *Forest:
		a.Kind, a.Forest = KindForest, m
	case *Linear:
		a.Kind, a.Linear = KindLinear, m
	default:
		return nil, fmt.Errorf("model: cannot persist %T", r)
	}
	return a, nil
}

// Regressor validates the envelope and returns the contained model.
func (a *Artifact) Regressor() (Regressor, error) {
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("model: unsupported artifact version %d", a.Version)
	}
	if a.WindowSize <= 0 {
		return nil, fmt.Errorf("model: invalid window size %d", a.WindowSize)
	}
	switch a.Kind {
	case KindForest:
		if a.Forest == nil || len(a.Forest.Trees) == 0 {
			return nil, errors.New("model: artifact has no forest")
		}
		if a.Forest.Window != a.WindowSize {
			return nil, fmt.Errorf("%w: forest %d, artifact %d", ErrWindowSize, a.Forest.Window, a.WindowSize)
		}
		for i := range a.Forest.Trees {
			if err := a.Forest.Trees[i].validate(a.WindowSize); err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
		}
		return a.Forest, nil
	case KindLinear:
		if a.Linear == nil {
			return nil, errors.New("model: artifact has no linear model")
		}
		if a.Linear.Window != a.WindowSize || len(a.Linear.Coef) != a.WindowSize {
			return nil, fmt.Errorf("%w: linear %d coefficients, artifact %d", ErrWindowSize, len(a.Linear.Coef), a.WindowSize)
		}
		return a.Linear, nil
	default:
		return nil, fmt.Errorf("model: unknown artifact kind %q", a.Kind)
	}
}

// Encode writes the artifact as a single msgpack document.
func Encode(w io.Writer, a *Artifact) error {
	return msgpack.NewEncoder(w).Encode(a)
}

// Decode reads an artifact written by Encode.
func Decode(r io.Reader) (*Artifact, error) {
	var a Artifact
	if err := msgpack.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("model: decode artifact: %w", err)
	}
	return &a, nil
}
