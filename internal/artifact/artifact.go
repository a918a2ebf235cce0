// Package artifact stores trained models on the local filesystem.
package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"stock-predictor/internal/model"
)

// ErrNotFound is returned when no artifact exists at the path.
var ErrNotFound = errors.New("artifact: not found")

// Save publishes a atomically: it is written to a temporary file in the same
// directory, synced, then renamed over path.
func Save(path string, a *model.Artifact) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("artifact: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("artifact: create temp: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if err = model.Encode(w, a); err != nil {
		return fmt.Errorf("artifact: encode: %w", err)
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("artifact: write: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("artifact: sync: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("artifact: close: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("artifact: publish: %w", err)
	}
	return nil
}

// Read decodes the artifact envelope at path.
func Read(path string) (*model.Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("artifact: open: %w", err)
	}
	defer f.Close()
	return model.Decode(bufio.NewReader(f))
}

// Load reads and validates the artifact at path. It returns the regressor
// together with the envelope so callers can report kind and metrics.
func Load(path string) (model.Regressor, *model.Artifact, error) {
	a, err := Read(path)
	if err != nil {
		return nil, nil, err
	}
	reg, err := a.Regressor()
	if err != nil {
		return nil, nil, err
	}
	return reg, a, nil
}
