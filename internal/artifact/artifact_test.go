package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-predictor/internal/model"
)

func linearArtifact(t *testing.T, intercept float64) *model.Artifact {
	t.Helper()
	a, err := model.NewArtifact(&model.Linear{Window: 2, Intercept: intercept, Coef: []float64{0.5, 0.5}}, model.Metrics{RMSE: 1}, time.Now())
	require.NoError(t, err)
	return a
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models", "model.msgpack")
	require.NoError(t, Save(path, linearArtifact(t, 1)))

	r, a, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, model.KindLinear, a.Kind)
	assert.Equal(t, 1.0, a.Metrics.RMSE)
	assert.Equal(t, 2, r.WindowSize())
	p, err := r.Predict([]float64{2, 4})
	require.NoError(t, err)
	assert.InDelta(t, 4.0, p, 1e-12)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestSaveReplacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.msgpack")
	require.NoError(t, Save(path, linearArtifact(t, 1)))
	require.NoError(t, Save(path, linearArtifact(t, 10)))

	a, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 10.0, a.Linear.Intercept)
}

func TestLoadMissing(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.msgpack"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.msgpack")
	require.NoError(t, os.WriteFile(path, []byte("not msgpack"), 0o644))
	_, _, err := Load(path)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
