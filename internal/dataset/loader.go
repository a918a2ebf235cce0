package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrNoData is returned when no file in the dataset directory could be read.
var ErrNoData = errors.New("dataset: no readable files")

// Options configures a Loader.
type Options struct {
	Dir    string
	Format string
	Schema Schema
	// MaxFiles caps how many files are read; zero means no cap.
	MaxFiles int
}

// Loader reads the raw table from storage.
type Loader interface {
	Load(ctx context.Context) ([]Row, LoadStats, error)
}

// fileReader parses one file into rows.
type fileReader interface {
	Extension() string
	ReadFile(path string, schema Schema) ([]Row, LoadStats, error)
}

// NewLoader returns a loader for the configured file format (csv, parquet).
func NewLoader(opts Options, logger zerolog.Logger) (Loader, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("dataset: dir is required")
	}
	if err := opts.Schema.Validate(); err != nil {
		return nil, err
	}
	if opts.MaxFiles < 0 {
		return nil, errors.New("dataset: max_files must be >= 0")
	}

	var reader fileReader
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "csv":
		reader = csvReader{}
	case "parquet":
		reader = parquetReader{}
	default:
		return nil, fmt.Errorf("dataset: unsupported format %q (use csv or parquet)", opts.Format)
	}

	return &dirLoader{
		opts:   opts,
		reader: reader,
		logger: logger.With().Str("component", "dataset").Logger(),
	}, nil
}

// Open loads the configured directory and builds a Store.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (*Store, error) {
	loader, err := NewLoader(opts, logger)
	if err != nil {
		return nil, err
	}
	rows, stats, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	store := NewStore(rows)
	// NewStore recounts rows after duplicates collapse.
	stats.Rows = 0
	store.stats.merge(stats)

	s := store.stats
	logger.Info().
		Str("component", "dataset").
		Int("files", s.Files).
		Int("failed_files", s.FailedFiles).
		Int("symbols", len(store.symbols)).
		Int("rows", s.Rows).
		Int("dropped_bad_symbol", s.DroppedBadSymbol).
		Int("dropped_bad_date", s.DroppedBadDate).
		Int("dropped_bad_close", s.DroppedBadClose).
		Int("dropped_duplicate", s.DroppedDuplicate).
		Msg("dataset loaded")
	return store, nil
}

type dirLoader struct {
	opts   Options
	reader fileReader
	logger zerolog.Logger
}

func (l *dirLoader) Load(ctx context.Context) ([]Row, LoadStats, error) {
	files, err := l.files()
	if err != nil {
		return nil, LoadStats{}, err
	}
	if len(files) == 0 {
		return nil, LoadStats{}, fmt.Errorf("%w: no *.%s files in %s", ErrNoData, l.reader.Extension(), l.opts.Dir)
	}

	var (
		rows     []Row
		stats    LoadStats
		firstErr error
	)
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		fileRows, fileStats, err := l.reader.ReadFile(path, l.opts.Schema)
		if err != nil {
			stats.FailedFiles++
			if firstErr == nil {
				firstErr = err
			}
			l.logger.Error().Err(err).Str("file", filepath.Base(path)).Msg("skip unreadable file")
			continue
		}
		stats.merge(fileStats)
		stats.Files++
		rows = append(rows, fileRows...)
		if d := fileStats.Dropped(); d > 0 {
			l.logger.Debug().Str("file", filepath.Base(path)).Int("dropped", d).Msg("rows dropped")
		}
	}

	if stats.Files == 0 {
		return nil, stats, fmt.Errorf("%w: %w", ErrNoData, firstErr)
	}
	return rows, stats, nil
}

func (l *dirLoader) files() ([]string, error) {
	entries, err := os.ReadDir(l.opts.Dir)
	if err != nil {
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}
	ext := "." + l.reader.Extension()
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		files = append(files, filepath.Join(l.opts.Dir, e.Name()))
	}
	slices.Sort(files)
	if l.opts.MaxFiles > 0 && len(files) > l.opts.MaxFiles {
		l.logger.Warn().Int("found", len(files)).Int("max_files", l.opts.MaxFiles).Msg("file cap applied")
		files = files[:l.opts.MaxFiles]
	}
	return files, nil
}

func symbolFromPath(path string) string {
	base := filepath.Base(path)
	return NormalizeSymbol(strings.TrimSuffix(base, filepath.Ext(base)))
}

// parseClose accepts only finite, strictly positive prices.
func parseClose(v string) (decimal.Decimal, bool) {
	v = strings.ReplaceAll(strings.TrimSpace(v), ",", "")
	if v == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(v)
	if err != nil || !d.IsPositive() {
		return decimal.Decimal{}, false
	}
	return d, true
}
