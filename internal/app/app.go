package app

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"

	"stock-predictor/internal/alerting"
	"stock-predictor/internal/artifact"
	"stock-predictor/internal/config"
	"stock-predictor/internal/dataset"
	"stock-predictor/internal/model"
	"stock-predictor/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output. Defaults to stdout.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
	}
}

func (a *App) out() io.Writer {
	if a.Out == nil {
		return os.Stdout
	}
	return a.Out
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

// openStore returns a nil store when no DSN is configured.
func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) datasetOptions() dataset.Options {
	cfg := a.Config.Dataset
	schema := dataset.DefaultSchema()
	schema.SymbolFromFilename = cfg.SymbolFromFilename
	if cfg.SymbolColumn != "" {
		schema.SymbolColumn = cfg.SymbolColumn
	}
	if cfg.DateColumn != "" {
		schema.DateColumn = cfg.DateColumn
	}
	if cfg.CloseColumn != "" {
		schema.CloseColumn = cfg.CloseColumn
	}
	if len(cfg.DateLayouts) > 0 {
		schema.DateLayouts = cfg.DateLayouts
	}
	return dataset.Options{
		Dir:      cfg.Dir,
		Format:   cfg.Format,
		Schema:   schema,
		MaxFiles: cfg.MaxFiles,
	}
}

func (a *App) loadDataset(ctx context.Context) (*dataset.Store, error) {
	return dataset.Open(ctx, a.datasetOptions(), a.Logger)
}

// loadDatasetOrEmpty keeps the server up on an empty or missing data
// directory; every prediction then falls back.
func (a *App) loadDatasetOrEmpty(ctx context.Context) (*dataset.Store, error) {
	store, err := a.loadDataset(ctx)
	if err == nil {
		return store, nil
	}
	if errors.Is(err, dataset.ErrNoData) || errors.Is(err, fs.ErrNotExist) {
		a.Logger.Warn().Err(err).Str("dir", a.Config.Dataset.Dir).Msg("no historical data available")
		return dataset.NewStore(nil), nil
	}
	return nil, err
}

// loadedModel is the serving model plus the metadata recorded at training time.
type loadedModel struct {
	Regressor model.Regressor
	Kind      model.Kind
	Metrics   model.Metrics
	TrainedAt time.Time
}

// loadModel reads the artifact once. A missing or unreadable artifact yields
// nil so that the caller serves fallback values.
func (a *App) loadModel() *loadedModel {
	path := a.Config.Model.Path
	reg, art, err := artifact.Load(path)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			a.Logger.Warn().Str("path", path).Msg("model artifact not found")
		} else {
			a.Logger.Error().Err(err).Str("path", path).Msg("model artifact unreadable")
		}
		return nil
	}
	a.Logger.Info().
		Str("path", path).
		Str("kind", string(art.Kind)).
		Int("window", art.WindowSize).
		Time("trained_at", art.TrainedAt).
		Float64("rmse", art.Metrics.RMSE).
		Msg("model loaded")
	return &loadedModel{Regressor: reg, Kind: art.Kind, Metrics: art.Metrics, TrainedAt: art.TrainedAt}
}

// TrainOptions override the configured training parameters.
type TrainOptions struct {
	Kind   string
	Output string
	DryRun bool
}

// PredictOptions configure the predict command.
type PredictOptions struct {
	Symbols []string
	// ServerURL sends the request to a running server instead of predicting locally.
	ServerURL string
}

// InspectOptions configure the inspect command.
type InspectOptions struct {
	Top int
}

// ExportOptions hold parameters for exporting a symbol's history.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
	// ServerURL, when set, reads closes and the prediction from a running
	// server instead of the local dataset.
	ServerURL string
	// Range is the server price range (1mo, 6mo, 1y); defaults to 1y.
	Range string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	Runs  bool
}
