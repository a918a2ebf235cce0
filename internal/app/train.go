package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"stock-predictor/internal/alerting"
	"stock-predictor/internal/model"
	"stock-predictor/internal/storage"
	"stock-predictor/internal/training"
)

// Train builds the windowed dataset, fits the configured model and publishes
// the artifact. With a database configured the run is serialised through an
// advisory lock and recorded in training_runs.
func (a *App) Train(ctx context.Context, opts TrainOptions) error {
	cfg := a.Config.Model
	kind := cfg.Kind
	if opts.Kind != "" {
		kind = opts.Kind
	}
	parsedKind, err := model.ParseKind(kind)
	if err != nil {
		return err
	}
	output := cfg.Path
	if opts.Output != "" {
		output = opts.Output
	}

	started := time.Now().UTC()
	data, err := a.loadDataset(ctx)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	var store *storage.Store
	if opts.DryRun {
		a.Logger.Warn().Msg("dry run: artifact and training history will not be written")
	} else {
		var closeStore func()
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	topts := training.Options{
		Window:    cfg.Window,
		TestRatio: cfg.TestRatio,
		Seed:      cfg.Seed,
		Kind:      parsedKind,
		Forest: model.ForestOptions{
			Trees:       cfg.Trees,
			MaxDepth:    cfg.MaxDepth,
			MinLeaf:     cfg.MinLeaf,
			MaxFeatures: cfg.MaxFeatures,
			Seed:        cfg.Seed,
			Workers:     cfg.Workers,
		},
		Linear: model.LinearOptions{Lambda: cfg.RidgeLambda},
	}
	if store != nil {
		topts.Locker = store
	}
	trainer, err := training.New(topts, a.Logger)
	if err != nil {
		return err
	}

	var rep training.Report
	if opts.DryRun {
		_, rep, err = trainer.Fit(ctx, data)
	} else {
		rep, err = trainer.Run(ctx, data, output)
	}
	if errors.Is(err, training.ErrLocked) {
		// another process is training; nothing to record
		return err
	}

	if store != nil {
		a.recordRun(ctx, store, started, rep, output, err)
	}
	a.notifyRun(ctx, started, rep, kind, err)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out(), "trained %s model on %d examples from %d symbols (skipped %d)\n",
		rep.Kind, rep.Examples, rep.Symbols, rep.SkippedSymbols)
	fmt.Fprintf(a.out(), "train %d / test %d  RMSE %.4f  MAE %.4f  in %s\n",
		rep.TrainSize, rep.TestSize, rep.RMSE, rep.MAE, rep.Duration.Round(time.Millisecond))
	if rep.ArtifactPath != "" {
		abs, _ := filepath.Abs(rep.ArtifactPath)
		fmt.Fprintf(a.out(), "artifact written to %s\n", abs)
	}
	return nil
}

func (a *App) recordRun(ctx context.Context, store storage.TrainingRunStore, started time.Time, rep training.Report, output string, runErr error) {
	run := storage.TrainingRun{
		StartedAt:      started,
		FinishedAt:     time.Now().UTC(),
		Kind:           string(rep.Kind),
		WindowSize:     a.Config.Model.Window,
		Symbols:        rep.Symbols,
		SkippedSymbols: rep.SkippedSymbols,
		Examples:       rep.Examples,
		TrainSize:      rep.TrainSize,
		TestSize:       rep.TestSize,
		ArtifactPath:   output,
		Status:         storage.RunSucceeded,
	}
	if run.Kind == "" {
		run.Kind = a.Config.Model.Kind
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Status = storage.RunFailed
		run.Error = &msg
		run.ArtifactPath = ""
	} else {
		rmse := decimal.NewFromFloat(rep.RMSE).Round(6)
		mae := decimal.NewFromFloat(rep.MAE).Round(6)
		run.RMSE = &rmse
		run.MAE = &mae
	}
	if _, err := store.InsertTrainingRun(ctx, run); err != nil {
		a.Logger.Error().Err(err).Msg("record training run failed")
	}
}

func (a *App) notifyRun(ctx context.Context, started time.Time, rep training.Report, kind string, runErr error) {
	notifier := a.newNotifier()
	if notifier == nil {
		return
	}
	note := alerting.Notification{
		FinishedAt:   time.Now().UTC(),
		Status:       storage.RunSucceeded,
		Kind:         kind,
		WindowSize:   a.Config.Model.Window,
		Symbols:      rep.Symbols,
		Examples:     rep.Examples,
		TrainSize:    rep.TrainSize,
		TestSize:     rep.TestSize,
		RMSE:         rep.RMSE,
		MAE:          rep.MAE,
		Duration:     time.Since(started),
		ArtifactPath: rep.ArtifactPath,
	}
	if runErr != nil {
		note.Status = storage.RunFailed
		note.Error = runErr.Error()
	}
	if err := notifier.Notify(ctx, note); err != nil {
		a.Logger.Error().Err(err).Msg("send training notification")
	}
}
