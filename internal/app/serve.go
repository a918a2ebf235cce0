package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"stock-predictor/internal/dataset"
	"stock-predictor/internal/metrics"
	"stock-predictor/internal/prediction"
	"stock-predictor/internal/scheduler"
	"stock-predictor/internal/server"
	"stock-predictor/internal/storage"
	"stock-predictor/internal/version"
)

// Serve runs the HTTP API until interrupted, pruning the prediction journal
// in the background when persistence is configured.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, store, err := a.buildService(ctx)
	if err != nil {
		return err
	}

	srv := server.New(a.serverConfig(), server.Deps{
		Predictor: svc.predictor,
		Series:    store,
		Gatherer:  svc.gatherer,
		Observer:  svc.recorder,
	}, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if svc.journal != nil && a.Config.Retention.Enabled {
		g.Go(func() error {
			return a.runRetention(gctx, svc.journal, svc.recorder)
		})
	}

	a.Logger.Info().Str("addr", a.Config.Server.Addr).Msg("starting prediction service")
	err = g.Wait()
	if svc.closeStore != nil {
		svc.closeStore()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("prediction service stopped")
	return nil
}

type serving struct {
	predictor  *prediction.Service
	recorder   *metrics.Recorder
	gatherer   prometheus.Gatherer
	journal    *storage.Store
	closeStore func()
}

// buildService loads the dataset and the model once and wires the prediction
// service with its metrics and optional journal.
func (a *App) buildService(ctx context.Context) (*serving, *dataset.Store, error) {
	store, err := a.loadDatasetOrEmpty(ctx)
	if err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(reg)
	st := store.Stats()
	recorder.SetDataset(len(store.Symbols()), st.DroppedBadSymbol, st.DroppedBadDate, st.DroppedBadClose, st.DroppedDuplicate)

	s := &serving{recorder: recorder}
	if a.Config.Server.Metrics {
		s.gatherer = reg
	}

	opts := prediction.Options{
		Window:   a.Config.Model.Window,
		Fallback: prediction.NewFallback(a.Config.Fallback.Base, a.Config.Fallback.Spread, nil),
		Recorder: recorder,
	}
	if m := a.loadModel(); m != nil {
		opts.Model = m.Regressor
		opts.ModelKind = string(m.Kind)
		recorder.SetModel(m.Metrics.RMSE, m.Metrics.TrainSize)
	}

	journal, closeStore, err := a.openStore(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("database unavailable; prediction journal disabled")
	} else if journal == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	} else {
		opts.Journal = journalAdapter{store: journal}
		s.journal = journal
		s.closeStore = closeStore
	}

	svc, err := prediction.NewService(prediction.StoreSource{Store: store}, opts, a.Logger)
	if err != nil {
		if s.closeStore != nil {
			s.closeStore()
		}
		return nil, nil, fmt.Errorf("build prediction service: %w", err)
	}
	s.predictor = svc
	return s, store, nil
}

func (a *App) serverConfig() server.Config {
	cfg := a.Config.Server
	return server.Config{
		Addr:            cfg.Addr,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		RequestTimeout:  cfg.RequestTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		CORSOrigins:     cfg.CORSOrigins,
		Version:         version.String(),
	}
}

// runRetention deletes journal entries older than retention.keep on every tick.
func (a *App) runRetention(ctx context.Context, store storage.PredictionStore, recorder *metrics.Recorder) error {
	cfg := a.Config.Retention
	sched := scheduler.New(scheduler.Options{
		Name:           "retention",
		Interval:       cfg.Interval,
		StartupDelay:   cfg.StartupDelay,
		RunImmediately: true,
	}, a.Logger)

	err := sched.Run(ctx, func(ctx context.Context, at time.Time) error {
		return pruneJournal(ctx, store, recorder, at.Add(-cfg.Keep), a.Logger)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// pruneJournal removes predictions created before cutoff.
func pruneJournal(ctx context.Context, store storage.PredictionStore, recorder *metrics.Recorder, cutoff time.Time, logger zerolog.Logger) error {
	deleted, err := store.DeletePredictionsBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune journal: %w", err)
	}
	if recorder != nil {
		recorder.AddPruned(deleted)
	}
	if deleted > 0 {
		logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("journal pruned")
	}
	return nil
}

// journalAdapter stores served predictions through the storage layer.
type journalAdapter struct {
	store storage.PredictionStore
}

func (j journalAdapter) RecordPrediction(ctx context.Context, res prediction.Result, modelKind string, at time.Time) error {
	_, err := j.store.InsertPrediction(ctx, storage.PredictionRecord{
		Symbol:         res.Symbol,
		PredictedPrice: res.PredictedPrice,
		Source:         string(res.Source),
		ModelKind:      modelKind,
		CreatedAt:      at.UTC(),
	})
	return err
}

var _ prediction.Journal = journalAdapter{}
