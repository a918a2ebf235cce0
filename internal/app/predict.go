package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"stock-predictor/internal/client"
	"stock-predictor/internal/dataset"
	"stock-predictor/internal/prediction"
)

// Predict prints next-day predictions for the requested symbols, either
// computed locally from the dataset and artifact or fetched from a server.
func (a *App) Predict(ctx context.Context, opts PredictOptions) error {
	if len(opts.Symbols) == 0 {
		return errors.New("at least one symbol is required")
	}

	predict, err := a.predictFunc(ctx, opts.ServerURL)
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tPredicted\tSource")
	for _, sym := range opts.Symbols {
		res, err := predict(ctx, sym)
		if err != nil {
			writer.Flush()
			return fmt.Errorf("predict %s: %w", sym, err)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", res.Symbol, formatDecimal(res.PredictedPrice, 2), res.Source)
	}
	return writer.Flush()
}

type predictFn func(ctx context.Context, symbol string) (prediction.Result, error)

func (a *App) predictFunc(ctx context.Context, serverURL string) (predictFn, error) {
	if strings.TrimSpace(serverURL) != "" {
		c, err := a.newClient(serverURL)
		if err != nil {
			return nil, err
		}
		return c.Predict, nil
	}

	store, err := a.loadDatasetOrEmpty(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := a.localService(store)
	if err != nil {
		return nil, err
	}
	return svc.Predict, nil
}

// localService wires a prediction service over an already loaded store.
func (a *App) localService(store *dataset.Store) (*prediction.Service, error) {
	opts := prediction.Options{
		Window:   a.Config.Model.Window,
		Fallback: prediction.NewFallback(a.Config.Fallback.Base, a.Config.Fallback.Spread, nil),
	}
	if m := a.loadModel(); m != nil {
		opts.Model = m.Regressor
		opts.ModelKind = string(m.Kind)
	}
	return prediction.NewService(prediction.StoreSource{Store: store}, opts, a.Logger)
}

// Symbols prints the known symbols, one per line.
func (a *App) Symbols(ctx context.Context, serverURL string) error {
	var symbols []string
	if strings.TrimSpace(serverURL) != "" {
		c, err := a.newClient(serverURL)
		if err != nil {
			return err
		}
		if symbols, err = c.Symbols(ctx); err != nil {
			return err
		}
	} else {
		store, err := a.loadDataset(ctx)
		if err != nil {
			return err
		}
		symbols = store.Symbols()
	}

	for _, sym := range symbols {
		fmt.Fprintln(a.out(), sym)
	}
	return nil
}

func (a *App) newClient(serverURL string) (*client.Client, error) {
	return client.New(client.Options{
		BaseURL:   serverURL,
		Timeout:   a.Config.Server.RequestTimeout,
		UserAgent: a.Config.App.Name + "-cli",
	}, a.Logger)
}
