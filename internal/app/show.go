package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"stock-predictor/internal/storage"
)

// Show prints recent journal entries or training runs.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Runs {
		runs, err := store.ListTrainingRuns(ctx, opts.Limit)
		if err != nil {
			return err
		}
		return a.printRuns(runs)
	}

	return a.showPredictions(ctx, store, opts.Limit)
}

func (a *App) showPredictions(ctx context.Context, store storage.PredictionStore, limit int) error {
	records, err := store.ListRecentPredictions(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.out(), "no predictions found")
		return nil
	}
	if err := a.printPredictions(records); err != nil {
		return err
	}
	total, err := store.CountPredictions(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out(), "\nshowing %d of %d journal entries\n", len(records), total)
	return nil
}

func (a *App) printPredictions(records []storage.PredictionRecord) error {

	writer := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tPredicted\tSource\tModel")
	for _, rec := range records {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			rec.CreatedAt.UTC().Format(time.RFC3339),
			rec.Symbol,
			formatDecimal(rec.PredictedPrice, 2),
			rec.Source,
			dashIfEmpty(rec.ModelKind),
		)
	}
	return writer.Flush()
}

func (a *App) printRuns(runs []storage.TrainingRun) error {
	if len(runs) == 0 {
		fmt.Fprintln(a.out(), "no training runs found")
		return nil
	}

	writer := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Finished (UTC)\tKind\tWindow\tExamples\tTrain/Test\tRMSE\tMAE\tStatus\tError")
	for _, run := range runs {
		errMsg := ""
		if run.Error != nil {
			errMsg = sanitizeInline(*run.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%d\t%d\t%d/%d\t%s\t%s\t%s\t%s\n",
			run.FinishedAt.UTC().Format(time.RFC3339),
			run.Kind,
			run.WindowSize,
			run.Examples,
			run.TrainSize,
			run.TestSize,
			formatNullable(run.RMSE, 4),
			formatNullable(run.MAE, 4),
			run.Status,
			errMsg,
		)
	}
	return writer.Flush()
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}

func formatNullable(d *decimal.Decimal, places int32) string {
	if d == nil {
		return "-"
	}
	return formatDecimal(*d, places)
}

func dashIfEmpty(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
