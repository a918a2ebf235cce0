package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"stock-predictor/internal/window"
)

// Inspect loads the dataset and prints its shape, drop counts and the
// longest series.
func (a *App) Inspect(ctx context.Context, opts InspectOptions) error {
	store, err := a.loadDataset(ctx)
	if err != nil {
		return err
	}
	sum := store.Summarize()
	stats := store.Stats()
	w := a.Config.Model.Window

	trainable, examples := 0, 0
	for _, n := range sum.PerSymbol {
		if c := window.Count(n, w); c > 0 {
			trainable++
			examples += c
		}
	}

	writer := tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Directory\t%s (%s)\n", a.Config.Dataset.Dir, a.Config.Dataset.Format)
	fmt.Fprintf(writer, "Files\t%d read, %d failed\n", stats.Files, stats.FailedFiles)
	fmt.Fprintf(writer, "Symbols\t%d\n", sum.Symbols)
	fmt.Fprintf(writer, "Rows\t%d\n", sum.Rows)
	if sum.Rows > 0 {
		fmt.Fprintf(writer, "Date range\t%s .. %s\n", sum.First.Format("2006-01-02"), sum.Last.Format("2006-01-02"))
		fmt.Fprintf(writer, "Series length\tmin %d, max %d\n", sum.Shortest, sum.Longest)
	}
	fmt.Fprintf(writer, "Dropped\tbad symbol %d, bad date %d, bad close %d, duplicate %d\n",
		stats.DroppedBadSymbol, stats.DroppedBadDate, stats.DroppedBadClose, stats.DroppedDuplicate)
	fmt.Fprintf(writer, "Window %d\t%d trainable symbols, %d examples\n", w, trainable, examples)
	if err := writer.Flush(); err != nil {
		return err
	}

	if opts.Top <= 0 || sum.Symbols == 0 {
		return nil
	}
	top := sum.TopByLength(opts.Top)
	fmt.Fprintln(a.out())
	writer = tabwriter.NewWriter(a.out(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tRows")
	for _, sym := range top {
		fmt.Fprintf(writer, "%s\t%d\n", sym, sum.PerSymbol[sym])
	}
	return writer.Flush()
}
