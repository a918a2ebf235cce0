package cli

import (
	"github.com/spf13/cobra"

	"stock-predictor/internal/app"
)

var (
	trainKind   string
	trainOutput string
	trainDryRun bool
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit a model on the historical dataset and write the artifact",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.TrainOptions{
			Kind:   trainKind,
			Output: trainOutput,
			DryRun: trainDryRun,
		}
		return getApp().Train(cmd.Context(), opts)
	},
}

func init() {
	trainCmd.Flags().StringVar(&trainKind, "kind", "", "Model kind: forest or linear (defaults to config)")
	trainCmd.Flags().StringVarP(&trainOutput, "output", "o", "", "Artifact path (defaults to model.path)")
	trainCmd.Flags().BoolVar(&trainDryRun, "dry-run", false, "Fit and evaluate without writing the artifact or history")
}
