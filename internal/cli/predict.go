package cli

import (
	"github.com/spf13/cobra"

	"stock-predictor/internal/app"
)

var predictServer string

var predictCmd = &cobra.Command{
	Use:   "predict SYMBOL [SYMBOL...]",
	Short: "Predict the next close for one or more symbols",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.PredictOptions{
			Symbols:   args,
			ServerURL: predictServer,
		}
		return getApp().Predict(cmd.Context(), opts)
	},
}

func init() {
	predictCmd.Flags().StringVar(&predictServer, "server", "", "Query a running server (e.g. http://localhost:8000) instead of predicting locally")
}
