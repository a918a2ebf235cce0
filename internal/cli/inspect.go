package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"stock-predictor/internal/app"
)

var inspectTop int

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarise the historical dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inspectTop < 0 {
			return fmt.Errorf("--top cannot be negative")
		}
		return getApp().Inspect(cmd.Context(), app.InspectOptions{Top: inspectTop})
	},
}

func init() {
	inspectCmd.Flags().IntVar(&inspectTop, "top", 10, "List the N longest series (0 disables)")
}
