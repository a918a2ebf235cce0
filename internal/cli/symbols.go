package cli

import (
	"github.com/spf13/cobra"
)

var symbolsServer string

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "List the symbols available for prediction",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Symbols(cmd.Context(), symbolsServer)
	},
}

func init() {
	symbolsCmd.Flags().StringVar(&symbolsServer, "server", "", "Query a running server instead of the local dataset")
}
