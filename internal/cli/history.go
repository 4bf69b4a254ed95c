package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"gaswindow/internal/app"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display the sampled block window",
	RunE: func(cmd *cobra.Command, args []string) error {
		if historyLimit < 0 {
			return fmt.Errorf("--limit cannot be negative")
		}

		return getApp().History(cmd.Context(), app.HistoryOptions{
			Out:   cmd.OutOrStdout(),
			Limit: historyLimit,
		})
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of blocks to display (0 for all)")
}
