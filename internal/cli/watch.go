package cli

import (
	"github.com/spf13/cobra"

	"gaswindow/internal/app"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh the window periodically, publishing metrics and alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Watch(cmd.Context(), app.WatchOptions{Out: cmd.OutOrStdout()})
	},
}
