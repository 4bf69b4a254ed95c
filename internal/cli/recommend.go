package cli

import (
	"github.com/spf13/cobra"

	"gaswindow/internal/app"
)

var recommendJSON bool

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Sample the block window once and print a gas recommendation",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Recommend(cmd.Context(), app.RecommendOptions{
			Out:  cmd.OutOrStdout(),
			JSON: recommendJSON,
		})
	},
}

func init() {
	recommendCmd.Flags().BoolVar(&recommendJSON, "json", false, "Print the recommendation as JSON")
}
