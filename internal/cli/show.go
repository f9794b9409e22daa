package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pothole-detector/internal/app"
)

var (
	showLimit int
	showStats bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent detections, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit: showLimit,
			Stats: showStats,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 10, "Number of detections to display")
	showCmd.Flags().BoolVar(&showStats, "stats", false, "Print severity counts and magnitude statistics")
}
