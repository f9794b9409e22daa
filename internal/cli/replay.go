package cli

import (
	"github.com/spf13/cobra"

	"pothole-detector/internal/app"
)

var (
	replayThreshold float64
	replayDryRun    bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <samples.csv>",
	Short: "Replay a recorded t,x,y,z sample file through the detector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Replay(cmd.Context(), app.ReplayOptions{
			Path:      args[0],
			Threshold: replayThreshold,
			DryRun:    replayDryRun,
		})
	},
}

func init() {
	replayCmd.Flags().Float64Var(&replayThreshold, "threshold", 0, "Threshold override (defaults to the saved sensitivity)")
	replayCmd.Flags().BoolVar(&replayDryRun, "dry-run", false, "Print detections without recording them")
}
