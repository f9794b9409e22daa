package cli

import (
	"github.com/spf13/cobra"

	"pothole-detector/internal/detection"
)

var simulateSeverity string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Record a synthetic detection and send it to every alert channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		severity, err := detection.ParseSeverity(simulateSeverity)
		if err != nil {
			return err
		}
		return getApp().SimulateAlert(cmd.Context(), severity)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateSeverity, "severity", string(detection.SeveritySevere), "MILD, MODERATE or SEVERE")
}
