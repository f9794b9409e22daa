package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pothole-detector/internal/app"
)

var (
	exportFrom      string
	exportTo        string
	exportSince     time.Duration
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export detections as CSV and/or a PNG magnitude chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ExportOptions{
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}

		var err error
		if opts.From, opts.To, err = exportWindow(time.Now()); err != nil {
			return err
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func exportWindow(now time.Time) (*time.Time, *time.Time, error) {
	if exportSince > 0 && exportFrom != "" {
		return nil, nil, errors.New("--since and --from are mutually exclusive")
	}

	var from, to *time.Time
	if exportSince > 0 {
		start := now.Add(-exportSince)
		from = &start
	}
	if exportFrom != "" {
		parsed, err := parseTimeFlag(exportFrom)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --from value: %w", err)
		}
		from = &parsed
	}
	if exportTo != "" {
		parsed, err := parseTimeFlag(exportTo)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --to value: %w", err)
		}
		to = &parsed
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, nil, errors.New("--from must be before --to")
	}
	return from, to, nil
}

// parseTimeFlag accepts RFC3339 or a local calendar date.
func parseTimeFlag(value string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.ParseInLocation(time.DateOnly, value, time.Local)
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Start (RFC3339 or YYYY-MM-DD, inclusive; default all)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "End (RFC3339 or YYYY-MM-DD, exclusive; default now)")
	exportCmd.Flags().DurationVar(&exportSince, "since", 0, "Only detections from the last duration, e.g. 2h")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "PNG chart output path")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "CSV output path")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum exported points (defaults to export.max_data_points)")
}
