package app

import (
	"context"
	"fmt"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"

	"pothole-detector/internal/storage"
)

const defaultShowLimit = 10

// Show prints recent detections, newest first. The database is used when
// configured, otherwise the event log.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	if opts.Limit <= 0 {
		opts.Limit = defaultShowLimit
	}

	records, total, err := a.recentDetections(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Out, "no detections recorded")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "#\tDetected\tSeverity\tMagnitude\tThreshold\tLocation")
	for _, rec := range records {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\n",
			rec.Number,
			rec.DetectedAt.Local().Format("2006-01-02 15:04:05"),
			rec.Severity,
			formatMagnitude(rec),
			rec.Threshold.StringFixed(0),
			storage.LocationText(rec),
		)
	}
	writer.Flush()
	fmt.Fprintf(a.Out, "Total: %d\n", total)

	if opts.Stats {
		a.printStats(records)
	}
	return nil
}

func (a *App) recentDetections(ctx context.Context, limit int) ([]storage.DetectionRecord, int64, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, 0, err
	}
	if store != nil {
		defer closeStore()
		records, err := store.ListRecentDetections(ctx, limit)
		if err != nil {
			return nil, 0, err
		}
		total, err := store.CountDetections(ctx)
		if err != nil {
			return nil, 0, err
		}
		return records, total, nil
	}

	all, err := a.eventLog().Records()
	if err != nil {
		return nil, 0, err
	}
	return recordsNewestFirst(all, limit), int64(len(all)), nil
}

func recordsNewestFirst(records []storage.DetectionRecord, limit int) []storage.DetectionRecord {
	out := make([]storage.DetectionRecord, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, records[i])
	}
	return out
}

func (a *App) printStats(records []storage.DetectionRecord) {
	magnitudes := make([]float64, 0, len(records))
	bySeverity := make(map[string]int)
	for _, rec := range records {
		bySeverity[rec.Severity]++
		if !rec.Magnitude.IsZero() {
			magnitudes = append(magnitudes, rec.Magnitude.InexactFloat64())
		}
	}

	fmt.Fprintf(a.Out, "Severity: SEVERE %d  MODERATE %d  MILD %d\n",
		bySeverity["SEVERE"], bySeverity["MODERATE"], bySeverity["MILD"])
	if len(magnitudes) == 0 {
		return
	}
	mean, std := stat.MeanStdDev(magnitudes, nil)
	if len(magnitudes) < 2 {
		std = 0
	}
	fmt.Fprintf(a.Out, "Magnitude: mean %.2f  stddev %.2f  n %d\n", mean, std, len(magnitudes))
}

func formatMagnitude(rec storage.DetectionRecord) string {
	if rec.Magnitude.IsZero() {
		return "-"
	}
	return rec.Magnitude.StringFixed(2)
}
