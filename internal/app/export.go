package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"pothole-detector/internal/storage"
)

// Export renders detections as CSV and/or a PNG magnitude chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	to := time.Now()
	if opts.To != nil {
		to = *opts.To
	}
	from := time.Time{}
	if opts.From != nil {
		from = *opts.From
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	records, err := a.detectionsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		a.Logger.Info().Msg("no detections found for export window")
		return nil
	}

	downsampled := downsampleRecords(records, opts.MaxPoints)
	a.Logger.Info().Int("total", len(records)).Int("exported", len(downsampled)).Msg("exporting detections")

	if opts.CSVPath != "" {
		if err := writeRecordsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeRecordsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func (a *App) detectionsBetween(ctx context.Context, from, to time.Time) ([]storage.DetectionRecord, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		defer closeStore()
		return store.ListDetectionsBetween(ctx, from, to)
	}

	all, err := a.eventLog().Records()
	if err != nil {
		return nil, err
	}
	out := make([]storage.DetectionRecord, 0, len(all))
	for _, rec := range all {
		if !rec.DetectedAt.Before(from) && rec.DetectedAt.Before(to) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func downsampleRecords(records []storage.DetectionRecord, max int) []storage.DetectionRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	if max == 1 {
		return records[len(records)-1:]
	}

	result := make([]storage.DetectionRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func writeRecordsCSV(path string, records []storage.DetectionRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"number", "detected_at", "severity", "magnitude", "threshold", "latitude", "longitude", "location_status"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, rec := range records {
		lat, lon := "", ""
		if rec.HasLocation() {
			lat = strconv.FormatFloat(*rec.Latitude, 'f', -1, 64)
			lon = strconv.FormatFloat(*rec.Longitude, 'f', -1, 64)
		}
		row := []string{
			strconv.FormatInt(rec.Number, 10),
			rec.DetectedAt.Format(time.RFC3339),
			rec.Severity,
			rec.Magnitude.StringFixed(2),
			rec.Threshold.StringFixed(0),
			lat,
			lon,
			rec.LocationStatus,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeRecordsPNG(path string, records []storage.DetectionRecord) error {
	if len(records) < 2 {
		return errors.New("png export needs at least two detections")
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	magnitude := make([]float64, len(records))
	threshold := make([]float64, len(records))

	for i, rec := range records {
		x[i] = rec.DetectedAt
		magnitude[i] = rec.Magnitude.InexactFloat64()
		threshold[i] = rec.Threshold.InexactFloat64()
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Jolt magnitude",
			ValueFormatter: valueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Magnitude",
				XValues: x,
				YValues: magnitude,
				Style: chart.Style{
					StrokeWidth: chart.Disabled,
					DotWidth:    4,
				},
			},
			chart.TimeSeries{
				Name:    "Threshold",
				XValues: x,
				YValues: threshold,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
