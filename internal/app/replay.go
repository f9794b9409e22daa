package app

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"pothole-detector/internal/detection"
	"pothole-detector/internal/sensor"
	"pothole-detector/internal/sink"
)

// Replay runs a recorded sample file through the detector. Lines carry
// "t,x,y,z" with t in milliseconds. Without DryRun each detection is recorded
// exactly like a live one, minus notifications and haptics.
func (a *App) Replay(ctx context.Context, opts ReplayOptions) error {
	if opts.Path == "" {
		return errors.New("replay requires a sample file")
	}

	threshold := opts.Threshold
	if threshold == 0 {
		prefs, err := a.openSettings()
		if err != nil {
			return err
		}
		threshold = prefs.Load().Threshold
	}
	thresholds := detection.NewThresholdStore(threshold)
	detector := detection.NewDetector(a.detectionParams(), thresholds)

	var dispatcher *sink.Dispatcher
	if opts.DryRun {
		a.Logger.Warn().Msg("replay dry-run: nothing is written")
	} else {
		store, closeStore, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		if closeStore != nil {
			defer closeStore()
		}
		dispatcher = a.newSink(sink.Deps{Log: a.eventLog(), Store: store, Location: a.newLocation()})
		if _, err := dispatcher.Restore(); err != nil {
			return err
		}
	}

	var (
		samples int
		events  []detection.Event
		numbers []int64
	)
	source := sensor.NewFileSource(opts.Path, sensor.ReaderOptions{}, a.Logger)
	err := source.Stream(ctx, func(s detection.RawSample) {
		samples++
		evt, fired := detector.OnSample(s)
		if !fired {
			return
		}
		events = append(events, evt)
		if dispatcher != nil {
			numbers = append(numbers, dispatcher.Process(ctx, evt).Number)
		}
	})
	if err != nil {
		return fmt.Errorf("replay %s: %w", opts.Path, err)
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Seq\tOffset(ms)\tMagnitude\tThreshold\tSeverity\tRecord")
	for i, evt := range events {
		record := "-"
		if i < len(numbers) {
			record = fmt.Sprintf("#%d", numbers[i])
		}
		fmt.Fprintf(writer, "%d\t%d\t%.2f\t%.0f\t%s\t%s\n",
			evt.Sequence, evt.TimestampMillis, evt.Magnitude, evt.Threshold, evt.Severity, record)
	}
	writer.Flush()
	fmt.Fprintf(a.Out, "Samples: %d  Detections: %d  Threshold: %.0f (%s)\n",
		samples, len(events), thresholds.Get(), detection.SensitivityLabel(thresholds.Get()))

	a.Logger.Info().
		Int("samples", samples).
		Int("detections", len(events)).
		Bool("dry_run", opts.DryRun).
		Msg("replay finished")
	return nil
}
