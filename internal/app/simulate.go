package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pothole-detector/internal/detection"
	"pothole-detector/internal/sink"
)

const simulatedNote = "Simulated alert (potholewatch simulate-alert)"

// SimulateAlert pushes a synthetic detection through the sink so every
// configured output can be checked end to end.
func (a *App) SimulateAlert(ctx context.Context, severity detection.Severity) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	prefs, err := a.openSettings()
	if err != nil {
		return err
	}
	threshold := prefs.Load().Threshold

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	opts := a.sinkOptions()
	opts.Note = simulatedNote
	dispatcher := sink.New(opts, sink.Deps{
		Log:      a.eventLog(),
		Store:    store,
		Location: a.newLocation(),
		Notifier: notifier,
		Vibrator: a.newVibrator(),
	}, a.Logger)
	if _, err := dispatcher.Restore(); err != nil {
		return err
	}

	evt := detection.Event{
		Sequence:        1,
		TimestampMillis: time.Now().UnixMilli(),
		Magnitude:       threshold * simulatedRatio(severity),
		Threshold:       threshold,
		Severity:        severity,
	}
	rec := dispatcher.Process(ctx, evt)
	fmt.Fprintf(a.Out, "Simulated %s detection recorded as #%d\n", rec.Severity, rec.Number)
	return nil
}

func simulatedRatio(sev detection.Severity) float64 {
	switch sev {
	case detection.SeveritySevere:
		return 1.8
	case detection.SeverityModerate:
		return 1.45
	default:
		return 1.1
	}
}
