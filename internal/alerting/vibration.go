package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"pothole-detector/internal/detection"
)

// VibrationDuration maps severity to haptic pulse length.
func VibrationDuration(sev detection.Severity) time.Duration {
	switch sev {
	case detection.SeveritySevere:
		return time.Second
	case detection.SeverityModerate:
		return 500 * time.Millisecond
	default:
		return 300 * time.Millisecond
	}
}

// Vibrator drives haptic feedback hardware.
type Vibrator interface {
	Vibrate(ctx context.Context, d time.Duration) error
}

// LogVibrator stands in for haptics on headless hosts.
type LogVibrator struct {
	logger zerolog.Logger
}

// NewLogVibrator builds a vibrator that only logs the pulse.
func NewLogVibrator(logger zerolog.Logger) *LogVibrator {
	return &LogVibrator{logger: logger.With().Str("component", "haptics").Logger()}
}

// Vibrate records the pulse length.
func (v *LogVibrator) Vibrate(_ context.Context, d time.Duration) error {
	v.logger.Debug().Dur("duration", d).Msg("vibrate")
	return nil
}

var _ Vibrator = (*LogVibrator)(nil)
