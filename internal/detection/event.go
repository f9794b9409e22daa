package detection

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Severity tiers a detection by how far it exceeded the threshold.
type Severity string

const (
	SeverityMild     Severity = "MILD"
	SeverityModerate Severity = "MODERATE"
	SeveritySevere   Severity = "SEVERE"
)

var (
	moderateRatio = decimal.RequireFromString("1.3")
	severeRatio   = decimal.RequireFromString("1.6")
)

// Classify maps statistic/threshold to a severity tier. Ratios exactly on a
// boundary fall to the lower tier.
func Classify(statistic, threshold float64) Severity {
	if !(threshold > 0) || math.IsNaN(statistic) {
		return SeverityMild
	}
	if !finite(statistic) || !finite(threshold) {
		return classifyRatio(statistic / threshold)
	}
	ratio := decimal.NewFromFloat(statistic).Div(decimal.NewFromFloat(threshold))
	switch {
	case ratio.GreaterThan(severeRatio):
		return SeveritySevere
	case ratio.GreaterThan(moderateRatio):
		return SeverityModerate
	default:
		return SeverityMild
	}
}

// classifyRatio is the float fallback for values decimal cannot represent.
func classifyRatio(ratio float64) Severity {
	switch {
	case ratio > 1.6:
		return SeveritySevere
	case ratio > 1.3:
		return SeverityModerate
	default:
		return SeverityMild
	}
}

// ParseSeverity accepts the canonical upper-case names case-insensitively.
func ParseSeverity(v string) (Severity, error) {
	switch s := Severity(strings.ToUpper(strings.TrimSpace(v))); s {
	case SeverityMild, SeverityModerate, SeveritySevere:
		return s, nil
	default:
		return "", fmt.Errorf("unknown severity %q", v)
	}
}

// Location is an optional position attached to an event after detection.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Event is emitted once per qualifying detection.
type Event struct {
	Sequence        uint64
	TimestampMillis int64
	Magnitude       float64
	Threshold       float64
	Severity        Severity
	Location        *Location
}

// Time returns the detection timestamp.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.TimestampMillis)
}
