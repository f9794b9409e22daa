package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Location lookup outcomes recorded alongside a detection.
const (
	LocationOK          = "ok"
	LocationUnavailable = "unavailable"
	LocationDenied      = "denied"
)

// DetectionRecord is a persisted pothole detection.
type DetectionRecord struct {
	ID             string
	Number         int64
	Sequence       uint64
	DetectedAt     time.Time
	Magnitude      decimal.Decimal
	Threshold      decimal.Decimal
	Severity       string
	Latitude       *float64
	Longitude      *float64
	LocationStatus string
	CreatedAt      time.Time
}

// HasLocation reports whether coordinates are attached.
func (r DetectionRecord) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}
