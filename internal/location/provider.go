// Package location supplies optional coordinates for detections.
package location

import (
	"context"
	"errors"

	"pothole-detector/internal/detection"
)

var (
	// ErrUnavailable means no fix is available right now.
	ErrUnavailable = errors.New("location: not available")
	// ErrPermissionDenied means the platform refused location access.
	ErrPermissionDenied = errors.New("location: permission not granted")
)

// Provider returns the last known position.
type Provider interface {
	LastLocation(ctx context.Context) (detection.Location, error)
}

// None never has a location.
type None struct{}

// LastLocation implements Provider.
func (None) LastLocation(context.Context) (detection.Location, error) {
	return detection.Location{}, ErrUnavailable
}

// Static reports a fixed position, e.g. for a mounted test rig.
type Static struct {
	Location detection.Location
	// Denied simulates a revoked location permission.
	Denied bool
}

// LastLocation implements Provider.
func (s Static) LastLocation(ctx context.Context) (detection.Location, error) {
	if err := ctx.Err(); err != nil {
		return detection.Location{}, err
	}
	if s.Denied {
		return detection.Location{}, ErrPermissionDenied
	}
	return s.Location, nil
}

// Resolve looks up a location and folds every failure into a nil result plus
// a display status matching the event log wording.
func Resolve(ctx context.Context, p Provider) (*detection.Location, Status) {
	if p == nil {
		return nil, StatusUnavailable
	}
	loc, err := p.LastLocation(ctx)
	switch {
	case err == nil:
		return &loc, StatusOK
	case errors.Is(err, ErrPermissionDenied):
		return nil, StatusDenied
	default:
		return nil, StatusUnavailable
	}
}

// Status describes the outcome of a location lookup.
type Status int

const (
	StatusUnavailable Status = iota
	StatusOK
	StatusDenied
)

var (
	_ Provider = None{}
	_ Provider = Static{}
)
