// Package sink persists and announces detection events off the sampling path.
package sink

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"pothole-detector/internal/alerting"
	"pothole-detector/internal/detection"
	"pothole-detector/internal/location"
	"pothole-detector/internal/storage"
)

// Options tune the dispatcher.
type Options struct {
	QueueSize       int
	LocationTimeout time.Duration
	HandlerTimeout  time.Duration
	Channels        []string
	// Note is appended to every notification, e.g. to mark test alerts.
	Note string
}

// Deps are the collaborators an event flows through. Only Log is required.
type Deps struct {
	Log      *storage.EventLog
	Store    storage.DetectionStore
	Location location.Provider
	Notifier alerting.Notifier
	Vibrator alerting.Vibrator
}

// Dispatcher accepts events without blocking and handles them on its own
// goroutine: location lookup, event log, database, notification, haptics.
type Dispatcher struct {
	opts   Options
	deps   Deps
	queue  chan detection.Event
	logger zerolog.Logger
	newID  func() string

	base    atomic.Int64
	handled atomic.Int64
	dropped atomic.Uint64
}

// New builds a dispatcher. Call Restore before Run to continue numbering from
// an existing log.
func New(opts Options, deps Deps, logger zerolog.Logger) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.LocationTimeout <= 0 {
		opts.LocationTimeout = 2 * time.Second
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 10 * time.Second
	}
	if deps.Location == nil {
		deps.Location = location.None{}
	}
	return &Dispatcher{
		opts:   opts,
		deps:   deps,
		queue:  make(chan detection.Event, opts.QueueSize),
		logger: logger.With().Str("component", "sink").Logger(),
		newID:  uuid.NewString,
	}
}

// Restore seeds the running total from the records already in the log.
func (d *Dispatcher) Restore() (int64, error) {
	if d.deps.Log == nil {
		return 0, nil
	}
	count, err := d.deps.Log.Count()
	if err != nil {
		return 0, fmt.Errorf("restore detection count: %w", err)
	}
	d.base.Store(int64(count))
	d.logger.Info().Int("restored", count).Str("path", d.deps.Log.Path()).Msg("detection count restored")
	return int64(count), nil
}

// Enqueue hands an event to the worker. It never blocks; when the queue is
// full the event is dropped and false is returned.
func (d *Dispatcher) Enqueue(evt detection.Event) bool {
	select {
	case d.queue <- evt:
		return true
	default:
		dropped := d.dropped.Add(1)
		d.logger.Warn().Uint64("sequence", evt.Sequence).Uint64("dropped", dropped).Msg("sink queue full, event dropped")
		return false
	}
}

// Run handles queued events until ctx is cancelled, then drains whatever is
// still buffered.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain(context.WithoutCancel(ctx))
			return nil
		case evt := <-d.queue:
			d.Process(ctx, evt)
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case evt := <-d.queue:
			d.Process(ctx, evt)
		default:
			return
		}
	}
}

// Process handles one event synchronously and returns the record written.
// Failures in any single output are logged and do not stop the others.
func (d *Dispatcher) Process(ctx context.Context, evt detection.Event) storage.DetectionRecord {
	ctx, cancel := context.WithTimeout(ctx, d.opts.HandlerTimeout)
	defer cancel()

	rec := d.buildRecord(ctx, evt)
	log := d.logger.With().Int64("number", rec.Number).Uint64("sequence", rec.Sequence).Logger()

	if d.deps.Log != nil {
		if err := d.deps.Log.Append(rec); err != nil {
			log.Error().Err(err).Msg("append event log failed")
		}
	}
	if d.deps.Store != nil {
		if err := d.deps.Store.InsertDetection(ctx, rec); err != nil {
			log.Error().Err(err).Msg("insert detection failed")
		}
	}
	if d.deps.Notifier != nil {
		if err := d.deps.Notifier.Notify(ctx, d.notification(rec, evt)); err != nil {
			log.Error().Err(err).Msg("notification failed")
		}
	}
	if d.deps.Vibrator != nil {
		if err := d.deps.Vibrator.Vibrate(ctx, alerting.VibrationDuration(evt.Severity)); err != nil {
			log.Debug().Err(err).Msg("vibration failed")
		}
	}

	log.Info().
		Str("severity", rec.Severity).
		Str("magnitude", rec.Magnitude.StringFixed(2)).
		Str("location", rec.LocationStatus).
		Msg("pothole recorded")
	return rec
}

func (d *Dispatcher) buildRecord(ctx context.Context, evt detection.Event) storage.DetectionRecord {
	rec := storage.DetectionRecord{
		ID:         d.newID(),
		Number:     d.base.Load() + d.handled.Add(1),
		Sequence:   evt.Sequence,
		DetectedAt: evt.Time(),
		Magnitude:  finiteDecimal(evt.Magnitude).Round(2),
		Threshold:  finiteDecimal(evt.Threshold),
		Severity:   string(evt.Severity),
	}

	loc, status := evt.Location, location.StatusOK
	if loc == nil {
		lctx, cancel := context.WithTimeout(ctx, d.opts.LocationTimeout)
		loc, status = location.Resolve(lctx, d.deps.Location)
		cancel()
	}

	switch status {
	case location.StatusOK:
		lat, lon := loc.Latitude, loc.Longitude
		rec.Latitude, rec.Longitude = &lat, &lon
		rec.LocationStatus = storage.LocationOK
	case location.StatusDenied:
		rec.LocationStatus = storage.LocationDenied
	default:
		rec.LocationStatus = storage.LocationUnavailable
	}
	return rec
}

func (d *Dispatcher) notification(rec storage.DetectionRecord, evt detection.Event) alerting.Notification {
	note := alerting.Notification{
		DetectedAt: rec.DetectedAt,
		Severity:   evt.Severity,
		Magnitude:  rec.Magnitude,
		Threshold:  rec.Threshold,
		Total:      rec.Number,
		Channels:   d.opts.Channels,

		AdditionalMsg: d.opts.Note,
	}
	if rec.HasLocation() {
		note.Location = &detection.Location{Latitude: *rec.Latitude, Longitude: *rec.Longitude}
	}
	return note
}

// finiteDecimal maps NaN and ±Inf, which decimal cannot hold, to zero.
func finiteDecimal(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// Total reports restored plus handled detections.
func (d *Dispatcher) Total() int64 {
	return d.base.Load() + d.handled.Load()
}

// Handled reports events processed by this dispatcher.
func (d *Dispatcher) Handled() int64 {
	return d.handled.Load()
}

// Dropped reports events rejected because the queue was full.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Pending reports events waiting in the queue.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}
