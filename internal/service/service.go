package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pothole-detector/internal/detection"
	"pothole-detector/internal/scheduler"
	"pothole-detector/internal/sensor"
	"pothole-detector/internal/settings"
	"pothole-detector/internal/sink"
	"pothole-detector/internal/storage"
)

// ErrAlreadyRunning is returned when the state handle or the database lock
// is owned by another detector.
var ErrAlreadyRunning = errors.New("detector already running")

// Deps wires the service. Source, Detector and Sink are required.
type Deps struct {
	Source   sensor.Source
	Detector *detection.Detector
	Sink     *sink.Dispatcher
	Settings *settings.Store
	Status   *scheduler.Scheduler
	State    *State
	Locker   storage.AdvisoryLocker
}

// Options toggle optional behaviour.
type Options struct {
	WatchSettings bool
	LockKey       int64
}

// Service runs the detection loop: samples in, events out to the sink.
type Service struct {
	deps        Deps
	opts        Options
	sensitivity chan float64
	logger      zerolog.Logger
}

// New constructs the detection service.
func New(deps Deps, opts Options, logger zerolog.Logger) *Service {
	if deps.State == nil {
		deps.State = &State{}
	}
	return &Service{
		deps:        deps,
		opts:        opts,
		sensitivity: make(chan float64, 1),
		logger:      logger.With().Str("component", "service").Logger(),
	}
}

// SetSensitivity queues a threshold update for the running detector. It never
// blocks: an update not yet applied is replaced by the newer one, and after
// Run returns the value simply stays queued. Values are clamped when applied.
func (s *Service) SetSensitivity(threshold float64) {
	settings.Offer(s.sensitivity, threshold)
}

// State returns the run handle.
func (s *Service) State() *State {
	return s.deps.State
}

// Run streams the sensor until ctx is cancelled or the source ends, then
// lets the sink drain before returning.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Source == nil || s.deps.Detector == nil || s.deps.Sink == nil {
		return fmt.Errorf("service not configured")
	}

	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if unlock != nil {
		defer unlock()
	}

	if !s.deps.State.start(time.Now()) {
		return ErrAlreadyRunning
	}
	defer s.deps.State.stop()

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	sinkCtx, stopSink := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSink()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return s.deps.Sink.Run(sinkCtx)
	})

	g.Go(func() error {
		s.applySensitivity(gctx)
		return nil
	})

	if s.opts.WatchSettings && s.deps.Settings != nil {
		g.Go(func() error {
			if err := s.deps.Settings.Watch(gctx, s.sensitivity); err != nil {
				s.logger.Error().Err(err).Msg("settings watch stopped")
			}
			return nil
		})
	}

	if s.deps.Status != nil {
		g.Go(func() error {
			_ = s.deps.Status.Run(gctx, s.reportStatus)
			return nil
		})
	}

	g.Go(func() error {
		defer stopSink()
		defer stopRun()

		s.logger.Info().Float64("threshold", s.deps.Detector.Threshold().Get()).Msg("detection started")
		err := s.deps.Source.Stream(gctx, s.onSample)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sensor stream: %w", err)
		}
		return nil
	})

	err = g.Wait()
	snap := s.deps.State.Snapshot()
	s.logger.Info().
		Uint64("samples", snap.Samples).
		Uint64("detections", snap.Detections).
		Uint64("dropped", s.deps.Sink.Dropped()).
		Msg("detection stopped")
	return err
}

func (s *Service) onSample(sample detection.RawSample) {
	s.deps.State.samples.Add(1)

	evt, fired := s.deps.Detector.OnSample(sample)
	if !fired {
		return
	}
	s.deps.State.detections.Add(1)
	s.deps.Sink.Enqueue(evt)
}

func (s *Service) applySensitivity(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case v := <-s.sensitivity:
			applied := s.deps.Detector.Threshold().Set(v)
			s.logger.Info().Float64("requested", v).Float64("threshold", applied).
				Str("sensitivity", detection.SensitivityLabel(applied)).
				Msg("sensitivity updated")
		}
	}
}

func (s *Service) reportStatus(_ context.Context, at time.Time) error {
	snap := s.deps.State.Snapshot()
	threshold := s.deps.Detector.Threshold().Get()
	s.logger.Info().
		Time("at", at).
		Float64("threshold", threshold).
		Str("sensitivity", detection.SensitivityLabel(threshold)).
		Uint64("samples", snap.Samples).
		Int64("total", s.deps.Sink.Total()).
		Int("pending", s.deps.Sink.Pending()).
		Msgf("monitoring, threshold %.0f", threshold)
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), error) {
	if s.opts.LockKey == 0 || s.deps.Locker == nil {
		return nil, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.opts.LockKey)
	if err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, ErrAlreadyRunning
	}
	return unlock, nil
}
