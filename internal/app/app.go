package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"pothole-detector/internal/alerting"
	"pothole-detector/internal/config"
	"pothole-detector/internal/detection"
	"pothole-detector/internal/location"
	"pothole-detector/internal/scheduler"
	"pothole-detector/internal/sensor"
	"pothole-detector/internal/service"
	"pothole-detector/internal/settings"
	"pothole-detector/internal/sink"
	"pothole-detector/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
	Stdin  io.Reader
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
		Stdin:  os.Stdin,
	}
}

func (a *App) newSource() sensor.Source {
	cfg := a.Config.Sensor
	opts := sensor.ReaderOptions{Pace: cfg.Pace}
	switch cfg.Kind {
	case config.SensorSerial:
		return sensor.NewSerialSource(sensor.SerialOptions{Path: cfg.Path, BaudRate: cfg.BaudRate}, a.Logger)
	case config.SensorFile:
		return sensor.NewFileSource(cfg.Path, opts, a.Logger)
	default:
		return sensor.NewReaderSource(a.Stdin, opts, a.Logger)
	}
}

func (a *App) newLocation() location.Provider {
	cfg := a.Config.Location
	if cfg.Provider != config.LocationStatic {
		return location.None{}
	}
	return location.Static{
		Location: detection.Location{Latitude: cfg.Latitude, Longitude: cfg.Longitude},
		Denied:   !cfg.PermissionGranted,
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled {
		return nil
	}

	var notifiers alerting.MultiNotifier
	for _, channel := range a.Config.Alerting.Channels {
		switch channel {
		case "log":
			notifiers = append(notifiers, alerting.NewLogNotifier(a.Logger))
		case "telegram":
			cfg := a.Config.Alerting.Telegram
			if !cfg.Enabled {
				a.Logger.Warn().Msg("telegram channel listed but alerting.telegram.enabled is false")
				continue
			}
			notifiers = append(notifiers, alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger))
		case "mqtt":
			cfg := a.Config.Alerting.MQTT
			if !cfg.Enabled {
				a.Logger.Warn().Msg("mqtt channel listed but alerting.mqtt.enabled is false")
				continue
			}
			notifiers = append(notifiers, alerting.NewMQTTNotifier(alerting.MQTTOptions{
				Broker:   cfg.Broker,
				Topic:    cfg.Topic,
				ClientID: cfg.ClientID,
				QoS:      byte(cfg.QoS),
				Timeout:  cfg.Timeout,
			}, a.Logger))
		default:
			a.Logger.Warn().Str("channel", channel).Msg("unknown alert channel ignored")
		}
	}
	if len(notifiers) == 0 {
		return nil
	}
	return notifiers
}

func (a *App) newVibrator() alerting.Vibrator {
	if !a.Config.Alerting.Enabled || !a.Config.Alerting.Vibration {
		return nil
	}
	return alerting.NewLogVibrator(a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.DetectionStore, func(), error) {
	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, nil
	}
	return store, store.Close, nil
}

func (a *App) openSettings() (*settings.Store, error) {
	return settings.Open(a.Config.Settings.Path, a.Logger)
}

func (a *App) eventLog() *storage.EventLog {
	return storage.NewEventLog(a.Config.Storage.LogPath)
}

func (a *App) detectionParams() detection.Params {
	cfg := a.Config.Detection
	return detection.Params{
		ZAxisWeight:       cfg.ZAxisWeight,
		MinSampleInterval: cfg.MinSampleInterval,
		Refractory:        cfg.Refractory,
		VerticalGate:      cfg.VerticalGate,
		HistorySize:       cfg.HistorySize,
		AverageWindow:     cfg.AverageWindow,
	}
}

func (a *App) sinkOptions() sink.Options {
	return sink.Options{
		QueueSize:       a.Config.Sink.QueueSize,
		LocationTimeout: a.Config.Sink.LocationTimeout,
		HandlerTimeout:  a.Config.Sink.HandlerTimeout,
		Channels:        a.Config.Alerting.Channels,
	}
}

func (a *App) newSink(deps sink.Deps) *sink.Dispatcher {
	return sink.New(a.sinkOptions(), deps, a.Logger)
}

// Run executes the long-running detection service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Info().Msg("database.dsn not configured; detections go to the event log only")
	}
	if closeStore != nil {
		defer closeStore()
	}

	prefs, err := a.openSettings()
	if err != nil {
		return err
	}
	thresholds := detection.NewThresholdStore(prefs.Load().Threshold)

	dispatcher := a.newSink(sink.Deps{
		Log:      a.eventLog(),
		Store:    store,
		Location: a.newLocation(),
		Notifier: a.newNotifier(),
		Vibrator: a.newVibrator(),
	})
	if _, err := dispatcher.Restore(); err != nil {
		return err
	}

	var status *scheduler.Scheduler
	if a.Config.Status.Interval > 0 {
		status = scheduler.New(scheduler.Options{
			Name:         "status",
			Interval:     a.Config.Status.Interval,
			AlignToStart: true,
		}, a.Logger)
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	svc := service.New(service.Deps{
		Source:   a.newSource(),
		Detector: detection.NewDetector(a.detectionParams(), thresholds),
		Sink:     dispatcher,
		Settings: prefs,
		Status:   status,
		Locker:   locker,
	}, service.Options{
		WatchSettings: a.Config.Settings.Watch,
		LockKey:       a.Config.Database.AdvisoryLockKey,
	}, a.Logger)

	a.Logger.Info().
		Str("sensor", a.Config.Sensor.Kind).
		Float64("threshold", thresholds.Get()).
		Str("sensitivity", detection.SensitivityLabel(thresholds.Get())).
		Msg("starting detection service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Int64("total", dispatcher.Total()).Msg("detection service stopped")
	return nil
}

// ExportOptions hold parameters for exporting detections.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	Stats bool
}

// ReplayOptions configure an offline replay of a recorded sample file.
type ReplayOptions struct {
	Path      string
	Threshold float64
	DryRun    bool
}
