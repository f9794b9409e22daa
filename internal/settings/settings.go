// Package settings persists user preferences that survive restarts: the
// sensitivity threshold and the lock flag shown next to it.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"pothole-detector/internal/detection"
)

const (
	keyThreshold = "sensitivity_threshold"
	keyLocked    = "sensitivity_locked"
)

// ErrLocked is returned by callers that refuse threshold edits while locked.
var ErrLocked = errors.New("sensitivity locked - unlock to adjust")

// Preferences is the persisted preference set.
type Preferences struct {
	Threshold float64 `mapstructure:"sensitivity_threshold"`
	Locked    bool    `mapstructure:"sensitivity_locked"`
}

// Store reads and writes the preferences file.
type Store struct {
	path   string
	mu     sync.Mutex
	v      *viper.Viper
	logger zerolog.Logger
}

// Open loads preferences from path. A missing file yields defaults.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("settings path is required")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault(keyThreshold, detection.DefaultThreshold)
	v.SetDefault(keyLocked, false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read preferences: %w", err)
		}
	}

	return &Store{
		path:   path,
		v:      v,
		logger: logger.With().Str("component", "settings").Logger(),
	}, nil
}

// Path returns the preferences file location.
func (s *Store) Path() string {
	return s.path
}

// Load returns the current preferences with the threshold clamped.
func (s *Store) Load() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() Preferences {
	return Preferences{
		Threshold: detection.ClampThreshold(s.v.GetFloat64(keyThreshold)),
		Locked:    s.v.GetBool(keyLocked),
	}
}

// SetThreshold clamps and persists a new threshold, returning the stored value.
func (s *Store) SetThreshold(threshold float64) (float64, error) {
	threshold = detection.ClampThreshold(threshold)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(keyThreshold, threshold)
	if err := s.writeLocked(); err != nil {
		return 0, err
	}
	return threshold, nil
}

// SetLocked persists the lock flag.
func (s *Store) SetLocked(locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(keyLocked, locked)
	return s.writeLocked()
}

func (s *Store) writeLocked() error {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create preferences dir: %w", err)
		}
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	return nil
}

// Offer delivers v on ch without blocking. A value still waiting in a full
// channel is stale and is replaced, so the receiver always sees the latest
// threshold. It reports whether a pending value was discarded.
func Offer(ch chan float64, v float64) (replaced bool) {
	for {
		select {
		case ch <- v:
			return replaced
		default:
		}
		select {
		case <-ch:
			replaced = true
		default:
		}
	}
}

// Watch forwards threshold changes made to the preferences file by other
// processes to out until ctx is done. Sends never block; an unread value is
// superseded by the newer one.
func (s *Store) Watch(ctx context.Context, out chan float64) error {
	s.mu.Lock()
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		if err := s.writeLocked(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	last := s.loadLocked().Threshold
	s.mu.Unlock()

	// A dedicated instance is re-read by viper's watcher goroutine; s.v is only
	// touched under s.mu.
	watcher := viper.New()
	watcher.SetConfigFile(s.path)
	watcher.SetConfigType("yaml")
	watcher.SetDefault(keyThreshold, detection.DefaultThreshold)
	watcher.SetDefault(keyLocked, false)
	if err := watcher.ReadInConfig(); err != nil {
		return fmt.Errorf("read preferences: %w", err)
	}

	watcher.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		threshold := detection.ClampThreshold(watcher.GetFloat64(keyThreshold))
		if threshold == last {
			return
		}
		last = threshold

		s.logger.Info().Float64("threshold", threshold).Str("op", e.Op.String()).Msg("threshold changed on disk")
		if Offer(out, threshold) {
			s.logger.Debug().Float64("threshold", threshold).Msg("superseded unread sensitivity update")
		}

		// mirrored after the send so Load never runs ahead of out
		s.mu.Lock()
		s.v.Set(keyThreshold, threshold)
		s.v.Set(keyLocked, watcher.GetBool(keyLocked))
		s.mu.Unlock()
	})
	watcher.WatchConfig()
	return nil
}
