package sensor

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// FileSource replays a recorded sample file.
type FileSource struct {
	path   string
	opts   ReaderOptions
	logger zerolog.Logger
}

// NewFileSource builds a source reading path on every Stream call.
func NewFileSource(path string, opts ReaderOptions, logger zerolog.Logger) *FileSource {
	return &FileSource{
		path:   path,
		opts:   opts,
		logger: logger.With().Str("component", "sensor_file").Str("path", path).Logger(),
	}
}

// Stream implements Source.
func (s *FileSource) Stream(ctx context.Context, handle Handler) error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open sample file: %w", err)
	}
	defer file.Close()

	s.logger.Info().Bool("pace", s.opts.Pace).Msg("replaying sample file")
	return NewReaderSource(file, s.opts, s.logger).Stream(ctx, handle)
}
