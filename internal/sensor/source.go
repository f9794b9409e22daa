// Package sensor delivers accelerometer samples from devices and recordings.
package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pothole-detector/internal/detection"
)

// Handler receives each sample on the delivering goroutine. It must not block.
type Handler func(sample detection.RawSample)

// Source pushes samples to a handler until the stream ends or ctx is cancelled.
type Source interface {
	Stream(ctx context.Context, handle Handler) error
}

// errSkipLine marks comments and header rows.
var errSkipLine = errors.New("skip line")

// Clock supplies timestamps for readings that carry none.
type Clock func() time.Time

// ParseLine decodes "x,y,z" or "timestamp_ms,x,y,z". Commas, semicolons and
// whitespace are accepted as separators. Readings without a timestamp are
// stamped with clock.
func ParseLine(line string, clock Clock) (detection.RawSample, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return detection.RawSample{}, errSkipLine
	}

	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})

	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			if i == 0 {
				// header row such as "timestamp_ms,x,y,z"
				return detection.RawSample{}, errSkipLine
			}
			return detection.RawSample{}, fmt.Errorf("parse field %d %q: %w", i, f, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return detection.RawSample{}, fmt.Errorf("field %d %q is not a finite number", i, f)
		}
		values[i] = v
	}

	switch len(values) {
	case 3:
		if clock == nil {
			clock = time.Now
		}
		return detection.RawSample{X: values[0], Y: values[1], Z: values[2], TimestampMillis: clock().UnixMilli()}, nil
	case 4:
		// float64(math.MaxInt64) rounds up to 2^63, hence >=
		if values[0] < math.MinInt64 || values[0] >= math.MaxInt64 {
			return detection.RawSample{}, fmt.Errorf("timestamp %q out of range", fields[0])
		}
		return detection.RawSample{TimestampMillis: int64(values[0]), X: values[1], Y: values[2], Z: values[3]}, nil
	default:
		return detection.RawSample{}, fmt.Errorf("expected 3 or 4 fields, got %d", len(values))
	}
}

// ReaderSource streams line-oriented samples from an io.Reader.
type ReaderSource struct {
	reader io.Reader
	clock  Clock
	pace   bool
	logger zerolog.Logger
}

// ReaderOptions tune a ReaderSource.
type ReaderOptions struct {
	// Pace replays recorded timestamps in real time instead of as fast as possible.
	Pace  bool
	Clock Clock
}

// NewReaderSource wraps r as a sample source.
func NewReaderSource(r io.Reader, opts ReaderOptions, logger zerolog.Logger) *ReaderSource {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &ReaderSource{
		reader: r,
		clock:  clock,
		pace:   opts.Pace,
		logger: logger.With().Str("component", "sensor_reader").Logger(),
	}
}

// Stream implements Source.
func (s *ReaderSource) Stream(ctx context.Context, handle Handler) error {
	return streamLines(ctx, s.reader, s.clock, s.pace, handle, s.logger)
}

func streamLines(ctx context.Context, r io.Reader, clock Clock, pace bool, handle Handler, logger zerolog.Logger) error {
	scanner := bufio.NewScanner(r)
	var (
		lineNo    int
		malformed int
		lastTS    int64
		havePrev  bool
	)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		lineNo++

		sample, err := ParseLine(scanner.Text(), clock)
		if errors.Is(err, errSkipLine) {
			continue
		}
		if err != nil {
			malformed++
			logger.Debug().Err(err).Int("line", lineNo).Msg("skipping malformed sample")
			continue
		}

		if pace && havePrev {
			if delay := time.Duration(sample.TimestampMillis-lastTS) * time.Millisecond; delay > 0 {
				if err := sleepContext(ctx, delay); err != nil {
					return err
				}
			}
		}
		lastTS = sample.TimestampMillis
		havePrev = true

		handle(sample)
	}

	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("read samples: %w", err)
	}
	if malformed > 0 {
		logger.Warn().Int("malformed", malformed).Int("lines", lineNo).Msg("stream contained malformed samples")
	}
	return ctx.Err()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
