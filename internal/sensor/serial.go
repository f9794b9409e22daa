package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// PortOpener opens a serial device. Tests substitute an in-memory port.
type PortOpener func(path string, mode *serial.Mode) (io.ReadCloser, error)

// SerialOptions describe the accelerometer's serial link.
type SerialOptions struct {
	Path     string
	BaudRate int
	Clock    Clock
	Opener   PortOpener
}

// SerialSource reads line-oriented samples from a serial accelerometer.
type SerialSource struct {
	opts   SerialOptions
	logger zerolog.Logger
}

// NewSerialSource configures a serial source; the port is opened by Stream.
func NewSerialSource(opts SerialOptions, logger zerolog.Logger) *SerialSource {
	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Opener == nil {
		opts.Opener = openSerialPort
	}
	return &SerialSource{
		opts:   opts,
		logger: logger.With().Str("component", "sensor_serial").Str("port", opts.Path).Logger(),
	}
}

func openSerialPort(path string, mode *serial.Mode) (io.ReadCloser, error) {
	return serial.Open(path, mode)
}

// Mode returns the serial framing used for the device.
func (s *SerialSource) Mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: s.opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Stream implements Source. Cancelling ctx closes the port to unblock reads.
func (s *SerialSource) Stream(ctx context.Context, handle Handler) error {
	if s.opts.Path == "" {
		return errors.New("sensor.path not configured for serial source")
	}

	port, err := s.opts.Opener(s.opts.Path, s.Mode())
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", s.opts.Path, err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		if err := port.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("close serial port")
		}
	}()

	s.logger.Info().Int("baud_rate", s.opts.BaudRate).Msg("serial sensor opened")
	err = streamLines(ctx, port, s.opts.Clock, false, handle, s.logger)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
