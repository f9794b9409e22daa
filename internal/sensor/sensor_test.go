package sensor

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"pothole-detector/internal/detection"
)

func fixedClock() time.Time {
	return time.UnixMilli(42_000)
}

func TestParseLine(t *testing.T) {
	s, err := ParseLine("130,0,0,40", fixedClock)
	require.NoError(t, err)
	assert.Equal(t, detection.RawSample{X: 0, Y: 0, Z: 40, TimestampMillis: 130}, s)

	s, err = ParseLine("0.5 -0.25\t9.81", fixedClock)
	require.NoError(t, err)
	assert.Equal(t, detection.RawSample{X: 0.5, Y: -0.25, Z: 9.81, TimestampMillis: 42_000}, s)

	s, err = ParseLine("1;2;3", fixedClock)
	require.NoError(t, err)
	assert.Equal(t, 3.0, s.Z)
}

func TestParseLineSkipsHeadersAndComments(t *testing.T) {
	for _, line := range []string{"", "   ", "# recorded on bike", "timestamp_ms,x,y,z"} {
		_, err := ParseLine(line, fixedClock)
		assert.ErrorIs(t, err, errSkipLine, "line %q", line)
	}
}

func TestParseLineRejectsMalformed(t *testing.T) {
	for _, line := range []string{"1,2", "1,2,3,4,5", "1,abc,3"} {
		_, err := ParseLine(line, fixedClock)
		require.Error(t, err, "line %q", line)
		assert.NotErrorIs(t, err, errSkipLine)
	}
}

func TestParseLineRejectsNonFiniteAndOutOfRange(t *testing.T) {
	for _, line := range []string{
		"100,0,0,NaN",
		"100,0,0,Inf",
		"100,-Inf,0,9.8",
		"NaN,0,0,9.8",
		"0,0,nan",
		"1e300,0,0,9.8",
		"-1e19,0,0,9.8",
		"9223372036854775807,0,0,9.8",
	} {
		_, err := ParseLine(line, fixedClock)
		require.Error(t, err, "line %q", line)
		assert.NotErrorIs(t, err, errSkipLine, "line %q", line)
	}

	// finite but huge axes are the detector's problem, not the parser's
	s, err := ParseLine("100,1e200,0,20", fixedClock)
	require.NoError(t, err)
	assert.Equal(t, 1e200, s.X)
}

func TestReaderSourceSkipsNonFiniteLines(t *testing.T) {
	input := "0,0,0,9.8\n60,0,0,NaN\n120,0,0,Inf\n180,0,0,9.8\n"
	src := NewReaderSource(strings.NewReader(input), ReaderOptions{}, zerolog.Nop())

	var got []detection.RawSample
	require.NoError(t, src.Stream(context.Background(), func(s detection.RawSample) {
		got = append(got, s)
	}))
	require.Len(t, got, 2)
	assert.Equal(t, int64(0), got[0].TimestampMillis)
	assert.Equal(t, int64(180), got[1].TimestampMillis)
}

func TestReaderSourceStreamsSamples(t *testing.T) {
	input := strings.Join([]string{
		"timestamp_ms,x,y,z",
		"0,0,0,9.8",
		"bogus,line",
		"60,0,0,9.8",
		"# pothole ahead",
		"130,0,0,40",
	}, "\n")

	src := NewReaderSource(strings.NewReader(input), ReaderOptions{}, zerolog.Nop())
	var got []int64
	err := src.Stream(context.Background(), func(s detection.RawSample) {
		got = append(got, s.TimestampMillis)
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 60, 130}, got)
}

func TestReaderSourceStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	input := "0,0,0,1\n100000,0,0,1\n"

	src := NewReaderSource(strings.NewReader(input), ReaderOptions{Pace: true}, zerolog.Nop())
	count := 0
	done := make(chan error, 1)
	go func() {
		done <- src.Stream(ctx, func(detection.RawSample) { count++ })
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("paced stream should stop on cancel")
	}
	assert.Equal(t, 1, count)
}

type pipePort struct {
	io.Reader
	once   sync.Once
	closed chan struct{}
	closer io.Closer
}

func (p *pipePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return p.closer.Close()
}

func TestSerialSourceReadsUntilCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	port := &pipePort{Reader: pr, closed: make(chan struct{}), closer: pr}

	var openedMode *serial.Mode
	src := NewSerialSource(SerialOptions{
		Path:     "/dev/ttyACM0",
		BaudRate: 9600,
		Clock:    fixedClock,
		Opener: func(path string, mode *serial.Mode) (io.ReadCloser, error) {
			openedMode = mode
			return port, nil
		},
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	samples := make(chan detection.RawSample, 4)
	done := make(chan error, 1)
	go func() {
		done <- src.Stream(ctx, func(s detection.RawSample) { samples <- s })
	}()

	_, err := pw.Write([]byte("0.1,0.2,9.8\n"))
	require.NoError(t, err)

	select {
	case s := <-samples:
		assert.Equal(t, int64(42_000), s.TimestampMillis)
		assert.Equal(t, 9.8, s.Z)
	case <-time.After(time.Second):
		t.Fatal("expected a sample from the serial port")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("serial stream should stop on cancel")
	}
	<-port.closed

	require.NotNil(t, openedMode)
	assert.Equal(t, 9600, openedMode.BaudRate)
	assert.Equal(t, 8, openedMode.DataBits)
}

func TestSerialSourceOpenError(t *testing.T) {
	src := NewSerialSource(SerialOptions{
		Path: "/dev/missing",
		Opener: func(string, *serial.Mode) (io.ReadCloser, error) {
			return nil, errors.New("no such device")
		},
	}, zerolog.Nop())

	err := src.Stream(context.Background(), func(detection.RawSample) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/missing")

	err = NewSerialSource(SerialOptions{}, zerolog.Nop()).Stream(context.Background(), func(detection.RawSample) {})
	assert.Error(t, err)
}
