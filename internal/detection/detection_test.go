package detection

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMagnitudeWeightsVerticalAxis(t *testing.T) {
	prev := RawSample{X: 0, Y: 0, Z: 0, TimestampMillis: 0}
	cur := RawSample{X: 3, Y: 0, Z: 2, TimestampMillis: 100}

	got := ComputeMagnitude(&prev, cur, 2.0)
	want := math.Sqrt(9+16) / 100 * 10000
	assert.InDelta(t, want, got.Value, 1e-9)
	assert.Equal(t, int64(100), got.TimestampMillis)
}

func TestComputeMagnitudeWithoutPreviousUsesZeroSample(t *testing.T) {
	got := ComputeMagnitude(nil, RawSample{Z: 1, TimestampMillis: 200}, 2.0)
	assert.InDelta(t, 2.0/200*10000, got.Value, 1e-9)
}

func TestComputeMagnitudeClampsElapsed(t *testing.T) {
	prev := RawSample{Z: 0, TimestampMillis: 500}
	cur := RawSample{Z: 1, TimestampMillis: 400}

	got := ComputeMagnitude(&prev, cur, 1.0)
	assert.InDelta(t, 10000.0, got.Value, 1e-9, "negative elapsed should clamp to 1ms")
}

func TestSmoothingWindowColdStartReturnsNewest(t *testing.T) {
	w := NewSmoothingWindow(10, 5)
	for i, v := range []float64{10, 20, 30, 40} {
		got := w.Push(JoltMagnitude{Value: v})
		assert.Equal(t, v, got.Value, "push %d", i)
	}

	got := w.Push(JoltMagnitude{Value: 50})
	assert.InDelta(t, 30.0, got.Value, 1e-9)
}

func TestSmoothingWindowBoundedAndAveragesNewest(t *testing.T) {
	w := NewSmoothingWindow(10, 5)
	var last SmoothedStatistic
	for i := 1; i <= 12; i++ {
		last = w.Push(JoltMagnitude{Value: float64(i)})
	}

	require.Equal(t, 10, w.Len())
	assert.Equal(t, []float64{3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, w.Slice())
	assert.InDelta(t, 10.0, last.Value, 1e-9)

	w.Clear()
	assert.Zero(t, w.Len())
	assert.Empty(t, w.Slice())
}

func TestThresholdStoreClamps(t *testing.T) {
	s := NewThresholdStore(DefaultThreshold)
	assert.Equal(t, 2500.0, s.Get())

	s.Set(500)
	assert.Equal(t, 1000.0, s.Get())

	s.Set(9000)
	assert.Equal(t, 5000.0, s.Get())

	s.Set(3000)
	assert.Equal(t, 3000.0, s.Get())

	s.Set(math.NaN())
	assert.Equal(t, 3000.0, s.Get())

	assert.Equal(t, 1000.0, NewThresholdStore(0).Get())
}

func TestThresholdStoreConcurrentAccess(t *testing.T) {
	s := NewThresholdStore(DefaultThreshold)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			s.Set(float64(1000 + i*4))
		}
	}()
	for i := 0; i < 1000; i++ {
		v := s.Get()
		require.GreaterOrEqual(t, v, MinThreshold)
		require.LessOrEqual(t, v, MaxThreshold)
	}
	wg.Wait()
}

func TestClassifyBoundaries(t *testing.T) {
	cases := []struct {
		name      string
		statistic float64
		want      Severity
	}{
		{"just above threshold", 2500.25, SeverityMild},
		{"just below moderate", 3249.75, SeverityMild},
		{"exactly moderate", 3250, SeverityMild},
		{"just above moderate", 3250.25, SeverityModerate},
		{"just below severe", 3999.75, SeverityModerate},
		{"exactly severe", 4000, SeverityModerate},
		{"just above severe", 4000.25, SeveritySevere},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.statistic, 2500))
		})
	}
}

func TestClassifyNonFiniteInputs(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Equal(t, SeveritySevere, Classify(math.Inf(1), 2500))
		assert.Equal(t, SeverityMild, Classify(math.NaN(), 2500))
		assert.Equal(t, SeverityMild, Classify(math.Inf(-1), 2500))
		assert.Equal(t, SeverityMild, Classify(4000, math.Inf(1)))
		assert.Equal(t, SeverityMild, Classify(4000, math.NaN()))
		assert.Equal(t, SeveritySevere, Classify(1e300, 1e-300))
	})
}

func TestParseSeverity(t *testing.T) {
	s, err := ParseSeverity(" severe ")
	require.NoError(t, err)
	assert.Equal(t, SeveritySevere, s)

	_, err = ParseSeverity("catastrophic")
	assert.Error(t, err)
}

func TestSensitivityLabel(t *testing.T) {
	assert.Equal(t, "Very High", SensitivityLabel(1000))
	assert.Equal(t, "High", SensitivityLabel(1800))
	assert.Equal(t, "Moderate", SensitivityLabel(2500))
	assert.Equal(t, "Low", SensitivityLabel(2800))
	assert.Equal(t, "Very Low", SensitivityLabel(3500))
}

func TestDetectorScenarioFiresOnVerticalShock(t *testing.T) {
	d := NewDetector(DefaultParams(), NewThresholdStore(2500))

	_, fired := d.OnSample(RawSample{Z: 9.8, TimestampMillis: 0})
	assert.False(t, fired, "first sample must never fire")

	_, fired = d.OnSample(RawSample{Z: 9.8, TimestampMillis: 60})
	assert.False(t, fired, "flat z should not fire")

	ev, fired := d.OnSample(RawSample{Z: 40, TimestampMillis: 130})
	require.True(t, fired)
	assert.Equal(t, uint64(1), ev.Sequence)
	assert.Equal(t, int64(130), ev.TimestampMillis)
	assert.InDelta(t, 60.4/70*10000, ev.Magnitude, 1e-6)
	assert.Equal(t, 2500.0, ev.Threshold)
	assert.Equal(t, SeveritySevere, ev.Severity)
	assert.Nil(t, ev.Location)
	assert.Zero(t, d.Buffered(), "window is cleared after a detection")
}

func TestDetectorFirstSampleNeverFires(t *testing.T) {
	d := NewDetector(DefaultParams(), NewThresholdStore(1000))
	require.False(t, d.Warm())

	_, fired := d.OnSample(RawSample{X: 50, Y: 50, Z: 500, TimestampMillis: 10})
	assert.False(t, fired)
	assert.True(t, d.Warm())
}

func TestDetectorIgnoresSamplesInsideMinInterval(t *testing.T) {
	d := NewDetector(DefaultParams(), NewThresholdStore(2500))

	d.OnSample(RawSample{Z: 9.8, TimestampMillis: 0})
	require.Equal(t, 1, d.Buffered())

	_, fired := d.OnSample(RawSample{Z: 40, TimestampMillis: 30})
	assert.False(t, fired)
	_, fired = d.OnSample(RawSample{Z: 40, TimestampMillis: 50})
	assert.False(t, fired)
	assert.Equal(t, 1, d.Buffered(), "ignored samples must not reach the window")

	// The dropped z=40 samples must not have become the reference sample.
	_, fired = d.OnSample(RawSample{Z: 9.8, TimestampMillis: 60})
	assert.False(t, fired)
	assert.Equal(t, 2, d.Buffered())
}

func TestDetectorIgnoresOutOfOrderSamples(t *testing.T) {
	d := NewDetector(DefaultParams(), NewThresholdStore(2500))
	d.OnSample(RawSample{Z: 9.8, TimestampMillis: 1000})

	_, fired := d.OnSample(RawSample{Z: 40, TimestampMillis: 900})
	assert.False(t, fired)
	assert.Equal(t, 1, d.Buffered())
}

func TestDetectorRefractoryPeriod(t *testing.T) {
	d := NewDetector(DefaultParams(), NewThresholdStore(2500))

	var events []Event
	for i := 0; i <= 100; i++ {
		z := 9.8
		if i%2 == 1 {
			z = 40
		}
		if ev, ok := d.OnSample(RawSample{Z: z, TimestampMillis: int64(i * 100)}); ok {
			events = append(events, ev)
		}
	}

	require.NotEmpty(t, events)
	assert.Equal(t, int64(100), events[0].TimestampMillis)
	if len(events) > 1 {
		assert.Equal(t, int64(2200), events[1].TimestampMillis, "exactly 2000ms later is still refractory")
	}
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.Sequence)
		if i > 0 {
			assert.Greater(t, ev.TimestampMillis-events[i-1].TimestampMillis, int64(2000))
		}
	}
	assert.Equal(t, uint64(len(events)), d.Detections())
}

func TestDetectorVerticalGateBlocksHorizontalMotion(t *testing.T) {
	d := NewDetector(DefaultParams(), NewThresholdStore(1000))
	for i := 0; i < 50; i++ {
		x := 0.0
		if i%2 == 1 {
			x = 40
		}
		_, fired := d.OnSample(RawSample{X: x, Z: 9.8, TimestampMillis: int64(i * 100)})
		require.False(t, fired, "sample %d", i)
	}
}

func TestDetectorReadsThresholdPerSample(t *testing.T) {
	store := NewThresholdStore(5000)
	d := NewDetector(DefaultParams(), store)

	d.OnSample(RawSample{Z: 9.8, TimestampMillis: 0})
	_, fired := d.OnSample(RawSample{Z: 20, TimestampMillis: 100})
	require.False(t, fired, "10.2 delta over 100ms is 2040, below 5000")

	store.Set(2000)
	ev, fired := d.OnSample(RawSample{Z: 9.8, TimestampMillis: 200})
	require.True(t, fired)
	assert.Equal(t, 2000.0, ev.Threshold)
	assert.Equal(t, SeverityMild, ev.Severity)
}

func TestDetectorCustomParams(t *testing.T) {
	params := DefaultParams()
	params.Refractory = 500 * time.Millisecond
	d := NewDetector(params, NewThresholdStore(2500))

	var times []int64
	for i := 0; i <= 20; i++ {
		z := 9.8
		if i%2 == 1 {
			z = 40
		}
		if ev, ok := d.OnSample(RawSample{Z: z, TimestampMillis: int64(i * 100)}); ok {
			times = append(times, ev.TimestampMillis)
		}
	}
	assert.Equal(t, []int64{100, 700, 1300, 1900}, times)
}

func TestDetectorDropsNonFiniteAndOverflowingSamples(t *testing.T) {
	for _, bad := range []RawSample{
		{X: 0, Y: 0, Z: math.NaN(), TimestampMillis: 100},
		{X: 0, Y: 0, Z: math.Inf(1), TimestampMillis: 100},
		{X: math.Inf(-1), Y: 0, Z: 20, TimestampMillis: 100},
		{X: 1e200, Y: 0, Z: 20, TimestampMillis: 100},
	} {
		d := NewDetector(DefaultParams(), NewThresholdStore(2500))
		d.OnSample(RawSample{Z: 9.8, TimestampMillis: 0})
		require.Equal(t, 1, d.Buffered())

		var fired bool
		require.NotPanics(t, func() { _, fired = d.OnSample(bad) }, "sample %+v", bad)
		assert.False(t, fired)
		assert.Equal(t, 1, d.Buffered(), "rejected sample must not reach the window")

		// the previous good sample is still the reference
		ev, fired := d.OnSample(RawSample{Z: 40, TimestampMillis: 200})
		require.True(t, fired, "detector keeps working after %+v", bad)
		assert.InDelta(t, 60.4/200*10000, ev.Magnitude, 1e-6)
		assert.Equal(t, SeverityMild, ev.Severity)
	}
}
