package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(n int64, at time.Time) DetectionRecord {
	return DetectionRecord{
		ID:             "00000000-0000-0000-0000-00000000000" + string(rune('0'+n%10)),
		Number:         n,
		Sequence:       uint64(n),
		DetectedAt:     at,
		Magnitude:      decimal.RequireFromString("4210.57"),
		Threshold:      decimal.NewFromInt(2500),
		Severity:       "SEVERE",
		LocationStatus: LocationUnavailable,
	}
}

func TestEventLogRoundTripCount(t *testing.T) {
	log := NewEventLog(filepath.Join(t.TempDir(), "docs", "pothole_detections.txt"))

	count, err := log.Count()
	require.NoError(t, err)
	assert.Zero(t, count, "missing log counts as empty")

	base := time.Date(2024, 5, 1, 8, 30, 0, 0, time.Local)
	const n = 7
	for i := int64(1); i <= n; i++ {
		require.NoError(t, log.Append(sampleRecord(i, base.Add(time.Duration(i)*time.Minute))))
	}

	count, err = log.Count()
	require.NoError(t, err)
	assert.Equal(t, n, count)

	records, err := log.Records()
	require.NoError(t, err)
	require.Len(t, records, n)
	assert.Equal(t, int64(1), records[0].Number)
	assert.Equal(t, int64(n), records[n-1].Number)
}

func TestEventLogClear(t *testing.T) {
	log := NewEventLog(filepath.Join(t.TempDir(), "log.txt"))
	require.NoError(t, log.Append(sampleRecord(1, time.Now())))
	require.NoError(t, log.Clear())

	count, err := log.Count()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSplitRecordsDiscardsBlankFragments(t *testing.T) {
	content := "\n" + RecordDelimiter + "\n" +
		"Pothole #1 detected at 2024-05-01 08:30:00\nSeverity: MILD\nLocation: Not available\n" +
		RecordDelimiter + "\n   \n" + RecordDelimiter + "\n" +
		"Pothole #2 detected at 2024-05-01 08:31:00\nSeverity: SEVERE\nLocation: Permission not granted\n" +
		RecordDelimiter + "\n"

	parts := SplitRecords(content)
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[1], "Pothole #2"))
}

func TestLegacyLogWithoutMagnitudeLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.txt")
	legacy := "Pothole #1 detected at 2024-05-01 08:30:00\nSeverity: MODERATE\nLocation: 52.52, 13.405\n" + RecordDelimiter + "\n"
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	records, err := NewEventLog(path).Records()
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "MODERATE", rec.Severity)
	assert.True(t, rec.Magnitude.IsZero())
	require.True(t, rec.HasLocation())
	assert.Equal(t, 13.405, *rec.Longitude)
}

func TestFormatAndParseRecord(t *testing.T) {
	lat, lon := 48.8566, 2.3522
	rec := DetectionRecord{
		Number:         12,
		DetectedAt:     time.Date(2024, 6, 2, 17, 4, 5, 0, time.Local),
		Magnitude:      decimal.RequireFromString("3301.25"),
		Threshold:      decimal.NewFromInt(2500),
		Severity:       "MODERATE",
		Latitude:       &lat,
		Longitude:      &lon,
		LocationStatus: LocationOK,
	}

	text := FormatRecord(rec)
	assert.Equal(t, "Pothole #12 detected at 2024-06-02 17:04:05\n"+
		"Severity: MODERATE\n"+
		"Magnitude: 3301.25 (threshold 2500)\n"+
		"Location: 48.8566, 2.3522\n", text)

	parsed, err := ParseRecord(text)
	require.NoError(t, err)
	opts := cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })
	if diff := cmp.Diff(rec, parsed, opts); diff != "" {
		t.Fatalf("parsed record mismatch (-want +got):\n%s", diff)
	}

	rec.Latitude, rec.Longitude = nil, nil
	rec.LocationStatus = LocationDenied
	assert.Contains(t, FormatRecord(rec), "Location: Permission not granted\n")
	rec.LocationStatus = LocationUnavailable
	assert.Contains(t, FormatRecord(rec), "Location: Not available\n")
}

func TestParseRecordRequiresHeader(t *testing.T) {
	_, err := ParseRecord("Severity: MILD\n")
	assert.Error(t, err)

	_, err = ParseRecord("Pothole #x detected at 2024-06-02 17:04:05\n")
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "detections.db"))
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Migrate())
	require.NoError(t, store.Migrate(), "migrating twice is a no-op")

	base := time.UnixMilli(1_714_550_000_000)
	lat, lon := 40.4168, -3.7038
	for i := int64(1); i <= 3; i++ {
		rec := sampleRecord(i, base.Add(time.Duration(i)*time.Second))
		if i == 2 {
			rec.Latitude, rec.Longitude = &lat, &lon
			rec.LocationStatus = LocationOK
		}
		require.NoError(t, store.InsertDetection(ctx, rec))
	}
	require.NoError(t, store.InsertDetection(ctx, sampleRecord(1, base)), "duplicate id is ignored")

	count, err := store.CountDetections(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	recent, err := store.ListRecentDetections(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].Number)
	assert.Equal(t, int64(2), recent[1].Number)
	require.True(t, recent[1].HasLocation())
	assert.Equal(t, lat, *recent[1].Latitude)
	assert.True(t, recent[0].Magnitude.Equal(decimal.RequireFromString("4210.57")))

	between, err := store.ListDetectionsBetween(ctx, base.Add(1500*time.Millisecond), base.Add(10*time.Second))
	require.NoError(t, err)
	require.Len(t, between, 2)
	assert.Equal(t, int64(2), between[0].Number)
	assert.Equal(t, base.Add(2*time.Second).UnixMilli(), between[0].DetectedAt.UnixMilli())

	require.NoError(t, store.DeleteDetections(ctx))
	count, err = store.CountDetections(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPostgresStoreNotConfigured(t *testing.T) {
	var store *PostgresStore
	_, err := store.CountDetections(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
	store.Close()
}
