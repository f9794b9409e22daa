package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertDetectionSQL = `INSERT INTO detections (
        id,
        number,
        sequence,
        detected_at,
        magnitude,
        threshold,
        severity,
        latitude,
        longitude,
        location_status
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (id) DO NOTHING;`

	selectDetectionColumnsSQL = `SELECT
        id::text,
        number,
        sequence,
        detected_at,
        magnitude::text,
        threshold::text,
        severity,
        latitude,
        longitude,
        location_status,
        created_at
    FROM detections`

	listRecentDetectionsSQL = selectDetectionColumnsSQL + `
    ORDER BY detected_at DESC
    LIMIT $1;`

	listDetectionsBetweenSQL = selectDetectionColumnsSQL + `
    WHERE detected_at >= $1
      AND detected_at < $2
    ORDER BY detected_at;`

	countDetectionsSQL  = `SELECT COUNT(*) FROM detections;`
	deleteDetectionsSQL = `DELETE FROM detections;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// DetectionStore defines operations for detection persistence.
type DetectionStore interface {
	InsertDetection(ctx context.Context, rec DetectionRecord) error
	ListRecentDetections(ctx context.Context, limit int) ([]DetectionRecord, error)
	ListDetectionsBetween(ctx context.Context, from, to time.Time) ([]DetectionRecord, error)
	CountDetections(ctx context.Context) (int64, error)
	DeleteDetections(ctx context.Context) error
	Close()
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// PostgresStore persists detections in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the session lock dies with the connection anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertDetection persists a detection; re-inserting the same ID is a no-op.
func (s *PostgresStore) InsertDetection(ctx context.Context, rec DetectionRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var lat, lon interface{}
	if rec.HasLocation() {
		lat = *rec.Latitude
		lon = *rec.Longitude
	}

	_, execErr := pool.Exec(ctx, insertDetectionSQL,
		rec.ID,
		rec.Number,
		int64(rec.Sequence),
		rec.DetectedAt,
		rec.Magnitude.String(),
		rec.Threshold.String(),
		rec.Severity,
		lat,
		lon,
		rec.LocationStatus,
	)
	if execErr != nil {
		return fmt.Errorf("insert detection: %w", execErr)
	}
	return nil
}

// ListRecentDetections lists the newest detections first.
func (s *PostgresStore) ListRecentDetections(ctx context.Context, limit int) ([]DetectionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentDetectionsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent detections: %w", queryErr)
	}
	defer rows.Close()

	return collectDetections(rows, limit)
}

// ListDetectionsBetween lists detections within a time window, oldest first.
func (s *PostgresStore) ListDetectionsBetween(ctx context.Context, from, to time.Time) ([]DetectionRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDetectionsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list detections between: %w", queryErr)
	}
	defer rows.Close()

	return collectDetections(rows, 0)
}

// CountDetections counts stored detections.
func (s *PostgresStore) CountDetections(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countDetectionsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count detections: %w", scanErr)
	}
	return count, nil
}

// DeleteDetections removes every stored detection.
func (s *PostgresStore) DeleteDetections(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteDetectionsSQL); execErr != nil {
		return fmt.Errorf("delete detections: %w", execErr)
	}
	return nil
}

func collectDetections(rows pgx.Rows, capacity int) ([]DetectionRecord, error) {
	records := make([]DetectionRecord, 0, capacity)
	for rows.Next() {
		rec, scanErr := scanDetection(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanDetection(rows pgx.Rows) (DetectionRecord, error) {
	var (
		rec          DetectionRecord
		sequence     int64
		magnitudeStr string
		thresholdStr string
		lat          sql.NullFloat64
		lon          sql.NullFloat64
	)

	if err := rows.Scan(
		&rec.ID,
		&rec.Number,
		&sequence,
		&rec.DetectedAt,
		&magnitudeStr,
		&thresholdStr,
		&rec.Severity,
		&lat,
		&lon,
		&rec.LocationStatus,
		&rec.CreatedAt,
	); err != nil {
		return DetectionRecord{}, err
	}

	if err := fillDetection(&rec, sequence, magnitudeStr, thresholdStr, lat, lon); err != nil {
		return DetectionRecord{}, err
	}
	return rec, nil
}

func fillDetection(rec *DetectionRecord, sequence int64, magnitudeStr, thresholdStr string, lat, lon sql.NullFloat64) error {
	magnitude, err := decimal.NewFromString(magnitudeStr)
	if err != nil {
		return fmt.Errorf("parse magnitude: %w", err)
	}
	threshold, err := decimal.NewFromString(thresholdStr)
	if err != nil {
		return fmt.Errorf("parse threshold: %w", err)
	}

	rec.Sequence = uint64(sequence)
	rec.Magnitude = magnitude
	rec.Threshold = threshold
	if lat.Valid && lon.Valid {
		latitude, longitude := lat.Float64, lon.Float64
		rec.Latitude = &latitude
		rec.Longitude = &longitude
	}
	return nil
}

var (
	_ DetectionStore = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
)
