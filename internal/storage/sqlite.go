package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const (
	sqliteInsertDetectionSQL = `INSERT OR IGNORE INTO detections (
        id, number, sequence, detected_at_ms, magnitude, threshold,
        severity, latitude, longitude, location_status, created_at_ms
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

	sqliteSelectColumnsSQL = `SELECT
        id, number, sequence, detected_at_ms, magnitude, threshold,
        severity, latitude, longitude, location_status, created_at_ms
    FROM detections`

	sqliteListRecentSQL  = sqliteSelectColumnsSQL + ` ORDER BY detected_at_ms DESC, number DESC LIMIT ?;`
	sqliteListBetweenSQL = sqliteSelectColumnsSQL + ` WHERE detected_at_ms >= ? AND detected_at_ms < ? ORDER BY detected_at_ms, number;`
)

// SQLiteStore persists detections in an embedded SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != ":memory:" {
		if err := ensureDir(path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serialises writers; one connection also keeps :memory: coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// DB exposes the handle for migrations.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	_ = s.db.Close()
}

// InsertDetection persists a detection; re-inserting the same ID is a no-op.
func (s *SQLiteStore) InsertDetection(ctx context.Context, rec DetectionRecord) error {
	var lat, lon interface{}
	if rec.HasLocation() {
		lat = *rec.Latitude
		lon = *rec.Longitude
	}

	_, err := s.db.ExecContext(ctx, sqliteInsertDetectionSQL,
		rec.ID,
		rec.Number,
		int64(rec.Sequence),
		rec.DetectedAt.UnixMilli(),
		rec.Magnitude.String(),
		rec.Threshold.String(),
		rec.Severity,
		lat,
		lon,
		rec.LocationStatus,
		s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert detection: %w", err)
	}
	return nil
}

// ListRecentDetections lists the newest detections first.
func (s *SQLiteStore) ListRecentDetections(ctx context.Context, limit int) ([]DetectionRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListRecentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent detections: %w", err)
	}
	defer rows.Close()
	return scanSQLiteDetections(rows)
}

// ListDetectionsBetween lists detections within [from, to), oldest first.
func (s *SQLiteStore) ListDetectionsBetween(ctx context.Context, from, to time.Time) ([]DetectionRecord, error) {
	rows, err := s.db.QueryContext(ctx, sqliteListBetweenSQL, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list detections between: %w", err)
	}
	defer rows.Close()
	return scanSQLiteDetections(rows)
}

// CountDetections counts stored detections.
func (s *SQLiteStore) CountDetections(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, countDetectionsSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count detections: %w", err)
	}
	return count, nil
}

// DeleteDetections removes every stored detection.
func (s *SQLiteStore) DeleteDetections(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, deleteDetectionsSQL); err != nil {
		return fmt.Errorf("delete detections: %w", err)
	}
	return nil
}

func scanSQLiteDetections(rows *sql.Rows) ([]DetectionRecord, error) {
	records := make([]DetectionRecord, 0)
	for rows.Next() {
		var (
			rec          DetectionRecord
			sequence     int64
			detectedMs   int64
			createdMs    int64
			magnitudeStr string
			thresholdStr string
			lat          sql.NullFloat64
			lon          sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.Number,
			&sequence,
			&detectedMs,
			&magnitudeStr,
			&thresholdStr,
			&rec.Severity,
			&lat,
			&lon,
			&rec.LocationStatus,
			&createdMs,
		); err != nil {
			return nil, err
		}
		if err := fillDetection(&rec, sequence, magnitudeStr, thresholdStr, lat, lon); err != nil {
			return nil, err
		}
		rec.DetectedAt = time.UnixMilli(detectedMs)
		rec.CreatedAt = time.UnixMilli(createdMs)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

var _ DetectionStore = (*SQLiteStore)(nil)
