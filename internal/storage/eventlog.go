package storage

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// RecordDelimiter terminates every record in the event log.
	RecordDelimiter  = "==================="
	recordTimeLayout = "2006-01-02 15:04:05"
)

// EventLog is the append-only plain-text detection log.
type EventLog struct {
	path string
	mu   sync.Mutex
}

// NewEventLog returns a log at path; the file is created on first append.
func NewEventLog(path string) *EventLog {
	return &EventLog{path: path}
}

// Path returns the log location.
func (l *EventLog) Path() string {
	return l.path
}

// Append writes one record followed by the delimiter line.
func (l *EventLog) Append(rec DetectionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ensureDir(l.path); err != nil {
		return err
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}

	w := bufio.NewWriter(file)
	w.WriteString(FormatRecord(rec))
	w.WriteString(RecordDelimiter + "\n")
	if err := w.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("write event log: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close event log: %w", err)
	}
	return nil
}

// Load returns the raw text of every non-blank record. A missing log is empty.
func (l *EventLog) Load() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	content, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return SplitRecords(string(content)), nil
}

// Count returns the number of stored records.
func (l *EventLog) Count() (int, error) {
	records, err := l.Load()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Records parses every record, oldest first. Fragments that do not parse are
// skipped; use Count for the authoritative total.
func (l *EventLog) Records() ([]DetectionRecord, error) {
	raw, err := l.Load()
	if err != nil {
		return nil, err
	}
	out := make([]DetectionRecord, 0, len(raw))
	for _, text := range raw {
		rec, parseErr := ParseRecord(text)
		if parseErr != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Clear truncates the log.
func (l *EventLog) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ensureDir(l.path); err != nil {
		return err
	}
	if err := os.WriteFile(l.path, nil, 0o644); err != nil {
		return fmt.Errorf("clear event log: %w", err)
	}
	return nil
}

// SplitRecords splits log content on the delimiter line and drops blank fragments.
func SplitRecords(content string) []string {
	parts := strings.Split(content, RecordDelimiter+"\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// FormatRecord renders the human-readable record body without the delimiter.
func FormatRecord(rec DetectionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pothole #%d detected at %s\n", rec.Number, rec.DetectedAt.Local().Format(recordTimeLayout))
	fmt.Fprintf(&b, "Severity: %s\n", rec.Severity)
	fmt.Fprintf(&b, "Magnitude: %s (threshold %s)\n", rec.Magnitude.StringFixed(2), rec.Threshold.StringFixed(0))
	fmt.Fprintf(&b, "Location: %s\n", LocationText(rec))
	return b.String()
}

// LocationText renders the location the way the event log shows it.
func LocationText(rec DetectionRecord) string {
	switch {
	case rec.HasLocation():
		return strconv.FormatFloat(*rec.Latitude, 'f', -1, 64) + ", " +
			strconv.FormatFloat(*rec.Longitude, 'f', -1, 64)
	case rec.LocationStatus == LocationDenied:
		return "Permission not granted"
	default:
		return "Not available"
	}
}

// ParseRecord recovers a DetectionRecord from FormatRecord output. Records
// written without a magnitude line parse with zero magnitude.
func ParseRecord(text string) (DetectionRecord, error) {
	var rec DetectionRecord
	var haveHeader bool

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Pothole #"):
			rest := strings.TrimPrefix(line, "Pothole #")
			numStr, when, ok := strings.Cut(rest, " detected at ")
			if !ok {
				return DetectionRecord{}, fmt.Errorf("malformed header %q", line)
			}
			n, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return DetectionRecord{}, fmt.Errorf("parse record number: %w", err)
			}
			ts, err := time.ParseInLocation(recordTimeLayout, when, time.Local)
			if err != nil {
				return DetectionRecord{}, fmt.Errorf("parse record time: %w", err)
			}
			rec.Number = n
			rec.DetectedAt = ts
			haveHeader = true
		case strings.HasPrefix(line, "Severity: "):
			rec.Severity = strings.TrimPrefix(line, "Severity: ")
		case strings.HasPrefix(line, "Magnitude: "):
			rest := strings.TrimPrefix(line, "Magnitude: ")
			magStr, thrStr, _ := strings.Cut(rest, " (threshold ")
			if m, err := decimal.NewFromString(magStr); err == nil {
				rec.Magnitude = m
			}
			if th, err := decimal.NewFromString(strings.TrimSuffix(thrStr, ")")); err == nil {
				rec.Threshold = th
			}
		case strings.HasPrefix(line, "Location: "):
			rest := strings.TrimPrefix(line, "Location: ")
			switch rest {
			case "Not available":
				rec.LocationStatus = LocationUnavailable
			case "Permission not granted":
				rec.LocationStatus = LocationDenied
			default:
				latStr, lonStr, ok := strings.Cut(rest, ",")
				lat, latErr := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
				lon, lonErr := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
				if !ok || latErr != nil || lonErr != nil {
					rec.LocationStatus = LocationUnavailable
					continue
				}
				rec.Latitude = &lat
				rec.Longitude = &lon
				rec.LocationStatus = LocationOK
			}
		}
	}

	if !haveHeader {
		return DetectionRecord{}, errors.New("record header missing")
	}
	return rec, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}
