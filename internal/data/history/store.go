package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"modernity/internal/core/domain"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, fmt.Errorf("history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, fmt.Errorf("history path %q is a directory, expected file", cleanPath)
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history directory %q: %w", dir, err)
		}
	}

	// busy_timeout + WAL reduce lock conflicts when several runs share a file.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveRun stores a run and every cell of its report in one transaction.
// Saving the same run ID again replaces it.
func (s *Store) SaveRun(run Run, report *domain.LibraryReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run.ID = strings.TrimSpace(run.ID)
	if run.ID == "" {
		return fmt.Errorf("run id must not be empty")
	}
	if report == nil {
		return fmt.Errorf("run %s has no report", run.ID)
	}
	if run.Library == "" {
		run.Library = report.Library
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = run.FinishedAt
	}

	return s.withRetry("save run", func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if err := insertRun(tx, run, report); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func insertRun(tx *sql.Tx, run Run, report *domain.LibraryReport) error {
	if _, err := tx.Exec(`DELETE FROM version_rows WHERE run_id = ?`, run.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(`
INSERT INTO runs (
  run_id, library, started_utc, finished_utc, metric_schema,
  requested_count, analyzed_count, dropped_count, results_path
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  library=excluded.library,
  started_utc=excluded.started_utc,
  finished_utc=excluded.finished_utc,
  metric_schema=excluded.metric_schema,
  requested_count=excluded.requested_count,
  analyzed_count=excluded.analyzed_count,
  dropped_count=excluded.dropped_count,
  results_path=excluded.results_path
`,
		run.ID,
		run.Library,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.MetricSchema,
		run.Requested,
		run.Analyzed,
		run.Dropped,
		run.ResultsPath,
	); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO version_rows (run_id, version, published_utc, position, metric, kind, value)
VALUES (?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range report.Rows {
		published := row.Version.PublishedAt.UTC().Format(time.RFC3339Nano)
		for pos, m := range row.Metrics {
			var value any
			if m.Available {
				value = m.Value
			}
			if _, err := stmt.Exec(run.ID, row.Version.Version, published, pos, m.Name, int(m.Kind), value); err != nil {
				return fmt.Errorf("insert %s/%s: %w", row.Version.Version, m.Name, err)
			}
		}
	}
	return nil
}

// LoadRuns lists the runs of library started at or after since, oldest
// first.
func (s *Store) LoadRuns(library string, since time.Time) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := `
SELECT
  run_id, library, started_utc, finished_utc, metric_schema,
  requested_count, analyzed_count, dropped_count, results_path
FROM runs
WHERE library = ?`
	args := []any{strings.TrimSpace(library)}
	if !since.IsZero() {
		base += " AND started_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	base += " ORDER BY started_utc ASC, run_id ASC"

	var rows *sql.Rows
	err := s.withRetry("load runs", func() error {
		var qErr error
		rows, qErr = s.db.Query(base, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			run         Run
			startedRaw  string
			finishedRaw string
		)
		if err := rows.Scan(
			&run.ID,
			&run.Library,
			&startedRaw,
			&finishedRaw,
			&run.MetricSchema,
			&run.Requested,
			&run.Analyzed,
			&run.Dropped,
			&run.ResultsPath,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		if run.StartedAt, err = parseTimestamp(startedRaw); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseTimestamp(finishedRaw); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// LoadReport rebuilds the report stored with a run.
func (s *Store) LoadReport(runID string) (*domain.LibraryReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var library string
	err := s.withRetry("load run", func() error {
		return s.db.QueryRow(`SELECT library FROM runs WHERE run_id = ?`, runID).Scan(&library)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s not found: %w", runID, err)
	}
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	err = s.withRetry("load version rows", func() error {
		var qErr error
		rows, qErr = s.db.Query(`
SELECT version, published_utc, metric, kind, value
FROM version_rows
WHERE run_id = ?
ORDER BY published_utc ASC, version ASC, position ASC
`, runID)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	report := &domain.LibraryReport{Library: library}
	for rows.Next() {
		var (
			version, publishedRaw, metric string
			kind                          int
			value                         sql.NullFloat64
		)
		if err := rows.Scan(&version, &publishedRaw, &metric, &kind, &value); err != nil {
			return nil, fmt.Errorf("scan version row: %w", err)
		}
		n := len(report.Rows)
		if n == 0 || report.Rows[n-1].Version.Version != version {
			published, err := parseTimestamp(publishedRaw)
			if err != nil {
				return nil, err
			}
			report.Rows = append(report.Rows, domain.ReportRow{
				Version: domain.LibraryVersion{Name: library, Version: version, PublishedAt: published},
			})
			n++
		}
		row := &report.Rows[n-1]
		row.Metrics = append(row.Metrics, domain.MetricValue{
			Name:      metric,
			Kind:      domain.MetricKind(kind),
			Value:     value.Float64,
			Available: value.Valid,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate version rows: %w", err)
	}
	if len(report.Rows) > 0 {
		report.Columns = report.Rows[0].Metrics.Names()
	}
	return report, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return ts.UTC(), nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
