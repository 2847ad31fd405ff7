// Package sqlite implements the storage ports on SQLite via
// database/sql and the modernc.org pure-Go driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/llm-reliability/internal/domain"
	"github.com/tjfontaine/llm-reliability/internal/storage"
)

// defaultWindowLimit caps how many capture records a single drift
// window fetch returns.
const defaultWindowLimit = 10000

// Store is the SQLite implementation of the full storage surface.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// New opens (or creates) the database at dbPath and initializes the
// schema. Pass ":memory:" for an ephemeral database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS captures (
			id TEXT PRIMARY KEY,
			application_name TEXT NOT NULL,
			user_id TEXT,
			model_name TEXT NOT NULL,
			response_text TEXT NOT NULL,
			tokens_total INTEGER NOT NULL,
			latency_ms INTEGER NOT NULL,
			cost_usd REAL NOT NULL,
			payload TEXT NOT NULL,
			captured_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS validation_results (
			id TEXT PRIMARY KEY,
			invariant_id TEXT NOT NULL,
			capture_event_id TEXT NOT NULL,
			status TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT,
			evidence TEXT,
			execution_time_ms INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS drift_metrics (
			id TEXT PRIMARY KEY,
			application_name TEXT NOT NULL,
			payload TEXT NOT NULL,
			severity TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS drift_alerts (
			id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			severity TEXT NOT NULL,
			acknowledged INTEGER NOT NULL DEFAULT 0,
			resolved INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_captures_app_time ON captures(application_name, captured_at)`,
		`CREATE INDEX IF NOT EXISTS idx_results_capture ON validation_results(capture_event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_app_time ON drift_metrics(application_name, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_time ON drift_alerts(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SaveCapture(ctx context.Context, capture domain.CaptureEvent) error {
	payload, err := json.Marshal(capture)
	if err != nil {
		return fmt.Errorf("failed to marshal capture: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO captures (id, application_name, user_id, model_name, response_text,
			tokens_total, latency_ms, cost_usd, payload, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		capture.ID.String(),
		capture.Request.Context.ApplicationName,
		capture.Request.Context.UserID,
		capture.Request.Model.ModelName,
		capture.Response.Text,
		capture.Response.TotalTokens(),
		capture.Response.LatencyMS,
		capture.Response.CostUSD(),
		string(payload),
		capture.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert capture: %w", err)
	}
	return nil
}

func (s *Store) SaveCaptures(ctx context.Context, captures []domain.CaptureEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO captures (id, application_name, user_id, model_name, response_text,
			tokens_total, latency_ms, cost_usd, payload, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, capture := range captures {
		payload, err := json.Marshal(capture)
		if err != nil {
			return fmt.Errorf("failed to marshal capture: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			capture.ID.String(),
			capture.Request.Context.ApplicationName,
			capture.Request.Context.UserID,
			capture.Request.Model.ModelName,
			capture.Response.Text,
			capture.Response.TotalTokens(),
			capture.Response.LatencyMS,
			capture.Response.CostUSD(),
			string(payload),
			capture.CapturedAt,
		); err != nil {
			return fmt.Errorf("failed to insert capture %s: %w", capture.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetCapture(ctx context.Context, id uuid.UUID) (domain.CaptureEvent, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM captures WHERE id = ?`, id.String()).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.CaptureEvent{}, storage.ErrNotFound
	}
	if err != nil {
		return domain.CaptureEvent{}, fmt.Errorf("failed to query capture: %w", err)
	}
	var capture domain.CaptureEvent
	if err := json.Unmarshal([]byte(payload), &capture); err != nil {
		return domain.CaptureEvent{}, fmt.Errorf("failed to unmarshal capture: %w", err)
	}
	return capture, nil
}

func (s *Store) CapturesInWindow(ctx context.Context, application string, start, end time.Time, limit int) ([]storage.CaptureRecord, error) {
	if limit <= 0 {
		limit = defaultWindowLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, application_name, user_id, model_name, response_text,
			tokens_total, latency_ms, cost_usd, captured_at
		 FROM captures
		 WHERE application_name = ? AND captured_at >= ? AND captured_at <= ?
		 ORDER BY captured_at ASC
		 LIMIT ?`,
		application, start, end, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query captures: %w", err)
	}
	defer rows.Close()

	var records []storage.CaptureRecord
	for rows.Next() {
		var (
			rec    storage.CaptureRecord
			rawID  string
			userID sql.NullString
		)
		if err := rows.Scan(&rawID, &rec.ApplicationName, &userID, &rec.ModelName,
			&rec.ResponseText, &rec.TokensTotal, &rec.LatencyMS, &rec.CostUSD, &rec.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan capture row: %w", err)
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse capture id %q: %w", rawID, err)
		}
		rec.ID = id
		rec.UserID = userID.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) Stats(ctx context.Context, application string, since time.Time) (storage.CaptureStats, error) {
	stats := storage.CaptureStats{ApplicationName: application, Since: since}

	var avgLatency sql.NullFloat64
	var totalTokens, totalCost sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(latency_ms), SUM(tokens_total), SUM(cost_usd)
		 FROM captures WHERE application_name = ? AND captured_at >= ?`,
		application, since).Scan(&stats.CaptureCount, &avgLatency, &totalTokens, &totalCost)
	if err != nil {
		return storage.CaptureStats{}, fmt.Errorf("failed to query stats: %w", err)
	}
	stats.AvgLatencyMS = avgLatency.Float64
	stats.TotalTokens = int64(totalTokens.Float64)
	stats.TotalCostUSD = totalCost.Float64

	if stats.CaptureCount > 0 {
		// Nearest-rank p95: the value at ceil(0.95 * n), 1-based.
		rank := (stats.CaptureCount*95 + 99) / 100
		if rank < 1 {
			rank = 1
		}
		var p95 float64
		err = s.db.QueryRowContext(ctx,
			`SELECT latency_ms FROM captures
			 WHERE application_name = ? AND captured_at >= ?
			 ORDER BY latency_ms ASC LIMIT 1 OFFSET ?`,
			application, since, rank-1).Scan(&p95)
		if err != nil {
			return storage.CaptureStats{}, fmt.Errorf("failed to query p95 latency: %w", err)
		}
		stats.P95LatencyMS = p95
	}
	return stats, nil
}

func (s *Store) SaveResults(ctx context.Context, results []domain.ValidationResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO validation_results (id, invariant_id, capture_event_id, status,
			severity, message, evidence, execution_time_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		evidence, err := json.Marshal(r.Evidence)
		if err != nil {
			return fmt.Errorf("failed to marshal evidence: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID.String(), r.InvariantID, r.CaptureEventID.String(),
			string(r.Status), string(r.Severity), r.Message, string(evidence),
			r.ExecutionTime.Milliseconds(), r.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to insert result %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) ResultsForCapture(ctx context.Context, captureID uuid.UUID) ([]domain.ValidationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, invariant_id, capture_event_id, status, severity, message,
			evidence, execution_time_ms, created_at
		 FROM validation_results WHERE capture_event_id = ? ORDER BY created_at ASC`,
		captureID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []domain.ValidationResult
	for rows.Next() {
		var (
			r               domain.ValidationResult
			rawID, rawCapID string
			status, sev     string
			evidence        sql.NullString
			execMS          int64
		)
		if err := rows.Scan(&rawID, &r.InvariantID, &rawCapID, &status, &sev,
			&r.Message, &evidence, &execMS, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		if r.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("failed to parse result id %q: %w", rawID, err)
		}
		if r.CaptureEventID, err = uuid.Parse(rawCapID); err != nil {
			return nil, fmt.Errorf("failed to parse capture id %q: %w", rawCapID, err)
		}
		r.Status = domain.ValidationStatus(status)
		r.Severity = domain.Severity(sev)
		r.ExecutionTime = time.Duration(execMS) * time.Millisecond
		if evidence.Valid && evidence.String != "" && evidence.String != "null" {
			if err := json.Unmarshal([]byte(evidence.String), &r.Evidence); err != nil {
				return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *Store) SaveMetrics(ctx context.Context, application string, metrics []domain.DriftMetric) error {
	if len(metrics) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO drift_metrics (id, application_name, payload, severity, created_at)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range metrics {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to marshal metric: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			m.ID.String(), application, string(payload), string(m.Severity), m.Timestamp,
		); err != nil {
			return fmt.Errorf("failed to insert metric %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) RecentMetrics(ctx context.Context, application string, limit int) ([]domain.DriftMetric, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM drift_metrics
		 WHERE application_name = ? ORDER BY created_at DESC LIMIT ?`,
		application, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []domain.DriftMetric
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}
		var m domain.DriftMetric
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func (s *Store) SaveAlert(ctx context.Context, alert domain.DriftAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drift_alerts (id, payload, severity, acknowledged, resolved, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		alert.ID.String(), string(payload), string(alert.OverallSeverity),
		boolToInt(alert.Acknowledged), boolToInt(alert.Resolved), alert.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]domain.DriftAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM drift_alerts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.DriftAlert
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		var a domain.DriftAlert
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
