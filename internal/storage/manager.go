package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/studiowebux/loadtest/internal/loadtest"
	"github.com/studiowebux/loadtest/internal/migrations"
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("run not found")

// Manager handles load test run persistence
type Manager struct {
	db *sql.DB
}

// NewManager opens the SQLite database at dbPath and applies pending migrations
func NewManager(dbPath string) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; one connection avoids "database is locked" under concurrent flushes
	db.SetMaxOpenConns(1)

	m := &Manager{db: db}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return m, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}

// CreateRun inserts a run record in the running state
func (m *Manager) CreateRun(run *Run) error {
	if run.RunUUID == "" {
		return fmt.Errorf("run uuid is required")
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	result, err := m.db.Exec(`
		INSERT INTO load_test_runs (run_uuid, name, plan_file, pattern, started_at, status, config)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.RunUUID, run.Name, run.PlanFile, run.Pattern, run.StartedAt, run.Status, run.Config)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// CompleteRun stores the final statistics of result on run
func (m *Manager) CompleteRun(run *Run, result *loadtest.TestResult) error {
	stats := result.Statistics()
	cfg, err := json.Marshal(result.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	completed := result.EndTime
	run.StartedAt = result.StartTime
	run.CompletedAt = &completed
	run.Status = string(result.Status)
	run.Config = string(cfg)
	run.DurationSec = result.Duration().Seconds()
	run.TotalRequests = result.TotalRequests
	run.SuccessfulRequests = result.SuccessfulRequests
	run.FailedRequests = result.FailedRequests
	run.SuccessRate = result.SuccessRate()
	run.Throughput = stats.Throughput
	run.MinResponseTime = stats.MinResponseTime
	run.MaxResponseTime = stats.MaxResponseTime
	run.MeanResponseTime = stats.MeanResponseTime
	run.P50ResponseTime = stats.P50ResponseTime
	run.P95ResponseTime = stats.P95ResponseTime
	run.P99ResponseTime = stats.P99ResponseTime
	run.P999ResponseTime = stats.P999ResponseTime
	run.StatusCodes = stats.StatusCodes
	run.Errors = stats.Errors

	return m.UpdateRun(run)
}

// FailRun marks a run as failed
func (m *Manager) FailRun(run *Run) error {
	now := time.Now()
	run.CompletedAt = &now
	run.Status = StatusFailed
	return m.UpdateRun(run)
}

// UpdateRun updates a run record and replaces its status code and error breakdown
func (m *Manager) UpdateRun(run *Run) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE load_test_runs
		SET started_at = ?, completed_at = ?, status = ?, config = ?, duration_sec = ?,
		    total_requests = ?, successful_requests = ?, failed_requests = ?, success_rate = ?, throughput = ?,
		    min_response_time = ?, max_response_time = ?, mean_response_time = ?,
		    p50_response_time = ?, p95_response_time = ?, p99_response_time = ?, p999_response_time = ?
		WHERE id = ?
	`, run.StartedAt, run.CompletedAt, run.Status, run.Config, run.DurationSec,
		run.TotalRequests, run.SuccessfulRequests, run.FailedRequests, run.SuccessRate, run.Throughput,
		run.MinResponseTime, run.MaxResponseTime, run.MeanResponseTime,
		run.P50ResponseTime, run.P95ResponseTime, run.P99ResponseTime, run.P999ResponseTime, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM load_test_status_codes WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("failed to clear status codes: %w", err)
	}
	for code, count := range run.StatusCodes {
		if _, err := tx.Exec("INSERT INTO load_test_status_codes (run_id, status_code, count) VALUES (?, ?, ?)", run.ID, code, count); err != nil {
			return fmt.Errorf("failed to insert status code: %w", err)
		}
	}

	if _, err := tx.Exec("DELETE FROM load_test_errors WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("failed to clear errors: %w", err)
	}
	for kind, count := range run.Errors {
		if _, err := tx.Exec("INSERT INTO load_test_errors (run_id, error_type, count) VALUES (?, ?, ?)", run.ID, kind, count); err != nil {
			return fmt.Errorf("failed to insert error type: %w", err)
		}
	}

	return tx.Commit()
}

const runColumns = `
	id, run_uuid, name, COALESCE(plan_file, ''), COALESCE(pattern, ''), started_at, completed_at, status,
	COALESCE(config, ''), COALESCE(duration_sec, 0), COALESCE(total_requests, 0),
	COALESCE(successful_requests, 0), COALESCE(failed_requests, 0), COALESCE(success_rate, 0),
	COALESCE(throughput, 0), COALESCE(min_response_time, 0), COALESCE(max_response_time, 0),
	COALESCE(mean_response_time, 0), COALESCE(p50_response_time, 0), COALESCE(p95_response_time, 0),
	COALESCE(p99_response_time, 0), COALESCE(p999_response_time, 0)`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var completedAt sql.NullTime
	err := row.Scan(&run.ID, &run.RunUUID, &run.Name, &run.PlanFile, &run.Pattern, &run.StartedAt,
		&completedAt, &run.Status, &run.Config, &run.DurationSec, &run.TotalRequests,
		&run.SuccessfulRequests, &run.FailedRequests, &run.SuccessRate, &run.Throughput,
		&run.MinResponseTime, &run.MaxResponseTime, &run.MeanResponseTime, &run.P50ResponseTime,
		&run.P95ResponseTime, &run.P99ResponseTime, &run.P999ResponseTime)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// GetRun retrieves a run by ID, including its status code and error breakdown
func (m *Manager) GetRun(id int64) (*Run, error) {
	return m.getRun("SELECT "+runColumns+" FROM load_test_runs WHERE id = ?", id)
}

// GetRunByUUID retrieves a run by its run UUID
func (m *Manager) GetRunByUUID(runUUID string) (*Run, error) {
	return m.getRun("SELECT "+runColumns+" FROM load_test_runs WHERE run_uuid = ?", runUUID)
}

func (m *Manager) getRun(query string, arg any) (*Run, error) {
	run, err := scanRun(m.db.QueryRow(query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if err := m.loadBreakdown(run); err != nil {
		return nil, err
	}
	return run, nil
}

func (m *Manager) loadBreakdown(run *Run) error {
	run.StatusCodes = make(map[int]int64)
	rows, err := m.db.Query("SELECT status_code, count FROM load_test_status_codes WHERE run_id = ?", run.ID)
	if err != nil {
		return fmt.Errorf("failed to get status codes: %w", err)
	}
	for rows.Next() {
		var code int
		var count int64
		if err := rows.Scan(&code, &count); err != nil {
			rows.Close()
			return err
		}
		run.StatusCodes[code] = count
	}
	rows.Close()

	run.Errors = make(map[string]int64)
	rows, err = m.db.Query("SELECT error_type, count FROM load_test_errors WHERE run_id = ?", run.ID)
	if err != nil {
		return fmt.Errorf("failed to get errors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return err
		}
		run.Errors[kind] = count
	}
	return rows.Err()
}

// ListRuns returns runs, newest first. A non-empty name filters by test name.
func (m *Manager) ListRuns(name string, limit int) ([]*Run, error) {
	query := "SELECT " + runColumns + `
		FROM load_test_runs
		WHERE ? = '' OR name = ?
		ORDER BY started_at DESC, id DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := m.db.Query(query, name, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun deletes a run and everything recorded for it
func (m *Manager) DeleteRun(id int64) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM load_test_samples WHERE run_id = ?",
		"DELETE FROM load_test_status_codes WHERE run_id = ?",
		"DELETE FROM load_test_errors WHERE run_id = ?",
		"DELETE FROM load_test_runs WHERE id = ?",
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("failed to delete run: %w", err)
		}
	}
	return tx.Commit()
}

// SaveSamplesBatch saves multiple samples in a single transaction
func (m *Manager) SaveSamplesBatch(samples []*Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO load_test_samples
		(run_id, scenario, scheduled_at, elapsed_ms, queue_wait_ms, success, status_code, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		_, err := stmt.Exec(s.RunID, s.Scenario, s.ScheduledAt, s.ElapsedMs, s.QueueWaitMs, s.Success, s.StatusCode, s.Detail)
		if err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}

	return tx.Commit()
}

// GetSamples retrieves all samples of a run in scheduling order
func (m *Manager) GetSamples(runID int64) ([]*Sample, error) {
	rows, err := m.db.Query(`
		SELECT id, run_id, scenario, scheduled_at, elapsed_ms, queue_wait_ms, success, status_code, COALESCE(detail, '')
		FROM load_test_samples
		WHERE run_id = ?
		ORDER BY scheduled_at, id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*Sample
	for rows.Next() {
		s := &Sample{}
		err := rows.Scan(&s.ID, &s.RunID, &s.Scenario, &s.ScheduledAt, &s.ElapsedMs, &s.QueueWaitMs,
			&s.Success, &s.StatusCode, &s.Detail)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}
