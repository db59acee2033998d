package migrations

import (
	"database/sql"
	"errors"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: 1,
		Name:    "Add sample lookup indices",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_samples_scenario ON load_test_samples(run_id, scenario);
			CREATE INDEX IF NOT EXISTS idx_samples_success ON load_test_samples(run_id, success);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_samples_scenario;
			DROP INDEX IF EXISTS idx_samples_success;
		`,
	},
	{
		Version: 2,
		Name:    "Add status code and error breakdown tables",
		Up: `
			CREATE TABLE IF NOT EXISTS load_test_status_codes (
				run_id INTEGER NOT NULL,
				status_code INTEGER NOT NULL,
				count INTEGER NOT NULL,
				PRIMARY KEY (run_id, status_code),
				FOREIGN KEY (run_id) REFERENCES load_test_runs(id) ON DELETE CASCADE
			);

			CREATE TABLE IF NOT EXISTS load_test_errors (
				run_id INTEGER NOT NULL,
				error_type TEXT NOT NULL,
				count INTEGER NOT NULL,
				PRIMARY KEY (run_id, error_type),
				FOREIGN KEY (run_id) REFERENCES load_test_runs(id) ON DELETE CASCADE
			);
		`,
		Down: `
			DROP TABLE IF EXISTS load_test_status_codes;
			DROP TABLE IF EXISTS load_test_errors;
		`,
	},
	{
		Version: 3,
		Name:    "Add queue wait column to samples",
		Up: `
			ALTER TABLE load_test_samples ADD COLUMN queue_wait_ms REAL NOT NULL DEFAULT 0;
		`,
		Down: `
			-- SQLite does not support DROP COLUMN easily
		`,
	},
}

// InitSchema creates the base tables.
// It must be called before running migrations so every table exists.
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS load_test_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_uuid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		plan_file TEXT,
		pattern TEXT,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		status TEXT NOT NULL,
		config TEXT,
		duration_sec REAL DEFAULT 0,
		total_requests INTEGER DEFAULT 0,
		successful_requests INTEGER DEFAULT 0,
		failed_requests INTEGER DEFAULT 0,
		success_rate REAL DEFAULT 0,
		throughput REAL DEFAULT 0,
		min_response_time REAL DEFAULT 0,
		max_response_time REAL DEFAULT 0,
		mean_response_time REAL DEFAULT 0,
		p50_response_time REAL DEFAULT 0,
		p95_response_time REAL DEFAULT 0,
		p99_response_time REAL DEFAULT 0,
		p999_response_time REAL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON load_test_runs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_name ON load_test_runs(name);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON load_test_runs(status);

	CREATE TABLE IF NOT EXISTS load_test_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		scenario TEXT NOT NULL,
		scheduled_at DATETIME NOT NULL,
		elapsed_ms REAL NOT NULL,
		success INTEGER NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		detail TEXT,
		FOREIGN KEY (run_id) REFERENCES load_test_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_samples_run_id ON load_test_samples(run_id);
	CREATE INDEX IF NOT EXISTS idx_samples_scheduled ON load_test_samples(run_id, scheduled_at);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Run executes all pending migrations on the database
func Run(db *sql.DB) error {
	if err := InitSchema(db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := GetCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for _, migration := range AllMigrations {
		if migration.Version <= currentVersion {
			continue
		}

		// Each migration and its bookkeeping row commit together
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version,
			migration.Name,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// GetCurrentVersion returns the current database schema version
func GetCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_migrations
	`).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	return version, nil
}
