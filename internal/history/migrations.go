package history

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/kyleking/dataverse-agent/internal/logging"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int       `json:"version"`
	Description string    `json:"description"`
	Applied     bool      `json:"applied"`
	AppliedAt   time.Time `json:"applied_at,omitempty"`
}

// MigrationManager handles history schema migrations
type MigrationManager struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB, logger *logging.Logger) *MigrationManager {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &MigrationManager{db: db, logger: logger}
}

// Migrations returns all available migrations in order
func Migrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create asks table",
			Up: `
				CREATE TABLE IF NOT EXISTS asks (
					id VARCHAR PRIMARY KEY,
					question TEXT NOT NULL,
					table_name VARCHAR,
					plan_json TEXT,
					odata TEXT,
					answer TEXT,
					error_type VARCHAR,
					error_message TEXT,
					row_count INTEGER,
					duration_ms BIGINT,
					created_at TIMESTAMP NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_asks_created_at ON asks(created_at);
			`,
			Down: `
				DROP INDEX IF EXISTS idx_asks_created_at;
				DROP TABLE IF EXISTS asks;
			`,
		},
	}
}

// InitializeMigrationTable creates the migration tracking table
func (m *MigrationManager) InitializeMigrationTable(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := m.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	return nil
}

// AppliedMigrations returns the applied migration versions in ascending order
func (m *MigrationManager) AppliedMigrations(ctx context.Context) ([]int, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}

		versions = append(versions, version)
	}

	return versions, rows.Err()
}

// ApplyMigration applies a single migration inside a transaction
func (m *MigrationManager) ApplyMigration(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		migration.Version, migration.Description); err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// RollbackMigration rolls back a single migration inside a transaction
func (m *MigrationManager) RollbackMigration(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %d: %w", migration.Version, err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", migration.Version); err != nil {
		return fmt.Errorf("failed to remove migration record %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// MigrateUp applies all pending migrations
func (m *MigrationManager) MigrateUp(ctx context.Context) error {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.appliedSet(ctx)
	if err != nil {
		return err
	}

	migrations := Migrations()
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		m.logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applying history migration")

		if err := m.ApplyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// MigrateDown rolls back migrations newer than targetVersion
func (m *MigrationManager) MigrateDown(ctx context.Context, targetVersion int) error {
	versions, err := m.AppliedMigrations(ctx)
	if err != nil {
		return err
	}

	byVersion := make(map[int]Migration)
	for _, migration := range Migrations() {
		byVersion[migration.Version] = migration
	}

	sort.Sort(sort.Reverse(sort.IntSlice(versions)))

	for _, version := range versions {
		if version <= targetVersion {
			break
		}

		migration, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("migration %d not found", version)
		}

		m.logger.WithField("version", version).Info("Rolling back history migration")

		if err := m.RollbackMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", version, err)
		}
	}

	return nil
}

// Status returns the applied state of every known migration, ordered by version
func (m *MigrationManager) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return nil, err
	}

	rows, err := m.db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	appliedAt := make(map[int]time.Time)

	for rows.Next() {
		var (
			version int
			at      time.Time
		)
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan migration status: %w", err)
		}

		appliedAt[version] = at
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	migrations := Migrations()
	status := make([]MigrationStatus, 0, len(migrations))

	for _, migration := range migrations {
		at, ok := appliedAt[migration.Version]
		status = append(status, MigrationStatus{
			Version:     migration.Version,
			Description: migration.Description,
			Applied:     ok,
			AppliedAt:   at,
		})
	}

	sort.Slice(status, func(i, j int) bool { return status[i].Version < status[j].Version })

	return status, nil
}

func (m *MigrationManager) appliedSet(ctx context.Context) (map[int]bool, error) {
	versions, err := m.AppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	applied := make(map[int]bool, len(versions))
	for _, version := range versions {
		applied[version] = true
	}

	return applied, nil
}
