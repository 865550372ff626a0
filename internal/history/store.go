// Package history records every ask (question, plan, compiled query, answer
// or failure) in an embedded DuckDB database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb" // DuckDB driver

	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/logging"
	"github.com/kyleking/dataverse-agent/internal/types"
)

// DefaultListLimit is used when List is called with a non-positive limit
const DefaultListLimit = 20

// ErrNotFound is returned by Get for an unknown id
var ErrNotFound = stderrors.New("history entry not found")

// Entry is one recorded ask
type Entry struct {
	ID           string           `json:"id"`
	Question     string           `json:"question"`
	Table        string           `json:"table,omitempty"`
	Plan         *types.QueryPlan `json:"plan,omitempty"`
	OData        string           `json:"odata,omitempty"`
	Answer       string           `json:"answer,omitempty"`
	ErrorType    string           `json:"error_type,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	RowCount     int              `json:"row_count"`
	Duration     time.Duration    `json:"duration"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Failed reports whether the ask ended in an error
func (e Entry) Failed() bool {
	return e.ErrorType != ""
}

// Store defines the history operations
type Store interface {
	Record(ctx context.Context, entry *Entry) error
	List(ctx context.Context, limit int) ([]Entry, error)
	Get(ctx context.Context, id string) (*Entry, error)
	Clear(ctx context.Context) (int64, error)
	Close() error
}

// DuckDBStore implements Store on DuckDB
type DuckDBStore struct {
	db     *sql.DB
	path   string
	logger *logging.Logger
	now    func() time.Time
}

// NewDuckDBStore opens (creating if needed) the database at dbPath and
// applies pending migrations
func NewDuckDBStore(ctx context.Context, dbPath string, logger *logging.Logger) (*DuckDBStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to create history directory")
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to open history database")
	}

	// Configure connection pool
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to ping history database")
	}

	store := NewStore(db, logger)
	store.path = dbPath

	if err := store.Initialize(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// NewStore wraps an already opened database. Callers own migration via Initialize.
func NewStore(db *sql.DB, logger *logging.Logger) *DuckDBStore {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &DuckDBStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Initialize applies pending migrations
func (s *DuckDBStore) Initialize(ctx context.Context) error {
	if err := NewMigrationManager(s.db, s.logger).MigrateUp(ctx); err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to migrate history database")
	}

	return nil
}

// Path returns the database file, or "" for a wrapped connection
func (s *DuckDBStore) Path() string {
	return s.path
}

// Record inserts entry, assigning ID and CreatedAt when unset
func (s *DuckDBStore) Record(ctx context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New(errors.ErrTypeValidation, "history entry is nil")
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	planJSON, err := encodePlan(entry.Plan)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, insertSQL,
		entry.ID,
		entry.Question,
		nullString(entry.Table),
		planJSON,
		nullString(entry.OData),
		nullString(entry.Answer),
		nullString(entry.ErrorType),
		nullString(entry.ErrorMessage),
		entry.RowCount,
		entry.Duration.Milliseconds(),
		entry.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrTypeStorage, "failed to record ask")
	}

	return nil
}

const (
	selectColumns = `id, question, table_name, plan_json, odata, answer, error_type, error_message, row_count, duration_ms, created_at`

	insertSQL = `INSERT INTO asks (` + selectColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
)

// List returns the most recent entries, newest first
func (s *DuckDBStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM asks ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to list history")
	}
	defer rows.Close()

	entries := []Entry{}

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to list history")
	}

	return entries, nil
}

// Get returns one entry by id
func (s *DuckDBStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM asks WHERE id = ?`, id)

	entry, err := scanEntry(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	return entry, err
}

// Clear deletes every entry and returns how many were removed
func (s *DuckDBStore) Clear(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM asks")
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrTypeStorage, "failed to clear history")
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrTypeStorage, "failed to clear history")
	}

	s.logger.WithField("removed", n).Info("History cleared")

	return n, nil
}

// Close closes the database connection
func (s *DuckDBStore) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	var (
		entry                          Entry
		table, planJSON, odata, answer sql.NullString
		errorType, errorMessage        sql.NullString
		rowCount                       sql.NullInt64
		durationMS                     sql.NullInt64
	)

	err := row.Scan(
		&entry.ID,
		&entry.Question,
		&table,
		&planJSON,
		&odata,
		&answer,
		&errorType,
		&errorMessage,
		&rowCount,
		&durationMS,
		&entry.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, errors.Wrap(err, errors.ErrTypeStorage, "failed to scan history entry")
	}

	entry.Table = table.String
	entry.OData = odata.String
	entry.Answer = answer.String
	entry.ErrorType = errorType.String
	entry.ErrorMessage = errorMessage.String
	entry.RowCount = int(rowCount.Int64)
	entry.Duration = time.Duration(durationMS.Int64) * time.Millisecond

	if planJSON.Valid && strings.TrimSpace(planJSON.String) != "" {
		var plan types.QueryPlan
		if err := json.Unmarshal([]byte(planJSON.String), &plan); err != nil {
			return nil, errors.Wrapf(err, errors.ErrTypeStorage, "corrupt plan in history entry %s", entry.ID)
		}

		entry.Plan = &plan
	}

	return &entry, nil
}

func encodePlan(plan *types.QueryPlan) (any, error) {
	if plan == nil {
		return nil, nil
	}

	data, err := json.Marshal(plan)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to encode plan")
	}

	return string(data), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}

	return s
}

// NopStore discards everything; used when history is disabled
type NopStore struct{}

// Record implements Store
func (NopStore) Record(context.Context, *Entry) error { return nil }

// List implements Store
func (NopStore) List(context.Context, int) ([]Entry, error) { return []Entry{}, nil }

// Get implements Store
func (NopStore) Get(_ context.Context, id string) (*Entry, error) {
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Clear implements Store
func (NopStore) Clear(context.Context) (int64, error) { return 0, nil }

// Close implements Store
func (NopStore) Close() error { return nil }

var (
	_ Store = (*DuckDBStore)(nil)
	_ Store = NopStore{}
)
