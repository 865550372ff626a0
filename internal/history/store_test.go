package history

import (
	"context"
	stderrors "errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/types"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

const ticketsPlanJSON = `{"table":"crca6_tickets","select":["crca6_title"],"filters":null,` +
	`"expand":null,"aggregation":"none","order_by":null,"top":5}`

func newSQLMock(t *testing.T) (*DuckDBStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewStore(db, nil)
	store.now = func() time.Time { return fixedNow }

	return store, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func ticketsPlan() *types.QueryPlan {
	return &types.QueryPlan{
		Table:       "crca6_tickets",
		Select:      []string{"crca6_title"},
		Aggregation: types.AggregationNone,
		Top:         5,
	}
}

func entryColumns() []string {
	return []string{
		"id", "question", "table_name", "plan_json", "odata", "answer",
		"error_type", "error_message", "row_count", "duration_ms", "created_at",
	}
}

func TestRecordAssignsIDAndTimestamp(t *testing.T) {
	store, mock := newSQLMock(t)

	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).
		WithArgs(sqlmock.AnyArg(), "How many tickets?", "crca6_tickets", ticketsPlanJSON,
			"crca6_tickets?$select=crca6_title&$top=5", "Five.", nil, nil, 5, int64(1500), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &Entry{
		Question: "How many tickets?",
		Table:    "crca6_tickets",
		Plan:     ticketsPlan(),
		OData:    "crca6_tickets?$select=crca6_title&$top=5",
		Answer:   "Five.",
		RowCount: 5,
		Duration: 1500 * time.Millisecond,
	}
	require.NoError(t, store.Record(context.Background(), entry))

	_, err := uuid.Parse(entry.ID)
	assert.NoError(t, err)
	assert.Equal(t, fixedNow, entry.CreatedAt)
	assertSQLMock(t, mock)
}

func TestRecordFailureWithoutPlan(t *testing.T) {
	store, mock := newSQLMock(t)

	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).
		WithArgs("ask-1", "Show me secrets", nil, nil, nil, nil,
			"plan_validation", "table not allowed", 0, int64(0), fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &Entry{
		ID:           "ask-1",
		Question:     "Show me secrets",
		ErrorType:    "plan_validation",
		ErrorMessage: "table not allowed",
	}
	require.NoError(t, store.Record(context.Background(), entry))
	assert.True(t, entry.Failed())
	assertSQLMock(t, mock)
}

func TestRecordErrors(t *testing.T) {
	store, mock := newSQLMock(t)

	err := store.Record(context.Background(), nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))

	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).WillReturnError(stderrors.New("disk full"))

	err = store.Record(context.Background(), &Entry{Question: "q"})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeStorage))
	assert.Contains(t, err.Error(), "disk full")
	assertSQLMock(t, mock)
}

func TestList(t *testing.T) {
	store, mock := newSQLMock(t)

	older := fixedNow.Add(-time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM asks ORDER BY created_at DESC LIMIT ?`)).
		WithArgs(DefaultListLimit).
		WillReturnRows(sqlmock.NewRows(entryColumns()).
			AddRow("ask-2", "How many tickets?", "crca6_tickets", ticketsPlanJSON,
				"crca6_tickets?$top=5", "Five.", nil, nil, int64(5), int64(1200), fixedNow).
			AddRow("ask-1", "Bad question", nil, nil, nil, nil,
				"plan_generation", "no JSON", nil, int64(300), older))

	entries, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "ask-2", entries[0].ID)
	assert.Equal(t, ticketsPlan(), entries[0].Plan)
	assert.Equal(t, 5, entries[0].RowCount)
	assert.Equal(t, 1200*time.Millisecond, entries[0].Duration)
	assert.False(t, entries[0].Failed())

	assert.Nil(t, entries[1].Plan)
	assert.Equal(t, "plan_generation", entries[1].ErrorType)
	assert.Empty(t, entries[1].Table)
	assert.True(t, entries[1].Failed())
	assertSQLMock(t, mock)
}

func TestListEmpty(t *testing.T) {
	store, mock := newSQLMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM asks ORDER BY`)).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(entryColumns()))

	entries, err := store.List(context.Background(), 3)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
	assertSQLMock(t, mock)
}

func TestGet(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		store, mock := newSQLMock(t)

		mock.ExpectQuery(regexp.QuoteMeta(`FROM asks WHERE id = ?`)).
			WithArgs("ask-1").
			WillReturnRows(sqlmock.NewRows(entryColumns()).
				AddRow("ask-1", "How many tickets?", "crca6_tickets", ticketsPlanJSON,
					"crca6_tickets?$top=5", "Five.", nil, nil, int64(5), int64(10), fixedNow))

		entry, err := store.Get(context.Background(), "ask-1")
		require.NoError(t, err)
		assert.Equal(t, "How many tickets?", entry.Question)
		assert.Equal(t, "crca6_tickets", entry.Plan.Table)
		assertSQLMock(t, mock)
	})

	t.Run("not found", func(t *testing.T) {
		store, mock := newSQLMock(t)

		mock.ExpectQuery(regexp.QuoteMeta(`FROM asks WHERE id = ?`)).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(entryColumns()))

		entry, err := store.Get(context.Background(), "missing")
		assert.Nil(t, entry)
		assert.ErrorIs(t, err, ErrNotFound)
		assertSQLMock(t, mock)
	})

	t.Run("corrupt plan", func(t *testing.T) {
		store, mock := newSQLMock(t)

		mock.ExpectQuery(regexp.QuoteMeta(`FROM asks WHERE id = ?`)).
			WithArgs("ask-1").
			WillReturnRows(sqlmock.NewRows(entryColumns()).
				AddRow("ask-1", "q", nil, "{not json", nil, nil, nil, nil, nil, nil, fixedNow))

		_, err := store.Get(context.Background(), "ask-1")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeStorage))
		assert.Contains(t, err.Error(), "ask-1")
		assertSQLMock(t, mock)
	})
}

func TestClear(t *testing.T) {
	store, mock := newSQLMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM asks")).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.Clear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assertSQLMock(t, mock)
}

func TestNopStore(t *testing.T) {
	ctx := context.Background()

	var store Store = NopStore{}

	require.NoError(t, store.Record(ctx, &Entry{Question: "q"}))

	entries, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = store.Get(ctx, "ask-1")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := store.Clear(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, store.Close())
}
