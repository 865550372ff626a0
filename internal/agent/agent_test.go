package agent

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kyleking/dataverse-agent/internal/answer"
	"github.com/kyleking/dataverse-agent/internal/edm"
	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/history"
	"github.com/kyleking/dataverse-agent/internal/planner"
	"github.com/kyleking/dataverse-agent/internal/testutil"
)

const ticketsQuery = "crca6_tickets?$select=crca6_title,crca6_accountName" +
	"&$expand=crca6_accountName($select=crca6_name)" +
	"&$filter=crca6_accountName/crca6_name%20eq%20'ACME%20Corporation'&$top=10"

type docProvider struct {
	doc   *edm.Document
	err   error
	calls atomic.Int32
}

func (p *docProvider) Document(context.Context) (*edm.Document, error) {
	p.calls.Add(1)
	return p.doc, p.err
}

type fakeExecutor struct {
	mu      sync.Mutex
	result  map[string]any
	err     error
	queries []string
}

func (e *fakeExecutor) Get(_ context.Context, relative string) (map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.queries = append(e.queries, relative)

	return e.result, e.err
}

func (e *fakeExecutor) Queries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.queries...)
}

type memHistory struct {
	history.NopStore

	mu      sync.Mutex
	entries []history.Entry
	err     error
}

func (h *memHistory) Record(_ context.Context, entry *history.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.err != nil {
		return h.err
	}

	h.entries = append(h.entries, *entry)

	return nil
}

func (h *memHistory) Entries() []history.Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]history.Entry(nil), h.entries...)
}

type fixture struct {
	agent      *Agent
	metadata   *docProvider
	planOracle *testutil.MockOracle
	ansOracle  *testutil.MockOracle
	executor   *fakeExecutor
	history    *memHistory
	spans      *tracetest.SpanRecorder
}

func newFixture(t *testing.T, planResponse string) *fixture {
	t.Helper()

	doc, err := edm.Parse([]byte(testutil.SampleMetadata))
	require.NoError(t, err)

	f := &fixture{
		metadata:   &docProvider{doc: doc},
		planOracle: testutil.NewMockOracle(testutil.WithResponses(planResponse)),
		ansOracle:  testutil.NewMockOracle(testutil.WithResponses("ACME Corporation has two tickets.")),
		executor: &fakeExecutor{result: map[string]any{
			"@odata.context": "https://org.example/api/data/v9.2/$metadata#crca6_tickets",
			"value": []any{
				map[string]any{"crca6_title": "VPN down"},
				map[string]any{"crca6_title": "Printer jam"},
			},
		}},
		history: &memHistory{},
		spans:   tracetest.NewSpanRecorder(),
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.spans))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f.agent = New(
		f.metadata,
		planner.New(f.planOracle),
		f.executor,
		answer.New(f.ansOracle, nil),
		WithPrefix(testutil.SamplePrefix),
		WithHistory(f.history),
		WithTracer(tp.Tracer("test")),
	)

	return f
}

func (f *fixture) spanNames() []string {
	var names []string
	for _, span := range f.spans.Ended() {
		names = append(names, span.Name())
	}

	return names
}

func TestAsk(t *testing.T) {
	f := newFixture(t, testutil.TestTicketsPlan)

	result, err := f.agent.Ask(context.Background(), testutil.TestQuestion)
	require.NoError(t, err)

	assert.Equal(t, "crca6_tickets", result.Plan.Table)
	assert.Equal(t, ticketsQuery, result.OData)
	assert.Equal(t, 2, result.RowCount())
	assert.Equal(t, "ACME Corporation has two tickets.", result.Answer)
	assert.Equal(t, []string{ticketsQuery}, f.executor.Queries())

	calls := f.ansOracle.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].User, testutil.TestQuestion)
	assert.Contains(t, calls[0].User, "Printer jam")

	entries := f.history.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, testutil.TestQuestion, entries[0].Question)
	assert.Equal(t, "crca6_tickets", entries[0].Table)
	assert.Equal(t, ticketsQuery, entries[0].OData)
	assert.Equal(t, 2, entries[0].RowCount)
	assert.False(t, entries[0].Failed())

	names := f.spanNames()
	for _, stage := range []string{StageMetadata, StageSummarize, StagePlan, StageCompile, StageExecute, StageAnswer} {
		assert.Contains(t, names, "ask."+stage)
	}
	assert.Contains(t, names, "agent.Ask")
}

func TestPlanDoesNotExecute(t *testing.T) {
	f := newFixture(t, testutil.TestTicketsPlan)

	result, err := f.agent.Plan(context.Background(), testutil.TestQuestion)
	require.NoError(t, err)

	assert.Equal(t, ticketsQuery, result.OData)
	assert.Nil(t, result.RawResult)
	assert.Empty(t, result.Answer)
	assert.Empty(t, f.executor.Queries())
	assert.Zero(t, f.ansOracle.CallCount())
	assert.Empty(t, f.history.Entries())
}

func TestAskEmptyQuestion(t *testing.T) {
	f := newFixture(t, testutil.TestTicketsPlan)

	result, err := f.agent.Ask(context.Background(), "   ")
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.IsType(err, errors.ErrTypeValidation))
	assert.Zero(t, f.metadata.calls.Load())
	assert.Zero(t, f.planOracle.CallCount())

	entries := f.history.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, string(errors.ErrTypeValidation), entries[0].ErrorType)
}

func TestAskMetadataError(t *testing.T) {
	f := newFixture(t, testutil.TestTicketsPlan)
	f.metadata.err = errors.NewTransportError("metadata", 503, "unavailable")

	_, err := f.agent.Ask(context.Background(), testutil.TestQuestion)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeTransport))
	assert.Zero(t, f.planOracle.CallCount())
	assert.Empty(t, f.executor.Queries())
}

func TestAskForbiddenTable(t *testing.T) {
	f := newFixture(t, `{"table": "accounts", "select": ["name"], "top": 5}`)

	result, err := f.agent.Ask(context.Background(), "List accounts")
	require.Error(t, err)
	assert.Nil(t, result)

	structErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrTypePlanValidation, structErr.Type)
	assert.Equal(t, "accounts", structErr.Value)
	assert.Equal(t, []string{"crca6_account1s", "crca6_tickets"}, structErr.Allowed)
	assert.Empty(t, f.executor.Queries())

	entries := f.history.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, string(errors.ErrTypePlanValidation), entries[0].ErrorType)
	assert.Nil(t, entries[0].Plan)
}

func TestAskExecuteError(t *testing.T) {
	f := newFixture(t, testutil.TestTicketsPlan)
	f.executor.err = errors.NewTransportError("dataverse", 400, "Could not find a property named 'crca6_bogus'")

	result, err := f.agent.Ask(context.Background(), testutil.TestQuestion)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeTransport))

	require.NotNil(t, result)
	assert.Equal(t, ticketsQuery, result.OData)
	assert.Empty(t, result.Answer)
	assert.Zero(t, f.ansOracle.CallCount())

	entries := f.history.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, ticketsQuery, entries[0].OData)
	assert.Contains(t, entries[0].ErrorMessage, "crca6_bogus")
}

func TestAskHistoryFailureIgnored(t *testing.T) {
	f := newFixture(t, testutil.TestTicketsPlan)
	f.history.err = stderrors.New("database is locked")

	result, err := f.agent.Ask(context.Background(), testutil.TestQuestion)
	require.NoError(t, err)
	assert.NotEmpty(t, result.Answer)
}

func TestSchema(t *testing.T) {
	f := newFixture(t, testutil.TestTicketsPlan)

	sch, err := f.agent.Schema(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"crca6_account1s", "crca6_tickets"}, sch.Summary.AllowedTables)
	assert.Equal(t, 4, sch.Index.Len())
	assert.Contains(t, sch.Summary.Text, "crca6_title")

	collection, ok := sch.Index.Resolve("crca6_ticket")
	assert.True(t, ok)
	assert.Equal(t, "crca6_tickets", collection)
}

func TestSchemaRederivedPerCall(t *testing.T) {
	f := newFixture(t, testutil.TestTicketsPlan)

	_, err := f.agent.Plan(context.Background(), "first")
	require.NoError(t, err)
	_, err = f.agent.Plan(context.Background(), "second")
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.metadata.calls.Load())
}

func TestAskConcurrent(t *testing.T) {
	f := newFixture(t, testutil.TestTicketsPlan)

	testutil.RunConcurrent(t, testutil.TestConcurrency, func(workerID int) error {
		result, err := f.agent.Ask(context.Background(), testutil.TestQuestion)
		if err != nil {
			return err
		}
		if result.OData != ticketsQuery {
			return fmt.Errorf("worker %d compiled %q", workerID, result.OData)
		}

		return nil
	})

	assert.Len(t, f.executor.Queries(), testutil.TestConcurrency)
	assert.Len(t, f.history.Entries(), testutil.TestConcurrency)
}

func TestResultRowCount(t *testing.T) {
	var nilResult *Result
	assert.Zero(t, nilResult.RowCount())
	assert.Zero(t, (&Result{}).RowCount())
	assert.Zero(t, (&Result{RawResult: map[string]any{"value": "x"}}).RowCount())
	assert.Equal(t, 1, (&Result{RawResult: map[string]any{"value": []any{1}}}).RowCount())
}
