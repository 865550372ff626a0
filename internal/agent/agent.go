// Package agent runs the ask pipeline: metadata, schema summary, plan,
// compiled query, execution and answer.
package agent

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kyleking/dataverse-agent/internal/edm"
	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/history"
	"github.com/kyleking/dataverse-agent/internal/logging"
	"github.com/kyleking/dataverse-agent/internal/metrics"
	"github.com/kyleking/dataverse-agent/internal/odata"
	"github.com/kyleking/dataverse-agent/internal/planner"
	"github.com/kyleking/dataverse-agent/internal/schema"
	"github.com/kyleking/dataverse-agent/internal/tracing"
	"github.com/kyleking/dataverse-agent/internal/types"
)

// Pipeline stage names, used for spans and stage metrics
const (
	StageMetadata  = "metadata"
	StageSummarize = "summarize"
	StagePlan      = "plan"
	StageCompile   = "compile"
	StageExecute   = "execute"
	StageAnswer    = "answer"
)

// MetadataProvider yields the parsed service metadata
type MetadataProvider interface {
	Document(ctx context.Context) (*edm.Document, error)
}

// Executor runs a compiled query relative to the service root
type Executor interface {
	Get(ctx context.Context, relative string) (map[string]any, error)
}

// Answerer turns query results into a natural-language answer
type Answerer interface {
	Answer(ctx context.Context, question string, result map[string]any) (string, error)
}

// Result is the outcome of one ask
type Result struct {
	Plan      *types.QueryPlan `json:"plan"`
	OData     string           `json:"odata"`
	RawResult map[string]any   `json:"raw_result,omitempty"`
	Answer    string           `json:"answer,omitempty"`
}

// RowCount returns the number of records in the OData "value" array
func (r *Result) RowCount() int {
	if r == nil || r.RawResult == nil {
		return 0
	}

	rows, ok := r.RawResult["value"].([]any)
	if !ok {
		return 0
	}

	return len(rows)
}

// Schema is the per-request view derived from metadata
type Schema struct {
	Index   *schema.Index
	Summary schema.Summary
}

// Agent wires the pipeline components. It holds no per-request state and
// is safe for concurrent use.
type Agent struct {
	metadata MetadataProvider
	planner  *planner.Generator
	executor Executor
	answerer Answerer

	history        history.Store
	prefix         string
	maxSchemaBytes int
	logger         *logging.Logger
	tracer         trace.Tracer
}

// Option configures an Agent
type Option func(*Agent)

// WithHistory records every Ask in store
func WithHistory(store history.Store) Option {
	return func(a *Agent) {
		if store != nil {
			a.history = store
		}
	}
}

// WithPrefix sets the custom-entity prefix that scopes the allow-list
func WithPrefix(prefix string) Option {
	return func(a *Agent) {
		a.prefix = prefix
	}
}

// WithMaxSchemaBytes bounds the summary text sent to the oracle
func WithMaxSchemaBytes(n int) Option {
	return func(a *Agent) {
		a.maxSchemaBytes = n
	}
}

// WithLogger sets the pipeline logger
func WithLogger(logger *logging.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithTracer overrides the tracer from the global provider
func WithTracer(tracer trace.Tracer) Option {
	return func(a *Agent) {
		if tracer != nil {
			a.tracer = tracer
		}
	}
}

// New creates an agent
func New(metadata MetadataProvider, gen *planner.Generator, executor Executor, answerer Answerer, opts ...Option) *Agent {
	a := &Agent{
		metadata:       metadata,
		planner:        gen,
		executor:       executor,
		answerer:       answerer,
		history:        history.NopStore{},
		prefix:         "crca6_",
		maxSchemaBytes: schema.DefaultMaxTextBytes,
		logger:         logging.GetLogger(),
		tracer:         tracing.Tracer(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Prefix returns the entity prefix in effect
func (a *Agent) Prefix() string {
	return a.prefix
}

// Schema loads metadata and derives the index and summary. Nothing derived
// is kept between calls.
func (a *Agent) Schema(ctx context.Context) (*Schema, error) {
	var doc *edm.Document

	err := a.stage(ctx, StageMetadata, func(ctx context.Context) error {
		var err error
		doc, err = a.metadata.Document(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &Schema{}

	_ = a.stage(ctx, StageSummarize, func(ctx context.Context) error {
		out.Index = schema.NewIndex(doc, a.prefix)
		out.Summary = schema.Summarize(doc, out.Index, a.prefix, schema.WithMaxTextBytes(a.maxSchemaBytes))

		trace.SpanFromContext(ctx).SetAttributes(
			attribute.Int("schema.index_size", out.Index.Len()),
			attribute.Int("schema.allowed_tables", len(out.Summary.AllowedTables)),
		)

		return nil
	})

	metrics.SetAllowedTables(len(out.Summary.AllowedTables))

	a.logger.WithFields(map[string]interface{}{
		"prefix":         a.prefix,
		"index_size":     out.Index.Len(),
		"allowed_tables": len(out.Summary.AllowedTables),
		"described":      out.Summary.Described,
		"omitted":        out.Summary.Omitted,
	}).Info("Schema summary built")

	if a.logger.Enabled("debug") {
		for _, entry := range out.Index.Entries() {
			a.logger.Debugf("entity set mapping: %s -> %s", entry.Key, entry.Collection)
		}
	}

	return out, nil
}

// Plan generates and compiles a query without executing it
func (a *Agent) Plan(ctx context.Context, question string) (*Result, error) {
	ctx, span := a.tracer.Start(ctx, "agent.Plan")
	defer span.End()

	result, err := a.plan(ctx, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return result, err
}

// Ask answers question end to end and records the outcome in history
func (a *Agent) Ask(ctx context.Context, question string) (*Result, error) {
	ctx, span := a.tracer.Start(ctx, "agent.Ask")
	defer span.End()

	start := time.Now()

	result, err := a.ask(ctx, question)

	outcome := "success"
	if err != nil {
		outcome = string(errors.GetType(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.ObserveAsk(outcome)

	a.record(ctx, question, result, err, time.Since(start))

	return result, err
}

func (a *Agent) ask(ctx context.Context, question string) (*Result, error) {
	result, err := a.plan(ctx, question)
	if err != nil {
		return result, err
	}

	err = a.stage(ctx, StageExecute, func(ctx context.Context) error {
		raw, err := a.executor.Get(ctx, result.OData)
		if err != nil {
			return err
		}

		result.RawResult = raw
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("odata.rows", result.RowCount()))

		return nil
	})
	if err != nil {
		return result, err
	}

	err = a.stage(ctx, StageAnswer, func(ctx context.Context) error {
		answer, err := a.answerer.Answer(ctx, question, result.RawResult)
		if err != nil {
			return err
		}

		result.Answer = answer

		return nil
	})

	return result, err
}

func (a *Agent) plan(ctx context.Context, question string) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New(errors.ErrTypeValidation, "question must not be empty")
	}

	sch, err := a.Schema(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	err = a.stage(ctx, StagePlan, func(ctx context.Context) error {
		plan, err := a.planner.Generate(ctx, question, sch.Summary)
		if err != nil {
			return err
		}

		result.Plan = plan
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("plan.table", plan.Table))

		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = a.stage(ctx, StageCompile, func(ctx context.Context) error {
		result.OData = odata.Compile(result.Plan)
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("odata.query", result.OData))

		return nil
	})

	a.logger.WithFields(map[string]interface{}{
		"table": result.Plan.Table,
		"odata": result.OData,
	}).Info("Query compiled")

	return result, nil
}

func (a *Agent) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := a.tracer.Start(ctx, "ask."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.ObserveStage(name, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.WithField("stage", name).ErrorWithErr("Pipeline stage failed", err)
	}

	return err
}

func (a *Agent) record(ctx context.Context, question string, result *Result, err error, elapsed time.Duration) {
	entry := &history.Entry{
		Question: question,
		Duration: elapsed,
	}

	if result != nil {
		entry.Plan = result.Plan
		entry.OData = result.OData
		entry.Answer = result.Answer
		entry.RowCount = result.RowCount()

		if result.Plan != nil {
			entry.Table = result.Plan.Table
		}
	}

	if err != nil {
		entry.ErrorType = string(errors.GetType(err))
		entry.ErrorMessage = err.Error()
	}

	// History failures never fail the ask
	if recErr := a.history.Record(context.WithoutCancel(ctx), entry); recErr != nil {
		a.logger.WithError(recErr).Warn("Failed to record ask history")
	}
}
