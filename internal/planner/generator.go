package planner

import (
	"context"
	"strings"

	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/logging"
	"github.com/kyleking/dataverse-agent/internal/schema"
	"github.com/kyleking/dataverse-agent/internal/types"
)

// Generator drives the oracle under the plan output contract
type Generator struct {
	oracle     Oracle
	logger     *logging.Logger
	defaultTop int
}

// Option configures a Generator
type Option func(*Generator)

// WithLogger sets the logger used for oracle diagnostics
func WithLogger(logger *logging.Logger) Option {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithDefaultTop sets the row cap used when the oracle gives none
func WithDefaultTop(top int) Option {
	return func(g *Generator) {
		if top > 0 {
			g.defaultTop = top
		}
	}
}

// New creates a generator around oracle
func New(oracle Oracle, opts ...Option) *Generator {
	g := &Generator{
		oracle:     oracle,
		logger:     logging.GetLogger(),
		defaultTop: types.DefaultTop,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Generate asks the oracle for a plan answering question against summary.
//
// An empty allow-list fails before the oracle is called. Oracle errors are
// returned unchanged; nothing is retried here.
func (g *Generator) Generate(ctx context.Context, question string, summary schema.Summary) (*types.QueryPlan, error) {
	if len(summary.AllowedTables) == 0 {
		return nil, errors.NewConfigError("no queryable tables: the allow-list is empty", "entity_prefix").
			WithSuggestion("Check that the entity prefix matches tables exposed by the service")
	}

	if strings.TrimSpace(question) == "" {
		return nil, errors.New(errors.ErrTypeValidation, "question must not be empty")
	}

	raw, err := g.oracle.Generate(ctx, SystemPrompt(summary.AllowedTables), UserPrompt(summary.Text, question))
	if err != nil {
		return nil, err
	}

	g.logger.WithField("component", "planner").Infof("raw oracle response: %s", raw)

	obj, ok := ExtractJSON(raw)
	if !ok {
		g.logger.WithField("component", "planner").Errorf("oracle did not return a JSON object: %s", raw)
		return nil, errors.NewPlanGenerationError(raw)
	}

	plan, err := Normalize(obj, summary.AllowedTables, g.defaultTop)
	if err != nil {
		g.logger.WithFields(map[string]interface{}{
			"component": "planner",
			"allowed":   summary.AllowedTables,
		}).ErrorWithErr("plan rejected", err)

		return nil, err
	}

	return plan, nil
}
