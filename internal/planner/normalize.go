package planner

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/types"
)

// noOpClause is the literal oracles use for an unused filter or expand
const noOpClause = "none"

// Normalize converts a decoded oracle object into a validated plan.
//
// Fields are checked in order (table, select, filters, expand, aggregation,
// order_by, top) and each is defaulted on its own. Only the table can fail:
// it must be a non-empty member of allowed.
func Normalize(raw map[string]any, allowed []string, defaultTop int) (*types.QueryPlan, error) {
	table, ok := raw["table"].(string)
	if !ok {
		return nil, errors.NewPlanValidationError("table", describe(raw["table"]), allowed)
	}

	plan := &types.QueryPlan{
		Table:       table,
		Select:      selectColumns(raw["select"]),
		Filters:     optionalString(raw["filters"]),
		Expand:      optionalString(raw["expand"]),
		Aggregation: stringValue(raw["aggregation"]),
		OrderBy:     optionalString(raw["order_by"]),
		Top:         coerceTop(raw["top"]),
	}

	return Validate(plan, allowed, defaultTop)
}

// Validate applies the normalization rules to a typed plan and returns a
// normalized copy. Validate(Validate(p)) equals Validate(p).
func Validate(plan *types.QueryPlan, allowed []string, defaultTop int) (*types.QueryPlan, error) {
	if plan == nil {
		return nil, errors.NewPlanValidationError("table", "", allowed)
	}

	if plan.Table == "" || !slices.Contains(allowed, plan.Table) {
		return nil, errors.NewPlanValidationError("table", plan.Table, allowed)
	}

	if defaultTop <= 0 {
		defaultTop = types.DefaultTop
	}

	out := plan.Clone()

	if out.Select == nil {
		out.Select = []string{}
	}

	out.Filters = normalizeClause(out.Filters, true)
	out.Expand = normalizeClause(out.Expand, true)
	out.OrderBy = normalizeClause(out.OrderBy, false)

	if strings.TrimSpace(out.Aggregation) == "" {
		out.Aggregation = types.AggregationNone
	}

	if out.Top <= 0 {
		out.Top = defaultTop
	}

	return out, nil
}

func normalizeClause(value *string, allowNoOp bool) *string {
	if value == nil {
		return nil
	}

	trimmed := strings.TrimSpace(*value)
	if trimmed == "" || (allowNoOp && strings.EqualFold(trimmed, noOpClause)) {
		return nil
	}

	return value
}

func selectColumns(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return []string{}
	}

	columns := make([]string, 0, len(items))
	for _, item := range items {
		if column, ok := item.(string); ok && strings.TrimSpace(column) != "" {
			columns = append(columns, column)
		}
	}

	return columns
}

func optionalString(value any) *string {
	s, ok := value.(string)
	if !ok {
		return nil
	}

	return &s
}

func stringValue(value any) string {
	s, _ := value.(string)
	return s
}

// coerceTop returns the integer value of a JSON number or numeric string, or 0
// when the value cannot be coerced. Fractions are truncated.
func coerceTop(value any) int {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return clampInt(n)
		}
		if f, err := v.Float64(); err == nil {
			return truncate(f)
		}
	case float64:
		return truncate(v)
	case int:
		return v
	case int64:
		return clampInt(v)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return clampInt(n)
		}
	}

	return 0
}

func truncate(f float64) int {
	switch {
	case math.IsNaN(f), f <= 0:
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	}

	return int(f)
}

func clampInt(n int64) int {
	if n > math.MaxInt32 {
		return math.MaxInt32
	}
	if n < math.MinInt32 {
		return 0
	}

	return int(n)
}

func describe(value any) string {
	if value == nil {
		return ""
	}

	return fmt.Sprintf("%v", value)
}
