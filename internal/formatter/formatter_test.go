package formatter

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/dataverse-agent/internal/agent"
	"github.com/kyleking/dataverse-agent/internal/history"
	"github.com/kyleking/dataverse-agent/internal/testutil"
	"github.com/kyleking/dataverse-agent/internal/types"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newTestFormatter() *Formatter {
	f := NewFormatter()
	f.now = func() time.Time { return fixedNow }

	return f
}

func sampleResult() *agent.Result {
	return &agent.Result{
		Plan: &types.QueryPlan{
			Table:       "crca6_tickets",
			Select:      []string{"crca6_title", "crca6_status"},
			Filters:     types.StringPtr("crca6_status eq 'Open'"),
			Aggregation: types.AggregationNone,
			Top:         10,
		},
		OData: "crca6_tickets?$select=crca6_title,crca6_status&$filter=crca6_status%20eq%20'Open'&$top=10",
		RawResult: map[string]any{"value": []any{
			map[string]any{"crca6_title": "VPN down", "crca6_status": "Open"},
			map[string]any{"crca6_title": "Printer jam", "crca6_status": "Open"},
		}},
		Answer: "Two tickets are open: VPN down and Printer jam.",
	}
}

func sampleEntries() []history.Entry {
	return []history.Entry{
		{
			ID:        "ask-2",
			Question:  testutil.TestQuestion,
			Table:     "crca6_tickets",
			OData:     "crca6_tickets?$top=10",
			Answer:    "ACME has three tickets.",
			RowCount:  3,
			Duration:  1500 * time.Millisecond,
			CreatedAt: fixedNow.Add(-2 * time.Hour),
		},
		{
			ID:           "ask-1",
			Question:     "How many widgets?",
			ErrorType:    "plan_validation",
			ErrorMessage: "table widgets is not allowed",
			Duration:     250 * time.Millisecond,
			CreatedAt:    fixedNow.Add(-3 * 24 * time.Hour),
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected OutputFormat
		wantErr  bool
	}{
		{"", FormatShort, false},
		{"short", FormatShort, false},
		{" LONG ", FormatLong, false},
		{"json", FormatJSON, false},
		{"table", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormatter_FormatResultShort(t *testing.T) {
	f := newTestFormatter()
	result := sampleResult()

	expected := "Two tickets are open: VPN down and Printer jam.\n\n" +
		"OData: " + result.OData + "  (2 rows)"

	assert.Equal(t, expected, f.FormatResult(result, FormatShort))
}

func TestFormatter_FormatResultLong(t *testing.T) {
	f := newTestFormatter()
	output := f.FormatResult(sampleResult(), FormatLong)

	lines := strings.Split(output, "\n")
	assert.Equal(t, "Answer: Two tickets are open: VPN down and Printer jam.", lines[0])
	assert.Contains(t, output, `    "table": "crca6_tickets",`)
	assert.Contains(t, output, `    "filters": "crca6_status eq 'Open'",`)
	assert.Contains(t, output, `    "expand": null,`)
	assert.Contains(t, output, "Rows: 2")
	assert.Contains(t, output, `"crca6_title": "Printer jam"`)
}

func TestFormatter_FormatResultPartial(t *testing.T) {
	f := newTestFormatter()
	result := &agent.Result{Plan: sampleResult().Plan, OData: "crca6_tickets?$top=10"}

	assert.Equal(t, "-\n\nOData: crca6_tickets?$top=10  (0 rows)", f.FormatResult(result, FormatShort))
	assert.Contains(t, f.FormatResult(result, FormatLong), "Raw result:\n  null")
	assert.Empty(t, f.FormatResult(nil, FormatLong))
}

func TestFormatter_FormatResultJSON(t *testing.T) {
	f := newTestFormatter()

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.FormatResult(sampleResult(), FormatJSON)), &decoded))

	assert.Equal(t, "Two tickets are open: VPN down and Printer jam.", decoded["answer"])
	assert.Contains(t, decoded, "raw_result")
	assert.Equal(t, "crca6_tickets", decoded["plan"].(map[string]any)["table"])
}

func TestFormatter_FormatPlan(t *testing.T) {
	f := newTestFormatter()
	result := sampleResult()

	short := f.FormatPlan(result, FormatShort)
	assert.True(t, strings.HasPrefix(short, "Plan:\n  {"))
	assert.True(t, strings.HasSuffix(short, "OData: "+result.OData))
	assert.NotContains(t, short, "Two tickets")

	long := f.FormatPlan(result, FormatLong)
	assert.Contains(t, long, "Columns: crca6_title, crca6_status")
	assert.Contains(t, long, "Filter: crca6_status eq 'Open'")
	assert.Contains(t, long, "Expand: -")
	assert.Contains(t, long, "Top: 10")

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.FormatPlan(result, FormatJSON)), &decoded))
	assert.Equal(t, result.OData, decoded["odata"])
	assert.NotContains(t, decoded, "answer")
}

func TestFormatter_FormatHistoryShort(t *testing.T) {
	f := newTestFormatter()
	lines := strings.Split(f.FormatHistory(sampleEntries(), FormatShort), "\n")

	require.Len(t, lines, 2)
	assert.Equal(t,
		"1. [2 hours ago] ok     Which tickets belong to ACME Corporation?  (crca6_tickets, 3 rows, 1.5s)",
		lines[0])
	assert.Equal(t,
		"2. [3 days ago] failed How many widgets?  (plan_validation, 250ms)",
		lines[1])
}

func TestFormatter_FormatHistoryLong(t *testing.T) {
	f := newTestFormatter()
	output := f.FormatHistory(sampleEntries(), FormatLong)

	blocks := strings.Split(output, "\n\n")
	require.Len(t, blocks, 2)

	assert.Contains(t, blocks[0], "ID: ask-2")
	assert.Contains(t, blocks[0], "Asked: 2 hours ago (2026-03-14 10:00:00)")
	assert.Contains(t, blocks[0], "Rows: 3")
	assert.Contains(t, blocks[0], "Answer: ACME has three tickets.")

	assert.Contains(t, blocks[1], "Error: plan_validation: table widgets is not allowed")
	assert.NotContains(t, blocks[1], "Rows:")
	assert.NotContains(t, blocks[1], "Table:")
}

func TestFormatter_FormatHistoryEmpty(t *testing.T) {
	f := newTestFormatter()

	assert.Equal(t, "No asks recorded yet.", f.FormatHistory(nil, FormatShort))
	assert.Equal(t, "null", f.FormatHistory(nil, FormatJSON))
	assert.Equal(t, "[]", f.FormatHistory([]history.Entry{}, FormatJSON))
}

func TestFormatter_humanizeAge(t *testing.T) {
	f := newTestFormatter()

	tests := []struct {
		name     string
		input    time.Time
		expected string
	}{
		{"zero time", time.Time{}, "?"},
		{"seconds ago", fixedNow.Add(-10 * time.Second), "just now"},
		{"one minute ago", fixedNow.Add(-time.Minute), "1 minute ago"},
		{"minutes ago", fixedNow.Add(-45 * time.Minute), "45 minutes ago"},
		{"one hour ago", fixedNow.Add(-time.Hour), "1 hour ago"},
		{"hours ago", fixedNow.Add(-5 * time.Hour), "5 hours ago"},
		{"one day ago", fixedNow.Add(-24 * time.Hour), "1 day ago"},
		{"multiple days ago", fixedNow.Add(-5 * 24 * time.Hour), "5 days ago"},
		{"one month ago", fixedNow.Add(-30 * 24 * time.Hour), "1 month ago"},
		{"multiple months ago", fixedNow.Add(-90 * 24 * time.Hour), "3 months ago"},
		{"one year ago", fixedNow.Add(-365 * 24 * time.Hour), "1 year ago"},
		{"multiple years ago", fixedNow.Add(-2 * 365 * 24 * time.Hour), "2 years ago"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, f.humanizeAge(tt.input))
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\n b\tc", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
