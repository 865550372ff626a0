package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kyleking/dataverse-agent/internal/agent"
	"github.com/kyleking/dataverse-agent/internal/history"
	"github.com/kyleking/dataverse-agent/internal/types"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatLong  OutputFormat = "long"
	FormatShort OutputFormat = "short"
	FormatJSON  OutputFormat = "json"
)

const maxShortQuestion = 60

// ParseFormat returns the format named by s, defaulting to short
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case FormatLong:
		return FormatLong, nil
	case FormatShort, "":
		return FormatShort, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("invalid format %q (must be short, long, or json)", s)
	}
}

// Formatter handles ask and history output formatting
type Formatter struct {
	now func() time.Time
}

// NewFormatter creates a new formatter instance
func NewFormatter() *Formatter {
	return &Formatter{now: time.Now}
}

// FormatResult formats the outcome of an ask
func (f *Formatter) FormatResult(result *agent.Result, format OutputFormat) string {
	if result == nil {
		return ""
	}

	switch format {
	case FormatJSON:
		return f.toJSON(result)
	case FormatLong:
		return f.formatResultLong(result)
	default:
		return f.formatResultShort(result)
	}
}

// FormatPlan formats a plan and its compiled query without results
func (f *Formatter) FormatPlan(result *agent.Result, format OutputFormat) string {
	if result == nil {
		return ""
	}

	if format == FormatJSON {
		return f.toJSON(map[string]any{"plan": result.Plan, "odata": result.OData})
	}

	lines := []string{"Plan:", f.indentJSON(result.Plan, "  "), "OData: " + result.OData}
	if format == FormatLong {
		lines = append(lines, f.describePlan(result.Plan)...)
	}

	return strings.Join(lines, "\n")
}

// formatResultLong lists the answer followed by every intermediate artifact
func (f *Formatter) formatResultLong(result *agent.Result) string {
	lines := []string{
		"Answer: " + orDash(result.Answer),
		"",
		"Plan:",
		f.indentJSON(result.Plan, "  "),
		"OData: " + orDash(result.OData),
		fmt.Sprintf("Rows: %d", result.RowCount()),
		"Raw result:",
		f.indentJSON(result.RawResult, "  "),
	}

	return strings.Join(lines, "\n")
}

func (f *Formatter) formatResultShort(result *agent.Result) string {
	lines := []string{
		orDash(result.Answer),
		"",
		fmt.Sprintf("OData: %s  (%d rows)", orDash(result.OData), result.RowCount()),
	}

	return strings.Join(lines, "\n")
}

func (f *Formatter) describePlan(plan *types.QueryPlan) []string {
	if plan == nil {
		return nil
	}

	columns := strings.Join(plan.Select, ", ")
	if columns == "" {
		columns = "all"
	}

	return []string{
		"Table: " + plan.Table,
		"Columns: " + columns,
		"Filter: " + orDash(types.Deref(plan.Filters)),
		"Expand: " + orDash(types.Deref(plan.Expand)),
		"Order: " + orDash(types.Deref(plan.OrderBy)),
		fmt.Sprintf("Top: %d", plan.Top),
	}
}

// FormatHistory formats history entries, newest first as given
func (f *Formatter) FormatHistory(entries []history.Entry, format OutputFormat) string {
	if format == FormatJSON {
		return f.toJSON(entries)
	}

	if len(entries) == 0 {
		return "No asks recorded yet."
	}

	blocks := make([]string, 0, len(entries))
	for i, entry := range entries {
		if format == FormatLong {
			blocks = append(blocks, f.formatEntryLong(entry))
		} else {
			blocks = append(blocks, f.formatEntryShort(i+1, entry))
		}
	}

	sep := "\n"
	if format == FormatLong {
		sep = "\n\n"
	}

	return strings.Join(blocks, sep)
}

func (f *Formatter) formatEntryShort(rank int, entry history.Entry) string {
	status := "ok"
	detail := fmt.Sprintf("%s, %d rows", orDash(entry.Table), entry.RowCount)
	if entry.Failed() {
		status = "failed"
		detail = entry.ErrorType
	}

	return fmt.Sprintf("%d. [%s] %-6s %s  (%s, %s)",
		rank, f.humanizeAge(entry.CreatedAt), status, truncate(entry.Question, maxShortQuestion),
		detail, entry.Duration.Round(time.Millisecond))
}

func (f *Formatter) formatEntryLong(entry history.Entry) string {
	lines := []string{
		"ID: " + entry.ID,
		"Asked: " + f.humanizeAge(entry.CreatedAt) + " (" + entry.CreatedAt.Format("2006-01-02 15:04:05") + ")",
		"Question: " + entry.Question,
		"Duration: " + entry.Duration.Round(time.Millisecond).String(),
	}

	if entry.Table != "" {
		lines = append(lines, "Table: "+entry.Table)
	}
	if entry.OData != "" {
		lines = append(lines, "OData: "+entry.OData)
	}

	if entry.Failed() {
		lines = append(lines, fmt.Sprintf("Error: %s: %s", entry.ErrorType, entry.ErrorMessage))
	} else {
		lines = append(lines,
			fmt.Sprintf("Rows: %d", entry.RowCount),
			"Answer: "+orDash(entry.Answer))
	}

	return strings.Join(lines, "\n")
}

// humanizeAge converts a time to a human-readable age string
func (f *Formatter) humanizeAge(t time.Time) string {
	if t.IsZero() {
		return "?"
	}

	duration := f.now().Sub(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}

		return fmt.Sprintf("%d minutes ago", minutes)
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}

		return fmt.Sprintf("%d hours ago", hours)
	}

	days := int(duration.Hours() / 24)

	if days == 1 {
		return "1 day ago"
	} else if days < 30 {
		return fmt.Sprintf("%d days ago", days)
	} else if days < 365 {
		months := days / 30
		if months == 1 {
			return "1 month ago"
		}

		return fmt.Sprintf("%d months ago", months)
	}

	years := days / 365
	if years == 1 {
		return "1 year ago"
	}

	return fmt.Sprintf("%d years ago", years)
}

func (f *Formatter) indentJSON(v any, indent string) string {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(indent, "  ")

	if err := enc.Encode(v); err != nil {
		return indent + fmt.Sprintf("%v", v)
	}

	return indent + strings.TrimRight(buf.String(), "\n")
}

func (f *Formatter) toJSON(v any) string {
	return f.indentJSON(v, "")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}

	return s
}

func truncate(s string, n int) string {
	runes := []rune(strings.Join(strings.Fields(s), " "))
	if len(runes) <= n {
		return string(runes)
	}

	return string(runes[:n-3]) + "..."
}
