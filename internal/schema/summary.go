package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kyleking/dataverse-agent/internal/edm"
)

// DefaultMaxTextBytes bounds the summary text handed to the oracle
const DefaultMaxTextBytes = 60000

// Summary is the oracle-facing schema description plus the allow-list of
// collections a plan may target. Text is advisory; AllowedTables is authoritative.
type Summary struct {
	Text          string   `json:"schema_text"`
	AllowedTables []string `json:"allowed_tables"`
	Described     int      `json:"described"`
	Omitted       int      `json:"omitted"`
}

type summaryOptions struct {
	maxTextBytes int
}

// SummaryOption configures Summarize
type SummaryOption func(*summaryOptions)

// WithMaxTextBytes bounds the rendered text. Zero disables the bound.
func WithMaxTextBytes(n int) SummaryOption {
	return func(o *summaryOptions) {
		if n >= 0 {
			o.maxTextBytes = n
		}
	}
}

// Summarize describes every entity type whose name starts with prefix and
// collects the collections those types resolve to through idx.
//
// Types with no resolvable collection are described but never allowed.
// When the text bound is hit, whole table blocks are dropped and a trailing
// marker notes how many; the allow-list is unaffected.
func Summarize(doc *edm.Document, idx *Index, prefix string, opts ...SummaryOption) Summary {
	options := summaryOptions{maxTextBytes: DefaultMaxTextBytes}
	for _, opt := range opts {
		opt(&options)
	}

	var (
		blocks  []string
		allowed = make(map[string]struct{})
	)

	if doc != nil {
		for _, entity := range doc.EntityTypes() {
			if !strings.HasPrefix(entity.Name, prefix) {
				continue
			}

			collection := ""
			if idx != nil {
				collection, _ = idx.Resolve(entity.Name)
			}
			if collection != "" {
				allowed[collection] = struct{}{}
			}

			blocks = append(blocks, renderBlock(entity, collection))
		}
	}

	summary := Summary{
		AllowedTables: make([]string, 0, len(allowed)),
		Described:     len(blocks),
	}
	for table := range allowed {
		summary.AllowedTables = append(summary.AllowedTables, table)
	}
	sort.Strings(summary.AllowedTables)

	var sb strings.Builder
	kept := 0
	for i, block := range blocks {
		size := len(block)
		if i > 0 {
			size++
		}
		if options.maxTextBytes > 0 && sb.Len()+size > options.maxTextBytes {
			break
		}
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(block)
		kept++
	}

	if omitted := len(blocks) - kept; omitted > 0 {
		summary.Omitted = omitted
		if kept > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "... (%d more tables omitted)\n", omitted)
	}

	summary.Text = sb.String()

	return summary
}

func renderBlock(entity edm.EntityType, collection string) string {
	var sb strings.Builder

	sb.WriteString("Table: ")
	sb.WriteString(entity.Name)
	if collection != "" {
		fmt.Fprintf(&sb, " (EntitySet: %s)", collection)
	}
	sb.WriteString("\n")

	for _, prop := range entity.Properties {
		fmt.Fprintf(&sb, "  - %s (%s)\n", prop.Name, prop.Type)
	}

	for _, nav := range entity.NavigationProperties {
		fmt.Fprintf(&sb, "  ~ %s -> %s\n", nav.Name, edm.LocalName(nav.Type))
	}

	return sb.String()
}
