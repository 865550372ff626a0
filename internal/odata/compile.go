// Package odata renders a validated query plan as a Dataverse OData query
// string relative to the Web API root.
package odata

import (
	"strconv"
	"strings"

	"github.com/kyleking/dataverse-agent/internal/types"
)

// System query option names, in the order they are emitted
const (
	OptionSelect  = "$select"
	OptionExpand  = "$expand"
	OptionFilter  = "$filter"
	OptionOrderBy = "$orderby"
	OptionTop     = "$top"
)

const (
	// filterSafe are the reserved characters left literal in filter expressions
	filterSafe = `='<>,()/`
	// expandSafe adds the characters nested expand options need
	expandSafe = filterSafe + `$;`
)

// Compile renders plan as "<table>?<options>". Options appear in the order
// select, expand, filter, orderby, top; absent or empty ones are omitted and
// a plan with no options compiles to the bare table name.
//
// Compile trusts the plan: it must come from planner.Validate.
func Compile(plan *types.QueryPlan) string {
	if plan == nil {
		return ""
	}

	b := newBuilder(plan.Table)

	if len(plan.Select) > 0 {
		columns := make([]string, 0, len(plan.Select))
		for _, column := range plan.Select {
			columns = append(columns, escape(column, filterSafe))
		}
		b.add(OptionSelect, strings.Join(columns, ","))
	}

	if expand := types.Deref(plan.Expand); expand != "" {
		b.add(OptionExpand, escape(expand, expandSafe))
	}

	if filter := types.Deref(plan.Filters); filter != "" {
		b.add(OptionFilter, EncodeFilter(filter))
	}

	if orderBy := types.Deref(plan.OrderBy); orderBy != "" {
		b.add(OptionOrderBy, escape(orderBy, filterSafe))
	}

	if plan.Top > 0 {
		b.add(OptionTop, strconv.Itoa(plan.Top))
	}

	return b.String()
}

// EncodeFilter percent-encodes a filter expression. Unreserved characters and
// = ' < > , ( ) / stay literal; everything else, space included, becomes %XX
// over its UTF-8 bytes.
func EncodeFilter(filter string) string {
	return escape(filter, filterSafe)
}

// builder accumulates query options for one collection
type builder struct {
	table   string
	options []string
}

func newBuilder(table string) *builder {
	return &builder{table: table}
}

func (b *builder) add(name, value string) {
	b.options = append(b.options, name+"="+value)
}

func (b *builder) String() string {
	if len(b.options) == 0 {
		return b.table
	}

	return b.table + "?" + strings.Join(b.options, "&")
}

const upperHex = "0123456789ABCDEF"

func escape(s, safe string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || strings.IndexByte(safe, c) >= 0 {
			sb.WriteByte(c)
			continue
		}

		sb.WriteByte('%')
		sb.WriteByte(upperHex[c>>4])
		sb.WriteByte(upperHex[c&0x0F])
	}

	return sb.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}

	return false
}
