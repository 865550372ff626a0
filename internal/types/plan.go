package types

// AggregationNone is the only aggregation tag the compiler implements
const AggregationNone = "none"

// DefaultTop is the row cap applied when a plan carries no usable top
const DefaultTop = 50

// QueryPlan is the validated intermediate representation between a
// natural-language question and a compiled OData query string.
//
// Optional clauses are pointers so that an absent clause serializes as
// JSON null, matching the oracle's response contract.
type QueryPlan struct {
	Table       string   `json:"table"`
	Select      []string `json:"select"`
	Filters     *string  `json:"filters"`
	Expand      *string  `json:"expand"`
	Aggregation string   `json:"aggregation"`
	OrderBy     *string  `json:"order_by"`
	Top         int      `json:"top"`
}

// Clone returns a deep copy of the plan
func (p *QueryPlan) Clone() *QueryPlan {
	if p == nil {
		return nil
	}

	clone := *p
	if p.Select != nil {
		clone.Select = append([]string{}, p.Select...)
	}
	clone.Filters = cloneString(p.Filters)
	clone.Expand = cloneString(p.Expand)
	clone.OrderBy = cloneString(p.OrderBy)

	return &clone
}

// StringPtr returns a pointer to s
func StringPtr(s string) *string {
	return &s
}

// Deref returns the pointed-to string or "" for nil
func Deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}

	v := *s

	return &v
}
