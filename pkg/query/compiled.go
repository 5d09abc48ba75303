package query

import "reflect"

// SelectQuery is the compiled, immutable body of a read request.
// Nil fields are sent as null, meaning "no restriction".
type SelectQuery struct {
	Type       string    `json:"type"`
	Fields     []string  `json:"fields"`
	Conditions Condition `json:"conditions"`
	Sort       []Sort    `json:"sort"`
	Limit      *int      `json:"limit"`
	Distinct   bool      `json:"distinct"`
	GroupBy    []string  `json:"groupBy"`
	Partition  *string   `json:"partition"`
	Resolvers  []string  `json:"resolvers"`
}

// UpdateQuery is the compiled body of a bulk update.
type UpdateQuery struct {
	Type       string         `json:"type"`
	Conditions Condition      `json:"conditions"`
	Updates    map[string]any `json:"updates"`
	Sort       []Sort         `json:"sort"`
	Limit      *int           `json:"limit"`
	Partition  *string        `json:"partition"`
}

// SubQuery is a SelectQuery qualified with its table, embedded as a
// criteria value for "field IN (sub-query)" predicates.
type SubQuery struct {
	*SelectQuery
	Table string `json:"table"`
}

// Compilable is implemented by query builders that can stand in for a
// criteria value.
type Compilable interface {
	CompileSubQuery() (*SubQuery, error)
}

// normalizeCondition returns c with every Compilable criteria value
// replaced by its compiled sub-query. Unchanged subtrees are shared.
func normalizeCondition(c Condition) (Condition, error) {
	switch n := c.(type) {
	case nil:
		return nil, nil
	case *SingleCondition:
		v, changed, err := normalizeValue(n.Criteria.Value)
		if err != nil || !changed {
			return n, err
		}
		cr := n.Criteria
		cr.Value = v
		return &SingleCondition{Criteria: cr}, nil
	case *CompoundCondition:
		var children []Condition
		for i, child := range n.Conditions {
			nc, err := normalizeCondition(child)
			if err != nil {
				return nil, err
			}
			if nc != child && children == nil {
				children = make([]Condition, len(n.Conditions))
				copy(children, n.Conditions[:i])
			}
			if children != nil {
				children[i] = nc
			}
		}
		if children == nil {
			return n, nil
		}
		return &CompoundCondition{Operator: n.Operator, Conditions: children}, nil
	default:
		return c, nil
	}
}

func normalizeValue(v any) (any, bool, error) {
	if v == nil {
		return nil, false, nil
	}
	if sub, ok := v.(Compilable); ok {
		compiled, err := sub.CompileSubQuery()
		return compiled, true, err
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return v, false, nil
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return v, false, nil
	}
	out := make([]any, rv.Len())
	changed := false
	for i := range out {
		item, c, err := normalizeValue(rv.Index(i).Interface())
		if err != nil {
			return nil, false, err
		}
		out[i] = item
		changed = changed || c
	}
	if !changed {
		return v, false, nil
	}
	return out, true, nil
}
