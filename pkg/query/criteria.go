package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/onyx-dev/onyx-database-go/internal/jsonx"
)

func criteria(field string, op Operator, value any) *ConditionBuilder {
	return NewConditionBuilder(Criteria{Field: field, Operator: op, Value: value})
}

// Eq matches records whose field equals value.
func Eq(field string, value any) *ConditionBuilder { return criteria(field, OpEqual, value) }

// Neq matches records whose field differs from value.
func Neq(field string, value any) *ConditionBuilder { return criteria(field, OpNotEqual, value) }

// In matches records whose field is one of values. A single
// comma-separated string is split into its parts; a query builder is sent
// as a sub-query.
func In(field string, values any) *ConditionBuilder { return criteria(field, OpIn, splitList(values)) }

// NotIn is the negation of In.
func NotIn(field string, values any) *ConditionBuilder {
	return criteria(field, OpNotIn, splitList(values))
}

// Within matches records whose field is in the result of a sub-query.
func Within(field string, sub Compilable) *ConditionBuilder { return criteria(field, OpIn, sub) }

// NotWithin matches records whose field is not in the result of a sub-query.
func NotWithin(field string, sub Compilable) *ConditionBuilder { return criteria(field, OpNotIn, sub) }

// Range is the value of a BETWEEN criteria.
type Range struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// MarshalJSON sends non-finite bounds as null.
func (r Range) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		From any `json:"from"`
		To   any `json:"to"`
	}{jsonx.Sanitize(r.From), jsonx.Sanitize(r.To)})
}

// Between matches records whose field lies in [lower, upper].
func Between(field string, lower, upper any) *ConditionBuilder {
	return criteria(field, OpBetween, Range{From: lower, To: upper})
}

func Gt(field string, value any) *ConditionBuilder  { return criteria(field, OpGreaterThan, value) }
func Gte(field string, value any) *ConditionBuilder { return criteria(field, OpGreaterThanEqual, value) }
func Lt(field string, value any) *ConditionBuilder  { return criteria(field, OpLessThan, value) }
func Lte(field string, value any) *ConditionBuilder { return criteria(field, OpLessThanEqual, value) }

// Matches tests the field against a regular expression.
func Matches(field, regex string) *ConditionBuilder { return criteria(field, OpMatches, regex) }

func NotMatches(field, regex string) *ConditionBuilder {
	return criteria(field, OpNotMatches, regex)
}

// Like uses SQL style wildcards.
func Like(field, pattern string) *ConditionBuilder    { return criteria(field, OpLike, pattern) }
func NotLike(field, pattern string) *ConditionBuilder { return criteria(field, OpNotLike, pattern) }

func Contains(field string, value any) *ConditionBuilder {
	return criteria(field, OpContains, value)
}

func ContainsIgnoreCase(field string, value any) *ConditionBuilder {
	return criteria(field, OpContainsIgnoreCase, value)
}

func NotContains(field string, value any) *ConditionBuilder {
	return criteria(field, OpNotContains, value)
}

func NotContainsIgnoreCase(field string, value any) *ConditionBuilder {
	return criteria(field, OpNotContainsIgnoreCase, value)
}

func StartsWith(field string, prefix any) *ConditionBuilder {
	return criteria(field, OpStartsWith, prefix)
}

func NotStartsWith(field string, prefix any) *ConditionBuilder {
	return criteria(field, OpNotStartsWith, prefix)
}

// IsNull matches records where the field is null or absent.
func IsNull(field string) *ConditionBuilder { return criteria(field, OpIsNull, nil) }

// NotNull matches records where the field is set.
func NotNull(field string) *ConditionBuilder { return criteria(field, OpNotNull, nil) }

func splitList(values any) any {
	s, ok := values.(string)
	if !ok || !strings.Contains(s, ",") {
		return values
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SortOrder is the direction of a Sort.
type SortOrder string

const (
	ASC  SortOrder = "ASC"
	DESC SortOrder = "DESC"
)

// Sort orders results by one field.
type Sort struct {
	Field string    `json:"field"`
	Order SortOrder `json:"order"`
}

// Asc sorts ascending on field.
func Asc(field string) Sort { return Sort{Field: field, Order: ASC} }

// Desc sorts descending on field.
func Desc(field string) Sort { return Sort{Field: field, Order: DESC} }

// Projection helpers build select expressions evaluated by the backend.
func Avg(field string) string      { return fn("avg", field) }
func Sum(field string) string      { return fn("sum", field) }
func Count(field string) string    { return fn("count", field) }
func Min(field string) string      { return fn("min", field) }
func Max(field string) string      { return fn("max", field) }
func Std(field string) string      { return fn("std", field) }
func Variance(field string) string { return fn("variance", field) }
func Median(field string) string   { return fn("median", field) }
func Upper(field string) string    { return fn("upper", field) }
func Lower(field string) string    { return fn("lower", field) }

func fn(name, field string) string {
	return fmt.Sprintf("%s(%s)", name, field)
}
