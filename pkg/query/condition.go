// Package query contains the condition tree, the fluent query and update
// builder, and the paginated results returned by the Onyx client.
package query

import (
	"encoding/json"
	"strings"

	"github.com/onyx-dev/onyx-database-go/internal/jsonx"
)

// Operator is a comparison operator understood by the Onyx backend.
type Operator string

const (
	OpEqual                 Operator = "EQUAL"
	OpNotEqual              Operator = "NOT_EQUAL"
	OpIn                    Operator = "IN"
	OpNotIn                 Operator = "NOT_IN"
	OpGreaterThan           Operator = "GREATER_THAN"
	OpGreaterThanEqual      Operator = "GREATER_THAN_EQUAL"
	OpLessThan              Operator = "LESS_THAN"
	OpLessThanEqual         Operator = "LESS_THAN_EQUAL"
	OpMatches               Operator = "MATCHES"
	OpNotMatches            Operator = "NOT_MATCHES"
	OpBetween               Operator = "BETWEEN"
	OpLike                  Operator = "LIKE"
	OpNotLike               Operator = "NOT_LIKE"
	OpContains              Operator = "CONTAINS"
	OpContainsIgnoreCase    Operator = "CONTAINS_IGNORE_CASE"
	OpNotContains           Operator = "NOT_CONTAINS"
	OpNotContainsIgnoreCase Operator = "NOT_CONTAINS_IGNORE_CASE"
	OpStartsWith            Operator = "STARTS_WITH"
	OpNotStartsWith         Operator = "NOT_STARTS_WITH"
	OpIsNull                Operator = "IS_NULL"
	OpNotNull               Operator = "NOT_NULL"
)

var knownOperators = map[Operator]bool{
	OpEqual: true, OpNotEqual: true, OpIn: true, OpNotIn: true,
	OpGreaterThan: true, OpGreaterThanEqual: true, OpLessThan: true, OpLessThanEqual: true,
	OpMatches: true, OpNotMatches: true, OpBetween: true, OpLike: true, OpNotLike: true,
	OpContains: true, OpContainsIgnoreCase: true, OpNotContains: true, OpNotContainsIgnoreCase: true,
	OpStartsWith: true, OpNotStartsWith: true, OpIsNull: true, OpNotNull: true,
}

// Valid reports whether op is one of the known operators.
func (op Operator) Valid() bool {
	return knownOperators[op]
}

// ParseOperator maps a case-insensitive operator name to an Operator.
func ParseOperator(s string) (Operator, bool) {
	op := Operator(strings.ToUpper(strings.TrimSpace(s)))
	return op, op.Valid()
}

// LogicalOperator joins the children of a CompoundCondition.
type LogicalOperator string

const (
	AND LogicalOperator = "AND"
	OR  LogicalOperator = "OR"
)

// Criteria is a single field comparison. Value may hold a nested query
// builder (or a slice containing one) for membership tests.
type Criteria struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
}

// ToCondition validates the criteria and wraps it in a SingleCondition.
func (c Criteria) ToCondition() (Condition, error) {
	if strings.TrimSpace(c.Field) == "" {
		return nil, domainError("criteria", ErrInvalidCriteria, "criteria is missing a field")
	}
	if c.Operator == "" {
		return nil, domainError("criteria", ErrInvalidCriteria, "criteria for %q is missing an operator", c.Field)
	}
	if !c.Operator.Valid() {
		return nil, domainError("criteria", ErrInvalidCriteria, "unknown operator %q for field %q", c.Operator, c.Field)
	}
	return &SingleCondition{Criteria: c}, nil
}

// Condition is a node of the filter tree. The only implementations are
// *SingleCondition and *CompoundCondition.
type Condition interface {
	ConditionType() string
	isCondition()
}

// SingleCondition is a leaf holding one criteria.
type SingleCondition struct {
	Criteria Criteria
}

func (*SingleCondition) isCondition() {}

// ConditionType returns the wire tag of the node.
func (*SingleCondition) ConditionType() string { return "SingleCondition" }

// MarshalJSON writes the tagged wire form. The value is always present,
// as null when it is nil or non-finite, except for IS_NULL and NOT_NULL
// which carry none.
func (c *SingleCondition) MarshalJSON() ([]byte, error) {
	cr := c.Criteria
	var criteria any = struct {
		Field    string   `json:"field"`
		Operator Operator `json:"operator"`
		Value    any      `json:"value"`
	}{cr.Field, cr.Operator, jsonx.Sanitize(cr.Value)}
	if cr.Operator == OpIsNull || cr.Operator == OpNotNull {
		criteria = Criteria{Field: cr.Field, Operator: cr.Operator}
	}
	return json.Marshal(struct {
		ConditionType string `json:"conditionType"`
		Criteria      any    `json:"criteria"`
	}{c.ConditionType(), criteria})
}

// CompoundCondition joins two or more conditions with AND or OR.
type CompoundCondition struct {
	Operator   LogicalOperator
	Conditions []Condition
}

func (*CompoundCondition) isCondition() {}

// ConditionType returns the wire tag of the node.
func (*CompoundCondition) ConditionType() string { return "CompoundCondition" }

// MarshalJSON writes the tagged wire form.
func (c *CompoundCondition) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ConditionType string          `json:"conditionType"`
		Operator      LogicalOperator `json:"operator"`
		Conditions    []Condition     `json:"conditions"`
	}{c.ConditionType(), c.Operator, c.Conditions})
}
