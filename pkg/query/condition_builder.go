package query

// ConditionSource is anything that can produce a condition tree: a
// Criteria value or another *ConditionBuilder.
type ConditionSource interface {
	ToCondition() (Condition, error)
}

// ConditionBuilder accumulates conditions fluently. Chaining the same
// operator flattens into one compound node; switching operators nests the
// current tree, so a.And(b).Or(c) groups as (a AND b) OR c.
//
// The first error met while chaining is kept and returned by ToCondition.
type ConditionBuilder struct {
	cond Condition
	err  error
}

// NewConditionBuilder returns a builder seeded with the given sources,
// joined with AND.
func NewConditionBuilder(sources ...ConditionSource) *ConditionBuilder {
	b := &ConditionBuilder{}
	for _, src := range sources {
		b.And(src)
	}
	return b
}

// And joins src to the current condition with AND.
func (b *ConditionBuilder) And(src ConditionSource) *ConditionBuilder {
	return b.combine(AND, src)
}

// Or joins src to the current condition with OR.
func (b *ConditionBuilder) Or(src ConditionSource) *ConditionBuilder {
	return b.combine(OR, src)
}

// Empty reports whether no criteria has been added yet.
func (b *ConditionBuilder) Empty() bool {
	return b == nil || b.cond == nil
}

// ToCondition returns the accumulated tree. The returned tree is never
// modified by later calls on the builder.
func (b *ConditionBuilder) ToCondition() (Condition, error) {
	if b == nil {
		return nil, domainError("condition", ErrEmptyCondition, "condition builder is nil")
	}
	if b.err != nil {
		return nil, b.err
	}
	if b.cond == nil {
		return nil, domainError("condition", ErrEmptyCondition, "condition builder has no criteria")
	}
	return b.cond, nil
}

func (b *ConditionBuilder) combine(op LogicalOperator, src ConditionSource) *ConditionBuilder {
	if b.err != nil {
		return b
	}
	if src == nil {
		b.err = domainError("condition", ErrInvalidCriteria, "%s() needs a criteria or condition builder", op)
		return b
	}
	next, err := src.ToCondition()
	if err != nil {
		b.err = err
		return b
	}
	b.cond = join(b.cond, op, next)
	return b
}

func join(current Condition, op LogicalOperator, next Condition) Condition {
	if current == nil {
		return next
	}
	if cc, ok := current.(*CompoundCondition); ok && cc.Operator == op {
		children := make([]Condition, 0, len(cc.Conditions)+1)
		children = append(children, cc.Conditions...)
		children = append(children, next)
		return &CompoundCondition{Operator: op, Conditions: children}
	}
	return &CompoundCondition{Operator: op, Conditions: []Condition{current, next}}
}
