// Package filterexpr parses the textual filters accepted by the CLI, such
// as `age >= 21 and (name like "A%" or status in ("new", "open"))`, into
// query conditions.
package filterexpr

import (
	"fmt"
	"math"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/onyx-dev/onyx-database-go/pkg/query"
)

var filterLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"`},
	{Name: "Number", Pattern: `-?\d+(?:\.\d+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.]*`},
	{Name: "Operator", Pattern: `==|!=|>=|<=|=|>|<`},
	{Name: "Punct", Pattern: `[(),]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// Expression is a disjunction of conjunctions. And binds tighter than or.
type Expression struct {
	Or []*Conjunction `@@ ( "or" @@ )*`
}

type Conjunction struct {
	And []*Term `@@ ( "and" @@ )*`
}

type Term struct {
	Group      *Expression `  "(" @@ ")"`
	Comparison *Comparison `| @@`
}

type Comparison struct {
	Field   string    `@Ident`
	Null    *NullTest `( @@`
	Between *Between  `| @@`
	In      *InList   `| @@`
	Binary  *Binary   `| @@ )`
}

type NullTest struct {
	Not bool `"is" @"not"? "null"`
}

type Between struct {
	From *Value `"between" @@`
	To   *Value `"and" @@`
}

type InList struct {
	Not    bool     `@"not"? "in"`
	Values []*Value `"(" @@ ( "," @@ )* ")"`
}

type Binary struct {
	Not   bool   `@"not"?`
	Op    string `@( Operator | "like" | "contains" | "startsWith" | "matches" )`
	Value *Value `@@`
}

type Value struct {
	String *string  `  @String`
	Number *float64 `| @Number`
	Bool   *string  `| @( "true" | "false" )`
	Null   bool     `| @"null"`
}

var parser = participle.MustBuild[Expression](
	participle.Lexer(filterLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(4),
)

// Parse turns input into a condition builder.
func Parse(input string) (*query.ConditionBuilder, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("empty filter expression")
	}
	expr, err := parser.ParseString("", input)
	if err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}
	return expr.build()
}

func (e *Expression) build() (*query.ConditionBuilder, error) {
	b := &query.ConditionBuilder{}
	for _, c := range e.Or {
		next, err := c.build()
		if err != nil {
			return nil, err
		}
		b.Or(next)
	}
	return b, nil
}

func (c *Conjunction) build() (*query.ConditionBuilder, error) {
	b := &query.ConditionBuilder{}
	for _, t := range c.And {
		next, err := t.build()
		if err != nil {
			return nil, err
		}
		b.And(next)
	}
	return b, nil
}

func (t *Term) build() (*query.ConditionBuilder, error) {
	if t.Group != nil {
		return t.Group.build()
	}
	return t.Comparison.build()
}

func (c *Comparison) build() (*query.ConditionBuilder, error) {
	switch {
	case c.Null != nil:
		if c.Null.Not {
			return query.NotNull(c.Field), nil
		}
		return query.IsNull(c.Field), nil
	case c.Between != nil:
		return query.Between(c.Field, c.Between.From.value(), c.Between.To.value()), nil
	case c.In != nil:
		values := make([]any, len(c.In.Values))
		for i, v := range c.In.Values {
			values[i] = v.value()
		}
		if c.In.Not {
			return query.NotIn(c.Field, values), nil
		}
		return query.In(c.Field, values), nil
	}
	return c.Binary.build(c.Field)
}

func (b *Binary) build(field string) (*query.ConditionBuilder, error) {
	v := b.Value.value()
	op := strings.ToLower(b.Op)
	switch op {
	case "=", "==":
		if b.Not {
			return query.Neq(field, v), nil
		}
		return query.Eq(field, v), nil
	case "!=":
		if b.Not {
			return query.Eq(field, v), nil
		}
		return query.Neq(field, v), nil
	case "like":
		if b.Not {
			return query.NotLike(field, fmt.Sprint(v)), nil
		}
		return query.Like(field, fmt.Sprint(v)), nil
	case "contains":
		if b.Not {
			return query.NotContains(field, v), nil
		}
		return query.Contains(field, v), nil
	case "startswith":
		if b.Not {
			return query.NotStartsWith(field, v), nil
		}
		return query.StartsWith(field, v), nil
	case "matches":
		if b.Not {
			return query.NotMatches(field, fmt.Sprint(v)), nil
		}
		return query.Matches(field, fmt.Sprint(v)), nil
	}
	if b.Not {
		return nil, fmt.Errorf("operator %q cannot be negated", b.Op)
	}
	switch op {
	case ">":
		return query.Gt(field, v), nil
	case ">=":
		return query.Gte(field, v), nil
	case "<":
		return query.Lt(field, v), nil
	case "<=":
		return query.Lte(field, v), nil
	}
	return nil, fmt.Errorf("unknown operator %q", b.Op)
}

func (v *Value) value() any {
	switch {
	case v.String != nil:
		return *v.String
	case v.Number != nil:
		n := *v.Number
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n)
		}
		return n
	case v.Bool != nil:
		return strings.EqualFold(*v.Bool, "true")
	}
	return nil
}
