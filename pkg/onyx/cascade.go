package onyx

import (
	"context"
	"fmt"
)

// CascadeBuilder applies one set of relationships to saves and deletes.
type CascadeBuilder struct {
	db            *DB
	relationships []string
}

// Cascade returns a builder whose operations cascade through
// relationships.
func (db *DB) Cascade(relationships ...string) *CascadeBuilder {
	return &CascadeBuilder{db: db, relationships: relationships}
}

// Save stores entity (one value or a slice) in table with the cascade.
func (c *CascadeBuilder) Save(ctx context.Context, table string, entity any) (any, error) {
	var out any
	err := c.db.put(ctx, table, entity, &out, requestOptions{relationships: c.relationships})
	return out, err
}

// Delete removes a record and the related records named by the cascade.
func (c *CascadeBuilder) Delete(ctx context.Context, table, id string) (Record, error) {
	return c.db.Delete(ctx, table, id, WithRelationships(c.relationships...))
}

// RelationshipBuilder describes a cascade graph:
// name:GraphType(targetField, sourceField).
type RelationshipBuilder struct {
	name        string
	graphType   string
	targetField string
	sourceField string
}

// Relationship starts a graph description for the relationship name.
func Relationship(name string) *RelationshipBuilder {
	return &RelationshipBuilder{name: name}
}

// GraphType names the related table.
func (r *RelationshipBuilder) GraphType(table string) *RelationshipBuilder {
	r.graphType = table
	return r
}

// TargetField is the field of the related table that points back.
func (r *RelationshipBuilder) TargetField(field string) *RelationshipBuilder {
	r.targetField = field
	return r
}

// SourceField is the field of the parent the target field refers to.
func (r *RelationshipBuilder) SourceField(field string) *RelationshipBuilder {
	r.sourceField = field
	return r
}

// String renders the graph. Without a graph type only the name is used.
func (r *RelationshipBuilder) String() string {
	if r.graphType == "" {
		return r.name
	}
	return fmt.Sprintf("%s:%s(%s, %s)", r.name, r.graphType, r.targetField, r.sourceField)
}
