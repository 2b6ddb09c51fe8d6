package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

type LineItem struct {
	ent.Schema
}

func (LineItem) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "line_items"},
	}
}

func (LineItem) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable().
			StorageKey("id"),
		field.UUID("document_id", uuid.UUID{}),
		field.Int("position").NonNegative(),
		field.String("description"),
		field.Float("quantity"),
		field.Float("unit_price"),
		field.Float("line_total"),
		field.Float32("confidence"),
	}
}

func (LineItem) Edges() []ent.Edge {
	return []ent.Edge{
		// MANY line items -> ONE document
		edge.From("document", Document.Type).
			Ref("line_items").
			Field("document_id").
			Required().
			Unique(),
	}
}

func (LineItem) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("document_id", "position").Unique(),
	}
}
