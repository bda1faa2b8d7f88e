package rowscope

// FieldType represents the type of a field in an entity definition.
type FieldType string

const (
	FieldTypeString    FieldType = "string"
	FieldTypeInteger   FieldType = "integer"
	FieldTypeFloat     FieldType = "float"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeTimestamp FieldType = "timestamp"
	FieldTypeJSON      FieldType = "json"
	FieldTypeUUID      FieldType = "uuid"
)

// FieldDefinition describes one column of an entity's physical table.
type FieldDefinition struct {
	Name     string
	Type     FieldType
	Required bool
}

// Source is anything records can be read through: a base Entity or a
// Subtype sharing the entity's table behind a row filter. Implementations
// live in this package only.
type Source interface {
	// Name returns the logical name of the source.
	Name() string
	// Table returns the physical table all queries through this source hit.
	Table() string

	baseEntity() (*Entity, int)
	rowFilter() (Predicate, bool)
	enforced() bool
}

// Entity is a logical record type bound to a physical table. Entities are
// created through Registry.DefineEntity and are immutable afterwards.
type Entity struct {
	name       string
	table      string
	fields     []FieldDefinition
	fieldIndex map[string]FieldDefinition
	primaryKey string
}

func (e *Entity) Name() string  { return e.name }
func (e *Entity) Table() string { return e.table }

// PrimaryKey returns the name of the primary-key field.
func (e *Entity) PrimaryKey() string { return e.primaryKey }

// Fields returns a defensive copy of the field definitions in
// declaration order.
func (e *Entity) Fields() []FieldDefinition {
	clone := make([]FieldDefinition, len(e.fields))
	copy(clone, e.fields)
	return clone
}

// Field looks up a field definition by name.
func (e *Entity) Field(name string) (FieldDefinition, bool) {
	f, ok := e.fieldIndex[name]
	return f, ok
}

func (e *Entity) baseEntity() (*Entity, int)   { return e, 0 }
func (e *Entity) rowFilter() (Predicate, bool) { return nil, false }
func (e *Entity) enforced() bool               { return false }

// Subtype specializes an entity: it shares the parent's physical table
// and scopes every query through it with a row-filter predicate.
type Subtype struct {
	name      string
	parent    Source
	table     string
	predicate Predicate
	enforce   bool
}

func (s *Subtype) Name() string  { return s.name }
func (s *Subtype) Table() string { return s.table }

// Parent returns the source this subtype specializes.
func (s *Subtype) Parent() Source { return s.parent }

// Predicate returns this subtype's own row filter. The filter applied to
// queries is the conjunction of every predicate up the parent chain.
func (s *Subtype) Predicate() Predicate { return s.predicate }

func (s *Subtype) baseEntity() (*Entity, int) {
	base, depth := s.parent.baseEntity()
	return base, depth + 1
}

func (s *Subtype) rowFilter() (Predicate, bool) {
	parentPred, ok := s.parent.rowFilter()
	if !ok {
		return s.predicate, true
	}
	return And(parentPred, s.predicate), true
}

func (s *Subtype) enforced() bool { return s.enforce }

// BaseOf returns the base entity a source ultimately resolves to, along
// with the subtype depth (0 for an entity, 1 for a direct subtype).
func BaseOf(src Source) (*Entity, int) {
	return src.baseEntity()
}
