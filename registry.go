package rowscope

import "fmt"

// Registry holds entity, subtype and relation definitions. All
// definitions are registered during startup; every registration is
// validated eagerly and a failed registration should abort the process.
// After registration the registry is read-only and safe for concurrent
// use without synchronization.
type Registry struct {
	entities  map[string]*Entity
	subtypes  map[string]*Subtype
	relations map[string]map[string]resolvedRelation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entities:  make(map[string]*Entity),
		subtypes:  make(map[string]*Subtype),
		relations: make(map[string]map[string]resolvedRelation),
	}
}

// DefineEntity registers a base entity. When table is empty it is derived
// from the logical name by the fixed naming convention.
func (r *Registry) DefineEntity(name, table string, fields []FieldDefinition, primaryKey string) (*Entity, error) {
	if name == "" {
		return nil, &ConfigurationError{Definition: name, Reason: "entity name must not be empty"}
	}
	if _, exists := r.entities[name]; exists {
		return nil, &ConfigurationError{Definition: name, Reason: "entity already defined"}
	}
	if _, exists := r.subtypes[name]; exists {
		return nil, &ConfigurationError{Definition: name, Reason: "name already used by a subtype"}
	}
	if len(fields) == 0 {
		return nil, &ConfigurationError{Definition: name, Reason: "entity must declare at least one field"}
	}
	if table == "" {
		table = defaultTableName(name)
	}

	index := make(map[string]FieldDefinition, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, &ConfigurationError{Definition: name, Reason: "field name must not be empty"}
		}
		if _, dup := index[f.Name]; dup {
			return nil, &ConfigurationError{Definition: name, Reason: fmt.Sprintf("duplicate field %q", f.Name)}
		}
		index[f.Name] = f
	}
	if _, ok := index[primaryKey]; !ok {
		return nil, &ConfigurationError{Definition: name, Reason: fmt.Sprintf("primary key %q is not a declared field", primaryKey)}
	}

	clone := make([]FieldDefinition, len(fields))
	copy(clone, fields)
	entity := &Entity{
		name:       name,
		table:      table,
		fields:     clone,
		fieldIndex: index,
		primaryKey: primaryKey,
	}
	r.entities[name] = entity
	return entity, nil
}

// DefineSubtype registers a subtype of an already-registered source. The
// table must be declared explicitly and must equal the parent's table:
// deriving it from the subtype's own name would silently point queries at
// a nonexistent table, so there is no fallback.
func (r *Registry) DefineSubtype(name, parentName, table string, predicate Predicate, opts ...SubtypeOption) (*Subtype, error) {
	if name == "" {
		return nil, &ConfigurationError{Definition: name, Reason: "subtype name must not be empty"}
	}
	if _, exists := r.entities[name]; exists {
		return nil, &ConfigurationError{Definition: name, Reason: "name already used by an entity"}
	}
	if _, exists := r.subtypes[name]; exists {
		return nil, &ConfigurationError{Definition: name, Reason: "subtype already defined"}
	}

	parent, ok := r.Source(parentName)
	if !ok {
		return nil, &ConfigurationError{Definition: name, Reason: fmt.Sprintf("unknown parent %q", parentName)}
	}
	if table == "" {
		return nil, &ConfigurationError{Definition: name, Reason: "subtype requires an explicit table binding"}
	}
	if table != parent.Table() {
		return nil, &ConfigurationError{
			Definition: name,
			Reason:     fmt.Sprintf("table %q does not match parent table %q", table, parent.Table()),
		}
	}
	if predicate == nil {
		return nil, &ConfigurationError{Definition: name, Reason: "subtype requires a row-filter predicate"}
	}

	base, _ := parent.baseEntity()
	for _, field := range predicate.Fields() {
		if _, ok := base.Field(field); !ok {
			return nil, &ConfigurationError{
				Definition: name,
				Reason:     fmt.Sprintf("predicate references unknown field %q", field),
			}
		}
	}

	subtype := &Subtype{
		name:      name,
		parent:    parent,
		table:     table,
		predicate: predicate,
	}
	for _, opt := range opts {
		opt(subtype)
	}
	r.subtypes[name] = subtype
	return subtype, nil
}

// SubtypeOption customizes a subtype at registration time.
type SubtypeOption func(*Subtype)

// WithEnforcedPredicate makes the subtype reject creates whose final
// field values contradict the row filter, instead of the default
// advisory behavior where such records are stored but invisible through
// the subtype.
func WithEnforcedPredicate() SubtypeOption {
	return func(s *Subtype) { s.enforce = true }
}

// DefineRelation registers a relation between two base entities. Derived
// names (foreign key, join table, target key) are resolved here so that
// query composition is a pure lookup.
func (r *Registry) DefineRelation(rel Relation) error {
	if rel.Name == "" {
		return &ConfigurationError{Definition: rel.Name, Reason: "relation name must not be empty"}
	}
	source, ok := r.entities[rel.Source]
	if !ok {
		if _, isSubtype := r.subtypes[rel.Source]; isSubtype {
			return &ConfigurationError{
				Definition: rel.Name,
				Reason:     fmt.Sprintf("relations are declared on base entities, not subtype %q", rel.Source),
			}
		}
		return &ConfigurationError{Definition: rel.Name, Reason: fmt.Sprintf("unknown source entity %q", rel.Source)}
	}
	target, ok := r.entities[rel.Target]
	if !ok {
		return &ConfigurationError{Definition: rel.Name, Reason: fmt.Sprintf("unknown target entity %q", rel.Target)}
	}
	if _, exists := r.relations[rel.Source][rel.Name]; exists {
		return &ConfigurationError{
			Definition: rel.Name,
			Reason:     fmt.Sprintf("relation already defined on %q", rel.Source),
		}
	}

	switch rel.Kind {
	case RelationHasOne, RelationHasMany:
		if rel.ForeignKey == "" {
			rel.ForeignKey = defaultForeignKey(source.Name())
		}
		if _, ok := target.Field(rel.ForeignKey); !ok {
			return &ConfigurationError{
				Definition: rel.Name,
				Reason:     fmt.Sprintf("foreign key %q is not a field of target %q", rel.ForeignKey, rel.Target),
			}
		}
	case RelationManyToMany:
		if rel.ForeignKey == "" {
			rel.ForeignKey = defaultForeignKey(source.Name())
		}
		if rel.TargetKey == "" {
			rel.TargetKey = defaultForeignKey(target.Name())
		}
		if rel.JoinTable == "" {
			rel.JoinTable = defaultJoinTable(source.Name(), target.Name())
		}
	default:
		return &ConfigurationError{Definition: rel.Name, Reason: fmt.Sprintf("unknown relation kind %q", rel.Kind)}
	}

	if r.relations[rel.Source] == nil {
		r.relations[rel.Source] = make(map[string]resolvedRelation)
	}
	r.relations[rel.Source][rel.Name] = resolvedRelation{Relation: rel, target: target}
	return nil
}

// Entity looks up a base entity by logical name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// Subtype looks up a subtype by logical name.
func (r *Registry) Subtype(name string) (*Subtype, bool) {
	s, ok := r.subtypes[name]
	return s, ok
}

// Source looks up an entity or subtype by logical name.
func (r *Registry) Source(name string) (Source, bool) {
	if e, ok := r.entities[name]; ok {
		return e, true
	}
	if s, ok := r.subtypes[name]; ok {
		return s, true
	}
	return nil, false
}

// Relation returns the resolved form of a relation declared on a base
// entity, with every derived name filled in.
func (r *Registry) Relation(entityName, relationName string) (Relation, bool) {
	rel, ok := r.relations[entityName][relationName]
	if !ok {
		return Relation{}, false
	}
	return rel.Relation, true
}

// relation resolves a relation name against a record's source, walking
// one level up from a subtype to its base entity. Deeper chains are
// unsupported and fail with RelationResolutionError.
func (r *Registry) relation(src Source, name string) (resolvedRelation, error) {
	base, depth := src.baseEntity()
	if depth > 1 {
		return resolvedRelation{}, &RelationResolutionError{
			Relation: name,
			Reason:   fmt.Sprintf("source %q is a subtype chain %d levels deep; only one level is supported", src.Name(), depth),
		}
	}
	rel, ok := r.relations[base.Name()][name]
	if !ok {
		return resolvedRelation{}, &RelationResolutionError{
			Relation: name,
			Reason:   fmt.Sprintf("no relation declared on entity %q", base.Name()),
		}
	}
	return rel, nil
}
