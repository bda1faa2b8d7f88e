package rowscope

import (
	"context"

	"github.com/google/uuid"
)

// Accessor executes reads and writes through entity and subtype sources,
// injecting each source's row filter before delegating to the backend.
// An Accessor is stateless and safe for concurrent use.
type Accessor struct {
	registry *Registry
	backend  Backend
}

// NewAccessor wires a registry to a storage backend.
func NewAccessor(registry *Registry, backend Backend) *Accessor {
	return &Accessor{registry: registry, backend: backend}
}

// Registry returns the definition registry the accessor serves.
func (a *Accessor) Registry() *Registry { return a.registry }

// scopedConditions conjoins the source's row filter (if any) with the
// caller's conditions. Base entities pass caller conditions through
// untouched.
func (a *Accessor) scopedConditions(src Source, extra []Condition) []Condition {
	pred, ok := src.rowFilter()
	if !ok {
		return extra
	}
	scoped := pred.Conditions()
	return append(scoped, extra...)
}

// Find retrieves a record by primary key through the given source. The
// source's row filter applies: a row that exists in the table but does
// not satisfy a subtype's predicate yields ErrNotFound.
func (a *Accessor) Find(ctx context.Context, src Source, id any) (Record, error) {
	base, _ := src.baseEntity()
	q := Query{
		Table:      src.Table(),
		Conditions: a.scopedConditions(src, []Condition{{Field: base.PrimaryKey(), Op: OpEq, Value: id}}),
		Limit:      1,
	}
	rows, err := a.backend.Select(ctx, q)
	if err != nil {
		return Record{}, wrapBackendErr("select", err)
	}
	if len(rows) == 0 {
		return Record{}, ErrNotFound
	}
	return NewRecord(src, rows[0]), nil
}

// Query starts a composable query through the given source.
func (a *Accessor) Query(src Source) *QueryBuilder {
	return &QueryBuilder{accessor: a, source: src}
}

// Create inserts a new record through the given source. When the source
// is a subtype, the equality terms of its row filter are injected as
// defaults so the created record is immediately visible through the same
// subtype. Caller-supplied values always win; a value contradicting the
// predicate is stored as given (and will simply be invisible through the
// subtype) unless the subtype was registered with WithEnforcedPredicate,
// in which case the create fails with ConstraintViolationError.
//
// A missing uuid-typed primary key is generated here, so the returned
// record always carries its identifier.
func (a *Accessor) Create(ctx context.Context, src Source, values map[string]any) (Record, error) {
	base, _ := src.baseEntity()
	row := copyValues(values)

	if pred, ok := src.rowFilter(); ok {
		for field, value := range pred.Defaults() {
			if _, set := row[field]; !set {
				row[field] = value
			}
		}
		if src.enforced() && !pred.Matches(row) {
			return Record{}, &ConstraintViolationError{Constraint: "subtype predicate " + src.Name()}
		}
	}

	pk := base.PrimaryKey()
	if _, set := row[pk]; !set {
		if field, ok := base.Field(pk); ok && field.Type == FieldTypeUUID {
			row[pk] = uuid.New()
		}
	}

	if err := a.backend.Insert(ctx, src.Table(), row); err != nil {
		return Record{}, wrapBackendErr("insert", err)
	}
	return Record{source: src, values: row}, nil
}

// Update applies field changes to every row matching the filter, scoped
// by the source's row filter, and returns the affected-row count.
func (a *Accessor) Update(ctx context.Context, src Source, filter Predicate, values map[string]any) (int64, error) {
	var extra []Condition
	if filter != nil {
		extra = filter.Conditions()
	}
	q := Query{Table: src.Table(), Conditions: a.scopedConditions(src, extra)}
	count, err := a.backend.Update(ctx, q, copyValues(values))
	if err != nil {
		return 0, wrapBackendErr("update", err)
	}
	return count, nil
}

// Delete removes every row matching the filter, scoped by the source's
// row filter, and returns the affected-row count.
func (a *Accessor) Delete(ctx context.Context, src Source, filter Predicate) (int64, error) {
	var extra []Condition
	if filter != nil {
		extra = filter.Conditions()
	}
	q := Query{Table: src.Table(), Conditions: a.scopedConditions(src, extra)}
	count, err := a.backend.Delete(ctx, q)
	if err != nil {
		return 0, wrapBackendErr("delete", err)
	}
	return count, nil
}

// Save persists a record's current field values, re-applying the
// producing subtype's defaults for any field removed since materialization.
func (a *Accessor) Save(ctx context.Context, rec Record) (int64, error) {
	base, _ := rec.source.baseEntity()
	id := rec.ID()
	if id == nil {
		return 0, &ConstraintViolationError{Constraint: "primary key " + base.PrimaryKey()}
	}
	values := rec.Values()
	if pred, ok := rec.source.rowFilter(); ok {
		for field, value := range pred.Defaults() {
			if _, set := values[field]; !set {
				values[field] = value
			}
		}
	}
	delete(values, base.PrimaryKey())
	q := Query{
		Table:      rec.source.Table(),
		Conditions: []Condition{{Field: base.PrimaryKey(), Op: OpEq, Value: id}},
	}
	count, err := a.backend.Update(ctx, q, values)
	if err != nil {
		return 0, wrapBackendErr("update", err)
	}
	return count, nil
}

// ResolveRelation traverses a relation declared on the record's base
// entity. Records produced through a subtype resolve exactly as if they
// had been produced through the base entity: foreign-key and join-table
// names derive from the base identity, one level up. Has-one relations
// yield at most one element.
func (a *Accessor) ResolveRelation(ctx context.Context, rec Record, name string) ([]Record, error) {
	rel, err := a.registry.relation(rec.source, name)
	if err != nil {
		return nil, err
	}

	base, _ := rec.source.baseEntity()
	id := rec.values[base.PrimaryKey()]
	if id == nil {
		return nil, &RelationResolutionError{Relation: name, Reason: "record has no primary-key value"}
	}

	q := Query{Table: rel.target.Table()}
	switch rel.Kind {
	case RelationHasOne, RelationHasMany:
		q.Conditions = []Condition{{Field: rel.ForeignKey, Op: OpEq, Value: id}}
		if rel.Kind == RelationHasOne {
			q.Limit = 1
		}
	case RelationManyToMany:
		q.Join = &Join{
			Table:      rel.JoinTable,
			LocalKey:   rel.ForeignKey,
			LocalValue: id,
			TargetKey:  rel.TargetKey,
			TargetPK:   rel.target.PrimaryKey(),
		}
	}

	rows, err := a.backend.Select(ctx, q)
	if err != nil {
		return nil, wrapBackendErr("select", err)
	}
	return materialize(rel.target, rows), nil
}

// ResolveOne traverses a relation expected to yield a single record,
// returning ErrNotFound when it yields none.
func (a *Accessor) ResolveOne(ctx context.Context, rec Record, name string) (Record, error) {
	records, err := a.ResolveRelation(ctx, rec, name)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, ErrNotFound
	}
	return records[0], nil
}
