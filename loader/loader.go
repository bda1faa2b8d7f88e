// Package loader provides batched record fetching over a rowscope
// accessor, collapsing N concurrent lookups into a single IN query.
package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/scopedrows/rowscope"
)

// recordKey lets arbitrary primary-key values ride through dataloader,
// which identifies keys by their string form.
type recordKey struct {
	id any
}

func (k recordKey) String() string { return fmt.Sprintf("%v", k.id) }
func (k recordKey) Raw() any       { return k.id }

// RecordLoader batches Find-by-id calls through one source.
type RecordLoader struct {
	loader *dataloader.Loader
}

// NewRecordLoader creates a loader that resolves primary keys through
// the given source. The source's row filter applies: ids outside the
// filter resolve to ErrNotFound.
func NewRecordLoader(accessor *rowscope.Accessor, src rowscope.Source) *RecordLoader {
	base, _ := rowscope.BaseOf(src)
	pk := base.PrimaryKey()

	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]any, len(keys))
		for i, k := range keys {
			ids[i] = k.Raw()
		}

		records, err := accessor.Query(src).Where(rowscope.In(pk, ids...)).All(ctx)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		byID := make(map[string]rowscope.Record, len(records))
		for _, rec := range records {
			byID[fmt.Sprintf("%v", rec.ID())] = rec
		}

		results := make([]*dataloader.Result, len(keys))
		for i, k := range keys {
			if rec, ok := byID[k.String()]; ok {
				results[i] = &dataloader.Result{Data: rec}
			} else {
				results[i] = &dataloader.Result{Error: rowscope.ErrNotFound}
			}
		}
		return results
	}

	return &RecordLoader{
		loader: dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond)),
	}
}

// Load resolves one primary key, batching with concurrent calls.
func (l *RecordLoader) Load(ctx context.Context, id any) (rowscope.Record, error) {
	value, err := l.loader.Load(ctx, recordKey{id: id})()
	if err != nil {
		return rowscope.Record{}, err
	}
	return value.(rowscope.Record), nil
}

// RelationLoader batches relation traversals for records of one source,
// collapsing per-record foreign-key lookups into a single IN query.
// Many-to-many relations cannot be batched this way and are rejected at
// construction.
type RelationLoader struct {
	loader *dataloader.Loader
	base   *rowscope.Entity
}

// NewRelationLoader creates a loader for a relation declared on the
// source's base entity. The same single-level subtype redirection as
// Accessor.ResolveRelation applies.
func NewRelationLoader(accessor *rowscope.Accessor, src rowscope.Source, relationName string) (*RelationLoader, error) {
	base, depth := rowscope.BaseOf(src)
	if depth > 1 {
		return nil, &rowscope.RelationResolutionError{
			Relation: relationName,
			Reason:   fmt.Sprintf("source %q is a subtype chain %d levels deep; only one level is supported", src.Name(), depth),
		}
	}

	rel, ok := accessor.Registry().Relation(base.Name(), relationName)
	if !ok {
		return nil, &rowscope.RelationResolutionError{
			Relation: relationName,
			Reason:   fmt.Sprintf("no relation declared on entity %q", base.Name()),
		}
	}
	if rel.Kind == rowscope.RelationManyToMany {
		return nil, &rowscope.RelationResolutionError{
			Relation: relationName,
			Reason:   "many-to-many relations cannot be batched",
		}
	}

	target, ok := accessor.Registry().Entity(rel.Target)
	if !ok {
		return nil, &rowscope.RelationResolutionError{
			Relation: relationName,
			Reason:   fmt.Sprintf("unknown target entity %q", rel.Target),
		}
	}

	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]any, len(keys))
		for i, k := range keys {
			ids[i] = k.Raw()
		}

		records, err := accessor.Query(target).Where(rowscope.In(rel.ForeignKey, ids...)).All(ctx)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		grouped := make(map[string][]rowscope.Record)
		for _, rec := range records {
			fk, _ := rec.Get(rel.ForeignKey)
			key := fmt.Sprintf("%v", fk)
			grouped[key] = append(grouped[key], rec)
		}

		results := make([]*dataloader.Result, len(keys))
		for i, k := range keys {
			results[i] = &dataloader.Result{Data: grouped[k.String()]}
		}
		return results
	}

	return &RelationLoader{
		loader: dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond)),
		base:   base,
	}, nil
}

// LoadRelated resolves the relation for one record, batching with
// concurrent calls. Records with no related rows yield an empty slice.
func (l *RelationLoader) LoadRelated(ctx context.Context, rec rowscope.Record) ([]rowscope.Record, error) {
	id := rec.ID()
	if id == nil {
		return nil, &rowscope.RelationResolutionError{Reason: "record has no primary-key value"}
	}
	value, err := l.loader.Load(ctx, recordKey{id: id})()
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	return value.([]rowscope.Record), nil
}
