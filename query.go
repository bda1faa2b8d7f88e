package rowscope

import "context"

// SortDirection represents ordering direction for sortable fields.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Sort captures one ordering criterion.
type Sort struct {
	Field     string
	Direction SortDirection
}

// Join describes a many-to-many traversal through a join table. The
// backend resolves it as: rows of the target table whose primary key
// appears in join-table rows matching LocalKey = LocalValue.
type Join struct {
	Table      string
	LocalKey   string
	LocalValue any
	TargetKey  string
	TargetPK   string
}

// Query is the backend-neutral form of a composed query. Conditions are
// always conjoined. A zero Limit means no limit.
type Query struct {
	Table      string
	Conditions []Condition
	Sorts      []Sort
	Limit      int
	Offset     int
	Join       *Join
}

// QueryBuilder composes a scoped query before execution. The source's
// row filter is injected when the builder executes, never by the caller.
type QueryBuilder struct {
	accessor   *Accessor
	source     Source
	conditions []Condition
	sorts      []Sort
	limit      int
	offset     int
}

// Where conjoins a caller predicate onto the query.
func (qb *QueryBuilder) Where(p Predicate) *QueryBuilder {
	if p != nil {
		qb.conditions = append(qb.conditions, p.Conditions()...)
	}
	return qb
}

// OrderBy appends an ordering criterion.
func (qb *QueryBuilder) OrderBy(field string, direction SortDirection) *QueryBuilder {
	qb.sorts = append(qb.sorts, Sort{Field: field, Direction: direction})
	return qb
}

// Limit caps the number of returned rows.
func (qb *QueryBuilder) Limit(n int) *QueryBuilder {
	qb.limit = n
	return qb
}

// Offset skips the first n rows.
func (qb *QueryBuilder) Offset(n int) *QueryBuilder {
	qb.offset = n
	return qb
}

func (qb *QueryBuilder) build() Query {
	return Query{
		Table:      qb.source.Table(),
		Conditions: qb.accessor.scopedConditions(qb.source, qb.conditions),
		Sorts:      qb.sorts,
		Limit:      qb.limit,
		Offset:     qb.offset,
	}
}

// All executes the query and materializes every matching row.
func (qb *QueryBuilder) All(ctx context.Context) ([]Record, error) {
	rows, err := qb.accessor.backend.Select(ctx, qb.build())
	if err != nil {
		return nil, wrapBackendErr("select", err)
	}
	return materialize(qb.source, rows), nil
}

// First executes the query with a limit of one and returns the single
// matching record, or ErrNotFound.
func (qb *QueryBuilder) First(ctx context.Context) (Record, error) {
	q := qb.build()
	q.Limit = 1
	rows, err := qb.accessor.backend.Select(ctx, q)
	if err != nil {
		return Record{}, wrapBackendErr("select", err)
	}
	if len(rows) == 0 {
		return Record{}, ErrNotFound
	}
	return NewRecord(qb.source, rows[0]), nil
}

// Count executes the query as a count, ignoring limit and offset.
func (qb *QueryBuilder) Count(ctx context.Context) (int64, error) {
	q := qb.build()
	q.Limit = 0
	q.Offset = 0
	count, err := qb.accessor.backend.Count(ctx, q)
	if err != nil {
		return 0, wrapBackendErr("count", err)
	}
	return count, nil
}

// AllWithCount executes the query and additionally returns the total
// number of matching rows with limit and offset stripped, for paginated
// listings that report an overall count alongside the page.
func (qb *QueryBuilder) AllWithCount(ctx context.Context) ([]Record, int64, error) {
	records, err := qb.All(ctx)
	if err != nil {
		return nil, 0, err
	}
	total, err := qb.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func materialize(src Source, rows []Row) []Record {
	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = NewRecord(src, row)
	}
	return records
}
