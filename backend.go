package rowscope

import "context"

// Row is one raw storage row keyed by field name.
type Row = map[string]any

// Backend is the external storage collaborator. It executes composed
// queries and owns all I/O, retries and timeouts; this package only
// builds the Query values it receives.
//
// Implementations must map "matched nothing" onto empty results (never
// an error) and are encouraged to map constraint failures onto
// ConstraintViolationError so callers can classify them.
type Backend interface {
	Select(ctx context.Context, q Query) ([]Row, error)
	Count(ctx context.Context, q Query) (int64, error)
	Insert(ctx context.Context, table string, values Row) error
	Update(ctx context.Context, q Query, values Row) (int64, error)
	Delete(ctx context.Context, q Query) (int64, error)
}
