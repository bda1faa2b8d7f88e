package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scopedrows/rowscope"
)

// Backend executes rowscope queries against PostgreSQL. It satisfies
// rowscope.Backend and owns all I/O; retry policy, if any, belongs to
// the caller or the pool configuration, not this layer.
type Backend struct {
	pool *pgxpool.Pool
}

// NewBackend creates a backend over an existing connection pool.
func NewBackend(pool *pgxpool.Pool) *Backend {
	return &Backend{pool: pool}
}

// Select executes the query and returns matching rows as field maps.
func (b *Backend) Select(ctx context.Context, q rowscope.Query) ([]rowscope.Row, error) {
	sql, args := buildSelect(q)
	rows, err := b.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError("select", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var result []rowscope.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		row := make(rowscope.Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("select", err)
	}
	return result, nil
}

// Count executes the query as a COUNT(*).
func (b *Backend) Count(ctx context.Context, q rowscope.Query) (int64, error) {
	sql, args := buildCount(q)
	var count int64
	if err := b.pool.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, mapError("count", err)
	}
	return count, nil
}

// Insert stores one row.
func (b *Backend) Insert(ctx context.Context, table string, values rowscope.Row) error {
	sql, args := buildInsert(table, values)
	if _, err := b.pool.Exec(ctx, sql, args...); err != nil {
		return mapError("insert", err)
	}
	return nil
}

// Update merges values into matching rows and returns the count.
func (b *Backend) Update(ctx context.Context, q rowscope.Query, values rowscope.Row) (int64, error) {
	sql, args := buildUpdate(q, values)
	tag, err := b.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError("update", err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes matching rows and returns the count.
func (b *Backend) Delete(ctx context.Context, q rowscope.Query) (int64, error) {
	sql, args := buildDelete(q)
	tag, err := b.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, mapError("delete", err)
	}
	return tag.RowsAffected(), nil
}

// mapError lifts pgx errors onto the rowscope taxonomy. ErrNoRows
// becomes ErrNotFound, integrity violations (SQLSTATE class 23) become
// ConstraintViolationError, and everything else is wrapped as a
// BackendError.
func mapError(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return rowscope.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		constraint := pgErr.ConstraintName
		if constraint == "" {
			constraint = pgErr.Code
		}
		return &rowscope.ConstraintViolationError{Constraint: constraint, Err: err}
	}
	return &rowscope.BackendError{Op: op, Err: err}
}
