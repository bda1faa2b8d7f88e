// Package memory provides a map-backed rowscope.Backend. It exists as a
// test double and for examples; it applies the same query semantics a
// real backend would (conjoined conditions, ordering, limit and offset)
// over in-process tables.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/scopedrows/rowscope"
)

// Backend stores rows per table, guarded by a single lock. Rows are
// copied on the way in and out so callers can never alias stored state.
type Backend struct {
	mu     sync.RWMutex
	tables map[string][]rowscope.Row
}

// New creates an empty backend.
func New() *Backend {
	return &Backend{tables: make(map[string][]rowscope.Row)}
}

// Select returns every row matching the query.
func (b *Backend) Select(ctx context.Context, q rowscope.Query) ([]rowscope.Row, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []rowscope.Row
	if q.Join != nil {
		targetIDs, err := b.joinTargetIDs(q)
		if err != nil {
			return nil, err
		}
		for _, row := range b.tables[q.Table] {
			if !containsValue(targetIDs, row[q.Join.TargetPK]) {
				continue
			}
			if matchesAll(row, q.Conditions) {
				matched = append(matched, copyRow(row))
			}
		}
	} else {
		for _, row := range b.tables[q.Table] {
			if matchesAll(row, q.Conditions) {
				matched = append(matched, copyRow(row))
			}
		}
	}

	sortRows(matched, q.Sorts)
	return paginate(matched, q.Limit, q.Offset), nil
}

// Count returns the number of rows matching the query.
func (b *Backend) Count(ctx context.Context, q rowscope.Query) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var count int64
	for _, row := range b.tables[q.Table] {
		if matchesAll(row, q.Conditions) {
			count++
		}
	}
	return count, nil
}

// Insert appends a row to a table.
func (b *Backend) Insert(ctx context.Context, table string, values rowscope.Row) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tables[table] = append(b.tables[table], copyRow(values))
	return nil
}

// Update merges values into every matching row and returns the count.
func (b *Backend) Update(ctx context.Context, q rowscope.Query, values rowscope.Row) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var count int64
	for _, row := range b.tables[q.Table] {
		if matchesAll(row, q.Conditions) {
			for k, v := range values {
				row[k] = v
			}
			count++
		}
	}
	return count, nil
}

// Delete removes every matching row and returns the count.
func (b *Backend) Delete(ctx context.Context, q rowscope.Query) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.tables[q.Table][:0]
	var count int64
	for _, row := range b.tables[q.Table] {
		if matchesAll(row, q.Conditions) {
			count++
			continue
		}
		kept = append(kept, row)
	}
	b.tables[q.Table] = kept
	return count, nil
}

// joinTargetIDs resolves a many-to-many join clause into the set of
// target primary keys linked to the local value.
func (b *Backend) joinTargetIDs(q rowscope.Query) ([]any, error) {
	join := q.Join
	if join.Table == "" {
		return nil, fmt.Errorf("join clause missing table")
	}
	var ids []any
	localCond := rowscope.Condition{Field: join.LocalKey, Op: rowscope.OpEq, Value: join.LocalValue}
	for _, row := range b.tables[join.Table] {
		if localCond.Matches(row) {
			ids = append(ids, row[join.TargetKey])
		}
	}
	return ids, nil
}

func matchesAll(row rowscope.Row, conditions []rowscope.Condition) bool {
	for _, cond := range conditions {
		if !cond.Matches(row) {
			return false
		}
	}
	return true
}

func containsValue(haystack []any, needle any) bool {
	probe := rowscope.Condition{Op: rowscope.OpIn, Values: haystack, Field: "v"}
	return probe.Matches(rowscope.Row{"v": needle})
}

func copyRow(row rowscope.Row) rowscope.Row {
	clone := make(rowscope.Row, len(row))
	for k, v := range row {
		clone[k] = v
	}
	return clone
}

func sortRows(rows []rowscope.Row, sorts []rowscope.Sort) {
	if len(sorts) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, s := range sorts {
			cmp := compareValues(rows[i][s.Field], rows[j][s.Field])
			if cmp == 0 {
				continue
			}
			if s.Direction == rowscope.SortDesc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// compareValues orders two field values of the same logical type. Nil
// sorts first; unknown types compare by their printed form.
func compareValues(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}
	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func paginate(rows []rowscope.Row, limit, offset int) []rowscope.Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
