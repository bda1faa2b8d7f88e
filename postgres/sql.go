package postgres

import (
	"fmt"
	"sort"
	"strings"

	"github.com/scopedrows/rowscope"
)

// quoteIdent quotes a SQL identifier with double quotes doubled.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// argList collects positional arguments while SQL text is assembled.
type argList struct {
	args []any
}

func (a *argList) add(value any) string {
	a.args = append(a.args, value)
	return fmt.Sprintf("$%d", len(a.args))
}

// renderCondition renders one comparison, optionally qualified with a
// table alias. An empty IN list can match nothing and renders as FALSE.
func renderCondition(cond rowscope.Condition, alias string, args *argList) string {
	field := quoteIdent(cond.Field)
	if alias != "" {
		field = alias + "." + field
	}
	switch cond.Op {
	case rowscope.OpIn:
		if len(cond.Values) == 0 {
			return "FALSE"
		}
		placeholders := make([]string, len(cond.Values))
		for i, v := range cond.Values {
			placeholders[i] = args.add(v)
		}
		return fmt.Sprintf("%s IN (%s)", field, strings.Join(placeholders, ", "))
	default:
		return fmt.Sprintf("%s = %s", field, args.add(cond.Value))
	}
}

func renderWhere(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}

func renderOrderBy(sorts []rowscope.Sort, alias string) string {
	if len(sorts) == 0 {
		return ""
	}
	parts := make([]string, len(sorts))
	for i, s := range sorts {
		field := quoteIdent(s.Field)
		if alias != "" {
			field = alias + "." + field
		}
		direction := "ASC"
		if s.Direction == rowscope.SortDesc {
			direction = "DESC"
		}
		parts[i] = field + " " + direction
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func renderPagination(limit, offset int, args *argList) string {
	var b strings.Builder
	if limit > 0 {
		b.WriteString(" LIMIT " + args.add(limit))
	}
	if offset > 0 {
		b.WriteString(" OFFSET " + args.add(offset))
	}
	return b.String()
}

// buildSelect renders a query into SQL and positional arguments.
func buildSelect(q rowscope.Query) (string, []any) {
	args := &argList{}

	if q.Join != nil {
		conditions := []string{
			fmt.Sprintf("j.%s = %s", quoteIdent(q.Join.LocalKey), args.add(q.Join.LocalValue)),
		}
		for _, cond := range q.Conditions {
			conditions = append(conditions, renderCondition(cond, "t", args))
		}
		sql := fmt.Sprintf(
			"SELECT t.* FROM %s AS t JOIN %s AS j ON j.%s = t.%s",
			quoteIdent(q.Table),
			quoteIdent(q.Join.Table),
			quoteIdent(q.Join.TargetKey),
			quoteIdent(q.Join.TargetPK),
		) + renderWhere(conditions) + renderOrderBy(q.Sorts, "t") + renderPagination(q.Limit, q.Offset, args)
		return sql, args.args
	}

	conditions := make([]string, 0, len(q.Conditions))
	for _, cond := range q.Conditions {
		conditions = append(conditions, renderCondition(cond, "", args))
	}
	sql := "SELECT * FROM " + quoteIdent(q.Table) +
		renderWhere(conditions) + renderOrderBy(q.Sorts, "") + renderPagination(q.Limit, q.Offset, args)
	return sql, args.args
}

func buildCount(q rowscope.Query) (string, []any) {
	args := &argList{}
	conditions := make([]string, 0, len(q.Conditions))
	for _, cond := range q.Conditions {
		conditions = append(conditions, renderCondition(cond, "", args))
	}
	return "SELECT COUNT(*) FROM " + quoteIdent(q.Table) + renderWhere(conditions), args.args
}

// buildInsert renders an insert with columns in sorted order so the
// statement text is deterministic for a given row shape.
func buildInsert(table string, values rowscope.Row) (string, []any) {
	columns := make([]string, 0, len(values))
	for column := range values {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	args := &argList{}
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = quoteIdent(column)
		placeholders[i] = args.add(values[column])
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
	)
	return sql, args.args
}

func buildUpdate(q rowscope.Query, values rowscope.Row) (string, []any) {
	columns := make([]string, 0, len(values))
	for column := range values {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	args := &argList{}
	assignments := make([]string, len(columns))
	for i, column := range columns {
		assignments[i] = quoteIdent(column) + " = " + args.add(values[column])
	}
	conditions := make([]string, 0, len(q.Conditions))
	for _, cond := range q.Conditions {
		conditions = append(conditions, renderCondition(cond, "", args))
	}
	sql := "UPDATE " + quoteIdent(q.Table) + " SET " + strings.Join(assignments, ", ") + renderWhere(conditions)
	return sql, args.args
}

func buildDelete(q rowscope.Query) (string, []any) {
	args := &argList{}
	conditions := make([]string, 0, len(q.Conditions))
	for _, cond := range q.Conditions {
		conditions = append(conditions, renderCondition(cond, "", args))
	}
	return "DELETE FROM " + quoteIdent(q.Table) + renderWhere(conditions), args.args
}
