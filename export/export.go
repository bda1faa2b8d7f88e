// Package export streams scoped query results out as CSV or XLSX.
// Rows are fetched in primary-key-ordered pages so exports of large
// tables hold only one page in memory at a time.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/scopedrows/rowscope"
)

const defaultPageSize = 500

// Exporter writes records read through a rowscope accessor. The source's
// row filter applies to everything exported: exporting a subtype emits
// only the rows the subtype can see.
type Exporter struct {
	accessor *rowscope.Accessor
	pageSize int
}

// Option customizes an Exporter.
type Option func(*Exporter)

// WithPageSize sets how many rows are fetched per page.
func WithPageSize(size int) Option {
	return func(e *Exporter) {
		if size > 0 {
			e.pageSize = size
		}
	}
}

// NewExporter creates an exporter over the given accessor.
func NewExporter(accessor *rowscope.Accessor, opts ...Option) *Exporter {
	e := &Exporter{accessor: accessor, pageSize: defaultPageSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WriteCSV exports every record the source can see (optionally narrowed
// by filter) as CSV with a header row of the entity's fields.
func (e *Exporter) WriteCSV(ctx context.Context, w io.Writer, src rowscope.Source, filter rowscope.Predicate) error {
	base, _ := rowscope.BaseOf(src)
	fields := base.Fields()

	writer := csv.NewWriter(w)
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Name
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	err := e.eachPage(ctx, src, filter, func(records []rowscope.Record) error {
		for _, rec := range records {
			row := make([]string, len(fields))
			for i, f := range fields {
				value, _ := rec.Get(f.Name)
				row[i] = formatValue(value)
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write csv row: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

// WriteXLSX exports the same data as WriteCSV as a single-sheet workbook.
func (e *Exporter) WriteXLSX(ctx context.Context, w io.Writer, src rowscope.Source, filter rowscope.Predicate) error {
	base, _ := rowscope.BaseOf(src)
	fields := base.Fields()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)

	for i, field := range fields {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("failed to compute header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, field.Name); err != nil {
			return fmt.Errorf("failed to write header cell: %w", err)
		}
	}

	rowIndex := 2
	err := e.eachPage(ctx, src, filter, func(records []rowscope.Record) error {
		for _, rec := range records {
			for i, field := range fields {
				cell, err := excelize.CoordinatesToCellName(i+1, rowIndex)
				if err != nil {
					return fmt.Errorf("failed to compute cell: %w", err)
				}
				value, _ := rec.Get(field.Name)
				if err := f.SetCellValue(sheet, cell, formatValue(value)); err != nil {
					return fmt.Errorf("failed to write cell: %w", err)
				}
			}
			rowIndex++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// eachPage walks the scoped query page by page, ordered by primary key
// so pagination is stable.
func (e *Exporter) eachPage(ctx context.Context, src rowscope.Source, filter rowscope.Predicate, fn func([]rowscope.Record) error) error {
	base, _ := rowscope.BaseOf(src)
	offset := 0
	for {
		records, err := e.accessor.Query(src).
			Where(filter).
			OrderBy(base.PrimaryKey(), rowscope.SortAsc).
			Limit(e.pageSize).
			Offset(offset).
			All(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch export page: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := fn(records); err != nil {
			return err
		}
		if len(records) < e.pageSize {
			return nil
		}
		offset += e.pageSize
	}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
