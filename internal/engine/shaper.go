package engine

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"time"
)

// TablePage is the paginated table payload. Field names are part of the
// client contract and must stay stable.
type TablePage struct {
	Rows     []map[string]any `json:"rows"`
	Total    uint64           `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
}

// Point is one chart data point.
type Point struct {
	X any `json:"x"`
	Y any `json:"y"`
}

// Series is one named chart series.
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// Chart is the chart payload: one series per aggregate alias, all sharing
// the x ordering produced by the store.
type Chart struct {
	Series []Series `json:"series"`
}

// ShapeTable materializes one page of rows plus the separately computed
// total into the table payload.
func ShapeTable(stream RowStream, total uint64, page, pageSize int) (*TablePage, error) {
	rows, err := CollectRows(stream)
	if err != nil {
		return nil, err
	}
	return &TablePage{Rows: rows, Total: total, Page: page, PageSize: pageSize}, nil
}

// ShapeChart reshapes grouped rows into named series. xField is the group
// key used for the x axis; each alias in yAliases becomes one series. Row
// order is preserved as produced by the store, never re-sorted here.
func ShapeChart(stream RowStream, xField string, yAliases []string) (*Chart, error) {
	chart := &Chart{Series: make([]Series, len(yAliases))}
	for i, alias := range yAliases {
		chart.Series[i].Name = alias
	}
	for stream.Next() {
		row, err := stream.Row()
		if err != nil {
			return nil, err
		}
		x, ok := row[xField]
		if !ok {
			return nil, errExecution(fmt.Errorf("x field %q missing from result row", xField))
		}
		for i, alias := range yAliases {
			chart.Series[i].Points = append(chart.Series[i].Points, Point{X: x, Y: row[alias]})
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return chart, nil
}

// ExportFormat selects the export encoding.
type ExportFormat string

const (
	FormatCSV    ExportFormat = "csv"
	FormatNDJSON ExportFormat = "ndjson"
)

// ContentType returns the transport content type for the format.
func (f ExportFormat) ContentType() string {
	if f == FormatNDJSON {
		return "application/x-ndjson"
	}
	return "text/csv"
}

// Extension returns the file name extension for the format.
func (f ExportFormat) Extension() string {
	if f == FormatNDJSON {
		return "ndjson"
	}
	return "csv"
}

// StreamExport writes the stream to w incrementally in the chosen format
// and returns the number of rows written. Rows are never accumulated in
// memory; the writer provides backpressure.
func StreamExport(w io.Writer, stream RowStream, format ExportFormat) (int64, error) {
	if format == FormatNDJSON {
		return streamNDJSON(w, stream)
	}
	return streamCSV(w, stream)
}

func streamCSV(w io.Writer, stream RowStream) (int64, error) {
	cw := csv.NewWriter(w)
	columns := stream.Columns()
	if err := cw.Write(columns); err != nil {
		return 0, fmt.Errorf("failed to write csv header: %w", err)
	}

	var count int64
	record := make([]string, len(columns))
	for stream.Next() {
		row, err := stream.Row()
		if err != nil {
			return count, err
		}
		for i, col := range columns {
			record[i] = formatCell(row[col])
		}
		if err := cw.Write(record); err != nil {
			return count, fmt.Errorf("failed to write csv row: %w", err)
		}
		count++
		if count%1000 == 0 {
			cw.Flush()
			if err := cw.Error(); err != nil {
				return count, fmt.Errorf("failed to flush csv: %w", err)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return count, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return count, fmt.Errorf("failed to flush csv: %w", err)
	}
	return count, nil
}

func streamNDJSON(w io.Writer, stream RowStream) (int64, error) {
	enc := json.NewEncoder(w)
	var count int64
	for stream.Next() {
		row, err := stream.Row()
		if err != nil {
			return count, err
		}
		if err := enc.Encode(row); err != nil {
			return count, fmt.Errorf("failed to encode row: %w", err)
		}
		count++
	}
	if err := stream.Err(); err != nil {
		return count, err
	}
	return count, nil
}

// formatCell renders one value for CSV. Nullable columns scan as pointers,
// so non-nil pointers are dereferenced and NULL becomes the empty string.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		return formatCell(rv.Elem().Interface())
	}
	return fmt.Sprint(v)
}
