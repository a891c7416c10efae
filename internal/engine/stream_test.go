package engine

import (
	"context"
	"fmt"
	"reflect"
)

// fakeStream is an in-memory RowStream for tests.
type fakeStream struct {
	columns []string
	rows    [][]any
	idx     int
	err     error
	closed  bool
}

func (s *fakeStream) Columns() []string { return s.columns }

func (s *fakeStream) Next() bool {
	if s.idx >= len(s.rows) {
		return false
	}
	s.idx++
	return true
}

func (s *fakeStream) Scan(dest ...any) error {
	row := s.rows[s.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan expects %d destinations, got %d", len(row), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d).Elem()
		dv.Set(reflect.ValueOf(row[i]).Convert(dv.Type()))
	}
	return nil
}

func (s *fakeStream) Row() (map[string]any, error) {
	row := s.rows[s.idx-1]
	out := make(map[string]any, len(s.columns))
	for i, col := range s.columns {
		out[col] = row[i]
	}
	return out, nil
}

func (s *fakeStream) Err() error { return s.err }

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// fakeRunner resolves queries against canned streams and records every
// query it served.
type fakeRunner struct {
	streams map[string]func() *fakeStream
	queries []string
}

func (r *fakeRunner) Query(ctx context.Context, query string, args ...any) (RowStream, error) {
	r.queries = append(r.queries, query)
	if make, ok := r.streams[query]; ok {
		return make(), nil
	}
	return nil, errExecution(fmt.Errorf("unexpected query: %s", query))
}

// testEventsTable is the descriptor used across engine tests.
func testEventsTable() *TableDescriptor {
	desc := &TableDescriptor{
		Name:       "events",
		Tiebreaker: "id",
		Columns: []Column{
			{Name: "id", Type: TypeString, StoreType: "String"},
			{Name: "status", Type: TypeString, StoreType: "String"},
			{Name: "endpoint", Type: TypeString, StoreType: "LowCardinality(String)"},
			{Name: "request_id", Type: TypeString, StoreType: "String"},
			{Name: "latency_ms", Type: TypeNumber, StoreType: "Float64"},
			{Name: "retries", Type: TypeNumber, StoreType: "UInt8"},
			{Name: "is_error", Type: TypeBoolean, StoreType: "Bool"},
			{Name: "created_at", Type: TypeDatetime, StoreType: "DateTime"},
		},
	}
	desc.byName = make(map[string]*Column, len(desc.Columns))
	for i := range desc.Columns {
		desc.byName[desc.Columns[i].Name] = &desc.Columns[i]
	}
	return desc
}
