package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// ColumnType is the closed set of declared column types the engine
// validates literal values against.
type ColumnType string

const (
	TypeString   ColumnType = "string"
	TypeNumber   ColumnType = "number"
	TypeDatetime ColumnType = "datetime"
	TypeBoolean  ColumnType = "boolean"
)

// Column describes one column of a registered table. StoreType keeps the
// store's own type name for display purposes.
type Column struct {
	Name      string     `json:"name"`
	Type      ColumnType `json:"type"`
	StoreType string     `json:"store_type"`
}

// TableDescriptor is the read-only schema view of one registered table.
// Tiebreaker is the column appended to every sort so pagination stays
// deterministic; it is the table's first primary key column, falling back
// to the first column.
type TableDescriptor struct {
	Name       string   `json:"name"`
	Columns    []Column `json:"columns"`
	Tiebreaker string   `json:"tiebreaker"`

	byName map[string]*Column
}

// Column looks up a column by name.
func (t *TableDescriptor) Column(name string) (*Column, bool) {
	c, ok := t.byName[name]
	return c, ok
}

type schemaSnapshot struct {
	tables map[string]*TableDescriptor
	names  []string
}

// SchemaRegistry is the single identifier-whitelisting authority. It holds
// an immutable snapshot of table descriptors loaded from the store's system
// tables; Invalidate drops the snapshot, the next read rebuilds it. Readers
// never block each other: the snapshot is swapped atomically.
type SchemaRegistry struct {
	runner QueryRunner

	snap      atomic.Pointer[schemaSnapshot]
	refreshMu sync.Mutex
}

// NewSchemaRegistry creates a registry backed by the given query runner.
func NewSchemaRegistry(runner QueryRunner) *SchemaRegistry {
	return &SchemaRegistry{runner: runner}
}

const (
	tableListQuery = `SELECT name FROM system.tables WHERE database = currentDatabase() AND name NOT LIKE '.%' ORDER BY name`
	columnQuery    = `SELECT name, type, is_in_primary_key FROM system.columns WHERE database = currentDatabase() AND table = ? ORDER BY position`
)

// Describe returns the descriptor for a table, or an UnknownTable error.
func (r *SchemaRegistry) Describe(ctx context.Context, table string) (*TableDescriptor, error) {
	snap, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	desc, ok := snap.tables[table]
	if !ok {
		return nil, errUnknownTable(table)
	}
	return desc, nil
}

// ListTables returns registered table names in stable order.
func (r *SchemaRegistry) ListTables(ctx context.Context) ([]string, error) {
	snap, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.names, nil
}

// SampleRows fetches up to limit unfiltered rows from a table.
func (r *SchemaRegistry) SampleRows(ctx context.Context, table string, limit int) ([]map[string]any, error) {
	desc, err := r.Describe(ctx, table)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	stream, err := r.runner.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT ?", quoteIdent(desc.Name)), limit)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	return CollectRows(stream)
}

// Invalidate drops the cached snapshot; the next read rebuilds it from the
// store. In-flight requests keep the snapshot they already hold.
func (r *SchemaRegistry) Invalidate() {
	r.snap.Store(nil)
}

// Refresh rebuilds the snapshot from store metadata and swaps it in.
func (r *SchemaRegistry) Refresh(ctx context.Context) error {
	_, err := r.refresh(ctx)
	return err
}

func (r *SchemaRegistry) refresh(ctx context.Context) (*schemaSnapshot, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	snap, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	r.snap.Store(snap)
	return snap, nil
}

// snapshot returns the cached snapshot, rebuilding when it is missing. The
// rebuilt snapshot is handed back directly so a concurrent Invalidate can
// never leave a reader holding nil.
func (r *SchemaRegistry) snapshot(ctx context.Context) (*schemaSnapshot, error) {
	if snap := r.snap.Load(); snap != nil {
		return snap, nil
	}
	return r.refresh(ctx)
}

func (r *SchemaRegistry) load(ctx context.Context) (*schemaSnapshot, error) {
	stream, err := r.runner.Query(ctx, tableListQuery)
	if err != nil {
		return nil, err
	}
	var names []string
	for stream.Next() {
		var name string
		if err := stream.Scan(&name); err != nil {
			stream.Close()
			return nil, errExecution(err)
		}
		names = append(names, name)
	}
	if err := closeStream(stream); err != nil {
		return nil, err
	}

	snap := &schemaSnapshot{tables: make(map[string]*TableDescriptor, len(names)), names: names}
	for _, name := range names {
		desc, err := r.loadTable(ctx, name)
		if err != nil {
			return nil, err
		}
		snap.tables[name] = desc
	}
	return snap, nil
}

func (r *SchemaRegistry) loadTable(ctx context.Context, table string) (*TableDescriptor, error) {
	stream, err := r.runner.Query(ctx, columnQuery, table)
	if err != nil {
		return nil, err
	}
	desc := &TableDescriptor{Name: table, byName: make(map[string]*Column)}
	for stream.Next() {
		var (
			name, storeType string
			inPrimaryKey    uint8
		)
		if err := stream.Scan(&name, &storeType, &inPrimaryKey); err != nil {
			stream.Close()
			return nil, errExecution(err)
		}
		desc.Columns = append(desc.Columns, Column{Name: name, Type: columnTypeOf(storeType), StoreType: storeType})
		if inPrimaryKey != 0 && desc.Tiebreaker == "" {
			desc.Tiebreaker = name
		}
	}
	if err := closeStream(stream); err != nil {
		return nil, err
	}
	if len(desc.Columns) > 0 && desc.Tiebreaker == "" {
		desc.Tiebreaker = desc.Columns[0].Name
	}
	for i := range desc.Columns {
		desc.byName[desc.Columns[i].Name] = &desc.Columns[i]
	}
	return desc, nil
}

func closeStream(stream RowStream) error {
	if err := stream.Err(); err != nil {
		stream.Close()
		return errExecution(err)
	}
	return stream.Close()
}

// columnTypeOf maps a ClickHouse type name to the engine's declared type.
// Wrappers like Nullable(...) and LowCardinality(...) are unwrapped first.
func columnTypeOf(storeType string) ColumnType {
	t := storeType
	for {
		switch {
		case strings.HasPrefix(t, "Nullable(") && strings.HasSuffix(t, ")"):
			t = t[len("Nullable(") : len(t)-1]
		case strings.HasPrefix(t, "LowCardinality(") && strings.HasSuffix(t, ")"):
			t = t[len("LowCardinality(") : len(t)-1]
		default:
			switch {
			case t == "Bool":
				return TypeBoolean
			case strings.HasPrefix(t, "Int") || strings.HasPrefix(t, "UInt") ||
				strings.HasPrefix(t, "Float") || strings.HasPrefix(t, "Decimal"):
				return TypeNumber
			case strings.HasPrefix(t, "Date") || strings.HasPrefix(t, "DateTime"):
				return TypeDatetime
			default:
				return TypeString
			}
		}
	}
}
