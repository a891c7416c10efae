package engine

import (
	"context"
	"errors"
	"net"
	"reflect"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// RowStream yields ordered rows from one executed query. The consumer pulls
// rows incrementally; Close releases the store-side cursor and must always
// be called. Cancelling the query context closes the cursor as well.
type RowStream interface {
	Columns() []string
	Next() bool
	Scan(dest ...any) error
	Row() (map[string]any, error)
	Err() error
	Close() error
}

// QueryRunner executes one parameterized query and streams rows back.
// Executor is the production implementation; tests substitute fakes.
type QueryRunner interface {
	Query(ctx context.Context, query string, args ...any) (RowStream, error)
}

// Executor submits compiled queries to ClickHouse. It applies a per-query
// deadline and maps store failures onto the engine error taxonomy. It never
// retries: retry policy belongs to the caller.
type Executor struct {
	conn    driver.Conn
	timeout time.Duration
}

// NewExecutor wraps a ClickHouse connection. timeout bounds each query;
// zero means no deadline beyond the caller's context.
func NewExecutor(conn driver.Conn, timeout time.Duration) *Executor {
	return &Executor{conn: conn, timeout: timeout}
}

// Query runs a compiled query with positionally bound parameters and
// returns the row stream.
func (e *Executor) Query(ctx context.Context, query string, args ...any) (RowStream, error) {
	cancel := func() {}
	if e.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	rows, err := e.conn.Query(ctx, query, args...)
	if err != nil {
		cancel()
		return nil, wrapStoreError(err)
	}
	return &chRows{rows: rows, cancel: cancel}, nil
}

// Count runs a single-value count query and returns the total.
func (e *Executor) Count(ctx context.Context, query string, args ...any) (uint64, error) {
	stream, err := e.Query(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	var total uint64
	if stream.Next() {
		if err := stream.Scan(&total); err != nil {
			return 0, errExecution(err)
		}
	}
	if err := stream.Err(); err != nil {
		return 0, err
	}
	return total, nil
}

// Exec runs a statement that returns no rows.
func (e *Executor) Exec(ctx context.Context, query string, args ...any) error {
	cancel := func() {}
	if e.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
	}
	defer cancel()
	if err := e.conn.Exec(ctx, query, args...); err != nil {
		return wrapStoreError(err)
	}
	return nil
}

// Ping verifies store connectivity.
func (e *Executor) Ping(ctx context.Context) error {
	if err := e.conn.Ping(ctx); err != nil {
		return wrapStoreError(err)
	}
	return nil
}

// wrapStoreError maps a raw store failure onto the engine taxonomy without
// leaking store error text into validation channels.
func wrapStoreError(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errQueryTimeout(err)
	}
	if errors.Is(err, clickhouse.ErrAcquireConnTimeout) {
		return errStoreUnavailable(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errStoreUnavailable(err)
	}
	return errExecution(err)
}

// chRows adapts driver.Rows to RowStream.
type chRows struct {
	rows   driver.Rows
	cancel context.CancelFunc
}

func (r *chRows) Columns() []string { return r.rows.Columns() }

func (r *chRows) Next() bool { return r.rows.Next() }

func (r *chRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }

// Row scans the current row into a name-keyed map using the store's
// reported scan types.
func (r *chRows) Row() (map[string]any, error) {
	types := r.rows.ColumnTypes()
	dest := make([]any, len(types))
	for i, ct := range types {
		dest[i] = reflect.New(ct.ScanType()).Interface()
	}
	if err := r.rows.Scan(dest...); err != nil {
		return nil, errExecution(err)
	}
	row := make(map[string]any, len(types))
	for i, name := range r.rows.Columns() {
		row[name] = reflect.ValueOf(dest[i]).Elem().Interface()
	}
	return row, nil
}

func (r *chRows) Err() error {
	if err := r.rows.Err(); err != nil {
		return wrapStoreError(err)
	}
	return nil
}

func (r *chRows) Close() error {
	defer r.cancel()
	return r.rows.Close()
}

// CollectRows drains a stream into memory. Only bounded result sets
// (table pages, samples, aggregates) go through here; export paths consume
// the stream directly.
func CollectRows(stream RowStream) ([]map[string]any, error) {
	rows := make([]map[string]any, 0)
	for stream.Next() {
		row, err := stream.Row()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}
