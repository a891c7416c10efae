package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
)

type fakeNetError struct{}

func (fakeNetError) Error() string   { return "dial tcp: connection refused" }
func (fakeNetError) Timeout() bool   { return false }
func (fakeNetError) Temporary() bool { return true }

func TestWrapStoreError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), KindQueryTimeout},
		{"pool exhausted", clickhouse.ErrAcquireConnTimeout, KindStoreUnavailable},
		{"network", fakeNetError{}, KindStoreUnavailable},
		{"wrapped network", fmt.Errorf("query: %w", fakeNetError{}), KindStoreUnavailable},
		{"other", errors.New("code: 62, syntax error"), KindExecutionError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wrapped := wrapStoreError(tc.err)
			assert.Equal(t, tc.kind, wrapped.Kind)
			assert.ErrorIs(t, wrapped, tc.err)
		})
	}
}

func TestWrapStoreErrorHidesDetailFromValidation(t *testing.T) {
	wrapped := wrapStoreError(errors.New("boom"))
	assert.False(t, wrapped.IsValidation())
}

func TestCollectRows(t *testing.T) {
	stream := &fakeStream{
		columns: []string{"id"},
		rows:    [][]any{{"a"}, {"b"}},
	}
	rows, err := CollectRows(stream)
	assert.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": "a"}, {"id": "b"}}, rows)
}

func TestCollectRowsEmpty(t *testing.T) {
	rows, err := CollectRows(&fakeStream{columns: []string{"id"}})
	assert.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestCollectRowsStreamError(t *testing.T) {
	stream := &fakeStream{
		columns: []string{"id"},
		err:     errQueryTimeout(context.DeadlineExceeded),
	}
	_, err := CollectRows(stream)
	assert.Equal(t, KindQueryTimeout, kindOf(t, err))
}

func TestNewExecutorTimeoutIsOptional(t *testing.T) {
	exec := NewExecutor(nil, 0)
	assert.Zero(t, exec.timeout)
	exec = NewExecutor(nil, 30*time.Second)
	assert.Equal(t, 30*time.Second, exec.timeout)
}
