package engine

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeTable(t *testing.T) {
	stream := &fakeStream{
		columns: []string{"id", "status"},
		rows: [][]any{
			{"a", "active"},
			{"b", "disabled"},
		},
	}
	page, err := ShapeTable(stream, 42, 2, 25)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 25, page.PageSize)
	require.Len(t, page.Rows, 2)
	assert.Equal(t, map[string]any{"id": "b", "status": "disabled"}, page.Rows[1])
}

func TestShapeChartMultiSeries(t *testing.T) {
	stream := &fakeStream{
		columns: []string{"endpoint", "p95", "n"},
		rows: [][]any{
			{"/login", 120.5, uint64(10)},
			{"/search", 340.0, uint64(3)},
		},
	}
	chart, err := ShapeChart(stream, "endpoint", []string{"p95", "n"})
	require.NoError(t, err)
	require.Len(t, chart.Series, 2)

	assert.Equal(t, "p95", chart.Series[0].Name)
	assert.Equal(t, []Point{{X: "/login", Y: 120.5}, {X: "/search", Y: 340.0}}, chart.Series[0].Points)

	assert.Equal(t, "n", chart.Series[1].Name)
	assert.Equal(t, []Point{{X: "/login", Y: uint64(10)}, {X: "/search", Y: uint64(3)}}, chart.Series[1].Points)
}

func TestShapeChartMissingXField(t *testing.T) {
	stream := &fakeStream{
		columns: []string{"n"},
		rows:    [][]any{{uint64(1)}},
	}
	_, err := ShapeChart(stream, "time_bucket", []string{"n"})
	assert.Equal(t, KindExecutionError, kindOf(t, err))
}

func TestShapeChartStreamError(t *testing.T) {
	stream := &fakeStream{
		columns: []string{"endpoint", "n"},
		err:     errExecution(errors.New("connection reset")),
	}
	_, err := ShapeChart(stream, "endpoint", []string{"n"})
	assert.Error(t, err)
}

func TestStreamExportCSV(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	stream := &fakeStream{
		columns: []string{"id", "latency_ms", "note", "created_at"},
		rows: [][]any{
			{"a", 12.5, "plain", at},
			{"b", 7.0, "has,comma", nil},
		},
	}
	var buf bytes.Buffer
	count, err := StreamExport(&buf, stream, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	want := "id,latency_ms,note,created_at\n" +
		"a,12.5,plain,2024-03-01T12:00:00Z\n" +
		"b,7,\"has,comma\",\n"
	assert.Equal(t, want, buf.String())
}

func TestStreamExportCSVNullableColumns(t *testing.T) {
	latency := 12.5
	note := "slow"
	stream := &fakeStream{
		columns: []string{"latency_ms", "note"},
		rows: [][]any{
			{&latency, &note},
			{(*float64)(nil), (*string)(nil)},
		},
	}
	var buf bytes.Buffer
	count, err := StreamExport(&buf, stream, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	want := "latency_ms,note\n" +
		"12.5,slow\n" +
		",\n"
	assert.Equal(t, want, buf.String())
}

func TestStreamExportNDJSON(t *testing.T) {
	stream := &fakeStream{
		columns: []string{"id", "n"},
		rows: [][]any{
			{"a", uint64(3)},
			{"b", uint64(0)},
		},
	}
	var buf bytes.Buffer
	count, err := StreamExport(&buf, stream, FormatNDJSON)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	want := "{\"id\":\"a\",\"n\":3}\n{\"id\":\"b\",\"n\":0}\n"
	assert.Equal(t, want, buf.String())
}

func TestExportFormatContentType(t *testing.T) {
	assert.Equal(t, "text/csv", FormatCSV.ContentType())
	assert.Equal(t, "application/x-ndjson", FormatNDJSON.ContentType())
	assert.Equal(t, "csv", FormatCSV.Extension())
	assert.Equal(t, "ndjson", FormatNDJSON.Extension())
}
