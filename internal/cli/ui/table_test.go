package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	table := NewTable(&buf, []string{"id", "name", "email"}, true)
	table.AddRow("1", "Ada", "ada@example.com")
	table.AddRow("2", "Grace")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "id  name   email", lines[0])
	assert.Contains(t, lines[1], "─")
	assert.Equal(t, "1   Ada    ada@example.com", lines[2])
	assert.Equal(t, "2   Grace  ", lines[3])
	assert.Equal(t, 2, table.Len())
}

func TestTable_NoHeaders(t *testing.T) {
	var buf bytes.Buffer
	NewTable(&buf, nil, true).Render()
	assert.Empty(t, buf.String())
}

func TestRowsTable(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	rows := []map[string]any{
		{"name": "Ada", "id": int64(1), "deleted_at": nil},
		{"name": "Grace", "id": int64(2), "deleted_at": time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	}

	var buf bytes.Buffer
	table := RowsTable(&buf, rows, true)
	table.Render()
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "deleted_at"))
	assert.Contains(t, out, NullText)
	assert.Contains(t, out, "2024-01-02T03:04:05Z")
	assert.Contains(t, out, "Grace")
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{int64(42), "42"},
		{3.5, "3.5"},
		{true, "true"},
		{[]byte("raw"), "raw"},
		{"text", "text"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in))
	}
}

func TestKeyValueTable(t *testing.T) {
	var buf bytes.Buffer
	kv := NewKeyValueTable(&buf, true)
	kv.AddRow("driver", "sqlite3")
	kv.AddRow("dsn", "shop.db")
	kv.Render()

	assert.Equal(t, "driver: sqlite3\ndsn:    shop.db\n", buf.String())
}
