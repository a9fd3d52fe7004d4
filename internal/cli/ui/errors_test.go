package ui

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reposit-go/reposit/internal/orm/ormerrors"
)

func TestFormatError(t *testing.T) {
	tests := []struct {
		name     string
		opts     ErrorOptions
		contains []string
	}{
		{
			name:     "plain",
			opts:     ErrorOptions{Problem: "connection refused"},
			contains: []string{"✗ connection refused"},
		},
		{
			name: "context and hints",
			opts: ErrorOptions{
				Context:      "schema mismatch",
				Problem:      "column missing",
				HelpCommands: []string{"inspect the table"},
			},
			contains: []string{"✗ SCHEMA MISMATCH", "   column missing", "→ inspect the table"},
		},
		{
			name:     "suggestions",
			opts:     ErrorOptions{Problem: "unknown driver", Suggestions: []string{"sqlite3", "sqlite"}},
			contains: []string{"Did you mean: sqlite3, sqlite?"},
		},
		{
			name:     "warning",
			opts:     ErrorOptions{Level: ErrorLevelWarning, Problem: "cache disabled"},
			contains: []string{"! cache disabled"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.NoColor = true
			out := FormatError(tt.opts)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestRepositoryError(t *testing.T) {
	err := fmt.Errorf("saving order: %w", ormerrors.EntityNotFound("Order", []any{7}))
	out := RepositoryError(err, true)

	assert.Contains(t, out, "ENTITY NOT FOUND")
	assert.Contains(t, out, "no entity of type 'Order' was found")
	assert.Contains(t, out, "Check the key values")

	plain := RepositoryError(errors.New("boom"), true)
	assert.Equal(t, "✗ boom\n", plain)
}

func TestConfigError(t *testing.T) {
	out := ConfigError(`unknown driver "sqlit3"`, []string{"sqlite3"}, true)
	assert.Contains(t, out, "CONFIGURATION ERROR")
	assert.Contains(t, out, "Did you mean: sqlite3?")
	assert.Contains(t, out, "reposit config init")
}

func TestWriteSuccess(t *testing.T) {
	assert.Equal(t, "✓ done", FormatSuccess("done", true))
}

func TestSplitWords(t *testing.T) {
	assert.Equal(t, "Foreign Key Violation", splitWords("ForeignKeyViolation"))
	assert.Equal(t, "Unknown", splitWords("Unknown"))
}
