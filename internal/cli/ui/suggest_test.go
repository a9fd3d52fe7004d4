package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindSimilar(t *testing.T) {
	drivers := []string{"sqlite3", "sqlite", "postgres", "pgx", "mysql"}

	tests := []struct {
		target string
		want   []string
	}{
		{"sqlit3", []string{"sqlite3", "sqlite"}},
		{"Postgress", []string{"postgres"}},
		{"mysq", []string{"mysql"}},
		{"oracle", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, FindSimilar(tt.target, drivers))
		})
	}
}

func TestFindSimilar_Cap(t *testing.T) {
	got := FindSimilar("ab", []string{"a", "b", "abc", "abd", "abe"})
	assert.Len(t, got, DefaultMaxSuggestions)
}
