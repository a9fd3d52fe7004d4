package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/reposit-go/reposit/pkg/repository"
)

// ErrorLevel represents the severity of a message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError renders a message with optional suggestions and hints:
//
//	✗ FOREIGN KEY VIOLATION
//	   a write to type 'Order' violated a foreign key constraint: ...
//
//	   → Add the principal entity first, or in the same Add call
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var header, body *color.Color
	var symbol string
	switch opts.Level {
	case ErrorLevelWarning:
		header = color.New(color.FgYellow, color.Bold)
		body = color.New(color.FgYellow)
		symbol = "!"
	case ErrorLevelInfo:
		header = color.New(color.FgCyan, color.Bold)
		body = color.New(color.FgCyan)
		symbol = "i"
	default:
		header = color.New(color.FgRed, color.Bold)
		body = color.New(color.FgRed)
		symbol = "✗"
	}
	hint := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)
	if opts.NoColor {
		header.DisableColor()
		body.DisableColor()
		hint.DisableColor()
		yellow.DisableColor()
	}

	if opts.Context != "" {
		header.Fprintf(&b, "%s %s\n", symbol, strings.ToUpper(opts.Context))
		body.Fprintf(&b, "   %s\n", opts.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			hint.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted message to w
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess renders a success line
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success line to w
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

var hints = map[string][]string{
	"AmbiguousCompositeKeyOrdering":  {"Give every key member an order, e.g. `db:\"tenant_id,key,order=0\"`"},
	"ForeignKeyMemberNotFound":       {"Check the fk= names in the rel tag against the dependent's fields"},
	"AmbiguousRelationshipPrincipal": {"Mark the dependent navigation with `rel:\"fk=...,dependent\"`"},
	"SchemaMismatch":                 {"Compare the table with the model: reposit sql query \"SELECT * FROM <table> LIMIT 1\""},
	"EntityNotFound":                 {"Check the key values, and that the row was committed"},
	"ContextFinalized":               {"Open a new unit of work after Commit or Dispose"},
	"ForeignKeyViolation":            {"Add the principal entity first, or in the same Add call"},
}

// RepositoryError formats err, adding hints for classified repository
// errors
func RepositoryError(err error, noColor bool) string {
	var re *repository.Error
	if !errors.As(err, &re) {
		return FormatError(ErrorOptions{Level: ErrorLevelError, Problem: err.Error(), NoColor: noColor})
	}
	kind := re.Kind.String()
	return FormatError(ErrorOptions{
		Level:        ErrorLevelError,
		Context:      splitWords(kind),
		Problem:      err.Error(),
		HelpCommands: hints[kind],
		NoColor:      noColor,
	})
}

// ConfigError formats a configuration problem with suggested values
func ConfigError(message string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Level:       ErrorLevelError,
		Context:     "configuration error",
		Problem:     message,
		Suggestions: suggestions,
		HelpCommands: []string{
			"Create a config: reposit config init",
			"Show the effective config: reposit config show",
		},
		NoColor: noColor,
	})
}

// Warning formats a warning
func Warning(message string, noColor bool) string {
	return FormatError(ErrorOptions{Level: ErrorLevelWarning, Problem: message, NoColor: noColor})
}

// splitWords turns "EntityNotFound" into "Entity Not Found"
func splitWords(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
