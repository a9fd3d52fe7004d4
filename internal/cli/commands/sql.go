package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reposit-go/reposit/internal/cli/ui"
	"github.com/reposit-go/reposit/pkg/repository"
)

func newSQLCommand(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sql",
		Short: "Run raw SQL inside a unit of work",
		Long: `Run raw SQL against the configured database.

Arguments after the statement bind to its positional parameters in order
(? for SQLite and MySQL, $1.. for PostgreSQL). Each invocation is one unit of
work: a failing statement is rolled back.`,
	}
	cmd.AddCommand(newSQLExecCommand(g))
	cmd.AddCommand(newSQLQueryCommand(g))
	return cmd
}

func newSQLExecCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "exec STATEMENT [ARG...]",
		Short:   "Execute a statement and report rows affected",
		Example: `  reposit sql exec "UPDATE Customers SET Name = ? WHERE Id = ?" Ada 1`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var affected int64
			err := g.inUnit(cmd.Context(), func(ctx context.Context, c *repository.Context) error {
				n, err := c.ExecuteSQLCommand(ctx, args[0], params(args[1:])...)
				affected = n
				return err
			})
			if err != nil {
				return err
			}
			ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("%d row(s) affected", affected), color.NoColor)
			return nil
		},
	}
}

func newSQLQueryCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "query STATEMENT [ARG...]",
		Short:   "Run a query and print its rows",
		Example: `  reposit sql query "SELECT * FROM Customers WHERE Name LIKE ?" "A%"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []map[string]any
			err := g.inUnit(cmd.Context(), func(ctx context.Context, c *repository.Context) error {
				var err error
				rows, err = c.ExecuteSQLQuery(ctx, args[0], params(args[1:])...)
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "(no rows)")
				return nil
			}
			ui.RowsTable(out, rows, color.NoColor).Render()
			fmt.Fprintf(out, "(%d row(s))\n", len(rows))
			return nil
		},
	}
}

// inUnit opens a store and runs fn in one unit of work
func (g *globals) inUnit(ctx context.Context, fn func(ctx context.Context, c *repository.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.store.Do(ctx, fn)
}

func params(args []string) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}
