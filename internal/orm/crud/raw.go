package crud

import (
	"context"
	"fmt"

	"github.com/reposit-go/reposit/internal/orm/cache"
)

// ExecuteSQLCommand runs a caller-supplied statement inside the unit's
// transaction and returns the number of rows affected. Since its targets are
// unknown, every cached read is invalidated once the unit commits.
func (e *Executor) ExecuteSQLCommand(ctx context.Context, stmt string, args ...any) (int64, error) {
	w, err := e.uow.Writer(ctx, rawTypeName)
	if err != nil {
		return 0, err
	}
	res, err := e.exec(ctx, w, OperationRaw, rawTypeName, stmt, args)
	if err != nil {
		return 0, err
	}
	e.uow.MarkWritten(cache.AllTables)

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// ExecuteSQLQuery runs a caller-supplied query and returns each row as a
// map from column name to driver value. Text returned as bytes is converted
// to string.
func (e *Executor) ExecuteSQLQuery(ctx context.Context, stmt string, args ...any) ([]map[string]any, error) {
	r, err := e.uow.Reader(rawTypeName)
	if err != nil {
		return nil, err
	}
	rs, err := e.query(ctx, r, OperationRaw, rawTypeName, stmt, args)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, len(rs.Rows))
	for i, row := range rs.Rows {
		record := make(map[string]any, len(rs.Columns))
		for j, col := range rs.Columns {
			if b, ok := row[j].([]byte); ok {
				record[col] = string(b)
				continue
			}
			record[col] = row[j]
		}
		out[i] = record
	}
	return out, nil
}
