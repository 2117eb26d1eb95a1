package querysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/condpush/internal/dialect"
	"github.com/roach88/condpush/internal/entity"
	"github.com/roach88/condpush/internal/eval"
	"github.com/roach88/condpush/internal/expr"
	"github.com/roach88/condpush/internal/schema"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Execute runs a compiled statement and decodes each row into the value
// the evaluator would produce for it: an *entity.Instance holding scalar
// fields, an eval.Record, or a single scalar.
func Execute(ctx context.Context, db Querier, d dialect.Dialect, stmt *Statement) ([]any, error) {
	rows, err := db.QueryContext(ctx, stmt.SQL, stmt.Params...)
	if err != nil {
		return nil, fmt.Errorf("execute: %w", err)
	}
	defer rows.Close()

	results := []any{}
	for rows.Next() {
		raw := make([]any, len(stmt.Columns))
		ptrs := make([]any, len(raw))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row, err := decodeRow(d, stmt, raw)
		if err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return results, nil
}

func decodeRow(d dialect.Dialect, stmt *Statement, raw []any) (any, error) {
	values := make([]any, len(raw))
	for i, col := range stmt.Columns {
		v, err := decodeColumn(d, col, raw[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col.Name, err)
		}
		values[i] = v
	}

	switch {
	case stmt.Entity != "":
		id, _ := values[0].(string)
		inst := entity.New(stmt.Entity, id)
		for i, col := range stmt.Columns[1:] {
			inst.Values[col.Name] = values[i+1]
		}
		return inst, nil
	case stmt.Record:
		names := make([]string, len(stmt.Columns))
		for i, col := range stmt.Columns {
			names[i] = col.Name
		}
		return eval.Record{Names: names, Values: values}, nil
	default:
		return values[0], nil
	}
}

func decodeColumn(d dialect.Dialect, col Column, raw any) (any, error) {
	if col.Field != nil {
		return d.Decode(col.Field.Kind, raw)
	}
	switch col.Type.Kind {
	case expr.KindBool:
		return d.Decode(schema.ScalarBool, raw)
	case expr.KindInt:
		return d.Decode(schema.ScalarInt, raw)
	case expr.KindDateTime:
		return d.Decode(schema.ScalarDateTime, raw)
	case expr.KindNull:
		return nil, nil
	default:
		return d.Decode(schema.ScalarString, raw)
	}
}
