// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// table maps one entity type onto its SQL table.
type table[T any] struct {
	name  string
	alias string
	// joins are appended to FROM for reads (display columns, search).
	joins []string
	// selectCols are scanned by scan, in order; the first is the id.
	selectCols []string
	// writeCols are written from values, in order.
	writeCols []string
	scan      func(r rowScanner, v *T) error
	values    func(v *T) []any
	setID     func(v *T, id int64)
	getID     func(v *T) int64
	list      listSpec
}

func (t *table[T]) from(b sq.SelectBuilder) sq.SelectBuilder {
	b = b.From(t.name + " " + t.alias)
	for _, j := range t.joins {
		b = b.JoinClause(j)
	}
	return b
}

func all[T any](ctx context.Context, q querier, b sq.Sqlizer, t *table[T]) ([]T, error) {
	rows, err := queryRows(ctx, q, b)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer func() { _ = rows.Close() }()

	items := make([]T, 0)
	for rows.Next() {
		var v T
		if err := t.scan(rows, &v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func get[T any](ctx context.Context, q querier, sb sq.StatementBuilderType, t *table[T], id int64) (T, error) {
	var v T
	b := t.from(sb.Select(t.selectCols...)).Where(sq.Eq{t.alias + ".id": id})
	err := one(ctx, q, b, func(r rowScanner) error { return t.scan(r, &v) })
	return v, err
}

func insert[T any](ctx context.Context, q querier, sb sq.StatementBuilderType, t *table[T], v *T) error {
	id, err := insertID(ctx, q, sb.Insert(t.name).Columns(t.writeCols...).Values(t.values(v)...))
	if err != nil {
		return err
	}
	t.setID(v, id)
	return nil
}

func update[T any](ctx context.Context, q querier, sb sq.StatementBuilderType, t *table[T], id int64, v *T) error {
	b := sb.Update(t.name).Where(sq.Eq{"id": id})
	vals := t.values(v)
	for i, col := range t.writeCols {
		b = b.Set(col, vals[i])
	}
	res, err := exec(ctx, q, b)
	if err != nil {
		return err
	}
	if err := affected(res); err != nil {
		return err
	}
	t.setID(v, id)
	return nil
}

func remove[T any](ctx context.Context, q querier, sb sq.StatementBuilderType, t *table[T], id int64) error {
	res, err := exec(ctx, q, sb.Delete(t.name).Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	return affected(res)
}

func exists(ctx context.Context, q querier, sb sq.StatementBuilderType, tableName string, id int64) (bool, error) {
	var n int
	b := sb.Select("COUNT(*)").From(tableName).Where(sq.Eq{"id": id})
	if err := one(ctx, q, b, func(r rowScanner) error { return r.Scan(&n) }); err != nil {
		return false, err
	}
	return n > 0, nil
}
