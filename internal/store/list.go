// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/ManuGH/gestprep/internal/persistence/sqlite"
)

// ListParams selects one page of a collection.
type ListParams struct {
	// Page is 1-based; values below 1 are treated as 1.
	Page     int
	PageSize int
	// Search is split on whitespace; every term must match one search field.
	Search string
	// Ordering is a comma-separated list of field names, "-" for descending.
	// Unknown names are ignored.
	Ordering string
	// Filters maps filter names to exact values. Unknown names are ignored.
	Filters map[string]string
}

func (p ListParams) offset() uint64 {
	page := p.Page
	if page < 1 {
		page = 1
	}
	return uint64((page - 1) * p.limit())
}

func (p ListParams) limit() int {
	if p.PageSize < 1 {
		return 10
	}
	return p.PageSize
}

// Page is one page of results plus the total match count.
type Page[T any] struct {
	Count int
	Items []T
}

// listSpec describes how a collection can be searched, filtered and ordered.
type listSpec struct {
	search   []string          // SQL expressions
	filters  map[string]string // param -> SQL expression
	ordering map[string]string // param -> SQL expression
	defaults []string          // default ORDER BY clauses
}

func (l listSpec) apply(b sq.SelectBuilder, p ListParams) sq.SelectBuilder {
	for _, term := range strings.Fields(p.Search) {
		if len(l.search) == 0 {
			break
		}
		folded := "%" + escapeLike(sqlite.Fold(term)) + "%"
		or := sq.Or{}
		for _, col := range l.search {
			or = append(or, sq.Expr(fmt.Sprintf("fold(%s) LIKE ? ESCAPE '\\'", col), folded))
		}
		b = b.Where(or)
	}
	for name, value := range p.Filters {
		col, ok := l.filters[name]
		if !ok {
			continue
		}
		b = b.Where(sq.Eq{col: value})
	}
	return b
}

func (l listSpec) orderBy(p ListParams) []string {
	var out []string
	for _, f := range strings.Split(p.Ordering, ",") {
		f = strings.TrimSpace(f)
		desc := strings.HasPrefix(f, "-")
		col, ok := l.ordering[strings.TrimPrefix(f, "-")]
		if !ok {
			continue
		}
		if desc {
			col += " DESC"
		}
		out = append(out, col)
	}
	if len(out) == 0 {
		out = append(out, l.defaults...)
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// list runs a paginated query over t.
func list[T any](ctx context.Context, q querier, sb sq.StatementBuilderType, t *table[T], p ListParams, extra ...sq.Sqlizer) (Page[T], error) {
	base := t.from(sb.Select())
	for _, e := range extra {
		base = base.Where(e)
	}
	base = t.list.apply(base, p)

	var count int
	countQ := base.Columns("COUNT(*)")
	if err := one(ctx, q, countQ, func(r rowScanner) error { return r.Scan(&count) }); err != nil {
		return Page[T]{}, fmt.Errorf("count %s: %w", t.name, err)
	}

	sel := base.Columns(t.selectCols...).
		OrderBy(append(t.list.orderBy(p), t.alias+".id")...).
		Limit(uint64(p.limit())).
		Offset(p.offset())
	items, err := all(ctx, q, sel, t)
	if err != nil {
		return Page[T]{}, err
	}
	return Page[T]{Count: count, Items: items}, nil
}
