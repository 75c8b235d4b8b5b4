// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/ManuGH/gestprep/internal/inventory"
)

type entity interface {
	Validate() error
}

// ref is a foreign key checked before writes so a dangling id is reported
// on its field instead of as a constraint failure.
type ref struct {
	field string
	table string
	id    int64
}

// Repo implements CRUD for one catalog entity.
type Repo[T entity] struct {
	s *Store
	t *table[T]
	// refs lists the foreign keys of v.
	refs func(v *T) []ref
	// uniques maps a SQLite UNIQUE constraint ("table.col" or
	// "table.a, table.b") to the field that reports it; "" is global.
	uniques map[string]uniqueRule
	// docs selects the documents removed along with the row.
	docs func(id int64) sq.Sqlizer
	// load and save maintain relations stored outside the main table.
	load func(ctx context.Context, q querier, items []T) error
	save func(ctx context.Context, q querier, v *T) error
	// normalize applies defaults before validation.
	normalize func(v *T)
}

type uniqueRule struct {
	field string
	msg   string
}

// List returns one page of the collection.
func (r *Repo[T]) List(ctx context.Context, p ListParams) (Page[T], error) {
	page, err := list(ctx, r.s.db, r.s.sb, r.t, p)
	if err != nil {
		return page, err
	}
	if r.load != nil {
		if err := r.load(ctx, r.s.db, page.Items); err != nil {
			return page, err
		}
	}
	return page, nil
}

// Get returns one row by id.
func (r *Repo[T]) Get(ctx context.Context, id int64) (T, error) {
	return r.get(ctx, r.s.db, id)
}

func (r *Repo[T]) get(ctx context.Context, q querier, id int64) (T, error) {
	v, err := get(ctx, q, r.s.sb, r.t, id)
	if err != nil {
		return v, err
	}
	if r.load != nil {
		items := []T{v}
		if err := r.load(ctx, q, items); err != nil {
			return v, err
		}
		v = items[0]
	}
	return v, nil
}

// Create validates and inserts v, then reloads it with read-only fields.
func (r *Repo[T]) Create(ctx context.Context, v *T) error {
	return r.s.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.check(ctx, tx, v); err != nil {
			return err
		}
		if err := insert(ctx, tx, r.s.sb, r.t, v); err != nil {
			return r.conflict(err)
		}
		return r.finish(ctx, tx, v)
	})
}

// Update validates and replaces row id with v.
func (r *Repo[T]) Update(ctx context.Context, id int64, v *T) error {
	return r.s.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.check(ctx, tx, v); err != nil {
			return err
		}
		if err := update(ctx, tx, r.s.sb, r.t, id, v); err != nil {
			return r.conflict(err)
		}
		return r.finish(ctx, tx, v)
	})
}

// Delete removes row id and everything cascading from it. It returns the
// stored paths of the documents that were deleted with it.
func (r *Repo[T]) Delete(ctx context.Context, id int64) ([]string, error) {
	var files []string
	err := r.s.inTx(ctx, func(tx *sql.Tx) error {
		if r.docs != nil {
			var err error
			if files, err = documentFiles(ctx, tx, r.s.sb, r.docs(id)); err != nil {
				return err
			}
		}
		return remove(ctx, tx, r.s.sb, r.t, id)
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r *Repo[T]) check(ctx context.Context, q querier, v *T) error {
	if r.normalize != nil {
		r.normalize(v)
	}
	errs := inventory.NewValidationError()
	if err := (*v).Validate(); err != nil {
		var ve *inventory.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		errs.Merge(ve)
	}
	if r.refs != nil {
		for _, rf := range r.refs(v) {
			if rf.id <= 0 || len(errs.Messages(rf.field)) > 0 {
				continue
			}
			ok, err := exists(ctx, q, r.s.sb, rf.table, rf.id)
			if err != nil {
				return err
			}
			if !ok {
				errs.Add(rf.field, missingRef(rf.id))
			}
		}
	}
	return errs.Err()
}

// conflict turns a UNIQUE violation into a validation error.
func (r *Repo[T]) conflict(err error) error {
	if !errors.Is(err, errConflict) {
		return err
	}
	for constraint, rule := range r.uniques {
		if strings.Contains(err.Error(), "constraint failed: "+constraint) {
			return inventory.Invalid(rule.field, rule.msg)
		}
	}
	return err
}

func (r *Repo[T]) finish(ctx context.Context, q querier, v *T) error {
	if r.save != nil {
		if err := r.save(ctx, q, v); err != nil {
			return err
		}
	}
	id := r.t.getID(v)
	fresh, err := r.get(ctx, q, id)
	if err != nil {
		return fmt.Errorf("reload %s %d: %w", r.t.name, id, err)
	}
	*v = fresh
	return nil
}
