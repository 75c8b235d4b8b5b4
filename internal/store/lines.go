// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ManuGH/gestprep/internal/inventory"
)

// ListLines returns movement lines; filter by "mouvement" or "article".
func (s *Store) ListLines(ctx context.Context, p ListParams) (Page[inventory.Line], error) {
	return list(ctx, s.db, s.sb, lineTable, p)
}

// GetLine returns one movement line.
func (s *Store) GetLine(ctx context.Context, id int64) (inventory.Line, error) {
	return get(ctx, s.db, s.sb, lineTable, id)
}

// CreateLine adds a line to a draft movement with a stock preview.
func (s *Store) CreateLine(ctx context.Context, l *inventory.Line) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		m, err := get(ctx, tx, s.sb, movementTable, l.Mouvement)
		if errors.Is(err, errNotFound) {
			return inventory.Invalid("mouvement", missingRef(l.Mouvement))
		}
		if err != nil {
			return err
		}
		if err := s.addLine(ctx, tx, m, l); err != nil {
			return err
		}
		fresh, err := get(ctx, tx, s.sb, lineTable, l.ID)
		if err != nil {
			return err
		}
		*l = fresh
		return nil
	})
}

func (s *Store) addLine(ctx context.Context, tx *sql.Tx, m inventory.Movement, l *inventory.Line) error {
	switch m.Statut {
	case inventory.Annule:
		return inventory.Invalid("", inventory.MsgCancelledFrozen)
	case inventory.Valide:
		return inventory.Invalid("", inventory.MsgNoLineOnValid)
	}
	if err := l.Validate(); err != nil {
		return err
	}
	a, err := s.lineArticle(ctx, tx, l.Article)
	if err != nil {
		return err
	}
	l.Preview(m.TypeMouvement, a.QuantiteStock)
	if err := insert(ctx, tx, s.sb, lineTable, l); err != nil {
		return duplicateLine(err)
	}
	return nil
}

// UpdateLine edits a line. On a validated movement only the quantity may
// change: the old quantity is reverted and the new one applied to stock.
func (s *Store) UpdateLine(ctx context.Context, id int64, next *inventory.Line) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		prev, err := get(ctx, tx, s.sb, lineTable, id)
		if err != nil {
			return err
		}
		next.Mouvement = prev.Mouvement
		m, err := get(ctx, tx, s.sb, movementTable, prev.Mouvement)
		if err != nil {
			return err
		}
		if m.Statut == inventory.Annule {
			return inventory.Invalid("", inventory.MsgCancelledFrozen)
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if m.Statut == inventory.Valide && next.Article != prev.Article {
			return inventory.Invalid("article", inventory.MsgArticleFrozen)
		}
		a, err := s.lineArticle(ctx, tx, next.Article)
		if err != nil {
			return err
		}

		switch {
		case m.Statut == inventory.Valide && !next.Quantite.Equal(prev.Quantite.Decimal):
			reverted := inventory.Revert(m.TypeMouvement, a.QuantiteStock, prev.Quantite)
			if m.TypeMouvement.IsExit() && reverted.Less(next.Quantite) {
				return inventory.Invalid("quantite", inventory.InsufficientStock(reverted))
			}
			next.Preview(m.TypeMouvement, reverted)
			if err := s.setArticleStock(ctx, tx, a.ID, *next.StockApres); err != nil {
				return err
			}
		case m.Statut == inventory.Valide:
			next.StockAvant, next.StockApres = prev.StockAvant, prev.StockApres
		default:
			next.Preview(m.TypeMouvement, a.QuantiteStock)
		}

		if err := update(ctx, tx, s.sb, lineTable, id, next); err != nil {
			return duplicateLine(err)
		}
		fresh, err := get(ctx, tx, s.sb, lineTable, id)
		if err != nil {
			return err
		}
		*next = fresh
		return nil
	})
}

// DeleteLine removes a line of a draft movement.
func (s *Store) DeleteLine(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		l, err := get(ctx, tx, s.sb, lineTable, id)
		if err != nil {
			return err
		}
		m, err := get(ctx, tx, s.sb, movementTable, l.Mouvement)
		if err != nil {
			return err
		}
		switch m.Statut {
		case inventory.Valide:
			return inventory.Invalid("", inventory.MsgNoDeleteOnValid)
		case inventory.Annule:
			return inventory.Invalid("", inventory.MsgCancelledFrozen)
		}
		return remove(ctx, tx, s.sb, lineTable, id)
	})
}

func (s *Store) lineArticle(ctx context.Context, q querier, id int64) (inventory.Article, error) {
	a, err := get(ctx, q, s.sb, articleTable, id)
	if errors.Is(err, errNotFound) {
		return a, inventory.Invalid("article", "L'article spécifié n'existe pas.")
	}
	return a, err
}

func duplicateLine(err error) error {
	if errors.Is(err, errConflict) {
		return inventory.Invalid("", uniqueTogether("mouvement", "article"))
	}
	return err
}
