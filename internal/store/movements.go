// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/ManuGH/gestprep/internal/inventory"
	xglog "github.com/ManuGH/gestprep/internal/log"
)

var movementTable = &table[inventory.Movement]{
	name: "mouvements", alias: "m",
	selectCols: []string{
		"m.id", "m.numero_bmm", "m.type_mouvement", "m.description_bmm", "m.emetteur_recepteur",
		"m.departement_service", "m.date_retour_prevue", "m.date_retour_effective", "m.equipement_id",
		"m.remarque", "m.statut", "m.created_by", "m.date_creation", "m.validated_by", "m.date_validation",
		"(SELECT COUNT(*) FROM lignes_mouvement l WHERE l.mouvement_id = m.id)",
	},
	writeCols: []string{
		"type_mouvement", "description_bmm", "emetteur_recepteur", "departement_service",
		"date_retour_prevue", "date_retour_effective", "equipement_id", "remarque",
	},
	scan: func(r rowScanner, v *inventory.Movement) error {
		return r.Scan(&v.ID, &v.NumeroBMM, &v.TypeMouvement, &v.DescriptionBMM, &v.EmetteurRecepteur,
			&v.DepartementService, scanNullTime(&v.DateRetourPrevue), scanNullTime(&v.DateRetourEffective), &v.Equipement,
			&v.Remarque, &v.Statut, &v.CreatedBy, scanTime(&v.DateCreation), &v.ValidatedBy, scanNullTime(&v.DateValidation),
			&v.NombreArticles)
	},
	values: func(v *inventory.Movement) []any {
		return []any{string(v.TypeMouvement), v.DescriptionBMM, v.EmetteurRecepteur, v.DepartementService,
			nullTimeValue(v.DateRetourPrevue), nullTimeValue(v.DateRetourEffective), v.Equipement, v.Remarque}
	},
	setID: func(v *inventory.Movement, id int64) { v.ID = id },
	getID: func(v *inventory.Movement) int64 { return v.ID },
	list: listSpec{
		search: []string{"m.numero_bmm", "m.description_bmm", "m.emetteur_recepteur", "m.departement_service"},
		filters: map[string]string{
			"type_mouvement": "m.type_mouvement", "statut": "m.statut",
			"created_by": "m.created_by", "validated_by": "m.validated_by", "equipement": "m.equipement_id",
		},
		ordering: map[string]string{
			"id": "m.id", "numero_bmm": "CAST(SUBSTR(m.numero_bmm, 4) AS INTEGER)",
			"date_creation": "m.date_creation", "date_validation": "m.date_validation", "statut": "m.statut",
		},
		defaults: []string{"m.date_creation DESC"},
	},
}

var lineTable = &table[inventory.Line]{
	name: "lignes_mouvement", alias: "l",
	selectCols: []string{"l.id", "l.mouvement_id", "l.article_id", "l.quantite", "l.stock_avant", "l.stock_apres"},
	writeCols:  []string{"mouvement_id", "article_id", "quantite", "stock_avant", "stock_apres"},
	scan: func(r rowScanner, v *inventory.Line) error {
		return r.Scan(&v.ID, &v.Mouvement, &v.Article, &v.Quantite, &v.StockAvant, &v.StockApres)
	},
	values: func(v *inventory.Line) []any {
		return []any{v.Mouvement, v.Article, v.Quantite, v.StockAvant, v.StockApres}
	},
	setID: func(v *inventory.Line, id int64) { v.ID = id },
	getID: func(v *inventory.Line) int64 { return v.ID },
	list: listSpec{
		filters:  map[string]string{"mouvement": "l.mouvement_id", "article": "l.article_id"},
		ordering: map[string]string{"id": "l.id"},
		defaults: []string{"l.id"},
	},
}

var historyTable = &table[inventory.History]{
	name: "historiques_mouvement", alias: "h",
	joins:      []string{"JOIN mouvements m ON m.id = h.mouvement_id"},
	selectCols: []string{"h.id", "h.mouvement_id", "m.numero_bmm", "h.type_action", "h.utilisateur_id", "h.date_action", "h.details"},
	writeCols:  []string{"mouvement_id", "type_action", "utilisateur_id", "date_action", "details"},
	scan: func(r rowScanner, v *inventory.History) error {
		return r.Scan(&v.ID, &v.Mouvement, &v.NumeroBMM, &v.TypeAction, &v.Utilisateur, scanTime(&v.DateAction), &v.Details)
	},
	values: func(v *inventory.History) []any {
		return []any{v.Mouvement, string(v.TypeAction), v.Utilisateur, timeValue(v.DateAction), v.Details}
	},
	setID: func(v *inventory.History, id int64) { v.ID = id },
	getID: func(v *inventory.History) int64 { return v.ID },
	list: listSpec{
		search:   []string{"m.numero_bmm", "h.details"},
		filters:  map[string]string{"type_action": "h.type_action", "utilisateur": "h.utilisateur_id", "mouvement": "h.mouvement_id"},
		ordering: map[string]string{"id": "h.id", "date_action": "h.date_action"},
		defaults: []string{"h.date_action DESC"},
	},
}

// ListMovements returns one page of movements, newest first by default.
func (s *Store) ListMovements(ctx context.Context, p ListParams) (Page[inventory.Movement], error) {
	return list(ctx, s.db, s.sb, movementTable, p)
}

// GetMovement returns a movement with its lines.
func (s *Store) GetMovement(ctx context.Context, id int64) (inventory.Movement, error) {
	return s.getMovement(ctx, s.db, id)
}

func (s *Store) getMovement(ctx context.Context, q querier, id int64) (inventory.Movement, error) {
	m, err := get(ctx, q, s.sb, movementTable, id)
	if err != nil {
		return m, err
	}
	if m.Lignes, err = s.movementLines(ctx, q, id); err != nil {
		return m, err
	}
	return m, nil
}

func (s *Store) movementLines(ctx context.Context, q querier, movementID int64) ([]inventory.Line, error) {
	b := lineTable.from(s.sb.Select(lineTable.selectCols...)).
		Where(sq.Eq{"l.mouvement_id": movementID}).OrderBy("l.id")
	return all(ctx, q, b, lineTable)
}

// CreateMovement stores m as a new draft created by userID, together with
// its lines, and records a CREATION history entry.
func (s *Store) CreateMovement(ctx context.Context, m *inventory.Movement, userID int64) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkEquipement(ctx, tx, m.Equipement); err != nil {
			return err
		}
		numero, err := s.nextNumero(ctx, tx)
		if err != nil {
			return err
		}
		now := s.now()
		b := s.sb.Insert("mouvements").
			Columns(append(append([]string{}, movementTable.writeCols...),
				"numero_bmm", "statut", "created_by", "date_creation")...).
			Values(append(movementTable.values(m), numero, string(inventory.Brouillon), userID, timeValue(now))...)
		id, err := insertID(ctx, tx, b)
		if err != nil {
			return err
		}
		for i := range m.Lignes {
			l := m.Lignes[i]
			l.Mouvement = id
			if err := s.addLine(ctx, tx, inventory.Movement{ID: id, TypeMouvement: m.TypeMouvement, Statut: inventory.Brouillon}, &l); err != nil {
				return prefixLine(i, err)
			}
		}
		if err := s.addHistory(ctx, tx, id, inventory.ActionCreation, userID, inventory.CreationDetails(numero)); err != nil {
			return err
		}
		fresh, err := s.getMovement(ctx, tx, id)
		if err != nil {
			return err
		}
		*m = fresh
		return nil
	})
}

// prefixLine scopes the validation errors of nested line i under "lignes".
func prefixLine(i int, err error) error {
	var ve *inventory.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	out := inventory.NewValidationError()
	for field, msgs := range ve.Fields {
		for _, msg := range msgs {
			out.Add(fmt.Sprintf("lignes[%d].%s", i, field), msg)
		}
	}
	return out
}

// UpdateMovement applies an edit made by userID. A status change to VALIDE
// or ANNULE runs the corresponding workflow.
func (s *Store) UpdateMovement(ctx context.Context, id int64, next *inventory.Movement, userID int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		prev, err := s.getMovement(ctx, tx, id)
		if err != nil {
			return err
		}
		if next.Statut == "" {
			next.Statut = prev.Statut
		}
		if err := inventory.CheckUpdate(prev, *next); err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}
		if err := s.checkEquipement(ctx, tx, next.Equipement); err != nil {
			return err
		}
		if err := update(ctx, tx, s.sb, movementTable, id, next); err != nil {
			return err
		}
		if prev.Statut == inventory.Brouillon {
			switch next.Statut {
			case inventory.Valide:
				if _, err := s.validate(ctx, tx, id, userID, inventory.ValidationDetails); err != nil {
					return err
				}
			case inventory.Annule:
				if _, err := s.cancel(ctx, tx, id, userID, inventory.CancellationDetails); err != nil {
					return err
				}
			}
		}
		fresh, err := s.getMovement(ctx, tx, id)
		if err != nil {
			return err
		}
		*next = fresh
		return nil
	})
}

// DeleteMovement removes a draft movement with its lines and history.
func (s *Store) DeleteMovement(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		m, err := get(ctx, tx, s.sb, movementTable, id)
		if err != nil {
			return err
		}
		if m.Statut != inventory.Brouillon {
			return inventory.Invalid("", inventory.MsgDeleteDraftOnly)
		}
		return remove(ctx, tx, s.sb, movementTable, id)
	})
}

// ValidateMovement moves a draft to VALIDE and applies its lines to the
// article stocks. On any validation error nothing changes.
func (s *Store) ValidateMovement(ctx context.Context, id, userID int64) (inventory.Movement, error) {
	return s.transition(ctx, id, func(tx *sql.Tx) (inventory.Movement, error) {
		return s.validate(ctx, tx, id, userID, inventory.ValidationDetails)
	})
}

// CancelMovement moves a draft to ANNULE.
func (s *Store) CancelMovement(ctx context.Context, id, userID int64) (inventory.Movement, error) {
	return s.transition(ctx, id, func(tx *sql.Tx) (inventory.Movement, error) {
		return s.cancel(ctx, tx, id, userID, inventory.CancellationDetails)
	})
}

func (s *Store) transition(ctx context.Context, id int64, fn func(tx *sql.Tx) (inventory.Movement, error)) (inventory.Movement, error) {
	var out inventory.Movement
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := fn(tx); err != nil {
			return err
		}
		var err error
		out, err = s.getMovement(ctx, tx, id)
		return err
	})
	return out, err
}

func (s *Store) validate(ctx context.Context, tx *sql.Tx, id, userID int64, details func(string) string) (inventory.Movement, error) {
	m, err := get(ctx, tx, s.sb, movementTable, id)
	if err != nil {
		return m, err
	}
	if m.Statut != inventory.Brouillon {
		return m, inventory.NotDraftError(m.NumeroBMM, true)
	}
	lines, err := s.movementLines(ctx, tx, id)
	if err != nil {
		return m, err
	}
	articles, err := s.articlesOf(ctx, tx, lines)
	if err != nil {
		return m, err
	}
	if errs := inventory.CheckValidation(m, lines, articles); !errs.Empty() {
		return m, errs
	}

	for _, l := range lines {
		a := articles[l.Article]
		before := a.QuantiteStock
		after := inventory.Apply(m.TypeMouvement, before, l.Quantite)
		if _, err := exec(ctx, tx, s.sb.Update("lignes_mouvement").
			Set("stock_avant", before).Set("stock_apres", after).
			Where(sq.Eq{"id": l.ID})); err != nil {
			return m, err
		}
		if err := s.setArticleStock(ctx, tx, a.ID, after); err != nil {
			return m, err
		}
		// Several lines cannot share an article, so the map stays accurate.
		a.QuantiteStock = after
		articles[l.Article] = a
	}

	now := s.now()
	if _, err := exec(ctx, tx, s.sb.Update("mouvements").
		Set("statut", string(inventory.Valide)).
		Set("validated_by", userID).
		Set("date_validation", timeValue(now)).
		Where(sq.Eq{"id": id})); err != nil {
		return m, err
	}
	if err := s.addHistory(ctx, tx, id, inventory.ActionValidation, userID, details(m.NumeroBMM)); err != nil {
		return m, err
	}
	logger := xglog.WithComponentFromContext(ctx, "movements")
	logger.Info().
		Str(xglog.FieldEvent, "movement.validated").
		Str(xglog.FieldMovement, m.NumeroBMM).
		Int("lines", len(lines)).
		Msg("movement validated")
	return m, nil
}

func (s *Store) cancel(ctx context.Context, tx *sql.Tx, id, userID int64, details func(string) string) (inventory.Movement, error) {
	m, err := get(ctx, tx, s.sb, movementTable, id)
	if err != nil {
		return m, err
	}
	if m.Statut != inventory.Brouillon {
		return m, inventory.NotDraftError(m.NumeroBMM, false)
	}
	if _, err := exec(ctx, tx, s.sb.Update("mouvements").
		Set("statut", string(inventory.Annule)).Where(sq.Eq{"id": id})); err != nil {
		return m, err
	}
	if err := s.addHistory(ctx, tx, id, inventory.ActionAnnulation, userID, details(m.NumeroBMM)); err != nil {
		return m, err
	}
	logger := xglog.WithComponentFromContext(ctx, "movements")
	logger.Info().
		Str(xglog.FieldEvent, "movement.cancelled").
		Str(xglog.FieldMovement, m.NumeroBMM).
		Msg("movement cancelled")
	return m, nil
}

// BulkItem is the outcome of one id of a bulk action.
type BulkItem struct {
	ID        int64  `json:"id"`
	NumeroBMM string `json:"numero_bmm,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// BulkResult summarizes a bulk validation or cancellation.
type BulkResult struct {
	Results      []BulkItem `json:"results"`
	SuccessCount int        `json:"success_count"`
	ErrorCount   int        `json:"error_count"`
}

// BulkValidate validates each movement in its own transaction.
func (s *Store) BulkValidate(ctx context.Context, ids []int64, userID int64) BulkResult {
	return s.bulk(ctx, ids, "validation", func(tx *sql.Tx, id int64) (inventory.Movement, error) {
		return s.validate(ctx, tx, id, userID, inventory.BulkValidationDetails)
	})
}

// BulkCancel cancels each movement in its own transaction.
func (s *Store) BulkCancel(ctx context.Context, ids []int64, userID int64) BulkResult {
	return s.bulk(ctx, ids, "annulation", func(tx *sql.Tx, id int64) (inventory.Movement, error) {
		return s.cancel(ctx, tx, id, userID, inventory.BulkCancellationDetails)
	})
}

func (s *Store) bulk(ctx context.Context, ids []int64, action string, fn func(*sql.Tx, int64) (inventory.Movement, error)) BulkResult {
	res := BulkResult{Results: make([]BulkItem, 0, len(ids))}
	for _, id := range ids {
		item := BulkItem{ID: id}
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			m, err := fn(tx, id)
			item.NumeroBMM = m.NumeroBMM
			return err
		})
		if err != nil {
			item.Error = bulkMessage(action, item.NumeroBMM, id, err)
			res.ErrorCount++
		} else {
			item.Success = true
			res.SuccessCount++
		}
		res.Results = append(res.Results, item)
	}
	return res
}

func bulkMessage(action, numero string, id int64, err error) string {
	var ve *inventory.ValidationError
	if errors.As(err, &ve) && errors.Is(err, inventory.ErrNotDraft) {
		return strings.Join(ve.Messages(inventory.NonFieldKey), " ")
	}
	if numero == "" {
		numero = fmt.Sprintf("#%d", id)
	}
	if errors.Is(err, errNotFound) {
		return fmt.Sprintf("Le BMM %s n'existe pas.", numero)
	}
	detail := err.Error()
	if ve != nil {
		fields := make([]string, 0, len(ve.Fields))
		for f := range ve.Fields {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		var parts []string
		for _, f := range fields {
			parts = append(parts, ve.Fields[f]...)
		}
		detail = strings.Join(parts, " ")
	}
	return fmt.Sprintf("Erreur lors de l'%s du BMM %s: %s", action, numero, detail)
}

func (s *Store) nextNumero(ctx context.Context, q querier) (string, error) {
	rows, err := queryRows(ctx, q, s.sb.Select("numero_bmm").From("mouvements").
		Where("numero_bmm GLOB 'BMM[0-9]*'").
		OrderBy("CAST(SUBSTR(numero_bmm, 4) AS INTEGER) DESC").Limit(1))
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()
	var existing []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return "", err
		}
		existing = append(existing, n)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return inventory.NextNumero(existing), nil
}

func (s *Store) checkEquipement(ctx context.Context, q querier, id *int64) error {
	if id == nil {
		return nil
	}
	ok, err := exists(ctx, q, s.sb, "equipements", *id)
	if err != nil {
		return err
	}
	if !ok {
		return inventory.Invalid("equipement", missingRef(*id))
	}
	return nil
}

func (s *Store) addHistory(ctx context.Context, q querier, movementID int64, action inventory.Action, userID int64, details string) error {
	h := inventory.History{
		Mouvement: movementID, TypeAction: action, Utilisateur: userID,
		DateAction: s.now(), Details: &details,
	}
	return insert(ctx, q, s.sb, historyTable, &h)
}

func (s *Store) articlesOf(ctx context.Context, q querier, lines []inventory.Line) (map[int64]inventory.Article, error) {
	out := make(map[int64]inventory.Article, len(lines))
	if len(lines) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.Article)
	}
	b := articleTable.from(s.sb.Select(articleTable.selectCols...)).Where(sq.Eq{"a.id": ids})
	items, err := all(ctx, q, b, articleTable)
	if err != nil {
		return nil, err
	}
	for _, a := range items {
		out[a.ID] = a
	}
	return out, nil
}

func (s *Store) setArticleStock(ctx context.Context, q querier, articleID int64, qty inventory.Decimal) error {
	res, err := exec(ctx, q, s.sb.Update("articles").Set("quantite_stock", qty).Where(sq.Eq{"id": articleID}))
	if err != nil {
		return err
	}
	return affected(res)
}

// ListHistory returns movement history entries, newest first by default.
func (s *Store) ListHistory(ctx context.Context, p ListParams) (Page[inventory.History], error) {
	return list(ctx, s.db, s.sb, historyTable, p)
}
