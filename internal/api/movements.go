// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ManuGH/gestprep/internal/inventory"
	xglog "github.com/ManuGH/gestprep/internal/log"
	"github.com/ManuGH/gestprep/internal/metrics"
	"github.com/ManuGH/gestprep/internal/store"
)

func (s *Server) routeMovements(r chi.Router) {
	r.Route("/mouvements", func(r chi.Router) {
		r.Get("/", s.handleListMovements)
		r.Post("/", s.handleCreateMovement)
		r.With(requireManager).Post("/validate/", s.handleBulk(bulkValidate))
		r.Post("/cancel/", s.handleBulk(bulkCancel))

		r.Get("/{id}/", s.handleGetMovement)
		r.Put("/{id}/", s.handleUpdateMovement(false))
		r.Patch("/{id}/", s.handleUpdateMovement(true))
		r.Delete("/{id}/", s.handleDeleteMovement)
		r.Post("/{id}/validate/", s.handleTransition(inventory.Valide))
		r.Post("/{id}/cancel/", s.handleTransition(inventory.Annule))
	})
	mount[inventory.Line](r, s, "lignes", lineRepo{s.store}, nil)
	r.Get("/historiques/", s.handleListHistory)
}

func (s *Server) handleListMovements(w http.ResponseWriter, r *http.Request) {
	p, err := s.listParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.store.ListMovements(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writePage(s, w, r, p, page)
}

func (s *Server) handleCreateMovement(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)
	var m inventory.Movement
	if err := decodeJSON(w, r, &m); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.CreateMovement(r.Context(), &m, u.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.IncMovementCreated(string(m.TypeMouvement))
	s.movementLogger(r, m).Info().Str(xglog.FieldEvent, "movement.created").Msg("movement created")
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleGetMovement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	m, err := s.store.GetMovement(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleUpdateMovement edits a movement. Setting statut to VALIDE or ANNULE
// on a draft runs the matching workflow.
func (s *Server) handleUpdateMovement(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := currentUser(r)
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		prev, err := s.store.GetMovement(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var next inventory.Movement
		if partial {
			next = prev
			next.Statut = ""
		}
		if err := decodeJSON(w, r, &next); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.store.UpdateMovement(r.Context(), id, &next, u.ID); err != nil {
			s.writeError(w, r, err)
			return
		}
		if prev.Statut != next.Statut {
			metrics.IncMovementTransition(string(next.TypeMouvement), string(next.Statut))
			s.movementLogger(r, next).Info().
				Str(xglog.FieldEvent, "movement.status_changed").
				Str("from", string(prev.Statut)).
				Msg("movement status changed")
		}
		writeJSON(w, http.StatusOK, next)
	}
}

func (s *Server) handleDeleteMovement(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeleteMovement(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransition(to inventory.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := currentUser(r)
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		var m inventory.Movement
		if to == inventory.Valide {
			m, err = s.store.ValidateMovement(r.Context(), id, u.ID)
		} else {
			m, err = s.store.CancelMovement(r.Context(), id, u.ID)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		metrics.IncMovementTransition(string(m.TypeMouvement), string(to))
		s.audit.MovementTransition(r, u.Email, m.NumeroBMM, to == inventory.Valide)
		s.movementLogger(r, m).Info().Str(xglog.FieldEvent, "movement.status_changed").Msg("movement status changed")
		writeJSON(w, http.StatusOK, m)
	}
}

type bulkAction struct {
	name string
	run  func(s *store.Store, ctx context.Context, ids []int64, userID int64) store.BulkResult
}

var (
	bulkValidate = bulkAction{"validate", (*store.Store).BulkValidate}
	bulkCancel   = bulkAction{"cancel", (*store.Store).BulkCancel}
)

type bulkRequest struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) handleBulk(action bulkAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, _ := currentUser(r)
		var req bulkRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
		if len(req.IDs) == 0 {
			s.writeError(w, r, inventory.Invalid("ids", "Ce champ est obligatoire."))
			return
		}
		res := action.run(s.store, r.Context(), req.IDs, u.ID)
		metrics.RecordBulk(action.name, res.SuccessCount, res.ErrorCount)
		s.audit.Bulk(r, u.Email, action.name, res.SuccessCount, res.ErrorCount)
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Info().
			Str(xglog.FieldEvent, "movement.bulk_"+action.name).
			Int("success", res.SuccessCount).
			Int("errors", res.ErrorCount).
			Msg("bulk action finished")
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	p, err := s.listParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.store.ListHistory(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writePage(s, w, r, p, page)
}

func (s *Server) movementLogger(r *http.Request, m inventory.Movement) *zerolog.Logger {
	l := xglog.WithComponentFromContext(r.Context(), "api").With().
		Int64("id", m.ID).
		Str(xglog.FieldMovement, m.NumeroBMM).
		Str(xglog.FieldStatus, string(m.Statut)).
		Logger()
	return &l
}

// lineRepo adapts the line operations of the store to repo.
type lineRepo struct{ s *store.Store }

func (l lineRepo) List(ctx context.Context, p store.ListParams) (store.Page[inventory.Line], error) {
	return l.s.ListLines(ctx, p)
}

func (l lineRepo) Get(ctx context.Context, id int64) (inventory.Line, error) {
	return l.s.GetLine(ctx, id)
}

func (l lineRepo) Create(ctx context.Context, v *inventory.Line) error { return l.s.CreateLine(ctx, v) }

func (l lineRepo) Update(ctx context.Context, id int64, v *inventory.Line) error {
	return l.s.UpdateLine(ctx, id, v)
}

func (l lineRepo) Delete(ctx context.Context, id int64) ([]string, error) {
	return nil, l.s.DeleteLine(ctx, id)
}
