// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/gestprep/internal/inventory"
	xglog "github.com/ManuGH/gestprep/internal/log"
	"github.com/ManuGH/gestprep/internal/metrics"
	"github.com/ManuGH/gestprep/internal/store"
)

// repo is the CRUD surface of a store repository.
type repo[T any] interface {
	List(ctx context.Context, p store.ListParams) (store.Page[T], error)
	Get(ctx context.Context, id int64) (T, error)
	Create(ctx context.Context, v *T) error
	Update(ctx context.Context, id int64, v *T) error
	Delete(ctx context.Context, id int64) ([]string, error)
}

// resource serves list, create, retrieve, update, partial update and
// delete for one repository.
type resource[T any] struct {
	s    *Server
	name string
	repo repo[T]
}

func mount[T any](r chi.Router, s *Server, name string, rp repo[T], extra func(chi.Router)) {
	res := &resource[T]{s: s, name: name, repo: rp}
	r.Route("/"+name, func(r chi.Router) {
		r.Get("/", res.list)
		r.Post("/", res.create)
		if extra != nil {
			extra(r)
		}
		r.Get("/{id}/", res.retrieve)
		r.Put("/{id}/", res.update)
		r.Patch("/{id}/", res.partialUpdate)
		r.Delete("/{id}/", res.destroy)
	})
}

func (res *resource[T]) list(w http.ResponseWriter, r *http.Request) {
	p, err := res.s.listParams(r)
	if err != nil {
		res.s.writeError(w, r, err)
		return
	}
	page, err := res.repo.List(r.Context(), p)
	if err != nil {
		res.s.writeError(w, r, err)
		return
	}
	writePage(res.s, w, r, p, page)
}

func (res *resource[T]) create(w http.ResponseWriter, r *http.Request) {
	var v T
	if err := decodeJSON(w, r, &v); err != nil {
		res.s.writeError(w, r, err)
		return
	}
	if err := res.repo.Create(r.Context(), &v); err != nil {
		res.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (res *resource[T]) retrieve(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		res.s.writeError(w, r, err)
		return
	}
	v, err := res.repo.Get(r.Context(), id)
	if err != nil {
		res.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (res *resource[T]) update(w http.ResponseWriter, r *http.Request) {
	res.save(w, r, false)
}

func (res *resource[T]) partialUpdate(w http.ResponseWriter, r *http.Request) {
	res.save(w, r, true)
}

// save replaces the entity, or with partial merges the body over it.
func (res *resource[T]) save(w http.ResponseWriter, r *http.Request, partial bool) {
	id, err := pathID(r, "id")
	if err != nil {
		res.s.writeError(w, r, err)
		return
	}
	current, err := res.repo.Get(r.Context(), id)
	if err != nil {
		res.s.writeError(w, r, err)
		return
	}
	var next T
	if partial {
		next = current
	}
	if err := decodeJSON(w, r, &next); err != nil {
		res.s.writeError(w, r, err)
		return
	}
	if err := res.repo.Update(r.Context(), id, &next); err != nil {
		res.s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (res *resource[T]) destroy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		res.s.writeError(w, r, err)
		return
	}
	files, err := res.repo.Delete(r.Context(), id)
	if err != nil {
		res.s.writeError(w, r, err)
		return
	}
	res.s.removeFiles(r, files...)
	logger := xglog.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(xglog.FieldEvent, res.name+".deleted").
		Int64("id", id).
		Int("files", len(files)).
		Msg("record deleted")
	w.WriteHeader(http.StatusNoContent)
}

// removeFiles deletes stored files whose records are gone. Failures are
// logged only since the records no longer reference them.
func (s *Server) removeFiles(r *http.Request, files ...string) {
	if len(files) == 0 || s.media == nil {
		return
	}
	if err := s.media.Remove(r.Context(), files...); err != nil {
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Err(err).
			Str(xglog.FieldEvent, "media.remove_failed").
			Strs("files", files).
			Msg("failed to remove stored files")
	}
}

func (s *Server) routeCatalog(r chi.Router) {
	c := s.catalog
	mount[inventory.Site](r, s, "sites", c.Sites, nil)
	mount[inventory.Unite](r, s, "unites", c.Unites, nil)
	mount[inventory.Train](r, s, "trains", c.Trains, nil)
	mount[inventory.Equipement](r, s, "equipements", c.Equipements, nil)
	mount[inventory.CategorieArticle](r, s, "categories", c.Categories, nil)
	mount[inventory.Stock](r, s, "stocks", c.Stocks, nil)
	mount[inventory.Article](r, s, "articles", c.Articles, func(r chi.Router) {
		r.Get("/alerts/", s.handleAlerts)
	})
	mount[inventory.Phase](r, s, "phases", c.Phases, nil)
	mount[inventory.TypePlatinage](r, s, "types-platinage", c.TypesPlatinage, nil)
	mount[inventory.Platinage](r, s, "platinages", c.Platinages, nil)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	p, err := s.listParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.catalog.Alerts(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.RecordStockAlerts(page.Count)
	writePage(s, w, r, p, page)
}
