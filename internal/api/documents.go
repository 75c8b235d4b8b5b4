// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"io/fs"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/gestprep/internal/fsutil"
	"github.com/ManuGH/gestprep/internal/inventory"
	xglog "github.com/ManuGH/gestprep/internal/log"
	"github.com/ManuGH/gestprep/internal/metrics"
)

const (
	multipartMemory = 8 << 20
	mediaPrefix     = "/media/"
)

func (s *Server) routeDocuments(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", s.handleListDocuments)
		r.Post("/", s.handleCreateDocument)
		r.Get("/{id}/", s.handleGetDocument)
		r.Put("/{id}/", s.handleUpdateDocument(false))
		r.Patch("/{id}/", s.handleUpdateDocument(true))
		r.Delete("/{id}/", s.handleDeleteDocument)
	})
}

// upload is an optional file part of a document request.
type upload struct {
	file   multipart.File
	header *multipart.FileHeader
}

func (u *upload) close() {
	if u != nil && u.file != nil {
		_ = u.file.Close()
	}
}

// readDocument applies the request body to d. Multipart bodies may carry
// the "fichier" file part; JSON bodies never change the stored file.
func (s *Server) readDocument(w http.ResponseWriter, r *http.Request, d *inventory.Document) (*upload, error) {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		stored := d.Fichier
		if err := decodeJSON(w, r, d); err != nil {
			return nil, err
		}
		d.Fichier = stored
		return nil, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config().Media.MaxUploadSize)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, err
		}
		return nil, badRequest{"Multipart form parse error - " + err.Error()}
	}
	form := r.MultipartForm.Value
	errs := inventory.NewValidationError()
	if v, ok := form["remarque"]; ok {
		d.Remarque = nil
		if len(v) > 0 && v[0] != "" {
			rem := v[0]
			d.Remarque = &rem
		}
	}
	for field, dst := range map[string]**int64{"article": &d.Article, "equipement": &d.Equipement} {
		v, ok := form[field]
		if !ok {
			continue
		}
		*dst = nil
		if len(v) == 0 || v[0] == "" {
			continue
		}
		id, err := strconv.ParseInt(v[0], 10, 64)
		if err != nil {
			errs.Add(field, "Type incorrect. Attendait une clé primaire, a reçu "+strconv.Quote(v[0])+".")
			continue
		}
		*dst = &id
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	file, header, err := r.FormFile("fichier")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, badRequest{"Multipart form parse error - " + err.Error()}
	}
	return &upload{file: file, header: header}, nil
}

// storeUpload writes the upload under the directory of d and points d at it.
func (s *Server) storeUpload(r *http.Request, d *inventory.Document, up *upload) error {
	rel, err := s.media.Save(r.Context(), d.UploadDir(), up.header.Filename, up.file)
	if err != nil {
		return err
	}
	d.Fichier = rel
	metrics.IncDocumentStored()
	return nil
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	p, err := s.listParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := s.store.ListDocuments(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for i := range page.Items {
		page.Items[i] = documentView(r, page.Items[i])
	}
	writePage(s, w, r, p, page)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, documentView(r, d))
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r)
	var d inventory.Document
	up, err := s.readDocument(w, r, &d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer up.close()

	d.UploadedBy = u.ID
	if up != nil {
		d.Fichier = up.header.Filename
	}
	if err := d.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.storeUpload(r, &d, up); err != nil {
		s.writeError(w, r, err)
		return
	}
	saved := d.Fichier
	if err := s.store.CreateDocument(r.Context(), &d); err != nil {
		s.removeFiles(r, saved)
		s.writeError(w, r, err)
		return
	}
	logger := xglog.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(xglog.FieldEvent, "document.uploaded").
		Int64("id", d.ID).
		Str("fichier", d.Fichier).
		Msg("document uploaded")
	writeJSON(w, http.StatusCreated, documentView(r, d))
}

func (s *Server) handleUpdateDocument(partial bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		current, err := s.store.GetDocument(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next := current
		if !partial {
			next = inventory.Document{
				ID:         current.ID,
				Fichier:    current.Fichier,
				UploadedBy: current.UploadedBy,
				DateUpload: current.DateUpload,
			}
		}
		up, err := s.readDocument(w, r, &next)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		defer up.close()

		if err := next.Validate(); err != nil {
			s.writeError(w, r, err)
			return
		}
		var saved string
		if up != nil {
			if err := s.storeUpload(r, &next, up); err != nil {
				s.writeError(w, r, err)
				return
			}
			saved = next.Fichier
		}
		replaced, err := s.store.UpdateDocument(r.Context(), id, &next)
		if err != nil {
			if saved != "" {
				s.removeFiles(r, saved)
			}
			s.writeError(w, r, err)
			return
		}
		if replaced != "" {
			s.removeFiles(r, replaced)
		}
		writeJSON(w, http.StatusOK, documentView(r, next))
	}
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	file, err := s.store.DeleteDocument(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.removeFiles(r, file)
	w.WriteHeader(http.StatusNoContent)
}

// documentView exposes the stored file as an absolute media URL.
func documentView(r *http.Request, d inventory.Document) inventory.Document {
	if d.Fichier != "" {
		d.Fichier = absoluteURL(r, mediaPrefix+d.Fichier)
	}
	return d
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	f, err := s.media.Open(rel)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fsutil.ErrOutsideRoot) {
			logger := xglog.WithComponentFromContext(r.Context(), "api")
			logger.Debug().Err(err).Str(xglog.FieldPath, rel).Msg("media lookup refused")
		}
		writeDetail(w, http.StatusNotFound, msgNotFound)
		return
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.ServeContent(w, r, path.Base(rel), info.ModTime(), f)
}
