// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/gestprep/internal/store"
)

const maxJSONBody = 1 << 20

// reserved query parameters that are not field filters.
var reserved = map[string]bool{"page": true, "search": true, "ordering": true, "format": true}

// listParams reads pagination, search, ordering and filters from the query.
func (s *Server) listParams(r *http.Request) (store.ListParams, error) {
	q := r.URL.Query()
	p := store.ListParams{
		Page:     1,
		PageSize: s.config().API.PageSize,
		Search:   q.Get("search"),
		Ordering: q.Get("ordering"),
	}
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return p, errInvalidPage
		}
		p.Page = n
	}
	for k, v := range q {
		if reserved[k] || len(v) == 0 || v[0] == "" {
			continue
		}
		if p.Filters == nil {
			p.Filters = map[string]string{}
		}
		p.Filters[k] = v[0]
	}
	return p, nil
}

type pageBody[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

// writePage renders a page with absolute next/previous links. A page past
// the end is a 404.
func writePage[T any](s *Server, w http.ResponseWriter, r *http.Request, p store.ListParams, page store.Page[T]) {
	size := p.PageSize
	if size < 1 {
		size = 10
	}
	if p.Page > 1 && (p.Page-1)*size >= page.Count {
		s.writeError(w, r, errInvalidPage)
		return
	}
	body := pageBody[T]{Count: page.Count, Results: page.Items}
	if body.Results == nil {
		body.Results = []T{}
	}
	if p.Page*size < page.Count {
		u := pageURL(r, p.Page+1)
		body.Next = &u
	}
	if p.Page > 1 {
		u := pageURL(r, p.Page-1)
		body.Previous = &u
	}
	writeJSON(w, http.StatusOK, body)
}

func pageURL(r *http.Request, page int) string {
	q := r.URL.Query()
	if page <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	path := r.URL.Path
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}
	return absoluteURL(r, path)
}

// absoluteURL resolves path against the public origin of r, honoring the
// forwarding headers set by the gateway.
func absoluteURL(r *http.Request, path string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	host := r.Host
	if h := r.Header.Get("X-Forwarded-Host"); h != "" {
		host = h
	}
	return (&url.URL{Scheme: scheme, Host: host}).String() + path
}

// decodeJSON decodes the request body into v. An empty body leaves v as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(body).Decode(v)
	var mbe *http.MaxBytesError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil
	case errors.As(err, &mbe):
		return err
	default:
		return fmt.Errorf("%w - %s", errBadJSON, err)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, errNotFoundID
	}
	return id, nil
}
