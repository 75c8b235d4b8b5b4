// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/ManuGH/gestprep/internal/inventory"
)

var documentTable = &table[inventory.Document]{
	name: "documents", alias: "d",
	joins: []string{
		"LEFT JOIN articles a ON a.id = d.article_id",
		"LEFT JOIN equipements e ON e.id = d.equipement_id",
	},
	selectCols: []string{"d.id", "d.fichier", "d.remarque", "d.article_id", "d.equipement_id",
		"d.uploaded_by", "d.date_upload", "COALESCE(a.code_article, e.tag, '')"},
	writeCols: []string{"fichier", "remarque", "article_id", "equipement_id", "uploaded_by", "date_upload"},
	scan: func(r rowScanner, v *inventory.Document) error {
		var owner string
		if err := r.Scan(&v.ID, &v.Fichier, &v.Remarque, &v.Article, &v.Equipement,
			&v.UploadedBy, scanTime(&v.DateUpload), &owner); err != nil {
			return err
		}
		v.Display = inventory.DisplayDocument(*v, owner)
		return nil
	},
	values: func(v *inventory.Document) []any {
		return []any{v.Fichier, v.Remarque, v.Article, v.Equipement, v.UploadedBy, timeValue(v.DateUpload)}
	},
	setID: func(v *inventory.Document, id int64) { v.ID = id },
	getID: func(v *inventory.Document) int64 { return v.ID },
	list: listSpec{
		search:   []string{"d.fichier", "d.remarque", "a.code_article", "e.tag"},
		filters:  map[string]string{"article": "d.article_id", "equipement": "d.equipement_id", "uploaded_by": "d.uploaded_by"},
		ordering: map[string]string{"id": "d.id", "date_upload": "d.date_upload"},
		defaults: []string{"d.date_upload DESC"},
	},
}

// ListDocuments returns one page of documents.
func (s *Store) ListDocuments(ctx context.Context, p ListParams) (Page[inventory.Document], error) {
	return list(ctx, s.db, s.sb, documentTable, p)
}

// GetDocument returns one document.
func (s *Store) GetDocument(ctx context.Context, id int64) (inventory.Document, error) {
	return get(ctx, s.db, s.sb, documentTable, id)
}

// CreateDocument records an uploaded file.
func (s *Store) CreateDocument(ctx context.Context, d *inventory.Document) error {
	if d.DateUpload.IsZero() {
		d.DateUpload = s.now()
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.checkDocument(ctx, tx, d); err != nil {
			return err
		}
		if err := insert(ctx, tx, s.sb, documentTable, d); err != nil {
			return err
		}
		fresh, err := get(ctx, tx, s.sb, documentTable, d.ID)
		if err != nil {
			return err
		}
		*d = fresh
		return nil
	})
}

// UpdateDocument replaces a document. It returns the previous file path
// when the file changed, so the caller can remove it.
func (s *Store) UpdateDocument(ctx context.Context, id int64, d *inventory.Document) (string, error) {
	var replaced string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		prev, err := get(ctx, tx, s.sb, documentTable, id)
		if err != nil {
			return err
		}
		if d.Fichier == "" {
			d.Fichier = prev.Fichier
		}
		d.UploadedBy = prev.UploadedBy
		d.DateUpload = prev.DateUpload
		if err := s.checkDocument(ctx, tx, d); err != nil {
			return err
		}
		if err := update(ctx, tx, s.sb, documentTable, id, d); err != nil {
			return err
		}
		if prev.Fichier != d.Fichier {
			replaced = prev.Fichier
		}
		fresh, err := get(ctx, tx, s.sb, documentTable, id)
		if err != nil {
			return err
		}
		*d = fresh
		return nil
	})
	return replaced, err
}

// DeleteDocument removes a document and returns its file path.
func (s *Store) DeleteDocument(ctx context.Context, id int64) (string, error) {
	var path string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		d, err := get(ctx, tx, s.sb, documentTable, id)
		if err != nil {
			return err
		}
		path = d.Fichier
		return remove(ctx, tx, s.sb, documentTable, id)
	})
	return path, err
}

func (s *Store) checkDocument(ctx context.Context, q querier, d *inventory.Document) error {
	if err := d.Validate(); err != nil {
		return err
	}
	errs := inventory.NewValidationError()
	check := func(field, tableName string, id *int64) error {
		if id == nil {
			return nil
		}
		ok, err := exists(ctx, q, s.sb, tableName, *id)
		if err != nil {
			return err
		}
		if !ok {
			errs.Add(field, missingRef(*id))
		}
		return nil
	}
	if err := check("article", "articles", d.Article); err != nil {
		return err
	}
	if err := check("equipement", "equipements", d.Equipement); err != nil {
		return err
	}
	return errs.Err()
}

func documentFiles(ctx context.Context, q querier, sb sq.StatementBuilderType, where sq.Sqlizer) ([]string, error) {
	rows, err := queryRows(ctx, q, sb.Select("d.fichier").From("documents d").Where(where))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
