// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/ManuGH/gestprep/internal/inventory"
)

// Catalog groups the repositories of the reference data.
type Catalog struct {
	Sites          *Repo[inventory.Site]
	Unites         *Repo[inventory.Unite]
	Trains         *Repo[inventory.Train]
	Equipements    *Repo[inventory.Equipement]
	Categories     *Repo[inventory.CategorieArticle]
	Stocks         *Repo[inventory.Stock]
	Articles       *Repo[inventory.Article]
	Phases         *Repo[inventory.Phase]
	TypesPlatinage *Repo[inventory.TypePlatinage]
	Platinages     *Repo[inventory.Platinage]
}

// Catalog returns the catalog repositories bound to s.
func (s *Store) Catalog() *Catalog {
	return &Catalog{
		Sites: &Repo[inventory.Site]{s: s, t: siteTable,
			uniques: map[string]uniqueRule{"sites.nom": {"nom", uniqueMessage("site", "nom")}},
			docs: func(id int64) sq.Sqlizer {
				return sq.Or{
					sq.Expr("d.equipement_id IN (SELECT e.id FROM equipements e JOIN trains t ON t.id = e.train_id JOIN unites u ON u.id = t.unite_id WHERE u.site_id = ?)", id),
					sq.Expr("d.article_id IN (SELECT a.id FROM articles a JOIN stocks st ON st.id = a.stock_id WHERE st.site_id = ?)", id),
				}
			},
		},
		Unites: &Repo[inventory.Unite]{s: s, t: uniteTable,
			refs: func(v *inventory.Unite) []ref { return []ref{{"site", "sites", v.Site}} },
			uniques: map[string]uniqueRule{
				"unites.site_id, unites.nom": {"", uniqueTogether("site", "nom")},
			},
			docs: func(id int64) sq.Sqlizer {
				return sq.Expr("d.equipement_id IN (SELECT e.id FROM equipements e JOIN trains t ON t.id = e.train_id WHERE t.unite_id = ?)", id)
			},
		},
		Trains: &Repo[inventory.Train]{s: s, t: trainTable,
			refs: func(v *inventory.Train) []ref { return []ref{{"unite", "unites", v.Unite}} },
			uniques: map[string]uniqueRule{
				"trains.unite_id, trains.nom": {"", uniqueTogether("unite", "nom")},
			},
			docs: func(id int64) sq.Sqlizer {
				return sq.Expr("d.equipement_id IN (SELECT id FROM equipements WHERE train_id = ?)", id)
			},
		},
		Equipements: &Repo[inventory.Equipement]{s: s, t: equipementTable,
			refs:    func(v *inventory.Equipement) []ref { return []ref{{"train", "trains", v.Train}} },
			uniques: map[string]uniqueRule{"equipements.tag": {"tag", uniqueMessage("equipement", "tag")}},
			docs:    func(id int64) sq.Sqlizer { return sq.Eq{"d.equipement_id": id} },
		},
		Categories: &Repo[inventory.CategorieArticle]{s: s, t: categorieTable,
			uniques: map[string]uniqueRule{"categories_article.nom": {"nom", uniqueMessage("catégorie d'article", "nom")}},
			docs: func(id int64) sq.Sqlizer {
				return sq.Expr("d.article_id IN (SELECT id FROM articles WHERE categorie_article_id = ?)", id)
			},
		},
		Stocks: &Repo[inventory.Stock]{s: s, t: stockTable,
			refs: func(v *inventory.Stock) []ref { return []ref{{"site", "sites", v.Site}} },
			uniques: map[string]uniqueRule{
				"stocks.nom, stocks.type_stock, stocks.emplacement": {"", uniqueTogether("nom", "type_stock", "emplacement")},
			},
			docs: func(id int64) sq.Sqlizer {
				return sq.Expr("d.article_id IN (SELECT id FROM articles WHERE stock_id = ?)", id)
			},
			normalize: func(v *inventory.Stock) { v.Normalize() },
		},
		Articles: &Repo[inventory.Article]{s: s, t: articleTable,
			refs: func(v *inventory.Article) []ref {
				return []ref{
					{"stock", "stocks", v.Stock},
					{"categorie_article", "categories_article", v.CategorieArticle},
				}
			},
			uniques: map[string]uniqueRule{
				"articles.code_article, articles.stock_id": {"", uniqueTogether("code_article", "stock")},
			},
			docs: func(id int64) sq.Sqlizer { return sq.Eq{"d.article_id": id} },
		},
		Phases: &Repo[inventory.Phase]{s: s, t: phaseTable,
			uniques: map[string]uniqueRule{"phases.nom": {"nom", uniqueMessage("phase", "nom")}},
			load:    loadPhasePlatinages(s),
			save:    savePhasePlatinages(s),
		},
		TypesPlatinage: &Repo[inventory.TypePlatinage]{s: s, t: typePlatinageTable,
			uniques: map[string]uniqueRule{"types_platinage.nom": {"nom", uniqueMessage("type de platinage", "nom")}},
		},
		Platinages: &Repo[inventory.Platinage]{s: s, t: platinageTable,
			refs: func(v *inventory.Platinage) []ref {
				return []ref{
					{"equipement", "equipements", v.Equipement},
					{"article", "articles", v.Article},
					{"type_platinage", "types_platinage", v.TypePlatinage},
				}
			},
		},
	}
}

// Alerts returns the articles whose stock reached their alert threshold.
func (c *Catalog) Alerts(ctx context.Context, p ListParams) (Page[inventory.Article], error) {
	r := c.Articles
	return list(ctx, r.s.db, r.s.sb, r.t, p,
		sq.Expr("CAST(a.quantite_stock AS REAL) <= CAST(a.seuil_alerte AS REAL)"))
}

var siteTable = &table[inventory.Site]{
	name: "sites", alias: "s",
	selectCols: []string{"s.id", "s.nom", "s.description"},
	writeCols:  []string{"nom", "description"},
	scan: func(r rowScanner, v *inventory.Site) error {
		return r.Scan(&v.ID, &v.Nom, &v.Description)
	},
	values: func(v *inventory.Site) []any { return []any{v.Nom, v.Description} },
	setID:  func(v *inventory.Site, id int64) { v.ID = id },
	getID:  func(v *inventory.Site) int64 { return v.ID },
	list: listSpec{
		search:   []string{"s.nom", "s.description"},
		ordering: map[string]string{"id": "s.id", "nom": "s.nom"},
		defaults: []string{"s.nom"},
	},
}

var uniteTable = &table[inventory.Unite]{
	name: "unites", alias: "u",
	joins:      []string{"JOIN sites s ON s.id = u.site_id"},
	selectCols: []string{"u.id", "u.nom", "u.site_id", "u.description"},
	writeCols:  []string{"nom", "site_id", "description"},
	scan: func(r rowScanner, v *inventory.Unite) error {
		return r.Scan(&v.ID, &v.Nom, &v.Site, &v.Description)
	},
	values: func(v *inventory.Unite) []any { return []any{v.Nom, v.Site, v.Description} },
	setID:  func(v *inventory.Unite, id int64) { v.ID = id },
	getID:  func(v *inventory.Unite) int64 { return v.ID },
	list: listSpec{
		search:   []string{"u.nom", "s.nom"},
		filters:  map[string]string{"site": "u.site_id"},
		ordering: map[string]string{"id": "u.id", "nom": "u.nom", "site": "s.nom"},
		defaults: []string{"s.nom", "u.nom"},
	},
}

var trainTable = &table[inventory.Train]{
	name: "trains", alias: "t",
	joins: []string{
		"JOIN unites u ON u.id = t.unite_id",
		"JOIN sites s ON s.id = u.site_id",
	},
	selectCols: []string{"t.id", "t.nom", "t.unite_id", "t.description"},
	writeCols:  []string{"nom", "unite_id", "description"},
	scan: func(r rowScanner, v *inventory.Train) error {
		return r.Scan(&v.ID, &v.Nom, &v.Unite, &v.Description)
	},
	values: func(v *inventory.Train) []any { return []any{v.Nom, v.Unite, v.Description} },
	setID:  func(v *inventory.Train, id int64) { v.ID = id },
	getID:  func(v *inventory.Train) int64 { return v.ID },
	list: listSpec{
		search:   []string{"t.nom"},
		filters:  map[string]string{"unite": "t.unite_id", "site": "u.site_id"},
		ordering: map[string]string{"id": "t.id", "nom": "t.nom", "unite": "u.nom"},
		defaults: []string{"s.nom", "u.nom", "t.nom"},
	},
}

var equipementTable = &table[inventory.Equipement]{
	name: "equipements", alias: "e",
	joins: []string{
		"JOIN trains t ON t.id = e.train_id",
		"JOIN unites u ON u.id = t.unite_id",
		"JOIN sites s ON s.id = u.site_id",
	},
	selectCols: []string{"e.id", "e.tag", "e.description", "e.train_id", "s.nom", "u.nom", "t.nom"},
	writeCols:  []string{"tag", "description", "train_id"},
	scan: func(r rowScanner, v *inventory.Equipement) error {
		var loc inventory.EquipementLocation
		if err := r.Scan(&v.ID, &v.Tag, &v.Description, &v.Train, &loc.Site, &loc.Unite, &loc.Train); err != nil {
			return err
		}
		v.Display = inventory.DisplayEquipement(*v, loc)
		return nil
	},
	values: func(v *inventory.Equipement) []any { return []any{v.Tag, v.Description, v.Train} },
	setID:  func(v *inventory.Equipement, id int64) { v.ID = id },
	getID:  func(v *inventory.Equipement) int64 { return v.ID },
	list: listSpec{
		search:   []string{"e.tag", "e.description"},
		filters:  map[string]string{"train": "e.train_id", "unite": "t.unite_id", "site": "u.site_id"},
		ordering: map[string]string{"id": "e.id", "tag": "e.tag"},
		defaults: []string{"e.tag"},
	},
}

var categorieTable = &table[inventory.CategorieArticle]{
	name: "categories_article", alias: "c",
	selectCols: []string{"c.id", "c.nom", "c.description"},
	writeCols:  []string{"nom", "description"},
	scan: func(r rowScanner, v *inventory.CategorieArticle) error {
		return r.Scan(&v.ID, &v.Nom, &v.Description)
	},
	values: func(v *inventory.CategorieArticle) []any { return []any{v.Nom, v.Description} },
	setID:  func(v *inventory.CategorieArticle, id int64) { v.ID = id },
	getID:  func(v *inventory.CategorieArticle) int64 { return v.ID },
	list: listSpec{
		search:   []string{"c.nom", "c.description"},
		ordering: map[string]string{"id": "c.id", "nom": "c.nom"},
		defaults: []string{"c.nom"},
	},
}

var stockTable = &table[inventory.Stock]{
	name: "stocks", alias: "st",
	selectCols: []string{"st.id", "st.nom", "st.site_id", "st.type_stock", "st.description", "st.emplacement"},
	writeCols:  []string{"nom", "site_id", "type_stock", "description", "emplacement"},
	scan: func(r rowScanner, v *inventory.Stock) error {
		return r.Scan(&v.ID, &v.Nom, &v.Site, &v.TypeStock, &v.Description, &v.Emplacement)
	},
	values: func(v *inventory.Stock) []any {
		return []any{v.Nom, v.Site, string(v.TypeStock), v.Description, v.Emplacement}
	},
	setID: func(v *inventory.Stock, id int64) { v.ID = id },
	getID: func(v *inventory.Stock) int64 { return v.ID },
	list: listSpec{
		search:   []string{"st.nom", "st.description", "st.emplacement"},
		filters:  map[string]string{"site": "st.site_id", "type_stock": "st.type_stock"},
		ordering: map[string]string{"id": "st.id", "nom": "st.nom", "emplacement": "st.emplacement"},
		defaults: []string{"st.nom"},
	},
}

var articleTable = &table[inventory.Article]{
	name: "articles", alias: "a",
	joins: []string{
		"JOIN stocks st ON st.id = a.stock_id",
		"JOIN categories_article c ON c.id = a.categorie_article_id",
	},
	selectCols: []string{
		"a.id", "a.code_article", "a.description", "a.specification", "a.prix", "a.devise",
		"a.stock_id", "a.categorie_article_id", "a.unite_mesure",
		"a.quantite_initiale", "a.quantite_stock", "a.seuil_alerte",
		"st.nom", "st.emplacement", "c.nom",
	},
	writeCols: []string{
		"code_article", "description", "specification", "prix", "devise",
		"stock_id", "categorie_article_id", "unite_mesure",
		"quantite_initiale", "quantite_stock", "seuil_alerte",
	},
	scan: func(r rowScanner, v *inventory.Article) error {
		var st inventory.Stock
		var cat inventory.CategorieArticle
		if err := r.Scan(&v.ID, &v.CodeArticle, &v.Description, &v.Specification, &v.Prix, &v.Devise,
			&v.Stock, &v.CategorieArticle, &v.UniteMesure,
			&v.QuantiteInitiale, &v.QuantiteStock, &v.SeuilAlerte,
			&st.Nom, &st.Emplacement, &cat.Nom); err != nil {
			return err
		}
		v.Display = inventory.DisplayArticle(*v, &st, &cat)
		return nil
	},
	values: func(v *inventory.Article) []any {
		var devise any
		if v.Devise != nil && *v.Devise != "" {
			devise = string(*v.Devise)
		}
		return []any{v.CodeArticle, v.Description, v.Specification, v.Prix, devise,
			v.Stock, v.CategorieArticle, v.UniteMesure,
			v.QuantiteInitiale, v.QuantiteStock, v.SeuilAlerte}
	},
	setID: func(v *inventory.Article, id int64) { v.ID = id },
	getID: func(v *inventory.Article) int64 { return v.ID },
	list: listSpec{
		search: []string{"a.code_article", "a.description", "st.nom", "c.nom"},
		filters: map[string]string{
			"stock": "a.stock_id", "categorie_article": "a.categorie_article_id",
			"site": "st.site_id", "devise": "a.devise",
		},
		ordering: map[string]string{
			"id": "a.id", "code_article": "a.code_article",
			"quantite_stock": "CAST(a.quantite_stock AS REAL)",
		},
		defaults: []string{"a.code_article"},
	},
}

var phaseTable = &table[inventory.Phase]{
	name: "phases", alias: "p",
	selectCols: []string{"p.id", "p.nom", "p.description"},
	writeCols:  []string{"nom", "description"},
	scan: func(r rowScanner, v *inventory.Phase) error {
		return r.Scan(&v.ID, &v.Nom, &v.Description)
	},
	values: func(v *inventory.Phase) []any { return []any{v.Nom, v.Description} },
	setID:  func(v *inventory.Phase, id int64) { v.ID = id },
	getID:  func(v *inventory.Phase) int64 { return v.ID },
	list: listSpec{
		search:   []string{"p.nom", "p.description"},
		ordering: map[string]string{"id": "p.id", "nom": "p.nom"},
		defaults: []string{"p.nom"},
	},
}

var typePlatinageTable = &table[inventory.TypePlatinage]{
	name: "types_platinage", alias: "tp",
	selectCols: []string{"tp.id", "tp.nom", "tp.description"},
	writeCols:  []string{"nom", "description"},
	scan: func(r rowScanner, v *inventory.TypePlatinage) error {
		return r.Scan(&v.ID, &v.Nom, &v.Description)
	},
	values: func(v *inventory.TypePlatinage) []any { return []any{v.Nom, v.Description} },
	setID:  func(v *inventory.TypePlatinage, id int64) { v.ID = id },
	getID:  func(v *inventory.TypePlatinage) int64 { return v.ID },
	list: listSpec{
		search:   []string{"tp.nom", "tp.description"},
		ordering: map[string]string{"id": "tp.id", "nom": "tp.nom"},
		defaults: []string{"tp.nom"},
	},
}

var platinageTable = &table[inventory.Platinage]{
	name: "platinages", alias: "pl",
	joins: []string{
		"JOIN equipements e ON e.id = pl.equipement_id",
		"JOIN articles a ON a.id = pl.article_id",
	},
	selectCols: []string{"pl.id", "pl.equipement_id", "pl.article_id", "pl.type_platinage_id",
		"pl.repere", "pl.date_debut", "pl.date_fin", "pl.remarque"},
	writeCols: []string{"equipement_id", "article_id", "type_platinage_id",
		"repere", "date_debut", "date_fin", "remarque"},
	scan: func(r rowScanner, v *inventory.Platinage) error {
		return r.Scan(&v.ID, &v.Equipement, &v.Article, &v.TypePlatinage,
			&v.Repere, scanNullTime(&v.DateDebut), scanNullTime(&v.DateFin), &v.Remarque)
	},
	values: func(v *inventory.Platinage) []any {
		return []any{v.Equipement, v.Article, v.TypePlatinage,
			v.Repere, nullTimeValue(v.DateDebut), nullTimeValue(v.DateFin), v.Remarque}
	},
	setID: func(v *inventory.Platinage, id int64) { v.ID = id },
	getID: func(v *inventory.Platinage) int64 { return v.ID },
	list: listSpec{
		search: []string{"e.tag", "a.code_article", "pl.repere"},
		filters: map[string]string{
			"equipement": "pl.equipement_id", "article": "pl.article_id",
			"type_platinage": "pl.type_platinage_id",
		},
		ordering: map[string]string{"id": "pl.id", "repere": "pl.repere", "date_debut": "pl.date_debut"},
		defaults: []string{"pl.id"},
	},
}

func loadPhasePlatinages(s *Store) func(context.Context, querier, []inventory.Phase) error {
	return func(ctx context.Context, q querier, items []inventory.Phase) error {
		if len(items) == 0 {
			return nil
		}
		ids := make([]int64, len(items))
		index := make(map[int64]int, len(items))
		for i := range items {
			ids[i] = items[i].ID
			index[items[i].ID] = i
			items[i].Platinages = []int64{}
		}
		rows, err := queryRows(ctx, q, s.sb.Select("phase_id", "platinage_id").
			From("phase_platinages").Where(sq.Eq{"phase_id": ids}).OrderBy("platinage_id"))
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var phase, pl int64
			if err := rows.Scan(&phase, &pl); err != nil {
				return err
			}
			i := index[phase]
			items[i].Platinages = append(items[i].Platinages, pl)
		}
		return rows.Err()
	}
}

func savePhasePlatinages(s *Store) func(context.Context, querier, *inventory.Phase) error {
	return func(ctx context.Context, q querier, v *inventory.Phase) error {
		if _, err := exec(ctx, q, s.sb.Delete("phase_platinages").Where(sq.Eq{"phase_id": v.ID})); err != nil {
			return err
		}
		errs := inventory.NewValidationError()
		seen := map[int64]bool{}
		for _, pl := range v.Platinages {
			if seen[pl] {
				continue
			}
			seen[pl] = true
			ok, err := exists(ctx, q, s.sb, "platinages", pl)
			if err != nil {
				return err
			}
			if !ok {
				errs.Add("platinages", missingRef(pl))
				continue
			}
			if _, err := exec(ctx, q, s.sb.Insert("phase_platinages").
				Columns("phase_id", "platinage_id").Values(v.ID, pl)); err != nil {
				return err
			}
		}
		return errs.Err()
	}
}
