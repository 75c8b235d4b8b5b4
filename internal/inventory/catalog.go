// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package inventory

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Field-level messages shared by every entity.
const (
	msgRequired = "Ce champ est obligatoire."
	msgBlank    = "Ce champ ne peut être vide."
)

func msgMaxLength(n int) string {
	return fmt.Sprintf("Assurez-vous que ce champ comporte au plus %d caractères.", n)
}

func msgChoice(v string) string {
	return fmt.Sprintf("« %s » n'est pas un choix valide.", v)
}

func checkText(errs *ValidationError, field, v string, max int) {
	if strings.TrimSpace(v) == "" {
		errs.Add(field, msgBlank)
		return
	}
	if max > 0 && utf8.RuneCountInString(v) > max {
		errs.Add(field, msgMaxLength(max))
	}
}

func checkOptText(errs *ValidationError, field string, v *string, max int) {
	if v != nil && max > 0 && utf8.RuneCountInString(*v) > max {
		errs.Add(field, msgMaxLength(max))
	}
}

func checkRef(errs *ValidationError, field string, id int64) {
	if id <= 0 {
		errs.Add(field, msgRequired)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Site is a physical production site.
type Site struct {
	ID          int64   `json:"id"`
	Nom         string  `json:"nom"`
	Description *string `json:"description"`
}

func (s Site) Validate() error {
	errs := NewValidationError()
	checkText(errs, "nom", s.Nom, 100)
	return errs.Err()
}

func (s Site) String() string { return s.Nom }

// Unite is a production unit of a site.
type Unite struct {
	ID          int64   `json:"id"`
	Nom         string  `json:"nom"`
	Site        int64   `json:"site"`
	Description *string `json:"description"`
}

func (u Unite) Validate() error {
	errs := NewValidationError()
	checkText(errs, "nom", u.Nom, 100)
	checkRef(errs, "site", u.Site)
	return errs.Err()
}

// Train is a processing train inside a unit.
type Train struct {
	ID          int64   `json:"id"`
	Nom         string  `json:"nom"`
	Unite       int64   `json:"unite"`
	Description *string `json:"description"`
}

func (t Train) Validate() error {
	errs := NewValidationError()
	checkText(errs, "nom", t.Nom, 100)
	checkRef(errs, "unite", t.Unite)
	return errs.Err()
}

// Equipement is a tagged piece of equipment mounted on a train.
type Equipement struct {
	ID          int64  `json:"id"`
	Tag         string `json:"tag"`
	Description string `json:"description"`
	Train       int64  `json:"train"`
	Display     string `json:"display,omitempty"`
}

func (e Equipement) Validate() error {
	errs := NewValidationError()
	checkText(errs, "tag", e.Tag, 100)
	checkText(errs, "description", e.Description, 0)
	checkRef(errs, "train", e.Train)
	return errs.Err()
}

// EquipementLocation names the site, unit and train an equipment belongs to.
type EquipementLocation struct {
	Site, Unite, Train string
}

// DisplayEquipement renders "TAG - desc | Site: s | Unité: u | Train: t".
// A zero location renders only "TAG - desc".
func DisplayEquipement(e Equipement, loc EquipementLocation) string {
	head := e.Tag + " - " + e.Description
	if loc == (EquipementLocation{}) {
		return head
	}
	return fmt.Sprintf("%s | Site: %s | Unité: %s | Train: %s", head, loc.Site, loc.Unite, loc.Train)
}

// CategorieArticle groups articles.
type CategorieArticle struct {
	ID          int64   `json:"id"`
	Nom         string  `json:"nom"`
	Description *string `json:"description"`
}

func (c CategorieArticle) Validate() error {
	errs := NewValidationError()
	checkText(errs, "nom", c.Nom, 100)
	return errs.Err()
}

// StockType distinguishes warehouse and field storage.
type StockType string

const (
	StockMagasin     StockType = "MAGASIN"
	StockHorsMagasin StockType = "HORS_MAGASIN"
)

func (t StockType) Valid() bool { return t == StockMagasin || t == StockHorsMagasin }

// Stock is a storage location on a site.
type Stock struct {
	ID          int64     `json:"id"`
	Nom         string    `json:"nom"`
	Site        int64     `json:"site"`
	TypeStock   StockType `json:"type_stock"`
	Description *string   `json:"description"`
	Emplacement string    `json:"emplacement"`
}

// Normalize applies defaults before validation.
func (s *Stock) Normalize() {
	if s.TypeStock == "" {
		s.TypeStock = StockMagasin
	}
}

func (s Stock) Validate() error {
	errs := NewValidationError()
	checkText(errs, "nom", s.Nom, 100)
	checkRef(errs, "site", s.Site)
	if !s.TypeStock.Valid() {
		errs.Add("type_stock", msgChoice(string(s.TypeStock)))
	}
	checkText(errs, "emplacement", s.Emplacement, 100)
	return errs.Err()
}

func (s Stock) String() string { return s.Nom + " - " + s.Emplacement }

// Currency is an ISO code accepted for article prices.
type Currency string

const (
	EUR Currency = "EUR"
	USD Currency = "USD"
	GBP Currency = "GBP"
	DZD Currency = "DZD"
)

func (c Currency) Valid() bool {
	switch c {
	case EUR, USD, GBP, DZD:
		return true
	}
	return false
}

// Article is a stocked item.
type Article struct {
	ID               int64     `json:"id"`
	CodeArticle      string    `json:"code_article"`
	Description      string    `json:"description"`
	Specification    *string   `json:"specification"`
	Prix             *Decimal  `json:"prix"`
	Devise           *Currency `json:"devise"`
	Stock            int64     `json:"stock"`
	CategorieArticle int64     `json:"categorie_article"`
	UniteMesure      string    `json:"unite_mesure"`
	QuantiteInitiale Decimal   `json:"quantite_initiale"`
	QuantiteStock    Decimal   `json:"quantite_stock"`
	SeuilAlerte      Decimal   `json:"seuil_alerte"`
	Display          string    `json:"display,omitempty"`
}

func (a Article) Validate() error {
	errs := NewValidationError()
	checkText(errs, "code_article", a.CodeArticle, 100)
	checkText(errs, "description", a.Description, 0)
	checkRef(errs, "stock", a.Stock)
	checkRef(errs, "categorie_article", a.CategorieArticle)
	checkText(errs, "unite_mesure", a.UniteMesure, 20)
	checkDecimal(errs, "quantite_initiale", a.QuantiteInitiale, Zero)
	checkDecimal(errs, "quantite_stock", a.QuantiteStock, Zero)
	checkDecimal(errs, "seuil_alerte", a.SeuilAlerte, Zero)
	if a.Prix != nil {
		checkDecimal(errs, "prix", *a.Prix, Zero)
	}
	if a.Devise != nil && *a.Devise != "" && !a.Devise.Valid() {
		errs.Add("devise", msgChoice(string(*a.Devise)))
	}
	if a.Prix != nil && (a.Devise == nil || *a.Devise == "") {
		errs.Add("devise", "La devise est obligatoire lorsqu'un prix est spécifié.")
	}
	return errs.Err()
}

// InAlert reports whether the stock reached the alert threshold.
func (a Article) InAlert() bool { return !a.SeuilAlerte.Less(a.QuantiteStock) }

const displayDescriptionRunes = 50

// DisplayArticle renders the one-line article summary. Without stock or
// category it renders only "CODE - description".
func DisplayArticle(a Article, stock *Stock, cat *CategorieArticle) string {
	if stock == nil || cat == nil {
		return a.CodeArticle + " - " + a.Description
	}
	desc := a.Description
	if utf8.RuneCountInString(desc) > displayDescriptionRunes {
		desc = string([]rune(desc)[:displayDescriptionRunes]) + "..."
	}
	return fmt.Sprintf("%s - %s | Stock: %s %s | Emplacement: %s (%s) | Catégorie: %s",
		a.CodeArticle, desc, a.QuantiteStock, a.UniteMesure, stock.Nom, stock.Emplacement, cat.Nom)
}

// Phase groups platinages of a shutdown or commissioning phase.
type Phase struct {
	ID          int64   `json:"id"`
	Nom         string  `json:"nom"`
	Description *string `json:"description"`
	Platinages  []int64 `json:"platinages"`
}

func (p Phase) Validate() error {
	errs := NewValidationError()
	checkText(errs, "nom", p.Nom, 100)
	return errs.Err()
}

// TypePlatinage is a kind of blinding operation.
type TypePlatinage struct {
	ID          int64   `json:"id"`
	Nom         string  `json:"nom"`
	Description *string `json:"description"`
}

func (t TypePlatinage) Validate() error {
	errs := NewValidationError()
	checkText(errs, "nom", t.Nom, 100)
	return errs.Err()
}

// Platinage is a blind plate installed on an equipment.
type Platinage struct {
	ID            int64      `json:"id"`
	Equipement    int64      `json:"equipement"`
	Article       int64      `json:"article"`
	TypePlatinage int64      `json:"type_platinage"`
	Repere        string     `json:"repere"`
	DateDebut     *time.Time `json:"date_debut"`
	DateFin       *time.Time `json:"date_fin"`
	Remarque      *string    `json:"remarque"`
}

func (p Platinage) Validate() error {
	errs := NewValidationError()
	checkRef(errs, "equipement", p.Equipement)
	checkRef(errs, "article", p.Article)
	checkRef(errs, "type_platinage", p.TypePlatinage)
	checkText(errs, "repere", p.Repere, 100)
	if p.DateDebut != nil && p.DateFin != nil && !p.DateFin.After(*p.DateDebut) {
		errs.Add("", "La date de fin doit être postérieure à la date de début.")
	}
	return errs.Err()
}

// Document is a file attached to exactly one article or equipment.
type Document struct {
	ID         int64     `json:"id"`
	Fichier    string    `json:"fichier"`
	Remarque   *string   `json:"remarque"`
	Article    *int64    `json:"article"`
	Equipement *int64    `json:"equipement"`
	UploadedBy int64     `json:"uploaded_by"`
	DateUpload time.Time `json:"date_upload"`
	Display    string    `json:"display,omitempty"`
}

func (d Document) Validate() error {
	errs := NewValidationError()
	switch {
	case d.Article == nil && d.Equipement == nil:
		errs.Add("", "Un document doit être associé soit à un article, soit à un équipement.")
	case d.Article != nil && d.Equipement != nil:
		errs.Add("", "Un document ne peut pas être associé à la fois à un article et à un équipement.")
	}
	if strings.TrimSpace(d.Fichier) == "" {
		errs.Add("fichier", "Aucun fichier n'a été soumis.")
	}
	checkOptText(errs, "remarque", d.Remarque, 255)
	return errs.Err()
}

// UploadDir is the media-relative directory of a document's file.
func (d Document) UploadDir() string {
	switch {
	case d.Article != nil:
		return "documents/articles"
	case d.Equipement != nil:
		return "documents/equipements"
	}
	return "documents"
}

// DisplayDocument renders "file.pdf - OWNER" where owner is the article
// code or equipment tag.
func DisplayDocument(d Document, owner string) string {
	name := d.Fichier
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if owner == "" {
		return name
	}
	return name + " - " + owner
}
