// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package inventory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MovementType is the direction of a material movement.
type MovementType string

const (
	SortieDefinitive MovementType = "SORTIE_DEFINITIVE"
	SortiePret       MovementType = "SORTIE_PRET"
	Entree           MovementType = "ENTREE"
)

func (t MovementType) Valid() bool {
	switch t {
	case SortieDefinitive, SortiePret, Entree:
		return true
	}
	return false
}

// IsExit reports whether the movement takes material out of stock.
func (t MovementType) IsExit() bool { return t == SortieDefinitive || t == SortiePret }

// Label is the human-readable name of the type.
func (t MovementType) Label() string {
	switch t {
	case SortieDefinitive:
		return "Sortie définitive"
	case SortiePret:
		return "Sortie à titre de prêt"
	case Entree:
		return "Entrée"
	}
	return string(t)
}

// Status is the lifecycle state of a movement.
type Status string

const (
	Brouillon Status = "BROUILLON"
	Valide    Status = "VALIDE"
	Annule    Status = "ANNULE"
)

func (s Status) Valid() bool { return s == Brouillon || s == Valide || s == Annule }

// Action is a movement history event.
type Action string

const (
	ActionCreation   Action = "CREATION"
	ActionValidation Action = "VALIDATION"
	ActionAnnulation Action = "ANNULATION"
)

var (
	// ErrInvalidTransition is wrapped by every refused status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotDraft is returned when validating or cancelling a movement
	// that is no longer BROUILLON.
	ErrNotDraft = errors.New("movement is not a draft")
)

// Messages of refused edits.
const (
	MsgCancelledFrozen = "Un mouvement annulé ne peut pas être modifié."
	MsgValidatedFrozen = "Un mouvement validé ne peut pas être modifié."
	MsgNoLineOnValid   = "Impossible d'ajouter une ligne à un mouvement validé."
	MsgNoDeleteOnValid = "Les lignes d'un mouvement validé ne peuvent pas être supprimées."
	MsgArticleFrozen   = "L'article d'une ligne validée ne peut pas être changé."
	MsgDeleteDraftOnly = "Seuls les mouvements en brouillon peuvent être supprimés."
)

// NotDraftError explains why number cannot be validated or cancelled.
func NotDraftError(number string, validating bool) error {
	verb := "annulé"
	if validating {
		verb = "validé"
	}
	return fmt.Errorf("%w: %w", ErrNotDraft,
		Invalid("", fmt.Sprintf("Le BMM %s ne peut pas être %s car il n'est pas en brouillon.", number, verb)))
}

// InsufficientStock is the line error of an exit above the available stock.
func InsufficientStock(available Decimal) string {
	return "Stock insuffisant. Stock disponible : " + available.String()
}

// Movement is a BMM (bon de mouvement matériel).
type Movement struct {
	ID                  int64        `json:"id"`
	NumeroBMM           string       `json:"numero_bmm"`
	TypeMouvement       MovementType `json:"type_mouvement"`
	DescriptionBMM      string       `json:"description_bmm"`
	EmetteurRecepteur   string       `json:"emetteur_recepteur"`
	DepartementService  string       `json:"departement_service"`
	DateRetourPrevue    *time.Time   `json:"date_retour_prevue"`
	DateRetourEffective *time.Time   `json:"date_retour_effective"`
	Equipement          *int64       `json:"equipement"`
	Remarque            *string      `json:"remarque"`
	Statut              Status       `json:"statut"`
	CreatedBy           int64        `json:"created_by"`
	DateCreation        time.Time    `json:"date_creation"`
	ValidatedBy         *int64       `json:"validated_by"`
	DateValidation      *time.Time   `json:"date_validation"`
	NombreArticles      int          `json:"nombre_articles"`
	Lignes              []Line       `json:"lignes,omitempty"`
}

func (m Movement) String() string { return m.NumeroBMM + " - " + m.TypeMouvement.Label() }

// Validate checks the fields of a movement being created or edited.
func (m Movement) Validate() error {
	errs := NewValidationError()
	if m.TypeMouvement == "" {
		errs.Add("type_mouvement", msgRequired)
	} else if !m.TypeMouvement.Valid() {
		errs.Add("type_mouvement", msgChoice(string(m.TypeMouvement)))
	}
	checkText(errs, "description_bmm", m.DescriptionBMM, 0)
	checkText(errs, "emetteur_recepteur", m.EmetteurRecepteur, 100)
	checkText(errs, "departement_service", m.DepartementService, 100)
	if m.TypeMouvement == SortiePret && m.DateRetourPrevue == nil {
		errs.Add("date_retour_prevue", "La date de retour est obligatoire pour les sorties à titre de prêt.")
	}
	return errs.Err()
}

// CheckUpdate validates an edit of prev into next, status included.
func CheckUpdate(prev, next Movement) error {
	if err := CheckTransition(prev.Statut, next.Statut); err != nil {
		return err
	}
	if prev.Statut == Annule {
		return Invalid("", MsgCancelledFrozen)
	}
	if prev.Statut == Valide &&
		(prev.DescriptionBMM != next.DescriptionBMM ||
			prev.EmetteurRecepteur != next.EmetteurRecepteur ||
			prev.DepartementService != next.DepartementService ||
			prev.TypeMouvement != next.TypeMouvement) {
		return Invalid("", MsgValidatedFrozen)
	}
	return nil
}

// CheckTransition refuses VALIDE -> BROUILLON and any change out of ANNULE.
func CheckTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if from == Valide && to == Brouillon {
		return fmt.Errorf("%w: %w", ErrInvalidTransition,
			Invalid("", "Un mouvement validé ne peut pas revenir au statut brouillon."))
	}
	if from == Annule {
		return fmt.Errorf("%w: %w", ErrInvalidTransition,
			Invalid("", "Un mouvement annulé ne peut pas changer de statut."))
	}
	return nil
}

// CheckValidation gathers every reason m cannot move from BROUILLON to
// VALIDE. articles maps the article IDs of lines to their current state;
// an absent entry means the article no longer exists.
func CheckValidation(m Movement, lines []Line, articles map[int64]Article) *ValidationError {
	errs := NewValidationError()
	if m.EmetteurRecepteur == "" {
		errs.Add("emetteur_recepteur", "L'émetteur/récepteur est obligatoire")
	}
	if m.DepartementService == "" {
		errs.Add("departement_service", "Le département/service est obligatoire")
	}
	if m.TypeMouvement == "" {
		errs.Add("type_mouvement", "Le type de mouvement est obligatoire")
	}
	if len(lines) == 0 {
		errs.Add(AllKey, "Impossible de valider un mouvement sans articles")
	}
	for _, l := range lines {
		if msg := lineProblem(m.TypeMouvement, l, articles); msg != "" {
			errs.Add(AllKey, msg)
		}
	}
	return errs
}

// AllKey collects model-wide errors of a movement validation.
const AllKey = "__all__"

func lineProblem(t MovementType, l Line, articles map[int64]Article) string {
	if l.Article <= 0 {
		return "L'article est obligatoire."
	}
	if !Zero.Less(l.Quantite) {
		return "La quantité doit être supérieure à 0."
	}
	a, ok := articles[l.Article]
	if !ok {
		return "L'article spécifié n'existe pas."
	}
	if t.IsExit() && a.QuantiteStock.Less(l.Quantite) {
		return InsufficientStock(a.QuantiteStock)
	}
	return ""
}

// Apply returns the stock after moving qty in direction t.
func Apply(t MovementType, stock, qty Decimal) Decimal {
	if t.IsExit() {
		return stock.Sub(qty)
	}
	return stock.Add(qty)
}

// Revert undoes Apply.
func Revert(t MovementType, stock, qty Decimal) Decimal {
	if t.IsExit() {
		return stock.Add(qty)
	}
	return stock.Sub(qty)
}

const numeroPrefix = "BMM"

// NextNumero returns the number following the highest existing one.
// Unparseable numbers are ignored; with none left it returns "BMM1".
func NextNumero(existing []string) string {
	var max int64
	for _, n := range existing {
		v, err := strconv.ParseInt(strings.TrimPrefix(n, numeroPrefix), 10, 64)
		if err != nil || v < 0 {
			continue
		}
		if v > max {
			max = v
		}
	}
	return numeroPrefix + strconv.FormatInt(max+1, 10)
}

// Line is one article of a movement.
type Line struct {
	ID         int64    `json:"id"`
	Mouvement  int64    `json:"mouvement"`
	Article    int64    `json:"article"`
	Quantite   Decimal  `json:"quantite"`
	StockAvant *Decimal `json:"stock_avant"`
	StockApres *Decimal `json:"stock_apres"`
}

var minQuantite = MustDecimal("0.01")

func (l Line) Validate() error {
	errs := NewValidationError()
	checkRef(errs, "mouvement", l.Mouvement)
	checkRef(errs, "article", l.Article)
	checkDecimal(errs, "quantite", l.Quantite, minQuantite)
	return errs.Err()
}

// Preview fills StockAvant and StockApres from the current article stock.
func (l *Line) Preview(t MovementType, current Decimal) {
	before := current
	after := Apply(t, current, l.Quantite)
	l.StockAvant = &before
	l.StockApres = &after
}

// History is an audit entry of a movement.
type History struct {
	ID          int64     `json:"id"`
	Mouvement   int64     `json:"mouvement"`
	NumeroBMM   string    `json:"numero_bmm,omitempty"`
	TypeAction  Action    `json:"type_action"`
	Utilisateur int64     `json:"utilisateur"`
	DateAction  time.Time `json:"date_action"`
	Details     *string   `json:"details"`
}

// Details strings written by the movement workflow.
func CreationDetails(numero string) string         { return "Création du mouvement " + numero }
func ValidationDetails(numero string) string       { return "Validation du mouvement " + numero }
func BulkValidationDetails(numero string) string   { return "Validation en lot du mouvement " + numero }
func CancellationDetails(numero string) string     { return "Annulation du mouvement " + numero }
func BulkCancellationDetails(numero string) string { return "Annulation en lot du mouvement " + numero }
