// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ManuGH/gestprep/internal/inventory"
)

var (
	errNotFound  = inventory.ErrNotFound
	errConflict  = inventory.ErrConflict
	errProtected = inventory.ErrProtected
)

// classify maps SQLite constraint failures onto the inventory sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	if se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return err
	}
	msg := se.Error()
	switch {
	case se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE,
		se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", errConflict, msg)
	case se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY,
		strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %s", errProtected, msg)
	}
	return err
}

// uniqueMessage is the field error reported for a duplicate value.
func uniqueMessage(entity, field string) string {
	return fmt.Sprintf("Un objet %s avec ce champ %s existe déjà.", entity, field)
}

// uniqueTogether is the global error reported for a duplicate tuple.
func uniqueTogether(fields ...string) string {
	return fmt.Sprintf("Les champs %s doivent former un ensemble unique.", strings.Join(fields, ", "))
}

func missingRef(id int64) string {
	return fmt.Sprintf("Clé primaire « %d » non valide - l'objet n'existe pas.", id)
}
