// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package inventory

import (
	"bytes"
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places of every quantity and price.
const Scale = 2

// MaxDigits bounds the total number of digits of a quantity or price.
const MaxDigits = 10

// Decimal is a fixed-point decimal(10,2). It renders as a quoted string with
// exactly two decimals, e.g. "12.50".
type Decimal struct {
	decimal.Decimal
}

// Zero is the zero quantity.
var Zero = Decimal{decimal.Zero}

// D builds a Decimal from an integer number of units.
func D(units int64) Decimal { return Decimal{decimal.NewFromInt(units)} }

// ParseDecimal parses a decimal string.
func ParseDecimal(s string) (Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Decimal{}, err
	}
	return Decimal{d}, nil
}

// MustDecimal is ParseDecimal that panics, for literals.
func MustDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Decimal) Add(o Decimal) Decimal { return Decimal{d.Decimal.Add(o.Decimal)} }
func (d Decimal) Sub(o Decimal) Decimal { return Decimal{d.Decimal.Sub(o.Decimal)} }

// Less reports d < o.
func (d Decimal) Less(o Decimal) bool { return d.Decimal.LessThan(o.Decimal) }

// String renders the value with two decimals.
func (d Decimal) String() string { return d.StringFixed(Scale) }

// MarshalJSON renders a quoted fixed-point string.
func (d Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts both JSON numbers and numeric strings.
func (d *Decimal) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 {
		return fmt.Errorf("a valid number is required")
	}
	v, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("a valid number is required")
	}
	d.Decimal = v
	return nil
}

// Value stores the fixed-point text representation.
func (d Decimal) Value() (driver.Value, error) { return d.String(), nil }

// Scan reads TEXT, REAL or INTEGER columns.
func (d *Decimal) Scan(v any) error { return d.Decimal.Scan(v) }

// checkDecimal validates a decimal(10,2) field with a lower bound.
func checkDecimal(errs *ValidationError, field string, d Decimal, min Decimal) {
	if d.Exponent() < -Scale && !d.Equal(d.Round(Scale)) {
		errs.Add(field, fmt.Sprintf("Assurez-vous qu'il n'y a pas plus de %d chiffres après la virgule.", Scale))
	}
	intDigits := len(d.Truncate(0).Abs().String())
	if d.Truncate(0).IsZero() {
		intDigits = 0
	}
	if intDigits > MaxDigits-Scale {
		errs.Add(field, fmt.Sprintf("Assurez-vous qu'il n'y a pas plus de %d chiffres au total.", MaxDigits))
	}
	if d.Less(min) {
		errs.Add(field, fmt.Sprintf("Assurez-vous que cette valeur est supérieure ou égale à %s.", min.Decimal.String()))
	}
}
