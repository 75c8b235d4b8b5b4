// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"database/sql"
	"fmt"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func timeValue(t time.Time) string { return t.UTC().Format(timeLayout) }

func nullTimeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeValue(*t)
}

// timeDest scans a TEXT timestamp into a time.Time or a *time.Time.
type timeDest struct {
	t  *time.Time
	pt **time.Time
}

func scanTime(t *time.Time) *timeDest      { return &timeDest{t: t} }
func scanNullTime(t **time.Time) *timeDest { return &timeDest{pt: t} }

func (d *timeDest) Scan(v any) error {
	var s sql.NullString
	if err := s.Scan(v); err != nil {
		return err
	}
	if !s.Valid {
		if d.pt != nil {
			*d.pt = nil
			return nil
		}
		return fmt.Errorf("scan time: unexpected NULL")
	}
	parsed, err := time.Parse(timeLayout, s.String)
	if err != nil {
		if parsed, err = time.Parse(time.RFC3339Nano, s.String); err != nil {
			return fmt.Errorf("scan time %q: %w", s.String, err)
		}
	}
	if d.pt != nil {
		*d.pt = &parsed
		return nil
	}
	*d.t = parsed
	return nil
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
