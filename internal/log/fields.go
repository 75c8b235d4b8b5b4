// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService       = "service"
	FieldVersion       = "version"
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"
	FieldUserID        = "user_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Domain fields
	FieldMovement = "numero_bmm"
	FieldArticle  = "code_article"
	FieldStatus   = "statut"

	// Path / URL fields
	FieldPath        = "path"
	FieldRoute       = "route"
	FieldUpstream    = "upstream"
	FieldDestination = "destination"
)
