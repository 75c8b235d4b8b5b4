// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	RewriteRuleKey        = "rewrite.rule"
	RewriteDestinationKey = "rewrite.destination"

	MovementNumberKey = "bmm.numero"
	MovementTypeKey   = "bmm.type"
	MovementLinesKey  = "bmm.lines"

	ErrorKey = "error"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// RewriteAttributes describes which rewrite rule served a request.
func RewriteAttributes(rule int, destination string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(RewriteRuleKey, rule),
		attribute.String(RewriteDestinationKey, destination),
	}
}

// MovementAttributes describes a BMM being processed.
func MovementAttributes(numero, kind string, lines int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(MovementNumberKey, numero),
		attribute.String(MovementTypeKey, kind),
		attribute.Int(MovementLinesKey, lines),
	}
}
