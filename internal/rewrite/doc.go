// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package rewrite compiles ordered (source, destination) rewrite rules and
// resolves request paths against them.
//
// Source patterns follow path-to-regexp conventions:
//
//	/api/:path*    zero or more segments
//	/api/:path+    one or more segments
//	/docs/:slug?   optional segment
//	/users/:id     exactly one segment
//	/items/:id(\d+) one segment restricted by a regular expression
//
// A custom expression may contain a slash, as in :doc(fiches/[a-z]+), and
// then matches across segments.
//
// Matching is case-insensitive and the first matching rule wins. The
// request query string is forwarded verbatim and the trailing slash of the
// request path is preserved.
package rewrite
