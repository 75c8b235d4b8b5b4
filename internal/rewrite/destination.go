// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rewrite

import (
	"fmt"
	"net/url"
	"strings"
)

// token is either a literal chunk or a param reference of a destination.
type token struct {
	literal string
	param   string
}

// destination is a parsed destination template.
type destination struct {
	raw    string
	scheme string
	host   string
	path   []token
	query  []token
	uses   map[string]bool
}

func (d *destination) external() bool { return d.host != "" }

// tokenize splits s on :name references. Modifiers after a name are dropped
// since the captured value already carries its segments.
func tokenize(s string, uses map[string]bool) []token {
	var out []token
	var lit strings.Builder
	for i := 0; i < len(s); {
		if s[i] == ':' && i+1 < len(s) && isNameByte(s[i+1]) {
			j := i + 1
			for j < len(s) && isNameByte(s[j]) {
				j++
			}
			if lit.Len() > 0 {
				out = append(out, token{literal: lit.String()})
				lit.Reset()
			}
			name := s[i+1 : j]
			uses[name] = true
			out = append(out, token{param: name})
			if j < len(s) && strings.IndexByte("*+?", s[j]) >= 0 {
				j++
			}
			i = j
			continue
		}
		lit.WriteByte(s[i])
		i++
	}
	if lit.Len() > 0 {
		out = append(out, token{literal: lit.String()})
	}
	return out
}

func parseDestination(raw string) (*destination, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidDestination)
	}
	d := &destination{raw: raw, uses: map[string]bool{}}

	rest := raw
	if !strings.HasPrefix(raw, "/") {
		scheme, after, ok := strings.Cut(raw, "://")
		if !ok || (scheme != "http" && scheme != "https") {
			return nil, fmt.Errorf("%w: %q must be a path or an http(s) URL", ErrInvalidDestination, raw)
		}
		host, p, _ := strings.Cut(after, "/")
		if host == "" {
			return nil, fmt.Errorf("%w: %q has no host", ErrInvalidDestination, raw)
		}
		if _, err := url.Parse(scheme + "://" + host); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDestination, err)
		}
		d.scheme, d.host = scheme, host
		rest = "/" + p
	}

	pathPart, queryPart, _ := strings.Cut(rest, "?")
	d.path = tokenize(pathPart, d.uses)
	d.query = tokenize(queryPart, d.uses)
	return d, nil
}

// expandPath substitutes params into the path tokens. An empty value drops
// the separator that precedes it so "/api/:path*" with no capture yields "/api".
func (d *destination) expandPath(values map[string]string) string {
	var b strings.Builder
	for _, t := range d.path {
		if t.param == "" {
			b.WriteString(t.literal)
			continue
		}
		v := values[t.param]
		if v == "" {
			s := b.String()
			if strings.HasSuffix(s, "/") && len(s) > 1 {
				b.Reset()
				b.WriteString(strings.TrimSuffix(s, "/"))
			}
			continue
		}
		b.WriteString(v)
	}
	out := b.String()
	if out == "" {
		out = "/"
	}
	return out
}

func (d *destination) expandQuery(values map[string]string) string {
	var b strings.Builder
	for _, t := range d.query {
		if t.param == "" {
			b.WriteString(t.literal)
			continue
		}
		b.WriteString(url.QueryEscape(values[t.param]))
	}
	return b.String()
}
