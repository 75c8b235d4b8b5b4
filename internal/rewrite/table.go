// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rewrite

import (
	"fmt"
	"net/url"
	"strings"
)

// Rule is one ordered (source pattern, destination template) pair.
type Rule struct {
	Source      string `json:"source" yaml:"source"`
	Destination string `json:"destination" yaml:"destination"`
}

type compiledRule struct {
	rule   Rule
	source *Pattern
	dest   *destination
}

// Table is an immutable, ordered set of compiled rules.
type Table struct {
	rules []compiledRule
}

// Compile validates and compiles rules, keeping their order.
func Compile(rules []Rule) (*Table, error) {
	t := &Table{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		src, err := CompilePattern(r.Source)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		dst, err := parseDestination(r.Destination)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		known := map[string]bool{}
		for _, p := range src.params {
			known[p.Name] = true
		}
		for name := range dst.uses {
			if !known[name] {
				return nil, fmt.Errorf("rule %d: %w: %q", i, ErrUnknownParam, name)
			}
		}
		t.rules = append(t.rules, compiledRule{rule: r, source: src, dest: dst})
	}
	return t, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(rules []Rule) *Table {
	t, err := Compile(rules)
	if err != nil {
		panic(err)
	}
	return t
}

// Rules returns the rules in precedence order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = r.rule
	}
	return out
}

// Len returns the number of rules.
func (t *Table) Len() int { return len(t.rules) }

// Match is the outcome of a successful resolution.
type Match struct {
	Rule   Rule
	Index  int
	Params map[string]string
	URL    *url.URL
}

// External reports whether the destination points at another origin.
func (m *Match) External() bool { return m.URL.Host != "" }

// Resolve finds the first rule matching the escaped request path and builds
// the destination URL. rawQuery is appended verbatim.
func (t *Table) Resolve(escapedPath, rawQuery string) (*Match, bool) {
	if escapedPath == "" {
		escapedPath = "/"
	}
	for i, r := range t.rules {
		values, ok := r.source.Match(escapedPath)
		if !ok {
			continue
		}
		return &Match{Rule: r.rule, Index: i, Params: values, URL: r.build(escapedPath, rawQuery, values)}, true
	}
	return nil, false
}

func (r compiledRule) build(reqPath, rawQuery string, values map[string]string) *url.URL {
	p := r.dest.expandPath(values)
	if strings.HasSuffix(reqPath, "/") && len(reqPath) > 1 && !strings.HasSuffix(p, "/") {
		p += "/"
	}

	parts := make([]string, 0, 3)
	if q := r.dest.expandQuery(values); q != "" {
		parts = append(parts, q)
	}
	// Source params the destination does not consume travel as query parameters.
	var extra url.Values
	for _, prm := range r.source.params {
		if r.dest.uses[prm.Name] || values[prm.Name] == "" {
			continue
		}
		if extra == nil {
			extra = url.Values{}
		}
		extra.Set(prm.Name, values[prm.Name])
	}
	if extra != nil {
		parts = append(parts, extra.Encode())
	}
	if rawQuery != "" {
		parts = append(parts, rawQuery)
	}

	u := &url.URL{Scheme: r.dest.scheme, Host: r.dest.host, RawQuery: strings.Join(parts, "&")}
	if unescaped, err := url.PathUnescape(p); err == nil {
		u.Path = unescaped
		u.RawPath = p
	} else {
		u.Path = p
	}
	return u
}
