// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rewrite

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrInvalidPattern is returned for malformed source patterns.
	ErrInvalidPattern = errors.New("rewrite: invalid source pattern")
	// ErrUnknownParam is returned when a destination references a param
	// the source does not capture.
	ErrUnknownParam = errors.New("rewrite: destination references unknown param")
	// ErrInvalidDestination is returned for malformed destinations.
	ErrInvalidDestination = errors.New("rewrite: invalid destination")
)

// Modifier is the repetition suffix of a named param.
type Modifier byte

const (
	One        Modifier = 0
	Optional   Modifier = '?'
	ZeroOrMore Modifier = '*'
	OneOrMore  Modifier = '+'
)

// Param describes one named capture of a source pattern.
type Param struct {
	Name     string
	Modifier Modifier
	Pattern  string // custom segment regexp, empty for the default
}

// Repeated reports whether the param may span several segments.
func (p Param) Repeated() bool {
	return p.Modifier == ZeroOrMore || p.Modifier == OneOrMore
}

// Pattern is a compiled source pattern.
type Pattern struct {
	source string
	re     *regexp.Regexp
	params []Param
}

// Params returns the named captures in declaration order.
func (p *Pattern) Params() []Param {
	out := make([]Param, len(p.params))
	copy(out, p.params)
	return out
}

// String returns the source the pattern was compiled from.
func (p *Pattern) String() string { return p.source }

// Regexp returns the anchored expression used for matching.
func (p *Pattern) Regexp() string { return p.re.String() }

// Match matches an escaped request path. Captured values keep their escaping;
// absent optional params are reported as empty strings.
func (p *Pattern) Match(path string) (map[string]string, bool) {
	m := p.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	values := make(map[string]string, len(p.params))
	for i, name := range p.re.SubexpNames() {
		if name != "" {
			values[name] = m[i]
		}
	}
	return values, true
}

func isNameByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// parseParam parses ":name", ":name(re)" and their modifiers from the start
// of s and returns the param and the number of bytes consumed.
func parseParam(s string) (Param, int, error) {
	if len(s) < 2 || s[0] != ':' {
		return Param{}, 0, fmt.Errorf("%w: expected param at %q", ErrInvalidPattern, s)
	}
	i := 1
	for i < len(s) && isNameByte(s[i]) {
		i++
	}
	if i == 1 {
		return Param{}, 0, fmt.Errorf("%w: unnamed param in %q", ErrInvalidPattern, s)
	}
	p := Param{Name: s[1:i]}

	if i < len(s) && s[i] == '(' {
		depth := 0
		j := i
		for ; j < len(s); j++ {
			switch s[j] {
			case '\\':
				j++
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				break
			}
		}
		if j >= len(s) {
			return Param{}, 0, fmt.Errorf("%w: unbalanced group in %q", ErrInvalidPattern, s)
		}
		p.Pattern = s[i+1 : j]
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return Param{}, 0, fmt.Errorf("%w: param %s: %v", ErrInvalidPattern, p.Name, err)
		}
		i = j + 1
	}

	if i < len(s) {
		switch Modifier(s[i]) {
		case Optional, ZeroOrMore, OneOrMore:
			p.Modifier = Modifier(s[i])
			i++
		}
	}
	return p, i, nil
}

// CompilePattern compiles a path-to-regexp style source pattern.
func CompilePattern(source string) (*Pattern, error) {
	if source == "" || source[0] != '/' {
		return nil, fmt.Errorf("%w: %q must start with /", ErrInvalidPattern, source)
	}

	var b strings.Builder
	// Matching is case-insensitive like the frontend router.
	b.WriteString("(?i)^")
	var params []Param
	seen := map[string]bool{}

	trimmed := strings.TrimSuffix(source[1:], "/")
	if trimmed != "" {
		for _, seg := range splitSegments(trimmed) {
			if seg == "" {
				return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPattern, source)
			}
			if seg[0] != ':' {
				if strings.ContainsAny(seg, ":*+?()") {
					return nil, fmt.Errorf("%w: segment %q mixes literal and param syntax", ErrInvalidPattern, seg)
				}
				b.WriteString("/" + regexp.QuoteMeta(seg))
				continue
			}
			p, n, err := parseParam(seg)
			if err != nil {
				return nil, err
			}
			if n != len(seg) {
				return nil, fmt.Errorf("%w: trailing characters after param in %q", ErrInvalidPattern, seg)
			}
			if seen[p.Name] {
				return nil, fmt.Errorf("%w: duplicate param %q", ErrInvalidPattern, p.Name)
			}
			seen[p.Name] = true
			params = append(params, p)
			b.WriteString(segmentExpr(p))
		}
	}
	b.WriteString("/?$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return &Pattern{source: source, re: re, params: params}, nil
}

// splitSegments splits s on slashes outside param groups, so a custom
// param expression may itself contain a slash.
func splitSegments(s string) []string {
	var segs []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
		case '/':
			if depth == 0 {
				segs = append(segs, s[start:i])
				start = i + 1
			}
		}
	}
	return append(segs, s[start:])
}

func segmentExpr(p Param) string {
	seg := "[^/]+"
	if p.Pattern != "" {
		seg = "(?:" + p.Pattern + ")"
	}
	group := "(?P<" + p.Name + ">"
	switch p.Modifier {
	case Optional:
		return "(?:/" + group + seg + "))?"
	case ZeroOrMore:
		return "(?:/" + group + seg + "(?:/" + seg + ")*))?"
	case OneOrMore:
		return "/" + group + seg + "(?:/" + seg + ")*)"
	default:
		return "/" + group + seg + ")"
	}
}
