// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package rewrite

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaultRules = []Rule{{Source: "/api/:path*", Destination: "https://127.0.0.1:8000/api/:path*"}}

func TestResolveDefaultRule(t *testing.T) {
	table := MustCompile(defaultRules)

	tests := []struct {
		name  string
		path  string
		query string
		want  string
	}{
		{"list with query", "/api/sites/", "page=2&search=Hassi", "https://127.0.0.1:8000/api/sites/?page=2&search=Hassi"},
		{"nested", "/api/auth/password/reset/MQ/abc-123/verify/", "", "https://127.0.0.1:8000/api/auth/password/reset/MQ/abc-123/verify/"},
		{"bare prefix", "/api", "", "https://127.0.0.1:8000/api"},
		{"bare prefix with slash", "/api/", "", "https://127.0.0.1:8000/api/"},
		{"no trailing slash", "/api/token/refresh", "", "https://127.0.0.1:8000/api/token/refresh"},
		{"escaped segment", "/api/articles/a%20b/", "", "https://127.0.0.1:8000/api/articles/a%20b/"},
		{"query verbatim", "/api/articles/", "ordering=-code_article&x=%C3%A9&x=2", "https://127.0.0.1:8000/api/articles/?ordering=-code_article&x=%C3%A9&x=2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := table.Resolve(tt.path, tt.query)
			require.True(t, ok)
			assert.Equal(t, tt.want, m.URL.String())
			assert.True(t, m.External())
			assert.Equal(t, 0, m.Index)
		})
	}
}

func TestResolveNoMatch(t *testing.T) {
	table := MustCompile(defaultRules)
	for _, p := range []string{"/", "/apix", "/static/app.js", "/ap/i"} {
		_, ok := table.Resolve(p, "")
		assert.False(t, ok, p)
	}
}

func TestResolveCaseInsensitive(t *testing.T) {
	table := MustCompile(defaultRules)
	m, ok := table.Resolve("/API/Sites/", "")
	require.True(t, ok)
	assert.Equal(t, "https://127.0.0.1:8000/api/Sites/", m.URL.String())
}

func TestResolveFirstMatchWins(t *testing.T) {
	table := MustCompile([]Rule{
		{Source: "/api/auth/:path*", Destination: "https://auth.internal/:path*"},
		{Source: "/api/:path*", Destination: "https://127.0.0.1:8000/api/:path*"},
	})

	m, ok := table.Resolve("/api/auth/login/", "")
	require.True(t, ok)
	assert.Equal(t, 0, m.Index)
	assert.Equal(t, "https://auth.internal/login/", m.URL.String())

	m, ok = table.Resolve("/api/sites/", "")
	require.True(t, ok)
	assert.Equal(t, 1, m.Index)
}

func TestModifiers(t *testing.T) {
	table := MustCompile([]Rule{
		{Source: "/docs/:slug?", Destination: "/documents/:slug"},
		{Source: "/files/:rest+", Destination: "/media/:rest+"},
		{Source: "/items/:id(\\d+)", Destination: "/api/articles/:id/"},
	})

	m, ok := table.Resolve("/docs", "")
	require.True(t, ok)
	assert.Equal(t, "/documents", m.URL.String())
	assert.False(t, m.External())

	m, ok = table.Resolve("/docs/intro", "")
	require.True(t, ok)
	assert.Equal(t, "/documents/intro", m.URL.String())

	_, ok = table.Resolve("/docs/a/b", "")
	assert.False(t, ok)

	_, ok = table.Resolve("/files", "")
	assert.False(t, ok, "one-or-more needs a segment")
	m, ok = table.Resolve("/files/a/b.pdf", "")
	require.True(t, ok)
	assert.Equal(t, "/media/a/b.pdf", m.URL.String())

	m, ok = table.Resolve("/items/42", "")
	require.True(t, ok)
	assert.Equal(t, "/api/articles/42/", m.URL.String())
	_, ok = table.Resolve("/items/abc", "")
	assert.False(t, ok)
}

func TestParamRegexpWithSlash(t *testing.T) {
	table := MustCompile([]Rule{
		{Source: "/legacy/:doc(fiches/[a-z]+)/pdf", Destination: "/media/:doc.pdf"},
	})

	m, ok := table.Resolve("/legacy/fiches/vanne/pdf", "")
	require.True(t, ok)
	assert.Equal(t, "/media/fiches/vanne.pdf", m.URL.String())

	_, ok = table.Resolve("/legacy/fiches/pdf", "")
	assert.False(t, ok)
	_, ok = table.Resolve("/legacy/plans/vanne/pdf", "")
	assert.False(t, ok)
}

func TestUnusedParamsAndDestinationQuery(t *testing.T) {
	table := MustCompile([]Rule{
		{Source: "/search/:term", Destination: "/api/articles/?search=:term"},
		{Source: "/site/:id/:tab", Destination: "/api/sites/:id/"},
	})

	m, ok := table.Resolve("/search/vanne", "page=2")
	require.True(t, ok)
	assert.Equal(t, "/api/articles/?search=vanne&page=2", m.URL.String())

	m, ok = table.Resolve("/site/3/stocks", "")
	require.True(t, ok)
	assert.Equal(t, "/api/sites/3/?tab=stocks", m.URL.String())
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
		err  error
	}{
		{"relative source", Rule{Source: "api/:path*", Destination: "/x"}, ErrInvalidPattern},
		{"unnamed param", Rule{Source: "/api/:", Destination: "/x"}, ErrInvalidPattern},
		{"duplicate param", Rule{Source: "/:a/:a", Destination: "/x"}, ErrInvalidPattern},
		{"bad regexp", Rule{Source: "/:id([)", Destination: "/x"}, ErrInvalidPattern},
		{"mixed segment", Rule{Source: "/api:x", Destination: "/x"}, ErrInvalidPattern},
		{"unknown dest param", Rule{Source: "/api/:path*", Destination: "/x/:other"}, ErrUnknownParam},
		{"bad scheme", Rule{Source: "/api", Destination: "ftp://host/x"}, ErrInvalidDestination},
		{"empty dest", Rule{Source: "/api", Destination: ""}, ErrInvalidDestination},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile([]Rule{tt.rule})
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRulesKeepOrder(t *testing.T) {
	rules := []Rule{
		{Source: "/b/:x", Destination: "/b/:x"},
		{Source: "/a/:x", Destination: "/a/:x"},
	}
	table := MustCompile(rules)
	if diff := cmp.Diff(rules, table.Rules()); diff != "" {
		t.Errorf("rules mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, table.Len())
}

func TestPatternParams(t *testing.T) {
	p, err := CompilePattern("/api/:version/:path*")
	require.NoError(t, err)

	want := []Param{{Name: "version"}, {Name: "path", Modifier: ZeroOrMore}}
	if diff := cmp.Diff(want, p.Params()); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, p.Params()[1].Repeated())

	values, ok := p.Match("/api/v1/a/b")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"version": "v1", "path": "a/b"}, values)
}
