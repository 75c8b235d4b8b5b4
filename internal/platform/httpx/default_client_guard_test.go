package httpx

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/gestprep/internal/testutil"
)

// Outbound calls go through NewClient or NewUpstreamTransport so every one
// of them carries timeouts.
func TestNoDefaultClientUsage(t *testing.T) {
	var violations []string
	fset := token.NewFileSet()

	for _, path := range testutil.SourceFiles(t, "internal", "cmd") {
		file, err := parser.ParseFile(fset, path, nil, 0)
		require.NoError(t, err, "parse %s", path)
		ast.Inspect(file, func(n ast.Node) bool {
			sel, ok := n.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			if ident, ok := sel.X.(*ast.Ident); ok && ident.Name == "http" &&
				(sel.Sel.Name == "DefaultClient" || sel.Sel.Name == "Get" || sel.Sel.Name == "Post") {
				violations = append(violations, fset.Position(sel.Pos()).String())
			}
			return true
		})
	}
	require.Empty(t, violations, "http.DefaultClient usage found")
}
