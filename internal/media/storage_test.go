package media

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidFilename(t *testing.T) {
	tests := map[string]string{
		"fiche technique.pdf":   "fiche_technique.pdf",
		"../../etc/passwd":      "passwd",
		`C:\docs\plan (v2).dwg`: "plan_v2.dwg",
		"été.txt":               "été.txt",
		"..":                    "",
		"":                      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ValidFilename(in), in)
	}
}

func TestSaveOpenRemove(t *testing.T) {
	ctx := context.Background()
	st, err := NewStorage(filepath.Join(t.TempDir(), "media"))
	require.NoError(t, err)

	name, err := st.Save(ctx, "documents/articles", "fiche.pdf", strings.NewReader("v1"))
	require.NoError(t, err)
	assert.Equal(t, "documents/articles/fiche.pdf", name)

	second, err := st.Save(ctx, "documents/articles", "fiche.pdf", strings.NewReader("v2"))
	require.NoError(t, err)
	assert.NotEqual(t, name, second)
	assert.True(t, strings.HasPrefix(second, "documents/articles/fiche_"))
	assert.True(t, strings.HasSuffix(second, ".pdf"))

	f, err := st.Open(name)
	require.NoError(t, err)
	b, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, "v1", string(b))

	require.NoError(t, st.Remove(ctx, name, "documents/articles/missing.pdf", ""))
	_, err = os.Stat(filepath.Join(st.Root(), "documents", "articles", "fiche.pdf"))
	assert.True(t, os.IsNotExist(err))

	_, err = st.Open("../outside")
	assert.Error(t, err)
	_, err = st.Open("documents")
	assert.Error(t, err, "directories are not served")
}

func TestSaveRejectsEmptyName(t *testing.T) {
	st, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	_, err = st.Save(context.Background(), "documents", " ", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrEmptyName)
}
