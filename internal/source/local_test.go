package source

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"semtree/internal/tree"
)

// countingEmbedder hands out a fixed vector and counts calls, so tests can
// observe cache hits.
type countingEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) (tree.Fingerprint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls += 1
	return tree.Fingerprint{float32(len(text)), 1}, nil
}

func setupSourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"readme.md":           "hello",
		"docs/guide.md":       "guide",
		"docs/api/spec.json":  "{}",
		".hidden":             "skip",
		".semtree/db/junk":    "skip",
		"node_modules/x/y.js": "skip",
		"vendor/lib/code.go":  "skip",
		"src/.cache/blob":     "skip",
	}
	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return dir
}

func TestLocalSourceListIDs(t *testing.T) {
	dir := setupSourceDir(t)

	src, err := NewLocalSource(dir, &countingEmbedder{}, zap.NewNop())
	require.NoError(t, err)

	ids, err := src.ListIDs(context.Background())
	require.NoError(t, err)

	// Hidden files, state dir and build artifacts are filtered; the rest
	// comes back sorted with slash separators.
	assert.Equal(t, []string{"docs/api/spec.json", "docs/guide.md", "readme.md"}, ids)
}

func TestLocalSourceRead(t *testing.T) {
	dir := setupSourceDir(t)
	embedder := &countingEmbedder{}

	src, err := NewLocalSource(dir, embedder, zap.NewNop())
	require.NoError(t, err)

	t.Run("ReadsAndEmbeds", func(t *testing.T) {
		content, err := src.Read(context.Background(), "readme.md")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), content.Raw)
		assert.Equal(t, tree.Fingerprint{5, 1}, content.Fingerprint)
	})

	t.Run("CachesByContentHash", func(t *testing.T) {
		before := embedder.calls
		_, err := src.Read(context.Background(), "readme.md")
		require.NoError(t, err)
		_, err = src.Read(context.Background(), "readme.md")
		require.NoError(t, err)
		assert.Equal(t, before, embedder.calls, "byte-identical content must not re-embed")
	})

	t.Run("InvalidatesOnContentChange", func(t *testing.T) {
		before := embedder.calls
		require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("rewritten"), 0o644))

		content, err := src.Read(context.Background(), "readme.md")
		require.NoError(t, err)
		assert.Equal(t, []byte("rewritten"), content.Raw)
		assert.Equal(t, before+1, embedder.calls)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := src.Read(context.Background(), "nope.md")
		assert.Error(t, err)
	})
}

func TestNewLocalSource(t *testing.T) {
	t.Run("RejectsMissingRoot", func(t *testing.T) {
		_, err := NewLocalSource(filepath.Join(t.TempDir(), "missing"), &countingEmbedder{}, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("RejectsFileRoot", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file.txt")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
		_, err := NewLocalSource(file, &countingEmbedder{}, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestShouldIgnore(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"readme.md", false},
		{"docs/guide.md", false},
		{".hidden", true},
		{"src/.cache/blob", true},
		{"node_modules/x/y.js", true},
		{"vendor/lib/code.go", true},
		{"dist/bundle.js", true},
		{"build/out.bin", true},
		{".semtree/db/junk", true},
		{"", true},
		{"distance.txt", false},
		{"builder/main.go", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ShouldIgnore(filepath.FromSlash(tc.path)), "path %q", tc.path)
	}
}
