// internal/source/local.go
package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"semtree/internal/embed"
	"semtree/internal/tree"
)

const defaultCacheSize = 4096

// LocalSource walks a directory tree and embeds file content on demand.
// Leaf ids are slash-separated paths relative to the root, which keeps them
// stable across platforms and sortable for deterministic hashing.
type LocalSource struct {
	root     string
	embedder embed.Embedder
	cache    *lru.Cache[string, tree.Fingerprint] // keyed by content hash
	logger   *zap.Logger
}

func NewLocalSource(root string, embedder embed.Embedder, logger *zap.Logger) (*LocalSource, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving source root %s: %w", root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("checking source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", absRoot)
	}

	cache, err := lru.New[string, tree.Fingerprint](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating fingerprint cache: %w", err)
	}

	return &LocalSource{
		root:     absRoot,
		embedder: embedder,
		cache:    cache,
		logger:   logger,
	}, nil
}

func (s *LocalSource) Root() string {
	return s.root
}

// ListIDs enumerates every non-ignored file under the root, sorted.
func (s *LocalSource) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			s.logger.Warn("Failed to get relative path",
				zap.String("path", path),
				zap.Error(err))
			return nil
		}

		if d.IsDir() {
			if relPath != "." && ShouldIgnore(relPath) {
				return filepath.SkipDir
			}
			return nil
		}
		if ShouldIgnore(relPath) {
			return nil
		}

		ids = append(ids, filepath.ToSlash(relPath))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking source root: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

// Read loads a file and produces its fingerprint. Fingerprints are cached
// by content hash, so byte-identical content never re-embeds.
func (s *LocalSource) Read(ctx context.Context, id string) (*Content, error) {
	absPath := filepath.Join(s.root, filepath.FromSlash(id))

	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", id, err)
	}

	hash := tree.HashContent(raw)
	if fp, ok := s.cache.Get(hash); ok {
		return &Content{Raw: raw, Fingerprint: fp}, nil
	}

	fp, err := s.embedder.Embed(ctx, string(raw))
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", id, err)
	}
	s.cache.Add(hash, fp)

	return &Content{Raw: raw, Fingerprint: fp}, nil
}

// ShouldIgnore filters hidden files and common build artifacts out of the
// integrity tree.
func ShouldIgnore(path string) bool {
	if path == "" {
		return true
	}

	for _, part := range strings.Split(path, string(filepath.Separator)) {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, ".") {
			return true
		}
		switch part {
		case "node_modules", "vendor", "dist", "build", ".git", ".semtree":
			return true
		}
	}

	return false
}
