// internal/archive/archive.go
package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/klauspost/compress/zstd"

	"semtree/internal/tree"
)

var (
	ErrContentNotFound = errors.New("archived content not found")
	ErrInvalidHash     = errors.New("invalid content hash")
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Meta records what the archive knows about one stored blob.
type Meta struct {
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
	StoredAt   time.Time `json:"stored_at"`
}

// Archive keeps the last accepted content version of every leaf,
// content-addressed and deduplicated. It exists for auditability: when a
// leaf is later judged changed, the archived version is what diffs render
// against.
type Archive struct {
	root    string
	db      *badger.DB
	cache   *lru.Cache[string, []byte]
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	minSize int
}

// Options configures an Archive.
type Options struct {
	Root      string
	CacheSize int
	MinSize   int // below this many bytes content is stored uncompressed
}

func New(db *badger.DB, opts Options) (*Archive, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("archive root directory is required")
	}
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	if opts.CacheSize == 0 {
		opts.CacheSize = 256
	}
	if opts.MinSize == 0 {
		opts.MinSize = 1024
	}

	cache, err := lru.New[string, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating content cache: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Archive{
		root:    opts.Root,
		db:      db,
		cache:   cache,
		enc:     enc,
		dec:     dec,
		minSize: opts.MinSize,
	}, nil
}

// Store saves content under its hash and returns the hash. Storing the
// same content twice is a no-op.
func (a *Archive) Store(content []byte) (string, error) {
	if content == nil {
		content = []byte{}
	}

	hash := tree.HashContent(content)
	if _, err := a.getMeta(hash); err == nil {
		return hash, nil
	} else if !errors.Is(err, ErrContentNotFound) {
		return "", fmt.Errorf("checking existing content: %w", err)
	}

	blob := content
	compressed := false
	if len(content) >= a.minSize {
		blob = a.enc.EncodeAll(content, nil)
		compressed = true
	}

	path := a.contentPath(hash)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating content directory: %w", err)
	}
	if err := os.WriteFile(path, blob, 0644); err != nil {
		return "", fmt.Errorf("writing content file: %w", err)
	}

	meta := Meta{
		Hash:       hash,
		Size:       int64(len(content)),
		Compressed: compressed,
		StoredAt:   time.Now(),
	}
	if err := a.storeMeta(meta); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("storing content metadata: %w", err)
	}

	a.cache.Add(hash, content)
	return hash, nil
}

// Get retrieves content by hash, decompressing and verifying it.
func (a *Archive) Get(hash string) ([]byte, error) {
	if len(hash) != 64 {
		return nil, ErrInvalidHash
	}

	if content, ok := a.cache.Get(hash); ok {
		return content, nil
	}

	meta, err := a.getMeta(hash)
	if err != nil {
		return nil, err
	}

	blob, err := os.ReadFile(a.contentPath(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("reading content file: %w", err)
	}

	content := blob
	if meta.Compressed && bytes.HasPrefix(blob, zstdMagic) {
		content, err = a.dec.DecodeAll(blob, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing content: %w", err)
		}
	}

	if tree.HashContent(content) != hash {
		return nil, fmt.Errorf("archived content hash mismatch for %s", hash)
	}

	a.cache.Add(hash, content)
	return content, nil
}

// Exists reports whether content with the given hash is archived.
func (a *Archive) Exists(hash string) bool {
	if a.cache.Contains(hash) {
		return true
	}
	_, err := a.getMeta(hash)
	return err == nil
}

// Close releases compression resources.
func (a *Archive) Close() {
	a.enc.Close()
	a.dec.Close()
}

func (a *Archive) contentPath(hash string) string {
	return filepath.Join(a.root, hash[:2], hash[2:])
}

func (a *Archive) storeMeta(meta Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(meta.Hash), data)
	})
}

func (a *Archive) getMeta(hash string) (Meta, error) {
	var meta Meta
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(hash))
		if err == badger.ErrKeyNotFound {
			return ErrContentNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	return meta, err
}

func metaKey(hash string) []byte {
	return []byte(fmt.Sprintf("archive:%s", hash))
}
