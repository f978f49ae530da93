// internal/pass/pass.go
package pass

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"semtree/internal/archive"
	"semtree/internal/config"
	"semtree/internal/diff"
	"semtree/internal/embed"
	"semtree/internal/evaluate"
	"semtree/internal/propagate"
	"semtree/internal/snapshot"
	"semtree/internal/source"
	"semtree/internal/tree"
)

const stateDir = ".semtree"

// Runner owns everything one scanned root needs: the state directory, the
// snapshot store, the content archive and the propagator. It is the single
// entry point the CLI and the HTTP daemon share.
type Runner struct {
	Root    string
	DB      *badger.DB
	Store   *snapshot.BadgerStore
	Archive *archive.Archive
	Source  *source.LocalSource
	Logger  *zap.Logger

	prop       *propagate.Propagator
	lastReport *propagate.Report
}

// Initialize creates the state directory layout under root.
func Initialize(root string) error {
	dir := filepath.Join(root, stateDir)
	for _, sub := range []string{filepath.Join(dir, "db"), filepath.Join(dir, "archive")} {
		if err := os.MkdirAll(sub, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", sub, err)
		}
	}
	return nil
}

// FindRoot searches upward for a directory containing the state dir.
func FindRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, stateDir)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("no tracked root found")
}

// New opens (initializing if necessary) the state under root and wires all
// collaborators from the resolved configuration.
func New(root string, cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for root %s: %w", root, err)
	}
	if err := Initialize(absRoot); err != nil {
		return nil, fmt.Errorf("initializing state directories: %w", err)
	}

	dbOpts := badger.DefaultOptions(filepath.Join(absRoot, stateDir, "db"))
	dbOpts.Logger = nil
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	store, err := snapshot.NewBadgerStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing snapshot store: %w", err)
	}

	arc, err := archive.New(db, archive.Options{
		Root: filepath.Join(absRoot, stateDir, "archive"),
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing content archive: %w", err)
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		arc.Close()
		db.Close()
		return nil, err
	}

	src, err := source.NewLocalSource(absRoot, embedder, logger)
	if err != nil {
		arc.Close()
		db.Close()
		return nil, fmt.Errorf("creating content source: %w", err)
	}

	eval, err := evaluate.NewEvaluator(evaluate.NewCosineEngine(), cfg.Threshold)
	if err != nil {
		arc.Close()
		db.Close()
		return nil, err
	}

	prop := propagate.New(eval, logger,
		propagate.WithWorkers(cfg.Workers),
		propagate.WithArchive(arc))

	return &Runner{
		Root:    absRoot,
		DB:      db,
		Store:   store,
		Archive: arc,
		Source:  src,
		Logger:  logger,
		prop:    prop,
	}, nil
}

func newEmbedder(cfg *config.Config) (embed.Embedder, error) {
	switch cfg.Embedder.Kind {
	case "openai":
		key := os.Getenv(cfg.Embedder.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("environment variable %s is not set", cfg.Embedder.APIKeyEnv)
		}
		return embed.NewOpenAIEmbedder(key, cfg.Embedder.Model), nil
	case "service":
		return embed.NewClient(cfg.Embedder.URL), nil
	default:
		return nil, fmt.Errorf("unknown embedder kind %q", cfg.Embedder.Kind)
	}
}

// Build runs an initial pass with no prior snapshot and persists the result.
func (r *Runner) Build(ctx context.Context) (*propagate.Report, error) {
	return r.run(ctx, nil)
}

// Verify loads the prior snapshot and runs a pass against it. A corrupt
// prior aborts the pass before any evaluation happens.
func (r *Runner) Verify(ctx context.Context) (*propagate.Report, error) {
	prior, err := r.Store.Load()
	if err != nil {
		return nil, err
	}
	if prior == nil {
		return nil, errors.New("no snapshot found, run build first")
	}
	return r.run(ctx, prior)
}

func (r *Runner) run(ctx context.Context, prior *tree.Snapshot) (*propagate.Report, error) {
	snap, report, err := r.prop.Propagate(ctx, prior, r.Source)
	if err != nil {
		return nil, err
	}
	if err := r.Store.Save(snap); err != nil {
		return nil, fmt.Errorf("saving snapshot: %w", err)
	}
	r.lastReport = report
	return report, nil
}

// LastReport returns the report of the most recent pass in this process.
func (r *Runner) LastReport() *propagate.Report {
	return r.lastReport
}

// Latest returns the latest persisted snapshot, or nil.
func (r *Runner) Latest() (*tree.Snapshot, error) {
	return r.Store.Load()
}

// Diff renders a line diff between the last accepted content of a leaf and
// its current working copy.
func (r *Runner) Diff(id string) (*diff.Result, error) {
	snap, err := r.Store.Load()
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, errors.New("no snapshot found, run build first")
	}

	node, ok := snap.Nodes[id]
	if !ok || !node.IsLeaf() {
		return nil, fmt.Errorf("no tracked file %s", id)
	}

	oldContent, err := r.Archive.Get(node.Hash)
	if err != nil {
		return nil, fmt.Errorf("loading archived content for %s: %w", id, err)
	}

	newContent, err := os.ReadFile(filepath.Join(r.Root, filepath.FromSlash(id)))
	if err != nil {
		return nil, fmt.Errorf("reading working copy of %s: %w", id, err)
	}

	return diff.NewEngine(3).Diff(oldContent, newContent), nil
}

// Close releases all resources.
func (r *Runner) Close() error {
	var errs []error
	if r.Archive != nil {
		r.Archive.Close()
	}
	if r.Store != nil {
		r.Store.Close()
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("closing runner: %v", errs)
	}
	return nil
}
