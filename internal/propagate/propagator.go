// internal/propagate/propagator.go
package propagate

import (
	"context"
	"fmt"
	"path"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"semtree/internal/errors"
	"semtree/internal/evaluate"
	"semtree/internal/source"
	"semtree/internal/tree"
)

// RootID is the id of the synthetic internal node covering the whole tree.
// A tree with a single leaf has no internal nodes; its root is the leaf.
const RootID = "."

// ContentArchiver receives the raw bytes of every accepted content version.
type ContentArchiver interface {
	Store(content []byte) (string, error)
}

// Propagator runs one integrity pass: it evaluates all leaves against the
// prior snapshot, then recomputes internal-node hashes bottom-up wherever a
// descendant moved, reusing prior hashes everywhere else.
type Propagator struct {
	eval    *evaluate.Evaluator
	workers int
	archive ContentArchiver
	logger  *zap.Logger
}

// Option configures a Propagator.
type Option func(*Propagator)

// WithWorkers bounds the leaf evaluation pool.
func WithWorkers(n int) Option {
	return func(p *Propagator) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithArchive wires a content archive that keeps each accepted version.
func WithArchive(a ContentArchiver) Option {
	return func(p *Propagator) {
		p.archive = a
	}
}

func New(eval *evaluate.Evaluator, logger *zap.Logger, opts ...Option) *Propagator {
	p := &Propagator{
		eval:    eval,
		workers: runtime.NumCPU(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type leafOutcome struct {
	node   *tree.Node
	result NodeResult
}

// Propagate runs a full pass. With prior == nil this is an initial build:
// every leaf is trivially added. The prior snapshot is never mutated; a new
// snapshot is produced alongside the change report.
//
// Per-node read and similarity failures degrade that node to Changed and
// are enumerated in the report; only structural problems (invalid prior,
// unlistable source, cancellation) abort the pass.
func (p *Propagator) Propagate(ctx context.Context, prior *tree.Snapshot, src source.ContentSource) (*tree.Snapshot, *Report, error) {
	started := time.Now()
	passID := uuid.New().String()
	log := p.logger.With(zap.String("pass_id", passID))

	if prior != nil {
		if err := prior.Validate(); err != nil {
			return nil, nil, err
		}
	}

	ids, err := src.ListIDs(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing leaves: %w", err)
	}
	sort.Strings(ids)

	priorLeaves := make(map[string]*tree.Node)
	if prior != nil {
		priorLeaves = prior.Leaves()
	}

	log.Info("starting pass",
		zap.Int("leaves", len(ids)),
		zap.Int("prior_leaves", len(priorLeaves)),
		zap.Float64("threshold", p.eval.Threshold()))

	// Fan out leaf evaluation. Each goroutine writes exactly one slot, and
	// the Wait below is the barrier: no internal-node hash is computed
	// before every leaf verdict is final.
	outcomes := make([]leafOutcome, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = p.evaluateLeaf(gctx, src, id, priorLeaves[id])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("evaluating leaves: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	nodes := make(map[string]*tree.Node, len(outcomes))
	results := make([]NodeResult, 0, len(outcomes))
	changedLeaves := make(map[string]bool)
	for _, o := range outcomes {
		nodes[o.node.ID] = o.node
		results = append(results, o.result)
		if o.result.Status != StatusUnchanged {
			changedLeaves[o.node.ID] = true
		}
	}

	// Leaves present only in the prior snapshot are removed: they leave the
	// new tree and appear in the report.
	currentSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		currentSet[id] = true
	}
	for id, n := range priorLeaves {
		if !currentSet[id] {
			results = append(results, NodeResult{
				ID:      id,
				Kind:    tree.KindLeaf,
				Status:  StatusRemoved,
				OldHash: n.Hash,
			})
		}
	}

	rootID, rootHash, internalResults := p.buildInternal(ids, nodes, changedLeaves, prior)
	results = append(results, internalResults...)

	// Internal nodes of the prior tree that no longer exist.
	if prior != nil {
		for id, n := range prior.Nodes {
			if n.IsLeaf() {
				continue
			}
			if _, ok := nodes[id]; !ok {
				results = append(results, NodeResult{
					ID:      id,
					Kind:    tree.KindInternal,
					Status:  StatusRemoved,
					OldHash: n.Hash,
				})
			}
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })

	snap := &tree.Snapshot{
		ID:        passID,
		CreatedAt: started,
		RootID:    rootID,
		RootHash:  rootHash,
		Nodes:     nodes,
	}

	report := &Report{
		PassID:     passID,
		Threshold:  p.eval.Threshold(),
		StartedAt:  started,
		FinishedAt: time.Now(),
		RootHash:   rootHash,
		Results:    results,
	}
	report.tally()

	log.Info("pass complete",
		zap.String("root_hash", rootHash),
		zap.Int("changed", report.Changed),
		zap.Int("added", report.Added),
		zap.Int("removed", report.Removed),
		zap.Int("errors", report.Errors))

	return snap, report, nil
}

// evaluateLeaf decides one leaf's fate. Failures are conservative: a leaf
// whose content cannot be read or scored is treated as changed, never
// silently skipped.
func (p *Propagator) evaluateLeaf(ctx context.Context, src source.ContentSource, id string, prior *tree.Node) leafOutcome {
	content, err := src.Read(ctx, id)
	if err != nil {
		serr := errors.Source(id, err)
		p.logger.Warn("leaf read failed, treating as changed",
			zap.String("id", id),
			zap.Error(err))

		if prior == nil {
			node := &tree.Node{
				ID:      id,
				Kind:    tree.KindLeaf,
				Hash:    tree.HashContent(nil),
				Verdict: tree.VerdictChanged,
			}
			return leafOutcome{node: node, result: NodeResult{
				ID: id, Kind: tree.KindLeaf, Status: StatusAdded,
				NewHash: node.Hash,
				Error:   serr.Error(), ErrorType: errors.ErrorTypeSource,
			}}
		}

		// Unreadable content cannot be re-hashed; the prior hash is carried
		// forward but the node still counts as changed so ancestors
		// recompute rather than trust it.
		node := &tree.Node{
			ID:          id,
			Kind:        tree.KindLeaf,
			Hash:        prior.Hash,
			Fingerprint: prior.Fingerprint,
			Verdict:     tree.VerdictChanged,
		}
		return leafOutcome{node: node, result: NodeResult{
			ID: id, Kind: tree.KindLeaf, Status: StatusChanged,
			OldHash: prior.Hash, NewHash: prior.Hash,
			Error: serr.Error(), ErrorType: errors.ErrorTypeSource,
		}}
	}

	rawHash := tree.HashContent(content.Raw)

	if prior == nil {
		node := &tree.Node{
			ID:          id,
			Kind:        tree.KindLeaf,
			Hash:        rawHash,
			Fingerprint: content.Fingerprint,
			Verdict:     tree.VerdictChanged,
		}
		p.archiveContent(id, content.Raw)
		return leafOutcome{node: node, result: NodeResult{
			ID: id, Kind: tree.KindLeaf, Status: StatusAdded, NewHash: rawHash,
		}}
	}

	// Byte-identical content never consults the engine. This keeps verify
	// idempotent at every threshold, including 0.
	if rawHash == prior.Hash {
		node := &tree.Node{
			ID:          id,
			Kind:        tree.KindLeaf,
			Hash:        prior.Hash,
			Fingerprint: prior.Fingerprint,
			Verdict:     tree.VerdictUnchanged,
		}
		return leafOutcome{node: node, result: NodeResult{
			ID: id, Kind: tree.KindLeaf, Status: StatusUnchanged,
			OldHash: prior.Hash, NewHash: prior.Hash,
		}}
	}

	verdict, score, err := p.eval.Evaluate(prior.Fingerprint, content.Fingerprint)
	if err != nil {
		eerr := errors.Engine(id, err)
		p.logger.Warn("similarity evaluation failed, treating as changed",
			zap.String("id", id),
			zap.Error(err))

		node := &tree.Node{
			ID:          id,
			Kind:        tree.KindLeaf,
			Hash:        rawHash,
			Fingerprint: content.Fingerprint,
			Verdict:     tree.VerdictChanged,
		}
		p.archiveContent(id, content.Raw)
		return leafOutcome{node: node, result: NodeResult{
			ID: id, Kind: tree.KindLeaf, Status: StatusChanged,
			OldHash: prior.Hash, NewHash: rawHash,
			Error: eerr.Error(), ErrorType: errors.ErrorTypeEngine,
		}}
	}

	if verdict == tree.VerdictUnchanged {
		// The old fingerprint stays the comparison baseline: each pass
		// compares against the last accepted version, so below-threshold
		// drift cannot compound its way past the ceiling.
		node := &tree.Node{
			ID:          id,
			Kind:        tree.KindLeaf,
			Hash:        prior.Hash,
			Fingerprint: prior.Fingerprint,
			Verdict:     tree.VerdictUnchanged,
		}
		return leafOutcome{node: node, result: NodeResult{
			ID: id, Kind: tree.KindLeaf, Status: StatusUnchanged,
			OldHash: prior.Hash, NewHash: prior.Hash,
			Score: score, Scored: true,
		}}
	}

	node := &tree.Node{
		ID:          id,
		Kind:        tree.KindLeaf,
		Hash:        rawHash,
		Fingerprint: content.Fingerprint,
		Verdict:     tree.VerdictChanged,
	}
	p.archiveContent(id, content.Raw)
	return leafOutcome{node: node, result: NodeResult{
		ID: id, Kind: tree.KindLeaf, Status: StatusChanged,
		OldHash: prior.Hash, NewHash: rawHash,
		Score: score, Scored: true,
	}}
}

func (p *Propagator) archiveContent(id string, raw []byte) {
	if p.archive == nil {
		return
	}
	if _, err := p.archive.Store(raw); err != nil {
		p.logger.Warn("archiving accepted content failed",
			zap.String("id", id),
			zap.Error(err))
	}
}

// buildInternal mirrors the directory hierarchy as internal nodes and
// hashes them children-before-parents. A directory whose descendants all
// held still reuses its prior hash untouched.
func (p *Propagator) buildInternal(leafIDs []string, nodes map[string]*tree.Node, changedLeaves map[string]bool, prior *tree.Snapshot) (string, string, []NodeResult) {
	if len(leafIDs) == 0 {
		return "", "", nil
	}
	if len(leafIDs) == 1 {
		id := leafIDs[0]
		return id, nodes[id].Hash, nil
	}

	children := map[string]map[string]bool{RootID: {}}
	for _, id := range leafIDs {
		child := id
		for {
			parent := path.Dir(child)
			if parent == child {
				parent = RootID
			}
			if children[parent] == nil {
				children[parent] = make(map[string]bool)
			}
			children[parent][child] = true
			if parent == RootID {
				break
			}
			child = parent
		}
	}

	var results []NodeResult
	var build func(dir string) (hash string, changed bool)
	build = func(dir string) (string, bool) {
		childIDs := make([]string, 0, len(children[dir]))
		for c := range children[dir] {
			childIDs = append(childIDs, c)
		}
		sort.Strings(childIDs)

		dirChanged := false
		childHashes := make([]string, 0, len(childIDs))
		for _, c := range childIDs {
			if _, isDir := children[c]; isDir {
				h, changed := build(c)
				childHashes = append(childHashes, h)
				dirChanged = dirChanged || changed
				continue
			}
			childHashes = append(childHashes, nodes[c].Hash)
			dirChanged = dirChanged || changedLeaves[c]
		}

		var priorNode *tree.Node
		if prior != nil {
			if n, ok := prior.Nodes[dir]; ok && !n.IsLeaf() {
				priorNode = n
			}
		}
		if priorNode == nil || !equalStrings(priorNode.Children, childIDs) {
			// A structural difference (added/removed descendant or a brand
			// new directory) always forces recomputation.
			dirChanged = true
		}

		node := &tree.Node{
			ID:       dir,
			Kind:     tree.KindInternal,
			Children: childIDs,
		}
		res := NodeResult{ID: dir, Kind: tree.KindInternal}

		if !dirChanged {
			node.Hash = priorNode.Hash
			node.Verdict = tree.VerdictUnchanged
			res.Status = StatusUnchanged
			res.OldHash = priorNode.Hash
			res.NewHash = priorNode.Hash
		} else {
			node.Hash = tree.HashChildren(childHashes)
			node.Verdict = tree.VerdictChanged
			if priorNode == nil {
				res.Status = StatusAdded
			} else {
				res.Status = StatusChanged
				res.OldHash = priorNode.Hash
			}
			res.NewHash = node.Hash
		}

		nodes[dir] = node
		results = append(results, res)
		return node.Hash, dirChanged
	}

	rootHash, _ := build(RootID)
	return RootID, rootHash, results
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
