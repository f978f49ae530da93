// internal/propagate/report.go
package propagate

import (
	"fmt"
	"strings"
	"time"

	"semtree/internal/errors"
	"semtree/internal/tree"
)

// Status classifies what happened to a node during a pass.
type Status string

const (
	StatusUnchanged Status = "unchanged"
	StatusChanged   Status = "changed"
	StatusAdded     Status = "added"
	StatusRemoved   Status = "removed"
)

// NodeResult is the per-node entry of a change report.
type NodeResult struct {
	ID      string    `json:"id"`
	Kind    tree.Kind `json:"kind"`
	Status  Status    `json:"status"`
	OldHash string    `json:"old_hash,omitempty"`
	NewHash string    `json:"new_hash,omitempty"`

	// Score is the raw difference the evaluator saw, kept for audit.
	// Only meaningful when Scored is true: added leaves, removed leaves
	// and byte-identical leaves are never scored.
	Score  float64 `json:"score,omitempty"`
	Scored bool    `json:"scored,omitempty"`

	Error     string           `json:"error,omitempty"`
	ErrorType errors.ErrorType `json:"error_type,omitempty"`
}

// Report enumerates every node's outcome for one pass, including the
// per-node failures the pass recovered from.
type Report struct {
	PassID     string       `json:"pass_id"`
	Threshold  float64      `json:"threshold"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	RootHash   string       `json:"root_hash"`
	Results    []NodeResult `json:"results"`

	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Changed   int `json:"changed"`
	Unchanged int `json:"unchanged"`
	Errors    int `json:"errors"`
}

func (r *Report) tally() {
	r.Added, r.Removed, r.Changed, r.Unchanged, r.Errors = 0, 0, 0, 0, 0
	for _, res := range r.Results {
		switch res.Status {
		case StatusAdded:
			r.Added++
		case StatusRemoved:
			r.Removed++
		case StatusChanged:
			r.Changed++
		case StatusUnchanged:
			r.Unchanged++
		}
		if res.Error != "" {
			r.Errors++
		}
	}
}

// HasChanges reports whether anything moved during the pass.
func (r *Report) HasChanges() bool {
	return r.Added > 0 || r.Removed > 0 || r.Changed > 0
}

// Failures returns the results that carry a recovered per-node error.
func (r *Report) Failures() []NodeResult {
	var out []NodeResult
	for _, res := range r.Results {
		if res.Error != "" {
			out = append(out, res)
		}
	}
	return out
}

// Summary renders a compact single-line description of the pass.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d added, %d changed, %d removed, %d unchanged, %d errors",
		r.Added, r.Changed, r.Removed, r.Unchanged, r.Errors)
}

// Format renders the report for humans, one line per node that moved.
func (r *Report) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "pass %s (threshold %.2f): %s\n", r.PassID, r.Threshold, r.Summary())
	for _, res := range r.Results {
		if res.Status == StatusUnchanged && res.Error == "" {
			continue
		}
		line := fmt.Sprintf("  %-9s %s", res.Status, res.ID)
		if res.Scored {
			line += fmt.Sprintf("  (difference %.4f)", res.Score)
		}
		if res.Error != "" {
			line += fmt.Sprintf("  [%s: %s]", res.ErrorType, res.Error)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "root_hash = %s\n", r.RootHash)

	return b.String()
}
