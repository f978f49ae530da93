// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
)

type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

// Line is a single diff line.
type Line struct {
	Type    LineType
	Content string
}

// Hunk is a continuous run of changes.
type Hunk struct {
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Lines    []Line
}

// Result contains the complete diff between two content versions.
type Result struct {
	Hunks []Hunk
	Stats struct {
		Additions int
		Deletions int
	}
}

// Engine produces line diffs via longest common subsequence.
type Engine struct {
	contextLines int
}

func NewEngine(contextLines int) *Engine {
	return &Engine{contextLines: contextLines}
}

// Diff compares the archived (old) content against the working (new) one.
func (e *Engine) Diff(oldContent, newContent []byte) *Result {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	lcs := computeLCS(oldLines, newLines)
	ops := backtrack(oldLines, newLines, lcs)

	result := &Result{}
	result.Hunks = e.groupHunks(ops)
	for _, hunk := range result.Hunks {
		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				result.Stats.Additions++
			case Deletion:
				result.Stats.Deletions++
			}
		}
	}
	return result
}

type op struct {
	typ     LineType
	content string
	oldIdx  int
	newIdx  int
}

func splitLines(content []byte) [][]byte {
	return bytes.Split(bytes.TrimSuffix(content, []byte{'\n'}), []byte{'\n'})
}

func computeLCS(oldLines, newLines [][]byte) [][]int {
	matrix := make([][]int, len(oldLines)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(newLines)+1)
	}
	for i := 1; i <= len(oldLines); i++ {
		for j := 1; j <= len(newLines); j++ {
			if bytes.Equal(oldLines[i-1], newLines[j-1]) {
				matrix[i][j] = matrix[i-1][j-1] + 1
			} else {
				matrix[i][j] = max(matrix[i-1][j], matrix[i][j-1])
			}
		}
	}
	return matrix
}

func backtrack(oldLines, newLines [][]byte, lcs [][]int) []op {
	var ops []op
	i, j := len(oldLines), len(newLines)
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && bytes.Equal(oldLines[i-1], newLines[j-1]):
			ops = append(ops, op{typ: Context, content: string(oldLines[i-1]), oldIdx: i - 1, newIdx: j - 1})
			i--
			j--
		case j > 0 && (i == 0 || lcs[i][j-1] >= lcs[i-1][j]):
			ops = append(ops, op{typ: Addition, content: string(newLines[j-1]), oldIdx: i, newIdx: j - 1})
			j--
		default:
			ops = append(ops, op{typ: Deletion, content: string(oldLines[i-1]), oldIdx: i - 1, newIdx: j})
			i--
		}
	}
	// reverse into forward order
	for l, r := 0, len(ops)-1; l < r; l, r = l+1, r-1 {
		ops[l], ops[r] = ops[r], ops[l]
	}
	return ops
}

// groupHunks merges adjacent changes, keeping up to contextLines of
// surrounding context around each run.
func (e *Engine) groupHunks(ops []op) []Hunk {
	var hunks []Hunk
	var current *Hunk
	sinceChange := -1

	flush := func() {
		if current != nil {
			hunks = append(hunks, *current)
			current = nil
		}
	}

	for idx, o := range ops {
		if o.typ == Context {
			if current != nil {
				sinceChange++
				if sinceChange > e.contextLines {
					flush()
					sinceChange = -1
					continue
				}
				current.Lines = append(current.Lines, Line{Type: Context, Content: o.content})
			}
			continue
		}

		if current == nil {
			current = &Hunk{
				OldStart: o.oldIdx + 1,
				NewStart: o.newIdx + 1,
			}
			// leading context
			start := idx - e.contextLines
			if start < 0 {
				start = 0
			}
			for _, lead := range ops[start:idx] {
				if lead.typ != Context {
					continue
				}
				current.Lines = append(current.Lines, Line{Type: Context, Content: lead.content})
				current.OldStart = min(current.OldStart, lead.oldIdx+1)
				current.NewStart = min(current.NewStart, lead.newIdx+1)
			}
		}
		sinceChange = 0

		current.Lines = append(current.Lines, Line{Type: o.typ, Content: o.content})
		if o.typ == Addition {
			current.NewLines++
		} else {
			current.OldLines++
		}
	}
	flush()

	return hunks
}

// Format renders the diff in unified style.
func (r *Result) Format() string {
	var buf bytes.Buffer
	for _, hunk := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)
		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				buf.WriteString("+ ")
			case Deletion:
				buf.WriteString("- ")
			case Context:
				buf.WriteString("  ")
			}
			buf.WriteString(line.Content)
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}
