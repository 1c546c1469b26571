// Package rope implements the mutable text buffer behind a File Manager
// record. It is deliberately small: a line-offset index over a single
// contiguous buffer, rebuilt incrementally on edit. This generalizes the
// teacher's precomputed-line-offsets approach (internal/core/line_scanner.go)
// from "read once at index time" to "patch in place on didChange".
package rope

import (
	"strings"

	"github.com/standardbeagle/corels/internal/types"
)

// Rope holds text plus a cached line-start index so Position<->offset
// conversion is O(log n) via binary search instead of O(n) re-scanning.
type Rope struct {
	text        string
	lineStarts  []int // byte offset of the start of each line; lineStarts[0] == 0
}

// New builds a Rope from an initial full document.
func New(text string) *Rope {
	r := &Rope{}
	r.reset(text)
	return r
}

func (r *Rope) reset(text string) {
	r.text = text
	r.lineStarts = r.lineStarts[:0]
	r.lineStarts = append(r.lineStarts, 0)
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			r.lineStarts = append(r.lineStarts, i+1)
		}
	}
}

// Text returns the full current document contents.
func (r *Rope) Text() string { return r.text }

// Len returns the byte length of the document.
func (r *Rope) Len() int { return len(r.text) }

// Replace applies a full-document replacement.
func (r *Rope) Replace(text string) {
	r.reset(text)
}

// ApplyRange replaces the text in [startOffset, endOffset) with newText.
// It rescans the whole document to rebuild the line index; see
// DESIGN.md for why this O(n)-per-edit tradeoff is accepted.
func (r *Rope) ApplyRange(startOffset, endOffset int, newText string) {
	if startOffset < 0 {
		startOffset = 0
	}
	if endOffset > len(r.text) {
		endOffset = len(r.text)
	}
	if startOffset > endOffset {
		startOffset = endOffset
	}
	var b strings.Builder
	b.Grow(len(r.text) - (endOffset - startOffset) + len(newText))
	b.WriteString(r.text[:startOffset])
	b.WriteString(newText)
	b.WriteString(r.text[endOffset:])
	// A full rescan keeps the index correct and simple; the document
	// sizes this engine targets (single source files) make this cheap
	// enough that a splice-the-line-index optimization isn't warranted.
	r.reset(b.String())
}

// OffsetToPosition converts a byte offset to a (line, character) pair.
// Character counts UTF-16 code units to match editor transport
// conventions, falling back to byte count for ASCII-only lines (the
// common case for source code).
func (r *Rope) OffsetToPosition(offset int) types.Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(r.text) {
		offset = len(r.text)
	}
	line := searchLine(r.lineStarts, offset)
	lineStart := r.lineStarts[line]
	col := utf16Len(r.text[lineStart:offset])
	return types.Position{Line: line, Character: col}
}

// PositionToOffset converts a (line, character) pair to a byte offset.
func (r *Rope) PositionToOffset(pos types.Position) int {
	if pos.Line < 0 {
		return 0
	}
	if pos.Line >= len(r.lineStarts) {
		return len(r.text)
	}
	lineStart := r.lineStarts[pos.Line]
	lineEnd := len(r.text)
	if pos.Line+1 < len(r.lineStarts) {
		lineEnd = r.lineStarts[pos.Line+1]
	}
	return offsetIntoLine(r.text[lineStart:lineEnd], pos.Character) + lineStart
}

func searchLine(lineStarts []int, offset int) int {
	lo, hi := 0, len(lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

func offsetIntoLine(line string, character int) int {
	n := 0
	for i, r := range line {
		if n >= character {
			return i
		}
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return len(line)
}
