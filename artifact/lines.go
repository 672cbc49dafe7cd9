package artifact

import "bytes"

// LineIndex maps byte offsets to 1-based line/column positions.
type LineIndex struct {
	starts []int // byte offset of each line start
	size   int
}

// NewLineIndex builds an index over content.
func NewLineIndex(content []byte) *LineIndex {
	starts := []int{0}
	for i, b := range content {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &LineIndex{starts: starts, size: len(content)}
}

// Position returns the 1-based line and column for a byte offset. Offsets
// past the end of content resolve to the final position.
func (ix *LineIndex) Position(offset int) (line, col int) {
	if offset < 0 {
		offset = 0
	}
	if offset > ix.size {
		offset = ix.size
	}
	lo, hi := 0, len(ix.starts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if ix.starts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1, offset - ix.starts[lo] + 1
}

// skipSpace advances offset past ASCII whitespace so positions point at the
// token itself rather than preceding indentation.
func skipSpace(content []byte, offset int) int {
	for offset < len(content) && bytes.ContainsRune([]byte(" \t\r\n"), rune(content[offset])) {
		offset++
	}
	return offset
}
