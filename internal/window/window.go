// Package window splits ordered text chunks into overlapping windows.
package window

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
)

// ErrInvalidSize is returned for window sizes that cannot overlap by one chunk.
var ErrInvalidSize = errors.New("window size must be at least 2")

// Validate reports whether size can be used with Windows.
func Validate(size int) error {
	if size < 2 {
		return fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}
	return nil
}

// Windows yields windows of up to size chunks. Window i starts at chunk
// i*(size-1), so consecutive windows share one chunk. Iteration stops after
// the window that contains the last chunk. An empty input or an invalid size
// yields nothing; callers should Validate the size first.
func Windows(chunks []string, size int) iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		if size < 2 {
			return
		}
		n := len(chunks)
		for start := 0; start < n; start += size - 1 {
			end := min(start+size, n)
			if !yield(slices.Clip(chunks[start:end])) || end == n {
				return
			}
		}
	}
}

// Count returns how many windows Windows yields for n chunks.
func Count(n, size int) int {
	switch {
	case n <= 0 || size < 2:
		return 0
	case n <= size:
		return 1
	default:
		return (n - 1 + size - 2) / (size - 1)
	}
}

// Join renders a window as one block of text.
func Join(w []string) string {
	return strings.Join(w, "\n")
}
