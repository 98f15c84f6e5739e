// Package chunk turns filings into the ordered text chunks the extraction
// passes read.
package chunk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultMaxWords is the chunk size used when none is given.
const DefaultMaxWords = 2000

// sentenceEnd matches terminal punctuation followed by whitespace, or a
// blank line.
var sentenceEnd = regexp.MustCompile(`[.!?]["')\]]*\s+|\n\s*\n`)

// Sentences splits text at sentence boundaries. Each returned sentence is
// trimmed and non-empty.
func Sentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := strings.TrimSpace(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

// Split groups whole sentences into chunks of at most maxWords words. A
// sentence longer than the limit becomes a chunk of its own.
func Split(text string, maxWords int) []string {
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	var (
		chunks  []string
		current []string
		length  int
	)
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
		}
		current, length = nil, 0
	}
	for _, s := range Sentences(text) {
		n := len(strings.Fields(s))
		if n > maxWords {
			flush()
			chunks = append(chunks, s)
			continue
		}
		if length+n > maxWords {
			flush()
		}
		current = append(current, s)
		length += n
	}
	flush()
	return chunks
}

// LoadFile reads path into chunks. A .json file holds a ready-made array of
// chunk strings, a .pdf file goes through text extraction, and anything else
// is read as plain text.
func LoadFile(ctx context.Context, path string, maxWords int) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var chunks []string
		if err := json.Unmarshal(b, &chunks); err != nil {
			return nil, fmt.Errorf("%s: expected a JSON array of strings: %w", path, err)
		}
		return chunks, nil
	case ".pdf":
		return LoadPDF(ctx, path, maxWords)
	default:
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return Split(string(b), maxWords), nil
	}
}
