package chunk

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	maxPDFBytes = 50 << 20
	pdfTimeout  = 2 * time.Minute
	// minRunWords is the shortest printable run kept when reading PDF bytes
	// directly; shorter runs are almost always object syntax.
	minRunWords = 4
)

// pdftotext is the poppler binary used for text extraction.
var pdftotext = "pdftotext"

var (
	caseNumberLabeledPattern = regexp.MustCompile(`(?i)\bcase\s*(?:no\.?|number|#)\s*[:#-]?\s*([A-Za-z0-9:]{1,12}(?:-[A-Za-z0-9]{1,12}){1,3})\b`)
	caseNumberDocketPattern  = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}-cv-\d{3,6}|20\d{2}-?CV-?\d{3,6})\b`)
	pdfSyntax                = regexp.MustCompile(`^\s*(?:/[A-Z]|<<|\d+ \d+ obj\b)|\bend(?:obj|stream)\b|\bxref\b`)
)

// LoadPDF reads a filing into chunks. Pages become paragraph breaks so no
// chunk joins the last sentence of one page with the first of the next.
// Without pdftotext the printable text runs of the file are used instead.
func LoadPDF(ctx context.Context, path string, maxWords int) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxPDFBytes {
		return nil, fmt.Errorf("%s: pdf too large (%d bytes)", path, info.Size())
	}

	text, err := pdfText(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		blob, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		text = strings.Join(printableRuns(blob), "\n\n")
	}
	chunks := Split(text, maxWords)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s: no extractable text", path)
	}
	return chunks, nil
}

func pdfText(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pdfTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, pdftotext, "-enc", "UTF-8", path, "-").Output()
	if err != nil {
		return "", err
	}
	text := strings.ReplaceAll(string(out), "\f", "\n\n")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s produced no text", pdftotext)
	}
	return text, nil
}

// printableRuns returns the runs of printable bytes that read like prose.
func printableRuns(blob []byte) []string {
	var runs []string
	for _, f := range bytes.FieldsFunc(blob, func(r rune) bool {
		if r == utf8.RuneError {
			return true
		}
		return !(unicode.IsPrint(r) || r == '\n' || r == '\t' || r == '\r')
	}) {
		s := strings.TrimSpace(string(f))
		if len(strings.Fields(s)) < minRunWords || pdfSyntax.MatchString(s) {
			continue
		}
		runs = append(runs, s)
	}
	return runs
}

// DetectCaseNumber finds a docket number near the top of a filing, or "".
func DetectCaseNumber(text string) string {
	s := strings.TrimSpace(text)
	if len(s) > 8000 {
		s = s[:8000]
	}
	if m := caseNumberLabeledPattern.FindStringSubmatch(s); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	if m := caseNumberDocketPattern.FindStringSubmatch(s); len(m) == 2 {
		return strings.TrimSpace(m[1])
	}
	return ""
}
