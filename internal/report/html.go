package report

import (
	_ "embed"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed style.css
var styleCSS string

var (
	reInstructionHeading = regexp.MustCompile(`<h3([^>]*)>`)
	rePhaseHeading       = regexp.MustCompile(`(?i)<h2([^>]*)>\s*((?:Opening|Claim|Counterclaim|Custom|Closing) Instructions)\s*</h2>`)
)

// RenderHTML converts report markdown to an HTML fragment.
func RenderHTML(markdown string) (string, error) {
	var out strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &out); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return out.String(), nil
}

// Document wraps the rendered markdown in a standalone printable page.
func Document(title, markdown string) (string, error) {
	content, err := RenderHTML(markdown)
	if err != nil {
		return "", err
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + html.EscapeString(title) + "</title>" +
		"<style>" + styleCSS + "</style></head><body><main class='report'>" +
		applyPrintLayoutHooks(content) +
		"</main></body></html>", nil
}

// applyPrintLayoutHooks starts each phase on a new page and keeps each
// instruction heading with its text.
func applyPrintLayoutHooks(contentHTML string) string {
	out := rePhaseHeading.ReplaceAllString(contentHTML, `<h2$1 data-page-break-before="true">$2</h2>`)
	return reInstructionHeading.ReplaceAllString(out, `<h3$1 data-instruction="true">`)
}
