// Package report renders a pipeline result as markdown, HTML or PDF.
package report

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joelkehle/jury-instructions/internal/legal"
	"github.com/joelkehle/jury-instructions/internal/pipeline"
)

var phaseTitles = []struct {
	phase string
	title string
}{
	{"opening", "Opening Instructions"},
	{"claims", "Claim Instructions"},
	{"counterclaims", "Counterclaim Instructions"},
	{"custom", "Custom Instructions"},
	{"closing", "Closing Instructions"},
}

// BuildMarkdown lays out the result for review: the case summary first, then
// every instruction in output order grouped under its phase.
func BuildMarkdown(res pipeline.Result) string {
	var b strings.Builder
	b.WriteString("# Jury Instructions\n\n")
	fmt.Fprintf(&b, "- Case ID: %s\n", res.CaseID)
	if !res.Metadata.CompletedAt.IsZero() {
		fmt.Fprintf(&b, "- Generated: %s\n", res.Metadata.CompletedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "- Instructions: %d\n\n", len(res.Instructions))

	b.WriteString("## Case Facts\n\n")
	if strings.TrimSpace(res.CaseFacts) == "" {
		b.WriteString("_No case facts were extracted._\n\n")
	} else {
		b.WriteString(strings.TrimSpace(res.CaseFacts) + "\n\n")
	}

	if len(res.Witnesses) > 0 {
		b.WriteString("## Witnesses\n\n")
		for _, w := range res.Witnesses {
			fmt.Fprintf(&b, "- %s\n", w.FullName())
		}
		b.WriteString("\n")
	}

	appendItems(&b, "Claims", res.Claims, true)
	appendItems(&b, "Counterclaims", res.Counterclaims, false)

	current := ""
	for _, in := range res.Instructions {
		if in.Phase != current {
			current = in.Phase
			fmt.Fprintf(&b, "## %s\n\n", phaseTitle(current))
		}
		fmt.Fprintf(&b, "### %s\n\n", in.Title)
		fmt.Fprintf(&b, "**%s.** %s\n\n", in.Number, strings.TrimSpace(in.CustomizedText))
	}
	return b.String()
}

func phaseTitle(phase string) string {
	for _, p := range phaseTitles {
		if p.phase == phase {
			return p.title
		}
	}
	if phase == "" {
		return "Instructions"
	}
	return strings.ToUpper(phase[:1]) + phase[1:] + " Instructions"
}

func appendItems(b *strings.Builder, heading string, items []legal.MatchedItem, withDefenses bool) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	if withDefenses {
		b.WriteString("| # | Name | Catalog ID | Damages | Defenses |\n|---|---|---|---|---|\n")
	} else {
		b.WriteString("| # | Name | Catalog ID | Damages |\n|---|---|---|---|\n")
	}
	for i, it := range items {
		id := "custom"
		if it.ClaimID != nil {
			id = strconv.Itoa(*it.ClaimID)
		}
		row := fmt.Sprintf("| %d | %s | %s | %s |", i+1, cell(it.Name), id, cell(damagesSummary(it.Damages)))
		if withDefenses {
			names := make([]string, len(it.Defenses))
			for j, d := range it.Defenses {
				names[j] = d.Name
			}
			row += " " + cell(strings.Join(names, "; ")) + " |"
		}
		b.WriteString(row + "\n")
	}
	b.WriteString("\n")
}

func damagesSummary(d legal.Damages) string {
	var parts []string
	for i, list := range []legal.TextList{d.Compensatory, d.Punitive, d.Statutory, d.Equitable, d.Other} {
		if len(list) > 0 {
			parts = append(parts, legal.DamageCategories[i]+": "+strings.Join(list, ", "))
		}
	}
	return strings.Join(parts, "; ")
}

// cell keeps a value on one table row.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "-"
	}
	return s
}
