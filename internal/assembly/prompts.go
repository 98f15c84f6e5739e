package assembly

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/joelkehle/jury-instructions/internal/catalog"
	"github.com/joelkehle/jury-instructions/internal/legal"
	"github.com/joelkehle/jury-instructions/internal/oracle"
)

type renderReply struct {
	CustomizedText string `json:"customized_text" jsonschema_description:"The instruction text with bracketed choices resolved and names filled in"`
}

type splitReply struct {
	PreOathText  string `json:"pre_oath_text" jsonschema_description:"The part of the introduction read before the oath"`
	PostOathText string `json:"post_oath_text" jsonschema_description:"The part of the introduction read after the oath"`
}

type categoryReply struct {
	Category  string `json:"category" jsonschema_description:"The category number (e.g. 416) or CUSTOM if no match"`
	Reasoning string `json:"reasoning" jsonschema_description:"Brief explanation of the choice"`
}

type selection struct {
	Number         string `json:"number" jsonschema_description:"Instruction number (e.g. 416.5)"`
	Include        bool   `json:"include" jsonschema_description:"Whether to include this instruction"`
	Reasoning      string `json:"reasoning" jsonschema_description:"Why this instruction should or should not be included"`
	CustomizedText string `json:"customized_text,omitempty" jsonschema_description:"The fully customized instruction text with bracketed choices resolved and party names filled in. Only provide if include is true."`
}

type selectReply struct {
	SelectedInstructions []selection `json:"selected_instructions"`
}

type customInstruction struct {
	Title          string `json:"title" jsonschema_description:"Short title such as Introduction or Essential Elements"`
	CustomizedText string `json:"customized_text" jsonschema_description:"The full text of this instruction with party names and facts filled in"`
	Reasoning      string `json:"reasoning,omitempty" jsonschema_description:"Brief explanation of what this instruction covers"`
}

type customReply struct {
	Instructions []customInstruction `json:"instructions"`
}

var (
	renderSchema   = oracle.SchemaFor(&renderReply{})
	splitSchema    = oracle.SchemaFor(&splitReply{})
	categorySchema = oracle.SchemaFor(&categoryReply{})
	selectSchema   = oracle.SchemaFor(&selectReply{})
	customSchema   = oracle.SchemaFor(&customReply{})
)

func (e *Engine) caseBlock(caseFacts string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PLAINTIFF(S): %s\n", listOrUnknown(e.cfg.Plaintiffs))
	fmt.Fprintf(&b, "DEFENDANT(S): %s\n", listOrUnknown(e.cfg.Defendants))
	if len(e.cfg.Extra) > 0 {
		keys := make([]string, 0, len(e.cfg.Extra))
		for k := range e.cfg.Extra {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.WriteString("ADDITIONAL CASE DETAILS:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, e.cfg.Extra[k])
		}
	}
	fmt.Fprintf(&b, "\nCASE FACTS:\n%s\n", orDefault(caseFacts, "No case facts available."))
	return b.String()
}

func renderRequest(tpl catalog.InstructionTemplate, guidance, caseBlock string) oracle.Request {
	return oracle.Request{
		SchemaName:  "render_instruction",
		Description: "Customize one standard jury instruction for this case",
		Schema:      renderSchema,
		MaxTokens:   2000,
		Instructions: fmt.Sprintf(`You are customizing a standard jury instruction for a specific civil case.

%s
INSTRUCTION %s: %s
%s
%s
%s
Resolve every bracketed alternative, fill in party and participant names, and remove unused options. Use neutral, clear language.`,
			caseBlock, tpl.Number, tpl.Title, tpl.MainParagraph, notesBlock(tpl.NotesOnUse), guidanceBlock(guidance)),
	}
}

func splitRequest(intro, oath catalog.InstructionTemplate, caseBlock string) oracle.Request {
	return oracle.Request{
		SchemaName:  "split_introduction",
		Description: "Split the introduction instruction around the oath",
		Schema:      splitSchema,
		MaxTokens:   2500,
		Instructions: fmt.Sprintf(`You are customizing the opening instruction for a civil jury trial in which the prospective jurors take an oath partway through the introduction.

%s
INTRODUCTION %s: %s
%s
%s
OATH %s: %s

Customize the introduction for this case, then split it into the part the judge reads before the oath is administered (pre_oath_text) and the part read after it (post_oath_text). Both parts must be non-empty.`,
			caseBlock, intro.Number, intro.Title, intro.MainParagraph, notesBlock(intro.NotesOnUse), oath.Number, oath.Title),
	}
}

func categoryRequest(claimTitle, caseFacts string, categories []catalog.Category) oracle.Request {
	var list strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&list, "%s: %s\n", c.Number, c.Title)
	}
	return oracle.Request{
		SchemaName:  "match_category",
		Description: "Match claim to instruction category or indicate custom needed",
		Schema:      categorySchema,
		MaxTokens:   500,
		Instructions: fmt.Sprintf(`Match this claim to the appropriate standard jury instruction category.

CLAIM: %s

CASE FACTS:
%s

AVAILABLE INSTRUCTION CATEGORIES:
%s
Determine which category this claim belongs to. If the claim clearly matches one of the standard categories, return that category number. If there is no good match (e.g., claims like "Conversion", "Libel", "Slander" or "Defamation" that aren't listed), return "CUSTOM".

Consider the claim title itself, the nature of the claim based on case facts, whether it's a tort or contract claim, and whether it fits clearly within a standard category.`,
			claimTitle, orDefault(caseFacts, "No case facts available."), list.String()),
	}
}

type templateSummary struct {
	Number        string   `json:"number"`
	Title         string   `json:"title"`
	MainParagraph string   `json:"main_paragraph"`
	NotesOnUse    []string `json:"notes_on_use"`
}

func selectRequest(claim catalog.ReferenceClaim, defenses []legal.Defense, templates []catalog.InstructionTemplate, caseBlock string) oracle.Request {
	summaries := make([]templateSummary, len(templates))
	for i, t := range templates {
		notes := t.NotesOnUse
		if notes == nil {
			notes = []string{}
		}
		summaries[i] = templateSummary{Number: t.Number, Title: t.Title, MainParagraph: t.MainParagraph, NotesOnUse: notes}
	}
	available, _ := json.MarshalIndent(summaries, "", "  ")
	return oracle.Request{
		SchemaName:  "select_instructions",
		Description: "Select which jury instructions apply and customize them",
		Schema:      selectSchema,
		MaxTokens:   4000,
		Instructions: fmt.Sprintf(`You are selecting and customizing jury instructions for a specific claim.

CLAIM: %s

CLAIM ELEMENTS (what must be proven):
%s
DEFENSES RAISED:
%s
%s
AVAILABLE INSTRUCTIONS:
%s

For EACH instruction, determine:
1. Should it be included? Consider whether the element or issue is contested, whether the defenses raise it, whether it applies to the facts, and what the notes_on_use say about when to include or exclude it.
2. If included, provide the CUSTOMIZED text: choose the appropriate bracketed alternatives, fill in party names, fill in other blanks such as amounts and dates, and remove unused bracketed options.

Be thorough but conservative. Only include instructions that are truly relevant.`,
			claim.Title, bullets(claim.Elements, "None listed."), defenseBullets(defenses), caseBlock, available),
	}
}

func customRequest(title, description string, elements []string, item legal.MatchedItem, defenses []legal.Defense, caseBlock string) oracle.Request {
	return oracle.Request{
		SchemaName:  "generate_custom_instructions",
		Description: "Generate custom jury instructions for a claim without standard instructions",
		Schema:      customSchema,
		MaxTokens:   4000,
		Instructions: fmt.Sprintf(`Generate custom jury instructions for a claim that has no standard instruction.

CLAIM: %s

CLAIM ELEMENTS:
%s
CLAIM DESCRIPTION:
%s

TEXT OF THE CLAIM AS PLEADED:
%s
DEFENSES RAISED:
%s
%s
Generate a complete set of jury instructions for this claim, following the style and structure of standard civil jury instructions. Generate separate instructions covering:

1. Introduction to the claim: brief statement of what the claimant alleges
2. Essential elements: what the claimant must prove, as a numbered list
3. Any key definitions needed
4. Issues the jury must decide
5. Burden of proof: what happens if the claim is not proven
6. Defense instructions: one for each defense raised
7. Burden if the claim is proven: what the jury should do next

Use neutral, clear language and fill in actual party names. Each instruction must be a separate item in the array.`,
			title, bullets(elements, "Derive the elements from the claim as pleaded."), orDefault(description, "No description available"),
			bullets(item.RawTexts, "None."), defenseBullets(defenses), caseBlock),
	}
}

func notesBlock(notes []string) string {
	if len(notes) == 0 {
		return ""
	}
	return "NOTES ON USE:\n" + bullets(notes, "")
}

func guidanceBlock(g string) string {
	if strings.TrimSpace(g) == "" {
		return ""
	}
	return "CASE-SPECIFIC GUIDANCE:\n" + g + "\n"
}

func bullets(items []string, empty string) string {
	if len(items) == 0 {
		return empty + "\n"
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s\n", it)
	}
	return b.String()
}

func defenseBullets(defenses []legal.Defense) string {
	if len(defenses) == 0 {
		return "None.\n"
	}
	var b strings.Builder
	for _, d := range defenses {
		fmt.Fprintf(&b, "- %s: %s\n", d.Name, d.RawText)
	}
	return b.String()
}

func listOrUnknown(names []string) string {
	if len(names) == 0 {
		return "(not provided)"
	}
	return strings.Join(names, "; ")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
