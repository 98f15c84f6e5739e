package extract

import (
	"fmt"
	"strings"

	"github.com/joelkehle/jury-instructions/internal/legal"
	"github.com/joelkehle/jury-instructions/internal/oracle"
)

type entityReply struct {
	UpdatedContext string           `json:"updated_context" jsonschema_description:"Brief summary of what has been analyzed so far"`
	Claims         legal.EntityList `json:"claims"`
}

type defenseReply struct {
	UpdatedContext string           `json:"updated_context" jsonschema_description:"Brief summary of the defenses seen so far"`
	Defenses       legal.EntityList `json:"defenses"`
}

type damagesReply struct {
	UpdatedContext string        `json:"updated_context" jsonschema_description:"Brief summary of the damages seen so far"`
	Damages        legal.Damages `json:"damages"`
}

type factsReply struct {
	UpdatedFacts string `json:"updated_facts" jsonschema_description:"The updated case facts summary in two or three paragraphs"`
}

type witnessReply struct {
	Witnesses []legal.Witness `json:"witnesses"`
}

var (
	entitySchema  = oracle.SchemaFor(&entityReply{})
	defenseSchema = oracle.SchemaFor(&defenseReply{})
	damagesSchema = oracle.SchemaFor(&damagesReply{})
	factsSchema   = oracle.SchemaFor(&factsReply{})
	witnessSchema = oracle.SchemaFor(&witnessReply{})
)

const claimSearch = `Extract any legal claims/causes of action from this window. Look for:
- COUNT headings (e.g., "COUNT I - BREACH OF CONTRACT")
- Numbered causes of action
- Claims stated in the opening paragraphs of the complaint
- Sections labeled "COMPLAINT FOR DAMAGES" or similar`

const counterclaimSearch = `Extract any counterclaims/counter causes of action from this window. Look for:
- COUNTERCLAIM headings (e.g., "COUNTERCLAIM I - BREACH OF CONTRACT")
- "COUNT" sections within a COUNTERCLAIM section
- Numbered counterclaims
- Sections labeled "COUNTERCLAIM" or "DEFENDANT'S COUNTERCLAIM"
- Claims asserted by the defendant against the plaintiff`

func claimsRequest(g Goal, context, window string) oracle.Request {
	search := claimSearch
	if g.Kind == Counterclaims {
		search = counterclaimSearch
	}
	return oracle.Request{
		SchemaName:  "extract_claims_and_context",
		Description: "Extract legal claims or causes of action and update the analysis context",
		Schema:      entitySchema,
		MaxTokens:   1000,
		Instructions: fmt.Sprintf(`You are analyzing a legal %s document in sliding windows.

Previous context: %s

Current window:
%s

%s

For each claim found, provide:
- raw_text: exact heading/text as written
- name: normalized claim name

Also update the context paragraph to summarize what you've seen so far.`, g.source(), context, window, search),
	}
}

func defensesRequest(g Goal, context, window string) oracle.Request {
	return oracle.Request{
		SchemaName:  "extract_defenses_and_context",
		Description: "Extract affirmative defenses and update the analysis context",
		Schema:      defenseSchema,
		MaxTokens:   1000,
		Instructions: fmt.Sprintf(`You are analyzing a defendant's answer document to extract affirmative defenses.

Claim being defended: %s

Previous context: %s

Current window:
%s

Extract any affirmative defenses from this window that relate to the claim. Look for:
- Numbered affirmative defenses (e.g., "FIRST AFFIRMATIVE DEFENSE", "1. Statute of Limitations")
- Sections labeled "AFFIRMATIVE DEFENSES"
- Defense arguments like failure to state a claim, statute of limitations, laches, waiver, estoppel, contributory negligence or assumption of risk
- General denials or admissions (e.g., "Defendant denies the allegations in paragraph X")

For each defense found, provide:
- raw_text: exact heading/text as written
- name: normalized defense name

Also update the context paragraph to summarize what defenses you've seen so far.`, g.Subject, context, window),
	}
}

func damagesRequest(g Goal, context, window string) oracle.Request {
	return oracle.Request{
		SchemaName:  "extract_damages_and_context",
		Description: "Extract requested damages and update the analysis context",
		Schema:      damagesSchema,
		MaxTokens:   1500,
		Instructions: fmt.Sprintf(`You are analyzing a legal %s to extract damages requested by the %s.

Claim being analyzed: %s

Previous context: %s

Current window:
%s

Extract all damages and relief requested that relate to this specific claim. Look for:
- "WHEREFORE" clauses or prayer for relief sections
- Specific dollar amounts (e.g., "$50,000", "in excess of $15,000")
- Types of damages mentioned in the counts
- Relief requested at the end of each count

Categorize damages as:
1. Compensatory: actual damages, economic losses, lost profits, dollar amounts for actual harm
2. Punitive: punitive or exemplary damages
3. Statutory: treble damages, statutory damages under specific statutes
4. Equitable: injunctive relief, specific performance, declaratory judgment, rescission
5. Other: attorney's fees, costs, interest, "such other relief as the court deems just"

For each damage item, provide a clear description (e.g., "$50,000 in compensatory damages", "injunctive relief").

Also update the context paragraph to summarize what damages you've seen so far.`, g.source(), g.partyName(), g.Subject, context, window),
	}
}

func factsRequest(g Goal, current, window string) oracle.Request {
	instruction := `Start building a case facts summary. Write 2-3 paragraphs covering:
- Who the parties are and their relationship
- What contract/agreement exists (if any)
- What happened (key events, timeline)
- What the plaintiff alleges
- What the defendant's position is
Write in past tense, neutral tone.`
	shown := current
	if strings.TrimSpace(current) == "" {
		shown = "[No facts yet]"
	} else {
		instruction = `Update the existing case facts by:
- ADDING new relevant information you see
- EDITING if new content clarifies or contradicts existing facts
- DELETING irrelevant or incorrect information
- Keep it to 2-3 paragraphs total
Write in past tense, neutral tone.`
	}
	return oracle.Request{
		SchemaName:  "update_facts",
		Description: "Update the case facts summary based on new information",
		Schema:      factsSchema,
		MaxTokens:   1500,
		Instructions: fmt.Sprintf(`You are building a case facts summary for jury instructions.

CURRENT CASE FACTS:
%s

---
NEW CONTENT from %s:
%s
---

%s`, shown, g.source(), window, instruction),
	}
}

func witnessRequest(text string) oracle.Request {
	return oracle.Request{
		SchemaName:  "extract_witness_names",
		Description: "Extract witness names from a witness list",
		Schema:      witnessSchema,
		MaxTokens:   2000,
		Instructions: fmt.Sprintf(`You are extracting witness names from a witness list document.

Document text:
%s

Extract all individual witness names. Look for:
- Numbered lists of witnesses (e.g., "1. Richard Gold")
- Names followed by addresses
- Names in lists or tables

DO NOT include:
- Generic or placeholder entries like "Any and all individuals identified in discovery"
- "Defendant reserves the right..." or "Plaintiff reserves the right..." statements
- Attorney names unless clearly listed as witnesses
- Names that appear only in certificate of service sections, headers or footers

For each witness, extract first_name and last_name.`, text),
	}
}
