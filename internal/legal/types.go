// Package legal holds the data model shared by the extraction, grouping,
// matching and assembly stages, plus the tolerant decoding used for every
// structured oracle response.
package legal

import (
	"fmt"
	"strings"
)

// RawEntity is one un-deduplicated claim, counterclaim or defense as it was
// extracted from a single window.
type RawEntity struct {
	RawText string `json:"raw_text" jsonschema_description:"Exact heading or text as written in the document"`
	Name    string `json:"name" jsonschema_description:"Normalized name of the claim or defense"`
	Window  int    `json:"-"`
}

// CanonicalEntity is a deduplicated group of raw texts naming one legal concept.
type CanonicalEntity struct {
	Name     string   `json:"name"`
	RawTexts []string `json:"raw_texts"`
}

// Wrap turns a single raw entity into its own canonical group.
func Wrap(e RawEntity) CanonicalEntity {
	e = e.Normalized()
	return CanonicalEntity{Name: e.Name, RawTexts: []string{e.RawText}}
}

// Normalized fills a missing name from the raw text and vice versa.
func (e RawEntity) Normalized() RawEntity {
	e.Name = strings.TrimSpace(e.Name)
	e.RawText = strings.TrimSpace(e.RawText)
	if e.Name == "" {
		e.Name = e.RawText
	}
	if e.RawText == "" {
		e.RawText = e.Name
	}
	return e
}

type Defense struct {
	Name    string `json:"name"`
	RawText string `json:"raw_text"`
}

// Damages holds requested relief in the five fixed categories.
type Damages struct {
	Compensatory TextList `json:"compensatory" jsonschema_description:"Compensatory or actual damages such as dollar amounts and lost profits"`
	Punitive     TextList `json:"punitive" jsonschema_description:"Punitive or exemplary damages"`
	Statutory    TextList `json:"statutory" jsonschema_description:"Statutory damages such as treble damages"`
	Equitable    TextList `json:"equitable" jsonschema_description:"Equitable relief such as injunctions or specific performance"`
	Other        TextList `json:"other" jsonschema_description:"Other relief such as attorney's fees and costs and interest"`
}

// DamageCategories lists the category keys in their fixed order.
var DamageCategories = []string{"compensatory", "punitive", "statutory", "equitable", "other"}

func (d *Damages) lists() []*TextList {
	return []*TextList{&d.Compensatory, &d.Punitive, &d.Statutory, &d.Equitable, &d.Other}
}

// Merge appends every category of o onto d.
func (d *Damages) Merge(o Damages) {
	dst := d.lists()
	for i, src := range o.lists() {
		*dst[i] = append(*dst[i], (*src)...)
	}
}

// Dedup drops exact textual repeats within each category, keeping the first
// occurrence. Near-duplicates with different wording are kept.
func (d Damages) Dedup() Damages {
	var out Damages
	dst := out.lists()
	for i, src := range d.lists() {
		seen := make(map[string]struct{}, len(*src))
		for _, s := range *src {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			*dst[i] = append(*dst[i], s)
		}
	}
	return out
}

// Count returns the number of entries across all categories.
func (d Damages) Count() int {
	n := 0
	for _, l := range d.lists() {
		n += len(*l)
	}
	return n
}

// MatchedItem is a canonical entity resolved against the reference catalog.
// A nil ClaimID routes the item to custom instruction generation.
type MatchedItem struct {
	ClaimID  *int      `json:"claim_id"`
	Name     string    `json:"name"`
	RawTexts []string  `json:"raw_texts"`
	Damages  Damages   `json:"damages"`
	Defenses []Defense `json:"defenses"`
}

func (m MatchedItem) Matched() bool { return m.ClaimID != nil }

// Context describes the item for enrichment prompts.
func (m MatchedItem) Context() string {
	if len(m.RawTexts) == 0 {
		return m.Name
	}
	return m.Name + " (" + strings.Join(m.RawTexts, "; ") + ")"
}

// Instruction is one final output unit. Number is a catalog template number or
// a synthetic CUSTOM identifier.
type Instruction struct {
	Number         string `json:"number"`
	Title          string `json:"title"`
	CustomizedText string `json:"customized_text"`
	Phase          string `json:"phase,omitempty"`
	Claim          string `json:"claim,omitempty"`
}

type Witness struct {
	FirstName string `json:"first_name" jsonschema_description:"First name of the witness"`
	LastName  string `json:"last_name" jsonschema_description:"Last name of the witness"`
}

func (w Witness) FullName() string {
	return strings.TrimSpace(w.FirstName + " " + w.LastName)
}

// ValidationError reports caller input that cannot be processed at all.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid input: %s is required", e.Field)
	}
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}
