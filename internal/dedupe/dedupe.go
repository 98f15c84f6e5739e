// Package dedupe merges entities extracted from overlapping windows into
// canonical groups.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/joelkehle/jury-instructions/internal/legal"
	"github.com/joelkehle/jury-instructions/internal/oracle"
)

type Kind string

const (
	Claims        Kind = "claims"
	Counterclaims Kind = "counterclaims"
	Defenses      Kind = "defenses"
)

type groupReply struct {
	Groups legal.GroupList `json:"grouped_entries"`
}

var groupSchema = oracle.SchemaFor(&groupReply{})

type Engine struct {
	exec   *oracle.Executor
	logger *zap.Logger
}

func New(exec *oracle.Executor) *Engine {
	return &Engine{exec: exec, logger: exec.Logger().Named("dedupe")}
}

// Deduplicate groups raw entities naming the same legal concept. Zero or one
// entity is wrapped directly. Replies that leave an entity out, or hold groups
// absorbing no entity, are re-asked; whatever the oracle still leaves out
// becomes its own group. Only context cancellation is returned as an error.
func (e *Engine) Deduplicate(ctx context.Context, kind Kind, raw []legal.RawEntity) ([]legal.CanonicalEntity, error) {
	entities := make([]legal.RawEntity, 0, len(raw))
	for _, r := range raw {
		r = r.Normalized()
		if r.Name == "" {
			continue
		}
		entities = append(entities, r)
	}
	switch len(entities) {
	case 0:
		return nil, nil
	case 1:
		return []legal.CanonicalEntity{legal.Wrap(entities[0])}, nil
	}

	out, _, err := oracle.Call(ctx, e.exec, groupRequest(kind, entities), func(v *groupReply) error {
		return checkCover(v.Groups, entities)
	})
	if err != nil {
		if !errors.Is(err, oracle.ErrNoResult) {
			return nil, err
		}
		e.logger.Warn("grouping incomplete, uncovered entities kept as their own groups",
			zap.String("kind", string(kind)), zap.Int("entities", len(entities)), zap.Error(err))
	}
	return cover(out.Groups, entities), nil
}

func textKey(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// checkCover requires every group to absorb at least one input entity and
// every input entity to land in exactly one group.
func checkCover(groups []legal.CanonicalEntity, entities []legal.RawEntity) error {
	if len(groups) == 0 {
		return errors.New("grouped_entries must contain at least one group")
	}
	known := make(map[string]bool, len(entities))
	for _, r := range entities {
		known[textKey(r.RawText)] = true
	}
	owner := map[string]string{}
	for _, g := range groups {
		if len(g.RawTexts) == 0 {
			return fmt.Errorf("group %q has no raw_texts; list the raw text of every entry it absorbs", g.Name)
		}
		absorbed := 0
		for _, t := range g.RawTexts {
			k := textKey(t)
			if !known[k] {
				continue
			}
			if prev, ok := owner[k]; ok && prev != g.Name {
				return fmt.Errorf("raw text %q appears in both %q and %q", t, prev, g.Name)
			}
			owner[k] = g.Name
			absorbed++
		}
		if absorbed == 0 {
			return fmt.Errorf("group %q matches none of the listed entries", g.Name)
		}
	}
	var missing []string
	for _, r := range entities {
		if _, ok := owner[textKey(r.RawText)]; !ok {
			missing = append(missing, r.RawText)
			owner[textKey(r.RawText)] = ""
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("entries missing from every group: %s", strings.Join(missing, "; "))
	}
	return nil
}

// cover keeps the raw texts of each group that name an input entity not
// already claimed by an earlier group, drops groups left empty, and wraps
// every entity no group absorbed as its own group. The result always covers
// every input exactly once.
func cover(groups []legal.CanonicalEntity, entities []legal.RawEntity) []legal.CanonicalEntity {
	known := make(map[string]bool, len(entities))
	for _, r := range entities {
		known[textKey(r.RawText)] = true
	}
	seen := map[string]bool{}
	out := make([]legal.CanonicalEntity, 0, len(groups)+len(entities))
	for _, g := range groups {
		var texts []string
		for _, t := range g.RawTexts {
			k := textKey(t)
			if !known[k] || seen[k] {
				continue
			}
			seen[k] = true
			texts = append(texts, t)
		}
		if len(texts) == 0 {
			continue
		}
		out = append(out, legal.CanonicalEntity{Name: g.Name, RawTexts: texts})
	}
	for _, r := range entities {
		k := textKey(r.RawText)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, legal.Wrap(r))
	}
	return out
}

// DeduplicateDefenses groups defenses and keeps one representative raw text
// per group.
func (e *Engine) DeduplicateDefenses(ctx context.Context, raw []legal.RawEntity) ([]legal.Defense, error) {
	groups, err := e.Deduplicate(ctx, Defenses, raw)
	if err != nil {
		return nil, err
	}
	defenses := make([]legal.Defense, 0, len(groups))
	for _, g := range groups {
		d := legal.Defense{Name: g.Name, RawText: g.Name}
		if len(g.RawTexts) > 0 {
			d.RawText = g.RawTexts[0]
		}
		defenses = append(defenses, d)
	}
	return defenses, nil
}

func groupRequest(kind Kind, entities []legal.RawEntity) oracle.Request {
	noun, document, example, distinct := "claims", "legal complaint", `"Breach of Contract" and "BREACH OF CONTRACT"`, `"Breach of Contract" vs "Fraud"`
	switch kind {
	case Counterclaims:
		noun, document = "counterclaims", "answer and counterclaim"
	case Defenses:
		noun, document = "affirmative defenses", "answer"
		example, distinct = `"Statute of Limitations" and "STATUTE OF LIMITATIONS"`, `"Statute of Limitations" vs "Laches"`
	}
	var list strings.Builder
	for i, r := range entities {
		fmt.Fprintf(&list, "%d. Name: %s, Raw: %s\n", i+1, r.Name, r.RawText)
	}
	return oracle.Request{
		SchemaName:  "group_duplicate_" + string(kind),
		Description: "Group entries that represent the same " + strings.TrimSuffix(noun, "s"),
		Schema:      groupSchema,
		MaxTokens:   2000,
		Instructions: fmt.Sprintf(`You have extracted %s from a %s using a sliding window approach. This may have created duplicates where the same entry appears multiple times with slightly different text.

Your task: group entries that represent the SAME legal concept, even if the text differs slightly.

Entries to deduplicate:
%s
Guidelines:
- If multiple entries are clearly the same (e.g., %s), group them
- Keep all raw_text variants; they may have useful differences
- Every entry must appear in exactly one group; an entry with no duplicate is its own group
- Copy raw_texts exactly as listed above; never invent entries
- Use the clearest, most formal name as the canonical name
- Don't merge genuinely different concepts (e.g., %s)

Return grouped_entries with:
- name: canonical name
- raw_texts: array of all raw text variants (even if just one)`, noun, document, list.String(), example, distinct),
	}
}
