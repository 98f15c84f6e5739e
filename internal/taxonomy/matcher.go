// Package taxonomy resolves canonical entities against the reference claim
// catalog.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/joelkehle/jury-instructions/internal/catalog"
	"github.com/joelkehle/jury-instructions/internal/legal"
	"github.com/joelkehle/jury-instructions/internal/oracle"
)

type match struct {
	ClaimIndex legal.FlexInt `json:"claim_index" jsonschema_description:"Index of the extracted claim (1-based)"`
	ClaimID    legal.FlexInt `json:"claim_id" jsonschema_description:"Database claim ID, or null if invalid or no confident match"`
	Reasoning  string        `json:"reasoning,omitempty" jsonschema_description:"Brief explanation of the match or why it is invalid"`
}

type matchReply struct {
	Matches []match `json:"matches"`
}

var matchSchema = oracle.SchemaFor(&matchReply{})

type Matcher struct {
	exec   *oracle.Executor
	logger *zap.Logger
}

func New(exec *oracle.Executor) *Matcher {
	return &Matcher{exec: exec, logger: exec.Logger().Named("taxonomy")}
}

// Match returns exactly one item per entity, in input order. An entity with
// no confident match, a match naming an unknown claim, or any oracle failure
// resolves to a nil ClaimID. Only context cancellation is returned as an
// error.
func (m *Matcher) Match(ctx context.Context, entities []legal.CanonicalEntity, snap *catalog.Snapshot) ([]legal.MatchedItem, error) {
	items := make([]legal.MatchedItem, len(entities))
	for i, e := range entities {
		items[i] = legal.MatchedItem{Name: e.Name, RawTexts: e.RawTexts}
	}
	if len(entities) == 0 {
		return items, nil
	}
	if n, _ := snap.Len(); n == 0 {
		m.logger.Warn("reference catalog has no claims, nothing can match")
		return items, nil
	}

	out, _, err := oracle.Call[matchReply](ctx, m.exec, matchRequest(entities, snap), nil)
	if err != nil {
		if !errors.Is(err, oracle.ErrNoResult) {
			return nil, err
		}
		m.logger.Warn("claim matching failed, routing all entities to custom", zap.Error(err))
		return items, nil
	}

	assigned := make([]bool, len(items))
	for _, mt := range out.Matches {
		if !mt.ClaimIndex.Valid {
			continue
		}
		i := mt.ClaimIndex.Value - 1
		if i < 0 || i >= len(items) || assigned[i] {
			continue
		}
		assigned[i] = true
		if !mt.ClaimID.Valid {
			continue
		}
		if _, ok := snap.Claim(mt.ClaimID.Value); !ok {
			m.logger.Warn("match names unknown claim id",
				zap.Int("claim_index", mt.ClaimIndex.Value), zap.Int("claim_id", mt.ClaimID.Value))
			continue
		}
		items[i].ClaimID = mt.ClaimID.Ptr()
	}
	return items, nil
}

func matchRequest(entities []legal.CanonicalEntity, snap *catalog.Snapshot) oracle.Request {
	claims := snap.Claims()
	var db strings.Builder
	for _, c := range claims {
		fmt.Fprintf(&db, "ID %d: %s", c.ID, c.Title)
		if c.Description != "" {
			fmt.Fprintf(&db, " - %s...", truncate(c.Description, 100))
		}
		db.WriteString("\n")
	}
	var extracted strings.Builder
	for i, e := range entities {
		fmt.Fprintf(&extracted, "Claim %d: %s\n  Raw texts: %s\n", i+1, e.Name, strings.Join(e.RawTexts, ", "))
	}
	return oracle.Request{
		SchemaName:  "match_claims",
		Description: "Match extracted claims to reference claim IDs",
		Schema:      matchSchema,
		MaxTokens:   4000,
		Instructions: fmt.Sprintf(`You are matching claims extracted from a legal filing to a database of valid legal claims.

DATABASE CLAIMS (%d total):
%s
EXTRACTED CLAIMS TO MATCH:
%s
Your task:
1. For each extracted claim, find the best matching database claim ID
2. If a claim is invalid, not a real cause of action, or has no good match, set claim_id to null
3. Be precise: "Breach of Contract" should match the Breach of Contract ID, not something similar

Guidelines:
- Match based on legal substance, not just text similarity
- "Breach of Contract", "Contract Breach", "Breach of K" are the same claim
- Invalid examples: vague claims like "Bad Behavior", "Being Mean"
- If truly uncertain between 2+ matches, choose null rather than guess
- Consider the raw texts as additional context for matching

Return matches for ALL %d extracted claims, using claim_index to refer to the numbers above.`, len(claims), db.String(), extracted.String(), len(entities)),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
