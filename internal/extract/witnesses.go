package extract

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/joelkehle/jury-instructions/internal/legal"
	"github.com/joelkehle/jury-instructions/internal/oracle"
)

// Witnesses reads the whole witness list in one request. Names repeated with
// different capitalization are kept once, in first-seen order. Oracle
// failures yield no witnesses.
func (r *Reducer) Witnesses(ctx context.Context, chunks []string) ([]legal.Witness, error) {
	text := strings.TrimSpace(strings.Join(chunks, "\n"))
	if text == "" {
		return nil, nil
	}
	out, _, err := oracle.Call[witnessReply](ctx, r.exec, witnessRequest(text), nil)
	if err != nil {
		if errors.Is(err, oracle.ErrNoResult) {
			r.logger.Warn("witness extraction failed", zap.Error(err))
			return nil, nil
		}
		return nil, err
	}
	type key struct{ first, last string }
	seen := map[key]struct{}{}
	var witnesses []legal.Witness
	for _, w := range out.Witnesses {
		w.FirstName = strings.TrimSpace(w.FirstName)
		w.LastName = strings.TrimSpace(w.LastName)
		if w.FirstName == "" && w.LastName == "" {
			continue
		}
		k := key{strings.ToLower(w.FirstName), strings.ToLower(w.LastName)}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		witnesses = append(witnesses, w)
	}
	return witnesses, nil
}
