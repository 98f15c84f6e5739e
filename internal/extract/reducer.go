package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/joelkehle/jury-instructions/internal/legal"
	"github.com/joelkehle/jury-instructions/internal/oracle"
	"github.com/joelkehle/jury-instructions/internal/window"
)

// Step is the outcome of folding one window.
type Step struct {
	Context  string
	Entities []legal.RawEntity
	Damages  legal.Damages
	Failed   bool
}

// Pass is the outcome of one (document, goal) extraction.
type Pass struct {
	Goal          Goal
	Context       string
	Entities      []legal.RawEntity
	Damages       legal.Damages
	Windows       int
	FailedWindows int
}

// Section is one document read during a case facts pass.
type Section struct {
	Source string
	Chunks []string
}

type Reducer struct {
	exec   *oracle.Executor
	logger *zap.Logger
}

func NewReducer(exec *oracle.Executor) *Reducer {
	return &Reducer{exec: exec, logger: exec.Logger().Named("extract")}
}

// Reduce folds one window into the running context. When the oracle cannot
// produce a usable result the prior context is kept and nothing is
// extracted; only context cancellation is returned as an error.
func (r *Reducer) Reduce(ctx context.Context, prev, windowText string, goal Goal) (Step, error) {
	step, err := r.reduce(ctx, prev, windowText, goal)
	if err == nil {
		return step, nil
	}
	if !errors.Is(err, oracle.ErrNoResult) {
		return Step{Context: prev}, err
	}
	r.logger.Warn("window extraction failed, keeping prior context",
		zap.String("goal", string(goal.Kind)), zap.Error(err))
	return Step{Context: prev, Failed: true}, nil
}

func (r *Reducer) reduce(ctx context.Context, prev, text string, goal Goal) (Step, error) {
	switch goal.Kind {
	case Claims, Counterclaims:
		out, _, err := oracle.Call(ctx, r.exec, claimsRequest(goal, prev, text), func(v *entityReply) error {
			return requireContext(v.UpdatedContext)
		})
		if err != nil {
			return Step{}, err
		}
		return Step{Context: out.UpdatedContext, Entities: out.Claims}, nil
	case Defenses:
		out, _, err := oracle.Call(ctx, r.exec, defensesRequest(goal, prev, text), func(v *defenseReply) error {
			return requireContext(v.UpdatedContext)
		})
		if err != nil {
			return Step{}, err
		}
		return Step{Context: out.UpdatedContext, Entities: out.Defenses}, nil
	case Damages:
		out, _, err := oracle.Call(ctx, r.exec, damagesRequest(goal, prev, text), func(v *damagesReply) error {
			return requireContext(v.UpdatedContext)
		})
		if err != nil {
			return Step{}, err
		}
		return Step{Context: out.UpdatedContext, Damages: out.Damages}, nil
	case CaseFacts:
		out, _, err := oracle.Call(ctx, r.exec, factsRequest(goal, prev, text), func(v *factsReply) error {
			if strings.TrimSpace(v.UpdatedFacts) == "" {
				return errors.New("updated_facts is required")
			}
			return nil
		})
		if err != nil {
			return Step{}, err
		}
		return Step{Context: out.UpdatedFacts}, nil
	}
	return Step{}, goal.Validate()
}

func requireContext(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("updated_context is required")
	}
	return nil
}

// ExtractOver runs one pass over chunks, threading the context through each
// window in order. Damages are merged across windows and then deduplicated
// by exact text.
func (r *Reducer) ExtractOver(ctx context.Context, chunks []string, size int, goal Goal) (Pass, error) {
	if err := goal.Validate(); err != nil {
		return Pass{Goal: goal}, err
	}
	return r.extractFrom(ctx, chunks, size, goal, goal.Seed())
}

func (r *Reducer) extractFrom(ctx context.Context, chunks []string, size int, goal Goal, seed string) (Pass, error) {
	if err := window.Validate(size); err != nil {
		return Pass{Goal: goal, Context: seed}, &legal.ValidationError{Field: "window_size", Reason: err.Error()}
	}
	pass := Pass{Goal: goal, Context: seed}
	i := 0
	for w := range window.Windows(chunks, size) {
		step, err := r.Reduce(ctx, pass.Context, window.Join(w), goal)
		if err != nil {
			return pass, fmt.Errorf("%s window %d: %w", goal.Kind, i, err)
		}
		pass.Windows++
		if step.Failed {
			pass.FailedWindows++
		}
		pass.Context = step.Context
		for _, e := range step.Entities {
			e.Window = i
			pass.Entities = append(pass.Entities, e)
		}
		pass.Damages.Merge(step.Damages)
		i++
	}
	pass.Damages = pass.Damages.Dedup()
	r.logger.Debug("extraction pass complete",
		zap.String("goal", string(goal.Kind)),
		zap.Int("windows", pass.Windows),
		zap.Int("failed_windows", pass.FailedWindows),
		zap.Int("entities", len(pass.Entities)))
	return pass, nil
}

// CaseFacts builds the case facts summary by reading each section in order
// with a single running context. The final context is the summary.
func (r *Reducer) CaseFacts(ctx context.Context, sections []Section, size int) (Pass, error) {
	total := Pass{Goal: Goal{Kind: CaseFacts}}
	for _, s := range sections {
		p, err := r.extractFrom(ctx, s.Chunks, size, Goal{Kind: CaseFacts, Source: s.Source}, total.Context)
		if err != nil {
			return total, err
		}
		total.Context = p.Context
		total.Windows += p.Windows
		total.FailedWindows += p.FailedWindows
	}
	return total, nil
}
