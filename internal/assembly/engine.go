// Package assembly builds the ordered list of jury instructions from matched
// claims, the template catalog and the case configuration.
package assembly

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/joelkehle/jury-instructions/internal/catalog"
	"github.com/joelkehle/jury-instructions/internal/legal"
	"github.com/joelkehle/jury-instructions/internal/oracle"
)

const (
	PhaseOpening       = "opening"
	PhaseClaims        = "claims"
	PhaseCounterclaims = "counterclaims"
	PhaseCustom        = "custom"
	PhaseClosing       = "closing"
)

const customCategory = "CUSTOM"

// Slots names the catalog templates used by the fixed opening and closing
// instructions.
type Slots struct {
	Introduction     string
	Oath             string
	Participants     string
	GeneralDuties    string
	Believability    string
	Interpreter      string
	MultipleClaims   string
	FinalPreArgument string
}

func DefaultSlots() Slots {
	return Slots{
		Introduction:     "201.1",
		Oath:             "201.2",
		Participants:     "202.1",
		GeneralDuties:    "202.2",
		Believability:    "601.2",
		Interpreter:      "601.3",
		MultipleClaims:   "601.4",
		FinalPreArgument: "700",
	}
}

// Input is everything assembly reads besides the catalog and config.
type Input struct {
	CaseFacts     string
	Witnesses     []legal.Witness
	Claims        []legal.MatchedItem
	Counterclaims []legal.MatchedItem
}

// DispositionError means a claim or counterclaim could not be given either a
// standard or a custom set of instructions.
type DispositionError struct {
	Party string
	Index int
	Name  string
	Err   error
}

func (e *DispositionError) Error() string {
	return fmt.Sprintf("%s %d (%s) has no disposition: %v", e.Party, e.Index+1, e.Name, e.Err)
}

func (e *DispositionError) Unwrap() error { return e.Err }

// ErrUnknownClaim is wrapped when a matched item names a claim missing from
// the snapshot.
var ErrUnknownClaim = errors.New("claim id not in reference catalog")

type Engine struct {
	exec   *oracle.Executor
	snap   *catalog.Snapshot
	cfg    Config
	slots  Slots
	logger *zap.Logger
}

type Option func(*Engine)

func WithSlots(s Slots) Option {
	return func(e *Engine) { e.slots = s }
}

func New(exec *oracle.Executor, snap *catalog.Snapshot, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		exec:   exec,
		snap:   snap,
		cfg:    cfg,
		slots:  DefaultSlots(),
		logger: exec.Logger().Named("assembly"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// pending is an item waiting for custom generation.
type pending struct {
	party    string
	index    int
	item     legal.MatchedItem
	ref      *catalog.ReferenceClaim
	defenses []legal.Defense
}

// Assemble runs the five phases in order and returns the instructions in the
// order they were appended. Failures on optional instructions drop that
// instruction; a claim that gets no disposition aborts the run.
func (e *Engine) Assemble(ctx context.Context, in Input) ([]legal.Instruction, error) {
	var out []legal.Instruction
	out = append(out, e.opening(ctx, in)...)

	var custom []pending
	for _, group := range []struct {
		party    string
		phase    string
		items    []legal.MatchedItem
		defenses bool
	}{
		{"claim", PhaseClaims, in.Claims, true},
		{"counterclaim", PhaseCounterclaims, in.Counterclaims, false},
	} {
		for i, item := range group.items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			p := pending{party: group.party, index: i, item: item}
			if group.defenses {
				p.defenses = item.Defenses
			}
			if !item.Matched() {
				custom = append(custom, p)
				continue
			}
			ref, ok := e.snap.Claim(*item.ClaimID)
			if !ok {
				return nil, &DispositionError{Party: group.party, Index: i, Name: item.Name,
					Err: fmt.Errorf("%w: %d", ErrUnknownClaim, *item.ClaimID)}
			}
			p.ref = &ref
			selected, ok, err := e.standard(ctx, in.CaseFacts, ref, p.defenses, group.phase)
			if err != nil {
				return nil, err
			}
			if !ok {
				custom = append(custom, p)
				continue
			}
			out = append(out, selected...)
		}
	}

	for _, p := range custom {
		generated, err := e.custom(ctx, in.CaseFacts, p)
		if err != nil {
			return nil, err
		}
		out = append(out, generated...)
	}

	out = append(out, e.closing(ctx, in)...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// standard runs the category path for one matched claim. ok is false when the
// claim has to be generated as custom instead.
func (e *Engine) standard(ctx context.Context, caseFacts string, ref catalog.ReferenceClaim, defenses []legal.Defense, phase string) ([]legal.Instruction, bool, error) {
	log := e.logger.With(zap.Int("claim_id", ref.ID), zap.String("phase", phase))
	category, err := e.classify(ctx, ref.Title, caseFacts)
	if err != nil {
		return nil, false, err
	}
	if category == customCategory {
		log.Info("claim routed to custom generation")
		return nil, false, nil
	}
	templates := e.snap.Templates(category)
	if len(templates) == 0 {
		log.Warn("category has no templates, routing to custom", zap.String("category", category))
		return nil, false, nil
	}

	reply, _, err := oracle.Call[selectReply](ctx, e.exec, selectRequest(ref, defenses, templates, e.caseBlock(caseFacts)), nil)
	if err != nil {
		if !errors.Is(err, oracle.ErrNoResult) {
			return nil, false, err
		}
		log.Warn("instruction selection failed, routing to custom", zap.String("category", category), zap.Error(err))
		return nil, false, nil
	}

	chosen := map[string]string{}
	for _, s := range reply.SelectedInstructions {
		num := strings.TrimSpace(s.Number)
		if !s.Include || num == "" {
			continue
		}
		if _, dup := chosen[num]; dup {
			continue
		}
		chosen[num] = strings.TrimSpace(s.CustomizedText)
	}
	var out []legal.Instruction
	for _, tpl := range templates {
		text, ok := chosen[tpl.Number]
		if !ok {
			continue
		}
		if text == "" {
			text = tpl.MainParagraph
		}
		out = append(out, legal.Instruction{
			Number:         tpl.Number,
			Title:          tpl.Title,
			CustomizedText: text,
			Phase:          phase,
			Claim:          ref.Title,
		})
	}
	log.Debug("standard instructions selected", zap.String("category", category), zap.Int("count", len(out)))
	return out, true, nil
}

// classify maps a claim title to a template category, or CUSTOM when there
// is no fit, the answer names an unknown category, or the oracle fails.
func (e *Engine) classify(ctx context.Context, title, caseFacts string) (string, error) {
	categories := e.snap.Categories()
	if len(categories) == 0 {
		return customCategory, nil
	}
	reply, _, err := oracle.Call(ctx, e.exec, categoryRequest(title, caseFacts, categories), func(v *categoryReply) error {
		if strings.TrimSpace(v.Category) == "" {
			return errors.New("category is required")
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, oracle.ErrNoResult) {
			return "", err
		}
		e.logger.Warn("category classification failed", zap.String("claim", title), zap.Error(err))
		return customCategory, nil
	}
	cat := strings.TrimSpace(reply.Category)
	if strings.EqualFold(cat, customCategory) {
		return customCategory, nil
	}
	if !e.snap.HasCategory(cat) {
		e.logger.Warn("classifier named unknown category", zap.String("claim", title), zap.String("category", cat))
		return customCategory, nil
	}
	return cat, nil
}

func (e *Engine) custom(ctx context.Context, caseFacts string, p pending) ([]legal.Instruction, error) {
	title, description, elements := p.item.Name, "", []string(nil)
	if p.ref != nil {
		title, description, elements = p.ref.Title, p.ref.Description, p.ref.Elements
	}
	reply, _, err := oracle.Call(ctx, e.exec,
		customRequest(title, description, elements, p.item, p.defenses, e.caseBlock(caseFacts)),
		func(v *customReply) error {
			for _, inst := range v.Instructions {
				if strings.TrimSpace(inst.CustomizedText) != "" {
					return nil
				}
			}
			return errors.New("instructions must contain at least one instruction with customized_text")
		})
	if err != nil {
		if !errors.Is(err, oracle.ErrNoResult) {
			return nil, err
		}
		return nil, &DispositionError{Party: p.party, Index: p.index, Name: title, Err: err}
	}
	var out []legal.Instruction
	for _, inst := range reply.Instructions {
		text := strings.TrimSpace(inst.CustomizedText)
		if text == "" {
			continue
		}
		seq := len(out) + 1
		name := strings.TrimSpace(inst.Title)
		if name == "" {
			name = fmt.Sprintf("%s (%d)", title, seq)
		}
		out = append(out, legal.Instruction{
			Number:         CustomNumber(title, seq),
			Title:          name,
			CustomizedText: text,
			Phase:          PhaseCustom,
			Claim:          title,
		})
	}
	return out, nil
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// CustomNumber builds the synthetic identifier for the seq-th generated
// instruction of a claim, e.g. CUSTOM-CONVERSION-01.
func CustomNumber(title string, seq int) string {
	slug := strings.Trim(nonAlnum.ReplaceAllString(strings.ToUpper(title), "-"), "-")
	if slug == "" {
		slug = "CLAIM"
	}
	return fmt.Sprintf("CUSTOM-%s-%02d", slug, seq)
}
