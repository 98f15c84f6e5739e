package assembly

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

// opening renders the introduction, oath, participants and general duties
// instructions. Missing templates and failed renders are skipped.
func (e *Engine) opening(ctx context.Context, in Input) []legal.Instruction {
	var out []legal.Instruction
	block := e.caseBlock(in.CaseFacts)
	intro, hasIntro := e.snap.Template(e.slots.Introduction)
	oath, hasOath := e.snap.Template(e.slots.Oath)

	switch {
	case hasIntro && hasOath && e.cfg.IncludeOath:
		out = append(out, e.splitIntroduction(ctx, intro, oath, block)...)
	case hasIntro:
		if inst, ok := e.render(ctx, intro, PhaseOpening, "", block); ok {
			out = append(out, inst)
		}
	case hasOath && e.cfg.IncludeOath:
		if inst, ok := e.render(ctx, oath, PhaseOpening, "", block); ok {
			out = append(out, inst)
		}
	}

	if tpl, ok := e.snap.Template(e.slots.Participants); ok {
		if inst, ok := e.render(ctx, tpl, PhaseOpening, e.participantsGuidance(), block); ok {
			out = append(out, inst)
		}
	}
	if tpl, ok := e.snap.Template(e.slots.GeneralDuties); ok {
		if inst, ok := e.render(ctx, tpl, PhaseOpening, "", block); ok {
			out = append(out, inst)
		}
	}
	return out
}

// splitIntroduction emits the introduction in two parts with the oath
// between them. If the split fails only the oath is kept.
func (e *Engine) splitIntroduction(ctx context.Context, intro, oath catalog.InstructionTemplate, block string) []legal.Instruction {
	reply, _, err := oracle.Call(ctx, e.exec, splitRequest(intro, oath, block), func(v *splitReply) error {
		if strings.TrimSpace(v.PreOathText) == "" || strings.TrimSpace(v.PostOathText) == "" {
			return errors.New("pre_oath_text and post_oath_text are both required")
		}
		return nil
	})
	oathInst, oathOK := e.render(ctx, oath, PhaseOpening, "", block)
	if err != nil {
		e.logger.Warn("introduction split failed, omitting introduction", zap.Error(err))
		if oathOK {
			return []legal.Instruction{oathInst}
		}
		return nil
	}
	out := []legal.Instruction{{
		Number:         intro.Number,
		Title:          intro.Title + " (Before Oath)",
		CustomizedText: strings.TrimSpace(reply.PreOathText),
		Phase:          PhaseOpening,
	}}
	if oathOK {
		out = append(out, oathInst)
	}
	return append(out, legal.Instruction{
		Number:         intro.Number,
		Title:          intro.Title + " (After Oath)",
		CustomizedText: strings.TrimSpace(reply.PostOathText),
		Phase:          PhaseOpening,
	})
}

// closing appends believability, interpreter, multiple claims and final
// pre-argument instructions. Each one is independent of the others.
func (e *Engine) closing(ctx context.Context, in Input) []legal.Instruction {
	var out []legal.Instruction
	block := e.caseBlock(in.CaseFacts)
	add := func(number, guidance string) {
		tpl, ok := e.snap.Template(number)
		if !ok {
			return
		}
		if inst, ok := e.render(ctx, tpl, PhaseClosing, guidance, block); ok {
			out = append(out, inst)
		}
	}

	add(e.slots.Believability, e.believabilityGuidance(in.Witnesses))
	if e.cfg.InterpreterNeeded {
		add(e.slots.Interpreter, "Testimony in this trial was given through an interpreter.")
	}
	if len(in.Claims)+len(in.Counterclaims) > 1 {
		add(e.slots.MultipleClaims, e.multipleClaimsGuidance(in))
	}
	if e.cfg.FinalInstructionsTiming == TimingBeforeClosingArguments {
		add(e.slots.FinalPreArgument, "These instructions are given before closing arguments.")
	}
	return out
}

func (e *Engine) render(ctx context.Context, tpl catalog.InstructionTemplate, phase, guidance, block string) (legal.Instruction, bool) {
	reply, _, err := oracle.Call(ctx, e.exec, renderRequest(tpl, guidance, block), func(v *renderReply) error {
		if strings.TrimSpace(v.CustomizedText) == "" {
			return errors.New("customized_text is required")
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("optional instruction omitted",
			zap.String("number", tpl.Number), zap.String("phase", phase), zap.Error(err))
		return legal.Instruction{}, false
	}
	return legal.Instruction{
		Number:         tpl.Number,
		Title:          tpl.Title,
		CustomizedText: strings.TrimSpace(reply.CustomizedText),
		Phase:          phase,
	}, true
}

func (e *Engine) participantsGuidance() string {
	var b strings.Builder
	b.WriteString("Introduce the court participants using these names and pronouns:\n")
	for _, r := range []struct {
		label string
		role  Role
	}{
		{"Judge", e.cfg.Roles.Judge},
		{"Clerk", e.cfg.Roles.Clerk},
		{"Bailiff", e.cfg.Roles.Bailiff},
		{"Court reporter", e.cfg.Roles.CourtReporter},
	} {
		name := r.role.Name
		if strings.TrimSpace(name) == "" {
			name = "(not provided)"
		}
		fmt.Fprintf(&b, "- %s: %s (%s)\n", r.label, name, PronounsFor(r.role.Gender))
	}
	return b.String()
}

func (e *Engine) believabilityGuidance(witnesses []legal.Witness) string {
	var b strings.Builder
	if e.cfg.ExpertWitnesses {
		b.WriteString("Expert witnesses testified. Include the expert witness subsection.\n")
	} else {
		b.WriteString("No expert witnesses testified. Omit any expert witness material.\n")
	}
	if len(witnesses) > 0 {
		b.WriteString("Witnesses expected to testify:\n")
		for _, w := range witnesses {
			fmt.Fprintf(&b, "- %s\n", w.FullName())
		}
	}
	return b.String()
}

// multipleClaimsGuidance lists every claim and counterclaim title as context
// for the instruction.
func (e *Engine) multipleClaimsGuidance(in Input) string {
	var b strings.Builder
	b.WriteString("The jury will decide these claims:\n")
	write := func(kind string, items []legal.MatchedItem) {
		for _, it := range items {
			title := it.Name
			if it.Matched() {
				if ref, ok := e.snap.Claim(*it.ClaimID); ok {
					title = ref.Title
				}
			}
			fmt.Fprintf(&b, "- %s: %s\n", kind, title)
		}
	}
	write("Claim", in.Claims)
	write("Counterclaim", in.Counterclaims)
	return b.String()
}
