package assembly

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joelkehle/jury-instructions/internal/catalog"
	"github.com/joelkehle/jury-instructions/internal/legal"
	"github.com/joelkehle/jury-instructions/internal/oracle"
	"github.com/joelkehle/jury-instructions/internal/oracle/oracletest"
)

func testSnapshot(t *testing.T) *catalog.Snapshot {
	t.Helper()
	tpl := func(num, cat, title string) catalog.InstructionTemplate {
		return catalog.InstructionTemplate{Number: num, Title: title, CategoryNumber: cat, CategoryTitle: "Category " + cat, MainParagraph: "text of " + num}
	}
	snap, err := catalog.NewSnapshot(
		[]catalog.ReferenceClaim{
			{ID: 7, Title: "Breach of Contract", Elements: []string{"contract", "breach", "damages"}},
			{ID: 12, Title: "Negligence"},
			{ID: 31, Title: "Conversion", Description: "Wrongful exercise of control over property."},
		},
		[]catalog.InstructionTemplate{
			tpl("201.1", "201", "Introduction"),
			tpl("201.2", "201", "Oath"),
			tpl("202.1", "202", "Participants"),
			tpl("202.2", "202", "General Duties"),
			tpl("416.1", "416", "Contract Introduction"),
			tpl("416.4", "416", "Essential Elements"),
			tpl("416.10", "416", "Waiver"),
			tpl("416.5", "416", "Oral Contracts"),
			tpl("401.3", "401", "Negligence Issues"),
			tpl("601.2", "601", "Believability"),
			tpl("601.3", "601", "Interpreter"),
			tpl("601.4", "601", "Multiple Claims"),
			tpl("700", "700", "Closing Arguments"),
		},
	)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

var (
	instructionNumber = regexp.MustCompile(`INSTRUCTION (\S+):`)
	claimLine         = regexp.MustCompile(`CLAIM: ([^\n]+)`)
	templateNumber    = regexp.MustCompile(`"number": "([^"]+)"`)
)

// court answers every assembly request deterministically.
type court struct {
	categories map[string]string
	// exclude lists template numbers the selector leaves out.
	exclude map[string]bool
	// reverse returns selections in reverse template order.
	reverse bool
}

func (c court) install(o *oracletest.Scripted) *oracletest.Scripted {
	return o.
		Handle("render_instruction", func(req oracle.Request) (string, error) {
			m := instructionNumber.FindStringSubmatch(req.Instructions)
			return fmt.Sprintf(`{"customized_text":"rendered %s"}`, m[1]), nil
		}).
		Handle("split_introduction", func(oracle.Request) (string, error) {
			return `{"pre_oath_text":"before oath","post_oath_text":"after oath"}`, nil
		}).
		Handle("match_category", func(req oracle.Request) (string, error) {
			title := claimLine.FindStringSubmatch(req.Instructions)[1]
			cat, ok := c.categories[title]
			if !ok {
				cat = "CUSTOM"
			}
			return fmt.Sprintf(`{"category":%q,"reasoning":"test"}`, cat), nil
		}).
		Handle("select_instructions", func(req oracle.Request) (string, error) {
			title := claimLine.FindStringSubmatch(req.Instructions)[1]
			var sel []selection
			for _, m := range templateNumber.FindAllStringSubmatch(req.Instructions, -1) {
				num := m[1]
				sel = append(sel, selection{Number: num, Include: !c.exclude[num], CustomizedText: fmt.Sprintf("%s for %s", num, title)})
			}
			if c.reverse {
				for i, j := 0, len(sel)-1; i < j; i, j = i+1, j-1 {
					sel[i], sel[j] = sel[j], sel[i]
				}
			}
			b, _ := json.Marshal(selectReply{SelectedInstructions: sel})
			return string(b), nil
		}).
		Handle("generate_custom_instructions", func(req oracle.Request) (string, error) {
			title := claimLine.FindStringSubmatch(req.Instructions)[1]
			return fmt.Sprintf(`{"instructions":[
				{"title":"Introduction","customized_text":"intro to %s"},
				{"title":"","customized_text":""},
				{"title":"Elements","customized_text":"elements of %s"}
			]}`, title, title), nil
		})
}

func id(n int) *int { return &n }

func numbers(insts []legal.Instruction) []string {
	out := make([]string, len(insts))
	for i, in := range insts {
		out[i] = in.Number
	}
	return out
}

func TestEndToEndSingleStandardClaim(t *testing.T) {
	o := court{categories: map[string]string{"Breach of Contract": "416"}, exclude: map[string]bool{"416.5": true}}.install(oracletest.New())
	e := New(o.Executor(), testSnapshot(t), Config{IncludeOath: false})
	got, err := e.Assemble(context.Background(), Input{
		CaseFacts: "Acme sued Beta over a supply contract.",
		Claims:    []legal.MatchedItem{{ClaimID: id(7), Name: "Breach of Contract"}},
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	want := []string{"201.1", "202.1", "202.2", "416.1", "416.4", "416.10", "601.2"}
	if diff := cmp.Diff(want, numbers(got)); diff != "" {
		t.Fatalf("instruction order mismatch (-want +got):\n%s", diff)
	}
	for _, in := range got {
		if strings.HasPrefix(in.Number, "CUSTOM") {
			t.Fatalf("unexpected custom instruction %+v", in)
		}
	}
	if got[3].CustomizedText != "416.1 for Breach of Contract" || got[3].Title != "Contract Introduction" || got[3].Phase != PhaseClaims {
		t.Fatalf("standard instruction wrong: %+v", got[3])
	}
	if o.CallCount("split_introduction") != 0 {
		t.Fatal("split should not run without include_oath")
	}
}

func TestOpeningWithOathSplitsIntroduction(t *testing.T) {
	o := court{}.install(oracletest.New())
	e := New(o.Executor(), testSnapshot(t), Config{IncludeOath: true})
	got, err := e.Assemble(context.Background(), Input{})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	want := []legal.Instruction{
		{Number: "201.1", Title: "Introduction (Before Oath)", CustomizedText: "before oath", Phase: PhaseOpening},
		{Number: "201.2", Title: "Oath", CustomizedText: "rendered 201.2", Phase: PhaseOpening},
		{Number: "201.1", Title: "Introduction (After Oath)", CustomizedText: "after oath", Phase: PhaseOpening},
		{Number: "202.1", Title: "Participants", CustomizedText: "rendered 202.1", Phase: PhaseOpening},
		{Number: "202.2", Title: "General Duties", CustomizedText: "rendered 202.2", Phase: PhaseOpening},
		{Number: "601.2", Title: "Believability", CustomizedText: "rendered 601.2", Phase: PhaseClosing},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("opening mismatch (-want +got):\n%s", diff)
	}
	if o.CallCount("match_category")+o.CallCount("select_instructions")+o.CallCount("generate_custom_instructions") != 0 {
		t.Fatal("no claim phases should run without claims")
	}
}

func TestOathSkippedWhenTemplateMissing(t *testing.T) {
	o := court{}.install(oracletest.New())
	slots := DefaultSlots()
	slots.Oath = "999.9"
	e := New(o.Executor(), testSnapshot(t), Config{IncludeOath: true}, WithSlots(slots))
	got, err := e.Assemble(context.Background(), Input{})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if diff := cmp.Diff([]string{"201.1", "202.1", "202.2", "601.2"}, numbers(got)); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestSameCategoryKeepsItemOrderAndTemplateOrder(t *testing.T) {
	o := court{
		categories: map[string]string{"Breach of Contract": "416", "Negligence": "416"},
		exclude:    map[string]bool{"416.1": true, "416.5": true},
		reverse:    true,
	}.install(oracletest.New())
	e := New(o.Executor(), testSnapshot(t), Config{})
	got, err := e.Assemble(context.Background(), Input{Claims: []legal.MatchedItem{
		{ClaimID: id(12), Name: "Negligence"},
		{ClaimID: id(7), Name: "Breach of Contract"},
	}})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	var mid []string
	for _, in := range got {
		if in.Phase == PhaseClaims {
			mid = append(mid, in.Claim+" "+in.Number)
		}
	}
	want := []string{"Negligence 416.4", "Negligence 416.10", "Breach of Contract 416.4", "Breach of Contract 416.10"}
	if diff := cmp.Diff(want, mid); diff != "" {
		t.Fatalf("claim instructions mismatch (-want +got):\n%s", diff)
	}
	if got[len(got)-1].Number != "601.4" {
		t.Fatalf("two claims should emit the multiple claims instruction, got %v", numbers(got))
	}
}

func TestCustomRoutingOrder(t *testing.T) {
	o := court{categories: map[string]string{"Breach of Contract": "416"}}.install(oracletest.New())
	e := New(o.Executor(), testSnapshot(t), Config{})
	got, err := e.Assemble(context.Background(), Input{
		Claims: []legal.MatchedItem{
			{ClaimID: id(31), Name: "Conversion"},
			{ClaimID: nil, Name: "Civil Theft", RawTexts: []string{"COUNT III - CIVIL THEFT"}},
			{ClaimID: id(7), Name: "Breach of Contract"},
		},
		Counterclaims: []legal.MatchedItem{
			{ClaimID: nil, Name: "Defamation"},
		},
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	var custom []string
	for _, in := range got {
		if in.Phase == PhaseCustom {
			custom = append(custom, in.Number)
		}
	}
	want := []string{
		"CUSTOM-CONVERSION-01", "CUSTOM-CONVERSION-02",
		"CUSTOM-CIVIL-THEFT-01", "CUSTOM-CIVIL-THEFT-02",
		"CUSTOM-DEFAMATION-01", "CUSTOM-DEFAMATION-02",
	}
	if diff := cmp.Diff(want, custom); diff != "" {
		t.Fatalf("custom order mismatch (-want +got):\n%s", diff)
	}
	firstCustom := -1
	lastStandard := -1
	for i, in := range got {
		if in.Phase == PhaseCustom && firstCustom < 0 {
			firstCustom = i
		}
		if in.Phase == PhaseClaims {
			lastStandard = i
		}
	}
	if lastStandard < 0 || firstCustom < lastStandard {
		t.Fatalf("custom instructions must follow standard ones: %v", numbers(got))
	}
	calls := o.Calls("generate_custom_instructions")
	if !strings.Contains(calls[0].Instructions, "Wrongful exercise of control over property.") {
		t.Fatal("matched custom claim should use the catalog description")
	}
	if !strings.Contains(calls[1].Instructions, "COUNT III - CIVIL THEFT") {
		t.Fatal("unmatched custom claim should carry its pleaded text")
	}
}

func TestCounterclaimsCarryNoDefenses(t *testing.T) {
	o := court{categories: map[string]string{"Breach of Contract": "416"}}.install(oracletest.New())
	e := New(o.Executor(), testSnapshot(t), Config{})
	defenses := []legal.Defense{{Name: "Waiver", RawText: "THIRD AFFIRMATIVE DEFENSE - WAIVER"}}
	_, err := e.Assemble(context.Background(), Input{
		Claims:        []legal.MatchedItem{{ClaimID: id(7), Name: "Breach of Contract", Defenses: defenses}},
		Counterclaims: []legal.MatchedItem{{ClaimID: id(7), Name: "Breach of Contract", Defenses: defenses}},
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	calls := o.Calls("select_instructions")
	if len(calls) != 2 {
		t.Fatalf("expected two selections, got %d", len(calls))
	}
	if !strings.Contains(calls[0].Instructions, "- Waiver: THIRD AFFIRMATIVE DEFENSE - WAIVER") {
		t.Fatal("claim selection should list defenses")
	}
	if strings.Contains(calls[1].Instructions, "Waiver:") {
		t.Fatal("counterclaim selection must not list defenses")
	}
}

func TestClassifierAndSelectionFailuresRouteToCustom(t *testing.T) {
	o := oracletest.New().
		Push("match_category", `{"category":"999","reasoning":"made up"}`).
		Push("match_category", `{"category":"416","reasoning":"ok"}`).
		PushError("select_instructions", errors.New("status code: 400 bad request"))
	o = court{}.install(o)
	e := New(o.Executor(), testSnapshot(t), Config{})
	got, err := e.Assemble(context.Background(), Input{Claims: []legal.MatchedItem{
		{ClaimID: id(12), Name: "Negligence"},
		{ClaimID: id(7), Name: "Breach of Contract"},
	}})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	var custom []string
	for _, in := range got {
		if in.Phase == PhaseCustom {
			custom = append(custom, in.Number)
		}
		if in.Phase == PhaseClaims {
			t.Fatalf("no standard instructions expected, got %+v", in)
		}
	}
	want := []string{"CUSTOM-NEGLIGENCE-01", "CUSTOM-NEGLIGENCE-02", "CUSTOM-BREACH-OF-CONTRACT-01", "CUSTOM-BREACH-OF-CONTRACT-02"}
	if diff := cmp.Diff(want, custom); diff != "" {
		t.Fatalf("custom mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownClaimIDAborts(t *testing.T) {
	o := court{}.install(oracletest.New())
	e := New(o.Executor(), testSnapshot(t), Config{})
	_, err := e.Assemble(context.Background(), Input{Claims: []legal.MatchedItem{{ClaimID: id(404), Name: "Mystery"}}})
	var derr *DispositionError
	if !errors.As(err, &derr) || !errors.Is(err, ErrUnknownClaim) {
		t.Fatalf("expected DispositionError wrapping ErrUnknownClaim, got %v", err)
	}
	if derr.Party != "claim" || derr.Name != "Mystery" {
		t.Fatalf("unexpected disposition error %+v", derr)
	}
}

func TestCustomGenerationFailureAborts(t *testing.T) {
	o := oracletest.New().Push("generate_custom_instructions", `{"instructions":[]}`)
	o = court{}.install(o)
	e := New(o.Executor(), testSnapshot(t), Config{})
	_, err := e.Assemble(context.Background(), Input{Counterclaims: []legal.MatchedItem{{Name: "Slander"}}})
	var derr *DispositionError
	if !errors.As(err, &derr) || !errors.Is(err, oracle.ErrNoResult) {
		t.Fatalf("expected DispositionError, got %v", err)
	}
	if derr.Party != "counterclaim" {
		t.Fatalf("party = %s", derr.Party)
	}
}

func TestClosingFlagsAndPartialFailure(t *testing.T) {
	o := court{categories: map[string]string{"Breach of Contract": "416"}}.install(oracletest.New())
	o.Handle("render_instruction", func(req oracle.Request) (string, error) {
		num := instructionNumber.FindStringSubmatch(req.Instructions)[1]
		if num == "601.2" {
			return `{"customized_text":""}`, nil
		}
		return fmt.Sprintf(`{"customized_text":"rendered %s"}`, num), nil
	})
	e := New(o.Executor(), testSnapshot(t), Config{
		InterpreterNeeded:       true,
		ExpertWitnesses:         true,
		FinalInstructionsTiming: TimingBeforeClosingArguments,
	})
	got, err := e.Assemble(context.Background(), Input{
		Witnesses:     []legal.Witness{{FirstName: "Richard", LastName: "Gold"}},
		Claims:        []legal.MatchedItem{{ClaimID: id(7), Name: "Breach of Contract"}},
		Counterclaims: []legal.MatchedItem{{Name: "Slander"}},
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	var closing []string
	for _, in := range got {
		if in.Phase == PhaseClosing {
			closing = append(closing, in.Number)
		}
	}
	if diff := cmp.Diff([]string{"601.3", "601.4", "700"}, closing); diff != "" {
		t.Fatalf("closing mismatch (-want +got):\n%s", diff)
	}
	var believability, multiple string
	for _, c := range o.Calls("render_instruction") {
		switch instructionNumber.FindStringSubmatch(c.Instructions)[1] {
		case "601.2":
			believability = c.Instructions
		case "601.4":
			multiple = c.Instructions
		}
	}
	if !strings.Contains(believability, "Include the expert witness subsection") || !strings.Contains(believability, "- Richard Gold") {
		t.Fatalf("believability guidance missing: %s", believability)
	}
	if !strings.Contains(multiple, "- Claim: Breach of Contract") || !strings.Contains(multiple, "- Counterclaim: Slander") {
		t.Fatalf("multiple claims guidance missing: %s", multiple)
	}
}

func TestFinalInstructionRequiresExactTiming(t *testing.T) {
	o := court{}.install(oracletest.New())
	e := New(o.Executor(), testSnapshot(t), Config{FinalInstructionsTiming: "after_closing_arguments"})
	got, err := e.Assemble(context.Background(), Input{})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	for _, in := range got {
		if in.Number == "700" {
			t.Fatal("final pre-argument instruction should be omitted")
		}
	}
}

func TestParticipantsGuidancePronouns(t *testing.T) {
	o := court{}.install(oracletest.New())
	e := New(o.Executor(), testSnapshot(t), Config{Roles: Roles{
		Judge:   Role{Name: "Hon. Ada Park", Gender: "female"},
		Clerk:   Role{Name: "Sam Ortiz", Gender: "male"},
		Bailiff: Role{Name: "Jo Reyes"},
	}})
	if _, err := e.Assemble(context.Background(), Input{}); err != nil {
		t.Fatalf("assemble: %v", err)
	}
	var participants string
	for _, c := range o.Calls("render_instruction") {
		if strings.Contains(c.Instructions, "INSTRUCTION 202.1:") {
			participants = c.Instructions
		}
	}
	for _, want := range []string{
		"- Judge: Hon. Ada Park (she/her/her)",
		"- Clerk: Sam Ortiz (he/him/his)",
		"- Bailiff: Jo Reyes (they/them/their)",
		"- Court reporter: (not provided) (they/them/their)",
	} {
		if !strings.Contains(participants, want) {
			t.Fatalf("participants guidance missing %q:\n%s", want, participants)
		}
	}
}

func TestCustomNumber(t *testing.T) {
	for _, tc := range []struct {
		title string
		seq   int
		want  string
	}{
		{"Conversion", 1, "CUSTOM-CONVERSION-01"},
		{"Breach of Fiduciary Duty", 12, "CUSTOM-BREACH-OF-FIDUCIARY-DUTY-12"},
		{"  Tortious Interference (Business) ", 3, "CUSTOM-TORTIOUS-INTERFERENCE-BUSINESS-03"},
		{"", 1, "CUSTOM-CLAIM-01"},
	} {
		if got := CustomNumber(tc.title, tc.seq); got != tc.want {
			t.Fatalf("CustomNumber(%q, %d) = %s, want %s", tc.title, tc.seq, got, tc.want)
		}
	}
}
