package dedupe

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joelkehle/jury-instructions/internal/legal"
	"github.com/joelkehle/jury-instructions/internal/oracle"
	"github.com/joelkehle/jury-instructions/internal/oracle/oracletest"
)

func raws(names ...string) []legal.RawEntity {
	out := make([]legal.RawEntity, len(names))
	for i, n := range names {
		out[i] = legal.RawEntity{Name: n, RawText: "COUNT " + n, Window: i}
	}
	return out
}

func TestDeduplicateShortCircuits(t *testing.T) {
	o := oracletest.New()
	e := New(o.Executor())
	got, err := e.Deduplicate(context.Background(), Claims, nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("empty input: %v, %v", got, err)
	}
	x := legal.RawEntity{Name: "Fraud", RawText: "COUNT II - FRAUD"}
	got, err = e.Deduplicate(context.Background(), Claims, []legal.RawEntity{x})
	if err != nil {
		t.Fatalf("singleton: %v", err)
	}
	if diff := cmp.Diff([]legal.CanonicalEntity{legal.Wrap(x)}, got); diff != "" {
		t.Fatalf("singleton mismatch (-want +got):\n%s", diff)
	}
	if o.CallCount("") != 0 {
		t.Fatalf("short circuit should not call the oracle, got %d calls", o.CallCount(""))
	}
}

func TestDeduplicateNormalizesGroups(t *testing.T) {
	o := oracletest.New().Push("group_duplicate_claims", `{"grouped_entries":[
		{"name":"Breach of Contract","raw_texts":["COUNT Breach of Contract","COUNT BREACH OF CONTRACT"]},
		{"name":"Fraud","raw_text":"COUNT Fraud"}
	]}`)
	e := New(o.Executor())
	got, err := e.Deduplicate(context.Background(), Claims, raws("Breach of Contract", "BREACH OF CONTRACT", "Fraud"))
	if err != nil {
		t.Fatalf("dedupe: %v", err)
	}
	want := []legal.CanonicalEntity{
		{Name: "Breach of Contract", RawTexts: []string{"COUNT Breach of Contract", "COUNT BREACH OF CONTRACT"}},
		{Name: "Fraud", RawTexts: []string{"COUNT Fraud"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
	in := o.Calls("group_duplicate_claims")[0].Instructions
	if !strings.Contains(in, "1. Name: Breach of Contract, Raw: COUNT Breach of Contract") ||
		!strings.Contains(in, "3. Name: Fraud, Raw: COUNT Fraud") {
		t.Fatalf("prompt missing numbered entries: %s", in)
	}
}

func TestDeduplicateFallsBackWhenMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":     `nope`,
		"wrong shape":  `{"grouped_entries":{"name":"x"}}`,
		"empty groups": `{"grouped_entries":[]}`,
		"nameless":     `{"grouped_entries":[{"raw_texts":["a"]}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			o := oracletest.New().Push("group_duplicate_counterclaims", body)
			e := New(o.Executor())
			in := raws("Slander", "Libel")
			got, err := e.Deduplicate(context.Background(), Counterclaims, in)
			if err != nil {
				t.Fatalf("dedupe: %v", err)
			}
			want := []legal.CanonicalEntity{
				{Name: "Slander", RawTexts: []string{"COUNT Slander"}},
				{Name: "Libel", RawTexts: []string{"COUNT Libel"}},
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("fallback mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDeduplicateDefensesKeepsFirstRawText(t *testing.T) {
	o := oracletest.New().Push("group_duplicate_defenses", `{"grouped_entries":[
		{"name":"Statute of Limitations","raw_texts":["FIRST AFFIRMATIVE DEFENSE","Statute of limitations"]},
		{"name":"Laches","raw_texts":["Laches"]}
	]}`)
	e := New(o.Executor())
	got, err := e.DeduplicateDefenses(context.Background(), []legal.RawEntity{
		{Name: "SOL", RawText: "FIRST AFFIRMATIVE DEFENSE"},
		{Name: "sol", RawText: "Statute of limitations"},
		{Name: "Laches", RawText: "Laches"},
	})
	if err != nil {
		t.Fatalf("dedupe: %v", err)
	}
	want := []legal.Defense{
		{Name: "Statute of Limitations", RawText: "FIRST AFFIRMATIVE DEFENSE"},
		{Name: "Laches", RawText: "Laches"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("defenses mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(o.Calls("")[0].Instructions, "affirmative defenses") {
		t.Fatal("defense prompt wording missing")
	}
}

const partialGrouping = `{"grouped_entries":[
	{"name":"Breach of Contract","raw_texts":["COUNT Breach of Contract"]},
	"Invented Claim"
]}`

func TestDeduplicateReasksWhenEntriesAreDropped(t *testing.T) {
	o := oracletest.New().
		Push("group_duplicate_claims", partialGrouping).
		Push("group_duplicate_claims", `{"grouped_entries":[
			{"name":"Breach of Contract","raw_texts":["COUNT Breach of Contract"]},
			{"name":"Fraud","raw_texts":["COUNT Fraud"]},
			{"name":"Negligence","raw_texts":["COUNT Negligence"]}
		]}`)
	e := New(o.Executor(oracle.WithAttempts(2)))
	got, err := e.Deduplicate(context.Background(), Claims, raws("Breach of Contract", "Fraud", "Negligence"))
	if err != nil {
		t.Fatalf("dedupe: %v", err)
	}
	want := []legal.CanonicalEntity{
		{Name: "Breach of Contract", RawTexts: []string{"COUNT Breach of Contract"}},
		{Name: "Fraud", RawTexts: []string{"COUNT Fraud"}},
		{Name: "Negligence", RawTexts: []string{"COUNT Negligence"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
	calls := o.Calls("group_duplicate_claims")
	if len(calls) != 2 {
		t.Fatalf("expected a corrective second request, got %d calls", len(calls))
	}
	if !strings.Contains(calls[1].Instructions, `"Invented Claim" has no raw_texts`) {
		t.Fatalf("feedback should name the empty group:\n%s", calls[1].Instructions)
	}
}

func TestDeduplicateCoversEveryEntityWhenRetriesRunOut(t *testing.T) {
	o := oracletest.New().Push("group_duplicate_claims", partialGrouping)
	e := New(o.Executor())
	in := raws("Breach of Contract", "Fraud", "Negligence")
	got, err := e.Deduplicate(context.Background(), Claims, in)
	if err != nil {
		t.Fatalf("dedupe: %v", err)
	}
	want := []legal.CanonicalEntity{
		{Name: "Breach of Contract", RawTexts: []string{"COUNT Breach of Contract"}},
		{Name: "Fraud", RawTexts: []string{"COUNT Fraud"}},
		{Name: "Negligence", RawTexts: []string{"COUNT Negligence"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
	for _, g := range got {
		if len(g.RawTexts) == 0 {
			t.Fatalf("group %q absorbed no entity", g.Name)
		}
	}
}

func TestDeduplicateDropsTextsNotInInput(t *testing.T) {
	o := oracletest.New().Push("group_duplicate_claims", `{"grouped_entries":[
		{"name":"Fraud","raw_texts":["COUNT Fraud","COUNT Fraud  ","Fraudulent inducement"]},
		{"name":"Conversion","raw_texts":["COUNT IX - CONVERSION"]},
		{"name":"Negligence","raw_texts":["COUNT Negligence"]}
	]}`)
	e := New(o.Executor())
	in := append(raws("Fraud", "Negligence"), legal.RawEntity{Name: "Fraud", RawText: "COUNT Fraud", Window: 2})
	got, err := e.Deduplicate(context.Background(), Claims, in)
	if err != nil {
		t.Fatalf("dedupe: %v", err)
	}
	want := []legal.CanonicalEntity{
		{Name: "Fraud", RawTexts: []string{"COUNT Fraud"}},
		{Name: "Negligence", RawTexts: []string{"COUNT Negligence"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
}
