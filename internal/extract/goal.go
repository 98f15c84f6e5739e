// Package extract folds windows of document text into a running context and
// the claims, counterclaims, defenses, damages or case facts they contain.
package extract

import (
	"fmt"
	"strings"

	"github.com/joelkehle/jury-instructions/internal/legal"
)

type Kind string

const (
	CaseFacts     Kind = "case_facts"
	Claims        Kind = "claims"
	Counterclaims Kind = "counterclaims"
	Defenses      Kind = "defenses"
	Damages       Kind = "damages"
)

// Party values for damages goals.
const (
	PartyPlaintiff       = "claims"
	PartyCounterclaimant = "counterclaims"
)

// Goal selects what a pass extracts. Subject names the claim that defenses
// and damages are gathered for; Source labels the document being read.
type Goal struct {
	Kind    Kind
	Subject string
	Source  string
	Party   string
}

func (g Goal) Validate() error {
	switch g.Kind {
	case CaseFacts, Claims, Counterclaims:
		return nil
	case Defenses, Damages:
		if strings.TrimSpace(g.Subject) == "" {
			return &legal.ValidationError{Field: "goal.subject", Reason: fmt.Sprintf("required for %s", g.Kind)}
		}
		if g.Kind == Damages && g.Party != PartyPlaintiff && g.Party != PartyCounterclaimant {
			return &legal.ValidationError{Field: "goal.party", Reason: fmt.Sprintf("unknown party %q", g.Party)}
		}
		return nil
	case "":
		return &legal.ValidationError{Field: "goal"}
	default:
		return &legal.ValidationError{Field: "goal", Reason: fmt.Sprintf("unknown goal %q", g.Kind)}
	}
}

// Seed is the context a fresh pass starts from.
func (g Goal) Seed() string {
	switch g.Kind {
	case Claims:
		return "Beginning analysis of complaint for plaintiff's claims."
	case Counterclaims:
		return "Beginning analysis of complaint for defendant's counterclaims."
	case Defenses:
		return "Beginning analysis of answer for defenses to: " + g.Subject
	case Damages:
		return fmt.Sprintf("Beginning analysis of %s for damages requested by %s for: %s", g.Party, g.partyName(), g.Subject)
	default:
		return ""
	}
}

func (g Goal) partyName() string {
	if g.Party == PartyCounterclaimant {
		return "counterclaimant/defendant"
	}
	return "plaintiff"
}

func (g Goal) source() string {
	if g.Source != "" {
		return g.Source
	}
	switch g.Kind {
	case Defenses, Counterclaims:
		return "answer"
	default:
		return "complaint"
	}
}
