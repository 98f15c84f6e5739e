// Package pipeline runs the full filings to instructions flow: case facts,
// witnesses, claim and counterclaim extraction, enrichment and assembly.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joelkehle/jury-instructions/internal/assembly"
	"github.com/joelkehle/jury-instructions/internal/legal"
)

const (
	StageValidate      = "validate"
	StageCaseFacts     = "case_facts"
	StageWitnesses     = "witnesses"
	StageClaims        = "claims"
	StageCounterclaims = "counterclaims"
	StageEnrichment    = "enrichment"
	StageAssembly      = "assembly"
)

// Request holds the chunked documents for one case. Complaint is required;
// Answer and WitnessList may be empty.
type Request struct {
	CaseID      string
	Complaint   []string
	Answer      []string
	WitnessList []string
	Config      assembly.Config
}

func (r Request) Validate() error {
	if strings.TrimSpace(r.CaseID) == "" {
		return &legal.ValidationError{Field: "case_id"}
	}
	if !hasText(r.Complaint) {
		return &legal.ValidationError{Field: "complaint"}
	}
	return nil
}

func hasText(chunks []string) bool {
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			return true
		}
	}
	return false
}

// Result is handed back once per run.
type Result struct {
	CaseID        string              `json:"case_id"`
	CaseFacts     string              `json:"case_facts"`
	Witnesses     []legal.Witness     `json:"witnesses"`
	Claims        []legal.MatchedItem `json:"claims"`
	Counterclaims []legal.MatchedItem `json:"counterclaims"`
	Instructions  []legal.Instruction `json:"instructions"`
	Metadata      Metadata            `json:"metadata"`
}

type Metadata struct {
	StagesExecuted   []string  `json:"stages_executed"`
	OracleCalls      int64     `json:"oracle_calls"`
	OracleFailures   int64     `json:"oracle_failures"`
	ContentRetries   int64     `json:"content_retries"`
	TransportRetries int64     `json:"transport_retries"`
	WindowsProcessed int       `json:"windows_processed"`
	WindowsFailed    int       `json:"windows_failed"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
}

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageNameFromError reports which stage produced err.
func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	var ve *legal.ValidationError
	if errors.As(err, &ve) {
		return StageValidate
	}
	return "pipeline"
}

type StageProgressFn func(stage, message string)
