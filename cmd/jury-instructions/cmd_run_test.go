package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/jury-instructions/internal/catalog"
	"github.com/joelkehle/jury-instructions/internal/config"
	"github.com/joelkehle/jury-instructions/internal/oracle"
	"github.com/joelkehle/jury-instructions/internal/oracle/oracletest"
	"github.com/joelkehle/jury-instructions/internal/pipeline"
	"github.com/joelkehle/jury-instructions/internal/store"
)

var (
	renderedNumber = regexp.MustCompile(`INSTRUCTION (\S+):`)
	offeredNumber  = regexp.MustCompile(`"number": "([^"]+)"`)
	completedJob   = regexp.MustCompile(`job (\S+) complete`)
	failedJob      = regexp.MustCompile(`job (\S+) failed at (\S+)`)
)

// clerk answers the requests of a one-claim complaint. matchedID is the
// catalog id the matcher returns; nil sends the claim to custom generation,
// which is left unscripted.
func clerk(matchedID *int) *oracletest.Scripted {
	return oracletest.New().
		Handle("update_facts", func(oracle.Request) (string, error) {
			return `{"updated_facts":"Acme Supply delivered parts that Beta Manufacturing never paid for."}`, nil
		}).
		Handle("extract_claims_and_context", func(oracle.Request) (string, error) {
			return `{"updated_context":"one claim","claims":[{"name":"Breach of Contract","raw_text":"COUNT I - BREACH OF CONTRACT"}]}`, nil
		}).
		Handle("match_claims", func(oracle.Request) (string, error) {
			b, _ := json.Marshal(map[string]any{"matches": []map[string]any{{"claim_index": 1, "claim_id": matchedID}}})
			return string(b), nil
		}).
		Handle("render_instruction", func(req oracle.Request) (string, error) {
			return fmt.Sprintf(`{"customized_text":"rendered %s"}`, renderedNumber.FindStringSubmatch(req.Instructions)[1]), nil
		}).
		Handle("match_category", func(oracle.Request) (string, error) {
			return `{"category":"416","reasoning":"contract"}`, nil
		}).
		Handle("select_instructions", func(req oracle.Request) (string, error) {
			var sel []map[string]any
			for _, m := range offeredNumber.FindAllStringSubmatch(req.Instructions, -1) {
				sel = append(sel, map[string]any{"number": m[1], "include": true, "customized_text": "selected " + m[1]})
			}
			b, _ := json.Marshal(map[string]any{"selected_instructions": sel})
			return string(b), nil
		})
}

func useOracle(t *testing.T, o oracle.Oracle) {
	t.Helper()
	prev := newOracle
	newOracle = func(context.Context, config.OracleConfig) (oracle.Oracle, error) { return o, nil }
	t.Cleanup(func() { newOracle = prev })
}

func seededDatabase(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "jury.db")
	t.Setenv("JURY_DB_PATH", dbPath)
	seed, err := catalog.LoadSeed(filepath.Join("..", "..", "internal", "catalog", "testdata", "seed.yaml"))
	require.NoError(t, err)
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.ImportSeed(context.Background(), seed))
	return dbPath
}

func writeComplaint(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "complaint.txt")
	text := "DISTRICT COURT, DENVER COUNTY\nCase No.: 24-CV-1187\n\nCOUNT I - BREACH OF CONTRACT. Beta Manufacturing failed to pay for delivered parts."
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func loadJob(t *testing.T, dbPath, id string) store.Job {
	t.Helper()
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()
	job, err := st.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestRunCommandRecordsCompletedJob(t *testing.T) {
	dbPath := seededDatabase(t)
	useOracle(t, clerk(intPtr(7)))

	dir := t.TempDir()
	outPath := filepath.Join(dir, "result.json")
	mdPath := filepath.Join(dir, "report.md")
	htmlPath := filepath.Join(dir, "report.html")
	out, err := execute(t, "run",
		"--complaint", writeComplaint(t), "--answer", "", "--witnesses", "", "--case-config", "",
		"--case-id", "", "--out", outPath, "--markdown", mdPath, "--html", htmlPath, "--pdf", "")
	require.NoError(t, err)

	m := completedJob.FindStringSubmatch(out)
	require.Len(t, m, 2, "output: %s", out)
	job := loadJob(t, dbPath, m[1])
	assert.Equal(t, store.StatusComplete, job.Status)
	assert.Equal(t, "24-CV-1187", job.CaseID, "case id is detected from the complaint")

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var res pipeline.Result
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.Equal(t, "24-CV-1187", res.CaseID)
	require.Len(t, res.Claims, 1)
	assert.Equal(t, 7, *res.Claims[0].ClaimID)
	var numbers []string
	for _, in := range res.Instructions {
		numbers = append(numbers, in.Number)
	}
	assert.Contains(t, numbers, "201.1")
	assert.Contains(t, numbers, "416.1")
	assert.JSONEq(t, string(raw), string(job.Result))

	md, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "**416.1.** selected 416.1")
	html, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.Contains(t, string(html), "data-instruction")
}

func TestRunCommandRecordsFailedStage(t *testing.T) {
	dbPath := seededDatabase(t)
	useOracle(t, clerk(nil))

	outPath := filepath.Join(t.TempDir(), "result.json")
	_, err := execute(t, "run",
		"--complaint", writeComplaint(t), "--answer", "", "--witnesses", "", "--case-config", "",
		"--case-id", "CASE-9", "--out", outPath, "--markdown", "", "--html", "", "--pdf", "")
	require.Error(t, err)

	m := failedJob.FindStringSubmatch(err.Error())
	require.Len(t, m, 3, "error: %v", err)
	assert.Equal(t, pipeline.StageAssembly, m[2])
	job := loadJob(t, dbPath, m[1])
	assert.Equal(t, store.StatusFailed, job.Status)
	assert.Equal(t, pipeline.StageAssembly, job.Stage)
	assert.Equal(t, "CASE-9", job.CaseID)
	assert.NoFileExists(t, outPath)
}

func intPtr(n int) *int { return &n }
