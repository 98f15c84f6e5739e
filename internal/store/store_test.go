package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joelkehle/jury-instructions/internal/catalog"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jury.db")
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s, err := Open(path, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func testSeed(t *testing.T) catalog.Seed {
	t.Helper()
	seed, err := catalog.LoadSeed(filepath.Join("..", "catalog", "testdata", "seed.yaml"))
	require.NoError(t, err)
	return seed
}

func TestImportAndSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)
	seed := testSeed(t)
	require.NoError(t, s.ImportSeed(ctx, seed))

	want, err := seed.Snapshot()
	require.NoError(t, err)
	got, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, want.Claims(), got.Claims())
	require.Equal(t, want.Categories(), got.Categories())
	require.Equal(t, want.Templates("416"), got.Templates("416"))

	// Reopen and check the data survived.
	require.NoError(t, s.Close())
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	again, err := s2.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, want.Claims(), again.Claims())
}

func TestImportSeedUpserts(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	seed := catalog.Seed{
		Claims:    []catalog.ReferenceClaim{{ID: 7, Title: "Breach of Contract"}},
		Templates: []catalog.InstructionTemplate{{Number: "416.1", Title: "Intro", CategoryNumber: "416"}},
	}
	require.NoError(t, s.ImportSeed(ctx, seed))
	seed.Claims[0].Title = "Contract Breach"
	seed.Claims[0].Elements = []string{"a contract existed"}
	require.NoError(t, s.ImportSeed(ctx, seed))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	claims := snap.Claims()
	require.Len(t, claims, 1)
	require.Equal(t, "Contract Breach", claims[0].Title)
	require.Equal(t, []string{"a contract existed"}, claims[0].Elements)
}

func TestImportSeedRejectsInvalidCatalog(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	err := s.ImportSeed(ctx, catalog.Seed{Claims: []catalog.ReferenceClaim{{ID: 1, Title: "A"}, {ID: 1, Title: "B"}}})
	require.Error(t, err)

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	claims, templates := snap.Len()
	require.Zero(t, claims)
	require.Zero(t, templates)
}

func TestJobLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	id, err := s.StartJob(ctx, "case-1", []string{"complaint.txt", "answer.txt"})
	require.NoError(t, err)
	job, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, job.Status)
	require.Equal(t, "case-1", job.CaseID)
	require.Equal(t, []string{"complaint.txt", "answer.txt"}, job.Sources)
	require.Nil(t, job.Result)
	require.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), job.CreatedAt)

	require.NoError(t, s.CompleteJob(ctx, id, map[string]any{"case_facts": "facts"}))
	job, err = s.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusComplete, job.Status)
	var result map[string]string
	require.NoError(t, json.Unmarshal(job.Result, &result))
	require.Equal(t, "facts", result["case_facts"])
}

func TestFailJobRecordsStage(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	id, err := s.StartJob(ctx, "case-2", nil)
	require.NoError(t, err)

	require.NoError(t, s.FailJob(ctx, id, "assembly", errors.New("claim 1 has no disposition")))
	job, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, job.Status)
	require.Equal(t, "assembly", job.Stage)
	require.Equal(t, "claim 1 has no disposition", job.Error)
	require.Empty(t, job.Sources)
}

func TestUnknownJob(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.GetJob(ctx, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
	require.ErrorIs(t, s.CompleteJob(ctx, "missing", nil), ErrJobNotFound)
	require.ErrorIs(t, s.FailJob(ctx, "missing", "x", nil), ErrJobNotFound)
}
