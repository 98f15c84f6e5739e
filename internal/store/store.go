// Package store persists the reference catalog and job status rows in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/jury-instructions/internal/catalog"
)

const schema = `
CREATE TABLE IF NOT EXISTS reference_claims (
	claim_id    INTEGER PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	elements    TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS instruction_templates (
	number          TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	category_number TEXT NOT NULL,
	category_title  TEXT NOT NULL DEFAULT '',
	main_paragraph  TEXT NOT NULL DEFAULT '',
	notes_on_use    TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_templates_category ON instruction_templates (category_number);

CREATE TABLE IF NOT EXISTS jobs (
	job_id     TEXT PRIMARY KEY,
	case_id    TEXT NOT NULL,
	status     TEXT NOT NULL,
	sources    TEXT NOT NULL DEFAULT '[]',
	stage      TEXT NOT NULL DEFAULT '',
	error      TEXT NOT NULL DEFAULT '',
	result     TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// Job statuses.
const (
	StatusProcessing = "PROCESSING"
	StatusComplete   = "COMPLETE"
	StatusFailed     = "FAILED"
)

var ErrJobNotFound = errors.New("job not found")

type Store struct {
	db    *sqlx.DB
	clock func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used for job timestamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.clock = fn }
}

// Open opens or creates the database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &Store{db: db, clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type claimRow struct {
	ID          int    `db:"claim_id"`
	Title       string `db:"title"`
	Description string `db:"description"`
	Elements    string `db:"elements"`
}

type templateRow struct {
	Number         string `db:"number"`
	Title          string `db:"title"`
	CategoryNumber string `db:"category_number"`
	CategoryTitle  string `db:"category_title"`
	MainParagraph  string `db:"main_paragraph"`
	NotesOnUse     string `db:"notes_on_use"`
}

// ImportSeed upserts every claim and template of seed in one transaction.
// The seed is validated as a snapshot first so a bad file changes nothing.
func (s *Store) ImportSeed(ctx context.Context, seed catalog.Seed) error {
	if _, err := seed.Snapshot(); err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	for _, c := range seed.Claims {
		_, err := tx.NamedExecContext(ctx, `INSERT OR REPLACE INTO reference_claims (claim_id, title, description, elements)
			VALUES (:claim_id, :title, :description, :elements)`, claimRow{
			ID:          c.ID,
			Title:       c.Title,
			Description: c.Description,
			Elements:    marshalList(c.Elements),
		})
		if err != nil {
			return fmt.Errorf("import claim %d: %w", c.ID, err)
		}
	}
	for _, t := range seed.Templates {
		_, err := tx.NamedExecContext(ctx, `INSERT OR REPLACE INTO instruction_templates
			(number, title, category_number, category_title, main_paragraph, notes_on_use)
			VALUES (:number, :title, :category_number, :category_title, :main_paragraph, :notes_on_use)`, templateRow{
			Number:         t.Number,
			Title:          t.Title,
			CategoryNumber: t.CategoryNumber,
			CategoryTitle:  t.CategoryTitle,
			MainParagraph:  t.MainParagraph,
			NotesOnUse:     marshalList(t.NotesOnUse),
		})
		if err != nil {
			return fmt.Errorf("import template %s: %w", t.Number, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	return nil
}

// Snapshot reads both catalog tables inside one read-only transaction.
func (s *Store) Snapshot(ctx context.Context) (*catalog.Snapshot, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	var claimRows []claimRow
	if err := tx.SelectContext(ctx, &claimRows, `SELECT claim_id, title, description, elements FROM reference_claims`); err != nil {
		return nil, fmt.Errorf("load claims: %w", err)
	}
	var templateRows []templateRow
	if err := tx.SelectContext(ctx, &templateRows, `SELECT number, title, category_number, category_title, main_paragraph, notes_on_use
		FROM instruction_templates`); err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	claims := make([]catalog.ReferenceClaim, len(claimRows))
	for i, r := range claimRows {
		claims[i] = catalog.ReferenceClaim{ID: r.ID, Title: r.Title, Description: r.Description, Elements: unmarshalList(r.Elements)}
	}
	templates := make([]catalog.InstructionTemplate, len(templateRows))
	for i, r := range templateRows {
		templates[i] = catalog.InstructionTemplate{
			Number:         r.Number,
			Title:          r.Title,
			CategoryNumber: r.CategoryNumber,
			CategoryTitle:  r.CategoryTitle,
			MainParagraph:  r.MainParagraph,
			NotesOnUse:     unmarshalList(r.NotesOnUse),
		}
	}
	return catalog.NewSnapshot(claims, templates)
}

func marshalList(v []string) string {
	if v == nil {
		return "[]"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// unmarshalList returns nil for an empty list so values read back compare
// equal to seeds that omitted the field.
func unmarshalList(s string) []string {
	var out []string
	if json.Unmarshal([]byte(s), &out) != nil || len(out) == 0 {
		return nil
	}
	return out
}

func timeToString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
