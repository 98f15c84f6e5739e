// Package catalog holds the reference taxonomy of claim types and the
// instruction template library as an immutable per-run snapshot.
package catalog

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type ReferenceClaim struct {
	ID          int      `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Elements    []string `json:"elements" yaml:"elements"`
}

type InstructionTemplate struct {
	Number         string   `json:"number" yaml:"number"`
	Title          string   `json:"title" yaml:"title"`
	CategoryNumber string   `json:"category_number" yaml:"category_number"`
	CategoryTitle  string   `json:"category_title" yaml:"category_title"`
	MainParagraph  string   `json:"main_paragraph" yaml:"main_paragraph"`
	NotesOnUse     []string `json:"notes_on_use" yaml:"notes_on_use"`
}

type Category struct {
	Number string `json:"number"`
	Title  string `json:"title"`
}

// Snapshot is a read-only view of the catalog taken once per run.
type Snapshot struct {
	claims     []ReferenceClaim
	claimByID  map[int]int
	templates  []InstructionTemplate
	byNumber   map[string]int
	byCategory map[string][]int
	categories []Category
}

// NewSnapshot copies and indexes the given entries. Duplicate claim IDs or
// template numbers are rejected.
func NewSnapshot(claims []ReferenceClaim, templates []InstructionTemplate) (*Snapshot, error) {
	s := &Snapshot{
		claims:     slices.Clone(claims),
		claimByID:  make(map[int]int, len(claims)),
		templates:  slices.Clone(templates),
		byNumber:   make(map[string]int, len(templates)),
		byCategory: map[string][]int{},
	}
	slices.SortStableFunc(s.claims, func(a, b ReferenceClaim) int { return a.ID - b.ID })
	for i, c := range s.claims {
		if _, dup := s.claimByID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate reference claim id %d", c.ID)
		}
		s.claimByID[c.ID] = i
	}

	slices.SortStableFunc(s.templates, func(a, b InstructionTemplate) int { return CompareNumbers(a.Number, b.Number) })
	seenCategory := map[string]bool{}
	for i, t := range s.templates {
		if strings.TrimSpace(t.Number) == "" {
			return nil, fmt.Errorf("instruction template %q has no number", t.Title)
		}
		if _, dup := s.byNumber[t.Number]; dup {
			return nil, fmt.Errorf("duplicate instruction template %s", t.Number)
		}
		s.byNumber[t.Number] = i
		if t.CategoryNumber == "" {
			continue
		}
		s.byCategory[t.CategoryNumber] = append(s.byCategory[t.CategoryNumber], i)
		if t.CategoryTitle != "" && !seenCategory[t.CategoryNumber] {
			seenCategory[t.CategoryNumber] = true
			s.categories = append(s.categories, Category{Number: t.CategoryNumber, Title: t.CategoryTitle})
		}
	}
	slices.SortFunc(s.categories, func(a, b Category) int { return CompareNumbers(a.Number, b.Number) })
	return s, nil
}

// Claims returns every reference claim ordered by ID.
func (s *Snapshot) Claims() []ReferenceClaim { return slices.Clone(s.claims) }

func (s *Snapshot) Claim(id int) (ReferenceClaim, bool) {
	i, ok := s.claimByID[id]
	if !ok {
		return ReferenceClaim{}, false
	}
	return s.claims[i], true
}

// Categories lists the distinct titled template categories in number order.
func (s *Snapshot) Categories() []Category { return slices.Clone(s.categories) }

func (s *Snapshot) HasCategory(number string) bool {
	return slices.ContainsFunc(s.categories, func(c Category) bool { return c.Number == number })
}

// Templates returns the templates filed under category, ordered by number.
func (s *Snapshot) Templates(category string) []InstructionTemplate {
	idx := s.byCategory[category]
	out := make([]InstructionTemplate, len(idx))
	for i, j := range idx {
		out[i] = s.templates[j]
	}
	return out
}

func (s *Snapshot) Template(number string) (InstructionTemplate, bool) {
	i, ok := s.byNumber[number]
	if !ok {
		return InstructionTemplate{}, false
	}
	return s.templates[i], true
}

func (s *Snapshot) Len() (claims, templates int) { return len(s.claims), len(s.templates) }

// CompareNumbers orders dotted instruction numbers segment by segment,
// numerically where both segments are integers, so 416.9 sorts before
// 416.10.
func CompareNumbers(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return len(as) - len(bs)
}

func compareSegment(a, b string) int {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return an - bn
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
