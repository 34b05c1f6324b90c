// Package history implements the similar-case retrieval capability: given a
// query string it returns the top-K most similar archived case records. The
// index internals are deliberately simple (term-overlap scoring over a
// sqlite-backed corpus); callers depend only on the Searcher contract.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS case_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	department TEXT NOT NULL,
	patient_history TEXT NOT NULL,
	treatment_given TEXT NOT NULL,
	current_medications TEXT NOT NULL,
	allergies TEXT NOT NULL,
	vitals TEXT NOT NULL,
	consultant_recommendation TEXT NOT NULL,
	case_summary TEXT NOT NULL
);
`

// Record is one archived patient case.
type Record struct {
	Department               string
	PatientHistory           string
	TreatmentGiven           string
	CurrentMedications       string
	Allergies                string
	Vitals                   string
	ConsultantRecommendation string
	CaseSummary              string
}

// Searcher is the retrieval contract workflow agents depend on.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Record, error)
}

// Store is a sqlite-backed case archive.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the archive at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Add archives one case record.
func (s *Store) Add(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO case_records (
			department, patient_history, treatment_given, current_medications,
			allergies, vitals, consultant_recommendation, case_summary
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Department, r.PatientHistory, r.TreatmentGiven, r.CurrentMedications,
		r.Allergies, r.Vitals, r.ConsultantRecommendation, r.CaseSummary,
	)
	if err != nil {
		return fmt.Errorf("add case record: %w", err)
	}
	return nil
}

// Count returns the number of archived records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM case_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count case records: %w", err)
	}
	return n, nil
}

// Search returns up to k records ranked by query-term overlap. Records with
// no overlapping terms are excluded.
func (s *Store) Search(ctx context.Context, query string, k int) ([]Record, error) {
	if k <= 0 {
		return nil, nil
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT department, patient_history, treatment_given, current_medications,
		       allergies, vitals, consultant_recommendation, case_summary
		FROM case_records`)
	if err != nil {
		return nil, fmt.Errorf("query case records: %w", err)
	}
	defer rows.Close()

	type scored struct {
		rec   Record
		score int
	}
	var candidates []scored
	for rows.Next() {
		var r Record
		if err := rows.Scan(
			&r.Department, &r.PatientHistory, &r.TreatmentGiven, &r.CurrentMedications,
			&r.Allergies, &r.Vitals, &r.ConsultantRecommendation, &r.CaseSummary,
		); err != nil {
			return nil, fmt.Errorf("scan case record: %w", err)
		}
		if score := overlap(terms, r); score > 0 {
			candidates = append(candidates, scored{rec: r, score: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate case records: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]Record, len(candidates))
	for i, c := range candidates {
		out[i] = c.rec
	}
	return out, nil
}

func tokenize(text string) map[string]struct{} {
	terms := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(text)) {
		f = strings.Trim(f, ".,;:!?()[]\"'")
		if len(f) < 3 {
			continue
		}
		terms[f] = struct{}{}
	}
	return terms
}

func overlap(terms map[string]struct{}, r Record) int {
	haystack := strings.ToLower(strings.Join([]string{
		r.Department, r.PatientHistory, r.TreatmentGiven, r.CurrentMedications,
		r.Allergies, r.Vitals, r.ConsultantRecommendation, r.CaseSummary,
	}, " "))
	score := 0
	for t := range terms {
		if strings.Contains(haystack, t) {
			score++
		}
	}
	return score
}

// Format renders records in the template the case-history agent returns to
// the workflow, one block per record.
func Format(records []Record) string {
	var sb strings.Builder
	for i, r := range records {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "Department: %s\n", r.Department)
		fmt.Fprintf(&sb, "Patient History: %s\n", r.PatientHistory)
		fmt.Fprintf(&sb, "TreatmentGiven: %s\n", r.TreatmentGiven)
		fmt.Fprintf(&sb, "CurrentMedications: %s\n", r.CurrentMedications)
		fmt.Fprintf(&sb, "Allergies: %s\n", r.Allergies)
		fmt.Fprintf(&sb, "Vitals: %s\n", r.Vitals)
		fmt.Fprintf(&sb, "ConsultantRecommendation: %s\n", r.ConsultantRecommendation)
		fmt.Fprintf(&sb, "caseSummary: %s\n", r.CaseSummary)
	}
	return sb.String()
}
