package directory

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

// Candidate is one anesthesiologist returned by a partial-name search.
type Candidate struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Searcher looks up anesthesiologists by a partial or misspelled name.
type Searcher interface {
	SearchByPartialName(ctx context.Context, partial, orgID string) ([]Candidate, error)
}

// maxResults caps how many candidates a search returns.
const maxResults = 5

// fuzzyThreshold is the minimum Jaro-Winkler similarity for a row matched
// only by ranking (substring hits are always kept).
const fuzzyThreshold = 0.78

// PostgresDirectory searches the anesthesiologists table.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory creates a directory backed by PostgreSQL.
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	if db == nil {
		panic("directory: db cannot be nil")
	}
	return &PostgresDirectory{db: db}
}

// SearchByPartialName returns up to maxResults candidates whose name or alias
// contains the partial text, ranked by Jaro-Winkler similarity.
func (d *PostgresDirectory) SearchByPartialName(ctx context.Context, partial, orgID string) ([]Candidate, error) {
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return nil, nil
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name
		FROM anesthesiologists
		WHERE org_id = $1
		  AND (name ILIKE '%' || $2 || '%' OR alias ILIKE '%' || $2 || '%')
		ORDER BY name ASC
		LIMIT 50
	`, orgID, partial)
	if err != nil {
		return nil, fmt.Errorf("directory: search failed: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("directory: scan failed: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: rows failed: %w", err)
	}

	return Rank(partial, candidates), nil
}

// Rank orders candidates by similarity to the partial text and caps the
// result list. Exact substring hits stay regardless of score.
func Rank(partial string, candidates []Candidate) []Candidate {
	if len(candidates) == 0 {
		return nil
	}
	needle := strings.ToLower(strings.TrimSpace(partial))

	type scored struct {
		c     Candidate
		score float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		score := bestScore(needle, strings.ToLower(c.Name))
		if score < fuzzyThreshold && !strings.Contains(strings.ToLower(c.Name), needle) {
			continue
		}
		ranked = append(ranked, scored{c: c, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	out := make([]Candidate, 0, maxResults)
	for _, r := range ranked {
		out = append(out, r.c)
		if len(out) == maxResults {
			break
		}
	}
	return out
}

// bestScore compares the needle against the full name and each name token,
// keeping the highest Jaro-Winkler similarity.
func bestScore(needle, name string) float64 {
	score := matchr.JaroWinkler(needle, name, false)
	for _, token := range strings.Fields(name) {
		if s := matchr.JaroWinkler(needle, token, false); s > score {
			score = s
		}
	}
	return score
}
