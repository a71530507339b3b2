package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search over the
// summaries table as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search queries summary excerpts with plainto_tsquery, ranking with ts_rank
// and producing snippets with ts_headline.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "NOT s.deleted AND s.fts @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2
	if q.CreatorID != "" {
		where += fmt.Sprintf(" AND s.creator_id = $%d", argN)
		args = append(args, q.CreatorID)
		argN++
	}
	if q.Status != "" {
		where += fmt.Sprintf(" AND s.status = $%d", argN)
		args = append(args, q.Status)
		argN++
	}

	query := fmt.Sprintf(`
		SELECT s.question_id, s.creator_id, s.language_code, s.status,
			ts_headline('english', coalesce(s.excerpt, ''), plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30') AS snippet,
			count(*) OVER () AS total
		FROM summaries s
		WHERE %s
		ORDER BY ts_rank(s.fts, plainto_tsquery('english', $1)) DESC
		LIMIT $%d OFFSET $%d`, where, argN, argN+1)
	args = append(args, limit, offset)

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.CreatorID, &r.LanguageCode, &r.Status, &r.Snippet, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgfts iterate: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords reads every live summary for reindexing into Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]SummaryRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT question_id, creator_id, language_code, status, excerpt
		FROM summaries
		WHERE NOT deleted
	`)
	if err != nil {
		return nil, fmt.Errorf("pgfts load records: %w", err)
	}
	defer rows.Close()

	var records []SummaryRecord
	for rows.Next() {
		var rec SummaryRecord
		if err := rows.Scan(&rec.ID, &rec.CreatorID, &rec.LanguageCode, &rec.Status, &rec.Excerpt); err != nil {
			return nil, fmt.Errorf("pgfts scan record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgfts iterate records: %w", err)
	}
	return records, nil
}
