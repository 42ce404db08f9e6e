package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

type ftsTable struct {
	rtyp    ResultType
	table   string
	id      string
	title   string
	snippet string
}

var ftsTables = []ftsTable{
	{rtyp: ResultClaim, table: "dossier_claims", id: "claim_id", title: "text", snippet: "text"},
	{rtyp: ResultQuestion, table: "open_questions", id: "question_id", title: "text", snippet: "text"},
	{rtyp: ResultSource, table: "dossier_sources", id: "id::text", title: "coalesce(nullif(title, ''), url)", snippet: "snippet"},
}

// Search runs one UNION ALL over the fts columns using plainto_tsquery and
// ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
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

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	dossierFilter := ""
	if q.FilterDossierID != "" {
		args = append(args, q.FilterDossierID)
		dossierFilter = " AND t.dossier_id = $2"
	}

	var subQueries []string
	for _, tbl := range ftsTables {
		if q.FilterType != "" && q.FilterType != tbl.rtyp {
			continue
		}
		status := "t.status"
		if tbl.rtyp == ResultSource {
			status = "''::text"
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT '%s'::text AS type, t.%s AS id, t.dossier_id, t.%s AS title,
				ts_headline('simple', coalesce(t.%s, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				%s AS status,
				ts_rank(t.fts, %s) AS rank
			FROM %s t
			WHERE t.fts @@ %s%s`,
			tbl.rtyp, tbl.id, tbl.title, tbl.snippet, tsQuery, status, tsQuery, tbl.table, tsQuery, dossierFilter))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, dossier_id, title, snippet, status
		FROM (%s) sub
		ORDER BY rank DESC, id ASC
		LIMIT %d OFFSET %d`, union, limit, offset)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r   Result
			typ string
		)
		if err := rows.Scan(&typ, &r.ID, &r.DossierID, &r.Title, &r.Snippet, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}
