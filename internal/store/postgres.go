package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// typeMap scans Postgres arrays through database/sql.
var typeMap = pgtype.NewMap()

const dossierColumns = `id::text, dossier_id, statement_id, statement_aliases, title, status, counts, last_revision_hash, last_revision_at, revision_seq, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDossier(row rowScanner) (Dossier, error) {
	var (
		item      Dossier
		countsRaw []byte
		headHash  sql.NullString
		headAt    sql.NullTime
	)
	err := row.Scan(
		&item.ID,
		&item.DossierID,
		&item.StatementID,
		typeMap.SQLScanner(&item.StatementAliases),
		&item.Title,
		&item.Status,
		&countsRaw,
		&headHash,
		&headAt,
		&item.RevisionSeq,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Dossier{}, err
	}
	if len(countsRaw) > 0 {
		if err := json.Unmarshal(countsRaw, &item.Counts); err != nil {
			return Dossier{}, fmt.Errorf("decode dossier counts: %w", err)
		}
	}
	item.LastRevisionHash = nullString(headHash)
	item.LastRevisionAt = nullTime(headAt)
	return item, nil
}

func (s *PostgresStore) InsertDossier(ctx context.Context, item Dossier) (Dossier, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = DossierDraft
	}
	if item.StatementAliases == nil {
		item.StatementAliases = []string{}
	}
	countsRaw, err := json.Marshal(item.Counts)
	if err != nil {
		return Dossier{}, fmt.Errorf("marshal dossier counts: %w", err)
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO dossiers (id, dossier_id, statement_id, statement_aliases, title, status, counts)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
		RETURNING `+dossierColumns,
		item.ID, item.DossierID, item.StatementID, item.StatementAliases, item.Title, item.Status, string(countsRaw))
	created, err := scanDossier(row)
	if err != nil {
		return Dossier{}, fmt.Errorf("insert dossier: %w", classify(err))
	}
	return created, nil
}

func (s *PostgresStore) GetDossier(ctx context.Context, dossierID string) (Dossier, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+dossierColumns+` FROM dossiers WHERE dossier_id=$1`, dossierID)
	item, err := scanDossier(row)
	if err != nil {
		return Dossier{}, fmt.Errorf("get dossier: %w", classify(err))
	}
	return item, nil
}

// FindDossierByStatement matches any of ids against the statement id or the
// recorded aliases.
func (s *PostgresStore) FindDossierByStatement(ctx context.Context, ids []string) (Dossier, error) {
	if len(ids) == 0 {
		return Dossier{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+dossierColumns+`
		FROM dossiers
		WHERE statement_id = ANY($1) OR statement_aliases && $1
		ORDER BY (statement_id = ANY($1)) DESC, created_at ASC
		LIMIT 1
	`, ids)
	item, err := scanDossier(row)
	if err != nil {
		return Dossier{}, fmt.Errorf("find dossier by statement: %w", classify(err))
	}
	return item, nil
}

// FindDossierByAnyID resolves the dossier id, the statement id (or alias) or
// the storage row id.
func (s *PostgresStore) FindDossierByAnyID(ctx context.Context, id string) (Dossier, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+dossierColumns+`
		FROM dossiers
		WHERE dossier_id = $1 OR statement_id = $1 OR id::text = $1 OR $1 = ANY(statement_aliases)
		ORDER BY (dossier_id = $1) DESC, (statement_id = $1) DESC
		LIMIT 1
	`, id)
	item, err := scanDossier(row)
	if err != nil {
		return Dossier{}, fmt.Errorf("find dossier: %w", classify(err))
	}
	return item, nil
}

func (s *PostgresStore) UpdateDossierCounts(ctx context.Context, dossierID string, counts Counts) error {
	raw, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("marshal dossier counts: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE dossiers SET counts=$2::jsonb, updated_at=NOW() WHERE dossier_id=$1
	`, dossierID, string(raw))
	if err != nil {
		return fmt.Errorf("update dossier counts: %w", err)
	}
	return requireAffected(result, "update dossier counts")
}

func (s *PostgresStore) UpdateDossierStatus(ctx context.Context, dossierID, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE dossiers SET status=$2, updated_at=NOW() WHERE dossier_id=$1
	`, dossierID, status)
	if err != nil {
		return fmt.Errorf("update dossier status: %w", err)
	}
	return requireAffected(result, "update dossier status")
}

func (s *PostgresStore) ReadHead(ctx context.Context, dossierID string) (Head, error) {
	var (
		hash sql.NullString
		seq  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT last_revision_hash, revision_seq FROM dossiers WHERE dossier_id=$1
	`, dossierID).Scan(&hash, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Head{}, nil
	}
	if err != nil {
		return Head{}, fmt.Errorf("read head: %w", err)
	}
	return Head{Found: true, Hash: nullString(hash), Seq: seq}, nil
}

// TryAdvanceHead is the single-row compare-and-swap on the chain head. It
// reports false when the dossier is missing or the head moved.
func (s *PostgresStore) TryAdvanceHead(ctx context.Context, dossierID string, expected *string, next string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE dossiers
		SET last_revision_hash=$3, last_revision_at=$4, revision_seq=revision_seq+1, updated_at=NOW()
		WHERE dossier_id=$1 AND last_revision_hash IS NOT DISTINCT FROM $2
	`, dossierID, nilIfNull(expected), next, at)
	if err != nil {
		return false, fmt.Errorf("advance head: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance head rows: %w", err)
	}
	return affected == 1, nil
}

func (s *PostgresStore) LatestRevisionHash(ctx context.Context, dossierID string) (*string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `
		SELECT hash FROM dossier_revisions
		WHERE dossier_id=$1 AND hash IS NOT NULL
		ORDER BY ts DESC, seq DESC
		LIMIT 1
	`, dossierID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest revision hash: %w", err)
	}
	return &hash, nil
}

func (s *PostgresStore) InsertRevision(ctx context.Context, rev Revision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dossier_revisions (rev_id, dossier_id, entity_type, entity_id, action, diff_summary, by_role, by_user_id, ts, prev_hash, hash, hash_algo)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rev.RevID, rev.DossierID, rev.EntityType, rev.EntityID, rev.Action, rev.DiffSummary, rev.ByRole,
		nilIfNull(rev.ByUserID), rev.Timestamp, nilIfNull(rev.PrevHash), nilIfNull(rev.Hash), nilIfNull(rev.HashAlgo))
	if err != nil {
		return fmt.Errorf("insert revision: %w", classify(err))
	}
	return nil
}

// ListRevisions returns revisions oldest first. A positive limit keeps the
// newest limit revisions; limit <= 0 returns all.
func (s *PostgresStore) ListRevisions(ctx context.Context, dossierID string, limit int) ([]Revision, error) {
	query := `
		SELECT rev_id::text, dossier_id, entity_type, entity_id, action, diff_summary, by_role, by_user_id, ts, prev_hash, hash, hash_algo
		FROM dossier_revisions
		WHERE dossier_id=$1
		ORDER BY ts ASC, seq ASC
	`
	args := []any{dossierID}
	if limit > 0 {
		query = `
			SELECT rev_id, dossier_id, entity_type, entity_id, action, diff_summary, by_role, by_user_id, ts, prev_hash, hash, hash_algo
			FROM (
				SELECT rev_id::text AS rev_id, dossier_id, entity_type, entity_id, action, diff_summary, by_role, by_user_id, ts, prev_hash, hash, hash_algo, seq
				FROM dossier_revisions
				WHERE dossier_id=$1
				ORDER BY ts DESC, seq DESC
				LIMIT $2
			) newest
			ORDER BY ts ASC, seq ASC
		`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	items := make([]Revision, 0)
	for rows.Next() {
		var (
			item                         Revision
			byUser, prev, hash, hashAlgo sql.NullString
		)
		if err := rows.Scan(&item.RevID, &item.DossierID, &item.EntityType, &item.EntityID, &item.Action, &item.DiffSummary,
			&item.ByRole, &byUser, &item.Timestamp, &prev, &hash, &hashAlgo); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		item.Timestamp = item.Timestamp.UTC()
		item.ByUserID = nullString(byUser)
		item.PrevHash = nullString(prev)
		item.Hash = nullString(hash)
		item.HashAlgo = nullString(hashAlgo)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertClaim(ctx context.Context, claim Claim) error {
	quality, err := marshalOptional(claim.EvidenceQuality)
	if err != nil {
		return fmt.Errorf("marshal evidence quality: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO dossier_claims (id, dossier_id, claim_id, text, kind, status, evidence_quality, created_by_role, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)
	`, uuid.NewString(), claim.DossierID, claim.ClaimID, claim.Text, claim.Kind, claim.Status, quality, claim.CreatedByRole, claim.AuthorID)
	if err != nil {
		return fmt.Errorf("insert claim: %w", classify(err))
	}
	return nil
}

// UpsertClaim reports whether the row was newly inserted. xmax is zero only
// for tuples created by this statement.
func (s *PostgresStore) UpsertClaim(ctx context.Context, claim Claim) (bool, error) {
	quality, err := marshalOptional(claim.EvidenceQuality)
	if err != nil {
		return false, fmt.Errorf("marshal evidence quality: %w", err)
	}
	var inserted bool
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO dossier_claims (id, dossier_id, claim_id, text, kind, status, evidence_quality, created_by_role, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)
		ON CONFLICT (dossier_id, claim_id) DO UPDATE
		SET text=EXCLUDED.text, kind=EXCLUDED.kind, status=EXCLUDED.status,
			evidence_quality=COALESCE(EXCLUDED.evidence_quality, dossier_claims.evidence_quality), updated_at=NOW()
		RETURNING (xmax = 0)
	`, uuid.NewString(), claim.DossierID, claim.ClaimID, claim.Text, claim.Kind, claim.Status, quality, claim.CreatedByRole, claim.AuthorID).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert claim: %w", classify(err))
	}
	return inserted, nil
}

const claimColumns = `id::text, dossier_id, claim_id, text, kind, status, evidence_quality, created_by_role, author_id, created_at, updated_at`

func scanClaim(row rowScanner) (Claim, error) {
	var (
		item    Claim
		quality []byte
	)
	if err := row.Scan(&item.ID, &item.DossierID, &item.ClaimID, &item.Text, &item.Kind, &item.Status, &quality,
		&item.CreatedByRole, &item.AuthorID, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return Claim{}, err
	}
	if len(quality) > 0 && string(quality) != "null" {
		item.EvidenceQuality = &EvidenceQuality{}
		if err := json.Unmarshal(quality, item.EvidenceQuality); err != nil {
			return Claim{}, fmt.Errorf("decode evidence quality: %w", err)
		}
	}
	return item, nil
}

func (s *PostgresStore) GetClaim(ctx context.Context, dossierID, claimID string) (Claim, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM dossier_claims WHERE dossier_id=$1 AND claim_id=$2`, dossierID, claimID)
	item, err := scanClaim(row)
	if err != nil {
		return Claim{}, fmt.Errorf("get claim: %w", classify(err))
	}
	return item, nil
}

func (s *PostgresStore) ListClaims(ctx context.Context, dossierID string) ([]Claim, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+claimColumns+` FROM dossier_claims WHERE dossier_id=$1 ORDER BY created_at ASC, claim_id ASC`, dossierID)
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	items := make([]Claim, 0)
	for rows.Next() {
		item, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateClaimStatus(ctx context.Context, dossierID, claimID, status string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE dossier_claims SET status=$3, updated_at=NOW()
		WHERE dossier_id=$1 AND claim_id=$2 AND status <> $3
	`, dossierID, claimID, status)
	if err != nil {
		return false, fmt.Errorf("update claim status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update claim status rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) CountClaims(ctx context.Context, dossierID string) (int, error) {
	return s.count(ctx, "count claims", `SELECT COUNT(*) FROM dossier_claims WHERE dossier_id=$1`, dossierID)
}

func (s *PostgresStore) UpsertOpenQuestion(ctx context.Context, q OpenQuestion) (bool, error) {
	var inserted bool
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO open_questions (id, dossier_id, question_id, text, status, responsibility, related_claim_ids, related_source_ids, related_finding_ids, created_by_role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (dossier_id, question_id) DO UPDATE
		SET text=EXCLUDED.text, status=EXCLUDED.status, responsibility=EXCLUDED.responsibility,
			related_claim_ids=EXCLUDED.related_claim_ids, related_source_ids=EXCLUDED.related_source_ids,
			related_finding_ids=EXCLUDED.related_finding_ids, updated_at=NOW()
		RETURNING (xmax = 0)
	`, uuid.NewString(), q.DossierID, q.QuestionID, q.Text, q.Status, q.Responsibility,
		emptyIfNil(q.RelatedClaimIDs), emptyIfNil(q.RelatedSourceIDs), emptyIfNil(q.RelatedFindingIDs), q.CreatedByRole).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert open question: %w", classify(err))
	}
	return inserted, nil
}

func (s *PostgresStore) ListOpenQuestions(ctx context.Context, dossierID string) ([]OpenQuestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::text, dossier_id, question_id, text, status, responsibility, related_claim_ids, related_source_ids, related_finding_ids, created_by_role, created_at, updated_at
		FROM open_questions
		WHERE dossier_id=$1
		ORDER BY created_at ASC, question_id ASC
	`, dossierID)
	if err != nil {
		return nil, fmt.Errorf("list open questions: %w", err)
	}
	defer rows.Close()

	items := make([]OpenQuestion, 0)
	for rows.Next() {
		var item OpenQuestion
		if err := rows.Scan(&item.ID, &item.DossierID, &item.QuestionID, &item.Text, &item.Status, &item.Responsibility,
			typeMap.SQLScanner(&item.RelatedClaimIDs), typeMap.SQLScanner(&item.RelatedSourceIDs), typeMap.SQLScanner(&item.RelatedFindingIDs),
			&item.CreatedByRole, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan open question: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate open questions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountOpenQuestions(ctx context.Context, dossierID string) (int, error) {
	return s.count(ctx, "count open questions", `SELECT COUNT(*) FROM open_questions WHERE dossier_id=$1`, dossierID)
}

func (s *PostgresStore) InsertSource(ctx context.Context, src Source) (Source, error) {
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO dossier_sources (id, dossier_id, url, canonical_url_hash, title, publisher, type, published_at, retrieved_at, snippet, conflict_of_interest)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at
	`, src.ID, src.DossierID, src.URL, src.CanonicalURLHash, src.Title, src.Publisher, src.Type,
		nilIfNullTime(src.PublishedAt), nilIfNullTime(src.RetrievedAt), src.Snippet, src.ConflictOfInterest).Scan(&src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return Source{}, fmt.Errorf("insert source: %w", classify(err))
	}
	return src, nil
}

func (s *PostgresStore) ListSources(ctx context.Context, dossierID string) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::text, dossier_id, url, canonical_url_hash, title, publisher, type, published_at, retrieved_at, snippet, conflict_of_interest, created_at, updated_at
		FROM dossier_sources
		WHERE dossier_id=$1
		ORDER BY created_at ASC
	`, dossierID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	items := make([]Source, 0)
	for rows.Next() {
		var (
			item                   Source
			publishedAt, retrieved sql.NullTime
		)
		if err := rows.Scan(&item.ID, &item.DossierID, &item.URL, &item.CanonicalURLHash, &item.Title, &item.Publisher, &item.Type,
			&publishedAt, &retrieved, &item.Snippet, &item.ConflictOfInterest, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		item.PublishedAt = nullTime(publishedAt)
		item.RetrievedAt = nullTime(retrieved)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountSources(ctx context.Context, dossierID string) (int, error) {
	return s.count(ctx, "count sources", `SELECT COUNT(*) FROM dossier_sources WHERE dossier_id=$1`, dossierID)
}

// UpsertFinding keeps one row per (claim, producer); a re-evaluation by the
// same producer overwrites the verdict.
func (s *PostgresStore) UpsertFinding(ctx context.Context, f Finding) (Finding, bool, error) {
	f.Rationale = emptyIfNil(f.Rationale)
	if f.Citations == nil {
		f.Citations = []Citation{}
	}
	rationale, err := json.Marshal(f.Rationale)
	if err != nil {
		return Finding{}, false, fmt.Errorf("marshal rationale: %w", err)
	}
	citationsRaw, err := json.Marshal(f.Citations)
	if err != nil {
		return Finding{}, false, fmt.Errorf("marshal citations: %w", err)
	}
	updatedAt := time.Now().UTC()
	if f.UpdatedAt != nil {
		updatedAt = f.UpdatedAt.UTC()
	}
	var inserted bool
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO dossier_findings (id, dossier_id, claim_id, verdict, rationale, citations, produced_by, job_id, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, $8, $9)
		ON CONFLICT (dossier_id, claim_id, produced_by) DO UPDATE
		SET verdict=EXCLUDED.verdict, rationale=EXCLUDED.rationale, citations=EXCLUDED.citations,
			job_id=EXCLUDED.job_id, updated_at=EXCLUDED.updated_at
		RETURNING id::text, created_at, updated_at, (xmax = 0)
	`, uuid.NewString(), f.DossierID, f.ClaimID, f.Verdict, string(rationale), string(citationsRaw), f.ProducedBy, f.JobID, updatedAt).
		Scan(&f.ID, &f.CreatedAt, &updatedAt, &inserted)
	if err != nil {
		return Finding{}, false, fmt.Errorf("upsert finding: %w", classify(err))
	}
	f.CreatedAt = f.CreatedAt.UTC()
	updatedAt = updatedAt.UTC()
	f.UpdatedAt = &updatedAt
	return f, inserted, nil
}

func (s *PostgresStore) ListFindings(ctx context.Context, dossierID string) ([]Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::text, dossier_id, claim_id, verdict, rationale, citations, produced_by, job_id, created_at, updated_at
		FROM dossier_findings
		WHERE dossier_id=$1
		ORDER BY created_at ASC, id ASC
	`, dossierID)
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	items := make([]Finding, 0)
	for rows.Next() {
		var (
			item                 Finding
			rationale, citations []byte
			updatedAt            sql.NullTime
		)
		if err := rows.Scan(&item.ID, &item.DossierID, &item.ClaimID, &item.Verdict, &rationale, &citations,
			&item.ProducedBy, &item.JobID, &item.CreatedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		if err := json.Unmarshal(rationale, &item.Rationale); err != nil {
			return nil, fmt.Errorf("decode rationale: %w", err)
		}
		if err := json.Unmarshal(citations, &item.Citations); err != nil {
			return nil, fmt.Errorf("decode citations: %w", err)
		}
		item.UpdatedAt = nullTime(updatedAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) ListFindingKeys(ctx context.Context, dossierID string) ([]FindingKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::text, claim_id, produced_by, updated_at
		FROM dossier_findings
		WHERE dossier_id=$1
		ORDER BY created_at ASC, id ASC
	`, dossierID)
	if err != nil {
		return nil, fmt.Errorf("list finding keys: %w", err)
	}
	defer rows.Close()

	items := make([]FindingKey, 0)
	for rows.Next() {
		var (
			item      FindingKey
			updatedAt sql.NullTime
		)
		if err := rows.Scan(&item.ID, &item.ClaimID, &item.ProducedBy, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan finding key: %w", err)
		}
		item.UpdatedAt = nullTime(updatedAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate finding keys: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertEdge(ctx context.Context, e Edge) (Edge, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Active = true
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO dossier_edges (id, dossier_id, from_type, from_id, to_type, to_id, rel, weight, active, created_by_role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9)
		RETURNING created_at, updated_at
	`, e.ID, e.DossierID, e.FromType, e.FromID, e.ToType, e.ToID, e.Rel, e.Weight, e.CreatedByRole).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Edge{}, fmt.Errorf("insert edge: %w", classify(err))
	}
	return e, nil
}

// ArchiveEdge soft-deletes an active edge. It reports false when the edge is
// unknown or already archived.
func (s *PostgresStore) ArchiveEdge(ctx context.Context, dossierID, edgeID, reason string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE dossier_edges
		SET active=FALSE, archived_at=$3, archived_reason=$4, updated_at=NOW()
		WHERE dossier_id=$1 AND id::text=$2 AND active
	`, dossierID, edgeID, at, reason)
	if err != nil {
		return false, fmt.Errorf("archive edge: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("archive edge rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListEdges(ctx context.Context, dossierID string, includeArchived bool) ([]Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id::text, dossier_id, from_type, from_id, to_type, to_id, rel, weight, active, archived_at, archived_reason, created_by_role, created_at, updated_at
		FROM dossier_edges
		WHERE dossier_id=$1 AND ($2::boolean OR active)
		ORDER BY created_at ASC
	`, dossierID, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	items := make([]Edge, 0)
	for rows.Next() {
		var (
			item       Edge
			weight     sql.NullFloat64
			archivedAt sql.NullTime
		)
		if err := rows.Scan(&item.ID, &item.DossierID, &item.FromType, &item.FromID, &item.ToType, &item.ToID, &item.Rel,
			&weight, &item.Active, &archivedAt, &item.ArchivedReason, &item.CreatedByRole, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		if weight.Valid {
			w := weight.Float64
			item.Weight = &w
		}
		item.ArchivedAt = nullTime(archivedAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountActiveEdges(ctx context.Context, dossierID string) (int, error) {
	return s.count(ctx, "count edges", `SELECT COUNT(*) FROM dossier_edges WHERE dossier_id=$1 AND active IS NOT FALSE`, dossierID)
}

func (s *PostgresStore) InsertDispute(ctx context.Context, d Dispute) (Dispute, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO dossier_disputes (id, dossier_id, entity_type, entity_id, reason, status, by_user_id)
		VALUES ($1, $2, $3, $4, $5, 'open', $6)
		RETURNING status, created_at, updated_at
	`, d.ID, d.DossierID, d.EntityType, d.EntityID, d.Reason, d.ByUserID).Scan(&d.Status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Dispute{}, fmt.Errorf("insert dispute: %w", classify(err))
	}
	return d, nil
}

// CloseDispute moves an open dispute to a terminal status.
func (s *PostgresStore) CloseDispute(ctx context.Context, dossierID, disputeID, status, resolution string) (Dispute, error) {
	var d Dispute
	err := s.db.QueryRowContext(ctx, `
		UPDATE dossier_disputes
		SET status=$3, resolution=$4, updated_at=NOW()
		WHERE dossier_id=$1 AND id=$2 AND status='open'
		RETURNING id, dossier_id, entity_type, entity_id, reason, status, by_user_id, resolution, created_at, updated_at
	`, dossierID, disputeID, status, resolution).Scan(&d.ID, &d.DossierID, &d.EntityType, &d.EntityID, &d.Reason, &d.Status,
		&d.ByUserID, &d.Resolution, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM dossier_disputes WHERE dossier_id=$1 AND id=$2)`, dossierID, disputeID).Scan(&exists); err != nil {
			return Dispute{}, fmt.Errorf("check dispute: %w", err)
		}
		if exists {
			return Dispute{}, fmt.Errorf("close dispute: %w", ErrInvalidTransition)
		}
		return Dispute{}, fmt.Errorf("close dispute: %w", ErrNotFound)
	}
	if err != nil {
		return Dispute{}, fmt.Errorf("close dispute: %w", err)
	}
	return d, nil
}

func (s *PostgresStore) ListDisputes(ctx context.Context, dossierID, status string) ([]Dispute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dossier_id, entity_type, entity_id, reason, status, by_user_id, resolution, created_at, updated_at
		FROM dossier_disputes
		WHERE dossier_id=$1 AND ($2 = '' OR status=$2)
		ORDER BY created_at ASC
	`, dossierID, status)
	if err != nil {
		return nil, fmt.Errorf("list disputes: %w", err)
	}
	defer rows.Close()

	items := make([]Dispute, 0)
	for rows.Next() {
		var d Dispute
		if err := rows.Scan(&d.ID, &d.DossierID, &d.EntityType, &d.EntityID, &d.Reason, &d.Status, &d.ByUserID, &d.Resolution, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan dispute: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate disputes: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertSuggestion(ctx context.Context, sg Suggestion) (Suggestion, error) {
	payload := sg.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Suggestion{}, fmt.Errorf("marshal suggestion payload: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO dossier_suggestions (id, dossier_id, entity_type, entity_id, kind, payload, status, by_user_id)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, 'pending', $7)
		RETURNING status, created_at, updated_at
	`, sg.ID, sg.DossierID, sg.EntityType, sg.EntityID, sg.Kind, string(raw), sg.ByUserID).Scan(&sg.Status, &sg.CreatedAt, &sg.UpdatedAt)
	if err != nil {
		return Suggestion{}, fmt.Errorf("insert suggestion: %w", classify(err))
	}
	sg.Payload = payload
	return sg, nil
}

// DecideSuggestion moves a pending suggestion to a terminal status.
func (s *PostgresStore) DecideSuggestion(ctx context.Context, dossierID, suggestionID, status, decidedBy string) (Suggestion, error) {
	var (
		sg  Suggestion
		raw []byte
	)
	err := s.db.QueryRowContext(ctx, `
		UPDATE dossier_suggestions
		SET status=$3, decided_by=$4, updated_at=NOW()
		WHERE dossier_id=$1 AND id=$2 AND status='pending'
		RETURNING id, dossier_id, entity_type, entity_id, kind, payload, status, by_user_id, decided_by, created_at, updated_at
	`, dossierID, suggestionID, status, decidedBy).Scan(&sg.ID, &sg.DossierID, &sg.EntityType, &sg.EntityID, &sg.Kind, &raw,
		&sg.Status, &sg.ByUserID, &sg.DecidedBy, &sg.CreatedAt, &sg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM dossier_suggestions WHERE dossier_id=$1 AND id=$2)`, dossierID, suggestionID).Scan(&exists); err != nil {
			return Suggestion{}, fmt.Errorf("check suggestion: %w", err)
		}
		if exists {
			return Suggestion{}, fmt.Errorf("decide suggestion: %w", ErrInvalidTransition)
		}
		return Suggestion{}, fmt.Errorf("decide suggestion: %w", ErrNotFound)
	}
	if err != nil {
		return Suggestion{}, fmt.Errorf("decide suggestion: %w", err)
	}
	if err := json.Unmarshal(raw, &sg.Payload); err != nil {
		return Suggestion{}, fmt.Errorf("decode suggestion payload: %w", err)
	}
	return sg, nil
}

func (s *PostgresStore) ListSuggestions(ctx context.Context, dossierID, status string) ([]Suggestion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dossier_id, entity_type, entity_id, kind, payload, status, by_user_id, decided_by, created_at, updated_at
		FROM dossier_suggestions
		WHERE dossier_id=$1 AND ($2 = '' OR status=$2)
		ORDER BY created_at ASC
	`, dossierID, status)
	if err != nil {
		return nil, fmt.Errorf("list suggestions: %w", err)
	}
	defer rows.Close()

	items := make([]Suggestion, 0)
	for rows.Next() {
		var (
			sg  Suggestion
			raw []byte
		)
		if err := rows.Scan(&sg.ID, &sg.DossierID, &sg.EntityType, &sg.EntityID, &sg.Kind, &raw, &sg.Status, &sg.ByUserID, &sg.DecidedBy, &sg.CreatedAt, &sg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		if err := json.Unmarshal(raw, &sg.Payload); err != nil {
			return nil, fmt.Errorf("decode suggestion payload: %w", err)
		}
		items = append(items, sg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) count(ctx context.Context, label, query string, args ...any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", label, err)
	}
	return n, nil
}

func requireAffected(result sql.Result, label string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", label, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", label, ErrNotFound)
	}
	return nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func nilIfNull(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nilIfNullTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}

func emptyIfNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func marshalOptional(v *EvidenceQuality) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}
