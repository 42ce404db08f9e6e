package search

import (
	"context"
	"fmt"
	"log"

	"factcheck/api/internal/store"
)

// backend is a searcher that can also be written to.
type backend interface {
	Searcher
	Indexer
}

// Service tries Meilisearch first and falls back to PG FTS.
type Service struct {
	primary  backend
	fallback Searcher
}

// NewService creates a search service. Either side may be nil: meili when it
// is not configured, pgfts when running without Postgres.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{}
	if meili != nil {
		s.primary = meili
	}
	if pgfts != nil {
		s.fallback = pgfts
	}
	return s
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

func (s *Service) indexing() bool {
	return s != nil && s.primary != nil && s.primary.Healthy()
}

// IndexClaims pushes claims to Meilisearch in the background.
func (s *Service) IndexClaims(claims []store.Claim) {
	if !s.indexing() || len(claims) == 0 {
		return
	}
	records := make([]ClaimRecord, 0, len(claims))
	for _, c := range claims {
		records = append(records, ClaimFromStore(c))
	}
	go func() {
		if err := s.primary.IndexClaims(records); err != nil {
			log.Printf("search: index %d claims: %v", len(records), err)
		}
	}()
}

// IndexQuestions pushes open questions to Meilisearch in the background.
func (s *Service) IndexQuestions(questions []store.OpenQuestion) {
	if !s.indexing() || len(questions) == 0 {
		return
	}
	records := make([]QuestionRecord, 0, len(questions))
	for _, q := range questions {
		records = append(records, QuestionFromStore(q))
	}
	go func() {
		if err := s.primary.IndexQuestions(records); err != nil {
			log.Printf("search: index %d questions: %v", len(records), err)
		}
	}()
}

// IndexSource pushes one source to Meilisearch in the background.
func (s *Service) IndexSource(src store.Source) {
	if !s.indexing() {
		return
	}
	record := SourceFromStore(src)
	go func() {
		if err := s.primary.IndexSources([]SourceRecord{record}); err != nil {
			log.Printf("search: index source %s: %v", record.ID, err)
		}
	}()
}

// DossierReader is what a reindex needs from the store.
type DossierReader interface {
	ListClaims(ctx context.Context, dossierID string) ([]store.Claim, error)
	ListOpenQuestions(ctx context.Context, dossierID string) ([]store.OpenQuestion, error)
	ListSources(ctx context.Context, dossierID string) ([]store.Source, error)
}

// ReindexDossier synchronously pushes every searchable entity of a dossier.
func (s *Service) ReindexDossier(ctx context.Context, r DossierReader, dossierID string) error {
	if !s.indexing() {
		return fmt.Errorf("reindex dossier %s: meilisearch not available", dossierID)
	}
	claims, err := r.ListClaims(ctx, dossierID)
	if err != nil {
		return fmt.Errorf("reindex dossier %s: %w", dossierID, err)
	}
	questions, err := r.ListOpenQuestions(ctx, dossierID)
	if err != nil {
		return fmt.Errorf("reindex dossier %s: %w", dossierID, err)
	}
	sources, err := r.ListSources(ctx, dossierID)
	if err != nil {
		return fmt.Errorf("reindex dossier %s: %w", dossierID, err)
	}

	claimRecords := make([]ClaimRecord, 0, len(claims))
	for _, c := range claims {
		claimRecords = append(claimRecords, ClaimFromStore(c))
	}
	questionRecords := make([]QuestionRecord, 0, len(questions))
	for _, q := range questions {
		questionRecords = append(questionRecords, QuestionFromStore(q))
	}
	sourceRecords := make([]SourceRecord, 0, len(sources))
	for _, src := range sources {
		sourceRecords = append(sourceRecords, SourceFromStore(src))
	}

	if err := s.primary.IndexClaims(claimRecords); err != nil {
		return fmt.Errorf("reindex claims: %w", err)
	}
	if err := s.primary.IndexQuestions(questionRecords); err != nil {
		return fmt.Errorf("reindex questions: %w", err)
	}
	if err := s.primary.IndexSources(sourceRecords); err != nil {
		return fmt.Errorf("reindex sources: %w", err)
	}
	return nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
