package search

import (
	"context"
	"errors"
	"sync"
	"testing"

	"factcheck/api/internal/store"
)

type fakeBackend struct {
	mu        sync.Mutex
	healthy   bool
	results   []Result
	err       error
	claims    []ClaimRecord
	questions []QuestionRecord
	sources   []SourceRecord
}

func (f *fakeBackend) Search(context.Context, Query) ([]Result, int, error) {
	return f.results, len(f.results), f.err
}

func (f *fakeBackend) Healthy() bool { return f.healthy }

func (f *fakeBackend) IndexClaims(claims []ClaimRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims = append(f.claims, claims...)
	return nil
}

func (f *fakeBackend) IndexQuestions(questions []QuestionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, questions...)
	return nil
}

func (f *fakeBackend) IndexSources(sources []SourceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, sources...)
	return nil
}

func TestSearchPrefersHealthyPrimary(t *testing.T) {
	primary := &fakeBackend{healthy: true, results: []Result{{Type: ResultClaim, ID: "clm_1"}}}
	fallback := &fakeBackend{healthy: true, results: []Result{{Type: ResultClaim, ID: "clm_fallback"}}}
	svc := &Service{primary: primary, fallback: fallback}

	resp := svc.Search(context.Background(), Query{Text: "bridge"})
	if len(resp.Results) != 1 || resp.Results[0].ID != "clm_1" {
		t.Fatalf("expected primary result, got %+v", resp.Results)
	}
}

func TestSearchFallsBackOnPrimaryError(t *testing.T) {
	primary := &fakeBackend{healthy: true, err: errors.New("boom")}
	fallback := &fakeBackend{healthy: true, results: []Result{{Type: ResultSource, ID: "src_1"}}}
	svc := &Service{primary: primary, fallback: fallback}

	resp := svc.Search(context.Background(), Query{Text: "bridge"})
	if len(resp.Results) != 1 || resp.Results[0].ID != "src_1" {
		t.Fatalf("expected fallback result, got %+v", resp.Results)
	}
}

func TestSearchWithoutBackendsReturnsEmptySlice(t *testing.T) {
	resp := NewService(nil, nil).Search(context.Background(), Query{Text: "bridge"})
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %#v", resp.Results)
	}
	if resp.Query != "bridge" {
		t.Fatalf("expected query echo, got %q", resp.Query)
	}
}

func TestReindexDossierPushesAllKinds(t *testing.T) {
	ctx := context.Background()
	ms := store.NewMemoryStore()
	if _, err := ms.InsertDossier(ctx, store.Dossier{DossierID: "dos_1", StatementID: "1"}); err != nil {
		t.Fatalf("insert dossier: %v", err)
	}
	if _, err := ms.UpsertClaim(ctx, store.Claim{DossierID: "dos_1", ClaimID: "clm_1", Text: "claim"}); err != nil {
		t.Fatalf("upsert claim: %v", err)
	}
	if _, err := ms.UpsertOpenQuestion(ctx, store.OpenQuestion{DossierID: "dos_1", QuestionID: "q_1", Text: "why?"}); err != nil {
		t.Fatalf("upsert question: %v", err)
	}
	if _, err := ms.InsertSource(ctx, store.Source{DossierID: "dos_1", URL: "https://example.org", CanonicalURLHash: "h"}); err != nil {
		t.Fatalf("insert source: %v", err)
	}

	primary := &fakeBackend{healthy: true}
	svc := &Service{primary: primary}
	if err := svc.ReindexDossier(ctx, ms, "dos_1"); err != nil {
		t.Fatalf("reindex: %v", err)
	}
	if len(primary.claims) != 1 || len(primary.questions) != 1 || len(primary.sources) != 1 {
		t.Fatalf("expected one record per kind, got %d/%d/%d", len(primary.claims), len(primary.questions), len(primary.sources))
	}
	if primary.claims[0].Key == primary.questions[0].Key {
		t.Fatal("document keys must differ across kinds")
	}

	if err := NewService(nil, nil).ReindexDossier(ctx, ms, "dos_1"); err == nil {
		t.Fatal("expected reindex without meilisearch to fail")
	}
}

func TestDocumentKeyIsScopedByDossier(t *testing.T) {
	a := ClaimFromStore(store.Claim{DossierID: "dos_1", ClaimID: "clm_1"})
	b := ClaimFromStore(store.Claim{DossierID: "dos_2", ClaimID: "clm_1"})
	if a.Key == b.Key {
		t.Fatal("same claim id in different dossiers must index separately")
	}
	if len(a.Key) != 32 {
		t.Fatalf("expected 32 hex chars, got %q", a.Key)
	}
}
