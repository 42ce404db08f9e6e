package dossier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"factcheck/api/internal/ledger"
	"factcheck/api/internal/schema"
	"factcheck/api/internal/store"
)

var (
	editor   = schema.Actor{Role: store.RoleEditor, UserID: "u_editor"}
	pipeline = schema.Actor{Role: store.RolePipeline}
	member   = schema.Actor{Role: store.RoleMember, UserID: "u_member"}
)

func newTestService(t *testing.T, opts ...Option) (*Service, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	return New(ms, ledger.NewWriter(ms), opts...), ms
}

func ensure(t *testing.T, svc *Service) store.Dossier {
	t.Helper()
	d, err := svc.EnsureForStatement(context.Background(), "stmt-1", "Bridge budget", []string{"legacy-1"})
	require.NoError(t, err)
	return d
}

func revisionsFor(t *testing.T, ms *store.MemoryStore, dossierID, entityType, action string) []store.Revision {
	t.Helper()
	revs, err := ms.ListRevisions(context.Background(), dossierID, 0)
	require.NoError(t, err)
	var out []store.Revision
	for _, r := range revs {
		if (entityType == "" || r.EntityType == entityType) && (action == "" || r.Action == action) {
			out = append(out, r)
		}
	}
	return out
}

func analysis() schema.Analysis {
	return schema.Analysis{
		CreatedByRole: store.RolePipeline,
		Claims: []schema.ClaimInput{
			{Text: "The bridge cost 4 million."},
			{Text: "Construction started in 2019.", Kind: "fact"},
			{ClaimID: "clm_fixed", Text: "The mayor approved the plan."},
		},
		OpenQuestions: []schema.OpenQuestionInput{
			{Text: "Who audited the budget?", Responsibility: "municipality"},
		},
	}
}

func TestEnsureForStatementIsIdempotent(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	first := ensure(t, svc)
	assert.Equal(t, "dos_stmt-1", first.DossierID)
	assert.Equal(t, store.DossierDraft, first.Status)
	assert.NotNil(t, first.LastRevisionHash)

	again, err := svc.EnsureForStatement(ctx, "stmt-1", "ignored", nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	byAlias, err := svc.EnsureForStatement(ctx, "legacy-1", "", nil)
	require.NoError(t, err)
	assert.Equal(t, first.DossierID, byAlias.DossierID)

	assert.Len(t, revisionsFor(t, ms, first.DossierID, store.EntityDossier, store.ActionCreate), 1)

	_, err = svc.EnsureForStatement(ctx, "  ", "", nil)
	assert.True(t, schema.IsValidationError(err))
}

func TestFindByAnyID(t *testing.T) {
	svc, _ := newTestService(t, WithIDCache(time.Minute))
	ctx := context.Background()
	d := ensure(t, svc)

	for _, id := range []string{d.DossierID, "stmt-1", "legacy-1", d.ID} {
		got, err := svc.FindByAnyID(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, d.DossierID, got.DossierID, id)
	}
	// Cached resolution still returns fresh dossier state.
	require.NoError(t, svc.SetDossierStatus(ctx, d.DossierID, store.DossierActive, editor))
	got, err := svc.FindByAnyID(ctx, "legacy-1")
	require.NoError(t, err)
	assert.Equal(t, store.DossierActive, got.Status)

	_, err = svc.FindByAnyID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSeedFromAnalysisIsIdempotent(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()
	d := ensure(t, svc)

	first, err := svc.SeedFromAnalysis(ctx, d.DossierID, analysis())
	require.NoError(t, err)
	assert.Equal(t, 3, first.ClaimsInserted)
	assert.Equal(t, 1, first.QuestionsInserted)
	assert.Equal(t, store.Counts{Claims: 3, OpenQuestions: 1}, first.Counts)

	second, err := svc.SeedFromAnalysis(ctx, d.DossierID, analysis())
	require.NoError(t, err)
	assert.Equal(t, 0, second.ClaimsInserted)
	assert.Equal(t, 3, second.ClaimsUpdated)
	assert.Equal(t, 1, second.QuestionsUpdated)

	claims, err := ms.ListClaims(ctx, d.DossierID)
	require.NoError(t, err)
	assert.Len(t, claims, 3)
	assert.Len(t, revisionsFor(t, ms, d.DossierID, store.EntityClaim, store.ActionCreate), 3)
	assert.Len(t, revisionsFor(t, ms, d.DossierID, store.EntityOpenQuestion, store.ActionCreate), 1)
	// Only the first run changed counts.
	assert.Len(t, revisionsFor(t, ms, d.DossierID, store.EntityDossier, store.ActionSystemUpdate), 1)

	ids := map[string]bool{}
	for _, c := range claims {
		ids[c.ClaimID] = true
	}
	assert.True(t, ids["clm_fixed"])

	report, err := svc.VerifyChain(ctx, d.DossierID)
	require.NoError(t, err)
	assert.True(t, report.Valid, report.Reason)
}

func TestSeedRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t)
	d := ensure(t, svc)

	in := analysis()
	in.Claims[0].Kind = "rumor"
	_, err := svc.SeedFromAnalysis(context.Background(), d.DossierID, in)
	assert.True(t, schema.IsValidationError(err), "got %v", err)

	in = analysis()
	in.CreatedByRole = store.RoleMember
	_, err = svc.SeedFromAnalysis(context.Background(), d.DossierID, in)
	assert.ErrorIs(t, err, ErrForbidden)
}

type failingRevisions struct {
	*store.MemoryStore
}

func (failingRevisions) InsertRevision(context.Context, store.Revision) error {
	return errors.New("ledger unavailable")
}

func TestSeedContinuesWhenRevisionsFail(t *testing.T) {
	ms := store.NewMemoryStore()
	failing := failingRevisions{ms}
	svc := New(failing, ledger.NewWriter(failing))
	ctx := context.Background()

	d, err := svc.EnsureForStatement(ctx, "stmt-1", "", nil)
	require.NoError(t, err)

	result, err := svc.SeedFromAnalysis(ctx, d.DossierID, analysis())
	require.NoError(t, err)
	assert.Equal(t, 3, result.ClaimsInserted)
	assert.Equal(t, 3, result.Counts.Claims)

	stored, err := ms.GetDossier(ctx, d.DossierID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Counts.Claims)
}

func TestCountsCollapseCompetingFindings(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	d := ensure(t, svc)
	_, err := svc.SeedFromAnalysis(ctx, d.DossierID, analysis())
	require.NoError(t, err)

	_, err = svc.UpsertFinding(ctx, d.DossierID, schema.FindingInput{
		ClaimID: "clm_fixed", Verdict: "supports", ProducedBy: store.ProducedByPipeline,
	}, pipeline)
	require.NoError(t, err)
	_, err = svc.UpsertFinding(ctx, d.DossierID, schema.FindingInput{
		ClaimID: "clm_fixed", Verdict: "refutes", ProducedBy: store.ProducedByEditor, Rationale: []string{"budget report p.4"},
	}, editor)
	require.NoError(t, err)

	counts, err := svc.ComputeCounts(ctx, d.DossierID)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Findings)
	assert.Equal(t, 3, counts.Claims)

	effective, err := svc.EffectiveFindings(ctx, d.DossierID)
	require.NoError(t, err)
	require.Len(t, effective, 1)
	assert.Equal(t, "refutes", effective[0].Verdict)
}

func TestUpdateCountsIsNoOpWhenUnchanged(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()
	d := ensure(t, svc)
	_, err := svc.AddSource(ctx, d.DossierID, schema.SourceInput{URL: "https://example.org/report"}, pipeline)
	require.NoError(t, err)

	before := revisionsFor(t, ms, d.DossierID, "", "")
	first, err := svc.UpdateCounts(ctx, d.DossierID, "manual recount")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sources)
	assert.Len(t, revisionsFor(t, ms, d.DossierID, "", ""), len(before))

	_, err = ms.InsertSource(ctx, store.Source{DossierID: d.DossierID, URL: "https://example.org/b", CanonicalURLHash: "b", Type: "other"})
	require.NoError(t, err)
	second, err := svc.UpdateCounts(ctx, d.DossierID, "manual recount")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Sources)

	third, err := svc.UpdateCounts(ctx, d.DossierID, "manual recount")
	require.NoError(t, err)
	assert.Equal(t, second, third)

	updates := revisionsFor(t, ms, d.DossierID, store.EntityDossier, store.ActionSystemUpdate)
	require.Len(t, updates, 2)
	assert.Equal(t, "source added: sources 0→1", updates[0].DiffSummary)
	assert.Equal(t, "manual recount: sources 1→2", updates[1].DiffSummary)
}

func TestStoredCountsFollowMutations(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()
	d := ensure(t, svc)

	requireCurrent := func(step string) store.Counts {
		t.Helper()
		stored, err := ms.GetDossier(ctx, d.DossierID)
		require.NoError(t, err)
		computed, err := svc.ComputeCounts(ctx, d.DossierID)
		require.NoError(t, err)
		require.Equal(t, computed, stored.Counts, step)
		return stored.Counts
	}

	_, err := svc.SeedFromAnalysis(ctx, d.DossierID, analysis())
	require.NoError(t, err)
	requireCurrent("seed")

	src, err := svc.AddSource(ctx, d.DossierID, schema.SourceInput{URL: "https://example.org/budget"}, pipeline)
	require.NoError(t, err)
	assert.Equal(t, 1, requireCurrent("source").Sources)

	f, err := svc.UpsertFinding(ctx, d.DossierID, schema.FindingInput{
		ClaimID: "clm_fixed", Verdict: "supports", ProducedBy: store.ProducedByPipeline,
		Citations: []schema.CitationInput{{SourceID: src.ID}},
	}, pipeline)
	require.NoError(t, err)
	assert.Equal(t, 1, requireCurrent("finding").Findings)

	edge, err := svc.AddEdge(ctx, d.DossierID, schema.EdgeInput{FromType: "source", FromID: src.ID, ToType: "claim", ToID: f.ClaimID, Rel: "supports"}, editor)
	require.NoError(t, err)
	assert.Equal(t, 1, requireCurrent("edge").Edges)

	require.NoError(t, svc.ArchiveEdge(ctx, d.DossierID, edge.ID, "duplicate link", editor))
	assert.Equal(t, 0, requireCurrent("archive").Edges)

	updates := revisionsFor(t, ms, d.DossierID, store.EntityDossier, store.ActionSystemUpdate)
	summaries := make([]string, 0, len(updates))
	for _, u := range updates {
		summaries = append(summaries, u.DiffSummary)
	}
	assert.Contains(t, summaries, "edge archived: edges 1→0")

	report, err := svc.VerifyChain(ctx, d.DossierID)
	require.NoError(t, err)
	assert.True(t, report.Valid)
}

func TestUpsertFindingReturnsStoredRow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	d := ensure(t, svc)
	_, err := svc.SeedFromAnalysis(ctx, d.DossierID, analysis())
	require.NoError(t, err)

	in := schema.FindingInput{ClaimID: "clm_fixed", Verdict: "supports", ProducedBy: store.ProducedByPipeline}
	first, err := svc.UpsertFinding(ctx, d.DossierID, in, pipeline)
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())
	require.NotNil(t, first.UpdatedAt)

	in.Verdict = "refutes"
	second, err := svc.UpsertFinding(ctx, d.DossierID, in, pipeline)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, "refutes", second.Verdict)
}

func TestDuplicateSourceAndEdge(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	d := ensure(t, svc)

	_, err := svc.AddSource(ctx, d.DossierID, schema.SourceInput{URL: "https://www.Example.org/report/"}, pipeline)
	require.NoError(t, err)
	_, err = svc.AddSource(ctx, d.DossierID, schema.SourceInput{URL: "https://example.org/report"}, pipeline)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	in := schema.EdgeInput{FromType: "source", FromID: "src_1", ToType: "claim", ToID: "clm_1", Rel: "supports"}
	edge, err := svc.AddEdge(ctx, d.DossierID, in, editor)
	require.NoError(t, err)
	_, err = svc.AddEdge(ctx, d.DossierID, in, editor)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	require.NoError(t, svc.ArchiveEdge(ctx, d.DossierID, edge.ID, "wrong source", editor))
	assert.ErrorIs(t, svc.ArchiveEdge(ctx, d.DossierID, edge.ID, "again", editor), store.ErrNotFound)

	counts, err := svc.UpdateCounts(ctx, d.DossierID, "recount")
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Edges)
}

func TestRoleChecks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	d := ensure(t, svc)

	_, err := svc.AddEdge(ctx, d.DossierID, schema.EdgeInput{FromType: "claim", FromID: "a", ToType: "claim", ToID: "b", Rel: "depends_on"}, member)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.UpsertFinding(ctx, d.DossierID, schema.FindingInput{ClaimID: "clm_x", Verdict: "supports", ProducedBy: store.ProducedByEditor}, pipeline)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.ErrorIs(t, svc.SetDossierStatus(ctx, d.DossierID, store.DossierArchived, editor), ErrForbidden)
	assert.NoError(t, svc.SetDossierStatus(ctx, d.DossierID, store.DossierArchived, schema.Actor{Role: store.RoleAdmin}))

	err = svc.SetDossierStatus(ctx, d.DossierID, "deleted", schema.Actor{Role: store.RoleAdmin})
	assert.True(t, schema.IsValidationError(err))
}

func TestSyncClaimStatuses(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()
	d := ensure(t, svc)
	_, err := svc.SeedFromAnalysis(ctx, d.DossierID, analysis())
	require.NoError(t, err)

	_, err = svc.UpsertFinding(ctx, d.DossierID, schema.FindingInput{ClaimID: "clm_fixed", Verdict: "mixed", ProducedBy: store.ProducedByPipeline}, pipeline)
	require.NoError(t, err)

	changed, err := svc.SyncClaimStatuses(ctx, d.DossierID)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	claim, err := ms.GetClaim(ctx, d.DossierID, "clm_fixed")
	require.NoError(t, err)
	assert.Equal(t, "unclear", claim.Status)

	changed, err = svc.SyncClaimStatuses(ctx, d.DossierID)
	require.NoError(t, err)
	assert.Zero(t, changed)

	require.NoError(t, svc.SetClaimStatus(ctx, d.DossierID, "clm_fixed", "refuted", editor))
	assert.Len(t, revisionsFor(t, ms, d.DossierID, store.EntityClaim, store.ActionStatusChange), 2)
}

func TestDisputeAndSuggestionLifecycle(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()
	d := ensure(t, svc)

	dispute, err := svc.OpenDispute(ctx, d.DossierID, schema.DisputeInput{EntityType: "claim", EntityID: "clm_1", Reason: "quote is out of context"}, member)
	require.NoError(t, err)
	assert.Equal(t, store.DisputeOpen, dispute.Status)

	_, err = svc.ResolveDispute(ctx, d.DossierID, dispute.ID, store.DisputeResolved, "added context", member)
	assert.ErrorIs(t, err, ErrForbidden)

	closed, err := svc.ResolveDispute(ctx, d.DossierID, dispute.ID, store.DisputeResolved, "added context", editor)
	require.NoError(t, err)
	assert.Equal(t, "added context", closed.Resolution)

	_, err = svc.ResolveDispute(ctx, d.DossierID, dispute.ID, store.DisputeRejected, "", editor)
	assert.ErrorIs(t, err, store.ErrInvalidTransition)
	_, err = svc.ResolveDispute(ctx, d.DossierID, "dsp_missing", store.DisputeRejected, "", editor)
	assert.ErrorIs(t, err, store.ErrNotFound)

	sg, err := svc.OpenSuggestion(ctx, d.DossierID, schema.SuggestionInput{EntityType: "source", Kind: "add_source", Payload: map[string]any{"url": "https://example.org"}}, member)
	require.NoError(t, err)
	decided, err := svc.DecideSuggestion(ctx, d.DossierID, sg.ID, store.SuggestionAccepted, editor)
	require.NoError(t, err)
	assert.Equal(t, "u_editor", decided.DecidedBy)

	pending, err := svc.ListSuggestions(ctx, d.DossierID, store.SuggestionPending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.Len(t, revisionsFor(t, ms, d.DossierID, store.EntityDispute, ""), 2)
	assert.Len(t, revisionsFor(t, ms, d.DossierID, store.EntitySuggestion, ""), 2)
}

func TestConcurrentMutationsKeepChainValid(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()
	d := ensure(t, svc)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.OpenDispute(ctx, d.DossierID, schema.DisputeInput{EntityType: "dossier", EntityID: d.DossierID, Reason: "check"}, member)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	report, err := svc.VerifyChain(ctx, d.DossierID)
	require.NoError(t, err)
	assert.True(t, report.Valid, report.Reason)
	assert.Equal(t, 5, report.Checked)
	assert.Zero(t, report.Unchained)
	assert.True(t, report.HeadMatches)

	// A degraded append links to a head another writer already consumed.
	revs := revisionsFor(t, ms, d.DossierID, "", "")
	require.Len(t, revs, 5)
	links := make(map[string]bool, len(revs))
	for _, r := range revs {
		require.NotNil(t, r.Hash)
		prev := ""
		if r.PrevHash != nil {
			prev = *r.PrevHash
		}
		assert.False(t, links[prev], "revision %s shares its predecessor", r.RevID)
		links[prev] = true
	}
}

type recordingIndexer struct {
	claims    int
	questions int
	sources   int
}

func (r *recordingIndexer) IndexClaims(c []store.Claim) { r.claims += len(c) }

func (r *recordingIndexer) IndexQuestions(q []store.OpenQuestion) { r.questions += len(q) }

func (r *recordingIndexer) IndexSource(store.Source) { r.sources++ }

func TestSeedingAndSourcesFeedTheIndex(t *testing.T) {
	idx := &recordingIndexer{}
	svc, _ := newTestService(t, WithIndexer(idx))
	ctx := context.Background()
	d := ensure(t, svc)

	_, err := svc.SeedFromAnalysis(ctx, d.DossierID, analysis())
	require.NoError(t, err)
	_, err = svc.AddSource(ctx, d.DossierID, schema.SourceInput{URL: "https://example.org/a", Type: "official"}, editor)
	require.NoError(t, err)

	assert.Equal(t, 3, idx.claims)
	assert.Equal(t, 1, idx.questions)
	assert.Equal(t, 1, idx.sources)
}
