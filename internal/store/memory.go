package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process store with the same key and head semantics as
// PostgresStore. It backs tests and ephemeral runs.
type MemoryStore struct {
	mu    sync.RWMutex
	now   func() time.Time
	state memoryState
}

type memoryState struct {
	dossiers    map[string]*Dossier
	sources     map[string][]Source
	claims      map[string][]Claim
	findings    map[string][]Finding
	edges       map[string][]Edge
	questions   map[string][]OpenQuestion
	revisions   map[string][]Revision
	disputes    map[string][]Dispute
	suggestions map[string][]Suggestion
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now: func() time.Time { return time.Now().UTC() },
		state: memoryState{
			dossiers:    map[string]*Dossier{},
			sources:     map[string][]Source{},
			claims:      map[string][]Claim{},
			findings:    map[string][]Finding{},
			edges:       map[string][]Edge{},
			questions:   map[string][]OpenQuestion{},
			revisions:   map[string][]Revision{},
			disputes:    map[string][]Dispute{},
			suggestions: map[string][]Suggestion{},
		},
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) InsertDossier(_ context.Context, item Dossier) (Dossier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.state.dossiers[item.DossierID]; exists {
		return Dossier{}, fmt.Errorf("insert dossier: %w: dossiers_dossier_id_key", ErrDuplicateKey)
	}
	for _, d := range m.state.dossiers {
		if d.StatementID == item.StatementID {
			return Dossier{}, fmt.Errorf("insert dossier: %w: ux_dossiers_statement", ErrDuplicateKey)
		}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = DossierDraft
	}
	item.StatementAliases = append([]string{}, item.StatementAliases...)
	now := m.now()
	item.CreatedAt, item.UpdatedAt = now, now
	item.LastRevisionHash, item.LastRevisionAt, item.RevisionSeq = nil, nil, 0
	stored := item
	m.state.dossiers[item.DossierID] = &stored
	return copyDossier(stored), nil
}

func (m *MemoryStore) GetDossier(_ context.Context, dossierID string) (Dossier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.state.dossiers[dossierID]
	if !ok {
		return Dossier{}, fmt.Errorf("get dossier: %w", ErrNotFound)
	}
	return copyDossier(*d), nil
}

func (m *MemoryStore) FindDossierByStatement(_ context.Context, ids []string) (Dossier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var aliasMatch *Dossier
	for _, d := range m.sortedDossiers() {
		for _, id := range ids {
			if d.StatementID == id {
				return copyDossier(*d), nil
			}
			if aliasMatch == nil && containsString(d.StatementAliases, id) {
				aliasMatch = d
			}
		}
	}
	if aliasMatch != nil {
		return copyDossier(*aliasMatch), nil
	}
	return Dossier{}, fmt.Errorf("find dossier by statement: %w", ErrNotFound)
}

func (m *MemoryStore) FindDossierByAnyID(_ context.Context, id string) (Dossier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if d, ok := m.state.dossiers[id]; ok {
		return copyDossier(*d), nil
	}
	var fallback *Dossier
	for _, d := range m.sortedDossiers() {
		if d.StatementID == id {
			return copyDossier(*d), nil
		}
		if fallback == nil && (d.ID == id || containsString(d.StatementAliases, id)) {
			fallback = d
		}
	}
	if fallback != nil {
		return copyDossier(*fallback), nil
	}
	return Dossier{}, fmt.Errorf("find dossier: %w", ErrNotFound)
}

func (m *MemoryStore) UpdateDossierCounts(_ context.Context, dossierID string, counts Counts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.state.dossiers[dossierID]
	if !ok {
		return fmt.Errorf("update dossier counts: %w", ErrNotFound)
	}
	d.Counts = counts
	d.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) UpdateDossierStatus(_ context.Context, dossierID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.state.dossiers[dossierID]
	if !ok {
		return fmt.Errorf("update dossier status: %w", ErrNotFound)
	}
	d.Status = status
	d.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) ReadHead(_ context.Context, dossierID string) (Head, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.state.dossiers[dossierID]
	if !ok {
		return Head{}, nil
	}
	return Head{Found: true, Hash: copyString(d.LastRevisionHash), Seq: d.RevisionSeq}, nil
}

func (m *MemoryStore) TryAdvanceHead(_ context.Context, dossierID string, expected *string, next string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.state.dossiers[dossierID]
	if !ok || !sameHash(d.LastRevisionHash, expected) {
		return false, nil
	}
	d.LastRevisionHash = &next
	t := at.UTC()
	d.LastRevisionAt = &t
	d.RevisionSeq++
	d.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) LatestRevisionHash(_ context.Context, dossierID string) (*string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	revs := sortedRevisions(m.state.revisions[dossierID])
	for i := len(revs) - 1; i >= 0; i-- {
		if revs[i].Hash != nil {
			return copyString(revs[i].Hash), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) InsertRevision(_ context.Context, rev Revision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.state.revisions[rev.DossierID] {
		if existing.RevID == rev.RevID {
			return fmt.Errorf("insert revision: %w: dossier_revisions_rev_id_key", ErrDuplicateKey)
		}
	}
	rev.Timestamp = rev.Timestamp.UTC()
	m.state.revisions[rev.DossierID] = append(m.state.revisions[rev.DossierID], rev)
	return nil
}

// ListRevisions keeps the newest limit revisions, oldest first.
func (m *MemoryStore) ListRevisions(_ context.Context, dossierID string, limit int) ([]Revision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	revs := sortedRevisions(m.state.revisions[dossierID])
	if limit > 0 && len(revs) > limit {
		revs = revs[len(revs)-limit:]
	}
	return revs, nil
}

// sortedRevisions orders by timestamp; the stable sort keeps insertion order
// as the sequence tiebreak.
func sortedRevisions(revs []Revision) []Revision {
	out := append([]Revision{}, revs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (m *MemoryStore) InsertClaim(_ context.Context, claim Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.claimIndex(claim.DossierID, claim.ClaimID) >= 0 {
		return fmt.Errorf("insert claim: %w: ux_dossier_claims_key", ErrDuplicateKey)
	}
	m.appendClaim(claim)
	return nil
}

func (m *MemoryStore) UpsertClaim(_ context.Context, claim Claim) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.claimIndex(claim.DossierID, claim.ClaimID)
	if idx < 0 {
		m.appendClaim(claim)
		return true, nil
	}
	existing := &m.state.claims[claim.DossierID][idx]
	existing.Text = claim.Text
	existing.Kind = claim.Kind
	existing.Status = claim.Status
	if claim.EvidenceQuality != nil {
		existing.EvidenceQuality = claim.EvidenceQuality
	}
	existing.UpdatedAt = m.now()
	return false, nil
}

func (m *MemoryStore) appendClaim(claim Claim) {
	claim.ID = uuid.NewString()
	now := m.now()
	claim.CreatedAt, claim.UpdatedAt = now, now
	m.state.claims[claim.DossierID] = append(m.state.claims[claim.DossierID], claim)
}

func (m *MemoryStore) claimIndex(dossierID, claimID string) int {
	for i, c := range m.state.claims[dossierID] {
		if c.ClaimID == claimID {
			return i
		}
	}
	return -1
}

func (m *MemoryStore) GetClaim(_ context.Context, dossierID, claimID string) (Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := m.claimIndex(dossierID, claimID)
	if idx < 0 {
		return Claim{}, fmt.Errorf("get claim: %w", ErrNotFound)
	}
	return m.state.claims[dossierID][idx], nil
}

func (m *MemoryStore) ListClaims(_ context.Context, dossierID string) ([]Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Claim{}, m.state.claims[dossierID]...), nil
}

func (m *MemoryStore) UpdateClaimStatus(_ context.Context, dossierID, claimID, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.claimIndex(dossierID, claimID)
	if idx < 0 || m.state.claims[dossierID][idx].Status == status {
		return false, nil
	}
	c := &m.state.claims[dossierID][idx]
	c.Status = status
	c.UpdatedAt = m.now()
	return true, nil
}

func (m *MemoryStore) CountClaims(_ context.Context, dossierID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.claims[dossierID]), nil
}

func (m *MemoryStore) UpsertOpenQuestion(_ context.Context, q OpenQuestion) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.state.questions[q.DossierID] {
		if existing.QuestionID != q.QuestionID {
			continue
		}
		stored := &m.state.questions[q.DossierID][i]
		stored.Text = q.Text
		stored.Status = q.Status
		stored.Responsibility = q.Responsibility
		stored.RelatedClaimIDs = emptyIfNil(q.RelatedClaimIDs)
		stored.RelatedSourceIDs = emptyIfNil(q.RelatedSourceIDs)
		stored.RelatedFindingIDs = emptyIfNil(q.RelatedFindingIDs)
		stored.UpdatedAt = m.now()
		return false, nil
	}
	q.ID = uuid.NewString()
	q.RelatedClaimIDs = emptyIfNil(q.RelatedClaimIDs)
	q.RelatedSourceIDs = emptyIfNil(q.RelatedSourceIDs)
	q.RelatedFindingIDs = emptyIfNil(q.RelatedFindingIDs)
	now := m.now()
	q.CreatedAt, q.UpdatedAt = now, now
	m.state.questions[q.DossierID] = append(m.state.questions[q.DossierID], q)
	return true, nil
}

func (m *MemoryStore) ListOpenQuestions(_ context.Context, dossierID string) ([]OpenQuestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]OpenQuestion{}, m.state.questions[dossierID]...), nil
}

func (m *MemoryStore) CountOpenQuestions(_ context.Context, dossierID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.questions[dossierID]), nil
}

func (m *MemoryStore) InsertSource(_ context.Context, src Source) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.state.sources[src.DossierID] {
		if existing.CanonicalURLHash == src.CanonicalURLHash {
			return Source{}, fmt.Errorf("insert source: %w: ux_dossier_sources_url", ErrDuplicateKey)
		}
	}
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	now := m.now()
	src.CreatedAt, src.UpdatedAt = now, now
	m.state.sources[src.DossierID] = append(m.state.sources[src.DossierID], src)
	return src, nil
}

func (m *MemoryStore) ListSources(_ context.Context, dossierID string) ([]Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Source{}, m.state.sources[dossierID]...), nil
}

func (m *MemoryStore) CountSources(_ context.Context, dossierID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.state.sources[dossierID]), nil
}

func (m *MemoryStore) UpsertFinding(_ context.Context, f Finding) (Finding, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	updatedAt := m.now()
	if f.UpdatedAt != nil {
		updatedAt = f.UpdatedAt.UTC()
	}
	for i, existing := range m.state.findings[f.DossierID] {
		if existing.ClaimID != f.ClaimID || existing.ProducedBy != f.ProducedBy {
			continue
		}
		stored := &m.state.findings[f.DossierID][i]
		stored.Verdict = f.Verdict
		stored.Rationale = append([]string{}, f.Rationale...)
		stored.Citations = append([]Citation{}, f.Citations...)
		stored.JobID = f.JobID
		stored.UpdatedAt = &updatedAt
		return *stored, false, nil
	}
	f.ID = uuid.NewString()
	f.CreatedAt = m.now()
	f.UpdatedAt = &updatedAt
	if f.Rationale == nil {
		f.Rationale = []string{}
	}
	if f.Citations == nil {
		f.Citations = []Citation{}
	}
	m.state.findings[f.DossierID] = append(m.state.findings[f.DossierID], f)
	return f, true, nil
}

func (m *MemoryStore) ListFindings(_ context.Context, dossierID string) ([]Finding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Finding{}, m.state.findings[dossierID]...), nil
}

func (m *MemoryStore) ListFindingKeys(_ context.Context, dossierID string) ([]FindingKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]FindingKey, 0, len(m.state.findings[dossierID]))
	for _, f := range m.state.findings[dossierID] {
		keys = append(keys, FindingKey{ID: f.ID, ClaimID: f.ClaimID, ProducedBy: f.ProducedBy, UpdatedAt: f.UpdatedAt})
	}
	return keys, nil
}

func (m *MemoryStore) InsertEdge(_ context.Context, e Edge) (Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.state.edges[e.DossierID] {
		if existing.FromID == e.FromID && existing.ToID == e.ToID && existing.Rel == e.Rel {
			return Edge{}, fmt.Errorf("insert edge: %w: ux_dossier_edges_pair", ErrDuplicateKey)
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Active = true
	now := m.now()
	e.CreatedAt, e.UpdatedAt = now, now
	m.state.edges[e.DossierID] = append(m.state.edges[e.DossierID], e)
	return e, nil
}

func (m *MemoryStore) ArchiveEdge(_ context.Context, dossierID, edgeID, reason string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.state.edges[dossierID] {
		if e.ID != edgeID || !e.Active {
			continue
		}
		stored := &m.state.edges[dossierID][i]
		t := at.UTC()
		stored.Active = false
		stored.ArchivedAt = &t
		stored.ArchivedReason = reason
		stored.UpdatedAt = m.now()
		return true, nil
	}
	return false, nil
}

func (m *MemoryStore) ListEdges(_ context.Context, dossierID string, includeArchived bool) ([]Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Edge, 0, len(m.state.edges[dossierID]))
	for _, e := range m.state.edges[dossierID] {
		if includeArchived || e.Active {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) CountActiveEdges(_ context.Context, dossierID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, e := range m.state.edges[dossierID] {
		if e.Active {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) InsertDispute(_ context.Context, d Dispute) (Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.state.disputes[d.DossierID] {
		if existing.ID == d.ID {
			return Dispute{}, fmt.Errorf("insert dispute: %w: dossier_disputes_pkey", ErrDuplicateKey)
		}
	}
	d.Status = DisputeOpen
	now := m.now()
	d.CreatedAt, d.UpdatedAt = now, now
	m.state.disputes[d.DossierID] = append(m.state.disputes[d.DossierID], d)
	return d, nil
}

func (m *MemoryStore) CloseDispute(_ context.Context, dossierID, disputeID, status, resolution string) (Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, d := range m.state.disputes[dossierID] {
		if d.ID != disputeID {
			continue
		}
		if d.Status != DisputeOpen {
			return Dispute{}, fmt.Errorf("close dispute: %w", ErrInvalidTransition)
		}
		stored := &m.state.disputes[dossierID][i]
		stored.Status = status
		stored.Resolution = resolution
		stored.UpdatedAt = m.now()
		return *stored, nil
	}
	return Dispute{}, fmt.Errorf("close dispute: %w", ErrNotFound)
}

func (m *MemoryStore) ListDisputes(_ context.Context, dossierID, status string) ([]Dispute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Dispute, 0)
	for _, d := range m.state.disputes[dossierID] {
		if status == "" || d.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MemoryStore) InsertSuggestion(_ context.Context, sg Suggestion) (Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.state.suggestions[sg.DossierID] {
		if existing.ID == sg.ID {
			return Suggestion{}, fmt.Errorf("insert suggestion: %w: dossier_suggestions_pkey", ErrDuplicateKey)
		}
	}
	if sg.Payload == nil {
		sg.Payload = map[string]any{}
	}
	sg.Status = SuggestionPending
	now := m.now()
	sg.CreatedAt, sg.UpdatedAt = now, now
	m.state.suggestions[sg.DossierID] = append(m.state.suggestions[sg.DossierID], sg)
	return sg, nil
}

func (m *MemoryStore) DecideSuggestion(_ context.Context, dossierID, suggestionID, status, decidedBy string) (Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sg := range m.state.suggestions[dossierID] {
		if sg.ID != suggestionID {
			continue
		}
		if sg.Status != SuggestionPending {
			return Suggestion{}, fmt.Errorf("decide suggestion: %w", ErrInvalidTransition)
		}
		stored := &m.state.suggestions[dossierID][i]
		stored.Status = status
		stored.DecidedBy = decidedBy
		stored.UpdatedAt = m.now()
		return *stored, nil
	}
	return Suggestion{}, fmt.Errorf("decide suggestion: %w", ErrNotFound)
}

func (m *MemoryStore) ListSuggestions(_ context.Context, dossierID, status string) ([]Suggestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Suggestion, 0)
	for _, sg := range m.state.suggestions[dossierID] {
		if status == "" || sg.Status == status {
			out = append(out, sg)
		}
	}
	return out, nil
}

// sortedDossiers returns dossiers oldest first, matching the SQL lookups'
// created_at ordering.
func (m *MemoryStore) sortedDossiers() []*Dossier {
	out := make([]*Dossier, 0, len(m.state.dossiers))
	for _, d := range m.state.dossiers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return strings.Compare(out[i].DossierID, out[j].DossierID) < 0
	})
	return out
}

func copyDossier(d Dossier) Dossier {
	d.StatementAliases = append([]string{}, d.StatementAliases...)
	d.LastRevisionHash = copyString(d.LastRevisionHash)
	if d.LastRevisionAt != nil {
		t := *d.LastRevisionAt
		d.LastRevisionAt = &t
	}
	return d
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

func sameHash(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
