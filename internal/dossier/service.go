// Package dossier is the write path over a dossier: get-or-create, seeding
// from analysis runs, denormalized counts and every entity mutation, each
// followed by a ledger revision.
package dossier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"factcheck/api/internal/archive"
	"factcheck/api/internal/ledger"
	"factcheck/api/internal/rbac"
	"factcheck/api/internal/schema"
	"factcheck/api/internal/store"
)

// ErrForbidden is returned when the acting role may not perform an action.
var ErrForbidden = errors.New("forbidden")

// Store is the persistence the service needs. Both store.PostgresStore and
// store.MemoryStore satisfy it.
type Store interface {
	ledger.HeadStore

	InsertDossier(ctx context.Context, d store.Dossier) (store.Dossier, error)
	GetDossier(ctx context.Context, dossierID string) (store.Dossier, error)
	FindDossierByStatement(ctx context.Context, ids []string) (store.Dossier, error)
	FindDossierByAnyID(ctx context.Context, id string) (store.Dossier, error)
	UpdateDossierCounts(ctx context.Context, dossierID string, counts store.Counts) error
	UpdateDossierStatus(ctx context.Context, dossierID, status string) error
	ListRevisions(ctx context.Context, dossierID string, limit int) ([]store.Revision, error)

	UpsertClaim(ctx context.Context, claim store.Claim) (bool, error)
	GetClaim(ctx context.Context, dossierID, claimID string) (store.Claim, error)
	ListClaims(ctx context.Context, dossierID string) ([]store.Claim, error)
	UpdateClaimStatus(ctx context.Context, dossierID, claimID, status string) (bool, error)
	CountClaims(ctx context.Context, dossierID string) (int, error)

	UpsertOpenQuestion(ctx context.Context, q store.OpenQuestion) (bool, error)
	ListOpenQuestions(ctx context.Context, dossierID string) ([]store.OpenQuestion, error)
	CountOpenQuestions(ctx context.Context, dossierID string) (int, error)

	InsertSource(ctx context.Context, src store.Source) (store.Source, error)
	ListSources(ctx context.Context, dossierID string) ([]store.Source, error)
	CountSources(ctx context.Context, dossierID string) (int, error)

	UpsertFinding(ctx context.Context, f store.Finding) (store.Finding, bool, error)
	ListFindings(ctx context.Context, dossierID string) ([]store.Finding, error)
	ListFindingKeys(ctx context.Context, dossierID string) ([]store.FindingKey, error)

	InsertEdge(ctx context.Context, e store.Edge) (store.Edge, error)
	ArchiveEdge(ctx context.Context, dossierID, edgeID, reason string, at time.Time) (bool, error)
	ListEdges(ctx context.Context, dossierID string, includeArchived bool) ([]store.Edge, error)
	CountActiveEdges(ctx context.Context, dossierID string) (int, error)

	InsertDispute(ctx context.Context, d store.Dispute) (store.Dispute, error)
	CloseDispute(ctx context.Context, dossierID, disputeID, status, resolution string) (store.Dispute, error)
	ListDisputes(ctx context.Context, dossierID, status string) ([]store.Dispute, error)

	InsertSuggestion(ctx context.Context, sg store.Suggestion) (store.Suggestion, error)
	DecideSuggestion(ctx context.Context, dossierID, suggestionID, status, decidedBy string) (store.Suggestion, error)
	ListSuggestions(ctx context.Context, dossierID, status string) ([]store.Suggestion, error)
}

// Indexer receives newly written searchable entities. search.Service
// implements it; calls must not block.
type Indexer interface {
	IndexClaims(claims []store.Claim)
	IndexQuestions(questions []store.OpenQuestion)
	IndexSource(src store.Source)
}

type Service struct {
	store  Store
	writer *ledger.Writer
	index  Indexer
	ids    *gocache.Cache
	now    func() time.Time

	receiptSecret []byte
}

type Option func(*Service)

func WithIndexer(idx Indexer) Option {
	return func(s *Service) { s.index = idx }
}

// WithIDCache sets how long an alias → dossierId resolution is remembered.
func WithIDCache(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ids = gocache.New(ttl, 2*ttl)
		}
	}
}

// WithReceiptSecret enables signed head receipts.
func WithReceiptSecret(secret []byte) Option {
	return func(s *Service) { s.receiptSecret = secret }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(s Store, w *ledger.Writer, opts ...Option) *Service {
	svc := &Service{
		store:  s,
		writer: w,
		ids:    gocache.New(5*time.Minute, 10*time.Minute),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// DossierIDFor is the stable dossier id derived from a statement id.
func DossierIDFor(statementID string) string {
	return "dos_" + statementID
}

// EnsureForStatement returns the dossier for statementID or one of its
// aliases, creating it when none exists.
func (s *Service) EnsureForStatement(ctx context.Context, statementID, seedTitle string, aliases []string) (store.Dossier, error) {
	statementID = strings.TrimSpace(statementID)
	if statementID == "" {
		return store.Dossier{}, &schema.ValidationError{Kind: "dossier", Fields: []schema.FieldError{{Field: "statementId", Rule: "required"}}}
	}
	lookup := append([]string{statementID}, aliases...)

	existing, err := s.store.FindDossierByStatement(ctx, lookup)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return store.Dossier{}, fmt.Errorf("ensure dossier: %w", err)
	}

	title := strings.TrimSpace(seedTitle)
	if title == "" {
		title = "Statement " + statementID
	}
	created, err := s.store.InsertDossier(ctx, store.Dossier{
		DossierID:        DossierIDFor(statementID),
		StatementID:      statementID,
		StatementAliases: dedupe(aliases, statementID),
		Title:            title,
		Status:           store.DossierDraft,
	})
	if errors.Is(err, store.ErrDuplicateKey) {
		// Lost a creation race; the winner's row is the answer.
		return s.store.FindDossierByStatement(ctx, lookup)
	}
	if err != nil {
		return store.Dossier{}, fmt.Errorf("ensure dossier: %w", err)
	}

	s.bestEffortRevision(ctx, "ensure", ledger.Entry{
		DossierID:   created.DossierID,
		EntityType:  store.EntityDossier,
		EntityID:    created.DossierID,
		Action:      store.ActionCreate,
		DiffSummary: fmt.Sprintf("dossier created for statement %s", statementID),
		ByRole:      store.RoleSystem,
	})
	if refreshed, err := s.store.GetDossier(ctx, created.DossierID); err == nil {
		return refreshed, nil
	}
	return created, nil
}

// FindByAnyID resolves a dossier by its dossier id, statement id, alias or
// storage id. Resolutions are cached; the dossier itself is always re-read.
func (s *Service) FindByAnyID(ctx context.Context, id string) (store.Dossier, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return store.Dossier{}, fmt.Errorf("find dossier: %w", store.ErrNotFound)
	}
	if cached, ok := s.ids.Get(id); ok {
		d, err := s.store.GetDossier(ctx, cached.(string))
		if err == nil {
			return d, nil
		}
		s.ids.Delete(id)
		if !errors.Is(err, store.ErrNotFound) {
			return store.Dossier{}, err
		}
	}
	d, err := s.store.FindDossierByAnyID(ctx, id)
	if err != nil {
		return store.Dossier{}, err
	}
	s.ids.Set(id, d.DossierID, gocache.DefaultExpiration)
	return d, nil
}

// AppendRevision records one revision through the ledger writer.
func (s *Service) AppendRevision(ctx context.Context, e ledger.Entry) (ledger.AppendResult, error) {
	return s.writer.Append(ctx, e)
}

// bestEffortRevision appends a revision and only logs failures. Used where
// the entity write already happened and must not be reported as failed.
func (s *Service) bestEffortRevision(ctx context.Context, op string, e ledger.Entry) {
	if _, err := s.writer.Append(ctx, e); err != nil {
		log.Printf("%s: revision for %s %s in dossier %s not recorded: %v", op, e.EntityType, e.EntityID, e.DossierID, err)
	}
}

// Revisions lists the dossier's ledger in chain order.
func (s *Service) Revisions(ctx context.Context, dossierID string, limit int) ([]store.Revision, error) {
	if _, err := s.store.GetDossier(ctx, dossierID); err != nil {
		return nil, err
	}
	return s.store.ListRevisions(ctx, dossierID, limit)
}

// VerifyChain replays the dossier's revisions against its head.
func (s *Service) VerifyChain(ctx context.Context, dossierID string) (ledger.ChainReport, error) {
	snap, err := s.ChainSnapshot(ctx, dossierID)
	if err != nil {
		return ledger.ChainReport{}, err
	}
	return snap.Report, nil
}

// ChainSnapshot reads the dossier, its full ledger and the verification
// report in one pass.
func (s *Service) ChainSnapshot(ctx context.Context, dossierID string) (archive.Snapshot, error) {
	d, err := s.store.GetDossier(ctx, dossierID)
	if err != nil {
		return archive.Snapshot{}, err
	}
	revs, err := s.store.ListRevisions(ctx, dossierID, 0)
	if err != nil {
		return archive.Snapshot{}, fmt.Errorf("verify chain: %w", err)
	}
	return archive.Snapshot{Dossier: d, Revisions: revs, Report: ledger.VerifyChain(revs, d.LastRevisionHash)}, nil
}

func authorize(actor schema.Actor, action rbac.Action) error {
	if err := schema.Check("actor", actor); err != nil {
		return err
	}
	if !rbac.Can(rbac.Normalize(actor.Role), action) {
		return fmt.Errorf("%s may not %s: %w", actor.Role, action, ErrForbidden)
	}
	return nil
}

func entry(dossierID, entityType, entityID, action, summary string, actor schema.Actor) ledger.Entry {
	return ledger.Entry{
		DossierID:   dossierID,
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		DiffSummary: summary,
		ByRole:      actor.Role,
		ByUserID:    actor.UserID,
	}
}

func dedupe(values []string, exclude string) []string {
	seen := map[string]struct{}{exclude: {}}
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
