package dossier

import (
	"context"
	"fmt"
	"strings"

	"factcheck/api/internal/findings"
	"factcheck/api/internal/rbac"
	"factcheck/api/internal/schema"
	"factcheck/api/internal/store"
	"factcheck/api/internal/util"
)

// AddSource stores a cited reference. A second source with the same
// canonical URL in the dossier fails with store.ErrDuplicateKey.
func (s *Service) AddSource(ctx context.Context, dossierID string, in schema.SourceInput, actor schema.Actor) (store.Source, error) {
	if err := authorize(actor, rbac.ActionSeed); err != nil {
		return store.Source{}, err
	}
	if err := schema.Check("source", in); err != nil {
		return store.Source{}, err
	}
	src, err := s.store.InsertSource(ctx, store.Source{
		DossierID:          dossierID,
		URL:                strings.TrimSpace(in.URL),
		CanonicalURLHash:   util.CanonicalURLHash(in.URL),
		Title:              in.Title,
		Publisher:          in.Publisher,
		Type:               defaultString(in.Type, "other"),
		PublishedAt:        in.PublishedAt,
		RetrievedAt:        in.RetrievedAt,
		Snippet:            in.Snippet,
		ConflictOfInterest: in.ConflictOfInterest,
	})
	if err != nil {
		return store.Source{}, fmt.Errorf("add source: %w", err)
	}
	s.bestEffortRevision(ctx, "source", entry(dossierID, store.EntitySource, src.ID, store.ActionCreate,
		"source added: "+src.URL, actor))
	s.refreshCounts(ctx, dossierID, "source added")
	if s.index != nil {
		s.index.IndexSource(src)
	}
	return src, nil
}

// UpsertFinding writes the finding for (claim, producer). Editor findings
// need edit rights; pipeline findings need seed rights.
func (s *Service) UpsertFinding(ctx context.Context, dossierID string, in schema.FindingInput, actor schema.Actor) (store.Finding, error) {
	action := rbac.ActionSeed
	if in.ProducedBy == store.ProducedByEditor {
		action = rbac.ActionEdit
	}
	if err := authorize(actor, action); err != nil {
		return store.Finding{}, err
	}
	if err := schema.Check("finding", in); err != nil {
		return store.Finding{}, err
	}
	if _, err := s.store.GetClaim(ctx, dossierID, in.ClaimID); err != nil {
		return store.Finding{}, fmt.Errorf("upsert finding for claim %s: %w", in.ClaimID, err)
	}

	now := s.now()
	f := store.Finding{
		DossierID:  dossierID,
		ClaimID:    in.ClaimID,
		Verdict:    in.Verdict,
		Rationale:  in.Rationale,
		ProducedBy: in.ProducedBy,
		JobID:      in.JobID,
		UpdatedAt:  &now,
	}
	for _, c := range in.Citations {
		f.Citations = append(f.Citations, store.Citation{SourceID: c.SourceID, Quote: c.Quote, Locator: c.Locator})
	}
	stored, inserted, err := s.store.UpsertFinding(ctx, f)
	if err != nil {
		return store.Finding{}, fmt.Errorf("upsert finding: %w", err)
	}

	revAction := store.ActionUpdate
	if inserted {
		revAction = store.ActionCreate
	}
	s.bestEffortRevision(ctx, "finding", entry(dossierID, store.EntityFinding, in.ClaimID+":"+in.ProducedBy, revAction,
		fmt.Sprintf("%s finding on claim %s: %s", in.ProducedBy, in.ClaimID, in.Verdict), actor))
	s.refreshCounts(ctx, dossierID, "finding "+string(revAction))
	return stored, nil
}

// EffectiveFindings returns one finding per claim.
func (s *Service) EffectiveFindings(ctx context.Context, dossierID string) ([]store.Finding, error) {
	all, err := s.store.ListFindings(ctx, dossierID)
	if err != nil {
		return nil, fmt.Errorf("effective findings: %w", err)
	}
	return findings.SelectEffective(all), nil
}

// AddEdge links two nodes. A repeated (from, to, rel) triple fails with
// store.ErrDuplicateKey, including when the earlier edge is archived.
func (s *Service) AddEdge(ctx context.Context, dossierID string, in schema.EdgeInput, actor schema.Actor) (store.Edge, error) {
	if err := authorize(actor, rbac.ActionSeed); err != nil {
		return store.Edge{}, err
	}
	if err := schema.Check("edge", in); err != nil {
		return store.Edge{}, err
	}
	e, err := s.store.InsertEdge(ctx, store.Edge{
		DossierID:     dossierID,
		FromType:      in.FromType,
		FromID:        in.FromID,
		ToType:        in.ToType,
		ToID:          in.ToID,
		Rel:           in.Rel,
		Weight:        in.Weight,
		CreatedByRole: actor.Role,
	})
	if err != nil {
		return store.Edge{}, fmt.Errorf("add edge: %w", err)
	}
	s.bestEffortRevision(ctx, "edge", entry(dossierID, store.EntityEdge, e.ID, store.ActionCreate,
		fmt.Sprintf("%s %s %s %s", in.FromType, in.FromID, in.Rel, in.ToID), actor))
	s.refreshCounts(ctx, dossierID, "edge added")
	return e, nil
}

// ArchiveEdge soft-deletes an edge. The row stays, so the revision that
// created it remains traceable.
func (s *Service) ArchiveEdge(ctx context.Context, dossierID, edgeID, reason string, actor schema.Actor) error {
	if err := authorize(actor, rbac.ActionEdit); err != nil {
		return err
	}
	archived, err := s.store.ArchiveEdge(ctx, dossierID, edgeID, reason, s.now())
	if err != nil {
		return err
	}
	if !archived {
		return fmt.Errorf("archive edge %s: %w", edgeID, store.ErrNotFound)
	}
	summary := "edge archived"
	if reason != "" {
		summary += ": " + reason
	}
	s.bestEffortRevision(ctx, "edge", entry(dossierID, store.EntityEdge, edgeID, store.ActionDelete, summary, actor))
	s.refreshCounts(ctx, dossierID, "edge archived")
	return nil
}

// SetClaimStatus sets a claim's status by hand.
func (s *Service) SetClaimStatus(ctx context.Context, dossierID, claimID, status string, actor schema.Actor) error {
	if err := authorize(actor, rbac.ActionEdit); err != nil {
		return err
	}
	if err := checkEnum("claim", "status", "claimstatus", status); err != nil {
		return err
	}
	claim, err := s.store.GetClaim(ctx, dossierID, claimID)
	if err != nil {
		return fmt.Errorf("set claim status: %w", err)
	}
	if claim.Status == status {
		return nil
	}
	if _, err := s.store.UpdateClaimStatus(ctx, dossierID, claimID, status); err != nil {
		return fmt.Errorf("set claim status: %w", err)
	}
	s.bestEffortRevision(ctx, "claim", entry(dossierID, store.EntityClaim, claimID, store.ActionStatusChange,
		fmt.Sprintf("status %s → %s", claim.Status, status), actor))
	return nil
}

// SyncClaimStatuses derives each claim's status from its effective finding
// and returns how many claims changed. Claims without findings are left
// alone.
func (s *Service) SyncClaimStatuses(ctx context.Context, dossierID string) (int, error) {
	claims, err := s.store.ListClaims(ctx, dossierID)
	if err != nil {
		return 0, fmt.Errorf("sync claim statuses: %w", err)
	}
	all, err := s.store.ListFindings(ctx, dossierID)
	if err != nil {
		return 0, fmt.Errorf("sync claim statuses: %w", err)
	}
	effective := findings.ByClaim(all)
	system := schema.Actor{Role: store.RoleSystem}

	changed := 0
	for _, claim := range claims {
		f, ok := effective[claim.ClaimID]
		if !ok {
			continue
		}
		status := findings.ClaimStatus(f.Verdict)
		if status == claim.Status {
			continue
		}
		updated, err := s.store.UpdateClaimStatus(ctx, dossierID, claim.ClaimID, status)
		if err != nil {
			return changed, fmt.Errorf("sync claim statuses: %w", err)
		}
		if !updated {
			continue
		}
		changed++
		s.bestEffortRevision(ctx, "claim", entry(dossierID, store.EntityClaim, claim.ClaimID, store.ActionStatusChange,
			fmt.Sprintf("status %s → %s from %s finding", claim.Status, status, f.ProducedBy), system))
	}
	return changed, nil
}

// SetDossierStatus moves the dossier between draft, active and archived.
func (s *Service) SetDossierStatus(ctx context.Context, dossierID, status string, actor schema.Actor) error {
	action := rbac.ActionEdit
	if status == store.DossierArchived {
		action = rbac.ActionAdmin
	}
	if err := authorize(actor, action); err != nil {
		return err
	}
	if err := checkEnum("dossier", "status", "dossierstatus", status); err != nil {
		return err
	}
	d, err := s.store.GetDossier(ctx, dossierID)
	if err != nil {
		return fmt.Errorf("set dossier status: %w", err)
	}
	if d.Status == status {
		return nil
	}
	if err := s.store.UpdateDossierStatus(ctx, dossierID, status); err != nil {
		return fmt.Errorf("set dossier status: %w", err)
	}
	s.bestEffortRevision(ctx, "dossier", entry(dossierID, store.EntityDossier, dossierID, store.ActionStatusChange,
		fmt.Sprintf("status %s → %s", d.Status, status), actor))
	return nil
}

func checkEnum(kind, field, tag, value string) error {
	for _, allowed := range schema.Allowed(tag) {
		if value == allowed {
			return nil
		}
	}
	return &schema.ValidationError{Kind: kind, Fields: []schema.FieldError{{Field: field, Rule: tag}}}
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
