package dossier

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"factcheck/api/internal/findings"
	"factcheck/api/internal/ledger"
	"factcheck/api/internal/store"
)

// ComputeCounts derives the denormalized counts from the entity store.
// Findings count effective findings only; edges count active rows.
func (s *Service) ComputeCounts(ctx context.Context, dossierID string) (store.Counts, error) {
	var counts store.Counts
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.store.CountClaims(gctx, dossierID)
		counts.Claims = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountSources(gctx, dossierID)
		counts.Sources = n
		return err
	})
	g.Go(func() error {
		keys, err := s.store.ListFindingKeys(gctx, dossierID)
		if err != nil {
			return err
		}
		counts.Findings = len(findings.SelectEffective(keys))
		return nil
	})
	g.Go(func() error {
		n, err := s.store.CountActiveEdges(gctx, dossierID)
		counts.Edges = n
		return err
	})
	g.Go(func() error {
		n, err := s.store.CountOpenQuestions(gctx, dossierID)
		counts.OpenQuestions = n
		return err
	})

	if err := g.Wait(); err != nil {
		return store.Counts{}, fmt.Errorf("compute counts for %s: %w", dossierID, err)
	}
	return counts, nil
}

// UpdateCounts recomputes the counts and, only when a field changed,
// persists them and appends a system_update revision carrying reason.
func (s *Service) UpdateCounts(ctx context.Context, dossierID, reason string) (store.Counts, error) {
	return s.updateCounts(ctx, dossierID, reason, false)
}

// updateCounts only logs a failed revision when bestEffort is set.
func (s *Service) updateCounts(ctx context.Context, dossierID, reason string, bestEffort bool) (store.Counts, error) {
	d, err := s.store.GetDossier(ctx, dossierID)
	if err != nil {
		return store.Counts{}, fmt.Errorf("update counts: %w", err)
	}
	counts, err := s.ComputeCounts(ctx, dossierID)
	if err != nil {
		return store.Counts{}, err
	}
	if counts == d.Counts {
		return counts, nil
	}
	if err := s.store.UpdateDossierCounts(ctx, dossierID, counts); err != nil {
		return store.Counts{}, fmt.Errorf("update counts: %w", err)
	}
	if reason == "" {
		reason = "counts recomputed"
	}
	e := ledger.Entry{
		DossierID:   dossierID,
		EntityType:  store.EntityDossier,
		EntityID:    dossierID,
		Action:      store.ActionSystemUpdate,
		DiffSummary: fmt.Sprintf("%s: %s", reason, describeCounts(d.Counts, counts)),
		ByRole:      store.RoleSystem,
	}
	if bestEffort {
		s.bestEffortRevision(ctx, "counts", e)
		return counts, nil
	}
	if _, err := s.writer.Append(ctx, e); err != nil {
		return counts, fmt.Errorf("update counts: %w", err)
	}
	return counts, nil
}

// refreshCounts runs after a committed mutation, so a failure is logged
// rather than returned.
func (s *Service) refreshCounts(ctx context.Context, dossierID, reason string) {
	if _, err := s.updateCounts(ctx, dossierID, reason, true); err != nil {
		log.Printf("counts: refresh for dossier %s after %q failed: %v", dossierID, reason, err)
	}
}

func describeCounts(before, after store.Counts) string {
	fields := []struct {
		name     string
		old, new int
	}{
		{"claims", before.Claims, after.Claims},
		{"sources", before.Sources, after.Sources},
		{"findings", before.Findings, after.Findings},
		{"edges", before.Edges, after.Edges},
		{"openQuestions", before.OpenQuestions, after.OpenQuestions},
	}
	out := ""
	for _, f := range fields {
		if f.old == f.new {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%s %d→%d", f.name, f.old, f.new)
	}
	return out
}
