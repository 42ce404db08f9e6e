package dossier

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"factcheck/api/internal/findings"
	"factcheck/api/internal/store"
)

// Detail is a dossier with its entities as readers see them: effective
// findings only and active edges only.
type Detail struct {
	Dossier       store.Dossier
	Claims        []store.Claim
	Sources       []store.Source
	Findings      []store.Finding
	Edges         []store.Edge
	OpenQuestions []store.OpenQuestion
}

func (s *Service) Detail(ctx context.Context, id string) (Detail, error) {
	d, err := s.FindByAnyID(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	out := Detail{Dossier: d}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.Claims, err = s.store.ListClaims(gctx, d.DossierID)
		return err
	})
	g.Go(func() (err error) {
		out.Sources, err = s.store.ListSources(gctx, d.DossierID)
		return err
	})
	g.Go(func() error {
		all, err := s.store.ListFindings(gctx, d.DossierID)
		if err != nil {
			return err
		}
		out.Findings = findings.SelectEffective(all)
		return nil
	})
	g.Go(func() (err error) {
		out.Edges, err = s.store.ListEdges(gctx, d.DossierID, false)
		return err
	})
	g.Go(func() (err error) {
		out.OpenQuestions, err = s.store.ListOpenQuestions(gctx, d.DossierID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Detail{}, fmt.Errorf("dossier detail %s: %w", d.DossierID, err)
	}
	return out, nil
}
