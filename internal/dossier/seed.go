package dossier

import (
	"context"
	"fmt"
	"strings"

	"factcheck/api/internal/rbac"
	"factcheck/api/internal/schema"
	"factcheck/api/internal/store"
	"factcheck/api/internal/util"
)

const seedCountsReason = "counts recomputed after analysis seeding"

// SeedResult summarizes one seeding run.
type SeedResult struct {
	ClaimsInserted    int          `json:"claimsInserted"`
	ClaimsUpdated     int          `json:"claimsUpdated"`
	QuestionsInserted int          `json:"questionsInserted"`
	QuestionsUpdated  int          `json:"questionsUpdated"`
	Counts            store.Counts `json:"counts"`
}

// SeedFromAnalysis upserts the claims and open questions of one analysis run.
// Ids missing from the input are derived from dossier, text and position, so
// rerunning the same analysis updates rows instead of duplicating them. Only
// inserted rows get a create revision; a failed revision is logged and the
// batch continues.
func (s *Service) SeedFromAnalysis(ctx context.Context, dossierID string, in schema.Analysis) (SeedResult, error) {
	if err := schema.Check("analysis", in); err != nil {
		return SeedResult{}, err
	}
	if !rbac.Can(rbac.Normalize(in.CreatedByRole), rbac.ActionSeed) {
		return SeedResult{}, fmt.Errorf("%s may not seed: %w", in.CreatedByRole, ErrForbidden)
	}
	if _, err := s.store.GetDossier(ctx, dossierID); err != nil {
		return SeedResult{}, fmt.Errorf("seed dossier %s: %w", dossierID, err)
	}
	actor := schema.Actor{Role: in.CreatedByRole}

	var result SeedResult
	claims := make([]store.Claim, 0, len(in.Claims))
	for i, c := range in.Claims {
		claim := claimFromInput(dossierID, c, i, in.CreatedByRole)
		inserted, err := s.store.UpsertClaim(ctx, claim)
		if err != nil {
			return result, fmt.Errorf("seed claim %s: %w", claim.ClaimID, err)
		}
		claims = append(claims, claim)
		if !inserted {
			result.ClaimsUpdated++
			continue
		}
		result.ClaimsInserted++
		s.bestEffortRevision(ctx, "seed", entry(dossierID, store.EntityClaim, claim.ClaimID, store.ActionCreate,
			"claim seeded from analysis: "+claim.Text, actor))
	}

	questions := make([]store.OpenQuestion, 0, len(in.OpenQuestions))
	for i, q := range in.OpenQuestions {
		question := questionFromInput(dossierID, q, i, in.CreatedByRole)
		inserted, err := s.store.UpsertOpenQuestion(ctx, question)
		if err != nil {
			return result, fmt.Errorf("seed open question %s: %w", question.QuestionID, err)
		}
		questions = append(questions, question)
		if !inserted {
			result.QuestionsUpdated++
			continue
		}
		result.QuestionsInserted++
		s.bestEffortRevision(ctx, "seed", entry(dossierID, store.EntityOpenQuestion, question.QuestionID, store.ActionCreate,
			"open question seeded from analysis: "+question.Text, actor))
	}

	counts, err := s.updateCounts(ctx, dossierID, seedCountsReason, true)
	if err != nil {
		return result, err
	}
	result.Counts = counts

	if s.index != nil {
		s.index.IndexClaims(claims)
		s.index.IndexQuestions(questions)
	}
	return result, nil
}

func claimFromInput(dossierID string, in schema.ClaimInput, index int, role string) store.Claim {
	id := strings.TrimSpace(in.ClaimID)
	if id == "" {
		id = util.DeterministicID("clm", dossierID, in.Text, index)
	}
	claim := store.Claim{
		DossierID:     dossierID,
		ClaimID:       id,
		Text:          strings.TrimSpace(in.Text),
		Kind:          in.Kind,
		Status:        in.Status,
		CreatedByRole: role,
	}
	if claim.Kind == "" {
		claim.Kind = "fact"
	}
	if claim.Status == "" {
		claim.Status = "open"
	}
	if in.EvidenceQuality != nil {
		claim.EvidenceQuality = &store.EvidenceQuality{
			Score:   in.EvidenceQuality.Score,
			Reasons: append([]string(nil), in.EvidenceQuality.Reasons...),
		}
	}
	return claim
}

func questionFromInput(dossierID string, in schema.OpenQuestionInput, index int, role string) store.OpenQuestion {
	id := strings.TrimSpace(in.QuestionID)
	if id == "" {
		id = util.DeterministicID("q", dossierID, in.Text, index)
	}
	q := store.OpenQuestion{
		DossierID:         dossierID,
		QuestionID:        id,
		Text:              strings.TrimSpace(in.Text),
		Status:            in.Status,
		Responsibility:    in.Responsibility,
		RelatedClaimIDs:   in.RelatedClaimIDs,
		RelatedSourceIDs:  in.RelatedSourceIDs,
		RelatedFindingIDs: in.RelatedFindingIDs,
		CreatedByRole:     role,
	}
	if q.Status == "" {
		q.Status = "open"
	}
	return q
}
