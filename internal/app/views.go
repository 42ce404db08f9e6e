package app

import (
	"time"

	"factcheck/api/internal/dossier"
	"factcheck/api/internal/ledger"
	"factcheck/api/internal/store"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func dossierView(d store.Dossier) map[string]any {
	aliases := d.StatementAliases
	if aliases == nil {
		aliases = []string{}
	}
	return map[string]any{
		"id":               d.DossierID,
		"storageId":        d.ID,
		"statementId":      d.StatementID,
		"statementAliases": aliases,
		"title":            d.Title,
		"status":           d.Status,
		"counts":           d.Counts,
		"lastRevisionHash": d.LastRevisionHash,
		"lastRevisionAt":   formatOptionalTime(d.LastRevisionAt),
		"revisionSeq":      d.RevisionSeq,
		"createdAt":        formatTime(d.CreatedAt),
		"updatedAt":        formatTime(d.UpdatedAt),
	}
}

func detailView(d dossier.Detail) map[string]any {
	claims := make([]map[string]any, 0, len(d.Claims))
	for _, c := range d.Claims {
		claims = append(claims, map[string]any{
			"claimId":         c.ClaimID,
			"text":            c.Text,
			"kind":            c.Kind,
			"status":          c.Status,
			"evidenceQuality": c.EvidenceQuality,
			"createdByRole":   c.CreatedByRole,
			"updatedAt":       formatTime(c.UpdatedAt),
		})
	}
	sources := make([]map[string]any, 0, len(d.Sources))
	for _, s := range d.Sources {
		sources = append(sources, map[string]any{
			"id":                 s.ID,
			"url":                s.URL,
			"title":              s.Title,
			"publisher":          s.Publisher,
			"type":               s.Type,
			"publishedAt":        formatOptionalTime(s.PublishedAt),
			"retrievedAt":        formatOptionalTime(s.RetrievedAt),
			"snippet":            s.Snippet,
			"conflictOfInterest": s.ConflictOfInterest,
		})
	}
	findingViews := make([]map[string]any, 0, len(d.Findings))
	for _, f := range d.Findings {
		findingViews = append(findingViews, map[string]any{
			"id":         f.ID,
			"claimId":    f.ClaimID,
			"verdict":    f.Verdict,
			"rationale":  f.Rationale,
			"citations":  f.Citations,
			"producedBy": f.ProducedBy,
			"jobId":      f.JobID,
			"updatedAt":  formatOptionalTime(f.UpdatedAt),
		})
	}
	edges := make([]map[string]any, 0, len(d.Edges))
	for _, e := range d.Edges {
		edges = append(edges, map[string]any{
			"id":       e.ID,
			"fromType": e.FromType,
			"fromId":   e.FromID,
			"toType":   e.ToType,
			"toId":     e.ToID,
			"rel":      e.Rel,
			"weight":   e.Weight,
		})
	}
	questions := make([]map[string]any, 0, len(d.OpenQuestions))
	for _, q := range d.OpenQuestions {
		questions = append(questions, map[string]any{
			"questionId":        q.QuestionID,
			"text":              q.Text,
			"status":            q.Status,
			"responsibility":    q.Responsibility,
			"relatedClaimIds":   q.RelatedClaimIDs,
			"relatedSourceIds":  q.RelatedSourceIDs,
			"relatedFindingIds": q.RelatedFindingIDs,
		})
	}
	return map[string]any{
		"dossier":       dossierView(d.Dossier),
		"claims":        claims,
		"sources":       sources,
		"findings":      findingViews,
		"edges":         edges,
		"openQuestions": questions,
	}
}

func revisionView(r store.Revision) map[string]any {
	return map[string]any{
		"revId":       r.RevID,
		"entityType":  r.EntityType,
		"entityId":    r.EntityID,
		"action":      r.Action,
		"diffSummary": r.DiffSummary,
		"byRole":      r.ByRole,
		"byUserId":    r.ByUserID,
		"timestamp":   ledger.FormatTimestamp(r.Timestamp),
		"prevHash":    r.PrevHash,
		"hash":        r.Hash,
		"hashAlgo":    r.HashAlgo,
	}
}

func disputeView(d store.Dispute) map[string]any {
	return map[string]any{
		"id":         d.ID,
		"entityType": d.EntityType,
		"entityId":   d.EntityID,
		"reason":     d.Reason,
		"status":     d.Status,
		"byUserId":   d.ByUserID,
		"resolution": d.Resolution,
		"createdAt":  formatTime(d.CreatedAt),
		"updatedAt":  formatTime(d.UpdatedAt),
	}
}
