package search

import (
	"crypto/sha256"
	"encoding/hex"

	"factcheck/api/internal/store"
)

// documentKey builds a Meilisearch-safe primary key from a dossier-scoped id.
func documentKey(kind ResultType, dossierID, id string) string {
	sum := sha256.Sum256([]byte(string(kind) + "\x00" + dossierID + "\x00" + id))
	return hex.EncodeToString(sum[:16])
}

func ClaimFromStore(c store.Claim) ClaimRecord {
	return ClaimRecord{
		Key:       documentKey(ResultClaim, c.DossierID, c.ClaimID),
		ID:        c.ClaimID,
		DossierID: c.DossierID,
		Text:      c.Text,
		Kind:      c.Kind,
		Status:    c.Status,
	}
}

func QuestionFromStore(q store.OpenQuestion) QuestionRecord {
	return QuestionRecord{
		Key:            documentKey(ResultQuestion, q.DossierID, q.QuestionID),
		ID:             q.QuestionID,
		DossierID:      q.DossierID,
		Text:           q.Text,
		Status:         q.Status,
		Responsibility: q.Responsibility,
	}
}

func SourceFromStore(s store.Source) SourceRecord {
	return SourceRecord{
		Key:       documentKey(ResultSource, s.DossierID, s.ID),
		ID:        s.ID,
		DossierID: s.DossierID,
		URL:       s.URL,
		Title:     s.Title,
		Publisher: s.Publisher,
		Snippet:   s.Snippet,
		Type:      s.Type,
	}
}
