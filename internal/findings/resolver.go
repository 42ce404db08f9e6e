// Package findings reduces competing verdicts to one effective finding per
// claim.
package findings

import (
	"sort"
	"time"

	"factcheck/api/internal/store"
)

// Candidate is the projection the resolver ranks on.
type Candidate interface {
	store.Finding | store.FindingKey
}

// rank orders findings for one claim: producer class first, then recency,
// then id so the winner never depends on input order.
type rank struct {
	editor    bool
	updatedAt time.Time
	id        string
}

func (r rank) beats(other rank) bool {
	if r.editor != other.editor {
		return r.editor
	}
	if !r.updatedAt.Equal(other.updatedAt) {
		return r.updatedAt.After(other.updatedAt)
	}
	return r.id > other.id
}

func rankOf(producedBy string, updatedAt *time.Time, id string) rank {
	r := rank{editor: producedBy == store.ProducedByEditor, id: id}
	// Missing timestamps rank as the epoch.
	if updatedAt != nil {
		r.updatedAt = *updatedAt
	} else {
		r.updatedAt = time.Unix(0, 0).UTC()
	}
	return r
}

func keyOf[T Candidate](item T) (claimID string, r rank) {
	switch v := any(item).(type) {
	case store.Finding:
		return v.ClaimID, rankOf(v.ProducedBy, v.UpdatedAt, v.ID)
	case store.FindingKey:
		return v.ClaimID, rankOf(v.ProducedBy, v.UpdatedAt, v.ID)
	}
	return "", rank{}
}

// SelectEffective keeps at most one finding per claim. Editor findings beat
// pipeline findings regardless of time; within a producer class the strictly
// later updatedAt wins. The result is sorted by claim id.
func SelectEffective[T Candidate](items []T) []T {
	type selected struct {
		item T
		rank rank
	}
	byClaim := make(map[string]selected, len(items))
	for _, item := range items {
		claimID, r := keyOf(item)
		current, ok := byClaim[claimID]
		if !ok || r.beats(current.rank) {
			byClaim[claimID] = selected{item: item, rank: r}
		}
	}

	claimIDs := make([]string, 0, len(byClaim))
	for claimID := range byClaim {
		claimIDs = append(claimIDs, claimID)
	}
	sort.Strings(claimIDs)

	out := make([]T, 0, len(claimIDs))
	for _, claimID := range claimIDs {
		out = append(out, byClaim[claimID].item)
	}
	return out
}

// ByClaim indexes the effective findings by claim id.
func ByClaim(items []store.Finding) map[string]store.Finding {
	effective := SelectEffective(items)
	out := make(map[string]store.Finding, len(effective))
	for _, f := range effective {
		out[f.ClaimID] = f
	}
	return out
}

// ClaimStatus maps an effective verdict onto the claim status it implies.
func ClaimStatus(verdict string) string {
	switch verdict {
	case "supports":
		return "supported"
	case "refutes":
		return "refuted"
	case "unclear", "mixed":
		return "unclear"
	default:
		return "open"
	}
}
