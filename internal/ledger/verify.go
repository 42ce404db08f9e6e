package ledger

import "factcheck/api/internal/store"

// ChainReport is the outcome of replaying a dossier's revisions.
type ChainReport struct {
	Valid       bool    `json:"valid"`
	// BreakIndex is the chain-order index of the first revision that fails
	// to link or rehash, or -1.
	BreakIndex  int     `json:"breakIndex"`
	Reason      string  `json:"reason,omitempty"`
	Checked     int     `json:"checked"`
	Unchained   int     `json:"unchained"`
	HeadMatches bool    `json:"headMatches"`
	LastHash    *string `json:"lastHash,omitempty"`
}

// VerifyChain replays revisions in stored order (timestamp, then insertion)
// and checks every link and digest, then that the final digest is the head.
// Revisions written with chaining disabled carry no hash and are skipped.
func VerifyChain(revisions []store.Revision, head *string) ChainReport {
	report := ChainReport{BreakIndex: -1}
	var prev *string

	for i, rev := range ChainOrder(revisions) {
		if rev.Hash == nil {
			report.Unchained++
			continue
		}
		report.Checked++

		if rev.HashAlgo != nil && *rev.HashAlgo != HashAlgo {
			return broken(report, i, "unsupported hash algorithm "+*rev.HashAlgo)
		}
		if !equalHash(rev.PrevHash, prev) {
			return broken(report, i, "prevHash does not link to the preceding revision")
		}
		if HashRevision(rev) != *rev.Hash {
			return broken(report, i, "recomputed hash does not match stored hash")
		}
		hash := *rev.Hash
		prev = &hash
	}

	report.LastHash = prev
	report.HeadMatches = equalHash(prev, head)
	if !report.HeadMatches {
		report.Reason = "dossier head does not match the final revision hash"
		chainVerifications.WithLabelValues("head_mismatch").Inc()
		return report
	}
	report.Valid = true
	chainVerifications.WithLabelValues("valid").Inc()
	return report
}

// ChainOrder reorders revisions sharing a timestamp so each follows the one
// it links to. Two appenders in the same millisecond may insert in the
// opposite order to their head CAS.
func ChainOrder(revisions []store.Revision) []store.Revision {
	out := make([]store.Revision, 0, len(revisions))
	var prev *string
	for i := 0; i < len(revisions); {
		j := i + 1
		for j < len(revisions) && revisions[j].Timestamp.Equal(revisions[i].Timestamp) {
			j++
		}
		group := append([]store.Revision(nil), revisions[i:j]...)
		for len(group) > 0 {
			pick := 0
			for k, rev := range group {
				if rev.Hash != nil && equalHash(rev.PrevHash, prev) {
					pick = k
					break
				}
			}
			rev := group[pick]
			group = append(group[:pick], group[pick+1:]...)
			out = append(out, rev)
			if rev.Hash != nil {
				hash := *rev.Hash
				prev = &hash
			}
		}
		i = j
	}
	return out
}

func broken(report ChainReport, index int, reason string) ChainReport {
	report.BreakIndex = index
	report.Reason = reason
	chainVerifications.WithLabelValues("broken").Inc()
	return report
}

func equalHash(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
