// Package ledger appends revisions to a dossier's hash-chained audit log and
// verifies recorded chains.
package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"factcheck/api/internal/store"
)

const HashAlgo = "sha256"

// TimestampLayout is the hashed timestamp form: UTC with milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// HashInput is the set of revision fields covered by the digest.
type HashInput struct {
	PrevHash    *string
	DossierID   string
	EntityType  string
	EntityID    string
	Action      string
	DiffSummary string
	ByRole      string
	ByUserID    *string
	Timestamp   time.Time
}

// canonicalPayload fixes the key order of the hashed JSON document.
type canonicalPayload struct {
	PrevHash    *string `json:"prevHash"`
	DossierID   string  `json:"dossierId"`
	EntityType  string  `json:"entityType"`
	EntityID    string  `json:"entityId"`
	Action      string  `json:"action"`
	DiffSummary string  `json:"diffSummary"`
	ByRole      string  `json:"byRole"`
	ByUserID    *string `json:"byUserId,omitempty"`
	Timestamp   string  `json:"timestamp"`
}

// FormatTimestamp renders t the way it is hashed.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format(TimestampLayout)
}

// CanonicalPayload returns the exact bytes that ComputeHash digests.
func CanonicalPayload(in HashInput) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a struct of strings cannot fail.
	_ = enc.Encode(canonicalPayload{
		PrevHash:    in.PrevHash,
		DossierID:   in.DossierID,
		EntityType:  in.EntityType,
		EntityID:    in.EntityID,
		Action:      in.Action,
		DiffSummary: in.DiffSummary,
		ByRole:      in.ByRole,
		ByUserID:    in.ByUserID,
		Timestamp:   FormatTimestamp(in.Timestamp),
	})
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// ComputeHash returns the lowercase hex SHA-256 of the canonical payload.
func ComputeHash(in HashInput) string {
	sum := sha256.Sum256(CanonicalPayload(in))
	return hex.EncodeToString(sum[:])
}

// HashRevision recomputes the digest of a stored revision from its fields.
func HashRevision(rev store.Revision) string {
	return ComputeHash(HashInput{
		PrevHash:    rev.PrevHash,
		DossierID:   rev.DossierID,
		EntityType:  rev.EntityType,
		EntityID:    rev.EntityID,
		Action:      rev.Action,
		DiffSummary: rev.DiffSummary,
		ByRole:      rev.ByRole,
		ByUserID:    rev.ByUserID,
		Timestamp:   rev.Timestamp,
	})
}
