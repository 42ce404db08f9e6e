// Package archive exports verified revision chains as JSON Lines snapshots
// to S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"factcheck/api/internal/ledger"
	"factcheck/api/internal/store"
)

// Header is the first line of a snapshot.
type Header struct {
	DossierID   string             `json:"dossierId"`
	StatementID string             `json:"statementId"`
	Head        *string            `json:"head"`
	RevisionSeq int64              `json:"revisionSeq"`
	Revisions   int                `json:"revisions"`
	Chain       ledger.ChainReport `json:"chain"`
	ExportedAt  string             `json:"exportedAt"`
}

type revisionLine struct {
	RevID       string  `json:"revId"`
	DossierID   string  `json:"dossierId"`
	EntityType  string  `json:"entityType"`
	EntityID    string  `json:"entityId"`
	Action      string  `json:"action"`
	DiffSummary string  `json:"diffSummary"`
	ByRole      string  `json:"byRole"`
	ByUserID    *string `json:"byUserId,omitempty"`
	Timestamp   string  `json:"timestamp"`
	PrevHash    *string `json:"prevHash"`
	Hash        *string `json:"hash,omitempty"`
	HashAlgo    *string `json:"hashAlgo,omitempty"`
}

// Snapshot is one dossier chain ready for export.
type Snapshot struct {
	Dossier   store.Dossier
	Revisions []store.Revision
	Report    ledger.ChainReport
}

// ObjectKey names a snapshot by dossier, sequence and head so repeated
// exports of an unchanged chain overwrite the same object.
func ObjectKey(d store.Dossier) string {
	head := "unchained"
	if d.LastRevisionHash != nil && len(*d.LastRevisionHash) >= 12 {
		head = (*d.LastRevisionHash)[:12]
	}
	return fmt.Sprintf("dossiers/%s/chain-%010d-%s.jsonl", d.DossierID, d.RevisionSeq, head)
}

// EncodeChain writes the header line followed by one line per revision.
func EncodeChain(w io.Writer, snap Snapshot, exportedAt time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	header := Header{
		DossierID:   snap.Dossier.DossierID,
		StatementID: snap.Dossier.StatementID,
		Head:        snap.Dossier.LastRevisionHash,
		RevisionSeq: snap.Dossier.RevisionSeq,
		Revisions:   len(snap.Revisions),
		Chain:       snap.Report,
		ExportedAt:  exportedAt.UTC().Format(time.RFC3339),
	}
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("encode snapshot header: %w", err)
	}
	for _, rev := range snap.Revisions {
		line := revisionLine{
			RevID:       rev.RevID,
			DossierID:   rev.DossierID,
			EntityType:  rev.EntityType,
			EntityID:    rev.EntityID,
			Action:      rev.Action,
			DiffSummary: rev.DiffSummary,
			ByRole:      rev.ByRole,
			ByUserID:    rev.ByUserID,
			Timestamp:   ledger.FormatTimestamp(rev.Timestamp),
			PrevHash:    rev.PrevHash,
			Hash:        rev.Hash,
			HashAlgo:    rev.HashAlgo,
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("encode revision %s: %w", rev.RevID, err)
		}
	}
	return nil
}

// Uploader stores one object.
type Uploader interface {
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// Upload encodes snap and stores it under ObjectKey, returning the key.
func Upload(ctx context.Context, u Uploader, snap Snapshot, now time.Time) (string, error) {
	var buf bytes.Buffer
	if err := EncodeChain(&buf, snap, now); err != nil {
		return "", err
	}
	key := ObjectKey(snap.Dossier)
	if err := u.PutObject(ctx, key, &buf, int64(buf.Len()), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}
