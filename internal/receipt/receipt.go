// Package receipt issues signed head receipts. A receipt attests that a
// dossier's chain head was a given hash at a given sequence number; checking
// it later against the stored revisions shows whether that history is still
// part of the ledger.
package receipt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"factcheck/api/internal/ledger"
	"factcheck/api/internal/store"
)

type Claims struct {
	DossierID string `json:"dossierId"`
	Head      string `json:"head"`
	Seq       int64  `json:"seq"`
	IssuedAt  int64  `json:"iat"`
	JTI       string `json:"jti"`
}

var (
	ErrInvalidReceipt = errors.New("invalid receipt")
	ErrNoHead         = errors.New("dossier has no chain head")
	ErrNoSecret       = errors.New("receipt secret not configured")
)

// IssueForHead signs the current head of d.
func IssueForHead(secret []byte, d store.Dossier, now time.Time) (string, Claims, error) {
	if len(secret) == 0 {
		return "", Claims{}, ErrNoSecret
	}
	if d.LastRevisionHash == nil {
		return "", Claims{}, fmt.Errorf("issue receipt for %s: %w", d.DossierID, ErrNoHead)
	}
	claims := Claims{
		DossierID: d.DossierID,
		Head:      *d.LastRevisionHash,
		Seq:       d.RevisionSeq,
		IssuedAt:  now.Unix(),
		JTI:       uuid.NewString(),
	}
	token, err := Issue(secret, claims)
	return token, claims, err
}

func Issue(secret []byte, claims Claims) (string, error) {
	payloadBytes, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return payload + "." + sign(secret, payload), nil
}

func Parse(secret []byte, token string) (Claims, error) {
	if len(secret) == 0 {
		return Claims{}, ErrNoSecret
	}
	payload, signature, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || strings.Contains(signature, ".") {
		return Claims{}, ErrInvalidReceipt
	}
	if !hmac.Equal([]byte(signature), []byte(sign(secret, payload))) {
		return Claims{}, ErrInvalidReceipt
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidReceipt
	}
	var claims Claims
	if err := json.Unmarshal(decoded, &claims); err != nil {
		return Claims{}, ErrInvalidReceipt
	}
	if claims.DossierID == "" || claims.Head == "" || claims.JTI == "" {
		return Claims{}, ErrInvalidReceipt
	}
	return claims, nil
}

// Verdict is the outcome of checking a receipt against the current ledger.
// Present is true when a revision with the attested hash is still stored and
// Position is its chain-order index, or -1. Holds is Present on a chain that
// still verifies.
type Verdict struct {
	Claims   Claims             `json:"receipt"`
	Present  bool               `json:"present"`
	Position int                `json:"position"`
	Chain    ledger.ChainReport `json:"chain"`
	Holds    bool               `json:"holds"`
}

// Check looks for the attested head among revisions.
func Check(claims Claims, revisions []store.Revision, report ledger.ChainReport) Verdict {
	v := Verdict{Claims: claims, Position: -1, Chain: report}
	for i, rev := range ledger.ChainOrder(revisions) {
		if rev.Hash != nil && *rev.Hash == claims.Head {
			v.Present = true
			v.Position = i
			break
		}
	}
	v.Holds = v.Present && report.Valid
	return v
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
