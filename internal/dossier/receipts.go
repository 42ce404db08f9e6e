package dossier

import (
	"context"
	"errors"
	"fmt"

	"factcheck/api/internal/receipt"
	"factcheck/api/internal/schema"
)

// IssueReceipt signs the dossier's current chain head.
func (s *Service) IssueReceipt(ctx context.Context, dossierID string) (string, receipt.Claims, error) {
	d, err := s.store.GetDossier(ctx, dossierID)
	if err != nil {
		return "", receipt.Claims{}, err
	}
	return receipt.IssueForHead(s.receiptSecret, d, s.now())
}

// CheckReceipt verifies a receipt's signature and reports whether the head it
// attests is still part of a valid chain.
func (s *Service) CheckReceipt(ctx context.Context, token string) (receipt.Verdict, error) {
	claims, err := receipt.Parse(s.receiptSecret, token)
	if err != nil {
		if errors.Is(err, receipt.ErrInvalidReceipt) {
			return receipt.Verdict{}, &schema.ValidationError{Kind: "receipt", Fields: []schema.FieldError{{Field: "receipt", Rule: "signature"}}}
		}
		return receipt.Verdict{}, err
	}
	snap, err := s.ChainSnapshot(ctx, claims.DossierID)
	if err != nil {
		return receipt.Verdict{}, fmt.Errorf("check receipt: %w", err)
	}
	return receipt.Check(claims, snap.Revisions, snap.Report), nil
}
