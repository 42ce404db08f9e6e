package dossier

import (
	"context"
	"fmt"

	"factcheck/api/internal/rbac"
	"factcheck/api/internal/schema"
	"factcheck/api/internal/store"
	"factcheck/api/internal/util"
)

// OpenDispute records an objection against an entity. Disputes are outside
// the hash chain; their lifecycle still shows up as revisions.
func (s *Service) OpenDispute(ctx context.Context, dossierID string, in schema.DisputeInput, actor schema.Actor) (store.Dispute, error) {
	if err := authorize(actor, rbac.ActionDispute); err != nil {
		return store.Dispute{}, err
	}
	if err := schema.Check("dispute", in); err != nil {
		return store.Dispute{}, err
	}
	d, err := s.store.InsertDispute(ctx, store.Dispute{
		ID:         util.NewID("dsp"),
		DossierID:  dossierID,
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		Reason:     in.Reason,
		ByUserID:   actor.UserID,
	})
	if err != nil {
		return store.Dispute{}, fmt.Errorf("open dispute: %w", err)
	}
	s.bestEffortRevision(ctx, "dispute", entry(dossierID, store.EntityDispute, d.ID, store.ActionCreate,
		fmt.Sprintf("dispute opened on %s %s", in.EntityType, in.EntityID), actor))
	return d, nil
}

// ResolveDispute closes an open dispute as resolved or rejected. Closing a
// closed dispute fails with store.ErrInvalidTransition.
func (s *Service) ResolveDispute(ctx context.Context, dossierID, disputeID, status, resolution string, actor schema.Actor) (store.Dispute, error) {
	if err := authorize(actor, rbac.ActionDecide); err != nil {
		return store.Dispute{}, err
	}
	if status != store.DisputeResolved && status != store.DisputeRejected {
		return store.Dispute{}, &schema.ValidationError{Kind: "dispute", Fields: []schema.FieldError{{Field: "status", Rule: "oneof", Param: "resolved rejected"}}}
	}
	d, err := s.store.CloseDispute(ctx, dossierID, disputeID, status, resolution)
	if err != nil {
		return store.Dispute{}, err
	}
	s.bestEffortRevision(ctx, "dispute", entry(dossierID, store.EntityDispute, d.ID, store.ActionStatusChange,
		"dispute "+status, actor))
	return d, nil
}

func (s *Service) ListDisputes(ctx context.Context, dossierID, status string) ([]store.Dispute, error) {
	return s.store.ListDisputes(ctx, dossierID, status)
}

// OpenSuggestion records a proposed addition or change for editors to
// decide on.
func (s *Service) OpenSuggestion(ctx context.Context, dossierID string, in schema.SuggestionInput, actor schema.Actor) (store.Suggestion, error) {
	if err := authorize(actor, rbac.ActionDispute); err != nil {
		return store.Suggestion{}, err
	}
	if err := schema.Check("suggestion", in); err != nil {
		return store.Suggestion{}, err
	}
	sg, err := s.store.InsertSuggestion(ctx, store.Suggestion{
		ID:         util.NewID("sug"),
		DossierID:  dossierID,
		EntityType: in.EntityType,
		EntityID:   in.EntityID,
		Kind:       in.Kind,
		Payload:    in.Payload,
		ByUserID:   actor.UserID,
	})
	if err != nil {
		return store.Suggestion{}, fmt.Errorf("open suggestion: %w", err)
	}
	s.bestEffortRevision(ctx, "suggestion", entry(dossierID, store.EntitySuggestion, sg.ID, store.ActionCreate,
		fmt.Sprintf("%s suggestion on %s", in.Kind, in.EntityType), actor))
	return sg, nil
}

// DecideSuggestion accepts or rejects a pending suggestion.
func (s *Service) DecideSuggestion(ctx context.Context, dossierID, suggestionID, status string, actor schema.Actor) (store.Suggestion, error) {
	if err := authorize(actor, rbac.ActionDecide); err != nil {
		return store.Suggestion{}, err
	}
	if status != store.SuggestionAccepted && status != store.SuggestionRejected {
		return store.Suggestion{}, &schema.ValidationError{Kind: "suggestion", Fields: []schema.FieldError{{Field: "status", Rule: "oneof", Param: "accepted rejected"}}}
	}
	sg, err := s.store.DecideSuggestion(ctx, dossierID, suggestionID, status, actor.UserID)
	if err != nil {
		return store.Suggestion{}, err
	}
	s.bestEffortRevision(ctx, "suggestion", entry(dossierID, store.EntitySuggestion, sg.ID, store.ActionStatusChange,
		"suggestion "+status, actor))
	return sg, nil
}

func (s *Service) ListSuggestions(ctx context.Context, dossierID, status string) ([]store.Suggestion, error) {
	return s.store.ListSuggestions(ctx, dossierID, status)
}
