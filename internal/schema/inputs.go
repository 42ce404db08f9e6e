package schema

import "time"

// Actor identifies who performed a mutation.
type Actor struct {
	Role   string `json:"byRole" validate:"required,role"`
	UserID string `json:"byUserId,omitempty" validate:"omitempty,max=128"`
}

type EvidenceQualityInput struct {
	Score   float64  `json:"score" validate:"gte=0,lte=1"`
	Reasons []string `json:"reasons,omitempty" validate:"max=5,dive,max=300"`
}

// ClaimInput is a claim proposed by the analysis pipeline or an editor. An
// empty ClaimID is derived from the text.
type ClaimInput struct {
	ClaimID         string                `json:"claimId,omitempty" validate:"omitempty,max=128"`
	Text            string                `json:"text" validate:"required,max=2000"`
	Kind            string                `json:"kind,omitempty" validate:"omitempty,claimkind"`
	Status          string                `json:"status,omitempty" validate:"omitempty,claimstatus"`
	EvidenceQuality *EvidenceQualityInput `json:"evidenceQuality,omitempty"`
}

type OpenQuestionInput struct {
	QuestionID        string   `json:"questionId,omitempty" validate:"omitempty,max=128"`
	Text              string   `json:"text" validate:"required,max=2000"`
	Status            string   `json:"status,omitempty" validate:"omitempty,questionstatus"`
	Responsibility    string   `json:"responsibility,omitempty" validate:"omitempty,responsibility"`
	RelatedClaimIDs   []string `json:"relatedClaimIds,omitempty" validate:"max=50,dive,required"`
	RelatedSourceIDs  []string `json:"relatedSourceIds,omitempty" validate:"max=50,dive,required"`
	RelatedFindingIDs []string `json:"relatedFindingIds,omitempty" validate:"max=50,dive,required"`
}

// Analysis is one pipeline run's output for a dossier.
type Analysis struct {
	Claims        []ClaimInput        `json:"claims" validate:"max=500,dive"`
	OpenQuestions []OpenQuestionInput `json:"openQuestions" validate:"max=500,dive"`
	CreatedByRole string              `json:"createdByRole" validate:"required,role"`
}

type SourceInput struct {
	URL                string     `json:"url" validate:"required,url,max=2048"`
	Title              string     `json:"title,omitempty" validate:"max=500"`
	Publisher          string     `json:"publisher,omitempty" validate:"max=200"`
	Type               string     `json:"type,omitempty" validate:"omitempty,sourcetype"`
	PublishedAt        *time.Time `json:"publishedAt,omitempty"`
	RetrievedAt        *time.Time `json:"retrievedAt,omitempty"`
	Snippet            string     `json:"snippet,omitempty" validate:"max=2000"`
	ConflictOfInterest bool       `json:"conflictOfInterest,omitempty"`
}

type CitationInput struct {
	SourceID string `json:"sourceId" validate:"required"`
	Quote    string `json:"quote,omitempty" validate:"max=1000"`
	Locator  string `json:"locator,omitempty" validate:"max=200"`
}

type FindingInput struct {
	ClaimID    string          `json:"claimId" validate:"required"`
	Verdict    string          `json:"verdict" validate:"required,verdict"`
	Rationale  []string        `json:"rationale,omitempty" validate:"max=8,dive,max=500"`
	Citations  []CitationInput `json:"citations,omitempty" validate:"max=50,dive"`
	ProducedBy string          `json:"producedBy" validate:"required,producer"`
	JobID      string          `json:"jobId,omitempty" validate:"max=128"`
}

type EdgeInput struct {
	FromType string   `json:"fromType" validate:"required,noderef"`
	FromID   string   `json:"fromId" validate:"required"`
	ToType   string   `json:"toType" validate:"required,noderef"`
	ToID     string   `json:"toId" validate:"required,nefield=FromID"`
	Rel      string   `json:"rel" validate:"required,edgerel"`
	Weight   *float64 `json:"weight,omitempty" validate:"omitempty,gte=0,lte=1"`
}

type DisputeInput struct {
	EntityType string `json:"entityType" validate:"required,entitytype"`
	EntityID   string `json:"entityId" validate:"required"`
	Reason     string `json:"reason" validate:"required,max=2000"`
}

type SuggestionInput struct {
	EntityType string         `json:"entityType" validate:"required,entitytype"`
	EntityID   string         `json:"entityId,omitempty"`
	Kind       string         `json:"kind" validate:"required,max=64"`
	Payload    map[string]any `json:"payload,omitempty"`
}
