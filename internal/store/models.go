package store

import "time"

// Dossier status values.
const (
	DossierDraft    = "draft"
	DossierActive   = "active"
	DossierArchived = "archived"
)

// Revision actions.
const (
	ActionCreate       = "create"
	ActionUpdate       = "update"
	ActionDelete       = "delete"
	ActionStatusChange = "status_change"
	ActionSystemUpdate = "system_update"
)

// Actor roles recorded on revisions.
const (
	RolePipeline = "pipeline"
	RoleEditor   = "editor"
	RoleMember   = "member"
	RoleAdmin    = "admin"
	RoleSystem   = "system"
)

// Entity types recorded on revisions.
const (
	EntityDossier      = "dossier"
	EntitySource       = "source"
	EntityClaim        = "claim"
	EntityFinding      = "finding"
	EntityEdge         = "edge"
	EntityOpenQuestion = "open_question"
	EntityDispute      = "dispute"
	EntitySuggestion   = "suggestion"
)

// Producers of findings.
const (
	ProducedByPipeline = "pipeline"
	ProducedByEditor   = "editor"
)

type Counts struct {
	Claims        int `json:"claims"`
	Sources       int `json:"sources"`
	Findings      int `json:"findings"`
	Edges         int `json:"edges"`
	OpenQuestions int `json:"openQuestions"`
}

type Dossier struct {
	ID               string
	DossierID        string
	StatementID      string
	StatementAliases []string
	Title            string
	Status           string
	Counts           Counts
	LastRevisionHash *string
	LastRevisionAt   *time.Time
	RevisionSeq      int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type Source struct {
	ID                 string
	DossierID          string
	URL                string
	CanonicalURLHash   string
	Title              string
	Publisher          string
	Type               string
	PublishedAt        *time.Time
	RetrievedAt        *time.Time
	Snippet            string
	ConflictOfInterest bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type EvidenceQuality struct {
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
}

type Claim struct {
	ID              string
	DossierID       string
	ClaimID         string
	Text            string
	Kind            string
	Status          string
	EvidenceQuality *EvidenceQuality
	CreatedByRole   string
	AuthorID        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Citation struct {
	SourceID string `json:"sourceId"`
	Quote    string `json:"quote,omitempty"`
	Locator  string `json:"locator,omitempty"`
}

type Finding struct {
	ID         string
	DossierID  string
	ClaimID    string
	Verdict    string
	Rationale  []string
	Citations  []Citation
	ProducedBy string
	JobID      string
	CreatedAt  time.Time
	// UpdatedAt is nil for legacy rows that never carried one.
	UpdatedAt  *time.Time
}

type Edge struct {
	ID             string
	DossierID      string
	FromType       string
	FromID         string
	ToType         string
	ToID           string
	Rel            string
	Weight         *float64
	Active         bool
	ArchivedAt     *time.Time
	ArchivedReason string
	CreatedByRole  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type OpenQuestion struct {
	ID                string
	DossierID         string
	QuestionID        string
	Text              string
	Status            string
	Responsibility    string
	RelatedClaimIDs   []string
	RelatedSourceIDs  []string
	RelatedFindingIDs []string
	CreatedByRole     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Revision is an immutable ledger entry. Hash fields are nil when hash
// chaining is disabled.
type Revision struct {
	RevID       string
	DossierID   string
	EntityType  string
	EntityID    string
	Action      string
	DiffSummary string
	ByRole      string
	ByUserID    *string
	Timestamp   time.Time
	PrevHash    *string
	Hash        *string
	HashAlgo    *string
}

// Dispute status values.
const (
	DisputeOpen     = "open"
	DisputeResolved = "resolved"
	DisputeRejected = "rejected"
)

type Dispute struct {
	ID         string
	DossierID  string
	EntityType string
	EntityID   string
	Reason     string
	Status     string
	ByUserID   string
	Resolution string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Suggestion status values.
const (
	SuggestionPending  = "pending"
	SuggestionAccepted = "accepted"
	SuggestionRejected = "rejected"
)

type Suggestion struct {
	ID         string
	DossierID  string
	EntityType string
	EntityID   string
	Kind       string
	Payload    map[string]any
	Status     string
	ByUserID   string
	DecidedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FindingKey is the projection the counts aggregator needs.
type FindingKey struct {
	ID         string
	ClaimID    string
	ProducedBy string
	UpdatedAt  *time.Time
}

// Head is the dossier's chain pointer as read from the store.
type Head struct {
	Found bool
	Hash  *string
	Seq   int64
}
