package claim

import "github.com/google/uuid"

type ServiceLine struct {
	ID          uuid.UUID `json:"id"`
	ClaimID     uuid.UUID `json:"claimId"`
	CPTCodeID   uuid.UUID `json:"cptCodeId"`
	Description *string   `json:"description"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unitPrice"`
	TotalPrice  float64   `json:"totalPrice"`
	CreatedAt   int64     `json:"createdAt"`
}

// TimelineEntry is an append-only audit record of a claim's lifecycle.
type TimelineEntry struct {
	ID        uuid.UUID  `json:"id"`
	ClaimID   uuid.UUID  `json:"claimId"`
	UserID    *uuid.UUID `json:"userId"`
	Action    string     `json:"action"`
	Status    string     `json:"status"`
	Notes     string     `json:"notes"`
	CreatedAt int64      `json:"createdAt"`
}

type Claim struct {
	ID             uuid.UUID       `json:"id"`
	ClaimNumber    string          `json:"claimNumber"`
	PatientID      uuid.UUID       `json:"patientId"`
	ProviderID     uuid.UUID       `json:"providerId"`
	PayorID        uuid.UUID       `json:"payorId"`
	VisitID        *uuid.UUID      `json:"visitId"`
	ServiceDate    int64           `json:"serviceDate"`
	BilledAmount   float64         `json:"billedAmount"`
	PaidAmount     float64         `json:"paidAmount"`
	Status         string          `json:"status"`
	SubmissionDate *int64          `json:"submissionDate"`
	Notes          *string         `json:"notes"`
	Source         string          `json:"source"`
	OrganizationID uuid.UUID       `json:"organizationId"`
	CreatedByID    *uuid.UUID      `json:"createdById"`
	UpdatedByID    *uuid.UUID      `json:"updatedById"`
	CreatedAt      int64           `json:"createdAt"`
	UpdatedAt      int64           `json:"updatedAt"`
	Services       []ServiceLine   `json:"services,omitempty"`
	Timeline       []TimelineEntry `json:"timeline,omitempty"`
}

type Filter struct {
	OrganizationID  uuid.UUID
	Search          string
	PatientID       *uuid.UUID
	ProviderID      *uuid.UUID
	PayorID         *uuid.UUID
	Status          string
	Source          string
	DateFrom        *int64
	DateTo          *int64
	AmountMin       *float64
	AmountMax       *float64
	IncludeServices bool
	IncludeTimeline bool
}
