package visit

import "github.com/google/uuid"

type Visit struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patientId"`
	ProviderID     uuid.UUID  `json:"providerId"`
	VisitDate      int64      `json:"visitDate"`
	VisitTime      *string    `json:"visitTime"`
	Duration       *int       `json:"duration"`
	VisitType      string     `json:"visitType"`
	Status         string     `json:"status"`
	Location       *string    `json:"location"`
	Notes          *string    `json:"notes"`
	Source         string     `json:"source"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	CreatedByID    *uuid.UUID `json:"createdById"`
	UpdatedByID    *uuid.UUID `json:"updatedById"`
	CreatedAt      int64      `json:"createdAt"`
	UpdatedAt      int64      `json:"updatedAt"`
}

type Filter struct {
	OrganizationID uuid.UUID
	Search         string
	PatientID      *uuid.UUID
	ProviderID     *uuid.UUID
	Status         string
	Source         string
	DateFrom       *int64
	DateTo         *int64
}
