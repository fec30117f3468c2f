package cptcode

import "github.com/google/uuid"

type CPTCode struct {
	ID             uuid.UUID  `json:"id"`
	Code           string     `json:"code"`
	Description    string     `json:"description"`
	BasePrice      float64    `json:"basePrice"`
	Specialty      *string    `json:"specialty"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	CreatedByID    *uuid.UUID `json:"createdById"`
	UpdatedByID    *uuid.UUID `json:"updatedById"`
	CreatedAt      int64      `json:"createdAt"`
	UpdatedAt      int64      `json:"updatedAt"`
}

type Filter struct {
	OrganizationID uuid.UUID
	Search         string
	Specialty      string
}
