package provider

import "github.com/google/uuid"

type Provider struct {
	ID             uuid.UUID  `json:"id"`
	FirstName      string     `json:"firstName"`
	MiddleName     *string    `json:"middleName"`
	LastName       string     `json:"lastName"`
	NPI            *string    `json:"npi"`
	Specialty      *string    `json:"specialty"`
	LicenseType    string     `json:"licenseType"`
	Source         string     `json:"source"`
	OrganizationID uuid.UUID  `json:"organizationId"`
	CreatedByID    *uuid.UUID `json:"createdById"`
	UpdatedByID    *uuid.UUID `json:"updatedById"`
	CreatedAt      int64      `json:"createdAt"`
	UpdatedAt      int64      `json:"updatedAt"`
}

// Dependents counts the records that block deleting a provider.
type Dependents struct {
	Visits int
	Claims int
}

func (d Dependents) Any() bool { return d.Visits > 0 || d.Claims > 0 }

type Filter struct {
	OrganizationID uuid.UUID
	Search         string
	Specialty      string
	LicenseType    string
	Source         string
}
