// Package organization manages the tenancy root: every other record in the
// system belongs to exactly one organization, and non-admin users only see
// their own organization and its children.
package organization

import (
	"github.com/google/uuid"
)

// Address is one postal address in an organization's address list, stored as
// JSONB.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
	Type   string `json:"type,omitempty"`
}

// Ref is a lightweight reference to an organization, used when listing child
// organizations.
type Ref struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type Organization struct {
	ID                   uuid.UUID  `json:"id"`
	Name                 string     `json:"name"`
	Addresses            []Address  `json:"addresses,omitempty"`
	Phone                *string    `json:"phone,omitempty"`
	Email                *string    `json:"email,omitempty"`
	NPI                  *string    `json:"npi,omitempty"`
	ParentOrganizationID *uuid.UUID `json:"parentOrganizationId,omitempty"`
	CreatedByID          *uuid.UUID `json:"createdById,omitempty"`
	UpdatedByID          *uuid.UUID `json:"updatedById,omitempty"`
	CreatedAt            int64      `json:"createdAt"`
	UpdatedAt            int64      `json:"updatedAt"`

	ChildOrganizations []Ref `json:"childOrganizations"`
}

// Dependents holds the dependent-record counts gathered before a delete.
// All counts come from one snapshot; a delete only proceeds when every count
// is zero.
type Dependents struct {
	Users              int
	Patients           int
	Providers          int
	Visits             int
	Claims             int
	Rules              int
	Payors             int
	ChildOrganizations int
}

func (d Dependents) Any() bool {
	return d.Users > 0 || d.Patients > 0 || d.Providers > 0 || d.Visits > 0 ||
		d.Claims > 0 || d.Rules > 0 || d.Payors > 0 || d.ChildOrganizations > 0
}

// Filter narrows organization listings.
type Filter struct {
	Search   string
	ParentID *uuid.UUID
	// ScopeOrgID limits results to the given organization and its direct
	// children. Set for non-admin callers.
	ScopeOrgID *uuid.UUID
}
