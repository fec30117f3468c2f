package payor

import "github.com/google/uuid"

type Plan struct {
	ID          uuid.UUID `json:"id"`
	PayorID     uuid.UUID `json:"payorId"`
	PlanName    string    `json:"planName"`
	PlanType    string    `json:"planType"`
	IsInNetwork bool      `json:"isInNetwork"`
	CreatedAt   int64     `json:"createdAt"`
	UpdatedAt   int64     `json:"updatedAt"`
}

type Payor struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	ExternalPayorID string     `json:"externalPayorId"`
	PayorCategory   string     `json:"payorCategory"`
	BillingTaxonomy string     `json:"billingTaxonomy"`
	Address         *string    `json:"address"`
	Phone           *string    `json:"phone"`
	PortalURL       *string    `json:"portalUrl"`
	OrganizationID  uuid.UUID  `json:"organizationId"`
	CreatedByID     *uuid.UUID `json:"createdById"`
	UpdatedByID     *uuid.UUID `json:"updatedById"`
	CreatedAt       int64      `json:"createdAt"`
	UpdatedAt       int64      `json:"updatedAt"`
	Plans           []Plan     `json:"plans"`
}

// Dependents counts the records that block deleting a payor. Policies counts
// patient insurance policies written against any of the payor's plans.
type Dependents struct {
	Claims   int
	Policies int
}

func (d Dependents) Any() bool { return d.Claims > 0 || d.Policies > 0 }

type Filter struct {
	OrganizationID uuid.UUID
	Search         string
	PayorCategory  string
}
