package patient

import "github.com/google/uuid"

type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// InsurancePolicy links a patient to a payor plan. OrganizationID is the
// owning patient's organization, carried for scoping but never serialized.
type InsurancePolicy struct {
	ID             uuid.UUID `json:"id"`
	PatientID      uuid.UUID `json:"patientId"`
	PlanID         uuid.UUID `json:"planId"`
	MemberID       string    `json:"memberId"`
	GroupNumber    *string   `json:"groupNumber"`
	IsPrimary      bool      `json:"isPrimary"`
	InsuredType    string    `json:"insuredType"`
	SubscriberName *string   `json:"subscriberName"`
	SubscriberDOB  *string   `json:"subscriberDob"`
	OrganizationID uuid.UUID `json:"-"`
	CreatedAt      int64     `json:"createdAt"`
	UpdatedAt      int64     `json:"updatedAt"`
}

type Patient struct {
	ID             uuid.UUID         `json:"id"`
	Prefix         *string           `json:"prefix"`
	FirstName      string            `json:"firstName"`
	MiddleName     *string           `json:"middleName"`
	LastName       string            `json:"lastName"`
	Suffix         *string           `json:"suffix"`
	DateOfBirth    string            `json:"dateOfBirth"`
	Gender         string            `json:"gender"`
	SSN            *string           `json:"ssn"`
	Phone          *string           `json:"phone"`
	Email          *string           `json:"email"`
	Address        *Address          `json:"address"`
	Source         string            `json:"source"`
	OrganizationID uuid.UUID         `json:"organizationId"`
	CreatedByID    *uuid.UUID        `json:"createdById"`
	UpdatedByID    *uuid.UUID        `json:"updatedById"`
	CreatedAt      int64             `json:"createdAt"`
	UpdatedAt      int64             `json:"updatedAt"`
	Insurances     []InsurancePolicy `json:"insurances,omitempty"`
}

// Dependents counts the records that block deleting a patient.
type Dependents struct {
	Visits   int
	Claims   int
	Policies int
}

func (d Dependents) Any() bool {
	return d.Visits > 0 || d.Claims > 0 || d.Policies > 0
}

type Filter struct {
	OrganizationID    uuid.UUID
	Search            string
	Source            string
	IncludeInsurances bool
}

type PolicyFilter struct {
	OrganizationID uuid.UUID
	PatientID      *uuid.UUID
	PayorID        *uuid.UUID
	IsPrimary      *bool
}
