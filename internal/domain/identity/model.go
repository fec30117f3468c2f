// Package identity manages user accounts and the login surface that issues
// the tokens every other operation consumes.
package identity

import (
	"github.com/google/uuid"
)

// OrgRef names the organization a user belongs to.
type OrgRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	PasswordHash   string    `json:"-"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Role           string    `json:"role"`
	OrganizationID uuid.UUID `json:"organizationId"`
	CreatedAt      int64     `json:"createdAt"`
	UpdatedAt      int64     `json:"updatedAt"`

	Organization *OrgRef `json:"organization,omitempty"`
}

// Dependents counts the records that block a user delete: audit trail
// entries and uploads keep their author.
type Dependents struct {
	TimelineEntries int
	Attachments     int
}

func (d Dependents) Any() bool {
	return d.TimelineEntries > 0 || d.Attachments > 0
}

// Filter narrows user listings within one organization.
type Filter struct {
	OrganizationID uuid.UUID
	Search         string
	Role           string
}
