package rule

import (
	"encoding/json"

	"github.com/google/uuid"
)

type Rule struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Description    *string         `json:"description"`
	TriggerType    string          `json:"triggerType"`
	FlowData       json.RawMessage `json:"flowData"`
	IsActive       bool            `json:"isActive"`
	OrganizationID uuid.UUID       `json:"organizationId"`
	CreatedByID    *uuid.UUID      `json:"createdById"`
	UpdatedByID    *uuid.UUID      `json:"updatedById"`
	CreatedAt      int64           `json:"createdAt"`
	UpdatedAt      int64           `json:"updatedAt"`
}

// Execution is an append-only record of a rule run. Rows are written by the
// rule engine and only ever read through the API.
type Execution struct {
	ID             uuid.UUID       `json:"id"`
	RuleID         uuid.UUID       `json:"ruleId"`
	ClaimID        *uuid.UUID      `json:"claimId"`
	Status         string          `json:"status"`
	Result         json.RawMessage `json:"result"`
	ErrorMessage   *string         `json:"errorMessage"`
	OrganizationID uuid.UUID       `json:"-"`
	ExecutedAt     int64           `json:"executedAt"`
}

type Filter struct {
	OrganizationID uuid.UUID
	Search         string
	IsActive       *bool
}

type ExecutionFilter struct {
	OrganizationID uuid.UUID
	RuleID         *uuid.UUID
	ClaimID        *uuid.UUID
	Status         string
	DateFrom       *int64
	DateTo         *int64
}
