package rule

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forager/billing/internal/platform/api"
	"github.com/forager/billing/internal/platform/auth"
	"github.com/forager/billing/internal/platform/db"
)

const (
	entity     = "RULE"
	execEntity = "RULE_EXECUTION"
)

// New rules always start as manual until a trigger is configured for them.
const defaultTriggerType = "Manual"

type Service struct {
	repo Repository
	tx   db.TxRunner
}

func NewService(repo Repository, tx db.TxRunner) *Service {
	return &Service{repo: repo, tx: tx}
}

type CreateRequest struct {
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	FlowData    json.RawMessage `json:"flowData"`
	IsActive    *bool           `json:"isActive"`

	OrganizationID *uuid.UUID `json:"organizationId"`
}

func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.FlowData, validation.Required, validation.By(validFlowData)),
	)
}

// UpdateRequest carries partial updates; nil fields are left unchanged.
type UpdateRequest struct {
	Name        *string         `json:"name"`
	Description *string         `json:"description"`
	TriggerType *string         `json:"triggerType"`
	FlowData    json.RawMessage `json:"flowData"`
	IsActive    *bool           `json:"isActive"`

	OrganizationID *uuid.UUID `json:"organizationId"`
}

func (r UpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FlowData, validation.By(func(v interface{}) error {
			if r.FlowData == nil {
				return nil
			}
			return validFlowData(v)
		})),
	)
}

type StatusRequest struct {
	IsActive *bool `json:"isActive"`
}

func (r StatusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IsActive, validation.NotNil),
	)
}

// validFlowData requires a JSON object carrying nodes and edges arrays, the
// shape the flow editor produces.
func validFlowData(v interface{}) error {
	raw, _ := v.(json.RawMessage)
	if len(raw) == 0 {
		return nil
	}
	var flow struct {
		Nodes *[]json.RawMessage `json:"nodes"`
		Edges *[]json.RawMessage `json:"edges"`
	}
	if err := json.Unmarshal(raw, &flow); err != nil {
		return errors.New("must be a JSON object")
	}
	if flow.Nodes == nil || flow.Edges == nil {
		return errors.New("must contain nodes and edges arrays")
	}
	return nil
}

func principal(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, api.Unauthorized(entity, "Authentication required")
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Rule, int, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, 0, err
	}
	f.OrganizationID = p.OrganizationID
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Rule, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	ru, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.NotFound(entity, "Rule not found")
	}
	if err != nil {
		return nil, err
	}
	if ru.OrganizationID != p.OrganizationID {
		return nil, api.NotFound(entity, "Rule not found")
	}
	return ru, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Rule, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}
	if req.OrganizationID != nil && *req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot create rules outside your organization")
	}

	now := time.Now().Unix()
	ru := &Rule{
		Name:           req.Name,
		Description:    req.Description,
		TriggerType:    defaultTriggerType,
		FlowData:       req.FlowData,
		OrganizationID: p.OrganizationID,
		CreatedByID:    &p.UserID,
		UpdatedByID:    &p.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.IsActive != nil {
		ru.IsActive = *req.IsActive
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkName(ctx, p.OrganizationID, req.Name, uuid.Nil); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, ru); err != nil {
			if db.IsUniqueViolation(err) {
				return api.Duplicate(entity, "Rule with this name already exists")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ru, nil
}

func (s *Service) checkName(ctx context.Context, orgID uuid.UUID, name string, selfID uuid.UUID) error {
	existing, err := s.repo.GetByName(ctx, orgID, name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != selfID {
		return api.Duplicate(entity, "Rule with this name already exists")
	}
	return nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Rule, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}
	if req.OrganizationID != nil && *req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot update rules outside your organization or rule not found")
	}

	var ru *Rule
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot update rules outside your organization or rule not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot update rules outside your organization or rule not found")
		}
		if req.Name != nil {
			if err := s.checkName(ctx, p.OrganizationID, *req.Name, existing.ID); err != nil {
				return err
			}
			existing.Name = *req.Name
		}

		if req.Description != nil {
			existing.Description = req.Description
		}
		if req.TriggerType != nil {
			existing.TriggerType = *req.TriggerType
		}
		if req.FlowData != nil {
			existing.FlowData = req.FlowData
		}
		if req.IsActive != nil {
			existing.IsActive = *req.IsActive
		}
		existing.UpdatedByID = &p.UserID
		existing.UpdatedAt = time.Now().Unix()

		if err := s.repo.Update(ctx, existing); err != nil {
			if db.IsUniqueViolation(err) {
				return api.Duplicate(entity, "Rule with this name already exists")
			}
			return err
		}
		ru = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ru, nil
}

// UpdateStatus toggles a rule on or off without touching its definition.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, req StatusRequest) (*Rule, error) {
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}
	return s.Update(ctx, id, UpdateRequest{IsActive: req.IsActive})
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot delete rules outside your organization or rule not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot delete rules outside your organization or rule not found")
		}
		return s.repo.Delete(ctx, id)
	})
}

func (s *Service) ListExecutions(ctx context.Context, f ExecutionFilter, limit, offset int) ([]*Execution, int, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, 0, err
	}
	f.OrganizationID = p.OrganizationID
	return s.repo.ListExecutions(ctx, f, limit, offset)
}

func (s *Service) GetExecution(ctx context.Context, id uuid.UUID) (*Execution, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	e, err := s.repo.GetExecution(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.NotFound(execEntity, "Rule execution not found")
	}
	if err != nil {
		return nil, err
	}
	if e.OrganizationID != p.OrganizationID {
		return nil, api.NotFound(execEntity, "Rule execution not found")
	}
	return e, nil
}
