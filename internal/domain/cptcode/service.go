package cptcode

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forager/billing/internal/platform/api"
	"github.com/forager/billing/internal/platform/auth"
	"github.com/forager/billing/internal/platform/db"
)

const entity = "CPT_CODE"

type Service struct {
	repo Repository
	tx   db.TxRunner
}

func NewService(repo Repository, tx db.TxRunner) *Service {
	return &Service{repo: repo, tx: tx}
}

type CreateRequest struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	BasePrice   *float64 `json:"basePrice"`
	Specialty   *string  `json:"specialty"`

	OrganizationID *uuid.UUID `json:"organizationId"`
}

func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required),
		validation.Field(&r.Description, validation.Required),
		validation.Field(&r.BasePrice, validation.NotNil, validation.Min(0.0).Error("must be positive")),
	)
}

// UpdateRequest carries partial updates; nil fields are left unchanged.
type UpdateRequest struct {
	Code        *string  `json:"code"`
	Description *string  `json:"description"`
	BasePrice   *float64 `json:"basePrice"`
	Specialty   *string  `json:"specialty"`

	OrganizationID *uuid.UUID `json:"organizationId"`
}

func (r UpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BasePrice, validation.Min(0.0).Error("must be positive")),
	)
}

func principal(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, api.Unauthorized(entity, "Authentication required")
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*CPTCode, int, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, 0, err
	}
	f.OrganizationID = p.OrganizationID
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*CPTCode, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.NotFound(entity, "CPT code not found")
	}
	if err != nil {
		return nil, err
	}
	if c.OrganizationID != p.OrganizationID {
		return nil, api.NotFound(entity, "CPT code not found")
	}
	return c, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*CPTCode, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}
	if req.OrganizationID != nil && *req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot create CPT codes outside your organization")
	}

	now := time.Now().Unix()
	c := &CPTCode{
		Code:           req.Code,
		Description:    req.Description,
		BasePrice:      *req.BasePrice,
		Specialty:      req.Specialty,
		OrganizationID: p.OrganizationID,
		CreatedByID:    &p.UserID,
		UpdatedByID:    &p.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkCode(ctx, p.OrganizationID, req.Code, uuid.Nil); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, c); err != nil {
			if db.IsUniqueViolation(err) {
				return api.Duplicate(entity, "CPT code already exists")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) checkCode(ctx context.Context, orgID uuid.UUID, code string, selfID uuid.UUID) error {
	existing, err := s.repo.GetByCode(ctx, orgID, code)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != selfID {
		return api.Duplicate(entity, "CPT code already exists")
	}
	return nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*CPTCode, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}
	if req.OrganizationID != nil && *req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot update CPT codes outside your organization or CPT code not found")
	}

	var c *CPTCode
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot update CPT codes outside your organization or CPT code not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot update CPT codes outside your organization or CPT code not found")
		}
		if req.Code != nil {
			if err := s.checkCode(ctx, p.OrganizationID, *req.Code, existing.ID); err != nil {
				return err
			}
			existing.Code = *req.Code
		}

		if req.Description != nil {
			existing.Description = *req.Description
		}
		if req.BasePrice != nil {
			existing.BasePrice = *req.BasePrice
		}
		if req.Specialty != nil {
			existing.Specialty = req.Specialty
		}
		existing.UpdatedByID = &p.UserID
		existing.UpdatedAt = time.Now().Unix()

		if err := s.repo.Update(ctx, existing); err != nil {
			if db.IsUniqueViolation(err) {
				return api.Duplicate(entity, "CPT code already exists")
			}
			return err
		}
		c = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot delete CPT codes outside your organization or CPT code not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot delete CPT codes outside your organization or CPT code not found")
		}
		count, err := s.repo.ServiceCount(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return api.DeleteFailed(entity, "CPT code is referenced by claim services and cannot be deleted")
		}
		return s.repo.Delete(ctx, id)
	})
}
