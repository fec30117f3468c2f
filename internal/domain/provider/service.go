package provider

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

const entity = "PROVIDER"

type Service struct {
	repo Repository
	tx   db.TxRunner
}

func NewService(repo Repository, tx db.TxRunner) *Service {
	return &Service{repo: repo, tx: tx}
}

type CreateRequest struct {
	FirstName   string  `json:"firstName"`
	MiddleName  *string `json:"middleName"`
	LastName    string  `json:"lastName"`
	NPI         *string `json:"npi"`
	Specialty   *string `json:"specialty"`
	LicenseType string  `json:"licenseType"`
	Source      string  `json:"source"`

	OrganizationID *uuid.UUID `json:"organizationId"`
}

func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required),
		validation.Field(&r.LastName, validation.Required),
		validation.Field(&r.LicenseType, validation.Required),
		validation.Field(&r.Source, validation.Required),
	)
}

// UpdateRequest carries partial updates; nil fields are left unchanged.
type UpdateRequest struct {
	FirstName   *string `json:"firstName"`
	MiddleName  *string `json:"middleName"`
	LastName    *string `json:"lastName"`
	NPI         *string `json:"npi"`
	Specialty   *string `json:"specialty"`
	LicenseType *string `json:"licenseType"`
	Source      *string `json:"source"`

	OrganizationID *uuid.UUID `json:"organizationId"`
}

func principal(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, api.Unauthorized(entity, "Authentication required")
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Provider, int, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, 0, err
	}
	f.OrganizationID = p.OrganizationID
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Provider, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	pr, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.NotFound(entity, "Provider not found")
	}
	if err != nil {
		return nil, err
	}
	if pr.OrganizationID != p.OrganizationID {
		return nil, api.NotFound(entity, "Provider not found")
	}
	return pr, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Provider, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}
	if req.OrganizationID != nil && *req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot create providers outside your organization")
	}

	now := time.Now().Unix()
	pr := &Provider{
		FirstName:      req.FirstName,
		MiddleName:     req.MiddleName,
		LastName:       req.LastName,
		NPI:            req.NPI,
		Specialty:      req.Specialty,
		LicenseType:    req.LicenseType,
		Source:         req.Source,
		OrganizationID: p.OrganizationID,
		CreatedByID:    &p.UserID,
		UpdatedByID:    &p.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkNPI(ctx, p.OrganizationID, req.NPI, uuid.Nil); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, pr); err != nil {
			if db.IsUniqueViolation(err) {
				return api.Duplicate(entity, "Provider with this NPI already exists")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pr, nil
}

// checkNPI enforces NPI uniqueness within the organization, skipping the
// provider being updated.
func (s *Service) checkNPI(ctx context.Context, orgID uuid.UUID, npi *string, selfID uuid.UUID) error {
	if npi == nil || *npi == "" {
		return nil
	}
	existing, err := s.repo.GetByNPI(ctx, orgID, *npi)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != selfID {
		return api.Duplicate(entity, "Provider with this NPI already exists")
	}
	return nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Provider, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if req.OrganizationID != nil && *req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot update providers outside your organization or provider not found")
	}

	var pr *Provider
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot update providers outside your organization or provider not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot update providers outside your organization or provider not found")
		}
		if req.NPI != nil {
			if err := s.checkNPI(ctx, p.OrganizationID, req.NPI, existing.ID); err != nil {
				return err
			}
			existing.NPI = req.NPI
		}

		if req.FirstName != nil {
			existing.FirstName = *req.FirstName
		}
		if req.MiddleName != nil {
			existing.MiddleName = req.MiddleName
		}
		if req.LastName != nil {
			existing.LastName = *req.LastName
		}
		if req.Specialty != nil {
			existing.Specialty = req.Specialty
		}
		if req.LicenseType != nil {
			existing.LicenseType = *req.LicenseType
		}
		if req.Source != nil {
			existing.Source = *req.Source
		}
		existing.UpdatedByID = &p.UserID
		existing.UpdatedAt = time.Now().Unix()

		if err := s.repo.Update(ctx, existing); err != nil {
			if db.IsUniqueViolation(err) {
				return api.Duplicate(entity, "Provider with this NPI already exists")
			}
			return err
		}
		pr = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pr, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot delete providers outside your organization or provider not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot delete providers outside your organization or provider not found")
		}
		deps, err := s.repo.DependentCounts(ctx, id)
		if err != nil {
			return err
		}
		if deps.Any() {
			return api.DeleteFailed(entity, "Provider has dependent records and cannot be deleted")
		}
		return s.repo.Delete(ctx, id)
	})
}
