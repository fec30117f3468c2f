package organization

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

const entity = "ORG"

type Service struct {
	repo Repository
	tx   db.TxRunner
}

func NewService(repo Repository, tx db.TxRunner) *Service {
	return &Service{repo: repo, tx: tx}
}

type CreateRequest struct {
	Name                 string     `json:"name"`
	Addresses            []Address  `json:"addresses"`
	Phone                *string    `json:"phone"`
	Email                *string    `json:"email"`
	NPI                  *string    `json:"npi"`
	ParentOrganizationID *uuid.UUID `json:"parentOrganizationId"`
}

func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
	)
}

// UpdateRequest carries partial updates; nil fields are left unchanged.
type UpdateRequest struct {
	Name                 *string    `json:"name"`
	Addresses            []Address  `json:"addresses"`
	Phone                *string    `json:"phone"`
	Email                *string    `json:"email"`
	NPI                  *string    `json:"npi"`
	ParentOrganizationID *uuid.UUID `json:"parentOrganizationId"`
}

func principal(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, api.Unauthorized(entity, "Authentication required")
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Organization, int, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, 0, err
	}
	if !p.IsAdmin() {
		scope := p.OrganizationID
		f.ScopeOrgID = &scope
	}
	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, o := range items {
		if err := s.hydrate(ctx, o); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	o, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.NotFound(entity, "Organization not found")
	}
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && !s.inScope(p, o) {
		return nil, api.NotFound(entity, "Organization not found")
	}
	if err := s.hydrate(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

// inScope reports whether the principal's organization owns or parents o.
func (s *Service) inScope(p auth.Principal, o *Organization) bool {
	if o.ID == p.OrganizationID {
		return true
	}
	return o.ParentOrganizationID != nil && *o.ParentOrganizationID == p.OrganizationID
}

func (s *Service) hydrate(ctx context.Context, o *Organization) error {
	refs, err := s.repo.ChildRefs(ctx, o.ID)
	if err != nil {
		return err
	}
	o.ChildOrganizations = refs
	return nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Organization, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}

	now := time.Now().Unix()
	o := &Organization{
		Name:                 req.Name,
		Addresses:            req.Addresses,
		Phone:                req.Phone,
		Email:                req.Email,
		NPI:                  req.NPI,
		ParentOrganizationID: req.ParentOrganizationID,
		CreatedByID:          &p.UserID,
		UpdatedByID:          &p.UserID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkParent(ctx, req.ParentOrganizationID); err != nil {
			return err
		}
		return s.repo.Create(ctx, o)
	})
	if err != nil {
		return nil, err
	}
	o.ChildOrganizations = []Ref{}
	return o, nil
}

func (s *Service) checkParent(ctx context.Context, parentID *uuid.UUID) error {
	if parentID == nil {
		return nil
	}
	exists, err := s.repo.Exists(ctx, *parentID)
	if err != nil {
		return err
	}
	if !exists {
		return api.ForeignKey(entity, "Parent organization not found")
	}
	return nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Organization, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}

	var o *Organization
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.NotFound(entity, "Organization not found")
		}
		if err != nil {
			return err
		}
		if !p.IsAdmin() && existing.ID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot update organizations outside your access scope")
		}
		if err := s.checkParent(ctx, req.ParentOrganizationID); err != nil {
			return err
		}

		if req.Name != nil {
			existing.Name = *req.Name
		}
		if req.Addresses != nil {
			existing.Addresses = req.Addresses
		}
		if req.Phone != nil {
			existing.Phone = req.Phone
		}
		if req.Email != nil {
			existing.Email = req.Email
		}
		if req.NPI != nil {
			existing.NPI = req.NPI
		}
		if req.ParentOrganizationID != nil {
			existing.ParentOrganizationID = req.ParentOrganizationID
		}
		existing.UpdatedByID = &p.UserID
		existing.UpdatedAt = time.Now().Unix()

		if err := s.repo.Update(ctx, existing); err != nil {
			return err
		}
		o = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.NotFound(entity, "Organization not found")
		}
		if err != nil {
			return err
		}
		if !p.IsAdmin() && existing.ID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot delete organizations outside your access scope")
		}
		deps, err := s.repo.DependentCounts(ctx, id)
		if err != nil {
			return err
		}
		if deps.Any() {
			return api.DeleteFailed(entity, "Organization has dependent records and cannot be deleted")
		}
		return s.repo.Delete(ctx, id)
	})
}
