package payor

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

const entity = "PAYOR"

type Service struct {
	repo Repository
	tx   db.TxRunner
}

func NewService(repo Repository, tx db.TxRunner) *Service {
	return &Service{repo: repo, tx: tx}
}

var planTypes = []interface{}{"PPO", "HMO", "EPO", "POS", "Medicare", "Medicaid", "Other"}

type PlanInput struct {
	PlanName    string `json:"planName"`
	PlanType    string `json:"planType"`
	IsInNetwork *bool  `json:"isInNetwork"`
}

func (p PlanInput) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.PlanName, validation.Required),
		validation.Field(&p.PlanType, validation.Required, validation.In(planTypes...)),
		validation.Field(&p.IsInNetwork, validation.NotNil),
	)
}

type CreateRequest struct {
	Name            string      `json:"name"`
	ExternalPayorID string      `json:"externalPayorId"`
	PayorCategory   string      `json:"payorCategory"`
	BillingTaxonomy string      `json:"billingTaxonomy"`
	Address         *string     `json:"address"`
	Phone           *string     `json:"phone"`
	PortalURL       *string     `json:"portalUrl"`

	OrganizationID *uuid.UUID `json:"organizationId"`

	Plans []PlanInput `json:"plans"`
}

func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.ExternalPayorID, validation.Required),
		validation.Field(&r.PayorCategory, validation.Required),
		validation.Field(&r.BillingTaxonomy, validation.Required),
		validation.Field(&r.Plans, validation.Required.Error("at least one plan is required")),
	)
}

// UpdateRequest carries partial updates; nil fields are left unchanged.
// A non-nil Plans slice replaces the payor's plan set wholesale.
type UpdateRequest struct {
	Name            *string     `json:"name"`
	ExternalPayorID *string     `json:"externalPayorId"`
	PayorCategory   *string     `json:"payorCategory"`
	BillingTaxonomy *string     `json:"billingTaxonomy"`
	Address         *string     `json:"address"`
	Phone           *string     `json:"phone"`
	PortalURL       *string     `json:"portalUrl"`

	OrganizationID *uuid.UUID `json:"organizationId"`

	Plans []PlanInput `json:"plans"`
}

func (r UpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Plans),
	)
}

func principal(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, api.Unauthorized(entity, "Authentication required")
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Payor, int, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, 0, err
	}
	f.OrganizationID = p.OrganizationID

	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, py := range items {
		if py.Plans, err = s.repo.PlansFor(ctx, py.ID); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Payor, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	py, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.NotFound(entity, "Payor not found")
	}
	if err != nil {
		return nil, err
	}
	if py.OrganizationID != p.OrganizationID {
		return nil, api.NotFound(entity, "Payor not found")
	}
	if py.Plans, err = s.repo.PlansFor(ctx, py.ID); err != nil {
		return nil, err
	}
	return py, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Payor, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}
	if req.OrganizationID != nil && *req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot create payors outside your organization")
	}

	now := time.Now().Unix()
	py := &Payor{
		Name:            req.Name,
		ExternalPayorID: req.ExternalPayorID,
		PayorCategory:   req.PayorCategory,
		BillingTaxonomy: req.BillingTaxonomy,
		Address:         req.Address,
		Phone:           req.Phone,
		PortalURL:       req.PortalURL,
		OrganizationID:  p.OrganizationID,
		CreatedByID:     &p.UserID,
		UpdatedByID:     &p.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkExternalID(ctx, p.OrganizationID, req.ExternalPayorID, uuid.Nil); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, py); err != nil {
			if db.IsUniqueViolation(err) {
				return api.Duplicate(entity, "Payor with this external payor id already exists")
			}
			return err
		}
		return s.repo.ReplacePlans(ctx, py.ID, buildPlans(req.Plans, now))
	})
	if err != nil {
		return nil, err
	}
	if py.Plans, err = s.repo.PlansFor(ctx, py.ID); err != nil {
		return nil, err
	}
	return py, nil
}

func (s *Service) checkExternalID(ctx context.Context, orgID uuid.UUID, externalID string, selfID uuid.UUID) error {
	existing, err := s.repo.GetByExternalID(ctx, orgID, externalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != selfID {
		return api.Duplicate(entity, "Payor with this external payor id already exists")
	}
	return nil
}

func buildPlans(items []PlanInput, now int64) []Plan {
	out := make([]Plan, len(items))
	for i, in := range items {
		inNetwork := false
		if in.IsInNetwork != nil {
			inNetwork = *in.IsInNetwork
		}
		out[i] = Plan{
			PlanName:    in.PlanName,
			PlanType:    in.PlanType,
			IsInNetwork: inNetwork,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	return out
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Payor, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}
	if req.OrganizationID != nil && *req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot update payors outside your organization or payor not found")
	}

	var py *Payor
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot update payors outside your organization or payor not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot update payors outside your organization or payor not found")
		}
		if req.ExternalPayorID != nil {
			if err := s.checkExternalID(ctx, p.OrganizationID, *req.ExternalPayorID, existing.ID); err != nil {
				return err
			}
			existing.ExternalPayorID = *req.ExternalPayorID
		}

		if req.Name != nil {
			existing.Name = *req.Name
		}
		if req.PayorCategory != nil {
			existing.PayorCategory = *req.PayorCategory
		}
		if req.BillingTaxonomy != nil {
			existing.BillingTaxonomy = *req.BillingTaxonomy
		}
		if req.Address != nil {
			existing.Address = req.Address
		}
		if req.Phone != nil {
			existing.Phone = req.Phone
		}
		if req.PortalURL != nil {
			existing.PortalURL = req.PortalURL
		}
		existing.UpdatedByID = &p.UserID
		existing.UpdatedAt = time.Now().Unix()

		if err := s.repo.Update(ctx, existing); err != nil {
			if db.IsUniqueViolation(err) {
				return api.Duplicate(entity, "Payor with this external payor id already exists")
			}
			return err
		}
		if req.Plans != nil {
			if err := s.repo.ReplacePlans(ctx, existing.ID, buildPlans(req.Plans, existing.UpdatedAt)); err != nil {
				if db.IsForeignKeyViolation(err) {
					return api.ForeignKey(entity, "Cannot replace plans that are referenced by insurance policies")
				}
				return err
			}
		}
		py = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	if py.Plans, err = s.repo.PlansFor(ctx, py.ID); err != nil {
		return nil, err
	}
	return py, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot delete payors outside your organization or payor not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot delete payors outside your organization or payor not found")
		}
		deps, err := s.repo.DependentCounts(ctx, id)
		if err != nil {
			return err
		}
		if deps.Any() {
			return api.DeleteFailed(entity, "Payor has dependent records and cannot be deleted")
		}
		return s.repo.Delete(ctx, id)
	})
}
