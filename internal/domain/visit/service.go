package visit

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

const entity = "VISIT"

type Service struct {
	repo Repository
	tx   db.TxRunner
}

func NewService(repo Repository, tx db.TxRunner) *Service {
	return &Service{repo: repo, tx: tx}
}

type CreateRequest struct {
	PatientID  uuid.UUID `json:"patientId"`
	ProviderID uuid.UUID `json:"providerId"`
	VisitDate  int64     `json:"visitDate"`
	VisitTime  *string   `json:"visitTime"`
	Duration   *int      `json:"duration"`
	VisitType  string    `json:"visitType"`
	Status     string    `json:"status"`
	Location   *string   `json:"location"`
	Notes      *string   `json:"notes"`
	Source     string    `json:"source"`

	OrganizationID *uuid.UUID `json:"organizationId"`
}

func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PatientID, validation.By(notNilUUID)),
		validation.Field(&r.ProviderID, validation.By(notNilUUID)),
		validation.Field(&r.VisitDate, validation.Required),
		validation.Field(&r.VisitType, validation.Required),
		validation.Field(&r.Status, validation.Required),
		validation.Field(&r.Source, validation.Required),
	)
}

// UpdateRequest carries partial updates; nil fields are left unchanged.
type UpdateRequest struct {
	PatientID  *uuid.UUID `json:"patientId"`
	ProviderID *uuid.UUID `json:"providerId"`
	VisitDate  *int64     `json:"visitDate"`
	VisitTime  *string    `json:"visitTime"`
	Duration   *int       `json:"duration"`
	VisitType  *string    `json:"visitType"`
	Status     *string    `json:"status"`
	Location   *string    `json:"location"`
	Notes      *string    `json:"notes"`
	Source     *string    `json:"source"`

	OrganizationID *uuid.UUID `json:"organizationId"`
}

func notNilUUID(v interface{}) error {
	id, _ := v.(uuid.UUID)
	if id == uuid.Nil {
		return errors.New("is required")
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

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Visit, int, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, 0, err
	}
	f.OrganizationID = p.OrganizationID
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Visit, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	v, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.NotFound(entity, "Visit not found")
	}
	if err != nil {
		return nil, err
	}
	if v.OrganizationID != p.OrganizationID {
		return nil, api.NotFound(entity, "Visit not found")
	}
	return v, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Visit, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}
	if req.OrganizationID != nil && *req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot create visits outside your organization")
	}

	now := time.Now().Unix()
	v := &Visit{
		PatientID:      req.PatientID,
		ProviderID:     req.ProviderID,
		VisitDate:      req.VisitDate,
		VisitTime:      req.VisitTime,
		Duration:       req.Duration,
		VisitType:      req.VisitType,
		Status:         req.Status,
		Location:       req.Location,
		Notes:          req.Notes,
		Source:         req.Source,
		OrganizationID: p.OrganizationID,
		CreatedByID:    &p.UserID,
		UpdatedByID:    &p.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkRefs(ctx, p.OrganizationID, &req.PatientID, &req.ProviderID); err != nil {
			return err
		}
		return s.repo.Create(ctx, v)
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// checkRefs verifies that referenced patients and providers belong to the
// caller's organization. Nil ids are skipped.
func (s *Service) checkRefs(ctx context.Context, orgID uuid.UUID, patientID, providerID *uuid.UUID) error {
	if patientID != nil {
		ok, err := s.repo.PatientInOrg(ctx, *patientID, orgID)
		if err != nil {
			return err
		}
		if !ok {
			return api.ForeignKey(entity, "Patient not found")
		}
	}
	if providerID != nil {
		ok, err := s.repo.ProviderInOrg(ctx, *providerID, orgID)
		if err != nil {
			return err
		}
		if !ok {
			return api.ForeignKey(entity, "Provider not found")
		}
	}
	return nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Visit, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if req.OrganizationID != nil && *req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot update visits outside your organization or visit not found")
	}

	var v *Visit
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot update visits outside your organization or visit not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot update visits outside your organization or visit not found")
		}
		if err := s.checkRefs(ctx, p.OrganizationID, req.PatientID, req.ProviderID); err != nil {
			return err
		}

		if req.PatientID != nil {
			existing.PatientID = *req.PatientID
		}
		if req.ProviderID != nil {
			existing.ProviderID = *req.ProviderID
		}
		if req.VisitDate != nil {
			existing.VisitDate = *req.VisitDate
		}
		if req.VisitTime != nil {
			existing.VisitTime = req.VisitTime
		}
		if req.Duration != nil {
			existing.Duration = req.Duration
		}
		if req.VisitType != nil {
			existing.VisitType = *req.VisitType
		}
		if req.Status != nil {
			existing.Status = *req.Status
		}
		if req.Location != nil {
			existing.Location = req.Location
		}
		if req.Notes != nil {
			existing.Notes = req.Notes
		}
		if req.Source != nil {
			existing.Source = *req.Source
		}
		existing.UpdatedByID = &p.UserID
		existing.UpdatedAt = time.Now().Unix()

		if err := s.repo.Update(ctx, existing); err != nil {
			return err
		}
		v = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot delete visits outside your organization or visit not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot delete visits outside your organization or visit not found")
		}
		count, err := s.repo.ClaimCount(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return api.DeleteFailed(entity, "Visit has associated claims and cannot be deleted")
		}
		return s.repo.Delete(ctx, id)
	})
}
