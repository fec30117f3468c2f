package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forager/billing/internal/platform/api"
	"github.com/forager/billing/internal/platform/auth"
	"github.com/forager/billing/internal/platform/db"
)

const entity = "CLAIM"

type Service struct {
	repo Repository
	tx   db.TxRunner
}

func NewService(repo Repository, tx db.TxRunner) *Service {
	return &Service{repo: repo, tx: tx}
}

type ServiceInput struct {
	CPTCodeID   uuid.UUID `json:"cptCodeId"`
	Description *string   `json:"description"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unitPrice"`
	TotalPrice  float64   `json:"totalPrice"`
}

func (s ServiceInput) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.CPTCodeID, validation.By(notNilUUID)),
		validation.Field(&s.Quantity, validation.Required, validation.Min(1)),
		validation.Field(&s.UnitPrice, validation.Min(0.0)),
		validation.Field(&s.TotalPrice, validation.Min(0.0), validation.By(func(interface{}) error {
			if s.TotalPrice != float64(s.Quantity)*s.UnitPrice {
				return errors.New("must equal quantity times unit price")
			}
			return nil
		})),
	)
}

type CreateRequest struct {
	ClaimNumber    string         `json:"claimNumber"`
	PatientID      uuid.UUID      `json:"patientId"`
	ProviderID     uuid.UUID      `json:"providerId"`
	PayorID        uuid.UUID      `json:"payorId"`
	VisitID        *uuid.UUID     `json:"visitId"`
	ServiceDate    int64          `json:"serviceDate"`
	BilledAmount   *float64       `json:"billedAmount"`
	PaidAmount     *float64       `json:"paidAmount"`
	Status         string         `json:"status"`
	SubmissionDate *int64         `json:"submissionDate"`
	Notes          *string        `json:"notes"`
	Source         string         `json:"source"`
	OrganizationID *uuid.UUID     `json:"organizationId"`
	Services       []ServiceInput `json:"services"`
}

func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ClaimNumber, validation.Required),
		validation.Field(&r.PatientID, validation.By(notNilUUID)),
		validation.Field(&r.ProviderID, validation.By(notNilUUID)),
		validation.Field(&r.PayorID, validation.By(notNilUUID)),
		validation.Field(&r.ServiceDate, validation.Required),
		validation.Field(&r.BilledAmount, validation.NotNil, validation.Min(0.0)),
		validation.Field(&r.PaidAmount, validation.Min(0.0)),
		validation.Field(&r.Status, validation.Required),
		validation.Field(&r.Source, validation.Required),
		validation.Field(&r.Services, validation.Required.Error("at least one service is required")),
	)
}

// UpdateRequest carries partial updates; nil fields are left unchanged.
// A non-nil Services slice replaces the claim's service lines wholesale.
type UpdateRequest struct {
	ClaimNumber    *string        `json:"claimNumber"`
	PatientID      *uuid.UUID     `json:"patientId"`
	ProviderID     *uuid.UUID     `json:"providerId"`
	PayorID        *uuid.UUID     `json:"payorId"`
	VisitID        *uuid.UUID     `json:"visitId"`
	ServiceDate    *int64         `json:"serviceDate"`
	BilledAmount   *float64       `json:"billedAmount"`
	PaidAmount     *float64       `json:"paidAmount"`
	Status         *string        `json:"status"`
	SubmissionDate *int64         `json:"submissionDate"`
	Notes          *string        `json:"notes"`
	Source         *string        `json:"source"`
	OrganizationID *uuid.UUID     `json:"organizationId"`
	Services       []ServiceInput `json:"services"`
}

func (r UpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.BilledAmount, validation.Min(0.0)),
		validation.Field(&r.PaidAmount, validation.Min(0.0)),
		validation.Field(&r.Services),
	)
}

type StatusRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes"`
}

func (r StatusRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required),
	)
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

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, 0, err
	}
	f.OrganizationID = p.OrganizationID

	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, c := range items {
		if f.IncludeServices {
			if c.Services, err = s.repo.ServicesFor(ctx, c.ID); err != nil {
				return nil, 0, err
			}
		}
		if f.IncludeTimeline {
			if c.Timeline, err = s.repo.TimelineFor(ctx, c.ID); err != nil {
				return nil, 0, err
			}
		}
	}
	return items, total, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Claim, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	c, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.NotFound(entity, "Claim not found")
	}
	if err != nil {
		return nil, err
	}
	if c.OrganizationID != p.OrganizationID {
		return nil, api.NotFound(entity, "Claim not found")
	}
	if c.Services, err = s.repo.ServicesFor(ctx, c.ID); err != nil {
		return nil, err
	}
	if c.Timeline, err = s.repo.TimelineFor(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Claim, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}
	if req.OrganizationID != nil && *req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot create claims outside your organization")
	}

	now := time.Now().Unix()
	c := &Claim{
		ClaimNumber:    req.ClaimNumber,
		PatientID:      req.PatientID,
		ProviderID:     req.ProviderID,
		PayorID:        req.PayorID,
		VisitID:        req.VisitID,
		ServiceDate:    req.ServiceDate,
		BilledAmount:   *req.BilledAmount,
		Status:         req.Status,
		SubmissionDate: req.SubmissionDate,
		Notes:          req.Notes,
		Source:         req.Source,
		OrganizationID: p.OrganizationID,
		CreatedByID:    &p.UserID,
		UpdatedByID:    &p.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	// paidAmount defaults to 0 when omitted
	if req.PaidAmount != nil {
		c.PaidAmount = *req.PaidAmount
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkNumber(ctx, p.OrganizationID, req.ClaimNumber, uuid.Nil); err != nil {
			return err
		}
		if err := s.checkRefs(ctx, p.OrganizationID, &req.PatientID, &req.ProviderID, &req.PayorID, req.VisitID); err != nil {
			return err
		}
		if err := s.checkCPTCodes(ctx, p.OrganizationID, req.Services); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, c); err != nil {
			if db.IsUniqueViolation(err) {
				return api.Duplicate(entity, "Claim with this claim number already exists")
			}
			return err
		}
		if err := s.repo.ReplaceServices(ctx, c.ID, buildServices(req.Services, now)); err != nil {
			return err
		}
		return s.repo.AppendTimeline(ctx, &TimelineEntry{
			ClaimID:   c.ID,
			UserID:    &p.UserID,
			Action:    "Created",
			Status:    c.Status,
			Notes:     fmt.Sprintf("Claim created with status: %s", c.Status),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	if c.Services, err = s.repo.ServicesFor(ctx, c.ID); err != nil {
		return nil, err
	}
	if c.Timeline, err = s.repo.TimelineFor(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) checkNumber(ctx context.Context, orgID uuid.UUID, number string, selfID uuid.UUID) error {
	existing, err := s.repo.GetByNumber(ctx, orgID, number)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ID != selfID {
		return api.Duplicate(entity, "Claim with this claim number already exists")
	}
	return nil
}

// checkRefs verifies every referenced record belongs to the caller's
// organization. Nil ids are skipped so partial updates only validate what
// they change.
func (s *Service) checkRefs(ctx context.Context, orgID uuid.UUID, patientID, providerID, payorID, visitID *uuid.UUID) error {
	checks := []struct {
		id  *uuid.UUID
		fn  func(context.Context, uuid.UUID, uuid.UUID) (bool, error)
		msg string
	}{
		{patientID, s.repo.PatientInOrg, "Patient not found"},
		{providerID, s.repo.ProviderInOrg, "Provider not found"},
		{payorID, s.repo.PayorInOrg, "Payor not found"},
		{visitID, s.repo.VisitInOrg, "Visit not found"},
	}
	for _, ch := range checks {
		if ch.id == nil {
			continue
		}
		ok, err := ch.fn(ctx, *ch.id, orgID)
		if err != nil {
			return err
		}
		if !ok {
			return api.ForeignKey(entity, ch.msg)
		}
	}
	return nil
}

func (s *Service) checkCPTCodes(ctx context.Context, orgID uuid.UUID, services []ServiceInput) error {
	for _, in := range services {
		ok, err := s.repo.CPTCodeInOrg(ctx, in.CPTCodeID, orgID)
		if err != nil {
			return err
		}
		if !ok {
			return api.ForeignKey(entity, "CPT code not found")
		}
	}
	return nil
}

func buildServices(items []ServiceInput, now int64) []ServiceLine {
	out := make([]ServiceLine, len(items))
	for i, in := range items {
		out[i] = ServiceLine{
			CPTCodeID:   in.CPTCodeID,
			Description: in.Description,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			TotalPrice:  in.TotalPrice,
			CreatedAt:   now,
		}
	}
	return out
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Claim, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}
	if req.OrganizationID != nil && *req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot update claims outside your organization or claim not found")
	}

	var c *Claim
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot update claims outside your organization or claim not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot update claims outside your organization or claim not found")
		}
		if req.ClaimNumber != nil {
			if err := s.checkNumber(ctx, p.OrganizationID, *req.ClaimNumber, existing.ID); err != nil {
				return err
			}
			existing.ClaimNumber = *req.ClaimNumber
		}
		if err := s.checkRefs(ctx, p.OrganizationID, req.PatientID, req.ProviderID, req.PayorID, req.VisitID); err != nil {
			return err
		}

		if req.PatientID != nil {
			existing.PatientID = *req.PatientID
		}
		if req.ProviderID != nil {
			existing.ProviderID = *req.ProviderID
		}
		if req.PayorID != nil {
			existing.PayorID = *req.PayorID
		}
		if req.VisitID != nil {
			existing.VisitID = req.VisitID
		}
		if req.ServiceDate != nil {
			existing.ServiceDate = *req.ServiceDate
		}
		if req.BilledAmount != nil {
			existing.BilledAmount = *req.BilledAmount
		}
		if req.PaidAmount != nil {
			existing.PaidAmount = *req.PaidAmount
		}
		if req.Status != nil {
			existing.Status = *req.Status
		}
		if req.SubmissionDate != nil {
			existing.SubmissionDate = req.SubmissionDate
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
			if db.IsUniqueViolation(err) {
				return api.Duplicate(entity, "Claim with this claim number already exists")
			}
			return err
		}
		if req.Services != nil {
			if err := s.checkCPTCodes(ctx, p.OrganizationID, req.Services); err != nil {
				return err
			}
			if err := s.repo.ReplaceServices(ctx, existing.ID, buildServices(req.Services, existing.UpdatedAt)); err != nil {
				return err
			}
		}
		c = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c.Services, err = s.repo.ServicesFor(ctx, c.ID); err != nil {
		return nil, err
	}
	if c.Timeline, err = s.repo.TimelineFor(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateStatus moves the claim to a new status and appends a timeline entry
// recording who moved it and why.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, req StatusRequest) (*Claim, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}

	var c *Claim
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot update claims outside your organization or claim not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot update claims outside your organization or claim not found")
		}

		now := time.Now().Unix()
		existing.Status = req.Status
		existing.UpdatedByID = &p.UserID
		existing.UpdatedAt = now
		if err := s.repo.Update(ctx, existing); err != nil {
			return err
		}

		notes := fmt.Sprintf("Status updated to: %s", req.Status)
		if req.Notes != nil && *req.Notes != "" {
			notes = *req.Notes
		}
		if err := s.repo.AppendTimeline(ctx, &TimelineEntry{
			ClaimID:   existing.ID,
			UserID:    &p.UserID,
			Action:    "Status Updated",
			Status:    req.Status,
			Notes:     notes,
			CreatedAt: now,
		}); err != nil {
			return err
		}
		c = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	if c.Timeline, err = s.repo.TimelineFor(ctx, c.ID); err != nil {
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
			return api.Forbidden(entity, "Cannot delete claims outside your organization or claim not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot delete claims outside your organization or claim not found")
		}
		return s.repo.Delete(ctx, id)
	})
}
