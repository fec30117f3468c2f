package patient

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

const (
	entity       = "PATIENT"
	policyEntity = "POLICY"
)

const dateLayout = "2006-01-02"

type Service struct {
	repo Repository
	tx   db.TxRunner
}

func NewService(repo Repository, tx db.TxRunner) *Service {
	return &Service{repo: repo, tx: tx}
}

type InsuranceInput struct {
	PlanID         uuid.UUID `json:"planId"`
	MemberID       string    `json:"memberId"`
	GroupNumber    *string   `json:"groupNumber"`
	IsPrimary      bool      `json:"isPrimary"`
	InsuredType    string    `json:"insuredType"`
	SubscriberName *string   `json:"subscriberName"`
	SubscriberDOB  *string   `json:"subscriberDob"`
}

func (i InsuranceInput) Validate() error {
	dependent := i.InsuredType == "Dependent"
	return validation.ValidateStruct(&i,
		validation.Field(&i.PlanID, validation.By(notNilUUID)),
		validation.Field(&i.MemberID, validation.Required),
		validation.Field(&i.InsuredType, validation.Required, validation.In("Subscriber", "Dependent")),
		validation.Field(&i.SubscriberName, validation.Required.When(dependent).Error("is required for dependents")),
		validation.Field(&i.SubscriberDOB,
			validation.Required.When(dependent).Error("is required for dependents"),
			validation.Date(dateLayout)),
	)
}

type CreateRequest struct {
	Prefix      *string          `json:"prefix"`
	FirstName   string           `json:"firstName"`
	MiddleName  *string          `json:"middleName"`
	LastName    string           `json:"lastName"`
	Suffix      *string          `json:"suffix"`
	DateOfBirth string           `json:"dateOfBirth"`
	Gender      string           `json:"gender"`
	SSN         *string          `json:"ssn"`
	Phone       *string          `json:"phone"`
	Email       *string          `json:"email"`
	Address     *Address         `json:"address"`
	Source      string           `json:"source"`

	OrganizationID *uuid.UUID `json:"organizationId"`

	Insurances []InsuranceInput `json:"insurances"`
}

func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required),
		validation.Field(&r.LastName, validation.Required),
		validation.Field(&r.DateOfBirth, validation.Required, validation.Date(dateLayout)),
		validation.Field(&r.Gender, validation.Required),
		validation.Field(&r.Source, validation.Required),
		validation.Field(&r.Insurances),
	)
}

// UpdateRequest carries partial updates; nil fields are left unchanged.
// A non-nil Insurances slice replaces the patient's policy set wholesale.
type UpdateRequest struct {
	Prefix      *string          `json:"prefix"`
	FirstName   *string          `json:"firstName"`
	MiddleName  *string          `json:"middleName"`
	LastName    *string          `json:"lastName"`
	Suffix      *string          `json:"suffix"`
	DateOfBirth *string          `json:"dateOfBirth"`
	Gender      *string          `json:"gender"`
	SSN         *string          `json:"ssn"`
	Phone       *string          `json:"phone"`
	Email       *string          `json:"email"`
	Address     *Address         `json:"address"`
	Source      *string          `json:"source"`

	OrganizationID *uuid.UUID `json:"organizationId"`

	Insurances []InsuranceInput `json:"insurances"`
}

func (r UpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DateOfBirth, validation.Date(dateLayout)),
		validation.Field(&r.Insurances),
	)
}

type PolicyUpdateRequest struct {
	MemberID       *string `json:"memberId"`
	GroupNumber    *string `json:"groupNumber"`
	IsPrimary      *bool   `json:"isPrimary"`
	SubscriberName *string `json:"subscriberName"`
	SubscriberDOB  *string `json:"subscriberDob"`
}

func (r PolicyUpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SubscriberDOB, validation.Date(dateLayout)),
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

// MaskSSN redacts all but the last four digits. Full SSNs never leave the
// service layer.
func MaskSSN(ssn string) string {
	if len(ssn) < 4 {
		return "***-**-****"
	}
	return "***-**-" + ssn[len(ssn)-4:]
}

func maskPatient(p *Patient) *Patient {
	if p.SSN != nil {
		masked := MaskSSN(*p.SSN)
		p.SSN = &masked
	}
	return p
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, 0, err
	}
	f.OrganizationID = p.OrganizationID

	items, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for _, pt := range items {
		maskPatient(pt)
		if f.IncludeInsurances {
			if pt.Insurances, err = s.repo.InsurancesFor(ctx, pt.ID); err != nil {
				return nil, 0, err
			}
		}
	}
	return items, total, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	pt, err := s.get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if pt.Insurances, err = s.repo.InsurancesFor(ctx, pt.ID); err != nil {
		return nil, err
	}
	return maskPatient(pt), nil
}

func (s *Service) get(ctx context.Context, p auth.Principal, id uuid.UUID) (*Patient, error) {
	pt, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.NotFound(entity, "Patient not found")
	}
	if err != nil {
		return nil, err
	}
	if pt.OrganizationID != p.OrganizationID {
		return nil, api.NotFound(entity, "Patient not found")
	}
	return pt, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*Patient, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}
	if req.OrganizationID != nil && *req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot create patients outside your organization")
	}

	now := time.Now().Unix()
	pt := &Patient{
		Prefix:         req.Prefix,
		FirstName:      req.FirstName,
		MiddleName:     req.MiddleName,
		LastName:       req.LastName,
		Suffix:         req.Suffix,
		DateOfBirth:    req.DateOfBirth,
		Gender:         req.Gender,
		SSN:            req.SSN,
		Phone:          req.Phone,
		Email:          req.Email,
		Address:        req.Address,
		Source:         req.Source,
		OrganizationID: p.OrganizationID,
		CreatedByID:    &p.UserID,
		UpdatedByID:    &p.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.checkPlans(ctx, p.OrganizationID, req.Insurances); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, pt); err != nil {
			return err
		}
		if len(req.Insurances) > 0 {
			return s.repo.ReplaceInsurances(ctx, pt.ID, buildPolicies(req.Insurances, now))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pt.Insurances, err = s.repo.InsurancesFor(ctx, pt.ID); err != nil {
		return nil, err
	}
	return maskPatient(pt), nil
}

func (s *Service) checkPlans(ctx context.Context, orgID uuid.UUID, items []InsuranceInput) error {
	for _, in := range items {
		ok, err := s.repo.PlanInOrg(ctx, in.PlanID, orgID)
		if err != nil {
			return err
		}
		if !ok {
			return api.ForeignKey(entity, "Insurance plan not found")
		}
	}
	return nil
}

func buildPolicies(items []InsuranceInput, now int64) []InsurancePolicy {
	out := make([]InsurancePolicy, len(items))
	for i, in := range items {
		out[i] = InsurancePolicy{
			PlanID:         in.PlanID,
			MemberID:       in.MemberID,
			GroupNumber:    in.GroupNumber,
			IsPrimary:      in.IsPrimary,
			InsuredType:    in.InsuredType,
			SubscriberName: in.SubscriberName,
			SubscriberDOB:  in.SubscriberDOB,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}
	return out
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*Patient, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}
	if req.OrganizationID != nil && *req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot update patients outside your organization or patient not found")
	}

	var pt *Patient
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot update patients outside your organization or patient not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot update patients outside your organization or patient not found")
		}

		if req.Prefix != nil {
			existing.Prefix = req.Prefix
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
		if req.Suffix != nil {
			existing.Suffix = req.Suffix
		}
		if req.DateOfBirth != nil {
			existing.DateOfBirth = *req.DateOfBirth
		}
		if req.Gender != nil {
			existing.Gender = *req.Gender
		}
		if req.SSN != nil {
			existing.SSN = req.SSN
		}
		if req.Phone != nil {
			existing.Phone = req.Phone
		}
		if req.Email != nil {
			existing.Email = req.Email
		}
		if req.Address != nil {
			existing.Address = req.Address
		}
		if req.Source != nil {
			existing.Source = *req.Source
		}
		existing.UpdatedByID = &p.UserID
		existing.UpdatedAt = time.Now().Unix()

		if err := s.repo.Update(ctx, existing); err != nil {
			return err
		}
		if req.Insurances != nil {
			if err := s.checkPlans(ctx, p.OrganizationID, req.Insurances); err != nil {
				return err
			}
			if err := s.repo.ReplaceInsurances(ctx, existing.ID, buildPolicies(req.Insurances, existing.UpdatedAt)); err != nil {
				return err
			}
		}
		pt = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pt.Insurances, err = s.repo.InsurancesFor(ctx, pt.ID); err != nil {
		return nil, err
	}
	return maskPatient(pt), nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot delete patients outside your organization or patient not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot delete patients outside your organization or patient not found")
		}
		deps, err := s.repo.DependentCounts(ctx, id)
		if err != nil {
			return err
		}
		if deps.Any() {
			return api.DeleteFailed(entity, "Patient has dependent records and cannot be deleted")
		}
		return s.repo.Delete(ctx, id)
	})
}

func (s *Service) ListPolicies(ctx context.Context, f PolicyFilter, limit, offset int) ([]*InsurancePolicy, int, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, 0, err
	}
	f.OrganizationID = p.OrganizationID
	return s.repo.ListPolicies(ctx, f, limit, offset)
}

func (s *Service) GetPolicy(ctx context.Context, id uuid.UUID) (*InsurancePolicy, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	ip, err := s.repo.GetPolicy(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.NotFound(policyEntity, "Insurance policy not found")
	}
	if err != nil {
		return nil, err
	}
	if ip.OrganizationID != p.OrganizationID {
		return nil, api.NotFound(policyEntity, "Insurance policy not found")
	}
	return ip, nil
}

func (s *Service) UpdatePolicy(ctx context.Context, id uuid.UUID, req PolicyUpdateRequest) (*InsurancePolicy, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(policyEntity, err)
	}

	var ip *InsurancePolicy
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetPolicy(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(policyEntity, "Cannot update insurance policies outside your organization or policy not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(policyEntity, "Cannot update insurance policies outside your organization or policy not found")
		}

		if req.MemberID != nil {
			existing.MemberID = *req.MemberID
		}
		if req.GroupNumber != nil {
			existing.GroupNumber = req.GroupNumber
		}
		if req.IsPrimary != nil {
			existing.IsPrimary = *req.IsPrimary
		}
		if req.SubscriberName != nil {
			existing.SubscriberName = req.SubscriberName
		}
		if req.SubscriberDOB != nil {
			existing.SubscriberDOB = req.SubscriberDOB
		}
		existing.UpdatedAt = time.Now().Unix()

		if err := s.repo.UpdatePolicy(ctx, existing); err != nil {
			return err
		}
		ip = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ip, nil
}

func (s *Service) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetPolicy(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(policyEntity, "Cannot delete insurance policies outside your organization or policy not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(policyEntity, "Cannot delete insurance policies outside your organization or policy not found")
		}
		return s.repo.DeletePolicy(ctx, id)
	})
}
