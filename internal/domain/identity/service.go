package identity

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forager/billing/internal/platform/api"
	"github.com/forager/billing/internal/platform/auth"
	"github.com/forager/billing/internal/platform/db"
)

const (
	entity     = "USER"
	authEntity = "AUTH"
)

type Service struct {
	repo   Repository
	tx     db.TxRunner
	issuer *auth.TokenIssuer
}

func NewService(repo Repository, tx db.TxRunner, issuer *auth.TokenIssuer) *Service {
	return &Service{repo: repo, tx: tx, issuer: issuer}
}

type CreateRequest struct {
	Email          string    `json:"email"`
	Password       string    `json:"password"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Role           string    `json:"role"`
	OrganizationID uuid.UUID `json:"organizationId"`
}

func (r CreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.EmailFormat),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 0)),
		validation.Field(&r.FirstName, validation.Required),
		validation.Field(&r.LastName, validation.Required),
		validation.Field(&r.Role, validation.Required, validation.By(validRole)),
		validation.Field(&r.OrganizationID, validation.Required, validation.By(notNilUUID)),
	)
}

type UpdateRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
	Role      *string `json:"role"`
}

func (r UpdateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Role, validation.By(func(v interface{}) error {
			role, _ := v.(*string)
			if role == nil {
				return nil
			}
			return validRole(*role)
		})),
	)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// LoginResult pairs the issued token with the authenticated user.
type LoginResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

func validRole(v interface{}) error {
	role, _ := v.(string)
	if !auth.ValidRoles[role] {
		return errors.New("must be one of Admin, Biller, Provider, FrontDesk")
	}
	return nil
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

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*User, int, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, 0, err
	}
	f.OrganizationID = p.OrganizationID
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.NotFound(entity, "User not found")
	}
	if err != nil {
		return nil, err
	}
	if u.OrganizationID != p.OrganizationID {
		return nil, api.NotFound(entity, "User not found")
	}
	return u, nil
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*User, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}
	if req.OrganizationID != p.OrganizationID {
		return nil, api.Forbidden(entity, "Cannot create users outside your organization")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	u := &User{
		Email:          req.Email,
		PasswordHash:   hash,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Role:           req.Role,
		OrganizationID: req.OrganizationID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
			return api.Duplicate(entity, "User with this email already exists")
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		exists, err := s.repo.OrganizationExists(ctx, req.OrganizationID)
		if err != nil {
			return err
		}
		if !exists {
			return api.ForeignKey("ORG", "Organization not found")
		}
		if err := s.repo.Create(ctx, u); err != nil {
			if db.IsUniqueViolation(err) {
				return api.Duplicate(entity, "User with this email already exists")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateRequest) (*User, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(entity, err)
	}

	var u *User
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot update users outside your organization or user not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot update users outside your organization or user not found")
		}

		if req.FirstName != nil {
			existing.FirstName = *req.FirstName
		}
		if req.LastName != nil {
			existing.LastName = *req.LastName
		}
		if req.Role != nil {
			existing.Role = *req.Role
		}
		existing.UpdatedAt = time.Now().Unix()

		if err := s.repo.Update(ctx, existing); err != nil {
			return err
		}
		u = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	if p.UserID == id {
		return api.Forbidden(entity, "Cannot delete your own user account")
	}
	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot delete users outside your organization or user not found")
		}
		if err != nil {
			return err
		}
		if existing.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot delete users outside your organization or user not found")
		}
		deps, err := s.repo.DependentCounts(ctx, id)
		if err != nil {
			return err
		}
		if deps.Any() {
			return api.DeleteFailed(entity, "User has dependent records and cannot be deleted")
		}
		return s.repo.Delete(ctx, id)
	})
}

// Login verifies credentials and issues a signed token. Missing users and bad
// passwords produce the same error so the login surface never reveals which
// side failed.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := req.Validate(); err != nil {
		return nil, api.FromValidation(authEntity, err)
	}

	u, err := s.repo.GetByEmail(ctx, req.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.Unauthorized(authEntity, "Invalid email or password")
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, api.Unauthorized(authEntity, "Invalid email or password")
	}

	token, err := s.issuer.Issue(auth.Principal{
		UserID:         u.ID,
		OrganizationID: u.OrganizationID,
		Role:           u.Role,
	})
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: u}, nil
}

// Me returns the authenticated user's own record.
func (s *Service) Me(ctx context.Context) (*User, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.GetByID(ctx, p.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.NotFound(entity, "User not found")
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
