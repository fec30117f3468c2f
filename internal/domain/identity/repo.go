package identity

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*User, int, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id uuid.UUID) error
	OrganizationExists(ctx context.Context, id uuid.UUID) (bool, error)
	DependentCounts(ctx context.Context, id uuid.UUID) (Dependents, error)
}
