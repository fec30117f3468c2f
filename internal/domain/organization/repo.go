package organization

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, o *Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Organization, int, error)
	Update(ctx context.Context, o *Organization) error
	Delete(ctx context.Context, id uuid.UUID) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	ChildRefs(ctx context.Context, id uuid.UUID) ([]Ref, error)
	DependentCounts(ctx context.Context, id uuid.UUID) (Dependents, error)
}
