package payor

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Payor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payor, error)
	GetByExternalID(ctx context.Context, orgID uuid.UUID, externalID string) (*Payor, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Payor, int, error)
	Update(ctx context.Context, p *Payor) error
	Delete(ctx context.Context, id uuid.UUID) error
	DependentCounts(ctx context.Context, id uuid.UUID) (Dependents, error)

	PlansFor(ctx context.Context, payorID uuid.UUID) ([]Plan, error)
	ReplacePlans(ctx context.Context, payorID uuid.UUID, plans []Plan) error
}
