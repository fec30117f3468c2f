package provider

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Provider) error
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetByNPI(ctx context.Context, orgID uuid.UUID, npi string) (*Provider, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Provider, int, error)
	Update(ctx context.Context, p *Provider) error
	Delete(ctx context.Context, id uuid.UUID) error
	DependentCounts(ctx context.Context, id uuid.UUID) (Dependents, error)
}
