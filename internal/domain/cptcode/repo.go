package cptcode

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *CPTCode) error
	GetByID(ctx context.Context, id uuid.UUID) (*CPTCode, error)
	GetByCode(ctx context.Context, orgID uuid.UUID, code string) (*CPTCode, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*CPTCode, int, error)
	Update(ctx context.Context, c *CPTCode) error
	Delete(ctx context.Context, id uuid.UUID) error
	ServiceCount(ctx context.Context, id uuid.UUID) (int, error)
}
