package rule

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Rule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	GetByName(ctx context.Context, orgID uuid.UUID, name string) (*Rule, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Rule, int, error)
	Update(ctx context.Context, r *Rule) error
	Delete(ctx context.Context, id uuid.UUID) error

	ListExecutions(ctx context.Context, f ExecutionFilter, limit, offset int) ([]*Execution, int, error)
	GetExecution(ctx context.Context, id uuid.UUID) (*Execution, error)
}
