package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	DependentCounts(ctx context.Context, id uuid.UUID) (Dependents, error)

	PlanInOrg(ctx context.Context, planID, orgID uuid.UUID) (bool, error)
	InsurancesFor(ctx context.Context, patientID uuid.UUID) ([]InsurancePolicy, error)
	ReplaceInsurances(ctx context.Context, patientID uuid.UUID, items []InsurancePolicy) error

	ListPolicies(ctx context.Context, f PolicyFilter, limit, offset int) ([]*InsurancePolicy, int, error)
	GetPolicy(ctx context.Context, id uuid.UUID) (*InsurancePolicy, error)
	UpdatePolicy(ctx context.Context, p *InsurancePolicy) error
	DeletePolicy(ctx context.Context, id uuid.UUID) error
}
