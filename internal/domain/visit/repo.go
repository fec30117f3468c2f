package visit

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Visit, int, error)
	Update(ctx context.Context, v *Visit) error
	Delete(ctx context.Context, id uuid.UUID) error
	PatientInOrg(ctx context.Context, patientID, orgID uuid.UUID) (bool, error)
	ProviderInOrg(ctx context.Context, providerID, orgID uuid.UUID) (bool, error)
	ClaimCount(ctx context.Context, id uuid.UUID) (int, error)
}
