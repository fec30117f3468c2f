package attachment

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Attachment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Attachment, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Attachment, int, error)
	Delete(ctx context.Context, id uuid.UUID) error

	ClaimInOrg(ctx context.Context, claimID, orgID uuid.UUID) (bool, error)
	PatientInOrg(ctx context.Context, patientID, orgID uuid.UUID) (bool, error)
}
