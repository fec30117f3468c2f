package claim

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	GetByNumber(ctx context.Context, orgID uuid.UUID, number string) (*Claim, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error)
	Update(ctx context.Context, c *Claim) error
	Delete(ctx context.Context, id uuid.UUID) error

	ServicesFor(ctx context.Context, claimID uuid.UUID) ([]ServiceLine, error)
	ReplaceServices(ctx context.Context, claimID uuid.UUID, services []ServiceLine) error
	TimelineFor(ctx context.Context, claimID uuid.UUID) ([]TimelineEntry, error)
	AppendTimeline(ctx context.Context, entry *TimelineEntry) error

	PatientInOrg(ctx context.Context, patientID, orgID uuid.UUID) (bool, error)
	ProviderInOrg(ctx context.Context, providerID, orgID uuid.UUID) (bool, error)
	PayorInOrg(ctx context.Context, payorID, orgID uuid.UUID) (bool, error)
	VisitInOrg(ctx context.Context, visitID, orgID uuid.UUID) (bool, error)
	CPTCodeInOrg(ctx context.Context, cptCodeID, orgID uuid.UUID) (bool, error)
}
