package visit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forager/billing/internal/platform/api"
	"github.com/forager/billing/internal/platform/auth"
)

type orgRef struct{ org uuid.UUID }

type mockRepo struct {
	items     map[uuid.UUID]*Visit
	patients  map[uuid.UUID]orgRef
	providers map[uuid.UUID]orgRef
	claims    map[uuid.UUID]int
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		items:     make(map[uuid.UUID]*Visit),
		patients:  make(map[uuid.UUID]orgRef),
		providers: make(map[uuid.UUID]orgRef),
		claims:    make(map[uuid.UUID]int),
	}
}

func (m *mockRepo) Create(_ context.Context, v *Visit) error {
	v.ID = uuid.New()
	cp := *v
	m.items[v.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Visit, error) {
	v, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *v
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Visit, int, error) {
	var result []*Visit
	for _, v := range m.items {
		if v.OrganizationID != f.OrganizationID {
			continue
		}
		if f.PatientID != nil && v.PatientID != *f.PatientID {
			continue
		}
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		cp := *v
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (m *mockRepo) Update(_ context.Context, v *Visit) error {
	cp := *v
	m.items[v.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *mockRepo) PatientInOrg(_ context.Context, patientID, orgID uuid.UUID) (bool, error) {
	ref, ok := m.patients[patientID]
	return ok && ref.org == orgID, nil
}

func (m *mockRepo) ProviderInOrg(_ context.Context, providerID, orgID uuid.UUID) (bool, error) {
	ref, ok := m.providers[providerID]
	return ok && ref.org == orgID, nil
}

func (m *mockRepo) ClaimCount(_ context.Context, id uuid.UUID) (int, error) {
	return m.claims[id], nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func frontDeskCtx(orgID uuid.UUID) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{
		UserID:         uuid.New(),
		OrganizationID: orgID,
		Role:           auth.RoleFrontDesk,
	})
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api error with code %s, got %v", code, err)
	}
	if apiErr.Code != code {
		t.Fatalf("expected code %s, got %s", code, apiErr.Code)
	}
}

func validCreate(patientID, providerID uuid.UUID) CreateRequest {
	return CreateRequest{
		PatientID:  patientID,
		ProviderID: providerID,
		VisitDate:  time.Now().Unix(),
		VisitType:  "FollowUp",
		Status:     "Completed",
		Source:     "InClinic",
	}
}

func TestCreateVisit(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	patientID, providerID := uuid.New(), uuid.New()
	repo.patients[patientID] = orgRef{orgID}
	repo.providers[providerID] = orgRef{orgID}
	svc := NewService(repo, passthroughTx{})

	v, err := svc.Create(frontDeskCtx(orgID), validCreate(patientID, providerID))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if v.OrganizationID != orgID {
		t.Errorf("visit not scoped to caller org: %s", v.OrganizationID)
	}
}

func TestCreateVisit_PatientOtherOrg(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	patientID, providerID := uuid.New(), uuid.New()
	repo.patients[patientID] = orgRef{uuid.New()}
	repo.providers[providerID] = orgRef{orgID}
	svc := NewService(repo, passthroughTx{})

	_, err := svc.Create(frontDeskCtx(orgID), validCreate(patientID, providerID))
	expectCode(t, err, "VISIT_FOREIGN_KEY_ERROR")
	if len(repo.items) != 0 {
		t.Error("visit should not persist when the patient reference fails")
	}
}

func TestCreateVisit_UnknownProvider(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	patientID := uuid.New()
	repo.patients[patientID] = orgRef{orgID}
	svc := NewService(repo, passthroughTx{})

	_, err := svc.Create(frontDeskCtx(orgID), validCreate(patientID, uuid.New()))
	expectCode(t, err, "VISIT_FOREIGN_KEY_ERROR")
}

func TestCreateVisit_MissingFields(t *testing.T) {
	svc := NewService(newMockRepo(), passthroughTx{})
	_, err := svc.Create(frontDeskCtx(uuid.New()), CreateRequest{})
	expectCode(t, err, "VISIT_VALIDATION_ERROR")
}

func TestUpdateVisit_RevalidatesRefs(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	patientID, providerID := uuid.New(), uuid.New()
	repo.patients[patientID] = orgRef{orgID}
	repo.providers[providerID] = orgRef{orgID}
	svc := NewService(repo, passthroughTx{})

	ctx := frontDeskCtx(orgID)
	v, err := svc.Create(ctx, validCreate(patientID, providerID))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	foreign := uuid.New()
	repo.patients[foreign] = orgRef{uuid.New()}
	_, err = svc.Update(ctx, v.ID, UpdateRequest{PatientID: &foreign})
	expectCode(t, err, "VISIT_FOREIGN_KEY_ERROR")
}

func TestDeleteVisit_WithClaims(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	vid := uuid.New()
	repo.items[vid] = &Visit{ID: vid, OrganizationID: orgID}
	repo.claims[vid] = 1
	svc := NewService(repo, passthroughTx{})

	err := svc.Delete(frontDeskCtx(orgID), vid)
	expectCode(t, err, "VISIT_DELETE_FAILED")
}

func TestGetVisit_CrossOrgNotFound(t *testing.T) {
	repo := newMockRepo()
	vid := uuid.New()
	repo.items[vid] = &Visit{ID: vid, OrganizationID: uuid.New()}
	svc := NewService(repo, passthroughTx{})

	_, err := svc.Get(frontDeskCtx(uuid.New()), vid)
	expectCode(t, err, "VISIT_NOT_FOUND")
}

func TestCreateVisit_DeclaredForeignOrg(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	patientID, providerID := uuid.New(), uuid.New()
	repo.patients[patientID] = orgRef{orgID}
	repo.providers[providerID] = orgRef{orgID}
	svc := NewService(repo, passthroughTx{})

	req := validCreate(patientID, providerID)
	other := uuid.New()
	req.OrganizationID = &other
	_, err := svc.Create(frontDeskCtx(orgID), req)
	expectCode(t, err, "VISIT_FORBIDDEN")
	if len(repo.items) != 0 {
		t.Error("visit should not persist when the payload declares another organization")
	}
}
