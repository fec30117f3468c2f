package payor

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forager/billing/internal/platform/api"
	"github.com/forager/billing/internal/platform/auth"
)

type mockRepo struct {
	items map[uuid.UUID]*Payor
	plans map[uuid.UUID][]Plan
	deps  map[uuid.UUID]Dependents
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		items: make(map[uuid.UUID]*Payor),
		plans: make(map[uuid.UUID][]Plan),
		deps:  make(map[uuid.UUID]Dependents),
	}
}

func (m *mockRepo) Create(_ context.Context, p *Payor) error {
	p.ID = uuid.New()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Payor, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByExternalID(_ context.Context, orgID uuid.UUID, externalID string) (*Payor, error) {
	for _, p := range m.items {
		if p.OrganizationID == orgID && p.ExternalPayorID == externalID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Payor, int, error) {
	var result []*Payor
	for _, p := range m.items {
		if p.OrganizationID == f.OrganizationID {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, len(result), nil
}

func (m *mockRepo) Update(_ context.Context, p *Payor) error {
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *mockRepo) DependentCounts(_ context.Context, id uuid.UUID) (Dependents, error) {
	return m.deps[id], nil
}

func (m *mockRepo) PlansFor(_ context.Context, payorID uuid.UUID) ([]Plan, error) {
	return append([]Plan{}, m.plans[payorID]...), nil
}

func (m *mockRepo) ReplacePlans(_ context.Context, payorID uuid.UUID, plans []Plan) error {
	for i := range plans {
		plans[i].ID = uuid.New()
		plans[i].PayorID = payorID
	}
	m.plans[payorID] = plans
	return nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func billerCtx(orgID uuid.UUID) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{
		UserID:         uuid.New(),
		OrganizationID: orgID,
		Role:           auth.RoleBiller,
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

func boolptr(b bool) *bool    { return &b }
func strptr(s string) *string { return &s }

func validCreate() CreateRequest {
	return CreateRequest{
		Name:            "Blue Cross Blue Shield",
		ExternalPayorID: "BCBS-CA-001",
		PayorCategory:   "Commercial",
		BillingTaxonomy: "3336C0003X",
		Plans: []PlanInput{
			{PlanName: "BCBS PPO Gold", PlanType: "PPO", IsInNetwork: boolptr(true)},
			{PlanName: "BCBS HMO Silver", PlanType: "HMO", IsInNetwork: boolptr(true)},
		},
	}
}

func TestCreatePayor(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	svc := NewService(repo, passthroughTx{})

	py, err := svc.Create(billerCtx(orgID), validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(py.Plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(py.Plans))
	}
	if py.Plans[0].PayorID != py.ID {
		t.Error("plans not linked to payor")
	}
}

func TestCreatePayor_RequiresPlans(t *testing.T) {
	svc := NewService(newMockRepo(), passthroughTx{})
	req := validCreate()
	req.Plans = nil
	_, err := svc.Create(billerCtx(uuid.New()), req)
	expectCode(t, err, "PAYOR_VALIDATION_ERROR")
}

func TestCreatePayor_InvalidPlanType(t *testing.T) {
	svc := NewService(newMockRepo(), passthroughTx{})
	req := validCreate()
	req.Plans[0].PlanType = "Gold"
	_, err := svc.Create(billerCtx(uuid.New()), req)
	expectCode(t, err, "PAYOR_VALIDATION_ERROR")
}

func TestCreatePayor_DuplicateExternalID(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	svc := NewService(repo, passthroughTx{})

	ctx := billerCtx(orgID)
	if _, err := svc.Create(ctx, validCreate()); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := svc.Create(ctx, validCreate())
	expectCode(t, err, "PAYOR_DUPLICATE")
}

func TestUpdatePayor_ReplacesPlans(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	svc := NewService(repo, passthroughTx{})

	ctx := billerCtx(orgID)
	py, err := svc.Create(ctx, validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := svc.Update(ctx, py.ID, UpdateRequest{
		Plans: []PlanInput{{PlanName: "BCBS EPO Bronze", PlanType: "EPO", IsInNetwork: boolptr(false)}},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(updated.Plans) != 1 || updated.Plans[0].PlanName != "BCBS EPO Bronze" {
		t.Errorf("expected wholesale plan replacement, got %+v", updated.Plans)
	}
}

func TestUpdatePayor_NilPlansUntouched(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	svc := NewService(repo, passthroughTx{})

	ctx := billerCtx(orgID)
	py, err := svc.Create(ctx, validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := svc.Update(ctx, py.ID, UpdateRequest{Name: strptr("BCBS of California")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(updated.Plans) != 2 {
		t.Errorf("plans should survive a scalar-only update, got %d", len(updated.Plans))
	}
}

func TestGetPayor_CrossOrgNotFound(t *testing.T) {
	repo := newMockRepo()
	pid := uuid.New()
	repo.items[pid] = &Payor{ID: pid, OrganizationID: uuid.New()}
	svc := NewService(repo, passthroughTx{})

	_, err := svc.Get(billerCtx(uuid.New()), pid)
	expectCode(t, err, "PAYOR_NOT_FOUND")
}

func TestDeletePayor_WithDependents(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	pid := uuid.New()
	repo.items[pid] = &Payor{ID: pid, OrganizationID: orgID}
	repo.deps[pid] = Dependents{Claims: 1}
	svc := NewService(repo, passthroughTx{})

	err := svc.Delete(billerCtx(orgID), pid)
	expectCode(t, err, "PAYOR_DELETE_FAILED")
}

func TestCreatePayor_DeclaredForeignOrg(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, passthroughTx{})

	req := validCreate()
	other := uuid.New()
	req.OrganizationID = &other
	_, err := svc.Create(billerCtx(uuid.New()), req)
	expectCode(t, err, "PAYOR_FORBIDDEN")
	if len(repo.items) != 0 {
		t.Error("payor should not persist when the payload declares another organization")
	}
}
