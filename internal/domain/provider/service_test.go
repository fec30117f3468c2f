package provider

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
	items map[uuid.UUID]*Provider
	deps  map[uuid.UUID]Dependents
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		items: make(map[uuid.UUID]*Provider),
		deps:  make(map[uuid.UUID]Dependents),
	}
}

func (m *mockRepo) Create(_ context.Context, p *Provider) error {
	p.ID = uuid.New()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByNPI(_ context.Context, orgID uuid.UUID, npi string) (*Provider, error) {
	for _, p := range m.items {
		if p.OrganizationID == orgID && p.NPI != nil && *p.NPI == npi {
			cp := *p
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Provider, int, error) {
	var result []*Provider
	for _, p := range m.items {
		if p.OrganizationID != f.OrganizationID {
			continue
		}
		if f.Specialty != "" && (p.Specialty == nil || *p.Specialty != f.Specialty) {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (m *mockRepo) Update(_ context.Context, p *Provider) error {
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

func strptr(s string) *string { return &s }

func validCreate() CreateRequest {
	return CreateRequest{
		FirstName:   "Sarah",
		LastName:    "Smith",
		NPI:         strptr("9876543210"),
		Specialty:   strptr("Family Medicine"),
		LicenseType: "MD",
		Source:      "Manual",
	}
}

func TestCreateProvider(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	svc := NewService(repo, passthroughTx{})

	pr, err := svc.Create(billerCtx(orgID), validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if pr.OrganizationID != orgID {
		t.Errorf("expected provider scoped to caller org, got %s", pr.OrganizationID)
	}
}

func TestCreateProvider_MissingLicenseType(t *testing.T) {
	svc := NewService(newMockRepo(), passthroughTx{})
	req := validCreate()
	req.LicenseType = ""
	_, err := svc.Create(billerCtx(uuid.New()), req)
	expectCode(t, err, "PROVIDER_VALIDATION_ERROR")
}

func TestCreateProvider_DuplicateNPI(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	svc := NewService(repo, passthroughTx{})

	ctx := billerCtx(orgID)
	if _, err := svc.Create(ctx, validCreate()); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := svc.Create(ctx, validCreate())
	expectCode(t, err, "PROVIDER_DUPLICATE")
}

func TestCreateProvider_SameNPIOtherOrg(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, passthroughTx{})

	if _, err := svc.Create(billerCtx(uuid.New()), validCreate()); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := svc.Create(billerCtx(uuid.New()), validCreate()); err != nil {
		t.Errorf("NPI uniqueness should be per organization, got %v", err)
	}
}

func TestUpdateProvider_KeepsOwnNPI(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	svc := NewService(repo, passthroughTx{})

	ctx := billerCtx(orgID)
	pr, err := svc.Create(ctx, validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := svc.Update(ctx, pr.ID, UpdateRequest{NPI: strptr("9876543210"), Specialty: strptr("Cardiology")})
	if err != nil {
		t.Fatalf("re-submitting an unchanged NPI should not conflict: %v", err)
	}
	if updated.Specialty == nil || *updated.Specialty != "Cardiology" {
		t.Errorf("specialty not updated: %+v", updated.Specialty)
	}
}

func TestGetProvider_CrossOrgNotFound(t *testing.T) {
	repo := newMockRepo()
	pid := uuid.New()
	repo.items[pid] = &Provider{ID: pid, OrganizationID: uuid.New()}
	svc := NewService(repo, passthroughTx{})

	_, err := svc.Get(billerCtx(uuid.New()), pid)
	expectCode(t, err, "PROVIDER_NOT_FOUND")
}

func TestDeleteProvider_WithDependents(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	pid := uuid.New()
	repo.items[pid] = &Provider{ID: pid, OrganizationID: orgID}
	repo.deps[pid] = Dependents{Visits: 3}
	svc := NewService(repo, passthroughTx{})

	err := svc.Delete(billerCtx(orgID), pid)
	expectCode(t, err, "PROVIDER_DELETE_FAILED")
	if _, ok := repo.items[pid]; !ok {
		t.Error("provider should survive a blocked delete")
	}
}

func TestCreateProvider_DeclaredForeignOrg(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, passthroughTx{})

	req := validCreate()
	other := uuid.New()
	req.OrganizationID = &other
	_, err := svc.Create(billerCtx(uuid.New()), req)
	expectCode(t, err, "PROVIDER_FORBIDDEN")
	if len(repo.items) != 0 {
		t.Error("provider should not persist when the payload declares another organization")
	}
}
