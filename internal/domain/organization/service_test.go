package organization

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

// -- Mock Repository --

type mockRepo struct {
	items map[uuid.UUID]*Organization
	deps  map[uuid.UUID]Dependents
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Organization), deps: make(map[uuid.UUID]Dependents)}
}

func (m *mockRepo) Create(_ context.Context, o *Organization) error {
	o.ID = uuid.New()
	m.items[o.ID] = o
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Organization, error) {
	o, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *o
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Organization, int, error) {
	var result []*Organization
	for _, o := range m.items {
		if f.ScopeOrgID != nil {
			inScope := o.ID == *f.ScopeOrgID ||
				(o.ParentOrganizationID != nil && *o.ParentOrganizationID == *f.ScopeOrgID)
			if !inScope {
				continue
			}
		}
		result = append(result, o)
	}
	return result, len(result), nil
}

func (m *mockRepo) Update(_ context.Context, o *Organization) error {
	if _, ok := m.items[o.ID]; !ok {
		return pgx.ErrNoRows
	}
	m.items[o.ID] = o
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *mockRepo) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.items[id]
	return ok, nil
}

func (m *mockRepo) ChildRefs(_ context.Context, id uuid.UUID) ([]Ref, error) {
	refs := []Ref{}
	for _, o := range m.items {
		if o.ParentOrganizationID != nil && *o.ParentOrganizationID == id {
			refs = append(refs, Ref{ID: o.ID, Name: o.Name})
		}
	}
	return refs, nil
}

func (m *mockRepo) DependentCounts(_ context.Context, id uuid.UUID) (Dependents, error) {
	return m.deps[id], nil
}

// passthroughTx runs the closure without a real transaction.
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func adminCtx(orgID uuid.UUID) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{
		UserID:         uuid.New(),
		OrganizationID: orgID,
		Role:           auth.RoleAdmin,
	})
}

func billerCtx(orgID uuid.UUID) context.Context {
	return auth.WithPrincipal(context.Background(), auth.Principal{
		UserID:         uuid.New(),
		OrganizationID: orgID,
		Role:           auth.RoleBiller,
	})
}

func seedOrg(repo *mockRepo, name string, parent *uuid.UUID) *Organization {
	o := &Organization{
		ID:                   uuid.New(),
		Name:                 name,
		ParentOrganizationID: parent,
		CreatedAt:            time.Now().Unix(),
		UpdatedAt:            time.Now().Unix(),
	}
	repo.items[o.ID] = o
	return o
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

// -- Tests --

func TestCreateOrganization(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, passthroughTx{})

	o, err := svc.Create(adminCtx(uuid.New()), CreateRequest{Name: "Forager Medical Group"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if o.ID == uuid.Nil {
		t.Error("expected assigned id")
	}
	if o.CreatedByID == nil || o.UpdatedByID == nil {
		t.Error("expected audit user ids to be set")
	}
	if o.CreatedAt == 0 || o.UpdatedAt == 0 {
		t.Error("expected timestamps to be set")
	}
}

func TestCreateOrganization_MissingName(t *testing.T) {
	svc := NewService(newMockRepo(), passthroughTx{})

	_, err := svc.Create(adminCtx(uuid.New()), CreateRequest{})
	expectCode(t, err, "ORG_VALIDATION_ERROR")
}

func TestCreateOrganization_MissingParent(t *testing.T) {
	svc := NewService(newMockRepo(), passthroughTx{})

	missing := uuid.New()
	_, err := svc.Create(adminCtx(uuid.New()), CreateRequest{Name: "Clinic", ParentOrganizationID: &missing})
	expectCode(t, err, "ORG_FOREIGN_KEY_ERROR")
}

func TestCreateOrganization_NoPrincipal(t *testing.T) {
	svc := NewService(newMockRepo(), passthroughTx{})

	_, err := svc.Create(context.Background(), CreateRequest{Name: "Clinic"})
	expectCode(t, err, "ORG_UNAUTHORIZED")
}

func TestGetOrganization_ScopedToOwnAndChildren(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, passthroughTx{})

	own := seedOrg(repo, "Own", nil)
	child := seedOrg(repo, "Child", &own.ID)
	other := seedOrg(repo, "Other", nil)

	ctx := billerCtx(own.ID)
	if _, err := svc.Get(ctx, own.ID); err != nil {
		t.Errorf("expected own org visible, got %v", err)
	}
	if _, err := svc.Get(ctx, child.ID); err != nil {
		t.Errorf("expected child org visible, got %v", err)
	}
	_, err := svc.Get(ctx, other.ID)
	expectCode(t, err, "ORG_NOT_FOUND")
}

func TestListOrganizations_NonAdminScope(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, passthroughTx{})

	own := seedOrg(repo, "Own", nil)
	seedOrg(repo, "Child", &own.ID)
	seedOrg(repo, "Other", nil)

	items, total, err := svc.List(billerCtx(own.ID), Filter{}, 20, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("expected 2 scoped orgs, got total=%d len=%d", total, len(items))
	}
}

func TestUpdateOrganization_NonAdminOtherOrg(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, passthroughTx{})

	other := seedOrg(repo, "Other", nil)

	name := "Renamed"
	_, err := svc.Update(billerCtx(uuid.New()), other.ID, UpdateRequest{Name: &name})
	expectCode(t, err, "ORG_FORBIDDEN")
}

func TestUpdateOrganization_PartialFields(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, passthroughTx{})

	o := seedOrg(repo, "Before", nil)
	phone := "415-555-0100"
	o.Phone = &phone
	repo.items[o.ID] = o

	name := "After"
	updated, err := svc.Update(adminCtx(o.ID), o.ID, UpdateRequest{Name: &name})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Name != "After" {
		t.Errorf("expected name updated, got %q", updated.Name)
	}
	if updated.Phone == nil || *updated.Phone != phone {
		t.Error("expected untouched fields preserved")
	}
}

func TestDeleteOrganization_WithDependents(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, passthroughTx{})

	o := seedOrg(repo, "Busy", nil)
	repo.deps[o.ID] = Dependents{Patients: 3}

	err := svc.Delete(adminCtx(o.ID), o.ID)
	expectCode(t, err, "ORG_DELETE_FAILED")
	if _, ok := repo.items[o.ID]; !ok {
		t.Error("expected organization to survive a guarded delete")
	}
}

func TestDeleteOrganization_ChildOrgBlocks(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, passthroughTx{})

	o := seedOrg(repo, "Parent", nil)
	repo.deps[o.ID] = Dependents{ChildOrganizations: 1}

	err := svc.Delete(adminCtx(o.ID), o.ID)
	expectCode(t, err, "ORG_DELETE_FAILED")
}

func TestDeleteOrganization_Clean(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, passthroughTx{})

	o := seedOrg(repo, "Empty", nil)
	if err := svc.Delete(adminCtx(o.ID), o.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := repo.items[o.ID]; ok {
		t.Error("expected organization removed")
	}
}
