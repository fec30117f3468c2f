package patient

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
	items    map[uuid.UUID]*Patient
	policies map[uuid.UUID]*InsurancePolicy
	plans    map[uuid.UUID]uuid.UUID
	deps     map[uuid.UUID]Dependents
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		items:    make(map[uuid.UUID]*Patient),
		policies: make(map[uuid.UUID]*InsurancePolicy),
		plans:    make(map[uuid.UUID]uuid.UUID),
		deps:     make(map[uuid.UUID]Dependents),
	}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.items {
		if p.OrganizationID == f.OrganizationID {
			cp := *p
			result = append(result, &cp)
		}
	}
	return result, len(result), nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
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

func (m *mockRepo) PlanInOrg(_ context.Context, planID, orgID uuid.UUID) (bool, error) {
	org, ok := m.plans[planID]
	return ok && org == orgID, nil
}

func (m *mockRepo) InsurancesFor(_ context.Context, patientID uuid.UUID) ([]InsurancePolicy, error) {
	out := []InsurancePolicy{}
	for _, ip := range m.policies {
		if ip.PatientID == patientID {
			out = append(out, *ip)
		}
	}
	return out, nil
}

func (m *mockRepo) ReplaceInsurances(_ context.Context, patientID uuid.UUID, items []InsurancePolicy) error {
	for id, ip := range m.policies {
		if ip.PatientID == patientID {
			delete(m.policies, id)
		}
	}
	for i := range items {
		ip := items[i]
		ip.ID = uuid.New()
		ip.PatientID = patientID
		m.policies[ip.ID] = &ip
	}
	return nil
}

func (m *mockRepo) ListPolicies(_ context.Context, f PolicyFilter, limit, offset int) ([]*InsurancePolicy, int, error) {
	var result []*InsurancePolicy
	for _, ip := range m.policies {
		if ip.OrganizationID != f.OrganizationID {
			continue
		}
		if f.PatientID != nil && ip.PatientID != *f.PatientID {
			continue
		}
		if f.IsPrimary != nil && ip.IsPrimary != *f.IsPrimary {
			continue
		}
		cp := *ip
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (m *mockRepo) GetPolicy(_ context.Context, id uuid.UUID) (*InsurancePolicy, error) {
	ip, ok := m.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *ip
	return &cp, nil
}

func (m *mockRepo) UpdatePolicy(_ context.Context, ip *InsurancePolicy) error {
	cp := *ip
	m.policies[ip.ID] = &cp
	return nil
}

func (m *mockRepo) DeletePolicy(_ context.Context, id uuid.UUID) error {
	delete(m.policies, id)
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

func strptr(s string) *string { return &s }

func validCreate() CreateRequest {
	return CreateRequest{
		FirstName:   "Jane",
		LastName:    "Doe",
		DateOfBirth: "1985-03-15",
		Gender:      "Female",
		SSN:         strptr("123-45-6789"),
		Source:      "InClinic",
	}
}

func TestMaskSSN(t *testing.T) {
	if got := MaskSSN("123-45-6789"); got != "***-**-6789" {
		t.Errorf("MaskSSN() = %q", got)
	}
	if got := MaskSSN("89"); got != "***-**-****" {
		t.Errorf("MaskSSN() short = %q", got)
	}
}

func TestCreatePatient_MasksSSN(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	svc := NewService(repo, passthroughTx{})

	pt, err := svc.Create(billerCtx(orgID), validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if pt.SSN == nil || *pt.SSN != "***-**-6789" {
		t.Errorf("expected masked SSN in response, got %v", pt.SSN)
	}
	stored := repo.items[pt.ID]
	if stored.SSN == nil || *stored.SSN != "123-45-6789" {
		t.Errorf("expected full SSN at rest, got %v", stored.SSN)
	}
}

func TestCreatePatient_WithInsurance(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	planID := uuid.New()
	repo.plans[planID] = orgID
	svc := NewService(repo, passthroughTx{})

	req := validCreate()
	req.Insurances = []InsuranceInput{{
		PlanID:      planID,
		MemberID:    "BCBS123456789",
		IsPrimary:   true,
		InsuredType: "Subscriber",
	}}
	pt, err := svc.Create(billerCtx(orgID), req)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(pt.Insurances) != 1 {
		t.Fatalf("expected 1 insurance, got %d", len(pt.Insurances))
	}
	if pt.Insurances[0].PatientID != pt.ID {
		t.Error("insurance not linked to patient")
	}
}

func TestCreatePatient_UnknownPlan(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, passthroughTx{})

	req := validCreate()
	req.Insurances = []InsuranceInput{{
		PlanID:      uuid.New(),
		MemberID:    "X1",
		InsuredType: "Subscriber",
	}}
	_, err := svc.Create(billerCtx(uuid.New()), req)
	expectCode(t, err, "PATIENT_FOREIGN_KEY_ERROR")
	if len(repo.items) != 0 {
		t.Error("patient should not persist when a plan reference is invalid")
	}
}

func TestCreatePatient_PlanFromOtherOrg(t *testing.T) {
	repo := newMockRepo()
	planID := uuid.New()
	repo.plans[planID] = uuid.New()
	svc := NewService(repo, passthroughTx{})

	req := validCreate()
	req.Insurances = []InsuranceInput{{
		PlanID:      planID,
		MemberID:    "X1",
		InsuredType: "Subscriber",
	}}
	_, err := svc.Create(billerCtx(uuid.New()), req)
	expectCode(t, err, "PATIENT_FOREIGN_KEY_ERROR")
	if len(repo.items) != 0 {
		t.Error("patient should not persist when the plan belongs to another organization")
	}
}

func TestCreatePatient_DependentNeedsSubscriber(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	planID := uuid.New()
	repo.plans[planID] = orgID
	svc := NewService(repo, passthroughTx{})

	req := validCreate()
	req.Insurances = []InsuranceInput{{
		PlanID:      planID,
		MemberID:    "X1",
		InsuredType: "Dependent",
	}}
	_, err := svc.Create(billerCtx(orgID), req)
	expectCode(t, err, "PATIENT_VALIDATION_ERROR")
}

func TestUpdatePatient_ReplacesInsurances(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	planA, planB := uuid.New(), uuid.New()
	repo.plans[planA] = orgID
	repo.plans[planB] = orgID
	svc := NewService(repo, passthroughTx{})

	ctx := billerCtx(orgID)
	req := validCreate()
	req.Insurances = []InsuranceInput{{PlanID: planA, MemberID: "OLD", InsuredType: "Subscriber"}}
	pt, err := svc.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := svc.Update(ctx, pt.ID, UpdateRequest{
		Insurances: []InsuranceInput{{PlanID: planB, MemberID: "NEW", IsPrimary: true, InsuredType: "Subscriber"}},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(updated.Insurances) != 1 || updated.Insurances[0].MemberID != "NEW" {
		t.Errorf("expected wholesale replacement, got %+v", updated.Insurances)
	}
}

func TestUpdatePatient_NilInsurancesUntouched(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	planID := uuid.New()
	repo.plans[planID] = orgID
	svc := NewService(repo, passthroughTx{})

	ctx := billerCtx(orgID)
	req := validCreate()
	req.Insurances = []InsuranceInput{{PlanID: planID, MemberID: "KEEP", InsuredType: "Subscriber"}}
	pt, err := svc.Create(ctx, req)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := svc.Update(ctx, pt.ID, UpdateRequest{Phone: strptr("415-555-0100")})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(updated.Insurances) != 1 || updated.Insurances[0].MemberID != "KEEP" {
		t.Errorf("insurances should survive a scalar-only update, got %+v", updated.Insurances)
	}
}

func TestUpdatePatient_CrossOrgMasked(t *testing.T) {
	repo := newMockRepo()
	pid := uuid.New()
	repo.items[pid] = &Patient{ID: pid, OrganizationID: uuid.New()}
	svc := NewService(repo, passthroughTx{})

	_, err := svc.Update(billerCtx(uuid.New()), pid, UpdateRequest{FirstName: strptr("X")})
	expectCode(t, err, "PATIENT_FORBIDDEN")
}

func TestGetPatient_CrossOrgNotFound(t *testing.T) {
	repo := newMockRepo()
	pid := uuid.New()
	repo.items[pid] = &Patient{ID: pid, OrganizationID: uuid.New()}
	svc := NewService(repo, passthroughTx{})

	_, err := svc.Get(billerCtx(uuid.New()), pid)
	expectCode(t, err, "PATIENT_NOT_FOUND")
}

func TestDeletePatient_WithDependents(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	pid := uuid.New()
	repo.items[pid] = &Patient{ID: pid, OrganizationID: orgID}
	repo.deps[pid] = Dependents{Claims: 1}
	svc := NewService(repo, passthroughTx{})

	err := svc.Delete(billerCtx(orgID), pid)
	expectCode(t, err, "PATIENT_DELETE_FAILED")
	if _, ok := repo.items[pid]; !ok {
		t.Error("patient should survive a blocked delete")
	}
}

func TestUpdatePolicy(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	polID := uuid.New()
	repo.policies[polID] = &InsurancePolicy{ID: polID, PatientID: uuid.New(), MemberID: "OLD", OrganizationID: orgID}
	svc := NewService(repo, passthroughTx{})

	primary := true
	ip, err := svc.UpdatePolicy(billerCtx(orgID), polID, PolicyUpdateRequest{
		MemberID:  strptr("NEW"),
		IsPrimary: &primary,
	})
	if err != nil {
		t.Fatalf("UpdatePolicy() error = %v", err)
	}
	if ip.MemberID != "NEW" || !ip.IsPrimary {
		t.Errorf("policy not updated: %+v", ip)
	}
}

func TestGetPolicy_CrossOrgNotFound(t *testing.T) {
	repo := newMockRepo()
	polID := uuid.New()
	repo.policies[polID] = &InsurancePolicy{ID: polID, OrganizationID: uuid.New()}
	svc := NewService(repo, passthroughTx{})

	_, err := svc.GetPolicy(billerCtx(uuid.New()), polID)
	expectCode(t, err, "POLICY_NOT_FOUND")
}

func TestCreatePatient_DeclaredForeignOrg(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, passthroughTx{})

	req := validCreate()
	other := uuid.New()
	req.OrganizationID = &other
	_, err := svc.Create(billerCtx(uuid.New()), req)
	expectCode(t, err, "PATIENT_FORBIDDEN")
	if len(repo.items) != 0 {
		t.Error("patient should not persist when the payload declares another organization")
	}
}
