package claim

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forager/billing/internal/platform/api"
	"github.com/forager/billing/internal/platform/auth"
)

type mockRepo struct {
	items    map[uuid.UUID]*Claim
	services map[uuid.UUID][]ServiceLine
	timeline map[uuid.UUID][]TimelineEntry

	patients  map[uuid.UUID]uuid.UUID
	providers map[uuid.UUID]uuid.UUID
	payors    map[uuid.UUID]uuid.UUID
	visits    map[uuid.UUID]uuid.UUID
	cptCodes  map[uuid.UUID]uuid.UUID
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		items:     make(map[uuid.UUID]*Claim),
		services:  make(map[uuid.UUID][]ServiceLine),
		timeline:  make(map[uuid.UUID][]TimelineEntry),
		patients:  make(map[uuid.UUID]uuid.UUID),
		providers: make(map[uuid.UUID]uuid.UUID),
		payors:    make(map[uuid.UUID]uuid.UUID),
		visits:    make(map[uuid.UUID]uuid.UUID),
		cptCodes:  make(map[uuid.UUID]uuid.UUID),
	}
}

func (m *mockRepo) Create(_ context.Context, c *Claim) error {
	c.ID = uuid.New()
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Claim, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (m *mockRepo) GetByNumber(_ context.Context, orgID uuid.UUID, number string) (*Claim, error) {
	for _, c := range m.items {
		if c.OrganizationID == orgID && c.ClaimNumber == number {
			cp := *c
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	var result []*Claim
	for _, c := range m.items {
		if c.OrganizationID != f.OrganizationID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.PatientID != nil && c.PatientID != *f.PatientID {
			continue
		}
		if f.AmountMin != nil && c.BilledAmount < *f.AmountMin {
			continue
		}
		if f.AmountMax != nil && c.BilledAmount > *f.AmountMax {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (m *mockRepo) Update(_ context.Context, c *Claim) error {
	cp := *c
	m.items[c.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	delete(m.services, id)
	delete(m.timeline, id)
	return nil
}

func (m *mockRepo) ServicesFor(_ context.Context, claimID uuid.UUID) ([]ServiceLine, error) {
	return append([]ServiceLine{}, m.services[claimID]...), nil
}

func (m *mockRepo) ReplaceServices(_ context.Context, claimID uuid.UUID, services []ServiceLine) error {
	for i := range services {
		services[i].ID = uuid.New()
		services[i].ClaimID = claimID
	}
	m.services[claimID] = services
	return nil
}

func (m *mockRepo) TimelineFor(_ context.Context, claimID uuid.UUID) ([]TimelineEntry, error) {
	return append([]TimelineEntry{}, m.timeline[claimID]...), nil
}

func (m *mockRepo) AppendTimeline(_ context.Context, entry *TimelineEntry) error {
	entry.ID = uuid.New()
	m.timeline[entry.ClaimID] = append(m.timeline[entry.ClaimID], *entry)
	return nil
}

func (m *mockRepo) PatientInOrg(_ context.Context, id, orgID uuid.UUID) (bool, error) {
	return m.patients[id] == orgID, nil
}

func (m *mockRepo) ProviderInOrg(_ context.Context, id, orgID uuid.UUID) (bool, error) {
	return m.providers[id] == orgID, nil
}

func (m *mockRepo) PayorInOrg(_ context.Context, id, orgID uuid.UUID) (bool, error) {
	return m.payors[id] == orgID, nil
}

func (m *mockRepo) VisitInOrg(_ context.Context, id, orgID uuid.UUID) (bool, error) {
	return m.visits[id] == orgID, nil
}

func (m *mockRepo) CPTCodeInOrg(_ context.Context, id, orgID uuid.UUID) (bool, error) {
	return m.cptCodes[id] == orgID, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	repo       *mockRepo
	svc        *Service
	ctx        context.Context
	orgID      uuid.UUID
	patientID  uuid.UUID
	providerID uuid.UUID
	payorID    uuid.UUID
	cptCodeID  uuid.UUID
}

func newFixture() *fixture {
	repo := newMockRepo()
	orgID := uuid.New()
	f := &fixture{
		repo:       repo,
		svc:        NewService(repo, passthroughTx{}),
		orgID:      orgID,
		patientID:  uuid.New(),
		providerID: uuid.New(),
		payorID:    uuid.New(),
		cptCodeID:  uuid.New(),
	}
	repo.patients[f.patientID] = orgID
	repo.providers[f.providerID] = orgID
	repo.payors[f.payorID] = orgID
	repo.cptCodes[f.cptCodeID] = orgID
	f.ctx = auth.WithPrincipal(context.Background(), auth.Principal{
		UserID:         uuid.New(),
		OrganizationID: orgID,
		Role:           auth.RoleBiller,
	})
	return f
}

func (f *fixture) validCreate() CreateRequest {
	amount := 150.0
	return CreateRequest{
		ClaimNumber:  "CLM-1001",
		PatientID:    f.patientID,
		ProviderID:   f.providerID,
		PayorID:      f.payorID,
		ServiceDate:  time.Now().Unix(),
		BilledAmount: &amount,
		Status:       "Pending",
		Source:       "Manual",
		Services: []ServiceInput{{
			CPTCodeID:  f.cptCodeID,
			Quantity:   1,
			UnitPrice:  150,
			TotalPrice: 150,
		}},
	}
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

func TestCreateClaim(t *testing.T) {
	f := newFixture()

	c, err := f.svc.Create(f.ctx, f.validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(c.Services) != 1 {
		t.Fatalf("expected 1 service line, got %d", len(c.Services))
	}
	if len(c.Timeline) != 1 {
		t.Fatalf("expected 1 timeline entry, got %d", len(c.Timeline))
	}
	entry := c.Timeline[0]
	if entry.Action != "Created" || entry.Status != "Pending" {
		t.Errorf("unexpected timeline entry: %+v", entry)
	}
	if entry.Notes != "Claim created with status: Pending" {
		t.Errorf("timeline notes = %q", entry.Notes)
	}
}

func TestCreateClaim_PaidAmountDefaultsToZero(t *testing.T) {
	f := newFixture()

	c, err := f.svc.Create(f.ctx, f.validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if c.PaidAmount != 0 {
		t.Errorf("expected paid amount 0, got %v", c.PaidAmount)
	}
	if c.SubmissionDate != nil {
		t.Errorf("expected nil submission date, got %v", *c.SubmissionDate)
	}

	body, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, key := range []string{`"paidAmount"`, `"submissionDate"`} {
		if !strings.Contains(string(body), key) {
			t.Errorf("claim JSON missing %s: %s", key, body)
		}
	}
}

func TestCreateClaim_PaidAmountAndSubmissionDate(t *testing.T) {
	f := newFixture()
	req := f.validCreate()
	paid := 75.0
	submitted := time.Now().Unix()
	req.PaidAmount = &paid
	req.SubmissionDate = &submitted

	c, err := f.svc.Create(f.ctx, req)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	stored := f.repo.items[c.ID]
	if stored.PaidAmount != 75.0 {
		t.Errorf("expected paid amount 75, got %v", stored.PaidAmount)
	}
	if stored.SubmissionDate == nil || *stored.SubmissionDate != submitted {
		t.Errorf("expected submission date %d, got %v", submitted, stored.SubmissionDate)
	}
}

func TestCreateClaim_NegativePaidAmount(t *testing.T) {
	f := newFixture()
	req := f.validCreate()
	paid := -1.0
	req.PaidAmount = &paid
	_, err := f.svc.Create(f.ctx, req)
	expectCode(t, err, "CLAIM_VALIDATION_ERROR")
}

func TestUpdateClaim_PaidAmountAndSubmissionDate(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Create(f.ctx, f.validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	paid := 120.0
	submitted := time.Now().Unix()
	updated, err := f.svc.Update(f.ctx, c.ID, UpdateRequest{
		PaidAmount:     &paid,
		SubmissionDate: &submitted,
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.PaidAmount != 120.0 {
		t.Errorf("expected paid amount 120, got %v", updated.PaidAmount)
	}
	if updated.SubmissionDate == nil || *updated.SubmissionDate != submitted {
		t.Errorf("expected submission date %d, got %v", submitted, updated.SubmissionDate)
	}
}

func TestCreateClaim_RequiresServices(t *testing.T) {
	f := newFixture()
	req := f.validCreate()
	req.Services = nil
	_, err := f.svc.Create(f.ctx, req)
	expectCode(t, err, "CLAIM_VALIDATION_ERROR")
}

func TestCreateClaim_TotalPriceMismatch(t *testing.T) {
	f := newFixture()
	req := f.validCreate()
	req.Services[0].Quantity = 2
	// total left at 150 while 2 x 150 = 300
	_, err := f.svc.Create(f.ctx, req)
	expectCode(t, err, "CLAIM_VALIDATION_ERROR")
}

func TestCreateClaim_DuplicateNumber(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Create(f.ctx, f.validCreate()); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	_, err := f.svc.Create(f.ctx, f.validCreate())
	expectCode(t, err, "CLAIM_DUPLICATE")
}

func TestCreateClaim_PayorOtherOrg(t *testing.T) {
	f := newFixture()
	req := f.validCreate()
	foreignPayor := uuid.New()
	f.repo.payors[foreignPayor] = uuid.New()
	req.PayorID = foreignPayor
	_, err := f.svc.Create(f.ctx, req)
	expectCode(t, err, "CLAIM_FOREIGN_KEY_ERROR")
	if len(f.repo.items) != 0 {
		t.Error("claim should not persist when a reference check fails")
	}
}

func TestCreateClaim_DeclaredForeignOrg(t *testing.T) {
	f := newFixture()
	req := f.validCreate()
	other := uuid.New()
	req.OrganizationID = &other
	_, err := f.svc.Create(f.ctx, req)
	expectCode(t, err, "CLAIM_FORBIDDEN")
	if len(f.repo.items) != 0 {
		t.Error("claim should not persist when the payload declares another organization")
	}

	// declaring the caller's own organization is allowed
	req.OrganizationID = &f.orgID
	if _, err := f.svc.Create(f.ctx, req); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

func TestUpdateClaim_DeclaredForeignOrg(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Create(f.ctx, f.validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	other := uuid.New()
	_, err = f.svc.Update(f.ctx, c.ID, UpdateRequest{OrganizationID: &other})
	expectCode(t, err, "CLAIM_FORBIDDEN")
}

func TestCreateClaim_UnknownCPTCode(t *testing.T) {
	f := newFixture()
	req := f.validCreate()
	req.Services[0].CPTCodeID = uuid.New()
	_, err := f.svc.Create(f.ctx, req)
	expectCode(t, err, "CLAIM_FOREIGN_KEY_ERROR")
}

func TestUpdateClaim_ReplacesServices(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Create(f.ctx, f.validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := f.svc.Update(f.ctx, c.ID, UpdateRequest{
		Services: []ServiceInput{{
			CPTCodeID:  f.cptCodeID,
			Quantity:   2,
			UnitPrice:  100,
			TotalPrice: 200,
		}},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(updated.Services) != 1 || updated.Services[0].TotalPrice != 200 {
		t.Errorf("expected wholesale service replacement, got %+v", updated.Services)
	}
}

func TestUpdateClaim_NilServicesUntouched(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Create(f.ctx, f.validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	status := "Submitted"
	updated, err := f.svc.Update(f.ctx, c.ID, UpdateRequest{Status: &status})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(updated.Services) != 1 || updated.Services[0].TotalPrice != 150 {
		t.Errorf("service lines should survive a scalar-only update, got %+v", updated.Services)
	}
	if updated.Status != "Submitted" {
		t.Errorf("status = %q", updated.Status)
	}
}

func TestUpdateStatus_AppendsTimeline(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Create(f.ctx, f.validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := f.svc.UpdateStatus(f.ctx, c.ID, StatusRequest{Status: "Submitted"})
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if updated.Status != "Submitted" {
		t.Errorf("status = %q", updated.Status)
	}
	if len(updated.Timeline) != 2 {
		t.Fatalf("expected 2 timeline entries, got %d", len(updated.Timeline))
	}
	last := updated.Timeline[1]
	if last.Action != "Status Updated" || last.Notes != "Status updated to: Submitted" {
		t.Errorf("unexpected timeline entry: %+v", last)
	}
}

func TestTimeline_InsertionOrderWithinSameSecond(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Create(f.ctx, f.validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// create plus two status moves land in the same epoch second
	for _, status := range []string{"Submitted", "Paid"} {
		if _, err := f.svc.UpdateStatus(f.ctx, c.ID, StatusRequest{Status: status}); err != nil {
			t.Fatalf("UpdateStatus(%s) error = %v", status, err)
		}
	}

	timeline, err := f.repo.TimelineFor(f.ctx, c.ID)
	if err != nil {
		t.Fatalf("TimelineFor() error = %v", err)
	}
	want := []string{"Created", "Status Updated", "Status Updated"}
	if len(timeline) != len(want) {
		t.Fatalf("expected %d timeline entries, got %d", len(want), len(timeline))
	}
	for i, e := range timeline {
		if e.Action != want[i] {
			t.Errorf("entry %d action = %q, want %q", i, e.Action, want[i])
		}
	}
	if timeline[2].Status != "Paid" {
		t.Errorf("final entry status = %q, want Paid", timeline[2].Status)
	}
}

func TestUpdateStatus_CustomNotes(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Create(f.ctx, f.validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	notes := "Payor requested medical records"
	updated, err := f.svc.UpdateStatus(f.ctx, c.ID, StatusRequest{Status: "Denied", Notes: &notes})
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	if updated.Timeline[1].Notes != notes {
		t.Errorf("timeline notes = %q", updated.Timeline[1].Notes)
	}
}

func TestUpdateStatus_RequiresStatus(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Create(f.ctx, f.validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err = f.svc.UpdateStatus(f.ctx, c.ID, StatusRequest{})
	expectCode(t, err, "CLAIM_VALIDATION_ERROR")
}

func TestDeleteClaim_Unconditional(t *testing.T) {
	f := newFixture()
	c, err := f.svc.Create(f.ctx, f.validCreate())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := f.svc.Delete(f.ctx, c.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := f.repo.items[c.ID]; ok {
		t.Error("claim should be removed")
	}
}

func TestGetClaim_CrossOrgNotFound(t *testing.T) {
	f := newFixture()
	cid := uuid.New()
	f.repo.items[cid] = &Claim{ID: cid, OrganizationID: uuid.New()}

	_, err := f.svc.Get(f.ctx, cid)
	expectCode(t, err, "CLAIM_NOT_FOUND")
}

func TestListClaims_AmountRange(t *testing.T) {
	f := newFixture()
	for i, amount := range []float64{100, 250, 900} {
		req := f.validCreate()
		req.ClaimNumber = req.ClaimNumber + string(rune('A'+i))
		req.BilledAmount = &amount
		if _, err := f.svc.Create(f.ctx, req); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	min, max := 200.0, 500.0
	items, total, err := f.svc.List(f.ctx, Filter{AmountMin: &min, AmountMax: &max}, 20, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].BilledAmount != 250 {
		t.Errorf("expected only the 250 claim, got total=%d items=%+v", total, items)
	}
}
