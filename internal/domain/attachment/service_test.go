package attachment

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forager/billing/internal/platform/api"
	"github.com/forager/billing/internal/platform/auth"
	"github.com/forager/billing/internal/platform/blobstore"
)

type orgRef struct{ org uuid.UUID }

type mockRepo struct {
	items    map[uuid.UUID]*Attachment
	claims   map[uuid.UUID]orgRef
	patients map[uuid.UUID]orgRef
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		items:    make(map[uuid.UUID]*Attachment),
		claims:   make(map[uuid.UUID]orgRef),
		patients: make(map[uuid.UUID]orgRef),
	}
}

func (m *mockRepo) Create(_ context.Context, a *Attachment) error {
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Attachment, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, f Filter, limit, offset int) ([]*Attachment, int, error) {
	var result []*Attachment
	for _, a := range m.items {
		if a.OrganizationID != f.OrganizationID {
			continue
		}
		if f.ClaimID != nil && (a.ClaimID == nil || *a.ClaimID != *f.ClaimID) {
			continue
		}
		if f.PatientID != nil && (a.PatientID == nil || *a.PatientID != *f.PatientID) {
			continue
		}
		if f.FileType != "" && a.FileType != f.FileType {
			continue
		}
		cp := *a
		result = append(result, &cp)
	}
	return result, len(result), nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *mockRepo) ClaimInOrg(_ context.Context, claimID, orgID uuid.UUID) (bool, error) {
	ref, ok := m.claims[claimID]
	return ok && ref.org == orgID, nil
}

func (m *mockRepo) PatientInOrg(_ context.Context, patientID, orgID uuid.UUID) (bool, error) {
	ref, ok := m.patients[patientID]
	return ok && ref.org == orgID, nil
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

func newService(repo *mockRepo) (*Service, *blobstore.InMemoryFileStore) {
	store := blobstore.NewInMemoryFileStore()
	return NewService(repo, store, passthroughTx{}), store
}

func TestUploadAttachment(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	claimID := uuid.New()
	repo.claims[claimID] = orgRef{orgID}
	svc, store := newService(repo)

	body := "scanned remittance advice"
	a, err := svc.Upload(billerCtx(orgID), UploadRequest{
		ClaimID:  &claimID,
		FileName: "remittance.pdf",
		Content:  strings.NewReader(body),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if a.FileType != "pdf" {
		t.Errorf("fileType = %s, want pdf", a.FileType)
	}
	if a.FileSize != int64(len(body)) {
		t.Errorf("fileSize = %d, want %d", a.FileSize, len(body))
	}
	if a.UploadedAt == 0 {
		t.Error("uploadedAt not set")
	}

	rc, err := store.Open(context.Background(), a.FilePath)
	if err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != body {
		t.Errorf("stored content = %q, want %q", got, body)
	}
}

func TestUploadAttachment_RequiresReference(t *testing.T) {
	svc, _ := newService(newMockRepo())
	_, err := svc.Upload(billerCtx(uuid.New()), UploadRequest{
		FileName: "note.txt",
		Content:  strings.NewReader("orphan"),
	})
	expectCode(t, err, "ATTACHMENT_VALIDATION_ERROR")
}

func TestUploadAttachment_RejectsExtension(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	patientID := uuid.New()
	repo.patients[patientID] = orgRef{orgID}
	svc, _ := newService(repo)

	_, err := svc.Upload(billerCtx(orgID), UploadRequest{
		PatientID: &patientID,
		FileName:  "payload.exe",
		Content:   strings.NewReader("nope"),
	})
	expectCode(t, err, "ATTACHMENT_VALIDATION_ERROR")
}

func TestUploadAttachment_ClaimOtherOrg(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	claimID := uuid.New()
	repo.claims[claimID] = orgRef{uuid.New()}
	svc, store := newService(repo)

	_, err := svc.Upload(billerCtx(orgID), UploadRequest{
		ClaimID:  &claimID,
		FileName: "remittance.pdf",
		Content:  strings.NewReader("data"),
	})
	expectCode(t, err, "ATTACHMENT_FOREIGN_KEY_ERROR")
	if len(repo.items) != 0 {
		t.Error("attachment row should not persist")
	}
	// Nothing was written to the store either.
	if _, err := store.Open(context.Background(), "remittance.pdf"); !errors.Is(err, blobstore.ErrFileNotFound) {
		t.Errorf("unexpected store state: %v", err)
	}
}

func TestDeleteAttachment_RemovesFile(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	patientID := uuid.New()
	repo.patients[patientID] = orgRef{orgID}
	svc, store := newService(repo)
	ctx := billerCtx(orgID)

	a, err := svc.Upload(ctx, UploadRequest{
		PatientID: &patientID,
		FileName:  "dob-card.png",
		Content:   strings.NewReader("pixels"),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if err := svc.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := repo.items[a.ID]; ok {
		t.Error("attachment row still present")
	}
	if _, err := store.Open(context.Background(), a.FilePath); !errors.Is(err, blobstore.ErrFileNotFound) {
		t.Errorf("stored file still present: %v", err)
	}
}

func TestDeleteAttachment_CrossOrgMasked(t *testing.T) {
	repo := newMockRepo()
	id := uuid.New()
	repo.items[id] = &Attachment{
		ID:             id,
		FileName:       "note.txt",
		FileType:       "txt",
		FilePath:       id.String() + ".txt",
		OrganizationID: uuid.New(),
		UploadedAt:     time.Now().Unix(),
	}
	svc, _ := newService(repo)

	err := svc.Delete(billerCtx(uuid.New()), id)
	expectCode(t, err, "ATTACHMENT_FORBIDDEN")
}

func TestGetAttachment_CrossOrgNotFound(t *testing.T) {
	repo := newMockRepo()
	id := uuid.New()
	repo.items[id] = &Attachment{ID: id, FileName: "note.txt", OrganizationID: uuid.New()}
	svc, _ := newService(repo)

	_, err := svc.Get(billerCtx(uuid.New()), id)
	expectCode(t, err, "ATTACHMENT_NOT_FOUND")
}

func TestOpenAttachment_StreamsContent(t *testing.T) {
	repo := newMockRepo()
	orgID := uuid.New()
	patientID := uuid.New()
	repo.patients[patientID] = orgRef{orgID}
	svc, _ := newService(repo)
	ctx := billerCtx(orgID)

	a, err := svc.Upload(ctx, UploadRequest{
		PatientID: &patientID,
		FileName:  "summary.csv",
		Content:   strings.NewReader("code,amount\n99213,150"),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	meta, rc, err := svc.Open(ctx, a.ID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	if meta.FileName != "summary.csv" {
		t.Errorf("fileName = %s", meta.FileName)
	}
	got, _ := io.ReadAll(rc)
	if !strings.HasPrefix(string(got), "code,amount") {
		t.Errorf("unexpected content: %q", got)
	}
}
