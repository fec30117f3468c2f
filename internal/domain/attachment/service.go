package attachment

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/forager/billing/internal/platform/api"
	"github.com/forager/billing/internal/platform/auth"
	"github.com/forager/billing/internal/platform/blobstore"
	"github.com/forager/billing/internal/platform/db"
)

const entity = "ATTACHMENT"

type Service struct {
	repo  Repository
	store blobstore.FileStore
	tx    db.TxRunner
}

func NewService(repo Repository, store blobstore.FileStore, tx db.TxRunner) *Service {
	return &Service{repo: repo, store: store, tx: tx}
}

func principal(ctx context.Context) (auth.Principal, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return auth.Principal{}, api.Unauthorized(entity, "Authentication required")
	}
	return p, nil
}

type UploadRequest struct {
	ClaimID   *uuid.UUID
	PatientID *uuid.UUID
	FileName  string
	Content   io.Reader
}

// Upload stores the content and records the metadata row. The bytes are keyed
// by the attachment id so concurrent uploads of the same file name never
// collide.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*Attachment, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if req.ClaimID == nil && req.PatientID == nil {
		return nil, api.Validation(entity, "Either claimId or patientId is required")
	}
	if err := blobstore.ValidateFileName(req.FileName); err != nil {
		return nil, api.Validation(entity, err.Error())
	}

	ext := strings.ToLower(filepath.Ext(req.FileName))
	a := &Attachment{
		ID:             uuid.New(),
		ClaimID:        req.ClaimID,
		PatientID:      req.PatientID,
		FileName:       req.FileName,
		FileType:       strings.TrimPrefix(ext, "."),
		UploadedByID:   p.UserID,
		OrganizationID: p.OrganizationID,
		UploadedAt:     time.Now().Unix(),
	}
	a.FilePath = a.ID.String() + ext

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if req.ClaimID != nil {
			ok, err := s.repo.ClaimInOrg(ctx, *req.ClaimID, p.OrganizationID)
			if err != nil {
				return err
			}
			if !ok {
				return api.ForeignKey(entity, "Claim not found")
			}
		}
		if req.PatientID != nil {
			ok, err := s.repo.PatientInOrg(ctx, *req.PatientID, p.OrganizationID)
			if err != nil {
				return err
			}
			if !ok {
				return api.ForeignKey(entity, "Patient not found")
			}
		}

		size, err := s.store.Save(ctx, a.FilePath, req.Content)
		if err != nil {
			if errors.Is(err, blobstore.ErrFileTooLarge) {
				return api.Validation(entity, "File exceeds the maximum allowed size of 10MB")
			}
			return err
		}
		a.FileSize = size

		if err := s.repo.Create(ctx, a); err != nil {
			// The row never landed, so drop the stored bytes too.
			_ = s.store.Remove(ctx, a.FilePath)
			if db.IsForeignKeyViolation(err) {
				return api.ForeignKey(entity, "Referenced claim or patient not found")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Attachment, int, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, 0, err
	}
	f.OrganizationID = p.OrganizationID
	return s.repo.List(ctx, f, limit, offset)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	a, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, api.NotFound(entity, "Attachment not found")
	}
	if err != nil {
		return nil, err
	}
	if a.OrganizationID != p.OrganizationID {
		return nil, api.NotFound(entity, "Attachment not found")
	}
	return a, nil
}

// Open returns the metadata and a reader over the stored bytes. The caller
// must close the reader.
func (s *Service) Open(ctx context.Context, id uuid.UUID) (*Attachment, io.ReadCloser, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(ctx, a.FilePath)
	if errors.Is(err, blobstore.ErrFileNotFound) {
		return nil, nil, api.NotFound(entity, "Attachment file not found")
	}
	if err != nil {
		return nil, nil, err
	}
	return a, rc, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	p, err := principal(ctx)
	if err != nil {
		return err
	}
	var key string
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return api.Forbidden(entity, "Cannot delete attachments outside your organization or attachment not found")
		}
		if err != nil {
			return err
		}
		if a.OrganizationID != p.OrganizationID {
			return api.Forbidden(entity, "Cannot delete attachments outside your organization or attachment not found")
		}
		key = a.FilePath
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	if err := s.store.Remove(ctx, key); err != nil && !errors.Is(err, blobstore.ErrFileNotFound) {
		return err
	}
	return nil
}
