package attachment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forager/billing/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const attachmentCols = `id, claim_id, patient_id, file_name, file_type, file_size,
	file_path, uploaded_by_id, organization_id, uploaded_at`

func scanAttachment(row pgx.Row) (*Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.ClaimID, &a.PatientID, &a.FileName, &a.FileType, &a.FileSize,
		&a.FilePath, &a.UploadedByID, &a.OrganizationID, &a.UploadedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Attachment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO attachments (id, claim_id, patient_id, file_name, file_type, file_size,
			file_path, uploaded_by_id, organization_id, uploaded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.ClaimID, a.PatientID, a.FileName, a.FileType, a.FileSize,
		a.FilePath, a.UploadedByID, a.OrganizationID, a.UploadedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Attachment, error) {
	return scanAttachment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+attachmentCols+` FROM attachments WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Attachment, int, error) {
	where := ` WHERE organization_id = $1`
	args := []interface{}{f.OrganizationID}
	n := 1

	if f.ClaimID != nil {
		n++
		where += fmt.Sprintf(` AND claim_id = $%d`, n)
		args = append(args, *f.ClaimID)
	}
	if f.PatientID != nil {
		n++
		where += fmt.Sprintf(` AND patient_id = $%d`, n)
		args = append(args, *f.PatientID)
	}
	if f.FileType != "" {
		n++
		where += fmt.Sprintf(` AND file_type = $%d`, n)
		args = append(args, f.FileType)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM attachments`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := `SELECT ` + attachmentCols + ` FROM attachments` + where +
		fmt.Sprintf(` ORDER BY uploaded_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	return err
}

func (r *repoPG) ClaimInOrg(ctx context.Context, claimID, orgID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM claims WHERE id = $1 AND organization_id = $2)`,
		claimID, orgID).Scan(&exists)
	return exists, err
}

func (r *repoPG) PatientInOrg(ctx context.Context, patientID, orgID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM patients WHERE id = $1 AND organization_id = $2)`,
		patientID, orgID).Scan(&exists)
	return exists, err
}
