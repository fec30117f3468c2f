package visit

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

const visitCols = `id, patient_id, provider_id, visit_date, visit_time, duration,
	visit_type, status, location, notes, source, organization_id,
	created_by_id, updated_by_id, created_at, updated_at`

func scanVisit(row pgx.Row) (*Visit, error) {
	var v Visit
	err := row.Scan(&v.ID, &v.PatientID, &v.ProviderID, &v.VisitDate, &v.VisitTime, &v.Duration,
		&v.VisitType, &v.Status, &v.Location, &v.Notes, &v.Source, &v.OrganizationID,
		&v.CreatedByID, &v.UpdatedByID, &v.CreatedAt, &v.UpdatedAt)
	return &v, err
}

func (r *repoPG) Create(ctx context.Context, v *Visit) error {
	v.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO visits (id, patient_id, provider_id, visit_date, visit_time, duration,
			visit_type, status, location, notes, source, organization_id,
			created_by_id, updated_by_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		v.ID, v.PatientID, v.ProviderID, v.VisitDate, v.VisitTime, v.Duration,
		v.VisitType, v.Status, v.Location, v.Notes, v.Source, v.OrganizationID,
		v.CreatedByID, v.UpdatedByID, v.CreatedAt, v.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	return scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visits WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Visit, int, error) {
	where := ` WHERE organization_id = $1`
	args := []interface{}{f.OrganizationID}
	n := 1

	if f.Search != "" {
		n++
		where += fmt.Sprintf(` AND notes ILIKE $%d`, n)
		args = append(args, "%"+f.Search+"%")
	}
	if f.PatientID != nil {
		n++
		where += fmt.Sprintf(` AND patient_id = $%d`, n)
		args = append(args, *f.PatientID)
	}
	if f.ProviderID != nil {
		n++
		where += fmt.Sprintf(` AND provider_id = $%d`, n)
		args = append(args, *f.ProviderID)
	}
	if f.Status != "" {
		n++
		where += fmt.Sprintf(` AND status = $%d`, n)
		args = append(args, f.Status)
	}
	if f.Source != "" {
		n++
		where += fmt.Sprintf(` AND source = $%d`, n)
		args = append(args, f.Source)
	}
	if f.DateFrom != nil {
		n++
		where += fmt.Sprintf(` AND visit_date >= $%d`, n)
		args = append(args, *f.DateFrom)
	}
	if f.DateTo != nil {
		n++
		where += fmt.Sprintf(` AND visit_date <= $%d`, n)
		args = append(args, *f.DateTo)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM visits`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := `SELECT ` + visitCols + ` FROM visits` + where +
		fmt.Sprintf(` ORDER BY visit_date DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, v)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, v *Visit) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE visits SET patient_id=$2, provider_id=$3, visit_date=$4, visit_time=$5,
			duration=$6, visit_type=$7, status=$8, location=$9, notes=$10, source=$11,
			updated_by_id=$12, updated_at=$13
		WHERE id = $1`,
		v.ID, v.PatientID, v.ProviderID, v.VisitDate, v.VisitTime,
		v.Duration, v.VisitType, v.Status, v.Location, v.Notes, v.Source,
		v.UpdatedByID, v.UpdatedAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM visits WHERE id = $1`, id)
	return err
}

func (r *repoPG) PatientInOrg(ctx context.Context, patientID, orgID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM patients WHERE id = $1 AND organization_id = $2)`,
		patientID, orgID).Scan(&exists)
	return exists, err
}

func (r *repoPG) ProviderInOrg(ctx context.Context, providerID, orgID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM providers WHERE id = $1 AND organization_id = $2)`,
		providerID, orgID).Scan(&exists)
	return exists, err
}

func (r *repoPG) ClaimCount(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claims WHERE visit_id = $1`, id).Scan(&count)
	return count, err
}
