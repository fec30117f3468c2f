package provider

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

const providerCols = `id, first_name, middle_name, last_name, npi, specialty,
	license_type, source, organization_id, created_by_id, updated_by_id, created_at, updated_at`

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.FirstName, &p.MiddleName, &p.LastName, &p.NPI, &p.Specialty,
		&p.LicenseType, &p.Source, &p.OrganizationID, &p.CreatedByID, &p.UpdatedByID,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Provider) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO providers (id, first_name, middle_name, last_name, npi, specialty,
			license_type, source, organization_id, created_by_id, updated_by_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.FirstName, p.MiddleName, p.LastName, p.NPI, p.Specialty,
		p.LicenseType, p.Source, p.OrganizationID, p.CreatedByID, p.UpdatedByID,
		p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM providers WHERE id = $1`, id))
}

func (r *repoPG) GetByNPI(ctx context.Context, orgID uuid.UUID, npi string) (*Provider, error) {
	return scanProvider(r.conn(ctx).QueryRow(ctx,
		`SELECT `+providerCols+` FROM providers WHERE organization_id = $1 AND npi = $2`, orgID, npi))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Provider, int, error) {
	where := ` WHERE organization_id = $1`
	args := []interface{}{f.OrganizationID}
	n := 1

	if f.Search != "" {
		n++
		where += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d OR npi ILIKE $%d)`, n, n, n)
		args = append(args, "%"+f.Search+"%")
	}
	if f.Specialty != "" {
		n++
		where += fmt.Sprintf(` AND specialty = $%d`, n)
		args = append(args, f.Specialty)
	}
	if f.LicenseType != "" {
		n++
		where += fmt.Sprintf(` AND license_type = $%d`, n)
		args = append(args, f.LicenseType)
	}
	if f.Source != "" {
		n++
		where += fmt.Sprintf(` AND source = $%d`, n)
		args = append(args, f.Source)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM providers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := `SELECT ` + providerCols + ` FROM providers` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, p *Provider) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE providers SET first_name=$2, middle_name=$3, last_name=$4, npi=$5,
			specialty=$6, license_type=$7, source=$8, updated_by_id=$9, updated_at=$10
		WHERE id = $1`,
		p.ID, p.FirstName, p.MiddleName, p.LastName, p.NPI,
		p.Specialty, p.LicenseType, p.Source, p.UpdatedByID, p.UpdatedAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM providers WHERE id = $1`, id)
	return err
}

func (r *repoPG) DependentCounts(ctx context.Context, id uuid.UUID) (Dependents, error) {
	var d Dependents
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM visits WHERE provider_id = $1),
			(SELECT COUNT(*) FROM claims WHERE provider_id = $1)`, id).
		Scan(&d.Visits, &d.Claims)
	return d, err
}
