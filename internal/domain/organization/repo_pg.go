package organization

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

const orgCols = `id, name, addresses, phone, email, npi, parent_organization_id,
	created_by_id, updated_by_id, created_at, updated_at`

func scanOrg(row pgx.Row) (*Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Name, &o.Addresses, &o.Phone, &o.Email, &o.NPI,
		&o.ParentOrganizationID, &o.CreatedByID, &o.UpdatedByID, &o.CreatedAt, &o.UpdatedAt)
	return &o, err
}

func (r *repoPG) Create(ctx context.Context, o *Organization) error {
	o.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO organizations (id, name, addresses, phone, email, npi,
			parent_organization_id, created_by_id, updated_by_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		o.ID, o.Name, o.Addresses, o.Phone, o.Email, o.NPI,
		o.ParentOrganizationID, o.CreatedByID, o.UpdatedByID, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return scanOrg(r.conn(ctx).QueryRow(ctx, `SELECT `+orgCols+` FROM organizations WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Organization, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	n := 0

	if f.ScopeOrgID != nil {
		n++
		where += fmt.Sprintf(` AND (id = $%d OR parent_organization_id = $%d)`, n, n)
		args = append(args, *f.ScopeOrgID)
	}
	if f.Search != "" {
		n++
		where += fmt.Sprintf(` AND name ILIKE $%d`, n)
		args = append(args, "%"+f.Search+"%")
	}
	if f.ParentID != nil {
		n++
		where += fmt.Sprintf(` AND parent_organization_id = $%d`, n)
		args = append(args, *f.ParentID)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM organizations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := `SELECT ` + orgCols + ` FROM organizations` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Organization
	for rows.Next() {
		o, err := scanOrg(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, o)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, o *Organization) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE organizations SET name=$2, addresses=$3, phone=$4, email=$5, npi=$6,
			parent_organization_id=$7, updated_by_id=$8, updated_at=$9
		WHERE id = $1`,
		o.ID, o.Name, o.Addresses, o.Phone, o.Email, o.NPI,
		o.ParentOrganizationID, o.UpdatedByID, o.UpdatedAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	return err
}

func (r *repoPG) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM organizations WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *repoPG) ChildRefs(ctx context.Context, id uuid.UUID) ([]Ref, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name FROM organizations WHERE parent_organization_id = $1 ORDER BY name`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := []Ref{}
	for rows.Next() {
		var ref Ref
		if err := rows.Scan(&ref.ID, &ref.Name); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// DependentCounts gathers every dependent-record count in a single statement
// so the snapshot is consistent with the delete that follows it.
func (r *repoPG) DependentCounts(ctx context.Context, id uuid.UUID) (Dependents, error) {
	var d Dependents
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users WHERE organization_id = $1),
			(SELECT COUNT(*) FROM patients WHERE organization_id = $1),
			(SELECT COUNT(*) FROM providers WHERE organization_id = $1),
			(SELECT COUNT(*) FROM visits WHERE organization_id = $1),
			(SELECT COUNT(*) FROM claims WHERE organization_id = $1),
			(SELECT COUNT(*) FROM rules WHERE organization_id = $1),
			(SELECT COUNT(*) FROM payors WHERE organization_id = $1),
			(SELECT COUNT(*) FROM organizations WHERE parent_organization_id = $1)`, id).
		Scan(&d.Users, &d.Patients, &d.Providers, &d.Visits, &d.Claims, &d.Rules, &d.Payors, &d.ChildOrganizations)
	return d, err
}
