package payor

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

const payorCols = `id, name, external_payor_id, payor_category, billing_taxonomy,
	address, phone, portal_url, organization_id, created_by_id, updated_by_id, created_at, updated_at`

func scanPayor(row pgx.Row) (*Payor, error) {
	var p Payor
	err := row.Scan(&p.ID, &p.Name, &p.ExternalPayorID, &p.PayorCategory, &p.BillingTaxonomy,
		&p.Address, &p.Phone, &p.PortalURL, &p.OrganizationID, &p.CreatedByID, &p.UpdatedByID,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Payor) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO payors (id, name, external_payor_id, payor_category, billing_taxonomy,
			address, phone, portal_url, organization_id, created_by_id, updated_by_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		p.ID, p.Name, p.ExternalPayorID, p.PayorCategory, p.BillingTaxonomy,
		p.Address, p.Phone, p.PortalURL, p.OrganizationID, p.CreatedByID, p.UpdatedByID,
		p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payor, error) {
	return scanPayor(r.conn(ctx).QueryRow(ctx, `SELECT `+payorCols+` FROM payors WHERE id = $1`, id))
}

func (r *repoPG) GetByExternalID(ctx context.Context, orgID uuid.UUID, externalID string) (*Payor, error) {
	return scanPayor(r.conn(ctx).QueryRow(ctx,
		`SELECT `+payorCols+` FROM payors WHERE organization_id = $1 AND external_payor_id = $2`,
		orgID, externalID))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Payor, int, error) {
	where := ` WHERE organization_id = $1`
	args := []interface{}{f.OrganizationID}
	n := 1

	if f.Search != "" {
		n++
		where += fmt.Sprintf(` AND (name ILIKE $%d OR external_payor_id ILIKE $%d)`, n, n)
		args = append(args, "%"+f.Search+"%")
	}
	if f.PayorCategory != "" {
		n++
		where += fmt.Sprintf(` AND payor_category = $%d`, n)
		args = append(args, f.PayorCategory)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM payors`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := `SELECT ` + payorCols + ` FROM payors` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Payor
	for rows.Next() {
		p, err := scanPayor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, p *Payor) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE payors SET name=$2, external_payor_id=$3, payor_category=$4, billing_taxonomy=$5,
			address=$6, phone=$7, portal_url=$8, updated_by_id=$9, updated_at=$10
		WHERE id = $1`,
		p.ID, p.Name, p.ExternalPayorID, p.PayorCategory, p.BillingTaxonomy,
		p.Address, p.Phone, p.PortalURL, p.UpdatedByID, p.UpdatedAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM payors WHERE id = $1`, id)
	return err
}

func (r *repoPG) DependentCounts(ctx context.Context, id uuid.UUID) (Dependents, error) {
	var d Dependents
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM claims WHERE payor_id = $1),
			(SELECT COUNT(*) FROM insurance_policies ip
				JOIN payor_plans pl ON pl.id = ip.plan_id
				WHERE pl.payor_id = $1)`, id).
		Scan(&d.Claims, &d.Policies)
	return d, err
}

func (r *repoPG) PlansFor(ctx context.Context, payorID uuid.UUID) ([]Plan, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, payor_id, plan_name, plan_type, is_in_network, created_at, updated_at
		FROM payor_plans WHERE payor_id = $1 ORDER BY plan_name`, payorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	plans := []Plan{}
	for rows.Next() {
		var pl Plan
		if err := rows.Scan(&pl.ID, &pl.PayorID, &pl.PlanName, &pl.PlanType, &pl.IsInNetwork,
			&pl.CreatedAt, &pl.UpdatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, pl)
	}
	return plans, rows.Err()
}

// ReplacePlans swaps the payor's plan set wholesale inside the caller's
// transaction.
func (r *repoPG) ReplacePlans(ctx context.Context, payorID uuid.UUID, plans []Plan) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM payor_plans WHERE payor_id = $1`, payorID); err != nil {
		return err
	}
	for i := range plans {
		pl := &plans[i]
		pl.ID = uuid.New()
		pl.PayorID = payorID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO payor_plans (id, payor_id, plan_name, plan_type, is_in_network, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			pl.ID, pl.PayorID, pl.PlanName, pl.PlanType, pl.IsInNetwork, pl.CreatedAt, pl.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}
