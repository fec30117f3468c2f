package cptcode

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

const cptCols = `id, code, description, base_price, specialty, organization_id,
	created_by_id, updated_by_id, created_at, updated_at`

func scanCPT(row pgx.Row) (*CPTCode, error) {
	var c CPTCode
	err := row.Scan(&c.ID, &c.Code, &c.Description, &c.BasePrice, &c.Specialty,
		&c.OrganizationID, &c.CreatedByID, &c.UpdatedByID, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, c *CPTCode) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO cpt_codes (id, code, description, base_price, specialty, organization_id,
			created_by_id, updated_by_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		c.ID, c.Code, c.Description, c.BasePrice, c.Specialty, c.OrganizationID,
		c.CreatedByID, c.UpdatedByID, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*CPTCode, error) {
	return scanCPT(r.conn(ctx).QueryRow(ctx, `SELECT `+cptCols+` FROM cpt_codes WHERE id = $1`, id))
}

func (r *repoPG) GetByCode(ctx context.Context, orgID uuid.UUID, code string) (*CPTCode, error) {
	return scanCPT(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cptCols+` FROM cpt_codes WHERE organization_id = $1 AND code = $2`, orgID, code))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*CPTCode, int, error) {
	where := ` WHERE organization_id = $1`
	args := []interface{}{f.OrganizationID}
	n := 1

	if f.Search != "" {
		n++
		where += fmt.Sprintf(` AND (code ILIKE $%d OR description ILIKE $%d)`, n, n)
		args = append(args, "%"+f.Search+"%")
	}
	if f.Specialty != "" {
		n++
		where += fmt.Sprintf(` AND specialty = $%d`, n)
		args = append(args, f.Specialty)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM cpt_codes`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := `SELECT ` + cptCols + ` FROM cpt_codes` + where +
		fmt.Sprintf(` ORDER BY code LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*CPTCode
	for rows.Next() {
		c, err := scanCPT(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, c *CPTCode) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE cpt_codes SET code=$2, description=$3, base_price=$4, specialty=$5,
			updated_by_id=$6, updated_at=$7
		WHERE id = $1`,
		c.ID, c.Code, c.Description, c.BasePrice, c.Specialty, c.UpdatedByID, c.UpdatedAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM cpt_codes WHERE id = $1`, id)
	return err
}

func (r *repoPG) ServiceCount(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claim_services WHERE cpt_code_id = $1`, id).Scan(&count)
	return count, err
}
