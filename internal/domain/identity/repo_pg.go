package identity

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

const userCols = `u.id, u.email, u.password_hash, u.first_name, u.last_name, u.role,
	u.organization_id, u.created_at, u.updated_at, o.id, o.name`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var org OrgRef
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Role,
		&u.OrganizationID, &u.CreatedAt, &u.UpdatedAt, &org.ID, &org.Name)
	if err != nil {
		return nil, err
	}
	u.Organization = &org
	return &u, nil
}

func (r *repoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, role,
			organization_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Role,
		u.OrganizationID, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `
		SELECT `+userCols+` FROM users u
		JOIN organizations o ON o.id = u.organization_id
		WHERE u.id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `
		SELECT `+userCols+` FROM users u
		JOIN organizations o ON o.id = u.organization_id
		WHERE u.email = $1`, email))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*User, int, error) {
	where := ` WHERE u.organization_id = $1`
	args := []interface{}{f.OrganizationID}
	n := 1

	if f.Search != "" {
		n++
		where += fmt.Sprintf(` AND (u.first_name ILIKE $%d OR u.last_name ILIKE $%d OR u.email ILIKE $%d)`, n, n, n)
		args = append(args, "%"+f.Search+"%")
	}
	if f.Role != "" {
		n++
		where += fmt.Sprintf(` AND u.role = $%d`, n)
		args = append(args, f.Role)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users u`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := `SELECT ` + userCols + ` FROM users u
		JOIN organizations o ON o.id = u.organization_id` + where +
		fmt.Sprintf(` ORDER BY u.created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, u *User) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET first_name=$2, last_name=$3, role=$4, updated_at=$5
		WHERE id = $1`,
		u.ID, u.FirstName, u.LastName, u.Role, u.UpdatedAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

func (r *repoPG) OrganizationExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM organizations WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *repoPG) DependentCounts(ctx context.Context, id uuid.UUID) (Dependents, error) {
	var d Dependents
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM claim_timeline WHERE user_id = $1),
			(SELECT COUNT(*) FROM attachments WHERE uploaded_by_id = $1)`, id).
		Scan(&d.TimelineEntries, &d.Attachments)
	return d, err
}
