package rule

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

const ruleCols = `id, name, description, trigger_type, flow_data, is_active,
	organization_id, created_by_id, updated_by_id, created_at, updated_at`

func scanRule(row pgx.Row) (*Rule, error) {
	var ru Rule
	err := row.Scan(&ru.ID, &ru.Name, &ru.Description, &ru.TriggerType, &ru.FlowData, &ru.IsActive,
		&ru.OrganizationID, &ru.CreatedByID, &ru.UpdatedByID, &ru.CreatedAt, &ru.UpdatedAt)
	return &ru, err
}

func (r *repoPG) Create(ctx context.Context, ru *Rule) error {
	ru.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO rules (id, name, description, trigger_type, flow_data, is_active,
			organization_id, created_by_id, updated_by_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		ru.ID, ru.Name, ru.Description, ru.TriggerType, ru.FlowData, ru.IsActive,
		ru.OrganizationID, ru.CreatedByID, ru.UpdatedByID, ru.CreatedAt, ru.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Rule, error) {
	return scanRule(r.conn(ctx).QueryRow(ctx, `SELECT `+ruleCols+` FROM rules WHERE id = $1`, id))
}

func (r *repoPG) GetByName(ctx context.Context, orgID uuid.UUID, name string) (*Rule, error) {
	return scanRule(r.conn(ctx).QueryRow(ctx,
		`SELECT `+ruleCols+` FROM rules WHERE organization_id = $1 AND name = $2`, orgID, name))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Rule, int, error) {
	where := ` WHERE organization_id = $1`
	args := []interface{}{f.OrganizationID}
	n := 1

	if f.Search != "" {
		n++
		where += fmt.Sprintf(` AND name ILIKE $%d`, n)
		args = append(args, "%"+f.Search+"%")
	}
	if f.IsActive != nil {
		n++
		where += fmt.Sprintf(` AND is_active = $%d`, n)
		args = append(args, *f.IsActive)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM rules`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := `SELECT ` + ruleCols + ` FROM rules` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Rule
	for rows.Next() {
		ru, err := scanRule(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, ru)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, ru *Rule) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE rules SET name=$2, description=$3, trigger_type=$4, flow_data=$5, is_active=$6,
			updated_by_id=$7, updated_at=$8
		WHERE id = $1`,
		ru.ID, ru.Name, ru.Description, ru.TriggerType, ru.FlowData, ru.IsActive,
		ru.UpdatedByID, ru.UpdatedAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM rules WHERE id = $1`, id)
	return err
}

const execCols = `e.id, e.rule_id, e.claim_id, e.status, e.result, e.error_message,
	ru.organization_id, e.executed_at`

func scanExecution(row pgx.Row) (*Execution, error) {
	var e Execution
	err := row.Scan(&e.ID, &e.RuleID, &e.ClaimID, &e.Status, &e.Result, &e.ErrorMessage,
		&e.OrganizationID, &e.ExecutedAt)
	return &e, err
}

func (r *repoPG) ListExecutions(ctx context.Context, f ExecutionFilter, limit, offset int) ([]*Execution, int, error) {
	from := ` FROM rule_executions e JOIN rules ru ON ru.id = e.rule_id`
	where := ` WHERE ru.organization_id = $1`
	args := []interface{}{f.OrganizationID}
	n := 1

	if f.RuleID != nil {
		n++
		where += fmt.Sprintf(` AND e.rule_id = $%d`, n)
		args = append(args, *f.RuleID)
	}
	if f.ClaimID != nil {
		n++
		where += fmt.Sprintf(` AND e.claim_id = $%d`, n)
		args = append(args, *f.ClaimID)
	}
	if f.Status != "" {
		n++
		where += fmt.Sprintf(` AND e.status = $%d`, n)
		args = append(args, f.Status)
	}
	if f.DateFrom != nil {
		n++
		where += fmt.Sprintf(` AND e.executed_at >= $%d`, n)
		args = append(args, *f.DateFrom)
	}
	if f.DateTo != nil {
		n++
		where += fmt.Sprintf(` AND e.executed_at <= $%d`, n)
		args = append(args, *f.DateTo)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := `SELECT ` + execCols + from + where +
		fmt.Sprintf(` ORDER BY e.executed_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func (r *repoPG) GetExecution(ctx context.Context, id uuid.UUID) (*Execution, error) {
	return scanExecution(r.conn(ctx).QueryRow(ctx,
		`SELECT `+execCols+` FROM rule_executions e JOIN rules ru ON ru.id = e.rule_id WHERE e.id = $1`, id))
}
