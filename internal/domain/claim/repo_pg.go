package claim

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

const claimCols = `id, claim_number, patient_id, provider_id, payor_id, visit_id,
	service_date, billed_amount, paid_amount, status, submission_date, notes, source,
	organization_id, created_by_id, updated_by_id, created_at, updated_at`

func scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.ClaimNumber, &c.PatientID, &c.ProviderID, &c.PayorID, &c.VisitID,
		&c.ServiceDate, &c.BilledAmount, &c.PaidAmount, &c.Status, &c.SubmissionDate, &c.Notes, &c.Source,
		&c.OrganizationID, &c.CreatedByID, &c.UpdatedByID, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, c *Claim) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claims (id, claim_number, patient_id, provider_id, payor_id, visit_id,
			service_date, billed_amount, paid_amount, status, submission_date, notes, source,
			organization_id, created_by_id, updated_by_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		c.ID, c.ClaimNumber, c.PatientID, c.ProviderID, c.PayorID, c.VisitID,
		c.ServiceDate, c.BilledAmount, c.PaidAmount, c.Status, c.SubmissionDate, c.Notes, c.Source,
		c.OrganizationID, c.CreatedByID, c.UpdatedByID, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claims WHERE id = $1`, id))
}

func (r *repoPG) GetByNumber(ctx context.Context, orgID uuid.UUID, number string) (*Claim, error) {
	return scanClaim(r.conn(ctx).QueryRow(ctx,
		`SELECT `+claimCols+` FROM claims WHERE organization_id = $1 AND claim_number = $2`,
		orgID, number))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Claim, int, error) {
	where := ` WHERE organization_id = $1`
	args := []interface{}{f.OrganizationID}
	n := 1

	if f.Search != "" {
		n++
		where += fmt.Sprintf(` AND (claim_number ILIKE $%d OR notes ILIKE $%d)`, n, n)
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
	if f.PayorID != nil {
		n++
		where += fmt.Sprintf(` AND payor_id = $%d`, n)
		args = append(args, *f.PayorID)
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
		where += fmt.Sprintf(` AND service_date >= $%d`, n)
		args = append(args, *f.DateFrom)
	}
	if f.DateTo != nil {
		n++
		where += fmt.Sprintf(` AND service_date <= $%d`, n)
		args = append(args, *f.DateTo)
	}
	if f.AmountMin != nil {
		n++
		where += fmt.Sprintf(` AND billed_amount >= $%d`, n)
		args = append(args, *f.AmountMin)
	}
	if f.AmountMax != nil {
		n++
		where += fmt.Sprintf(` AND billed_amount <= $%d`, n)
		args = append(args, *f.AmountMax)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claims`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := `SELECT ` + claimCols + ` FROM claims` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, c *Claim) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE claims SET claim_number=$2, patient_id=$3, provider_id=$4, payor_id=$5,
			visit_id=$6, service_date=$7, billed_amount=$8, paid_amount=$9, status=$10,
			submission_date=$11, notes=$12, source=$13, updated_by_id=$14, updated_at=$15
		WHERE id = $1`,
		c.ID, c.ClaimNumber, c.PatientID, c.ProviderID, c.PayorID,
		c.VisitID, c.ServiceDate, c.BilledAmount, c.PaidAmount, c.Status,
		c.SubmissionDate, c.Notes, c.Source, c.UpdatedByID, c.UpdatedAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM claims WHERE id = $1`, id)
	return err
}

func (r *repoPG) ServicesFor(ctx context.Context, claimID uuid.UUID) ([]ServiceLine, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, claim_id, cpt_code_id, description, quantity, unit_price, total_price, created_at
		FROM claim_services WHERE claim_id = $1 ORDER BY created_at`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []ServiceLine{}
	for rows.Next() {
		var s ServiceLine
		if err := rows.Scan(&s.ID, &s.ClaimID, &s.CPTCodeID, &s.Description, &s.Quantity,
			&s.UnitPrice, &s.TotalPrice, &s.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// ReplaceServices swaps the claim's service lines wholesale inside the
// caller's transaction.
func (r *repoPG) ReplaceServices(ctx context.Context, claimID uuid.UUID, services []ServiceLine) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM claim_services WHERE claim_id = $1`, claimID); err != nil {
		return err
	}
	for i := range services {
		s := &services[i]
		s.ID = uuid.New()
		s.ClaimID = claimID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO claim_services (id, claim_id, cpt_code_id, description, quantity,
				unit_price, total_price, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			s.ID, s.ClaimID, s.CPTCodeID, s.Description, s.Quantity,
			s.UnitPrice, s.TotalPrice, s.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) TimelineFor(ctx context.Context, claimID uuid.UUID) ([]TimelineEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, claim_id, user_id, action, status, notes, created_at
		FROM claim_timeline WHERE claim_id = $1 ORDER BY created_at, seq`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []TimelineEntry{}
	for rows.Next() {
		var e TimelineEntry
		if err := rows.Scan(&e.ID, &e.ClaimID, &e.UserID, &e.Action, &e.Status, &e.Notes,
			&e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *repoPG) AppendTimeline(ctx context.Context, entry *TimelineEntry) error {
	entry.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claim_timeline (id, claim_id, user_id, action, status, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		entry.ID, entry.ClaimID, entry.UserID, entry.Action, entry.Status, entry.Notes, entry.CreatedAt)
	return err
}

func (r *repoPG) PatientInOrg(ctx context.Context, patientID, orgID uuid.UUID) (bool, error) {
	return r.inOrg(ctx, `patients`, patientID, orgID)
}

func (r *repoPG) ProviderInOrg(ctx context.Context, providerID, orgID uuid.UUID) (bool, error) {
	return r.inOrg(ctx, `providers`, providerID, orgID)
}

func (r *repoPG) PayorInOrg(ctx context.Context, payorID, orgID uuid.UUID) (bool, error) {
	return r.inOrg(ctx, `payors`, payorID, orgID)
}

func (r *repoPG) VisitInOrg(ctx context.Context, visitID, orgID uuid.UUID) (bool, error) {
	return r.inOrg(ctx, `visits`, visitID, orgID)
}

func (r *repoPG) CPTCodeInOrg(ctx context.Context, cptCodeID, orgID uuid.UUID) (bool, error) {
	return r.inOrg(ctx, `cpt_codes`, cptCodeID, orgID)
}

func (r *repoPG) inOrg(ctx context.Context, table string, id, orgID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id = $1 AND organization_id = $2)`,
		id, orgID).Scan(&exists)
	return exists, err
}
