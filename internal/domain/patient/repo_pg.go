package patient

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

const patientCols = `id, prefix, first_name, middle_name, last_name, suffix,
	date_of_birth, gender, ssn, phone, email, address, source, organization_id,
	created_by_id, updated_by_id, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Prefix, &p.FirstName, &p.MiddleName, &p.LastName, &p.Suffix,
		&p.DateOfBirth, &p.Gender, &p.SSN, &p.Phone, &p.Email, &p.Address, &p.Source,
		&p.OrganizationID, &p.CreatedByID, &p.UpdatedByID, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, prefix, first_name, middle_name, last_name, suffix,
			date_of_birth, gender, ssn, phone, email, address, source, organization_id,
			created_by_id, updated_by_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		p.ID, p.Prefix, p.FirstName, p.MiddleName, p.LastName, p.Suffix,
		p.DateOfBirth, p.Gender, p.SSN, p.Phone, p.Email, p.Address, p.Source,
		p.OrganizationID, p.CreatedByID, p.UpdatedByID, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE organization_id = $1`
	args := []interface{}{f.OrganizationID}
	n := 1

	if f.Search != "" {
		n++
		where += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d OR phone ILIKE $%d)`, n, n, n, n)
		args = append(args, "%"+f.Search+"%")
	}
	if f.Source != "" {
		n++
		where += fmt.Sprintf(` AND source = $%d`, n)
		args = append(args, f.Source)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := `SELECT ` + patientCols + ` FROM patients` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET prefix=$2, first_name=$3, middle_name=$4, last_name=$5, suffix=$6,
			date_of_birth=$7, gender=$8, ssn=$9, phone=$10, email=$11, address=$12, source=$13,
			updated_by_id=$14, updated_at=$15
		WHERE id = $1`,
		p.ID, p.Prefix, p.FirstName, p.MiddleName, p.LastName, p.Suffix,
		p.DateOfBirth, p.Gender, p.SSN, p.Phone, p.Email, p.Address, p.Source,
		p.UpdatedByID, p.UpdatedAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	return err
}

func (r *repoPG) DependentCounts(ctx context.Context, id uuid.UUID) (Dependents, error) {
	var d Dependents
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM visits WHERE patient_id = $1),
			(SELECT COUNT(*) FROM claims WHERE patient_id = $1),
			(SELECT COUNT(*) FROM insurance_policies WHERE patient_id = $1)`, id).
		Scan(&d.Visits, &d.Claims, &d.Policies)
	return d, err
}

// PlanInOrg resolves the plan's organization through its payor so patients
// cannot be enrolled in another organization's plan.
func (r *repoPG) PlanInOrg(ctx context.Context, planID, orgID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM payor_plans pp
			JOIN payors py ON py.id = pp.payor_id
			WHERE pp.id = $1 AND py.organization_id = $2)`, planID, orgID).Scan(&exists)
	return exists, err
}

const policyCols = `p.id, p.patient_id, p.plan_id, p.member_id, p.group_number,
	p.is_primary, p.insured_type, p.subscriber_name, p.subscriber_dob,
	pt.organization_id, p.created_at, p.updated_at`

func scanPolicy(row pgx.Row) (*InsurancePolicy, error) {
	var ip InsurancePolicy
	err := row.Scan(&ip.ID, &ip.PatientID, &ip.PlanID, &ip.MemberID, &ip.GroupNumber,
		&ip.IsPrimary, &ip.InsuredType, &ip.SubscriberName, &ip.SubscriberDOB,
		&ip.OrganizationID, &ip.CreatedAt, &ip.UpdatedAt)
	return &ip, err
}

func (r *repoPG) InsurancesFor(ctx context.Context, patientID uuid.UUID) ([]InsurancePolicy, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+policyCols+`
		FROM insurance_policies p
		JOIN patients pt ON pt.id = p.patient_id
		WHERE p.patient_id = $1
		ORDER BY p.is_primary DESC, p.created_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []InsurancePolicy{}
	for rows.Next() {
		ip, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *ip)
	}
	return items, rows.Err()
}

// ReplaceInsurances swaps the patient's policy set wholesale. Callers run it
// inside a transaction so a failed insert does not leave the patient bare.
func (r *repoPG) ReplaceInsurances(ctx context.Context, patientID uuid.UUID, items []InsurancePolicy) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM insurance_policies WHERE patient_id = $1`, patientID); err != nil {
		return err
	}
	for i := range items {
		ip := &items[i]
		ip.ID = uuid.New()
		ip.PatientID = patientID
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO insurance_policies (id, patient_id, plan_id, member_id, group_number,
				is_primary, insured_type, subscriber_name, subscriber_dob, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			ip.ID, ip.PatientID, ip.PlanID, ip.MemberID, ip.GroupNumber,
			ip.IsPrimary, ip.InsuredType, ip.SubscriberName, ip.SubscriberDOB,
			ip.CreatedAt, ip.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repoPG) ListPolicies(ctx context.Context, f PolicyFilter, limit, offset int) ([]*InsurancePolicy, int, error) {
	from := ` FROM insurance_policies p
		JOIN patients pt ON pt.id = p.patient_id`
	where := ` WHERE pt.organization_id = $1`
	args := []interface{}{f.OrganizationID}
	n := 1

	if f.PatientID != nil {
		n++
		where += fmt.Sprintf(` AND p.patient_id = $%d`, n)
		args = append(args, *f.PatientID)
	}
	if f.PayorID != nil {
		from += ` JOIN payor_plans pl ON pl.id = p.plan_id`
		n++
		where += fmt.Sprintf(` AND pl.payor_id = $%d`, n)
		args = append(args, *f.PayorID)
	}
	if f.IsPrimary != nil {
		n++
		where += fmt.Sprintf(` AND p.is_primary = $%d`, n)
		args = append(args, *f.IsPrimary)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	sql := `SELECT ` + policyCols + from + where +
		fmt.Sprintf(` ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d`, n+1, n+2)
	rows, err := r.conn(ctx).Query(ctx, sql, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*InsurancePolicy
	for rows.Next() {
		ip, err := scanPolicy(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, ip)
	}
	return items, total, rows.Err()
}

func (r *repoPG) GetPolicy(ctx context.Context, id uuid.UUID) (*InsurancePolicy, error) {
	return scanPolicy(r.conn(ctx).QueryRow(ctx, `
		SELECT `+policyCols+`
		FROM insurance_policies p
		JOIN patients pt ON pt.id = p.patient_id
		WHERE p.id = $1`, id))
}

func (r *repoPG) UpdatePolicy(ctx context.Context, ip *InsurancePolicy) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE insurance_policies SET member_id=$2, group_number=$3, is_primary=$4,
			subscriber_name=$5, subscriber_dob=$6, updated_at=$7
		WHERE id = $1`,
		ip.ID, ip.MemberID, ip.GroupNumber, ip.IsPrimary,
		ip.SubscriberName, ip.SubscriberDOB, ip.UpdatedAt)
	return err
}

func (r *repoPG) DeletePolicy(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM insurance_policies WHERE id = $1`, id)
	return err
}
