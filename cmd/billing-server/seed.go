package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/forager/billing/internal/domain/claim"
	"github.com/forager/billing/internal/domain/cptcode"
	"github.com/forager/billing/internal/domain/identity"
	"github.com/forager/billing/internal/domain/organization"
	"github.com/forager/billing/internal/domain/patient"
	"github.com/forager/billing/internal/domain/payor"
	"github.com/forager/billing/internal/domain/provider"
	"github.com/forager/billing/internal/domain/rule"
	"github.com/forager/billing/internal/domain/visit"
	"github.com/forager/billing/internal/platform/auth"
	"github.com/forager/billing/internal/platform/db"
)

const seedPassword = "password123"

// seed loads one demo organization with users, a payor, a patient, a
// provider, CPT codes, a visit, a claim, and an automation rule. Rerunning
// against a database that already holds the demo admin user is a no-op.
func seed(ctx context.Context, pool *pgxpool.Pool) error {
	userRepo := identity.NewRepoPG(pool)
	if _, err := userRepo.GetByEmail(ctx, "admin@forager.com"); err == nil {
		fmt.Println("Seed data already present, nothing to do.")
		return nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	now := time.Now().Unix()

	org := &organization.Organization{
		Name:      "Forager Medical Group",
		Phone:     strPtr("555-0100"),
		Email:     strPtr("billing@forager.com"),
		NPI:       strPtr("1234567893"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	orgRepo := organization.NewRepoPG(pool)
	if err := orgRepo.Create(ctx, org); err != nil {
		return fmt.Errorf("create organization: %w", err)
	}

	hash, err := auth.HashPassword(seedPassword)
	if err != nil {
		return err
	}
	admin := &identity.User{
		Email:          "admin@forager.com",
		PasswordHash:   hash,
		FirstName:      "Alex",
		LastName:       "Admin",
		Role:           auth.RoleAdmin,
		OrganizationID: org.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	biller := &identity.User{
		Email:          "biller@forager.com",
		PasswordHash:   hash,
		FirstName:      "Billie",
		LastName:       "Biller",
		Role:           auth.RoleBiller,
		OrganizationID: org.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := userRepo.Create(ctx, biller); err != nil {
		return fmt.Errorf("create biller user: %w", err)
	}

	// The rest of the data goes through the services so the seed exercises
	// the same validation and referential checks as the API.
	adminCtx := auth.WithPrincipal(ctx, auth.Principal{
		UserID:         admin.ID,
		OrganizationID: org.ID,
		Role:           auth.RoleAdmin,
	})
	runner := db.PoolRunner{Pool: pool}

	payorSvc := payor.NewService(payor.NewRepoPG(pool), runner)
	bcbs, err := payorSvc.Create(adminCtx, payor.CreateRequest{
		Name:            "Blue Cross Blue Shield",
		ExternalPayorID: "BCBS-001",
		PayorCategory:   "Commercial",
		BillingTaxonomy: "207Q00000X",
		Phone:           strPtr("555-0199"),
		Plans: []payor.PlanInput{
			{PlanName: "BCBS PPO Gold", PlanType: "PPO", IsInNetwork: boolPtr(true)},
			{PlanName: "BCBS HMO Silver", PlanType: "HMO", IsInNetwork: boolPtr(false)},
		},
	})
	if err != nil {
		return fmt.Errorf("create payor: %w", err)
	}

	patientSvc := patient.NewService(patient.NewRepoPG(pool), runner)
	jane, err := patientSvc.Create(adminCtx, patient.CreateRequest{
		FirstName:   "Jane",
		LastName:    "Doe",
		DateOfBirth: "1988-04-12",
		Gender:      "Female",
		SSN:         strPtr("123-45-6789"),
		Phone:       strPtr("555-0142"),
		Email:       strPtr("jane.doe@example.com"),
		Address: &patient.Address{
			Street: "42 Juniper Lane",
			City:   "Portland",
			State:  "OR",
			Zip:    "97201",
		},
		Source: "Manual",
		Insurances: []patient.InsuranceInput{
			{
				PlanID:      bcbs.Plans[0].ID,
				MemberID:    "JD-9921",
				GroupNumber: strPtr("GRP-778"),
				IsPrimary:   true,
				InsuredType: "Subscriber",
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create patient: %w", err)
	}

	providerSvc := provider.NewService(provider.NewRepoPG(pool), runner)
	sarah, err := providerSvc.Create(adminCtx, provider.CreateRequest{
		FirstName:   "Sarah",
		LastName:    "Smith",
		NPI:         strPtr("1987654321"),
		Specialty:   strPtr("Family Medicine"),
		LicenseType: "MD",
		Source:      "Manual",
	})
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	cptSvc := cptcode.NewService(cptcode.NewRepoPG(pool), runner)
	codes := []cptcode.CreateRequest{
		{Code: "99213", Description: "Office visit, established patient, low complexity", BasePrice: floatPtr(150)},
		{Code: "99214", Description: "Office visit, established patient, moderate complexity", BasePrice: floatPtr(200)},
		{Code: "99385", Description: "Preventive visit, new patient, 18-39 years", BasePrice: floatPtr(250)},
	}
	var cpt99213 *cptcode.CPTCode
	for i, req := range codes {
		c, err := cptSvc.Create(adminCtx, req)
		if err != nil {
			return fmt.Errorf("create cpt code %s: %w", req.Code, err)
		}
		if i == 0 {
			cpt99213 = c
		}
	}

	visitSvc := visit.NewService(visit.NewRepoPG(pool), runner)
	v, err := visitSvc.Create(adminCtx, visit.CreateRequest{
		PatientID:  jane.ID,
		ProviderID: sarah.ID,
		VisitDate:  now,
		VisitTime:  strPtr("09:30"),
		Duration:   intPtr(30),
		VisitType:  "FollowUp",
		Status:     "Completed",
		Location:   strPtr("Main Clinic"),
		Source:     "Manual",
	})
	if err != nil {
		return fmt.Errorf("create visit: %w", err)
	}

	claimSvc := claim.NewService(claim.NewRepoPG(pool), runner)
	if _, err := claimSvc.Create(adminCtx, claim.CreateRequest{
		ClaimNumber:  fmt.Sprintf("CLM-%d", now),
		PatientID:    jane.ID,
		ProviderID:   sarah.ID,
		PayorID:      bcbs.ID,
		VisitID:      &v.ID,
		ServiceDate:  now,
		BilledAmount: floatPtr(150),
		Status:       "Draft",
		Source:       "Manual",
		Services: []claim.ServiceInput{
			{
				CPTCodeID:   cpt99213.ID,
				Description: strPtr("Office visit"),
				Quantity:    1,
				UnitPrice:   150,
				TotalPrice:  150,
			},
		},
	}); err != nil {
		return fmt.Errorf("create claim: %w", err)
	}

	ruleSvc := rule.NewService(rule.NewRepoPG(pool), runner)
	flow := json.RawMessage(`{"nodes":[{"id":"trigger","type":"claimCreated"},{"id":"verify","type":"checkEligibility"}],"edges":[{"source":"trigger","target":"verify"}]}`)
	r, err := ruleSvc.Create(adminCtx, rule.CreateRequest{
		Name:        "Auto-verify insurance eligibility",
		Description: strPtr("Checks payer eligibility whenever a claim is created"),
		FlowData:    flow,
	})
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	if _, err := ruleSvc.UpdateStatus(adminCtx, r.ID, rule.StatusRequest{IsActive: boolPtr(true)}); err != nil {
		return fmt.Errorf("activate rule: %w", err)
	}

	fmt.Println("Seed complete.")
	fmt.Println("  admin@forager.com / " + seedPassword)
	fmt.Println("  biller@forager.com / " + seedPassword)
	return nil
}

func strPtr(s string) *string    { return &s }
func boolPtr(b bool) *bool       { return &b }
func intPtr(i int) *int          { return &i }
func floatPtr(f float64) *float64 { return &f }
