package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/forager/billing/internal/config"
	"github.com/forager/billing/internal/domain/attachment"
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
	"github.com/forager/billing/internal/platform/blobstore"
	"github.com/forager/billing/internal/platform/db"
	"github.com/forager/billing/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "billing-server",
		Short: "Medical billing API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the billing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %s\n", "VERSION", "NAME", "STATUS")
			fmt.Println("---------- ---------------------------------------- ----------")
			for _, s := range statuses {
				status := "pending"
				if s.Applied {
					status = "applied"
				}
				fmt.Printf("%-10d %-40s %s\n", s.Version, s.Name, status)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load development seed data",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			return seed(ctx, pool)
		},
	}
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	fileStore, err := blobstore.NewDiskFileStore(cfg.UploadDir)
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("failed to initialize upload storage")
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = "development-only-secret"
		logger.Warn().Msg("JWT_SECRET not set; using development signing key")
	}
	issuer := auth.NewTokenIssuer([]byte(secret), cfg.ParsedTokenTTL(), "billing-server")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	e.GET("/health", db.HealthHandler(pool, "0.1.0"))

	runner := db.PoolRunner{Pool: pool}

	orgSvc := organization.NewService(organization.NewRepoPG(pool), runner)
	userSvc := identity.NewService(identity.NewRepoPG(pool), runner, issuer)
	patientSvc := patient.NewService(patient.NewRepoPG(pool), runner)
	providerSvc := provider.NewService(provider.NewRepoPG(pool), runner)
	payorSvc := payor.NewService(payor.NewRepoPG(pool), runner)
	cptSvc := cptcode.NewService(cptcode.NewRepoPG(pool), runner)
	visitSvc := visit.NewService(visit.NewRepoPG(pool), runner)
	claimSvc := claim.NewService(claim.NewRepoPG(pool), runner)
	ruleSvc := rule.NewService(rule.NewRepoPG(pool), runner)
	attachSvc := attachment.NewService(attachment.NewRepoPG(pool), fileStore, runner)

	// Login stays outside the token middleware.
	public := e.Group("/api")
	identity.NewHandler(userSvc, logger).RegisterPublicRoutes(public)

	api := e.Group("/api", auth.Middleware(issuer))
	organization.NewHandler(orgSvc, logger).RegisterRoutes(api)
	identity.NewHandler(userSvc, logger).RegisterRoutes(api)
	patient.NewHandler(patientSvc, logger).RegisterRoutes(api)
	provider.NewHandler(providerSvc, logger).RegisterRoutes(api)
	payor.NewHandler(payorSvc, logger).RegisterRoutes(api)
	cptcode.NewHandler(cptSvc, logger).RegisterRoutes(api)
	visit.NewHandler(visitSvc, logger).RegisterRoutes(api)
	claim.NewHandler(claimSvc, logger).RegisterRoutes(api)
	rule.NewHandler(ruleSvc, logger).RegisterRoutes(api)
	attachment.NewHandler(attachSvc, logger).RegisterRoutes(api)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		return err
	}
	return nil
}

