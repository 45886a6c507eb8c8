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

	"github.com/raypacs/raypacs/internal/config"
	"github.com/raypacs/raypacs/internal/domain/admin"
	"github.com/raypacs/raypacs/internal/domain/documents"
	"github.com/raypacs/raypacs/internal/domain/identity"
	"github.com/raypacs/raypacs/internal/domain/replication"
	"github.com/raypacs/raypacs/internal/domain/report"
	"github.com/raypacs/raypacs/internal/domain/study"
	"github.com/raypacs/raypacs/internal/platform/auth"
	"github.com/raypacs/raypacs/internal/platform/blobstore"
	"github.com/raypacs/raypacs/internal/platform/db"
	"github.com/raypacs/raypacs/internal/platform/middleware"
	"github.com/raypacs/raypacs/internal/platform/render"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ris-server",
		Short: "Radiology workflow API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
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
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			fmt.Printf("Running migrations on schema: %s\n", schema)

			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "tenant_default", "Target schema for migrations")
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage organizations",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new organization schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			dir, _ := cmd.Flags().GetString("dir")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Creating organization schema: tenant_%s\n", name)
			if err := db.CreateTenantSchema(ctx, pool, name, dir); err != nil {
				return err
			}
			fmt.Println("Organization created successfully.")
			return nil
		},
	}
	createCmd.Flags().String("name", "", "Organization identifier (alphanumeric)")
	createCmd.Flags().String("dir", "./migrations", "Path to migrations directory")

	cmd.AddCommand(createCmd)
	return cmd
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

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Blob store. MinIO when configured, in-memory otherwise. The memory
	// store loses everything on restart and exists for development only.
	var blobs blobstore.Store
	if cfg.BlobEndpoint != "" {
		blobs, err = blobstore.NewMinIOStore(ctx,
			cfg.BlobEndpoint, cfg.BlobRegion, cfg.BlobBucket,
			cfg.BlobAccessKey, cfg.BlobSecretKey, cfg.BlobUseSSL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to blob store")
		}
		logger.Info().Str("endpoint", cfg.BlobEndpoint).Str("bucket", cfg.BlobBucket).Msg("connected to blob store")
	} else {
		blobs = blobstore.NewMemoryStore()
		logger.Warn().Msg("BLOB_ENDPOINT not set, using in-memory blob store")
	}

	// Document renderer. The stub produces plain-text documents when no
	// external renderer is configured.
	var renderer render.Renderer
	if cfg.RendererURL != "" {
		renderer = render.NewHTTPRenderer(cfg.RendererURL,
			time.Duration(cfg.RendererTimeoutSec)*time.Second, logger)
		logger.Info().Str("url", cfg.RendererURL).Msg("using external document renderer")
	} else {
		renderer = render.StubRenderer{}
		logger.Warn().Msg("RENDERER_URL not set, using stub renderer")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	e.Use(db.TenantMiddleware(pool, cfg.DefaultTenant))

	api := e.Group("/api/v1")

	// Services. Construction order follows the dependency direction:
	// admin and identity first, then study, then report and documents,
	// replication last.
	adminSvc := admin.NewService(admin.NewLabRepoPG(pool), admin.NewDoctorProfileRepoPG(pool))
	identitySvc := identity.NewService(identity.NewPatientRepoPG(pool))

	studyRepo := study.NewRepoPG(pool)
	coordinator := study.NewCoordinator(studyRepo, identitySvc, pool, logger)
	studySvc := study.NewService(studyRepo, coordinator, identitySvc, adminSvc, pool)

	noteRepo := documents.NewNoteRepoPG(pool)
	attachmentRepo := documents.NewAttachmentRepoPG(pool)
	documentsSvc := documents.NewService(noteRepo, attachmentRepo, studySvc, blobs, logger)

	reportRepo := report.NewRepoPG(pool)
	reportSvc := report.NewService(reportRepo, studySvc, adminSvc, renderer, blobs, documentsSvc, pool, logger)

	replicationSvc := replication.NewService(studyRepo, reportRepo, noteRepo, attachmentRepo,
		identitySvc, blobs, pool, logger)

	admin.NewHandler(adminSvc).RegisterRoutes(api)
	identity.NewHandler(identitySvc).RegisterRoutes(api)
	study.NewHandler(studySvc).RegisterRoutes(api)
	report.NewHandler(reportSvc).RegisterRoutes(api)
	documents.NewHandler(documentsSvc).RegisterRoutes(api)
	replication.NewHandler(replicationSvc).RegisterRoutes(api)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
