package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Yousefxll/HospitalOS2-sub009/internal/config"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/apperror"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/auth"
	"github.com/Yousefxll/HospitalOS2-sub009/internal/platform/db"
	"github.com/Yousefxll/HospitalOS2-sub009/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ed-server",
		Short: "Emergency department encounter and resource-assignment engine",
	}

	rootCmd.AddCommand(serveCmd(), migrateCmd(), seedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPostgresConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationSource(cfg))
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadPostgresConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, migrationSource(cfg))
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

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
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load reference data",
	}

	bedsCmd := &cobra.Command{
		Use:   "beds",
		Short: "Create numbered beds in a zone",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenant, _ := cmd.Flags().GetString("tenant")
			zone, _ := cmd.Flags().GetString("zone")
			count, _ := cmd.Flags().GetInt("count")

			if err := db.ValidateTenantID(tenant); err != nil {
				return err
			}
			if zone == "" {
				return fmt.Errorf("--zone is required")
			}
			if count <= 0 || count > 500 {
				return fmt.Errorf("--count must be between 1 and 500")
			}

			cfg, err := loadPostgresConfig()
			if err != nil {
				return err
			}

			ctx := context.Background()
			logger := newLogger(cfg)
			be, err := openBackend(ctx, cfg)
			if err != nil {
				return err
			}
			defer be.close()

			svc := buildServices(be, logger, nil)
			caller := auth.Caller{TenantID: tenant, UserID: "system:seed", Permissions: []string{auth.PermAll}}

			created := 0
			for i := 1; i <= count; i++ {
				label := fmt.Sprintf("%s-%02d", zone, i)
				_, err := svc.assignments.CreateBed(ctx, caller, zone, label)
				switch {
				case apperror.Is(err, apperror.KindConflict):
					fmt.Printf("bed %s already exists, skipping\n", label)
					continue
				case err != nil && !apperror.Is(err, apperror.KindAuditDegraded):
					return fmt.Errorf("create bed %s: %w", label, err)
				}
				created++
			}

			fmt.Printf("Created %d bed(s) in zone %s for tenant %s.\n", created, zone, tenant)
			return nil
		},
	}
	bedsCmd.Flags().String("tenant", "", "Tenant identifier")
	bedsCmd.Flags().String("zone", "", "Bed zone, used as the label prefix")
	bedsCmd.Flags().Int("count", 10, "Number of beds to create")
	cmd.AddCommand(bedsCmd)

	return cmd
}

// loadPostgresConfig is used by the offline commands, which only make sense
// against a database.
func loadPostgresConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.StoreDriver != config.DriverPostgres {
		return nil, fmt.Errorf("this command requires STORE_DRIVER=%s", config.DriverPostgres)
	}
	return cfg, nil
}

func migrationSource(cfg *config.Config) fs.FS {
	if cfg.MigrationsDir != "" {
		return os.DirFS(cfg.MigrationsDir)
	}
	return migrations.FS
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg)
	if !cfg.IsDev() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx := context.Background()
	be, err := openBackend(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to open store")
		return err
	}
	defer be.close()
	logger.Info().Str("driver", cfg.StoreDriver).Msg("store ready")

	idem, closeIdem, err := openIdempotencyStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeIdem()

	e := newServer(cfg, logger, be, idem)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
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
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
