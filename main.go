package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"ffp-admin/config"
	"ffp-admin/handlers"
	"ffp-admin/logging"
	"ffp-admin/metrics"
	"ffp-admin/models"
	"ffp-admin/services"
	"ffp-admin/utils"
)

// demoPassword is shared by the seeded demo accounts.
const demoPassword = "Password123"

var envFile string

var rootCmd = &cobra.Command{
	Use:           "ffp-admin",
	Short:         "Frequent-flyer program administration service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the sweep scheduler",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.close()
		if err := models.AutoMigrate(e.db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		e.log.Info("schema migrated")
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the demo users and the partner credit card catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.close()
		ctx := cmd.Context()

		for _, email := range models.DemoUserEmails {
			user, created, err := e.auth.EnsureUser(ctx, email, demoPassword)
			if err != nil {
				return err
			}
			e.log.Info("demo user", zap.String("email", user.Email), zap.Bool("created", created))
		}
		if _, err := e.cards.Seed(ctx, models.DefaultCreditCards); err != nil {
			return err
		}
		return nil
	},
}

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "Manage partner credit cards",
}

var cardsArchiveCmd = &cobra.Command{
	Use:   "archive <credit-card-id>",
	Short: "Archive a credit card and every transfer ratio that uses it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := bootstrap()
		if err != nil {
			return err
		}
		defer e.close()
		archived, err := e.cards.Archive(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "archived credit card %s and %d transfer ratios\n", args[0], archived)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	cardsCmd.AddCommand(cardsArchiveCmd)
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, cardsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env holds what every command needs.
type env struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *gorm.DB
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	sessions *services.SessionManager
	auth     *services.AuthService
	programs *services.ProgramService
	ratios   *services.TransferRatioService
	cards    *services.CreditCardService
}

func bootstrap() (*env, error) {
	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		_ = log.Sync()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)
	sessions := services.NewSessionManager(cfg.Session)

	return &env{
		cfg:      cfg,
		log:      log,
		db:       db,
		registry: registry,
		metrics:  m,
		sessions: sessions,
		auth:     services.NewAuthService(db, sessions, cfg.Session.BcryptCost, log),
		programs: services.NewProgramService(db, log, m),
		ratios:   services.NewTransferRatioService(db, log, m),
		cards:    services.NewCreditCardService(db, log, m),
	}, nil
}

func (e *env) close() {
	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = e.log.Sync()
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := bootstrap()
	if err != nil {
		return err
	}
	defer e.close()
	ctx := cmd.Context()

	if err := models.AutoMigrate(e.db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	deps := handlers.Deps{
		DB:             e.db,
		Log:            e.log,
		Metrics:        e.metrics,
		Gatherer:       e.registry,
		Sessions:       e.sessions,
		Auth:           e.auth,
		Programs:       e.programs,
		TransferRatios: e.ratios,
		CreditCards:    e.cards,
		AllowedOrigins: e.cfg.AllowedOrigins,
		Development:    e.cfg.IsDevelopment(),
	}
	if e.cfg.Storage.StorageEnabled() {
		store, err := utils.NewR2Storage(ctx, e.cfg.Storage)
		if err != nil {
			return err
		}
		deps.Store = store
	} else {
		e.log.Warn("object storage not configured; uploads and logo urls disabled")
	}

	sweeper := services.NewSweeper(e.cards, e.cfg.SweepInterval, e.log)
	if err := sweeper.Start(); err != nil {
		return err
	}

	app := handlers.NewApp(deps)
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(":" + e.cfg.Port)
	}()
	e.log.Info("server listening",
		zap.String("port", e.cfg.Port),
		zap.Strings("allowed_origins", e.cfg.AllowedOrigins))

	select {
	case err := <-errCh:
		_ = sweeper.Stop()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	e.log.Info("shutting down")
	if err := sweeper.Stop(); err != nil {
		e.log.Warn("scheduler shutdown", zap.Error(err))
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		e.log.Warn("server shutdown", zap.Error(err))
	}
	return nil
}
