package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/billing"
	"github.com/hms/hms/internal/domain/clinical"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/domain/search"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/cache"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/history"
	"github.com/hms/hms/internal/platform/logging"
	"github.com/hms/hms/internal/platform/middleware"
	"github.com/hms/hms/internal/platform/notification"
	"github.com/hms/hms/migrations"
	"github.com/hms/hms/pkg/pagination"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hms-server",
		Short: "Hospital management API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(staffCmd())

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
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
				count, err := db.NewMigrator(pool, migrationsFS(dir)).Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
				statuses, err := db.NewMigrator(pool, migrationsFS(dir)).Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), "WARNING: migrate down is not supported by the built-in runner.")
			fmt.Fprintln(cmd.OutOrStdout(), "Write a new forward migration to undo a schema change.")
			return nil
		},
	})

	return cmd
}

// staffCmd bootstraps accounts from the command line, where no logged-in
// administrator exists yet.
func staffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Manage staff accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff account",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := staffInputFromFlags(cmd)
			if err != nil {
				return err
			}
			return withPool(cmd.Context(), func(ctx context.Context, pool *pgxpool.Pool) error {
				svc := staff.NewService(staff.NewUserRepoPG(pool), staff.NewOTPRepoPG(pool), staff.Config{
					Logger: zerolog.New(cmd.ErrOrStderr()).With().Timestamp().Logger(),
				})
				u, err := svc.CreateStaff(ctx, bootstrapActor, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s (%s) with id %s\n", u.RoleLevel, u.UserType, u.Username, u.ID)
				return nil
			})
		},
	}
	createCmd.Flags().String("username", "", "Login name (required)")
	createCmd.Flags().String("email", "", "E-mail address (required)")
	createCmd.Flags().String("password", "", "Initial password (required)")
	createCmd.Flags().String("first-name", "", "First name (required)")
	createCmd.Flags().String("last-name", "", "Last name")
	createCmd.Flags().String("user-type", "admin", "receptionist, nurse, doctor or admin")
	createCmd.Flags().String("role-level", "senior", "basic, medium or senior")
	createCmd.Flags().String("specialization", "", "Doctor specialization")
	createCmd.Flags().Bool("superuser", false, "Grant superuser status")

	cmd.AddCommand(createCmd)
	return cmd
}

var bootstrapActor = &auth.Actor{ID: uuid.Nil, Username: "cli", IsSuperuser: true, IsStaff: true}

func staffInputFromFlags(cmd *cobra.Command) (staff.CreateStaffInput, error) {
	f := cmd.Flags()
	str := func(name string) string {
		v, _ := f.GetString(name)
		return v
	}
	in := staff.CreateStaffInput{
		Username:  str("username"),
		Email:     str("email"),
		Password:  str("password"),
		FirstName: str("first-name"),
		LastName:  str("last-name"),
		UserType:  str("user-type"),
		RoleLevel: str("role-level"),
	}
	if s := str("specialization"); s != "" {
		in.Specialization = &s
	}
	in.IsSuperuser, _ = f.GetBool("superuser")
	for _, name := range []string{"username", "email", "password", "first-name"} {
		if str(name) == "" {
			return in, fmt.Errorf("--%s is required", name)
		}
	}
	return in, nil
}

// withPool loads configuration, opens a pool for the duration of fn and
// closes it afterwards.
func withPool(ctx context.Context, fn func(ctx context.Context, pool *pgxpool.Pool) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, pool)
}

func migrationsFS(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, logCloser := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Console:    cfg.IsDev(),
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	})
	defer logCloser.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	clk := clock.New()
	store, err := newStore(ctx, cfg, clk, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// Auth
	issuer := auth.NewTokenIssuer(cfg.SigningKey(), cfg.JWTIssuer, cfg.AccessTokenTTL, clk)
	revoked := auth.NewRevocationList(store, clk)

	recorder := history.NewRecorder(history.NewRepo(pool), clk, logger)
	limits := pagination.Limits{Default: cfg.PageSize, Max: cfg.MaxPageSize}

	// Domain services
	staffSvc := staff.NewService(staff.NewUserRepoPG(pool), staff.NewOTPRepoPG(pool), staff.Config{
		Issuer:  issuer,
		Revoked: revoked,
		Mailer:  newMailer(cfg, logger),
		Clock:   clk,
		OTPTTL:  cfg.OTPTTL,
		Logger:  logger,
	})
	if cfg.IsDev() {
		// Unauthenticated dev requests act as DevActor, whose writes need a
		// staff_user row behind the audit columns.
		if err := staffSvc.EnsureAccount(ctx, auth.DevActor); err != nil {
			logger.Warn().Err(err).Msg("could not seed development account")
		}
	}
	patientSvc := patient.NewService(patient.NewRepoPG(pool), patient.Config{
		HospitalCode: cfg.HospitalCode,
		Doctors:      doctorLookup(staffSvc),
		History:      recorder,
		Clock:        clk,
		Logger:       logger,
	})
	schedSvc := scheduling.NewService(scheduling.NewAppointmentRepoPG(pool), scheduling.NewAuditRepoPG(pool), scheduling.Config{
		Directory: scheduling.NewDirectoryPG(pool),
		History:   recorder,
		Clock:     clk,
		Logger:    logger,
	})
	vitalsSvc := clinical.NewService(clinical.NewRepoPG(pool), schedSvc, recorder, logger)
	billingSvc := billing.NewService(billing.NewRepoPG(pool), db.NewTransactor(pool), recorder, logger)
	searchSvc := search.NewService(search.NewFinderPG(pool), store, cfg.SearchCacheTTL, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)
	e.IPExtractor = echo.ExtractIPFromXFFHeader()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
	}))
	e.Use(echomw.BodyLimit("1M"))
	e.Use(echomw.Secure())

	authMW := auth.JWTMiddleware(issuer, revoked, logger)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(issuer, revoked, logger)
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Login and OTP endpoints are reachable without a token; everything else
	// under /api/v1 is authenticated and audited.
	public := e.Group("/api/v1", middleware.RateLimit(authRateLimit(cfg, clk, logger)))
	apiV1 := e.Group("/api/v1", authMW, middleware.Audit(logger))

	staff.NewHandler(staffSvc, cfg.IsProduction()).RegisterRoutes(public, apiV1)
	patient.NewHandler(patientSvc, limits, logger).RegisterRoutes(apiV1)
	scheduling.NewHandler(schedSvc, limits, logger).RegisterRoutes(apiV1)
	clinical.NewHandler(vitalsSvc, logger).RegisterRoutes(apiV1)
	billing.NewHandler(billingSvc, limits, logger).RegisterRoutes(apiV1)
	search.NewHandler(searchSvc, limits, logger).RegisterRoutes(apiV1)
	history.NewHandler(recorder, history.Scopes{
		auth.PatientResource:     patientSvc.Authorize,
		auth.AppointmentResource: appointmentScope(schedSvc),
		auth.VitalsResource:      appointmentScope(schedSvc),
	}, logger).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
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

// newStore returns a Redis-backed store when REDIS_URL is set, otherwise a
// process-local one swept once a minute until ctx ends.
func newStore(ctx context.Context, cfg *config.Config, clk clock.Clock, logger zerolog.Logger) (cache.Store, error) {
	if cfg.RedisURL == "" {
		mem := cache.NewMemoryStore(clk)
		mem.StartCleanup(ctx, time.Minute)
		logger.Info().Msg("using in-memory cache")
		return mem, nil
	}
	client, err := cache.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("connected to redis")
	return cache.NewRedisStore(client), nil
}

func newMailer(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if cfg.SendGridAPIKey == "" {
		logger.Warn().Msg("SENDGRID_API_KEY not set, OTP e-mails are only logged")
		return notification.NewLogSender(logger)
	}
	return notification.NewSendGridSender(cfg.SendGridAPIKey, cfg.MailFrom)
}

func authRateLimit(cfg *config.Config, clk clock.Clock, logger zerolog.Logger) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = float64(cfg.AuthRatePerMinute) / 60
	rl.BurstSize = cfg.AuthRateBurst
	rl.Clock = clk
	rl.Logger = logger
	return rl
}

func doctorLookup(svc *staff.Service) patient.DoctorLookup {
	return func(ctx context.Context, id uuid.UUID) error {
		_, err := svc.Doctor(ctx, id)
		return err
	}
}

// appointmentScope checks history reads keyed by appointment id, which covers
// both appointment and vitals records.
func appointmentScope(svc *scheduling.Service) history.Scope {
	return func(ctx context.Context, a *auth.Actor, id string) error {
		appointmentID, err := uuid.Parse(id)
		if err != nil {
			return apperr.NotFound("appointment")
		}
		return svc.Authorize(ctx, a, appointmentID)
	}
}
