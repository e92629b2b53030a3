package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	authhttp "github.com/TimurCravtov/CraftHub/internal/auth/http"
	"github.com/TimurCravtov/CraftHub/internal/auth/oauth"
	"github.com/TimurCravtov/CraftHub/internal/auth/otp"
	"github.com/TimurCravtov/CraftHub/internal/auth/password"
	"github.com/TimurCravtov/CraftHub/internal/auth/service"
	"github.com/TimurCravtov/CraftHub/internal/auth/sms"
	"github.com/TimurCravtov/CraftHub/internal/auth/store"
	"github.com/TimurCravtov/CraftHub/internal/auth/store/drivers/postgres"
	"github.com/TimurCravtov/CraftHub/internal/auth/store/drivers/sqlite"
	"github.com/TimurCravtov/CraftHub/internal/metrics"
	"github.com/TimurCravtov/CraftHub/pkg/httpx"
	"github.com/TimurCravtov/CraftHub/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Default per-endpoint limits. Everything else shares the configured default.
var defaultRateLimitOverrides = map[string]httpx.RateLimitConfig{
	"POST /api/auth/signin":     {Capacity: 5, RefillTokens: 5, RefillPeriod: time.Minute},
	"POST /api/auth/signup":     {Capacity: 5, RefillTokens: 5, RefillPeriod: time.Minute},
	"POST /api/auth/verify-2fa": {Capacity: 5, RefillTokens: 5, RefillPeriod: time.Minute},
	"POST /api/oauth/":          {Capacity: 10, RefillTokens: 10, RefillPeriod: time.Minute},
}

// Application encapsulates the auth service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	keys    Keys
	codes   otp.Store
	redis   *redis.Client
	limiter *httpx.RateLimiter
	metrics *metrics.Metrics

	// Services
	tokenService        *service.TokenService
	authService         *service.AuthService
	twoFactorService    *service.TwoFactorService
	federationService   *service.FederationService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *authhttp.Router
}

// NewLogger builds the process logger from cfg.
func NewLogger(cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: "crafthub-auth",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// New creates a new Application instance with all dependencies initialized.
func New(ctx context.Context, cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{
		cfg:    cfg,
		logger: NewLogger(cfg),
	}
	app.logger.Info("configuration loaded", cfg.redacted()...)

	keys, err := InitKeys(cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.keys = keys

	m, err := metrics.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	app.metrics = m

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := app.initCodes(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler exposes the fully wired router, mostly for tests.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		app.closeBackends()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application. In-flight requests get
// the configured grace period before the listener is force-closed.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.closeBackends(); err != nil {
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) closeBackends() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

// OpenStore opens the configured database driver without migrating it.
func OpenStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case DriverPostgres:
		return postgres.NewStore(ctx, cfg.DatabaseURL)
	case DriverSQLite:
		return sqlite.NewStore(fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DatabaseFile))
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

// Migrate applies all pending migrations and closes the connection.
func Migrate(ctx context.Context, cfg Config, logger *slog.Logger) error {
	db, err := OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	logger.Info("database migrations applied successfully", "driver", cfg.DatabaseDriver)
	return nil
}

// initDatabase opens the store and applies migrations.
func (app *Application) initDatabase(ctx context.Context) error {
	db, err := OpenStore(ctx, app.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

// initCodes picks the one-time code store. Redis is required when several
// replicas share traffic; memory is fine for a single process.
func (app *Application) initCodes(ctx context.Context) error {
	if app.cfg.OTPStore != OTPStoreRedis {
		app.codes = otp.NewMemoryStore()
		return nil
	}

	app.redis = redis.NewClient(&redis.Options{
		Addr: app.cfg.RedisAddr,
		DB:   app.cfg.RedisDB,
	})
	rs := otp.NewRedisStore(app.redis)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		_ = app.redis.Close()
		return fmt.Errorf("failed to reach redis at %s: %w", app.cfg.RedisAddr, err)
	}

	app.codes = rs
	app.logger.Info("redis code store connected", "addr", app.cfg.RedisAddr, "db", app.cfg.RedisDB)
	return nil
}

func (app *Application) smsSender() sms.Sender {
	if !app.cfg.twilioConfigured() {
		app.logger.Warn("twilio is not configured, sms codes are written to the log")
		return sms.NewLogSender(app.logger)
	}
	return sms.NewTwilioSender(sms.TwilioConfig{
		AccountSID:    app.cfg.TwilioAccountSID,
		AuthToken:     app.cfg.TwilioAuthToken,
		From:          app.cfg.TwilioPhoneNumber,
		RatePerSecond: app.cfg.SMSRatePerSecond,
	})
}

func (app *Application) oauthProviders() *oauth.Registry {
	var providers []oauth.Provider
	if app.cfg.GoogleClientID != "" {
		providers = append(providers, oauth.NewProvider(
			oauth.Google(app.cfg.GoogleClientID, app.cfg.GoogleClientSecret), app.cfg.OAuthTimeout))
	}
	if app.cfg.GitHubClientID != "" {
		providers = append(providers, oauth.NewProvider(
			oauth.GitHub(app.cfg.GitHubClientID, app.cfg.GitHubClientSecret), app.cfg.OAuthTimeout))
	}
	return oauth.NewRegistry(providers...)
}

// initServices initializes all business logic services.
func (app *Application) initServices() {
	app.tokenService = service.NewTokenService(
		app.keys.Signer,
		app.cfg.JWTIssuer,
		app.cfg.JWTAccessTTL,
		app.cfg.JWTRefreshTTL,
	)
	app.tokenService.Metrics = app.metrics

	app.twoFactorService = &service.TwoFactorService{
		Store:   app.db,
		Codec:   app.keys.Codec,
		Codes:   app.codes,
		SMS:     app.smsSender(),
		Issuer:  app.cfg.TFAIssuer,
		CodeTTL: app.cfg.OTPTTL,
		Metrics: app.metrics,
	}

	var breach password.BreachChecker
	if app.cfg.PasswordBreachCheck {
		breach = password.NewHIBPChecker(app.cfg.PasswordBreachURL, 0)
	}

	app.authService = &service.AuthService{
		Store:     app.db,
		Tokens:    app.tokenService,
		TwoFactor: app.twoFactorService,
		Hasher:    app.keys.Hasher,
		Passwords: password.NewValidator(breach),
		Metrics:   app.metrics,
	}

	app.federationService = &service.FederationService{
		Store:     app.db,
		Providers: app.oauthProviders(),
		Tokens:    app.tokenService,
		TwoFactor: app.twoFactorService,
		Hasher:    app.keys.Hasher,
		Metrics:   app.metrics,
	}

	app.limiter = httpx.NewRateLimiter(
		httpx.RateLimitConfig{
			Capacity:     app.cfg.RateLimitCapacity,
			RefillTokens: app.cfg.RateLimitRefillTokens,
			RefillPeriod: app.cfg.RateLimitRefillPeriod,
		},
		app.cfg.RateLimitIdleTTL,
		defaultRateLimitOverrides,
	).OnReject(app.metrics.RateLimitRejected)

	sweepers := map[string]service.Sweeper{"ratelimit": app.limiter}
	if mem, ok := app.codes.(*otp.MemoryStore); ok {
		sweepers["otp"] = mem
	}
	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		sweepers,
	)
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := authhttp.NewRouter(
		app.keys.Signer,
		BuildVersion,
		app.db,
		app.codes,
		app.limiter,
		app.logger,
	)

	router.AuthService = app.authService
	router.TwoFactorService = app.twoFactorService
	router.FederationService = app.federationService
	router.Metrics = app.metrics

	// Validate already rejected unknown values.
	sameSite, _ := authhttp.ParseSameSite(app.cfg.CookieSameSite)
	router.Cookies.SameSite = sameSite
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
