package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	authhttp "github.com/TimurCravtov/CraftHub/internal/auth/http"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	OTPStoreMemory = "memory"
	OTPStoreRedis  = "redis"

	minJWTSecretLen = 32
)

type Config struct {
	Env                  string        `env:"ENV" envDefault:"dev"`
	LogLevel             string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat            string        `env:"LOG_FORMAT" envDefault:"json"`
	Port                 int           `env:"PORT" envDefault:"8080"`
	ShutdownGracePeriod  time.Duration `env:"SHUTDOWN_GRACE_PERIOD" envDefault:"10s"`
	HousekeepingInterval time.Duration `env:"HOUSEKEEPING_INTERVAL" envDefault:"1h"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	DatabaseFile   string `env:"DATABASE_FILE" envDefault:"auth.db"`
	DatabaseURL    string `env:"DATABASE_URL"`

	JWTSecret     string        `env:"JWT_SECRET"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"crafthub"`
	JWTAccessTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"15m"`
	JWTRefreshTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"4320h"`

	TFAEncryptionKey string `env:"TFA_ENCRYPTION_KEY"`
	TFAIssuer        string `env:"TFA_ISSUER" envDefault:"CraftHub"`

	OTPStore  string        `env:"OTP_STORE" envDefault:"memory"`
	RedisAddr string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB   int           `env:"REDIS_DB" envDefault:"0"`
	OTPTTL    time.Duration `env:"OTP_TTL" envDefault:"5m"`

	TwilioAccountSID  string  `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string  `env:"TWILIO_AUTH_TOKEN"`
	TwilioPhoneNumber string  `env:"TWILIO_PHONE_NUMBER"`
	SMSRatePerSecond  float64 `env:"SMS_RATE_PER_SECOND" envDefault:"1"`

	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	GitHubClientID     string        `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string        `env:"GITHUB_CLIENT_SECRET"`
	OAuthTimeout       time.Duration `env:"OAUTH_TIMEOUT" envDefault:"10s"`

	RateLimitCapacity     int           `env:"RATELIMIT_CAPACITY" envDefault:"30"`
	RateLimitRefillTokens int           `env:"RATELIMIT_REFILL_TOKENS" envDefault:"30"`
	RateLimitRefillPeriod time.Duration `env:"RATELIMIT_REFILL_PERIOD" envDefault:"1m"`
	RateLimitIdleTTL      time.Duration `env:"RATELIMIT_IDLE_TTL" envDefault:"1h"`

	PasswordBreachCheck bool   `env:"PASSWORD_BREACH_CHECK" envDefault:"true"`
	PasswordBreachURL   string `env:"PASSWORD_BREACH_URL" envDefault:"https://api.pwnedpasswords.com/range/"`
	PepperFile          string `env:"PASSWORD_PEPPER_FILE" envDefault:"pepper"`

	CookieSameSite string `env:"COOKIE_SAMESITE" envDefault:"None"`
}

// LoadConfig reads the optional dotenv files, then the process environment.
// Variables already set in the environment win over the files.
func LoadConfig(dotenv ...string) (Config, error) {
	if len(dotenv) == 0 {
		dotenv = []string{".env"}
	}
	for _, f := range dotenv {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside the
// constructors.
func (c Config) Validate() error {
	var errs []error

	if len(c.JWTSecret) < minJWTSecretLen {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLen))
	}
	switch len(c.TFAEncryptionKey) {
	case 16, 24, 32:
	default:
		errs = append(errs, errors.New("TFA_ENCRYPTION_KEY must be 16, 24 or 32 bytes"))
	}

	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("DATABASE_FILE is required for sqlite"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver))
	}

	switch c.OTPStore {
	case OTPStoreMemory, OTPStoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown OTP_STORE %q", c.OTPStore))
	}

	if _, err := authhttp.ParseSameSite(c.CookieSameSite); err != nil {
		errs = append(errs, fmt.Errorf("COOKIE_SAMESITE: %w", err))
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		errs = append(errs, errors.New("JWT TTLs must be positive"))
	}
	if c.RateLimitCapacity < 1 || c.RateLimitRefillPeriod <= 0 {
		errs = append(errs, errors.New("rate limit capacity and refill period must be positive"))
	}

	return errors.Join(errs...)
}

func (c Config) twilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioPhoneNumber != ""
}

// redacted is the config as logged at startup.
func (c Config) redacted() []any {
	return []any{
		"env", c.Env,
		"port", c.Port,
		"database_driver", c.DatabaseDriver,
		"otp_store", c.OTPStore,
		"sms", map[bool]string{true: "twilio", false: "log"}[c.twilioConfigured()],
		"oauth_providers", strings.Join(c.oauthProviderNames(), ","),
		"breach_check", c.PasswordBreachCheck,
	}
}

func (c Config) oauthProviderNames() []string {
	var names []string
	if c.GoogleClientID != "" {
		names = append(names, "google")
	}
	if c.GitHubClientID != "" {
		names = append(names, "github")
	}
	return names
}
