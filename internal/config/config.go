// Package config provides application configuration loaded from environment
// variables with defaults and validation. Besides server and observability
// settings it carries the OTP policy and the credentials for the Twilio Verify,
// WhatsApp Cloud API and Redis collaborators.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-approval-gateway")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// OTPConfig is the one-time-code policy.
type OTPConfig struct {
	Expiry         time.Duration // OTP_EXPIRY
	MaxAttempts    int           // OTP_MAX_ATTEMPTS; counter above this denies the challenge
	ResendLinkTTL  time.Duration // RESEND_LINK_TTL
	CorrelationTTL time.Duration // CORRELATION_TTL
	IssueParallel  int           // OTP_ISSUE_PARALLELISM
}

// TwilioConfig holds Twilio Verify credentials.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	ServiceSID string
	Channel    string // sms|whatsapp|call
}

// WhatsAppTemplates names the message templates registered with Meta.
type WhatsAppTemplates struct {
	Approval string
	OTP      string
	Resend   string
	Retry    string
}

// WhatsAppConfig holds the Cloud API endpoint and webhook settings.
type WhatsAppConfig struct {
	APIURL      string // full messages endpoint, e.g. https://graph.facebook.com/v20.0/<phone-id>/messages
	Token       string
	VerifyToken string // webhook subscription handshake
	AppSecret   string // signs X-Hub-Signature-256; empty disables the check
	Language    language.Tag
	Timeout     time.Duration
	Templates   WhatsAppTemplates
}

// RedisConfig selects and configures the Redis backend.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PhoneLockTTL time.Duration
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// Storage
	DBDriver     string // sqlite|postgres
	DBPath       string // SQLite path
	DatabaseURL  string // Postgres DSN
	StoreBackend string // sql|redis; backs correlations, resend links and phone locks

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig

	// Domain
	OTP      OTPConfig
	Twilio   TwilioConfig
	WhatsApp WhatsAppConfig
	Redis    RedisConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// Storage
		DBDriver:     strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		DBPath:       getenv("DB_PATH", "app.db"),
		DatabaseURL:  getenv("DATABASE_URL", ""),
		StoreBackend: strings.ToLower(getenv("STORE_BACKEND", "sql")),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-approval-gateway"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},

		OTP: OTPConfig{
			Expiry:         getdur("OTP_EXPIRY", 5*time.Minute),
			MaxAttempts:    getint("OTP_MAX_ATTEMPTS", 3),
			ResendLinkTTL:  getdur("RESEND_LINK_TTL", 5*time.Minute),
			CorrelationTTL: getdur("CORRELATION_TTL", 7*24*time.Hour),
			IssueParallel:  getint("OTP_ISSUE_PARALLELISM", 4),
		},
		Twilio: TwilioConfig{
			AccountSID: getenv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:  getenv("TWILIO_AUTH_TOKEN", ""),
			ServiceSID: getenv("TWILIO_VERIFY_SERVICE_SID", ""),
			Channel:    strings.ToLower(getenv("TWILIO_CHANNEL", "sms")),
		},
		WhatsApp: WhatsAppConfig{
			APIURL:      getenv("WHATSAPP_API_URL", ""),
			Token:       getenv("WHATSAPP_API_TOKEN", ""),
			VerifyToken: getenv("WHATSAPP_VERIFY_TOKEN", ""),
			AppSecret:   getenv("WHATSAPP_APP_SECRET", ""),
			Timeout:     getdur("WHATSAPP_TIMEOUT", 10*time.Second),
			Templates: WhatsAppTemplates{
				Approval: getenv("WHATSAPP_TEMPLATE_APPROVAL", "generic_approval"),
				OTP:      getenv("WHATSAPP_TEMPLATE_OTP", "envoieotp"),
				Resend:   getenv("WHATSAPP_TEMPLATE_RESEND", "renvoieotp"),
				Retry:    getenv("WHATSAPP_TEMPLATE_RETRY", "retry"),
			},
		},
		Redis: RedisConfig{
			Address:      getenv("REDIS_ADDRESS", "localhost:6379"),
			Password:     getenv("REDIS_PASSWORD", ""),
			DB:           getint("REDIS_DB", 0),
			PhoneLockTTL: getdur("PHONE_LOCK_TTL", 30*time.Second),
		},
	}

	lang, err := language.Parse(getenv("WHATSAPP_TEMPLATE_LANG", "en"))
	if err != nil {
		return cfg, errors.New("WHATSAPP_TEMPLATE_LANG must be a BCP 47 language tag")
	}
	cfg.WhatsApp.Language = lang

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DBDriver {
	case "sqlite":
		if strings.TrimSpace(cfg.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	switch cfg.StoreBackend {
	case "sql":
	case "redis":
		if strings.TrimSpace(cfg.Redis.Address) == "" {
			return cfg, errors.New("REDIS_ADDRESS is required when STORE_BACKEND=redis")
		}
		if cfg.Redis.PhoneLockTTL <= 0 {
			return cfg, errors.New("PHONE_LOCK_TTL must be > 0")
		}
	default:
		return cfg, errors.New("STORE_BACKEND must be one of: sql, redis")
	}
	if cfg.OTP.Expiry <= 0 || cfg.OTP.ResendLinkTTL <= 0 || cfg.OTP.CorrelationTTL <= 0 {
		return cfg, errors.New("OTP_EXPIRY, RESEND_LINK_TTL and CORRELATION_TTL must be positive durations")
	}
	if cfg.OTP.MaxAttempts < 1 {
		return cfg, errors.New("OTP_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.OTP.IssueParallel < 1 {
		return cfg, errors.New("OTP_ISSUE_PARALLELISM must be >= 1")
	}
	switch cfg.Twilio.Channel {
	case "sms", "whatsapp", "call":
	default:
		return cfg, errors.New("TWILIO_CHANNEL must be one of: sms, whatsapp, call")
	}
	if cfg.WhatsApp.Timeout <= 0 {
		return cfg, errors.New("WHATSAPP_TIMEOUT must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return cfg, nil
}

// lookup parses environment variable k, falling back to def when k is
// unset, empty or unparsable.
func lookup[T any](k string, def T, parse func(string) (T, error)) T {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}

func getenv(k, def string) string {
	return lookup(k, def, func(v string) (string, error) { return v, nil })
}

func getint(k string, def int) int { return lookup(k, def, strconv.Atoi) }

func getdur(k string, def time.Duration) time.Duration { return lookup(k, def, time.ParseDuration) }

func getfloat(k string, def float64) float64 {
	return lookup(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func getbool(k string, def bool) bool { return lookup(k, def, parseBool) }

// parseBool accepts the usual spellings of on/off switches.
func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", v)
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
