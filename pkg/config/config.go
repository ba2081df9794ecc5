package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/beejcap/lsp-auth/pkg/errx"
)

// Config is the full application configuration loaded at startup.
type Config struct {
	Server   ServerConfig
	AWS      AWSConfig
	Cognito  CognitoConfig
	JWT      JWTConfig
	OTP      OTPConfig
	Store    StoreConfig
	Redis    RedisConfig
	RoleClaims map[string][]string
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port        int
	APIPrefix   string
	CORSOrigins []string
}

// AWSConfig configures the shared AWS SDK client settings.
type AWSConfig struct {
	Region string
}

// CognitoConfig configures the identity provider gateway.
type CognitoConfig struct {
	IssuerURL  string
	UserPoolID string
}

// JWTConfig configures locally issued tokens (OTP path).
type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// OTPConfig configures the one-time-password lifecycle.
type OTPConfig struct {
	TTL time.Duration
	// TestPrefix designates mobile numbers that always receive the fixed
	// automation code and no real SMS.
	TestPrefix string
}

// StoreConfig selects and configures the transactional record store.
type StoreConfig struct {
	// Mode is one of "dynamo", "postgres" or "memory".
	Mode      string
	TableName string

	// Postgres settings (Mode == "postgres")
	PostgresDSN string
}

// RedisConfig configures the optional JWKS cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// defaultRoleClaims is the built-in role → claims table. Roles with an empty
// claim set are valid roles that cannot pass any claim gate.
var defaultRoleClaims = map[string][]string{
	"supplier_admin":           {"supplier:manageUser"},
	"supplier_sales_rm":        {},
	"supplier_sales_head":      {},
	"supplier_sales_manager":   {},
	"supplier_sales_executive": {},
	"superadmin_admin":         {"superadmin:manage"},
	"retailer_admin":           {},
	"financier_admin":          {},
	"lsp_admin":                {},
	"lsp_rider":                {},
}

// Load builds the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnvInt("PORT", 4000),
			APIPrefix:   getEnv("API_URL_PREFIX", "/v1"),
			CORSOrigins: getEnvStringSlice("CORS_ORIGINS", []string{"*"}),
		},
		AWS: AWSConfig{
			Region: getEnv("AWS_REGION", "us-east-1"),
		},
		Cognito: CognitoConfig{
			IssuerURL:  getEnv("COGNITO_ISSUER", ""),
			UserPoolID: getEnv("COGNITO_USER_POOL_ID", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Issuer: getEnv("JWT_ISSUER", "lsp-auth"),
			TTL:    getEnvDuration("JWT_TTL", 4*time.Hour),
		},
		OTP: OTPConfig{
			TTL:        getEnvDuration("OTP_TTL", 5*time.Minute),
			TestPrefix: getEnv("OTP_TEST_PREFIX", "+91999999"),
		},
		Store: StoreConfig{
			Mode:        getEnv("STORE_MODE", "dynamo"),
			TableName:   getEnv("STORE_TABLE", "lsp-oms"),
			PostgresDSN: getEnv("POSTGRES_DSN", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RoleClaims: defaultRoleClaims,
	}

	if raw := os.Getenv("ROLE_CLAIMS_JSON"); raw != "" {
		table := map[string][]string{}
		if err := json.Unmarshal([]byte(raw), &table); err != nil {
			return nil, errx.Wrap(err, "invalid ROLE_CLAIMS_JSON", errx.TypeValidation)
		}
		cfg.RoleClaims = table
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return errx.Validation("JWT_SECRET is required")
	}
	switch c.Store.Mode {
	case "dynamo", "memory":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return errx.Validation("POSTGRES_DSN is required when STORE_MODE=postgres")
		}
	default:
		return errx.Validation("STORE_MODE must be one of dynamo, postgres, memory").
			WithDetail("store_mode", c.Store.Mode)
	}
	if len(c.RoleClaims) == 0 {
		return errx.Validation("role claims table must not be empty")
	}
	return nil
}
