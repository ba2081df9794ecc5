// cmd/container.go
//
// Root composition root. Owns infrastructure (record store, identity
// provider, SMS gateway, Redis) and wires the identity modules together.
// This is the only place that knows about ALL modules.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/beejcap/lsp-auth/pkg/config"
	"github.com/beejcap/lsp-auth/pkg/iam/auth"
	"github.com/beejcap/lsp-auth/pkg/iam/auth/authinfra"
	"github.com/beejcap/lsp-auth/pkg/iam/enroll/enrollsrv"
	"github.com/beejcap/lsp-auth/pkg/iam/iamhttp"
	"github.com/beejcap/lsp-auth/pkg/iam/otp/otpsrv"
	"github.com/beejcap/lsp-auth/pkg/iam/roles"
	"github.com/beejcap/lsp-auth/pkg/idp"
	"github.com/beejcap/lsp-auth/pkg/idp/idpcognito"
	"github.com/beejcap/lsp-auth/pkg/logx"
	"github.com/beejcap/lsp-auth/pkg/notifx"
	"github.com/beejcap/lsp-auth/pkg/notifx/notifxconsole"
	"github.com/beejcap/lsp-auth/pkg/notifx/notifxsns"
	"github.com/beejcap/lsp-auth/pkg/store"
	"github.com/beejcap/lsp-auth/pkg/store/storedynamo"
	"github.com/beejcap/lsp-auth/pkg/store/storememory"
	"github.com/beejcap/lsp-auth/pkg/store/storepg"
)

// Container holds shared infrastructure and the composed identity modules.
type Container struct {
	Config *config.Config

	// Infrastructure (shared across all modules)
	DB    *sqlx.DB
	Redis *redis.Client
	Store store.Store

	// Gateways
	Provider idp.IdentityProvider
	SMS      notifx.SMSSender

	// Identity modules
	Claims        *roles.ClaimsTable
	Enrollment    *enrollsrv.Service
	Otp           *otpsrv.Service
	JWTService    *auth.JWTService
	Authenticator *auth.Authenticator
	Handler       *iamhttp.Handler
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure — record store, AWS gateways, Redis
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")

	awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(),
		awsConfig.WithRegion(c.Config.AWS.Region),
	)
	if err != nil {
		logx.Fatalf("Unable to load AWS SDK config: %v", err)
	}

	// 1. Record store
	switch c.Config.Store.Mode {
	case "dynamo":
		client := dynamodb.NewFromConfig(awsCfg)
		c.Store = storedynamo.NewDynamoStore(client, c.Config.Store.TableName)
		logx.Infof("  ✅ DynamoDB store configured (table: %s)", c.Config.Store.TableName)

	case "postgres":
		db, err := sqlx.Connect("postgres", c.Config.Store.PostgresDSN)
		if err != nil {
			logx.Fatalf("Failed to connect to database: %v", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		c.DB = db

		pgStore := storepg.NewPostgresStore(db)
		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			logx.Fatalf("Failed to ensure store schema: %v", err)
		}
		c.Store = pgStore
		logx.Info("  ✅ Postgres store configured")

	case "memory":
		c.Store = storememory.NewMemoryStore()
		logx.Warn("  ⚠️ In-memory store configured (data is not persisted)")
	}

	// 2. Identity provider
	c.Provider = idpcognito.NewCognitoProvider(
		cognitoidentityprovider.NewFromConfig(awsCfg),
		c.Config.Cognito.UserPoolID,
	)
	logx.Infof("  ✅ Cognito provider configured (pool: %s)", c.Config.Cognito.UserPoolID)

	// 3. SMS gateway
	switch smsMode := getEnv("SMS_MODE", "sns"); smsMode {
	case "sns":
		c.SMS = notifxsns.NewSNSProvider(sns.NewFromConfig(awsCfg), getEnv("SMS_SENDER_ID", ""))
		logx.Info("  ✅ SNS SMS gateway configured")
	case "console":
		c.SMS = notifxconsole.NewConsoleProvider()
		logx.Warn("  ⚠️ Console SMS gateway configured (no real delivery)")
	default:
		logx.Fatalf("Unknown SMS_MODE: %s (use 'sns' or 'console')", smsMode)
	}

	// 4. Redis (optional JWKS cache)
	if c.Config.Redis.Addr != "" {
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		if _, err := c.Redis.Ping(context.Background()).Result(); err != nil {
			logx.Fatalf("Failed to connect to Redis: %v", err)
		}
		logx.Info("  ✅ Redis connected")
	}

	logx.Info("✅ Infrastructure initialized")
}

// ---------------------------------------------------------------------------
// Module composition
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	logx.Info("📦 Initializing modules...")

	claims, err := roles.NewClaimsTable(c.Config.RoleClaims)
	if err != nil {
		logx.Fatalf("Invalid role claims table: %v", err)
	}
	c.Claims = claims

	c.JWTService = auth.NewJWTService(c.Config.JWT.Secret, c.Config.JWT.Issuer, c.Config.JWT.TTL)

	var keyCache auth.KeySetCache = authinfra.NewMemoryKeySetCache()
	if c.Redis != nil {
		keyCache = authinfra.NewRedisKeySetCache(c.Redis, "jwks:")
	}

	var providerVerifier auth.TokenVerifier
	if c.Config.Cognito.IssuerURL != "" {
		providerVerifier = auth.NewCognitoVerifier(c.Config.Cognito.IssuerURL, &http.Client{Timeout: 10 * time.Second}, keyCache)
	}

	c.Authenticator = auth.NewAuthenticator(
		c.JWTService,
		providerVerifier,
		c.Config.JWT.Issuer,
		c.Claims,
		authinfra.NewLogAuditService(),
	)

	c.Enrollment = enrollsrv.NewService(c.Store, c.Provider, c.Claims)
	c.Otp = otpsrv.NewService(c.Store, c.Enrollment, c.SMS, c.JWTService, c.Config.OTP.TTL, c.Config.OTP.TestPrefix)
	c.Handler = iamhttp.NewHandler(c.Enrollment, c.Otp, c.Authenticator)

	logx.Info("  ✅ Identity modules wired")
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
