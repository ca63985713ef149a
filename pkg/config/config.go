package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/downtime-engine/pkg/crypto"
)

// Supported store drivers.
const (
	DriverPostgres  = "postgres"
	DriverSQLServer = "sqlserver"
	DriverSQLite    = "sqlite3"
)

// Supported answer service providers.
const (
	ProviderWorkflow  = "workflow"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const (
	minAnswerTimeout = 5 * time.Second
	maxAnswerTimeout = 120 * time.Second
)

// Config holds all configuration for downtime-engine.
// Values come from config.yaml when present, with environment variables
// overriding YAML. Secrets (database password, answer API key) are env only.
type Config struct {
	AppName  string `yaml:"app_name" env:"APP_NAME" env-default:"Downtime Question Answer API"`
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:""`
	Version  string `yaml:"-"`

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// SecretsKey opens secrets given in sealed "enc:..." form.
	SecretsKey string `yaml:"-" env:"SECRETS_KEY"`

	Database  DatabaseConfig  `yaml:"database"`
	Answer    AnswerConfig    `yaml:"answer"`
	Query     QueryConfig     `yaml:"query"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Auth      AuthConfig      `yaml:"auth"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// DatabaseConfig describes the relational store holding inform notes.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	Host     string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User     string `yaml:"user" env:"PGUSER" env-default:"downtime"`
	Password string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"PGDATABASE" env-default:"downtime"`
	SSLMode  string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`

	// DSN, when set, is used verbatim instead of the discrete fields.
	// For sqlite3 this is the database file path.
	DSN string `yaml:"-" env:"DB_DSN"`

	PoolMinConns int32         `yaml:"pool_min_conns" env:"DB_POOL_MIN_CONNS" env-default:"1"`
	PoolMaxConns int32         `yaml:"pool_max_conns" env:"DB_POOL_MAX_CONNS" env-default:"5"`
	QueryTimeout time.Duration `yaml:"query_timeout" env:"DB_QUERY_TIMEOUT" env-default:"30s"`
	AutoMigrate  bool          `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"false"`
}

// AnswerConfig configures the external answer-generation service that
// handles questions the extractor cannot turn into a filter.
type AnswerConfig struct {
	Provider   string        `yaml:"provider" env:"ANSWER_PROVIDER" env-default:"workflow"`
	BaseURL    string        `yaml:"base_url" env:"DIFY_API_BASE" env-default:""`
	APIKey     string        `yaml:"-" env:"DIFY_API_KEY"` // Secret - not in YAML
	UserID     string        `yaml:"user_id" env:"DIFY_USER_ID" env-default:"downtime-engine-user"`
	Model      string        `yaml:"model" env:"ANSWER_MODEL" env-default:""`
	Timeout    time.Duration `yaml:"timeout" env:"ANSWER_TIMEOUT" env-default:"30s"`
	MaxRetries int           `yaml:"max_retries" env:"ANSWER_MAX_RETRIES" env-default:"2"`
	// RateLimit is requests per second towards the provider; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" env:"ANSWER_RATE_LIMIT" env-default:"5"`
	Burst     int     `yaml:"burst" env:"ANSWER_BURST" env-default:"5"`
}

// IsConfigured reports whether an answer service can be called at all.
func (c *AnswerConfig) IsConfigured() bool {
	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic:
		return c.APIKey != ""
	default:
		return c.BaseURL != "" && c.APIKey != ""
	}
}

// QueryConfig holds the tunables of the row and statistics queries.
type QueryConfig struct {
	// ToleranceRatio widens an exact downtime value into value*(1-r)..value*(1+r).
	ToleranceRatio float64 `yaml:"tolerance_ratio" env:"QUERY_TOLERANCE_RATIO" env-default:"0.1"`
	DefaultLimit   int     `yaml:"default_limit" env:"QUERY_DEFAULT_LIMIT" env-default:"20"`
	MaxLimit       int     `yaml:"max_limit" env:"QUERY_MAX_LIMIT" env-default:"1000"`
}

// ExtractorConfig holds the tunables of question analysis.
type ExtractorConfig struct {
	// Epsilon nudges strict comparison bounds (">", "<") off the inclusive edge.
	Epsilon float64 `yaml:"epsilon" env:"EXTRACTOR_EPSILON" env-default:"0.01"`
	// VocabularyPath optionally points at a YAML file with extra site codes
	// and process keywords.
	VocabularyPath string `yaml:"vocabulary_path" env:"EXTRACTOR_VOCABULARY_PATH" env-default:""`
}

// AuthConfig holds bearer token verification settings.
type AuthConfig struct {
	// Enabled turns on bearer token checks for the API and MCP routes.
	Enabled bool `yaml:"enabled" env:"AUTH_ENABLED" env-default:"false"`

	// EnableVerification controls whether JWT signatures are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is parsed from JWKSEndpointsStr.
	JWKSEndpoints map[string]string `yaml:"-"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOriginsStr string   `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
	AllowedOrigins    []string `yaml:"-"`
}

// RateLimitConfig bounds inbound requests per client address.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"RATE_LIMIT_RPS" env-default:"10"`
	Burst             int     `yaml:"burst" env:"RATE_LIMIT_BURST" env-default:"20"`
}

// Load reads configuration from config.yaml (if present) with environment
// variable overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.parseComplexFields()

	if err := cfg.openSecrets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) parseComplexFields() {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)
	c.CORS.AllowedOrigins = splitList(c.CORS.AllowedOriginsStr)
}

// openSecrets replaces sealed secrets with their plaintext.
func (c *Config) openSecrets() error {
	secrets := map[string]*string{
		"database password": &c.Database.Password,
		"answer api key":    &c.Answer.APIKey,
	}

	var box *crypto.SecretBox
	for name, value := range secrets {
		if !crypto.IsSealed(*value) {
			continue
		}
		if box == nil {
			if c.SecretsKey == "" {
				return fmt.Errorf("%s is sealed but SECRETS_KEY is not set", name)
			}
			var err error
			if box, err = crypto.NewSecretBox(c.SecretsKey); err != nil {
				return err
			}
		}
		plain, err := box.Open(*value)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", name, err)
		}
		*value = plain
	}
	return nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	if err := c.validateTLS(); err != nil {
		return fmt.Errorf("invalid TLS configuration: %w", err)
	}

	switch c.Database.Driver {
	case DriverPostgres, DriverSQLServer, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.PoolMinConns < 0 || c.Database.PoolMaxConns < 1 || c.Database.PoolMinConns > c.Database.PoolMaxConns {
		return fmt.Errorf("invalid pool bounds: min=%d max=%d", c.Database.PoolMinConns, c.Database.PoolMaxConns)
	}

	switch c.Answer.Provider {
	case ProviderWorkflow, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported answer provider %q", c.Answer.Provider)
	}
	if c.Answer.Timeout < minAnswerTimeout || c.Answer.Timeout > maxAnswerTimeout {
		return fmt.Errorf("answer timeout %s out of range [%s, %s]", c.Answer.Timeout, minAnswerTimeout, maxAnswerTimeout)
	}
	if c.Answer.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.Answer.BaseURL); err != nil {
			return fmt.Errorf("invalid answer base_url: %w", err)
		}
	}

	if c.Query.ToleranceRatio < 0 || c.Query.ToleranceRatio >= 1 {
		return fmt.Errorf("tolerance_ratio must be in [0, 1), got %v", c.Query.ToleranceRatio)
	}
	if c.Query.MaxLimit < 1 || c.Query.DefaultLimit < 1 || c.Query.DefaultLimit > c.Query.MaxLimit {
		return fmt.Errorf("invalid query limits: default=%d max=%d", c.Query.DefaultLimit, c.Query.MaxLimit)
	}
	if c.Extractor.Epsilon < 0 {
		return errors.New("extractor epsilon must not be negative")
	}

	if c.Auth.Enabled && c.Auth.EnableVerification && len(c.Auth.JWKSEndpoints) == 0 {
		return errors.New("auth is enabled with verification but no jwks_endpoints are configured")
	}
	return nil
}

// validateTLS ensures cert and key are provided together and exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return errors.New("both tls_cert_path and tls_key_path must be provided together")
	}
	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}
	return nil
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}

// parseJWKSEndpoints parses "issuer1=url1,issuer2=url2" into a map.
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	for _, pair := range splitList(value) {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(jwksURL)
	}
	return endpoints
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ConnectionString returns the DSN for the configured driver.
func (c *DatabaseConfig) ConnectionString() string {
	if c.DSN != "" {
		return c.DSN
	}

	host := resolveHostForDocker(c.Host)
	switch c.Driver {
	case DriverSQLServer:
		u := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(c.User, c.Password),
			Host:     fmt.Sprintf("%s:%d", host, c.Port),
			RawQuery: url.Values{"database": {c.Database}}.Encode(),
		}
		return u.String()
	case DriverSQLite:
		return c.Database
	default:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
		)
	}
}

var (
	inDockerOnce sync.Once
	inDocker     bool
)

// resolveHostForDocker maps localhost to host.docker.internal when the
// process runs in a container, so a store on the host stays reachable.
func resolveHostForDocker(host string) string {
	inDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		inDocker = err == nil
	})
	if inDocker && (host == "localhost" || host == "127.0.0.1") {
		return "host.docker.internal"
	}
	return host
}
