package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"equiprent/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig          `yaml:"app"`
	Database   DatabaseConfig     `yaml:"database"`
	Redis      RedisConfig        `yaml:"redis"`
	Cache      CacheConfig        `yaml:"cache"`
	Monitoring MonitoringConfig   `yaml:"monitoring"`
	Tracing    TracingConfig      `yaml:"tracing"`
	Logging    LoggingConfig      `yaml:"logging"`
	API        APIConfig          `yaml:"api"`
	Events     EventsConfig       `yaml:"events"`
	Equipment  []models.Equipment `yaml:"equipment"`
}

type APIConfig struct {
	HTTP        APIHTTPConfig        `yaml:"http"`
	Auth        APIAuthConfig        `yaml:"auth"`
	RateLimit   APIRateLimitConfig   `yaml:"rate_limit"`
	Actor       ActorConfig          `yaml:"actor"`
	Idempotency APIIdempotencyConfig `yaml:"idempotency"`
}

type APIHTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// APIAuthConfig guards the API with client keys, as issued to integrating frontends.
type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// ActorConfig selects how the caller identity is resolved: "jwt" or "header".
type ActorConfig struct {
	Mode         string   `yaml:"mode"`
	JWTSecret    string   `yaml:"jwt_secret"`
	JWTIssuer    string   `yaml:"jwt_issuer"`
	HeaderID     string   `yaml:"header_id"`
	HeaderRoles  string   `yaml:"header_roles"`
	DefaultRoles []string `yaml:"default_roles"`
}

type APIIdempotencyConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	Path     string         `yaml:"path"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConnections int    `yaml:"max_connections"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type CacheConfig struct {
	ActiveSetTTL time.Duration `yaml:"active_set_ttl"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type TracingConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
	Caller   bool   `yaml:"caller"`
}

type EventsConfig struct {
	AMQP  AMQPConfig  `yaml:"amqp"`
	Audit AuditConfig `yaml:"audit"`
}

type AMQPConfig struct {
	URL          string        `yaml:"url"`
	Exchange     string        `yaml:"exchange"`
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

type AuditConfig struct {
	MongoURI   string `yaml:"mongo_uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// ${VAR} references are resolved before parsing
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case "postgres":
		if c.Database.Postgres.DSN == "" {
			return errors.New("database.postgres.dsn is required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.API.Actor.Mode {
	case "jwt":
		if c.API.Actor.JWTSecret == "" {
			return errors.New("api.actor.jwt_secret is required in jwt mode")
		}
	case "header":
	default:
		return fmt.Errorf("unknown actor mode %q", c.API.Actor.Mode)
	}

	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api.auth is enabled but no api_keys are configured")
	}

	return ValidateEquipment(c.Equipment)
}

func ValidateEquipment(items []models.Equipment) error {
	ids := make(map[string]bool)
	for i := range items {
		if err := items[i].Validate(); err != nil {
			return err
		}
		if ids[items[i].ID] {
			return fmt.Errorf("duplicate equipment ID found: %s", items[i].ID)
		}
		ids[items[i].ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "equiprent"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Postgres.MaxConnections == 0 {
		c.Database.Postgres.MaxConnections = 10
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeout == 0 {
		c.API.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.API.HTTP.WriteTimeout == 0 {
		c.API.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.API.HTTP.ShutdownTimeout == 0 {
		c.API.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.Actor.Mode == "" {
		c.API.Actor.Mode = "jwt"
	}
	if c.API.Actor.HeaderID == "" {
		c.API.Actor.HeaderID = "x-actor-id"
	}
	if c.API.Actor.HeaderRoles == "" {
		c.API.Actor.HeaderRoles = "x-actor-roles"
	}
	if len(c.API.Actor.DefaultRoles) == 0 {
		c.API.Actor.DefaultRoles = []string{string(models.RoleRenter)}
	}
	if c.API.Idempotency.TTL == 0 {
		c.API.Idempotency.TTL = models.DefaultIdempotencyTTL
	}
	if c.Cache.ActiveSetTTL == 0 {
		c.Cache.ActiveSetTTL = models.DefaultActiveCacheTTL
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.App.Name
	}
	if c.Events.AMQP.Exchange == "" {
		c.Events.AMQP.Exchange = "equiprent.events"
	}
	if c.Events.AMQP.MaxRetries == 0 {
		c.Events.AMQP.MaxRetries = 3
	}
	if c.Events.AMQP.InitialDelay == 0 {
		c.Events.AMQP.InitialDelay = 200 * time.Millisecond
	}
	if c.Events.Audit.Database == "" {
		c.Events.Audit.Database = "equiprent"
	}
	if c.Events.Audit.Collection == "" {
		c.Events.Audit.Collection = "booking_audit"
	}
}
