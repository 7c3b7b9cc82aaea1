package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"equiprent/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("EQUIPRENT_JWT_SECRET", "s3cret")

	yamlContent := `
database:
  path: "test.db"
api:
  actor:
    jwt_secret: "${EQUIPRENT_JWT_SECRET}"
cache:
  active_set_ttl: 5s
equipment:
  - id: tractor-1
    owner_id: farmer-1
    name: Tractor
    hourly_rate: 100
    daily_rate: 600
    is_active: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.API.Actor.JWTSecret)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "jwt", cfg.API.Actor.Mode)
	assert.Equal(t, 5*time.Second, cfg.Cache.ActiveSetTTL)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, models.DefaultIdempotencyTTL, cfg.API.Idempotency.TTL)
	require.Len(t, cfg.Equipment, 1)
	assert.Equal(t, models.Money(600), cfg.Equipment[0].DailyRate)
	assert.True(t, cfg.Equipment[0].IsActive)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{Database: DatabaseConfig{Path: "path"}, API: APIConfig{Actor: ActorConfig{Mode: "header"}}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "oracle" }, wantErr: true},
		{name: "jwt without secret", mutate: func(c *Config) { c.API.Actor.Mode = "jwt" }, wantErr: true},
		{name: "auth without keys", mutate: func(c *Config) { c.API.Auth.Enabled = true }, wantErr: true},
		{
			name: "duplicate equipment id",
			mutate: func(c *Config) {
				c.Equipment = []models.Equipment{
					{ID: "e1", OwnerID: "o1"},
					{ID: "e1", OwnerID: "o2"},
				}
			},
			wantErr: true,
		},
		{
			name: "negative rate",
			mutate: func(c *Config) {
				c.Equipment = []models.Equipment{{ID: "e1", OwnerID: "o1", HourlyRate: -5}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
