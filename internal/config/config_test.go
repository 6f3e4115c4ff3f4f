package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "defaults",
			env:  map[string]string{"JWT_SECRET": "s"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "8080", cfg.AppPort)
				assert.Equal(t, "mysql", cfg.DBDriver)
				assert.Equal(t, "3306", cfg.DBPort)
				assert.Equal(t, 24*time.Hour, cfg.JWTTTL())
				assert.Equal(t, 5*time.Second, cfg.CardVaultTimeout)
				assert.Equal(t, []string{"127.0.0.1"}, cfg.TrustedProxies)
				assert.False(t, cfg.IsProd)
			},
		},
		{
			name:    "missing jwt secret",
			env:     map[string]string{},
			wantErr: true,
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"JWT_SECRET": "s", "DB_DRIVER": "oracle"},
			wantErr: true,
		},
		{
			name: "postgres dsn",
			env: map[string]string{
				"JWT_SECRET":  "s",
				"DB_DRIVER":   "postgres",
				"DB_USER":     "u",
				"DB_PASSWORD": "p",
				"DB_HOST":     "db",
				"DB_NAME":     "pay",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "5432", cfg.DBPort)
				assert.Equal(t, "host=db port=5432 user=u password=p dbname=pay sslmode=disable", cfg.DSN())
			},
		},
		{
			name: "mysql dsn and overrides",
			env: map[string]string{
				"JWT_SECRET":             "s",
				"DB_USER":                "root",
				"DB_PASSWORD":            "pw",
				"DB_HOST":                "mysql",
				"DB_PORT":                "3307",
				"DB_NAME":                "pay",
				"JWT_EXPIRATION_SECONDS": "60",
				"CARD_VAULT_TIMEOUT":     "250ms",
				"TRUSTED_PROXIES":        "10.0.0.1,10.0.0.2",
				"IS_PROD":                "true",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "root:pw@tcp(mysql:3307)/pay?parseTime=true", cfg.DSN())
				assert.Equal(t, time.Minute, cfg.JWTTTL())
				assert.Equal(t, 250*time.Millisecond, cfg.CardVaultTimeout)
				assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.TrustedProxies)
				assert.True(t, cfg.IsProd)
			},
		},
		{
			name: "explicit dsn wins",
			env:  map[string]string{"JWT_SECRET": "s", "DB_DRIVER": "sqlite", "DATABASE_DSN": "file:test.db"},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "file:test.db", cfg.DSN())
			},
		},
	}

	keys := []string{"APP_PORT", "DB_DRIVER", "DB_USER", "DB_PASSWORD", "DB_HOST", "DB_PORT", "DB_NAME",
		"DATABASE_DSN", "JWT_SECRET", "JWT_EXPIRATION_SECONDS", "REDIS_ADDR", "REDIS_PASS", "REDIS_DB",
		"IS_PROD", "CARD_VAULT_URL", "CARD_VAULT_TIMEOUT", "TRUSTED_PROXIES", "DB_TIMEOUT"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range keys {
				t.Setenv(k, "") // restores the original value on cleanup
				require.NoError(t, os.Unsetenv(k))
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
