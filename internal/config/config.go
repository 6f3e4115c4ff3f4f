package config

import (
	"fmt"  // Error wrapping
	"time" // Durations

	"github.com/caarlos0/env/v11" // Struct tag based env parsing
	"github.com/joho/godotenv"    // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort          string        `env:"APP_PORT" envDefault:"8080"`                     // Application port
	DBDriver         string        `env:"DB_DRIVER" envDefault:"mysql"`                   // mysql, postgres or sqlite
	DBUser           string        `env:"DB_USER"`                                        // Database user
	DBPassword       string        `env:"DB_PASSWORD"`                                    // Database password
	DBHost           string        `env:"DB_HOST" envDefault:"127.0.0.1"`                 // Database host
	DBPort           string        `env:"DB_PORT"`                                        // Database port
	DBName           string        `env:"DB_NAME" envDefault:"p2p_wallet"`                // Database name
	DatabaseDSN      string        `env:"DATABASE_DSN"`                                   // Full DSN, overrides the DB_* parts
	JWTSecret        string        `env:"JWT_SECRET,required,notEmpty"`                 // JWT secret key
	JWTExpiration    int           `env:"JWT_EXPIRATION_SECONDS" envDefault:"86400"`      // Token lifetime in seconds
	RedisAddr        string        `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`         // Redis server address
	RedisPass        string        `env:"REDIS_PASS"`                                     // Redis password
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`                        // Redis database number
	IsProd           bool          `env:"IS_PROD" envDefault:"false"`                     // Is production environment
	CardVaultURL     string        `env:"CARD_VAULT_URL"`                                 // External card vault, empty disables it
	CardVaultTimeout time.Duration `env:"CARD_VAULT_TIMEOUT" envDefault:"5s"`             // Per call timeout towards the vault
	TrustedProxies   []string      `env:"TRUSTED_PROXIES" envDefault:"127.0.0.1" envSeparator:","`
	DBTimeout        time.Duration `env:"DB_TIMEOUT" envDefault:"10s"`                    // Upper bound for a single request's DB work
}

// LoadConfig loads configuration from the environment, reading .env first if present
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // Load .env file if present
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBPort == "" {
		cfg.DBPort = defaultPort(cfg.DBDriver)
	}
	switch cfg.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	return cfg, nil
}

// JWTTTL returns the token lifetime
func (c *Config) JWTTTL() time.Duration {
	return time.Duration(c.JWTExpiration) * time.Second
}

// DSN builds the data source name for the configured driver
func (c *Config) DSN() string {
	if c.DatabaseDSN != "" {
		return c.DatabaseDSN
	}
	switch c.DBDriver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
	case "sqlite":
		return c.DBName + ".db"
	default:
		return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
	}
}

func defaultPort(driver string) string {
	switch driver {
	case "postgres":
		return "5432"
	case "mysql":
		return "3306"
	}
	return ""
}
