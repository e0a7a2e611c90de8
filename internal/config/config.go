package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Reset     ResetConfig
	Security  SecurityConfig
	CORS      CORSConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	AMQP      AMQPConfig
	NATS      NATSConfig
	Janitor   JanitorConfig
}

type ServerConfig struct {
	Port    string `env:"PORT" envDefault:"8080"`
	GinMode string `env:"GIN_MODE" envDefault:"debug"`
	AppEnv  string `env:"APP_ENV" envDefault:"local"`
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"3306"`
	User     string `env:"DB_USER" envDefault:"root"`
	Password string `env:"DB_PASSWORD"`
	Database string `env:"DB_NAME" envDefault:"iot_measurements"`
}

type JWTConfig struct {
	AccessSecret       string        `env:"JWT_ACCESS_SECRET" envDefault:"your-access-secret-key"`
	Issuer             string        `env:"JWT_ISSUER" envDefault:"iot-measurement-backend"`
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
}

// ResetConfig controls password reset tokens and the link mailed to the user.
type ResetConfig struct {
	TokenExpiry time.Duration `env:"RESET_TOKEN_EXPIRY" envDefault:"15m"`
	URLBase     string        `env:"RESET_URL_BASE" envDefault:"http://localhost:5173/reset-password"`
}

type SecurityConfig struct {
	BcryptCost            int  `env:"BCRYPT_COST" envDefault:"12"`
	RefreshReuseDetection bool `env:"REFRESH_REUSE_DETECTION" envDefault:"true"`
	CookieSecure          bool `env:"COOKIE_SECURE" envDefault:"false"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://localhost:5173"`
}

// RedisConfig is optional; an empty address disables rate limiting.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type RateLimitConfig struct {
	Enabled      bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Prefix       string        `env:"RATE_LIMIT_PREFIX" envDefault:"rl"`
	Window       time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
	LoginMax     int           `env:"RATE_LIMIT_LOGIN" envDefault:"10"`
	RefreshMax   int           `env:"RATE_LIMIT_REFRESH" envDefault:"30"`
	ForgotPwdMax int           `env:"RATE_LIMIT_FORGOT_PASSWORD" envDefault:"5"`
}

// AMQPConfig is optional; an empty URL makes the service log reset mails instead of queueing them.
type AMQPConfig struct {
	URL       string `env:"AMQP_URL"`
	MailQueue string `env:"MAIL_QUEUE" envDefault:"mail.outbox"`
}

type NATSConfig struct {
	URL          string `env:"NATS_URL"`
	AuditSubject string `env:"NATS_AUDIT_SUBJECT" envDefault:"audit.security"`
}

type JanitorConfig struct {
	Interval time.Duration `env:"TOKEN_JANITOR_INTERVAL" envDefault:"1h"`
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// placeholderAccessSecret is the development default of JWT_ACCESS_SECRET.
const placeholderAccessSecret = "your-access-secret-key"

func (c *Config) Validate() error {
	if c.JWT.AccessSecret == "" {
		return errors.New("JWT_ACCESS_SECRET must not be empty")
	}
	if c.IsRelease() && c.JWT.AccessSecret == placeholderAccessSecret {
		return errors.New("JWT_ACCESS_SECRET must be set in release mode")
	}
	if c.JWT.AccessTokenExpiry <= 0 || c.JWT.RefreshTokenExpiry <= 0 {
		return errors.New("token expiries must be positive")
	}
	if c.Reset.TokenExpiry <= 0 {
		return errors.New("RESET_TOKEN_EXPIRY must be positive")
	}
	if c.Janitor.Interval < 0 {
		return errors.New("TOKEN_JANITOR_INTERVAL must not be negative")
	}
	return nil
}

func (c *Config) IsRelease() bool {
	return c.Server.GinMode == "release"
}
