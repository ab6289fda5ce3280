package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MinSecretLength is the minimum byte length for token signing secrets.
const MinSecretLength = 32

type Config struct {
	Env  string `yaml:"env"`
	Port string `yaml:"port"`

	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"database_dsn"`

	AccessTokenSecret    string        `yaml:"access_token_secret"`
	RefreshTokenSecret   string        `yaml:"refresh_token_secret"`
	AccessTokenTTL       time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL      time.Duration `yaml:"refresh_token_ttl"`
	ResetTokenTTL        time.Duration `yaml:"reset_token_ttl"`
	VerificationTokenTTL time.Duration `yaml:"verification_token_ttl"`
	TokenCleanupInterval time.Duration `yaml:"token_cleanup_interval"`

	DefaultServiceChargePct float64 `yaml:"default_service_charge_pct"`
	DefaultTaxRate          float64 `yaml:"default_tax_rate"`

	FrontendURL string   `yaml:"frontend_url"`
	CORSOrigins []string `yaml:"cors_origins"`

	RedisAddr      string        `yaml:"redis_addr"`
	RedisPassword  string        `yaml:"redis_password"`
	AuthRateLimit  int           `yaml:"auth_rate_limit"`
	AuthRateWindow time.Duration `yaml:"auth_rate_window"`
	RabbitMQURL    string        `yaml:"rabbitmq_url"`
	OrderExchange  string        `yaml:"order_exchange"`
	UploadDir      string        `yaml:"upload_dir"`
	Mail           MailConfig    `yaml:"mail"`
	S3             S3Config      `yaml:"s3"`
}

type MailConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

// Enabled reports whether SMTP delivery is configured.
func (m MailConfig) Enabled() bool { return m.Host != "" && m.Username != "" }

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Key       string `yaml:"key"`
	Secret    string `yaml:"secret"`
	Endpoint  string `yaml:"endpoint"`
	PublicURL string `yaml:"public_url"`
}

func (s S3Config) Enabled() bool { return s.Bucket != "" }

// Default returns the configuration used when nothing is set.
// Token secrets have no default and must be provided.
func Default() *Config {
	return &Config{
		Env:                     "development",
		Port:                    "8080",
		DBDriver:                "sqlite",
		DBDSN:                   "thaitable.db",
		AccessTokenTTL:          24 * time.Hour,
		RefreshTokenTTL:         7 * 24 * time.Hour,
		ResetTokenTTL:           time.Hour,
		VerificationTokenTTL:    24 * time.Hour,
		TokenCleanupInterval:    time.Hour,
		DefaultServiceChargePct: 10,
		DefaultTaxRate:          7,
		FrontendURL:             "http://localhost:5173",
		CORSOrigins:             []string{"*"},
		AuthRateLimit:           10,
		AuthRateWindow:          time.Minute,
		OrderExchange:           "thaitable.orders",
		UploadDir:               "uploads",
		Mail: MailConfig{
			Port:     "587",
			From:     "no-reply@thaitable.app",
			FromName: "ThaiTable",
		},
		S3: S3Config{Region: "ap-southeast-1"},
	}
}

// Load reads the optional YAML file at path, applies environment overrides
// and validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Env = getEnv("APP_ENV", c.Env)
	c.Port = getEnv("PORT", c.Port)
	c.DBDriver = strings.ToLower(getEnv("DB_DRIVER", c.DBDriver))
	c.DBDSN = getEnvFromFile("DATABASE_DSN_FILE", "DATABASE_DSN", c.DBDSN)
	c.AccessTokenSecret = getEnvFromFile("ACCESS_TOKEN_SECRET_FILE", "ACCESS_TOKEN_SECRET", c.AccessTokenSecret)
	c.RefreshTokenSecret = getEnvFromFile("REFRESH_TOKEN_SECRET_FILE", "REFRESH_TOKEN_SECRET", c.RefreshTokenSecret)
	c.FrontendURL = getEnv("FRONTEND_URL", c.FrontendURL)
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = strings.Split(v, ",")
	}
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnvFromFile("REDIS_PASSWORD_FILE", "REDIS_PASSWORD", c.RedisPassword)
	c.RabbitMQURL = getEnvFromFile("RABBITMQ_URL_FILE", "RABBITMQ_URL", c.RabbitMQURL)
	c.OrderExchange = getEnv("ORDER_EXCHANGE", c.OrderExchange)
	c.UploadDir = getEnv("UPLOAD_DIR", c.UploadDir)

	c.Mail.Host = getEnv("MAIL_HOST", c.Mail.Host)
	c.Mail.Port = getEnv("MAIL_PORT", c.Mail.Port)
	c.Mail.Username = getEnv("MAIL_USERNAME", c.Mail.Username)
	c.Mail.Password = getEnvFromFile("MAIL_PASSWORD_FILE", "MAIL_PASSWORD", c.Mail.Password)
	c.Mail.From = getEnv("MAIL_FROM", c.Mail.From)
	c.Mail.FromName = getEnv("MAIL_FROM_NAME", c.Mail.FromName)

	c.S3.Bucket = getEnv("S3_BUCKET", c.S3.Bucket)
	c.S3.Region = getEnv("S3_REGION", c.S3.Region)
	c.S3.Key = getEnv("S3_KEY", c.S3.Key)
	c.S3.Secret = getEnvFromFile("S3_SECRET_FILE", "S3_SECRET", c.S3.Secret)
	c.S3.Endpoint = getEnv("S3_ENDPOINT", c.S3.Endpoint)
	c.S3.PublicURL = getEnv("S3_URL", c.S3.PublicURL)

	var err error
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", &c.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", &c.RefreshTokenTTL},
		{"RESET_TOKEN_TTL", &c.ResetTokenTTL},
		{"VERIFICATION_TOKEN_TTL", &c.VerificationTokenTTL},
		{"TOKEN_CLEANUP_INTERVAL", &c.TokenCleanupInterval},
		{"AUTH_RATE_WINDOW", &c.AuthRateWindow},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(d.key, *d.dst); err != nil {
			return err
		}
	}
	if c.DefaultServiceChargePct, err = getFloat("DEFAULT_SERVICE_CHARGE_PCT", c.DefaultServiceChargePct); err != nil {
		return err
	}
	if c.DefaultTaxRate, err = getFloat("DEFAULT_TAX_RATE", c.DefaultTaxRate); err != nil {
		return err
	}
	if v := os.Getenv("AUTH_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: AUTH_RATE_LIMIT: %w", err)
		}
		c.AuthRateLimit = n
	}
	return nil
}

// Validate checks the invariants the services rely on.
func (c *Config) Validate() error {
	var errs []error
	if len(c.AccessTokenSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_SECRET must be at least %d bytes", MinSecretLength))
	}
	if len(c.RefreshTokenSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("REFRESH_TOKEN_SECRET must be at least %d bytes", MinSecretLength))
	}
	if c.AccessTokenSecret != "" && c.AccessTokenSecret == c.RefreshTokenSecret {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	switch c.DBDriver {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q (supported: sqlite, postgres, mysql)", c.DBDriver))
	}
	if c.DefaultServiceChargePct < 0 || c.DefaultServiceChargePct > 20 {
		errs = append(errs, errors.New("DEFAULT_SERVICE_CHARGE_PCT must be between 0 and 20"))
	}
	if c.DefaultTaxRate < 0 || c.DefaultTaxRate > 20 {
		errs = append(errs, errors.New("DEFAULT_TAX_RATE must be between 0 and 20"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvFromFile prefers the file named by fileKey (Docker/K8s secrets).
func getEnvFromFile(fileKey, envKey, fallback string) string {
	if path := os.Getenv(fileKey); path != "" {
		if content, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return getEnv(envKey, fallback)
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return f, nil
}
