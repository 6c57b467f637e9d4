package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

const devSessionSecret = "gamestore-dev-session-secret"

type Config struct {
	ServerPort int    `env:"PORT,default=8032"`
	Env        string `env:"GAMESTORE_ENV,default=development"`

	DBHost      string `env:"GAMESTORE_DB_HOST,default=localhost"`
	DBPort      string `env:"GAMESTORE_DB_PORT,default=5432"`
	DBName      string `env:"GAMESTORE_DB_DATABASE,default=gamestore"`
	DBUser      string `env:"GAMESTORE_DB_USERNAME,default=root"`
	DBPassword  string `env:"GAMESTORE_DB_PASSWORD,default=root"`
	DBSSLMode   string `env:"GAMESTORE_DB_SSLMODE,default=disable"`
	AutoMigrate bool   `env:"AUTO_MIGRATE,default=true"`

	RedisHost     string `env:"GAMESTORE_REDIS_HOST,default=localhost"`
	RedisPort     string `env:"GAMESTORE_REDIS_PORT,default=6379"`
	RedisPassword string `env:"GAMESTORE_REDIS_PASSWORD"`
	RedisDB       int    `env:"GAMESTORE_REDIS_DB,default=0"`

	SessionSecret       string        `env:"SESSION_SECRET"`
	SessionTTL          time.Duration `env:"SESSION_TTL,default=24h"`
	SessionCookieSecure bool          `env:"SESSION_COOKIE_SECURE,default=false"`

	LoginRatePerSec float64 `env:"LOGIN_RATE_PER_SEC,default=1"`
	LoginBurst      int     `env:"LOGIN_BURST,default=5"`

	CartSweepSchedule string `env:"CART_SWEEP_SCHEDULE,default=@every 1h"`

	KafkaBrokers       string `env:"KAFKA_BROKERS"`
	KafkaPurchaseTopic string `env:"KAFKA_PURCHASE_TOPIC,default=purchase-events"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: could not load .env file, using process environment")
	}

	config := &Config{}
	if err := envdecode.Decode(config); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	if config.SessionSecret == "" && !config.IsProduction() {
		config.SessionSecret = devSessionSecret
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid PORT %d", c.ServerPort)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be a positive duration")
	}
	if len(c.SessionSecret) < 16 {
		return fmt.Errorf("SESSION_SECRET must be at least 16 characters")
	}
	if c.LoginRatePerSec <= 0 || c.LoginBurst <= 0 {
		return fmt.Errorf("LOGIN_RATE_PER_SEC and LOGIN_BURST must be positive")
	}
	return nil
}

// DBDataSourceName is the lib/pq connection URL.
func (c *Config) DBDataSourceName() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     c.DBHost + ":" + c.DBPort,
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(c.DBSSLMode),
	}
	return u.String()
}

// CartSweepEnabled is false when CART_SWEEP_SCHEDULE is set to "off".
func (c *Config) CartSweepEnabled() bool {
	s := strings.TrimSpace(c.CartSweepSchedule)
	return s != "" && !strings.EqualFold(s, "off")
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
