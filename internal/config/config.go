package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration required by the dialer process.
// All values come from env (or an env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig    `envPrefix:"APP_"`
	DB     DBConfig     `envPrefix:"DB_"`
	Redis  RedisConfig  `envPrefix:"REDIS_"`
	ARI    ARIConfig    `envPrefix:"ARI_"`
	Dialer DialerConfig `envPrefix:"DIALER_"`
	AMQP   AMQPConfig   `envPrefix:"AMQP_"`
}

type AppConfig struct {
	Env      string `env:"ENV"`
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL"`
}

type DBConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	Name     string `env:"NAME"`

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string `env:"SSLMODE"`
}

// RedisConfig is optional; an empty host disables cross-process pacing locks.
type RedisConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"6379"`
	Password string `env:"PASSWORD"`
}

type ARIConfig struct {
	URL            string        `env:"URL"`
	Username       string        `env:"USERNAME"`
	Password       string        `env:"PASSWORD"`
	App            string        `env:"APP" envDefault:"outbound-dialer"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
}

type DialerConfig struct {
	OutboundContext string        `env:"OUTBOUND_CONTEXT" envDefault:"from-internal"`
	AgentContext    string        `env:"AGENT_CONTEXT" envDefault:"from-internal"`
	QueueContext    string        `env:"QUEUE_CONTEXT" envDefault:"ext-queues"`
	IVRContext      string        `env:"IVR_CONTEXT" envDefault:"ivr"`
	PacerInterval   time.Duration `env:"PACER_INTERVAL" envDefault:"1m"`
	EventWorkers    int           `env:"EVENT_WORKERS" envDefault:"8"`
	EventSource     string        `env:"EVENT_SOURCE" envDefault:"websocket"`
	PollInterval    time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
}

// AMQPConfig is optional; an empty URL disables outcome publishing.
type AMQPConfig struct {
	URL      string `env:"URL"`
	Exchange string `env:"EXCHANGE" envDefault:"dialer.outcomes"`
}

const (
	EventSourceWebSocket = "websocket"
	EventSourcePolling   = "polling"
)

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills env-dependent defaults.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if !isValidPort(c.App.Port) {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if !isValidPort(c.DB.Port) {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host != "" && !isValidPort(c.Redis.Port) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.ARI.URL == "" {
		errs = append(errs, errors.New("ARI_URL is required"))
	} else if u, err := url.Parse(c.ARI.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Errorf("ARI_URL must be an http(s) URL, got %q", c.ARI.URL))
	}
	if c.ARI.Username == "" {
		errs = append(errs, errors.New("ARI_USERNAME is required"))
	}
	if c.ARI.App == "" {
		errs = append(errs, errors.New("ARI_APP is required"))
	}
	if c.ARI.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("ARI_REQUEST_TIMEOUT must be > 0, got %s", c.ARI.RequestTimeout))
	}

	if c.Dialer.OutboundContext == "" {
		errs = append(errs, errors.New("DIALER_OUTBOUND_CONTEXT is required"))
	}
	if c.Dialer.PacerInterval <= 0 {
		errs = append(errs, fmt.Errorf("DIALER_PACER_INTERVAL must be > 0, got %s", c.Dialer.PacerInterval))
	}
	if c.Dialer.EventWorkers <= 0 {
		errs = append(errs, fmt.Errorf("DIALER_EVENT_WORKERS must be > 0, got %d", c.Dialer.EventWorkers))
	}
	switch c.Dialer.EventSource {
	case EventSourceWebSocket:
	case EventSourcePolling:
		if c.Dialer.PollInterval <= 0 {
			errs = append(errs, fmt.Errorf("DIALER_POLL_INTERVAL must be > 0, got %s", c.Dialer.PollInterval))
		}
	default:
		errs = append(errs, fmt.Errorf("DIALER_EVENT_SOURCE must be websocket or polling, got %q", c.Dialer.EventSource))
	}

	if c.AMQP.URL != "" && c.AMQP.Exchange == "" {
		errs = append(errs, errors.New("AMQP_EXCHANGE is required when AMQP_URL is set"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisEnabled() bool { return c.Redis.Host != "" }

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c Config) AMQPEnabled() bool { return c.AMQP.URL != "" }

func isValidPort(p int) bool { return p > 0 && p <= 65535 }

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
