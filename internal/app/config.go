package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Session store kinds accepted by SESSION_STORE.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// Config holds runtime configuration for the console and the sandbox.
type Config struct {
	AppEnv string `envconfig:"APP_ENV" default:"development"`

	APIURL         string        `envconfig:"ERP_API_URL" default:"http://localhost:3001"`
	APITimeout     time.Duration `envconfig:"ERP_API_TIMEOUT" default:"10s"`
	SearchDebounce time.Duration `envconfig:"ERP_SEARCH_DEBOUNCE" default:"500ms"`
	PageSize       int           `envconfig:"ERP_PAGE_SIZE" default:"10"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	SessionStore     string `envconfig:"SESSION_STORE" default:"file"`
	SessionFile      string `envconfig:"SESSION_FILE"`
	SessionKeyPrefix string `envconfig:"SESSION_KEY_PREFIX" default:"erp-console"`
	RedisAddr        string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	MetricsAddr string `envconfig:"METRICS_ADDR"`

	SandboxAddr     string `envconfig:"SANDBOX_ADDR" default:":3001"`
	SandboxUser     string `envconfig:"SANDBOX_USER" default:"admin"`
	SandboxPassword string `envconfig:"SANDBOX_PASSWORD" default:"admin123"`
	SandboxSeed     string `envconfig:"SANDBOX_SEED"`
	SandboxRate     int    `envconfig:"SANDBOX_LOGIN_RATE" default:"20"`
}

// LoadConfig reads configuration from environment variables. A .env file in
// the working directory is honoured when present.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.SessionFile == "" {
		cfg.SessionFile = defaultSessionFile()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants LoadConfig relies on.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: ERP_API_URL %q must be an absolute URL", c.APIURL)
	}
	if c.APITimeout <= 0 {
		return errors.New("config: ERP_API_TIMEOUT must be positive")
	}
	if c.SearchDebounce <= 0 {
		return errors.New("config: ERP_SEARCH_DEBOUNCE must be positive")
	}
	if c.PageSize < 1 || c.PageSize > 100 {
		return fmt.Errorf("config: ERP_PAGE_SIZE %d out of range [1,100]", c.PageSize)
	}
	switch strings.ToLower(c.SessionStore) {
	case StoreFile, StoreRedis:
	default:
		return fmt.Errorf("config: SESSION_STORE %q must be %q or %q", c.SessionStore, StoreFile, StoreRedis)
	}
	if c.SandboxRate < 0 {
		return errors.New("config: SANDBOX_LOGIN_RATE must not be negative")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "erp-console", "session.json")
}
