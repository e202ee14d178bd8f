package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/portal/internal/kv"
	"github.com/dropDatabas3/portal/internal/observability/logger"
	"github.com/dropDatabas3/portal/internal/security/secretbox"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// EnvPrefix antecede a todas las variables de entorno que pisan el YAML.
const EnvPrefix = "PORTAL_"

// DefaultStoragePath es el archivo de sesión del driver file.
const DefaultStoragePath = "~/.config/portal/session.json"

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
		// dev | prod | silent; vacío sigue a app.env
		Format string `yaml:"format"`
	} `yaml:"log"`

	API struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"api"`

	Storage struct {
		// file | memory | redis | postgres | none
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		Prefix string `yaml:"prefix"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"` // admite "enc:..." (secretbox)
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
		Postgres struct {
			DSN   string `yaml:"dsn"` // admite "enc:..." (secretbox)
			Table string `yaml:"table"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Session struct {
		StorageKey       string `yaml:"storage_key"`
		RefreshInterval  string `yaml:"refresh_interval"`
		RefreshLookahead string `yaml:"refresh_lookahead"`
		SyncInterval     string `yaml:"sync_interval"`
		LoginPath        string `yaml:"login_path"`
		DashboardPath    string `yaml:"dashboard_path"`
		ReturnParam      string `yaml:"return_param"`
	} `yaml:"session"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

// Load lee el YAML en path. Un path vacío o inexistente arranca de defaults;
// en ambos casos se aplican env overrides y Validate.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := c.resolve(path); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default devuelve la configuración sin YAML ni entorno.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = "http://localhost:8000/api"
	}
	if c.API.Timeout == "" {
		c.API.Timeout = "15s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Storage.Redis.Addr == "" {
		c.Storage.Redis.Addr = "localhost:6379"
	}
	if c.Session.StorageKey == "" {
		c.Session.StorageKey = "auth-storage"
	}
	if c.Session.RefreshInterval == "" {
		c.Session.RefreshInterval = "5m"
	}
	if c.Session.RefreshLookahead == "" {
		c.Session.RefreshLookahead = "30m"
	}
	if c.Session.SyncInterval == "" {
		c.Session.SyncInterval = "5m"
	}
	if c.Session.LoginPath == "" {
		c.Session.LoginPath = "/login"
	}
	if c.Session.DashboardPath == "" {
		c.Session.DashboardPath = "/dashboard"
	}
	if c.Session.ReturnParam == "" {
		c.Session.ReturnParam = "redirect"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8787"
	}
}

// applyEnvOverrides: pisa el YAML con PORTAL_* y fuerza JSON en prod.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("LOG_FORMAT"); ok {
		c.Log.Format = v
	}

	if v, ok := getEnvStr("API_BASE_URL"); ok {
		c.API.BaseURL = v
	}
	if v, ok := getEnvStr("API_TIMEOUT"); ok {
		c.API.Timeout = v
	}

	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("STORAGE_PATH"); ok {
		c.Storage.Path = v
	}
	if v, ok := getEnvStr("STORAGE_PREFIX"); ok {
		c.Storage.Prefix = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Storage.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Storage.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Storage.Redis.DB = v
	}
	if v, ok := getEnvStr("POSTGRES_DSN"); ok {
		c.Storage.Postgres.DSN = v
	}
	if v, ok := getEnvStr("POSTGRES_TABLE"); ok {
		c.Storage.Postgres.Table = v
	}

	if v, ok := getEnvStr("SESSION_STORAGE_KEY"); ok {
		c.Session.StorageKey = v
	}
	if v, ok := getEnvStr("SESSION_REFRESH_INTERVAL"); ok {
		c.Session.RefreshInterval = v
	}
	if v, ok := getEnvStr("SESSION_REFRESH_LOOKAHEAD"); ok {
		c.Session.RefreshLookahead = v
	}
	if v, ok := getEnvStr("SESSION_SYNC_INTERVAL"); ok {
		c.Session.SyncInterval = v
	}

	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	if strings.EqualFold(c.App.Env, "prod") && c.Log.Format == "dev" {
		c.Log.Format = "prod"
	}
}

// Validate chequea URLs, duraciones y driver.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: api.base_url must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}
	for name, v := range map[string]string{
		"api.timeout":               c.API.Timeout,
		"session.refresh_interval":  c.Session.RefreshInterval,
		"session.refresh_lookahead": c.Session.RefreshLookahead,
		"session.sync_interval":     c.Session.SyncInterval,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", name)
		}
	}
	switch c.Storage.Driver {
	case "file", "memory", "redis", "postgres", "none":
	default:
		return fmt.Errorf("config: unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && strings.TrimSpace(c.Storage.Postgres.DSN) == "" {
		return errors.New("config: storage.postgres.dsn is required for the postgres driver")
	}
	if !strings.HasPrefix(c.Session.LoginPath, "/") || !strings.HasPrefix(c.Session.DashboardPath, "/") {
		return errors.New("config: session paths must start with /")
	}
	return nil
}

// resolve expande "~", ubica paths relativos junto al YAML y abre los
// secretos "enc:".
func (c *Config) resolve(path string) error {
	p, err := homedir.Expand(c.Storage.Path)
	if err != nil {
		return fmt.Errorf("config: storage.path: %w", err)
	}
	if !filepath.IsAbs(p) && path != "" {
		p = filepath.Join(filepath.Dir(path), p)
	}
	c.Storage.Path = filepath.Clean(p)

	if c.Storage.Redis.Password, err = secretbox.Reveal(c.Storage.Redis.Password); err != nil {
		return fmt.Errorf("config: storage.redis.password: %w", err)
	}
	if c.Storage.Postgres.DSN, err = secretbox.Reveal(c.Storage.Postgres.DSN); err != nil {
		return fmt.Errorf("config: storage.postgres.dsn: %w", err)
	}
	return nil
}

// APITimeout, RefreshInterval, RefreshLookahead y SyncInterval ya pasaron Validate.
func (c *Config) APITimeout() time.Duration       { return mustDur(c.API.Timeout) }
func (c *Config) RefreshInterval() time.Duration  { return mustDur(c.Session.RefreshInterval) }
func (c *Config) RefreshLookahead() time.Duration { return mustDur(c.Session.RefreshLookahead) }
func (c *Config) SyncInterval() time.Duration     { return mustDur(c.Session.SyncInterval) }

// KV traduce la sección storage a la config del paquete kv.
func (c *Config) KV() kv.Config {
	return kv.Config{
		Driver:        c.Storage.Driver,
		Path:          c.Storage.Path,
		RedisAddr:     c.Storage.Redis.Addr,
		RedisPassword: c.Storage.Redis.Password,
		RedisDB:       c.Storage.Redis.DB,
		PostgresDSN:   c.Storage.Postgres.DSN,
		PostgresTable: c.Storage.Postgres.Table,
		Prefix:        c.Storage.Prefix,
	}
}

// Logger arma la config del logger; log.format vacío sigue a app.env.
func (c *Config) Logger(version string) logger.Config {
	env := c.Log.Format
	if env == "" {
		env = "dev"
		if strings.EqualFold(c.App.Env, "prod") {
			env = "prod"
		}
	}
	return logger.Config{Env: env, Level: c.Log.Level, ServiceName: "portal", Version: version}
}

func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
