package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. SVCBOOT_PORT or
// SVCBOOT_HTTPS_PORT.
const EnvPrefix = "SVCBOOT"

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	// DefaultBodyLimitMB is the request body ceiling when none is configured.
	DefaultBodyLimitMB = 50
)

// Persistence drivers.
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// HTTPSConfig enables the TLS listener. A nil *HTTPSConfig means HTTPS is off.
type HTTPSConfig struct {
	// Port is optional; when zero the TLS listener takes the main port.
	Port int `mapstructure:"port"`
	// PFX is the PKCS#12 bundle path, relative to the install base directory,
	// or an s3://bucket/key reference served from object storage.
	PFX        string `mapstructure:"pfx"`
	Passphrase string `mapstructure:"passphrase"`
	// URL is derived by Normalize when empty.
	URL string `mapstructure:"url"`
}

// DatabaseConfig holds PostgreSQL database connection settings.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               string `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	Name               string `mapstructure:"name"`
	SSLMode            string `mapstructure:"sslmode"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSec int    `mapstructure:"conn_max_lifetime_sec"`
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI               string `mapstructure:"uri"`
	Database          string `mapstructure:"database"`
	MaxPoolSize       uint64 `mapstructure:"max_pool_size"`
	ConnectTimeoutSec int    `mapstructure:"connect_timeout_sec"`
}

// PersistenceConfig selects the document store. An empty Driver skips
// persistence entirely.
type PersistenceConfig struct {
	Driver      string         `mapstructure:"driver"`
	Collections []string       `mapstructure:"collections"`
	Mongo       MongoConfig    `mapstructure:"mongo"`
	Postgres    DatabaseConfig `mapstructure:"postgres"`
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Config is the service configuration. Fields documented as derived are
// filled by Normalize when left empty.
type Config struct {
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	// Port disables the web listeners when zero.
	Port  int          `mapstructure:"port"`
	HTTPS *HTTPSConfig `mapstructure:"https"`
	// CORS lists the allowed origins; "*" allows any origin.
	CORS []string `mapstructure:"cors"`

	// Derived.
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"`
	Log     string `mapstructure:"log"`

	BodyLimitMB int               `mapstructure:"body_limit_mb"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	MinIO       MinIOConfig       `mapstructure:"minio"`
	Tracing     TracingConfig     `mapstructure:"tracing"`

	sources []string
}

// Load reads configuration from an optional YAML file and environment
// variables. When file is empty, config.yaml is searched in . and ./config;
// a missing file is not an error. Environment variables take precedence.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if used := v.ConfigFileUsed(); used != "" {
		cfg.sources = append(cfg.sources, used)
	}
	cfg.sources = append(cfg.sources, "env")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", getEnv("APP_ENV", EnvDevelopment))
	v.SetDefault("host", "")
	v.SetDefault("port", 0)
	v.SetDefault("cors", []string{})
	v.SetDefault("version", "")
	v.SetDefault("name", "")
	v.SetDefault("url", "")
	v.SetDefault("log", "")
	v.SetDefault("body_limit_mb", DefaultBodyLimitMB)

	v.SetDefault("persistence.driver", "")
	v.SetDefault("persistence.collections", []string{})
	v.SetDefault("persistence.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("persistence.mongo.database", "")
	v.SetDefault("persistence.mongo.max_pool_size", 10)
	v.SetDefault("persistence.mongo.connect_timeout_sec", 10)
	v.SetDefault("persistence.postgres.host", "")
	v.SetDefault("persistence.postgres.port", "5432")
	v.SetDefault("persistence.postgres.user", "")
	v.SetDefault("persistence.postgres.password", "")
	v.SetDefault("persistence.postgres.name", "")
	v.SetDefault("persistence.postgres.sslmode", "disable")
	v.SetDefault("persistence.postgres.max_open_conns", 10)
	v.SetDefault("persistence.postgres.max_idle_conns", 5)
	v.SetDefault("persistence.postgres.conn_max_lifetime_sec", 300)

	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.bucket", "")
	v.SetDefault("minio.use_ssl", false)

	v.SetDefault("tracing.enabled", !getEnvBool("OTEL_SDK_DISABLED", true))
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// https has no defaults so that it stays nil unless configured.
	for _, key := range []string{"https.port", "https.pfx", "https.passphrase", "https.url"} {
		_ = v.BindEnv(key)
	}
}

// Validate rejects configurations that cannot be normalized.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.HTTPS != nil {
		if c.HTTPS.Port < 0 || c.HTTPS.Port > 65535 {
			return fmt.Errorf("invalid https port %d", c.HTTPS.Port)
		}
	}
	switch c.Persistence.Driver {
	case "", DriverMongo, DriverPostgres:
	default:
		return fmt.Errorf("unsupported persistence driver %q", c.Persistence.Driver)
	}
	return nil
}

// Sources lists where the configuration was read from, in load order.
func (c *Config) Sources() []string {
	return append([]string(nil), c.sources...)
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

func (c *Config) HTTPSEnabled() bool {
	return c.HTTPS != nil
}

// TLSPort is the port the TLS listener binds to.
func (c *Config) TLSPort() int {
	if c.HTTPS != nil && c.HTTPS.Port != 0 {
		return c.HTTPS.Port
	}
	return c.Port
}

// ServePlain reports whether a plaintext listener is started next to (or
// instead of) the TLS one. It is skipped when TLS owns the main port.
func (c *Config) ServePlain() bool {
	if c.HTTPS == nil {
		return true
	}
	return c.HTTPS.Port != 0 && c.HTTPS.Port != c.Port
}

// BodyLimit is the request body ceiling in bytes.
func (c *Config) BodyLimit() int {
	if c.BodyLimitMB <= 0 {
		return DefaultBodyLimitMB * 1024 * 1024
	}
	return c.BodyLimitMB * 1024 * 1024
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}
