package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"svcboot/internal/buildinfo"
)

var meta = buildinfo.Metadata{Name: "notes", Version: "1.2.3"}

func TestLoad(t *testing.T) {
	t.Setenv("SVCBOOT_PORT", "8080")
	t.Setenv("SVCBOOT_PERSISTENCE_DRIVER", "postgres")
	t.Setenv("SVCBOOT_PERSISTENCE_POSTGRES_HOST", "test-host")
	t.Setenv("SVCBOOT_PERSISTENCE_POSTGRES_MAX_OPEN_CONNS", "20")
	t.Setenv("SVCBOOT_MINIO_USE_SSL", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "test-host", cfg.Persistence.Postgres.Host)
	assert.Equal(t, 20, cfg.Persistence.Postgres.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.Nil(t, cfg.HTTPS)
	assert.Equal(t, DefaultBodyLimitMB, cfg.BodyLimitMB)
	assert.Equal(t, []string{"env"}, cfg.Sources())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	content := `
port: 80
host: example.com
cors:
  - https://app.example.com
https:
  port: 443
  pfx: certs/server.pfx
  passphrase: secret
persistence:
  driver: mongo
  mongo:
    database: notes
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	cfg, err := Load(file)
	require.NoError(t, err)

	require.NotNil(t, cfg.HTTPS)
	assert.Equal(t, 443, cfg.HTTPS.Port)
	assert.Equal(t, "certs/server.pfx", cfg.HTTPS.PFX)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORS)
	assert.Equal(t, DriverMongo, cfg.Persistence.Driver)
	assert.Equal(t, "notes", cfg.Persistence.Mongo.Database)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Persistence.Mongo.URI)
	assert.Equal(t, []string{file, "env"}, cfg.Sources())
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("SVCBOOT_PERSISTENCE_DRIVER", "cassandra")
		_, err := Load("")
		assert.ErrorContains(t, err, "unsupported persistence driver")
	})
}

func TestNormalize_HostDefault(t *testing.T) {
	dev := &Config{Env: EnvDevelopment}
	Normalize(dev, meta)
	assert.Equal(t, WildcardHost, dev.Host)

	prod := &Config{Env: EnvProduction}
	Normalize(prod, meta)
	assert.Equal(t, LocalHost, prod.Host)

	explicit := &Config{Env: EnvProduction, Host: "api.internal"}
	Normalize(explicit, meta)
	assert.Equal(t, "api.internal", explicit.Host)
}

func TestNormalize_Metadata(t *testing.T) {
	c := &Config{}
	Normalize(c, meta)
	assert.Equal(t, "notes", c.Name)
	assert.Equal(t, "1.2.3", c.Version)
	assert.Equal(t, "[notes@1.2.3]", c.Log)

	c = &Config{Name: "custom", Version: "9", Log: "[x]"}
	Normalize(c, meta)
	assert.Equal(t, "custom", c.Name)
	assert.Equal(t, "9", c.Version)
	assert.Equal(t, "[x]", c.Log)
}

func TestNormalize_URLs(t *testing.T) {
	tests := []struct {
		name     string
		port     int
		https    *HTTPSConfig
		wantURL  string
		wantTLS  string
		distinct bool
	}{
		{
			name:    "no port",
			wantURL: "http://unknown",
		},
		{
			name:     "no port with https",
			https:    &HTTPSConfig{Port: 8443},
			wantURL:  "http://unknown",
			wantTLS:  "https://unknown",
			distinct: true,
		},
		{
			name:    "plain 8080",
			port:    8080,
			wantURL: "http://h:8080",
		},
		{
			name:    "plain 80 omits port",
			port:    80,
			wantURL: "http://h",
		},
		{
			name:    "https same port 443",
			port:    443,
			https:   &HTTPSConfig{Port: 443},
			wantURL: "https://h",
			wantTLS: "https://h",
		},
		{
			name:     "https 8443 next to 80",
			port:     80,
			https:    &HTTPSConfig{Port: 8443},
			wantURL:  "http://h",
			wantTLS:  "https://h:8443",
			distinct: true,
		},
		{
			name:     "https 443 next to 8080",
			port:     8080,
			https:    &HTTPSConfig{Port: 443},
			wantURL:  "http://h:8080",
			wantTLS:  "https://h",
			distinct: true,
		},
		{
			name:    "https without port takes main port",
			port:    9000,
			https:   &HTTPSConfig{},
			wantURL: "https://h:9000",
			wantTLS: "https://h:9000",
		},
		{
			name:    "https without port on 443",
			port:    443,
			https:   &HTTPSConfig{},
			wantURL: "https://h",
			wantTLS: "https://h",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{Host: "h", Port: tt.port, HTTPS: tt.https}
			Normalize(c, meta)

			assert.Equal(t, tt.wantURL, c.URL)
			if tt.https != nil {
				assert.Equal(t, tt.wantTLS, c.HTTPS.URL)
				assert.Equal(t, tt.distinct, c.URL != c.HTTPS.URL)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	configs := []*Config{
		{},
		{Port: 8080},
		{Port: 80, HTTPS: &HTTPSConfig{Port: 8443}},
		{Port: 443, HTTPS: &HTTPSConfig{}},
		{Env: EnvProduction, HTTPS: &HTTPSConfig{}},
	}

	for _, c := range configs {
		Normalize(c, meta)
		once := *c
		var onceHTTPS HTTPSConfig
		if c.HTTPS != nil {
			onceHTTPS = *c.HTTPS
		}

		Normalize(c, meta)
		assert.Equal(t, once.URL, c.URL)
		assert.Equal(t, once.Host, c.Host)
		assert.Equal(t, once.Log, c.Log)
		if c.HTTPS != nil {
			assert.Equal(t, onceHTTPS, *c.HTTPS)
		}
	}
}

func TestNormalize_KeepsExplicitURLs(t *testing.T) {
	c := &Config{Host: "h", Port: 80, URL: "http://public.example", HTTPS: &HTTPSConfig{Port: 8443, URL: "https://public.example"}}
	Normalize(c, meta)
	assert.Equal(t, "http://public.example", c.URL)
	assert.Equal(t, "https://public.example", c.HTTPS.URL)
}

func TestListenerSelection(t *testing.T) {
	assert.True(t, (&Config{Port: 80}).ServePlain())
	assert.Equal(t, 80, (&Config{Port: 80}).TLSPort())

	same := &Config{Port: 443, HTTPS: &HTTPSConfig{Port: 443}}
	assert.False(t, same.ServePlain())
	assert.Equal(t, 443, same.TLSPort())

	shared := &Config{Port: 9000, HTTPS: &HTTPSConfig{}}
	assert.False(t, shared.ServePlain())
	assert.Equal(t, 9000, shared.TLSPort())

	split := &Config{Port: 80, HTTPS: &HTTPSConfig{Port: 8443}}
	assert.True(t, split.ServePlain())
	assert.Equal(t, 8443, split.TLSPort())
}

func TestBaseDir(t *testing.T) {
	dev := &Config{Env: EnvDevelopment}
	assert.Equal(t, filepath.Clean("/opt/app"), dev.BaseDir("/opt/app/bin"))

	prod := &Config{Env: EnvProduction}
	assert.Equal(t, filepath.Clean("/opt/app"), prod.BaseDir("/opt/app/bin/linux"))
}

func TestBodyLimit(t *testing.T) {
	assert.Equal(t, 50*1024*1024, (&Config{}).BodyLimit())
	assert.Equal(t, 2*1024*1024, (&Config{BodyLimitMB: 2}).BodyLimit())
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	os.Setenv(key, "value")
	defer os.Unsetenv(key)

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	os.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	os.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}
