package config

import (
	"fmt"
	"path/filepath"

	"svcboot/internal/buildinfo"
)

const (
	// WildcardHost binds every interface; used outside production.
	WildcardHost = "0.0.0.0"
	LocalHost    = "localhost"

	unknownURL      = "http://unknown"
	unknownHTTPSURL = "https://unknown"
)

// Normalize fills the derived fields of c in place. Every derived field is
// only written when empty, so calling Normalize again is a no-op.
func Normalize(c *Config, meta buildinfo.Metadata) {
	if c.Version == "" {
		c.Version = meta.Version
	}
	if c.Name == "" {
		c.Name = meta.Name
	}
	if c.Host == "" {
		if c.IsProduction() {
			c.Host = LocalHost
		} else {
			c.Host = WildcardHost
		}
	}

	switch {
	case c.Port == 0:
		// No listener: the process only runs hooks (CLI or test run).
		if c.URL == "" {
			c.URL = unknownURL
		}
		if c.HTTPS != nil && c.HTTPS.URL == "" {
			c.HTTPS.URL = unknownHTTPSURL
		}
	case c.HTTPS == nil:
		if c.URL == "" {
			c.URL = httpURL(c.Host, c.Port)
		}
	case c.HTTPS.Port != 0:
		if c.HTTPS.URL == "" {
			c.HTTPS.URL = httpsURL(c.Host, c.HTTPS.Port)
		}
		if c.URL == "" {
			if c.HTTPS.Port == c.Port {
				c.URL = c.HTTPS.URL
			} else {
				c.URL = httpURL(c.Host, c.Port)
			}
		}
	default:
		// TLS takes over the main port.
		if c.HTTPS.URL == "" {
			c.HTTPS.URL = httpsURL(c.Host, c.Port)
		}
		if c.URL == "" {
			c.URL = c.HTTPS.URL
		}
	}

	if c.Log == "" {
		c.Log = fmt.Sprintf("[%s@%s]", c.Name, c.Version)
	}
}

func httpURL(host string, port int) string {
	if port == 80 {
		return "http://" + host
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

func httpsURL(host string, port int) string {
	if port == 443 {
		return "https://" + host
	}
	return fmt.Sprintf("https://%s:%d", host, port)
}

// BaseDir resolves the install base directory from the directory holding the
// executable. Production installs keep assets two levels up (bin/<arch>/),
// development runs one level up.
func (c *Config) BaseDir(execDir string) string {
	if c.IsProduction() {
		return filepath.Clean(filepath.Join(execDir, "..", ".."))
	}
	return filepath.Clean(filepath.Join(execDir, ".."))
}
