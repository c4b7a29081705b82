// Package tlsbundle loads PKCS#12 (PFX) server credentials from the local
// file system or an object store and turns them into TLS configuration.
package tlsbundle

import (
	"context"
	"crypto/tls"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pkcs12"

	"svcboot/internal/storage"
)

// ObjectScheme prefixes bundle paths stored in the object store:
// s3://bucket/path/to/server.pfx.
const ObjectScheme = "s3://"

var ErrEmptyPath = errors.New("tls bundle path is empty")

// Loader reads the raw bytes of a credential bundle.
type Loader interface {
	Load(ctx context.Context, path string) ([]byte, error)
}

// FileLoader reads bundles from disk. Relative paths resolve against BaseDir.
type FileLoader struct {
	BaseDir string
}

func (l FileLoader) Load(_ context.Context, path string) ([]byte, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.BaseDir, path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tls bundle: %w", err)
	}
	return b, nil
}

// ObjectLoader fetches s3:// bundles from Storage and hands every other path
// to Fallback.
type ObjectLoader struct {
	Storage  storage.Storage
	Fallback Loader
}

func (l ObjectLoader) Load(ctx context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(path, ObjectScheme) {
		if l.Fallback == nil {
			return nil, fmt.Errorf("no loader for tls bundle %q", path)
		}
		return l.Fallback.Load(ctx, path)
	}

	bucket, key, ok := strings.Cut(strings.TrimPrefix(path, ObjectScheme), "/")
	if !ok || bucket == "" || key == "" {
		return nil, fmt.Errorf("invalid object path %q: want s3://bucket/key", path)
	}

	rc, _, err := l.Storage.Get(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("fetch tls bundle: %w", err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read tls bundle: %w", err)
	}
	return b, nil
}

// Certificate decodes a PKCS#12 bundle into a certificate chain and key.
func Certificate(pfx []byte, passphrase string) (tls.Certificate, error) {
	blocks, err := pkcs12.ToPEM(pfx, passphrase)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode pfx: %w", err)
	}

	var certPEM, keyPEM []byte
	for _, b := range blocks {
		// Bag attributes end up as PEM headers; X509KeyPair does not need them.
		b.Headers = nil
		if b.Type == "CERTIFICATE" {
			certPEM = append(certPEM, pem.EncodeToMemory(b)...)
		} else {
			keyPEM = append(keyPEM, pem.EncodeToMemory(b)...)
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("build key pair: %w", err)
	}
	return cert, nil
}

// ServerConfig returns a TLS server configuration for cert.
func ServerConfig(cert tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
}
