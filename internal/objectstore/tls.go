package objectstore

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// TLSConfig holds the knobs an HTTPClient needs to dial an object-store
// endpoint over HTTPS, including optional mutual TLS.
type TLSConfig struct {
	CAFile             string
	ClientCertFile     string
	ClientKeyFile      string
	InsecureSkipVerify bool
}

// loadCACertificates reads a PEM bundle from caFile into a fresh pool.
func loadCACertificates(caFile string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("objectstore: read CA file: %w", err)
	}
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("objectstore: failed to parse CA certificate in %s", caFile)
	}
	return pool, nil
}

// buildTLSConfig turns a TLSConfig into a *tls.Config for the upload
// client's HTTP transport, loading an optional CA bundle and client
// certificate for mTLS against the object-store endpoint.
func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		MaxVersion:         tls.VersionTLS13,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CAFile != "" {
		pool, err := loadCACertificates(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("objectstore: load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
