// Package tlsutil builds tls.Config values from the platform security
// configuration. Only manual certificate mode is supported; certificates
// are loaded from disk at startup.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/oraqon/dp-aero-L2/errors"
	"github.com/oraqon/dp-aero-L2/pkg/security"
)

// LoadServerTLSConfig creates a tls.Config for HTTP servers. Returns
// (nil, nil) when TLS is disabled.
func LoadServerTLSConfig(cfg security.ServerTLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerTLSConfig", "load certificate")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}

	if cfg.MTLS.Enabled {
		pool, err := loadCertPool(cfg.MTLS.ClientCAFiles)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadServerTLSConfig", "load client CAs")
		}
		tlsConfig.ClientCAs = pool
		if cfg.MTLS.RequireClientCert {
			tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		} else {
			tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
		}
	}

	return tlsConfig, nil
}

// LoadClientTLSConfig creates a tls.Config for HTTP clients. The system
// CA bundle is always trusted; CAFiles add to it.
func LoadClientTLSConfig(cfg security.ClientTLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         parseTLSVersion(cfg.MinVersion),
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicit dev/test opt-in
	}

	if len(cfg.CAFiles) > 0 {
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		for _, file := range cfg.CAFiles {
			pem, err := os.ReadFile(file)
			if err != nil {
				return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", "read CA file "+file)
			}
			if !pool.AppendCertsFromPEM(pem) {
				return nil, errors.WrapFatal(
					fmt.Errorf("no certificates parsed from %s", file),
					"tlsutil", "LoadClientTLSConfig", "append CA")
			}
		}
		tlsConfig.RootCAs = pool
	}

	if cfg.MTLS.Enabled {
		cert, err := tls.LoadX509KeyPair(cfg.MTLS.CertFile, cfg.MTLS.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func loadCertPool(files []string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for _, file := range files {
		pem, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates parsed from %s", file)
		}
	}
	return pool, nil
}

// parseTLSVersion maps config strings to tls constants, defaulting to
// TLS 1.2.
func parseTLSVersion(version string) uint16 {
	switch version {
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}
