package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oraqon/dp-aero-L2/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSelfSignedPair writes a throwaway cert/key pair and returns their
// paths.
func writeSelfSignedPair(t *testing.T) (certPath, keyPath string) {
	t.Helper()
	dir := t.TempDir()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:         true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	certPath = filepath.Join(dir, "cert.pem")
	certOut, err := os.Create(certPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, certOut.Close())

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyPath = filepath.Join(dir, "key.pem")
	keyOut, err := os.Create(keyPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}))
	require.NoError(t, keyOut.Close())
	return certPath, keyPath
}

func TestLoadServerTLSConfigDisabled(t *testing.T) {
	cfg, err := LoadServerTLSConfig(security.ServerTLSConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestLoadServerTLSConfig(t *testing.T) {
	certPath, keyPath := writeSelfSignedPair(t)

	cfg, err := LoadServerTLSConfig(security.ServerTLSConfig{
		Enabled:  true,
		CertFile: certPath,
		KeyFile:  keyPath,
	})
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
}

func TestLoadServerTLSConfigMissingCert(t *testing.T) {
	_, err := LoadServerTLSConfig(security.ServerTLSConfig{
		Enabled:  true,
		CertFile: "/nonexistent/cert.pem",
		KeyFile:  "/nonexistent/key.pem",
	})
	assert.Error(t, err)
}

func TestLoadServerTLSConfigMTLS(t *testing.T) {
	certPath, keyPath := writeSelfSignedPair(t)

	cfg, err := LoadServerTLSConfig(security.ServerTLSConfig{
		Enabled:  true,
		CertFile: certPath,
		KeyFile:  keyPath,
		MTLS: security.ServerMTLSConfig{
			Enabled:           true,
			ClientCAFiles:     []string{certPath},
			RequireClientCert: true,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)
	assert.NotNil(t, cfg.ClientCAs)
}

func TestLoadClientTLSConfig(t *testing.T) {
	certPath, _ := writeSelfSignedPair(t)

	cfg, err := LoadClientTLSConfig(security.ClientTLSConfig{
		CAFiles:    []string{certPath},
		MinVersion: "1.3",
	})
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
}

func TestParseTLSVersionDefaults(t *testing.T) {
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion(""))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("bogus"))
	assert.Equal(t, uint16(tls.VersionTLS13), parseTLSVersion("1.3"))
}
