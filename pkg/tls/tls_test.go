package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndLoad(t *testing.T) {
	dir := t.TempDir()
	certFile := filepath.Join(dir, "edgecap.crt")
	keyFile := filepath.Join(dir, "edgecap.key")

	require.NoError(t, GenerateSelfSignedCert(certFile, keyFile, "node-1", time.Hour, "10.0.0.7", "node-1.mesh"))

	raw, err := os.ReadFile(certFile)
	require.NoError(t, err)
	block, _ := pem.Decode(raw)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	assert.Equal(t, "node-1", cert.Subject.CommonName)
	assert.ElementsMatch(t, []string{"localhost", "node-1", "node-1.mesh"}, cert.DNSNames)
	assert.Len(t, cert.IPAddresses, 3)
	assert.NoError(t, cert.VerifyHostname("10.0.0.7"))

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err := LoadServerConfig(ServerConfig{CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	assert.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, tls.NoClientCert, cfg.ClientAuth)

	cfg, err = LoadServerConfig(ServerConfig{CertFile: certFile, KeyFile: keyFile, ClientCAFile: certFile})
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, cfg.ClientAuth)
}

func TestServerConfigValidate(t *testing.T) {
	assert.NoError(t, ServerConfig{}.Validate())
	assert.False(t, ServerConfig{}.Enabled())
	assert.Error(t, ServerConfig{CertFile: "a.crt"}.Validate())
	assert.Error(t, ServerConfig{ClientCAFile: "ca.crt"}.Validate())
	assert.NoError(t, ServerConfig{CertFile: "a.crt", KeyFile: "a.key"}.Validate())
}

func TestLoadServerConfigErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadServerConfig(ServerConfig{CertFile: filepath.Join(dir, "x.crt"), KeyFile: filepath.Join(dir, "x.key")})
	assert.Error(t, err)

	certFile := filepath.Join(dir, "ok.crt")
	keyFile := filepath.Join(dir, "ok.key")
	require.NoError(t, GenerateSelfSignedCert(certFile, keyFile, "localhost", 0))
	garbage := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a cert"), 0644))

	_, err = LoadServerConfig(ServerConfig{CertFile: certFile, KeyFile: keyFile, ClientCAFile: garbage})
	assert.Error(t, err)
}
