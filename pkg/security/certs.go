package security

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// Filenames inside the well-known TLS material directory (spec.md §6).
const (
	caFileName       = "ca.crt"
	hostCertFileName = "host.crt"
	hostKeyFileName  = "host.key"
	combinedFileName = "host.pem"
)

// Material is the process-wide TLS material: CA, host cert/key, and the
// raw bytes of the combined host PEM file. The broker and store
// connections present HostCert through ClientTLSConfig. Read once at
// service start and never mutated.
type Material struct {
	CA          *x509.Certificate
	CAPool      *x509.CertPool
	HostCert    tls.Certificate
	CombinedPEM []byte
}

// LoadMaterial reads CA, host cert/key and the combined PEM from dir.
func LoadMaterial(dir string) (*Material, error) {
	ca, err := LoadCACertFromFile(dir)
	if err != nil {
		return nil, fmt.Errorf("load ca: %w", err)
	}

	cert, err := LoadCertFromFile(dir)
	if err != nil {
		return nil, fmt.Errorf("load host cert: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(ca)

	combined, err := os.ReadFile(filepath.Join(dir, combinedFileName))
	if err != nil {
		return nil, fmt.Errorf("load combined pem: %w", err)
	}

	return &Material{CA: ca, CAPool: pool, HostCert: *cert, CombinedPEM: combined}, nil
}

// LoadCertFromFile loads the host TLS certificate and key.
func LoadCertFromFile(certDir string) (*tls.Certificate, error) {
	certPath := filepath.Join(certDir, hostCertFileName)
	keyPath := filepath.Join(certDir, hostKeyFileName)

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	if cert.Leaf == nil {
		x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		cert.Leaf = x509Cert
	}

	return &cert, nil
}

// LoadCACertFromFile loads the process-wide CA certificate.
func LoadCACertFromFile(certDir string) (*x509.Certificate, error) {
	caPath := filepath.Join(certDir, caFileName)
	caPEM, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	block, _ := pem.Decode(caPEM)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("failed to decode CA certificate PEM")
	}

	caCert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return caCert, nil
}

// CertExists reports whether all required TLS material is present in dir.
func CertExists(certDir string) bool {
	for _, name := range []string{hostCertFileName, hostKeyFileName, caFileName} {
		if _, err := os.Stat(filepath.Join(certDir, name)); err != nil {
			return false
		}
	}
	return true
}

// ValidateCertChain validates that cert is signed by ca.
func ValidateCertChain(cert, ca *x509.Certificate) error {
	if cert == nil {
		return fmt.Errorf("certificate is nil")
	}
	if ca == nil {
		return fmt.Errorf("CA certificate is nil")
	}

	roots := x509.NewCertPool()
	roots.AddCert(ca)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}

	return nil
}

// ServerTLSConfig builds a mutual-TLS server config for the Control API:
// presents the host cert, requires and verifies a client cert signed by CA.
func (m *Material) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{m.HostCert},
		ClientCAs:    m.CAPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}
}

// ClientTLSConfig builds a mutual-TLS client config for the broker
// connection: presents the host cert, verifies the server against CA
// with hostname verification.
func (m *Material) ClientTLSConfig(serverName string) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{m.HostCert},
		RootCAs:      m.CAPool,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	}
}
