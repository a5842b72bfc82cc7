// Package certs keeps a locally trusted certificate for the agent's
// HTTPS/WSS listener. Phones on the LAN reach the agent by IP address, so
// the certificate is reissued whenever the set of LAN addresses changes.
package certs

import (
	"bufio"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jittering/truststore"
)

// Issuer installs a local CA and issues server certificates signed by it.
type Issuer interface {
	Issue(hosts []string, dir string) (certFile, keyFile string, err error)
}

// truststoreIssuer issues certificates with the mkcert library, keeping the
// CA in caDir.
type truststoreIssuer struct {
	caDir  string
	logger *log.Logger
}

func (i *truststoreIssuer) Issue(hosts []string, dir string) (string, string, error) {
	if err := os.MkdirAll(i.caDir, 0700); err != nil {
		return "", "", fmt.Errorf("failed to create CA directory: %w", err)
	}
	// truststore reads the CA location from the environment.
	os.Setenv("CAROOT", i.caDir)

	ml, err := truststore.NewLib()
	if err != nil {
		return "", "", fmt.Errorf("failed to initialize truststore: %w", err)
	}

	i.logger.Println("Ensuring CA is installed in system trust store...")
	i.logger.Println("(You may be prompted for your password)")
	if err := ml.Install(); err != nil {
		return "", "", fmt.Errorf("failed to install CA: %w", err)
	}

	cert, err := ml.MakeCert(hosts, dir)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate certificate: %w", err)
	}
	return cert.CertFile, cert.KeyFile, nil
}

// Manager owns the certificate files under one directory.
type Manager struct {
	dir        string
	caCertFile string
	certFile   string
	keyFile    string
	hostsFile  string

	issuer Issuer
	hosts  func() ([]string, error)
	logger *log.Logger
}

// NewManager creates a manager that keeps its CA and server certificate in dir.
func NewManager(dir string) *Manager {
	logger := log.New(os.Stderr, "[certs] ", log.LstdFlags)
	caDir := filepath.Join(dir, "ca")
	tlsDir := filepath.Join(dir, "tls")
	return &Manager{
		dir:        dir,
		caCertFile: filepath.Join(caDir, "rootCA.pem"),
		certFile:   filepath.Join(tlsDir, "server.crt"),
		keyFile:    filepath.Join(tlsDir, "server.key"),
		hostsFile:  filepath.Join(tlsDir, "hosts.txt"),
		issuer:     &truststoreIssuer{caDir: caDir, logger: logger},
		hosts:      CertificateHosts,
		logger:     logger,
	}
}

// WithIssuer replaces the certificate issuer.
func (m *Manager) WithIssuer(issuer Issuer) *Manager {
	m.issuer = issuer
	return m
}

// Ensure makes sure a certificate for the current hosts exists and returns
// its cert and key paths. Issuing may install the CA into the system trust
// store, which can prompt the user.
func (m *Manager) Ensure() (certFile, keyFile string, err error) {
	if err := os.MkdirAll(filepath.Dir(m.certFile), 0700); err != nil {
		return "", "", fmt.Errorf("failed to create TLS directory: %w", err)
	}

	hosts, err := m.hosts()
	if err != nil {
		m.logger.Printf("Warning: failed to get LAN IPs: %v", err)
		hosts = []string{"localhost", "127.0.0.1"}
	}

	switch {
	case !m.certsExist():
		m.logger.Println("Certificates not found, generating...")
	case m.hostsChanged(hosts):
		m.logger.Println("Network configuration changed, regenerating certificates...")
	default:
		m.logger.Println("Using existing certificates")
		return m.certFile, m.keyFile, nil
	}

	if err := m.issue(hosts); err != nil {
		return "", "", err
	}
	return m.certFile, m.keyFile, nil
}

// TLSConfig ensures the certificate and loads it for a listener.
func (m *Manager) TLSConfig() (*tls.Config, error) {
	certFile, keyFile, err := m.Ensure()
	if err != nil {
		return nil, err
	}
	pair, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func (m *Manager) issue(hosts []string) error {
	m.logger.Printf("Generating certificate for hosts: %v", hosts)

	certFile, keyFile, err := m.issuer.Issue(hosts, filepath.Dir(m.certFile))
	if err != nil {
		return err
	}
	if certFile != m.certFile {
		if err := os.Rename(certFile, m.certFile); err != nil {
			return fmt.Errorf("failed to rename cert file: %w", err)
		}
	}
	if keyFile != m.keyFile {
		if err := os.Rename(keyFile, m.keyFile); err != nil {
			return fmt.Errorf("failed to rename key file: %w", err)
		}
	}

	if err := m.writeCachedHosts(hosts); err != nil {
		m.logger.Printf("Warning: failed to cache hosts: %v", err)
	}
	m.logger.Printf("Certificate generated: %s", m.certFile)
	if fingerprint, err := m.CAFingerprint(); err == nil {
		m.logger.Printf("CA Fingerprint (SHA256): %s", fingerprint)
	}
	return nil
}

func (m *Manager) certsExist() bool {
	_, certErr := os.Stat(m.certFile)
	_, keyErr := os.Stat(m.keyFile)
	return certErr == nil && keyErr == nil
}

// hostsChanged compares hosts with the set the certificate was issued for.
func (m *Manager) hostsChanged(hosts []string) bool {
	cached, err := m.readCachedHosts()
	if err != nil {
		return true
	}
	return !slices.Equal(slices.Sorted(slices.Values(cached)), slices.Sorted(slices.Values(hosts)))
}

func (m *Manager) readCachedHosts() ([]string, error) {
	file, err := os.Open(m.hostsFile)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var hosts []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if host := strings.TrimSpace(scanner.Text()); host != "" {
			hosts = append(hosts, host)
		}
	}
	return hosts, scanner.Err()
}

func (m *Manager) writeCachedHosts(hosts []string) error {
	return os.WriteFile(m.hostsFile, []byte(strings.Join(hosts, "\n")+"\n"), 0600)
}

// CertFile returns the path to the server certificate.
func (m *Manager) CertFile() string { return m.certFile }

// KeyFile returns the path to the server key.
func (m *Manager) KeyFile() string { return m.keyFile }

// CACertFile returns the path to the CA certificate.
func (m *Manager) CACertFile() string { return m.caCertFile }

// ReadCACert returns the CA certificate PEM.
func (m *Manager) ReadCACert() ([]byte, error) {
	return os.ReadFile(m.caCertFile)
}

// CAFingerprint returns the SHA-256 fingerprint of the CA certificate as
// colon separated hex, for users to compare before trusting it on a phone.
func (m *Manager) CAFingerprint() (string, error) {
	certPEM, err := m.ReadCACert()
	if err != nil {
		return "", fmt.Errorf("failed to read CA certificate: %w", err)
	}

	block, _ := pem.Decode(certPEM)
	if block == nil {
		return "", fmt.Errorf("failed to decode PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse certificate: %w", err)
	}

	sum := sha256.Sum256(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":"), nil
}
