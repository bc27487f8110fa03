// Package cert issues the certificates the capture proxy presents when it
// intercepts HTTPS traffic.
package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/raysh454/netmon/internal/logging"
)

const (
	caCertFile = "netmon-ca.pem"
	caKeyFile  = "netmon-ca-key.pem"
)

var ErrInvalidPEM = errors.New("invalid PEM data")

// Manager owns a CA and a cache of leaf certificates signed by it.
type Manager struct {
	logger logging.Logger
	dir    string

	ca    *x509.Certificate
	caKey *ecdsa.PrivateKey

	mu    sync.RWMutex
	certs map[string]*tls.Certificate
}

// NewManager loads the CA from dir, generating and saving one when none
// exists. An empty dir keeps the CA in memory only.
func NewManager(dir string, logger logging.Logger) (*Manager, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	m := &Manager{
		logger: logger.With(logging.F("component", "cert")),
		dir:    dir,
		certs:  make(map[string]*tls.Certificate),
	}

	if dir != "" {
		err := m.loadCA()
		if err == nil {
			m.logger.Info("loaded CA", logging.F("path", m.CAPath()))
			return m, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load CA: %w", err)
		}
	}

	if err := m.generateCA(); err != nil {
		return nil, fmt.Errorf("generate CA: %w", err)
	}
	if dir != "" {
		if err := m.saveCA(); err != nil {
			return nil, fmt.Errorf("save CA: %w", err)
		}
		m.logger.Info("generated CA", logging.F("path", m.CAPath()))
	}
	return m, nil
}

func (m *Manager) generateCA() error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	serial, err := randomSerial()
	if err != nil {
		return err
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"netmon capture proxy"},
			CommonName:   "netmon Root CA",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return err
	}
	ca, err := x509.ParseCertificate(der)
	if err != nil {
		return err
	}
	m.ca = ca
	m.caKey = key
	return nil
}

func (m *Manager) saveCA() error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: m.ca.Raw})
	if err := os.WriteFile(m.CAPath(), certPEM, 0o644); err != nil {
		return err
	}
	keyDER, err := x509.MarshalECPrivateKey(m.caKey)
	if err != nil {
		return err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return os.WriteFile(filepath.Join(m.dir, caKeyFile), keyPEM, 0o600)
}

func (m *Manager) loadCA() error {
	certPEM, err := os.ReadFile(m.CAPath())
	if err != nil {
		return err
	}
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return fmt.Errorf("%s: %w", m.CAPath(), ErrInvalidPEM)
	}
	ca, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return err
	}

	keyPath := filepath.Join(m.dir, caKeyFile)
	keyPEM, err := os.ReadFile(keyPath)
	if err != nil {
		return err
	}
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return fmt.Errorf("%s: %w", keyPath, ErrInvalidPEM)
	}
	key, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return err
	}

	m.ca = ca
	m.caKey = key
	return nil
}

// GetCertificate returns a leaf certificate for host, issuing it on first use.
func (m *Manager) GetCertificate(host string) (*tls.Certificate, error) {
	host = strings.ToLower(strings.Trim(host, "[]"))

	m.mu.RLock()
	c, ok := m.certs[host]
	m.mu.RUnlock()
	if ok {
		return c, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.certs[host]; ok {
		return c, nil
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"netmon capture proxy"},
			CommonName:   host,
		},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    time.Now().AddDate(1, 0, 0),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	if ip := net.ParseIP(host); ip != nil {
		tmpl.IPAddresses = []net.IP{ip}
	} else {
		tmpl.DNSNames = []string{host}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, m.ca, &key.PublicKey, m.caKey)
	if err != nil {
		return nil, fmt.Errorf("issue certificate for %s: %w", host, err)
	}
	c = &tls.Certificate{
		Certificate: [][]byte{der, m.ca.Raw},
		PrivateKey:  key,
	}
	m.certs[host] = c
	m.logger.Debug("issued leaf certificate", logging.F("host", host))
	return c, nil
}

// TLSConfig serves certificates by SNI, falling back to fallbackHost for
// clients that send none (IP literals).
func (m *Manager) TLSConfig(fallbackHost string) *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			host := hello.ServerName
			if host == "" {
				host = fallbackHost
			}
			return m.GetCertificate(host)
		},
	}
}

// CAPath is where the CA certificate is stored; empty for in-memory CAs.
func (m *Manager) CAPath() string {
	if m.dir == "" {
		return ""
	}
	return filepath.Join(m.dir, caCertFile)
}

func (m *Manager) CACertificate() *x509.Certificate { return m.ca }

// CertPool trusts only this manager's CA.
func (m *Manager) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(m.ca)
	return pool
}

func randomSerial() (*big.Int, error) {
	return rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
}
