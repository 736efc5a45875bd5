// Package security holds the cryptographic plumbing for the mailbox and
// the status webhook: a mutual-TLS HTTP transport built from PEM material
// and HMAC-SHA256 signing with constant-time verification.
package security

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// dialTimeout bounds connection establishment for mailbox requests.
const dialTimeout = 10 * time.Second

// ErrNoCertificates is returned when a CA bundle holds no usable certificate.
var ErrNoCertificates = errors.New("tls: no certificates found in CA bundle")

// TLSMaterial is the PEM-encoded client identity and trust anchors for a
// mutually authenticated connection. Any field may be empty: without a
// client pair no certificate is presented, without a CA bundle the system
// roots are used.
type TLSMaterial struct {
	CertPEM []byte
	KeyPEM  []byte
	CAPEM   []byte
}

// TLSConfig builds a *tls.Config from the material.
func (m TLSMaterial) TLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if len(m.CertPEM) > 0 || len(m.KeyPEM) > 0 {
		pair, err := tls.X509KeyPair(m.CertPEM, m.KeyPEM)
		if err != nil {
			return nil, fmt.Errorf("tls: invalid client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{pair}
	}

	if len(m.CAPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(m.CAPEM) {
			return nil, ErrNoCertificates
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// NewMTLSTransport returns an *http.Transport that presents the client
// certificate and trusts the given CA.
func NewMTLSTransport(m TLSMaterial) (*http.Transport, error) {
	tlsCfg, err := m.TLSConfig()
	if err != nil {
		return nil, err
	}
	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSClientConfig:     tlsCfg,
		TLSHandshakeTimeout: dialTimeout,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}, nil
}

// NewMTLSClient wraps NewMTLSTransport in an *http.Client with the given
// overall request timeout.
func NewMTLSClient(m TLSMaterial, timeout time.Duration) (*http.Client, error) {
	transport, err := NewMTLSTransport(m)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
