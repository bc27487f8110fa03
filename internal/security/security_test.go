package security_test

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"testing"

	"github.com/raysh454/netmon/internal/netevent"
	"github.com/raysh454/netmon/internal/security"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		c    security.Classifier
		info netevent.SecurityInfo
		want security.State
	}{
		{"plain http", security.Classifier{}, netevent.SecurityInfo{Scheme: "http", Host: "example.com"}, security.StateInsecure},
		{"plain loopback without MarkLocal", security.Classifier{}, netevent.SecurityInfo{Scheme: "http", Host: "127.0.0.1"}, security.StateInsecure},
		{"plain loopback with MarkLocal", security.Classifier{MarkLocal: true}, netevent.SecurityInfo{Scheme: "http", Host: "localhost"}, security.StateLocal},
		{"tls13", security.Classifier{}, netevent.SecurityInfo{Scheme: "https", TLSVersion: tls.VersionTLS13, CipherSuite: tls.TLS_AES_128_GCM_SHA256}, security.StateSecure},
		{"tls10 is weak", security.Classifier{}, netevent.SecurityInfo{Scheme: "https", TLSVersion: tls.VersionTLS10, CipherSuite: tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA}, security.StateWeak},
		{"rc4 is weak", security.Classifier{}, netevent.SecurityInfo{Scheme: "https", TLSVersion: tls.VersionTLS12, CipherSuite: tls.TLS_RSA_WITH_RC4_128_SHA}, security.StateWeak},
		{"handshake error", security.Classifier{}, netevent.SecurityInfo{Scheme: "https", HandshakeError: "x509: unknown authority"}, security.StateBroken},
		{"https before response", security.Classifier{}, netevent.SecurityInfo{Scheme: "https"}, security.StateUnknown},
		{"reported wins", security.Classifier{}, netevent.SecurityInfo{Scheme: "http", Reported: "secure"}, security.StateSecure},
		{"reported broken", security.Classifier{}, netevent.SecurityInfo{Scheme: "https", Reported: "insecure-broken"}, security.StateBroken},
		{"reported neutral", security.Classifier{}, netevent.SecurityInfo{Scheme: "https", Reported: "neutral"}, security.StateInsecure},
		{"data url", security.Classifier{}, netevent.SecurityInfo{Scheme: "data"}, security.StateLocal},
		{"unknown scheme", security.Classifier{}, netevent.SecurityInfo{Scheme: "gopher"}, security.StateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Classify(tt.info); got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClassifyURL(t *testing.T) {
	t.Parallel()
	c := security.Classifier{}
	if got := c.ClassifyURL("http://example.com/a"); got != security.StateInsecure {
		t.Errorf("http URL: got %q", got)
	}
	if got := c.ClassifyURL("https://example.com/a"); got != security.StateUnknown {
		t.Errorf("https URL before response: got %q", got)
	}
}

func TestFromConnectionState(t *testing.T) {
	t.Parallel()
	cs := &tls.ConnectionState{
		Version:     tls.VersionTLS13,
		CipherSuite: tls.TLS_AES_256_GCM_SHA384,
		ServerName:  "example.com",
	}
	info := security.FromConnectionState("HTTPS", "example.com", cs)
	if info.Scheme != "https" {
		t.Errorf("scheme not lower-cased: %q", info.Scheme)
	}
	if info.ProtocolName != "TLS 1.3" {
		t.Errorf("unexpected protocol name %q", info.ProtocolName)
	}
	if info.CipherName != "TLS_AES_256_GCM_SHA384" {
		t.Errorf("unexpected cipher name %q", info.CipherName)
	}

	plain := security.FromConnectionState("http", "example.com", nil)
	if plain.TLSVersion != 0 {
		t.Errorf("plain connection should carry no TLS version")
	}
}

func TestIsHandshakeError(t *testing.T) {
	t.Parallel()
	wrapped := fmt.Errorf("get: %w", x509.UnknownAuthorityError{})
	if !security.IsHandshakeError(wrapped) {
		t.Error("expected unknown authority to count as a handshake error")
	}
	if security.IsHandshakeError(errors.New("connection refused")) {
		t.Error("connection refused is not a handshake error")
	}
	if security.IsHandshakeError(nil) {
		t.Error("nil is not a handshake error")
	}
}

func TestIsLoopback(t *testing.T) {
	t.Parallel()
	for _, h := range []string{"localhost", "127.0.0.1", "[::1]", "127.0.0.1:8080", "app.localhost"} {
		if !security.IsLoopback(h) {
			t.Errorf("expected %q to be loopback", h)
		}
	}
	for _, h := range []string{"example.com", "10.0.0.1", ""} {
		if security.IsLoopback(h) {
			t.Errorf("expected %q not to be loopback", h)
		}
	}
}

func TestCSSClass(t *testing.T) {
	t.Parallel()
	if got := security.CSSClass(security.StateInsecure); got != "security-state-insecure" {
		t.Errorf("got %q", got)
	}
	if got := security.CSSClass(""); got != "security-state-unknown" {
		t.Errorf("got %q", got)
	}
}
