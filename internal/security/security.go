// Package security classifies how a captured request was transported:
// encrypted and sound, encrypted but weak, plain text, or failed TLS.
package security

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/raysh454/netmon/internal/netevent"
)

type State string

const (
	StateSecure   State = "secure"
	StateWeak     State = "weak"
	StateInsecure State = "insecure"
	StateBroken   State = "broken"
	StateLocal    State = "local"
	StateUnknown  State = "unknown"
)

// Classifier turns transport facts into a State.
type Classifier struct {
	// MarkLocal reports plain-text loopback traffic as StateLocal instead of
	// StateInsecure.
	MarkLocal bool
}

var insecureCiphers = func() map[uint16]bool {
	m := make(map[uint16]bool)
	for _, cs := range tls.InsecureCipherSuites() {
		m[cs.ID] = true
	}
	return m
}()

// Classify returns the state for info. A state reported by the browser takes
// precedence over anything derived locally.
func (c Classifier) Classify(info netevent.SecurityInfo) State {
	if info.Reported != "" {
		return fromReported(info.Reported)
	}
	if info.HandshakeError != "" {
		return StateBroken
	}

	scheme := strings.ToLower(info.Scheme)
	switch scheme {
	case "http", "ws":
		if c.MarkLocal && IsLoopback(info.Host) {
			return StateLocal
		}
		return StateInsecure
	case "https", "wss":
	case "data", "blob", "file", "about":
		return StateLocal
	default:
		return StateUnknown
	}

	if info.TLSVersion == 0 {
		// https without connection facts yet, e.g. before the response arrived
		return StateUnknown
	}
	if info.TLSVersion < tls.VersionTLS12 || insecureCiphers[info.CipherSuite] {
		return StateWeak
	}
	return StateSecure
}

// ClassifyURL gives the best answer available before any response: plain
// schemes are insecure right away, encrypted ones stay unknown.
func (c Classifier) ClassifyURL(rawURL string) State {
	u, err := url.Parse(rawURL)
	if err != nil {
		return StateUnknown
	}
	return c.Classify(netevent.SecurityInfo{Scheme: u.Scheme, Host: u.Hostname()})
}

func fromReported(s string) State {
	switch strings.ToLower(s) {
	case "secure":
		return StateSecure
	case "insecure", "neutral":
		return StateInsecure
	case "insecure-broken", "broken":
		return StateBroken
	case "weak":
		return StateWeak
	case "local":
		return StateLocal
	default:
		return StateUnknown
	}
}

// FromConnectionState collects the facts of a finished handshake. cs may be
// nil for plain-text connections.
func FromConnectionState(scheme, host string, cs *tls.ConnectionState) netevent.SecurityInfo {
	info := netevent.SecurityInfo{Scheme: strings.ToLower(scheme), Host: host}
	if cs == nil {
		return info
	}
	info.TLSVersion = cs.Version
	info.CipherSuite = cs.CipherSuite
	info.ProtocolName = tls.VersionName(cs.Version)
	info.CipherName = tls.CipherSuiteName(cs.CipherSuite)
	info.ServerName = cs.ServerName
	if len(cs.PeerCertificates) > 0 {
		leaf := cs.PeerCertificates[0]
		info.PeerCertSubject = leaf.Subject.String()
		info.PeerCertIssuer = leaf.Issuer.String()
	}
	return info
}

// IsHandshakeError reports whether err came from certificate verification
// or the TLS handshake rather than, say, a refused connection.
func IsHandshakeError(err error) bool {
	if err == nil {
		return false
	}
	var (
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		certInvalid x509.CertificateInvalidError
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
	)
	switch {
	case errors.As(err, &unknownAuth), errors.As(err, &hostErr), errors.As(err, &certInvalid),
		errors.As(err, &verifyErr), errors.As(err, &recordErr), errors.As(err, &alertErr):
		return true
	}
	return strings.Contains(err.Error(), "tls: ")
}

// IsLoopback reports whether host names this machine.
func IsLoopback(host string) bool {
	host = strings.Trim(host, "[]")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// CSSClass is the class a panel row's security icon carries for s.
func CSSClass(s State) string {
	if s == "" {
		s = StateUnknown
	}
	return "security-state-" + string(s)
}
