package webclient

import (
	"crypto/x509"
	"time"

	"github.com/raysh454/netmon/internal/netevent"
)

type Client string

const (
	ClientNetHTTP  Client = "nethttp"
	ClientChromedp Client = "chromedp"
)

// Config is what a backend constructor needs. app.Config maps onto it so
// this package does not import app.
type Config struct {
	Client  Client
	Timeout time.Duration

	// Sink receives the network events of every request the backend makes.
	Sink netevent.Sink
	// RootCAs extends the trusted roots of the nethttp backend.
	RootCAs *x509.CertPool

	// chromedp only
	ExecPath         string
	Headless         bool
	IdleAfter        time.Duration
	IgnoreCertErrors bool
	// TrustedSPKI lists base64 SHA-256 hashes of certificate public keys
	// Chrome accepts as if they chained to a trusted root.
	TrustedSPKI []string
}
