package webclient

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/raysh454/netmon/internal/logging"
)

func init() {
	RegisterDefaultBackends()
}

// RegisterDefaultBackends registers the nethttp and chromedp backends. It
// runs from init; calling it again restores the defaults.
func RegisterDefaultBackends() {
	RegisterBackend(string(ClientNetHTTP), func(cfg Config, logger logging.Logger) (WebClient, error) {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		base := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.RootCAs != nil {
			base.TLSClientConfig = &tls.Config{RootCAs: cfg.RootCAs, MinVersion: tls.VersionTLS12}
		}
		return NewNetHTTPClient(cfg, logger, &http.Client{Timeout: timeout, Transport: base})
	})

	RegisterBackend(string(ClientChromedp), func(cfg Config, logger logging.Logger) (WebClient, error) {
		client, err := NewChromedpClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create chromedp client: %w", err)
		}
		return client, nil
	})
}
