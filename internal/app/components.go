package app

import (
	"context"
	"fmt"

	"github.com/raysh454/netmon/internal/archive"
	"github.com/raysh454/netmon/internal/capture"
	"github.com/raysh454/netmon/internal/cert"
	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/monitor"
	"github.com/raysh454/netmon/internal/security"
	"github.com/raysh454/netmon/internal/store"
)

// Components are the long-lived capture services of a running netmon.
type Components struct {
	Store   *store.Store
	Monitor *monitor.Monitor
	Certs   *cert.Manager

	// Proxy is nil when proxy.enabled is false.
	Proxy *capture.Proxy

	// Archive and Recorder are nil when archive.enabled is false.
	Archive  *archive.Archive
	Recorder *archive.Recorder
}

// NewComponents builds the store, monitor, CA, proxy and archive from cfg.
func NewComponents(ctx context.Context, cfg *Config, logger logging.Logger) (*Components, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	st := store.New(
		store.WithLogger(logger),
		store.WithBatchInterval(cfg.Monitor.BatchInterval),
	)
	mon := monitor.New(st, logger, monitor.Options{
		Classifier:  security.Classifier{MarkLocal: cfg.Monitor.MarkLocal},
		RedirectTTL: cfg.Monitor.RedirectTTL,
	})
	c := &Components{Store: st, Monitor: mon}

	certs, err := cert.NewManager(cfg.Cert.Dir, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("new cert manager: %w", err)
	}
	c.Certs = certs

	if cfg.Proxy.Enabled {
		c.Proxy = capture.NewProxy(capture.ProxyConfig{
			ListenAddr: cfg.Proxy.ListenAddr,
			Timeout:    cfg.Proxy.Timeout,
		}, certs, mon, logger)
	}

	if cfg.Archive.Enabled {
		a, err := archive.Open(archive.Config{
			Path:                   cfg.Archive.Path,
			RedactSensitiveHeaders: cfg.Archive.RedactSensitiveHeaders,
		}, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		c.Archive = a

		session, err := a.StartSession(ctx, cfg.Archive.SessionLabel)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("start archive session: %w", err)
		}
		c.Recorder = archive.NewRecorder(a, st, session.ID, logger)
	}

	return c, nil
}

// Close releases components in reverse order of construction.
func (c *Components) Close() error {
	var firstErr error
	if c.Recorder != nil {
		// Hand still-batched updates to the recorder before it drains.
		c.Store.Dispatch(store.BatchFlush())
		c.Recorder.Close()
	}
	if c.Archive != nil {
		if err := c.Archive.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close archive: %w", err)
		}
	}
	if c.Store != nil {
		c.Store.Close()
	}
	return firstErr
}
