package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/webclient"
)

// Application is the global runtime state container. It holds config and
// the services shared across modules. Pass Application into modules that
// need access to the global state rather than using package-level variables.
type Application struct {
	Config *Config
	Logger logging.Logger

	*Components
	Orch *Orchestrator

	// internal context for cancellation / lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	proxyAddr string
}

// NewApplication builds every component described by cfg.
func NewApplication(cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	comps, err := NewComponents(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	return &Application{
		Config:     cfg,
		Logger:     logger,
		Components: comps,
		Orch:       NewOrchestrator(cfg, logger),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start begins background work: the capture proxy, when enabled.
func (a *Application) Start() error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application starting",
		logging.F("proxy_enabled", a.Proxy != nil),
		logging.F("archive_enabled", a.Archive != nil))

	if a.Proxy == nil {
		return nil
	}
	ln, err := net.Listen("tcp", a.Config.Proxy.ListenAddr)
	if err != nil {
		return fmt.Errorf("proxy listen: %w", err)
	}
	a.proxyAddr = ln.Addr().String()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.Proxy.Serve(ln); err != nil {
			a.Logger.Error("proxy stopped", logging.Err(err))
		}
	}()
	return nil
}

// ProxyAddr is the proxy's bound address once Start has run.
func (a *Application) ProxyAddr() string { return a.proxyAddr }

// SessionID is the archive session of this run, or "".
func (a *Application) SessionID() string {
	if a.Recorder == nil {
		return ""
	}
	return a.Recorder.SessionID()
}

// Load fetches rawURL with a fresh tab backend whose traffic is recorded by
// the application's monitor.
func (a *Application) Load(ctx context.Context, rawURL string) (*webclient.Response, error) {
	wc, err := webclient.NewWebClient(a.Config.WebClientConfig(a.Monitor), a.Logger)
	if err != nil {
		return nil, fmt.Errorf("new webclient: %w", err)
	}
	defer wc.Close()

	if runner, ok := wc.(webclient.ScriptRunner); ok {
		if err := runner.Navigate(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("navigate: %w", err)
		}
		return &webclient.Response{Request: &webclient.Request{Method: http.MethodGet, URL: rawURL}, FetchedAt: time.Now()}, nil
	}
	return wc.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: rawURL})
}

// Shutdown attempts a graceful shutdown: jobs first, then the proxy, then
// storage.
func (a *Application) Shutdown(ctx context.Context) error {
	if a == nil {
		return errors.New("application is nil")
	}
	a.Logger.Info("application shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	a.Orch.Close()

	var firstErr error
	if a.Proxy != nil {
		if err := a.Proxy.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("proxy shutdown returned error", logging.Err(err))
			firstErr = fmt.Errorf("proxy shutdown: %w", err)
		}
	}
	a.wg.Wait()

	if err := a.Components.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	// cancel internal ctx to signal local components/tests
	a.cancel()
	return firstErr
}
