// Package harness opens a monitored tab the way a panel test does: the
// monitor is attached before the page loads, page-load traffic is discarded,
// and the test then drives page content and inspects the rendered panel.
package harness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/model"
	"github.com/raysh454/netmon/internal/monitor"
	"github.com/raysh454/netmon/internal/panel"
	"github.com/raysh454/netmon/internal/security"
	"github.com/raysh454/netmon/internal/store"
	"github.com/raysh454/netmon/internal/webclient"
)

var ErrPageLoad = errors.New("page failed to load")

type Options struct {
	// WebClient selects and configures the tab backend. Sink is overwritten
	// with the monitor.
	WebClient webclient.Config
	// MarkLocal reports plain loopback traffic as local instead of insecure.
	MarkLocal bool
	// BatchInterval is the store's batching delay; zero keeps the default.
	BatchInterval time.Duration
	Logger        logging.Logger
}

// Panel is the monitor side of a harness session.
type Panel struct {
	store   *store.Store
	monitor *monitor.Monitor
	tab     *Tab
	logger  logging.Logger
}

func (p *Panel) Dispatch(a store.Action) { p.store.Dispatch(a) }

func (p *Panel) Store() *store.Store { return p.store }

func (p *Panel) Monitor() *monitor.Monitor { return p.monitor }

func (p *Panel) State() store.State { return p.store.GetState() }

func (p *Panel) Tab() *Tab { return p.tab }

// Requests returns every record in sort order, ignoring filters.
func (p *Panel) Requests() []*model.Request { return store.GetSortedRequests(p.store.GetState()) }

// Document renders the current request list.
func (p *Panel) Document() (*goquery.Document, error) {
	return panel.Document(p.store.GetState())
}

// WaitForNetworkEvents counts request completions from now on.
func (p *Panel) WaitForNetworkEvents(n int) *monitor.Waiter {
	return p.monitor.WaitForNetworkEvents(n)
}

// InitNetMonitor builds a store, a monitor and a tab, then loads pageURL
// with recording paused so the request list starts out empty.
func InitNetMonitor(ctx context.Context, opts Options, pageURL string) (*Tab, *Panel, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With(logging.F("component", "harness"))

	storeOpts := []store.Option{store.WithLogger(logger)}
	if opts.BatchInterval > 0 {
		storeOpts = append(storeOpts, store.WithBatchInterval(opts.BatchInterval))
	}
	st := store.New(storeOpts...)
	mon := monitor.New(st, logger, monitor.Options{
		Classifier: security.Classifier{MarkLocal: opts.MarkLocal},
	})

	wcCfg := opts.WebClient
	if wcCfg.Client == "" {
		wcCfg.Client = webclient.ClientNetHTTP
	}
	wcCfg.Sink = mon
	client, err := webclient.NewWebClient(wcCfg, logger)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("creating tab backend: %w", err)
	}

	tabCtx, cancel := context.WithCancel(context.Background())
	tab := &Tab{client: client, pageURL: pageURL, logger: logger, ctx: tabCtx, cancel: cancel}
	p := &Panel{store: st, monitor: mon, tab: tab, logger: logger}

	mon.Pause()
	if err := tab.load(ctx); err != nil {
		_ = tab.Close()
		st.Close()
		return nil, nil, err
	}
	mon.Resume()
	mon.Clear()

	logger.Info("net monitor initialised", logging.F("page", pageURL), logging.F("backend", string(wcCfg.Client)))
	return tab, p, nil
}

// Teardown closes the tab, waiting for outstanding beacons, and stops the store.
func Teardown(ctx context.Context, p *Panel) error {
	if p == nil {
		return nil
	}
	var err error
	if p.tab != nil {
		done := make(chan error, 1)
		go func() { done <- p.tab.Close() }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = fmt.Errorf("closing tab: %w", ctx.Err())
		}
	}
	p.store.Close()
	p.logger.Info("net monitor torn down")
	return err
}

// Tab is the page side of a harness session.
type Tab struct {
	client  webclient.WebClient
	pageURL string
	logger  logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

func (t *Tab) URL() string { return t.pageURL }

func (t *Tab) Client() webclient.WebClient { return t.client }

func (t *Tab) load(ctx context.Context) error {
	if runner, ok := t.client.(webclient.ScriptRunner); ok {
		if err := runner.Navigate(ctx, t.pageURL); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPageLoad, t.pageURL, err)
		}
		return nil
	}
	resp, err := t.client.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: t.pageURL})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPageLoad, t.pageURL, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: %s: status %d", ErrPageLoad, t.pageURL, resp.StatusCode)
	}
	return nil
}

// Close cancels in-flight page work and releases the backend.
func (t *Tab) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		t.wg.Wait()
		t.closeErr = t.client.Close()
	})
	return t.closeErr
}
