package webclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/netmon/internal/capture"
	"github.com/raysh454/netmon/internal/logging"
)

// ChromedpClient drives one headless browser tab. Network events of the tab
// are forwarded to cfg.Sink through a capture.CDPSource.
type ChromedpClient struct {
	logger    logging.Logger
	idleAfter time.Duration

	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
}

// chromeFlags are the command-line switches cfg adds to the defaults.
func chromeFlags(cfg Config) map[string]any {
	flags := map[string]any{}
	if !cfg.Headless {
		flags["headless"] = false
	}
	if cfg.IgnoreCertErrors {
		flags["ignore-certificate-errors"] = true
	}
	if len(cfg.TrustedSPKI) > 0 {
		flags["ignore-certificate-errors-spki-list"] = strings.Join(cfg.TrustedSPKI, ",")
	}
	return flags
}

func NewChromedpClient(cfg Config, logger logging.Logger) (*ChromedpClient, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	componentLogger := logger.With(logging.Field{Key: "backend", Value: "chromedp"})

	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.DisableGPU)
	for name, value := range chromeFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	if cfg.Sink != nil {
		if err := capture.NewCDPSource(cfg.Sink, componentLogger).Attach(tabCtx); err != nil {
			tabCancel()
			allocCancel()
			return nil, fmt.Errorf("attach network listener: %w", err)
		}
	} else if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	idleAfter := cfg.IdleAfter
	if idleAfter <= 0 {
		idleAfter = 500 * time.Millisecond
	}
	componentLogger.Info("created chromedp webclient", logging.Field{Key: "idle_after", Value: idleAfter.String()})

	return &ChromedpClient{
		logger:      componentLogger,
		idleAfter:   idleAfter,
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}, nil
}

// waitNetworkIdle returns a channel that is closed once no request has been
// in flight for idleAfter.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) <-chan struct{} {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timer *time.Timer
	var timerMutex sync.Mutex
	var once sync.Once

	startTimer := func() {
		timerMutex.Lock()
		defer timerMutex.Unlock()

		if timer != nil {
			timer.Stop()
		}

		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() { close(idleChan) })
			}
		})
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&activeReqs, -1) <= 0 {
				startTimer()
			}
		}
	})
	startTimer()

	return idleChan
}

// run executes fn against the tab context, bounded by ctx.
func (c *ChromedpClient) run(ctx context.Context, fn func(tab context.Context) error) error {
	done := make(chan error, 1)
	go func() { done <- fn(c.tabCtx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do navigates the tab to req.URL and returns the rendered document. Only GET
// is supported.
func (c *ChromedpClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	method := strings.ToUpper(req.Method)
	if method != "" && method != http.MethodGet {
		return nil, fmt.Errorf("%w: %s not supported by chromedp", ErrUnsupportedMethod, method)
	}

	var idle <-chan struct{}
	if req.Options["wait_idle"] != "false" {
		idle = waitNetworkIdle(c.tabCtx, c.idleAfter)
	}

	var resp *network.Response
	err := c.run(ctx, func(tab context.Context) error {
		var err error
		resp, err = chromedp.RunResponse(tab, chromedp.Navigate(req.URL))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("navigate %s: %w", req.URL, err)
	}

	if idle != nil {
		select {
		case <-idle:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var html string
	if err := c.run(ctx, func(tab context.Context) error {
		return chromedp.Run(tab, chromedp.OuterHTML("html", &html))
	}); err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	out := &Response{Request: req, Body: []byte(html), StatusCode: http.StatusOK, FetchedAt: time.Now()}
	if resp != nil {
		out.StatusCode = int(resp.Status)
		out.Headers = make(http.Header, len(resp.Headers))
		for k, v := range resp.Headers {
			out.Headers.Set(k, fmt.Sprint(v))
		}
	}
	return out, nil
}

func (c *ChromedpClient) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, func(tab context.Context) error {
		return chromedp.Run(tab, chromedp.Navigate(url))
	})
}

func (c *ChromedpClient) Evaluate(ctx context.Context, expr string, res any) error {
	return c.run(ctx, func(tab context.Context) error {
		return chromedp.Run(tab, chromedp.Evaluate(expr, res))
	})
}

func (c *ChromedpClient) Close() error {
	c.logger.Info("closing chromedp webclient")
	c.tabCancel()
	c.allocCancel()
	return nil
}
