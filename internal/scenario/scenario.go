// Package scenario holds end-to-end checks of the network monitor. Each one
// opens a monitored page, drives it, and asserts on the request list.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raysh454/netmon/internal/harness"
	"github.com/raysh454/netmon/internal/logging"
)

// DefaultTimeout bounds a whole scenario run.
const DefaultTimeout = 30 * time.Second

var ErrUnknownScenario = errors.New("unknown scenario")

// Body drives an opened tab and reports assertions to r. Returning an error
// aborts the scenario; assertion failures belong in r.
type Body func(ctx context.Context, tab *harness.Tab, p *harness.Panel, r *harness.Reporter) error

type Scenario struct {
	Name        string
	Description string
	// PagePath is loaded relative to Options.BaseURL before Body runs.
	PagePath string
	Body     Body
}

type Options struct {
	Harness harness.Options
	// BaseURL is the plain-HTTP origin of the fixture server.
	BaseURL string
	Timeout time.Duration
}

type Report struct {
	Scenario string          `json:"scenario"`
	Passed   bool            `json:"passed"`
	Checks   []harness.Check `json:"checks"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// All returns every scenario in a stable order.
func All() []Scenario {
	return []Scenario{RedirectSecurityIcon(), BeaconCapture()}
}

// Find returns the scenario called name.
func Find(name string) (Scenario, error) {
	for _, sc := range All() {
		if sc.Name == name {
			return sc, nil
		}
	}
	return Scenario{}, fmt.Errorf("%w: %s", ErrUnknownScenario, name)
}

// Run opens the scenario's page, runs its body and tears down. The error is
// non-nil only when the monitor could not be set up; everything else is in
// the report.
func Run(ctx context.Context, sc Scenario, opts Options) (*Report, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := opts.Harness.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.With(logging.F("scenario", sc.Name))
	opts.Harness.Logger = logger

	start := time.Now()
	pageURL := strings.TrimRight(opts.BaseURL, "/") + sc.PagePath
	tab, p, err := harness.InitNetMonitor(ctx, opts.Harness, pageURL)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	rep := harness.NewReporter(logger)
	bodyErr := sc.Body(ctx, tab, p, rep)
	if err := harness.Teardown(ctx, p); err != nil {
		logger.Warn("teardown failed", logging.Err(err))
	}

	report := &Report{
		Scenario: sc.Name,
		Checks:   rep.Checks(),
		Passed:   bodyErr == nil && !rep.Failed(),
		Duration: time.Since(start),
	}
	if bodyErr != nil {
		report.Error = bodyErr.Error()
	}
	logger.Info("scenario finished",
		logging.F("passed", report.Passed),
		logging.F("checks", len(report.Checks)),
		logging.F("duration", report.Duration.String()))
	return report, nil
}

// waitFor records a failed check instead of aborting when the wait times out.
func waitFor(ctx context.Context, r *harness.Reporter, w interface {
	Wait(context.Context) error
}) {
	if err := w.Wait(ctx); err != nil {
		r.Ok(false, err.Error())
	}
}
