package harness

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/netevent"
	"github.com/raysh454/netmon/internal/utils"
	"github.com/raysh454/netmon/internal/webclient"
)

var ErrNoTaskBody = errors.New("content task has nothing to run on this backend")

// ContentTask is work done inside the page. Script runs on backends that
// execute page script; Emulate runs on the others and reproduces what the
// script would do over the network.
type ContentTask struct {
	Script  string
	Emulate func(ctx context.Context, c *Content) error
}

// Spawn runs task in the tab.
func (t *Tab) Spawn(ctx context.Context, task ContentTask) error {
	if runner, ok := t.client.(webclient.ScriptRunner); ok && task.Script != "" {
		t.logger.Debug("evaluating content script", logging.F("script", task.Script))
		if err := runner.Evaluate(ctx, task.Script, nil); err != nil {
			return fmt.Errorf("content script: %w", err)
		}
		return nil
	}
	if task.Emulate == nil {
		return ErrNoTaskBody
	}
	return task.Emulate(ctx, &Content{PageURL: t.pageURL, tab: t})
}

// Content is the emulated page environment handed to ContentTask.Emulate.
type Content struct {
	PageURL string
	tab     *Tab
}

func (c *Content) resolve(rawURL string) (string, error) {
	return utils.ResolveLocation(c.PageURL, rawURL)
}

// Fetch issues a GET from the page as its XMLHttpRequest helper would,
// following redirects.
func (c *Content) Fetch(ctx context.Context, rawURL string) (*webclient.Response, error) {
	target, err := c.resolve(rawURL)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", rawURL, err)
	}
	return c.tab.client.Do(ctx, &webclient.Request{
		Method: http.MethodGet,
		URL:    target,
		Cause:  netevent.CauseXHR,
	})
}

// SendBeacon queues a POST of data to rawURL and reports whether it was
// queued. The response is never looked at.
func (c *Content) SendBeacon(rawURL, data string) bool {
	target, err := c.resolve(rawURL)
	if err != nil {
		c.tab.logger.Warn("beacon url rejected", logging.F("url", rawURL), logging.Err(err))
		return false
	}
	if c.tab.ctx.Err() != nil {
		return false
	}

	req := &webclient.Request{
		Method:  http.MethodPost,
		URL:     target,
		Headers: http.Header{"Content-Type": {"text/plain;charset=UTF-8"}},
		Cause:   netevent.CauseBeacon,
	}
	if data != "" {
		req.Body = []byte(data)
	}

	c.tab.wg.Add(1)
	go func() {
		defer c.tab.wg.Done()
		if _, err := c.tab.client.Do(c.tab.ctx, req); err != nil && !errors.Is(err, context.Canceled) {
			c.tab.logger.Debug("beacon failed", logging.F("url", target), logging.Err(err))
		}
	}()
	return true
}
