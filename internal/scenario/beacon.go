package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raysh454/netmon/internal/fixtures"
	"github.com/raysh454/netmon/internal/harness"
	"github.com/raysh454/netmon/internal/store"
)

// BeaconCapture checks that a navigator.sendBeacon call is recorded with
// its method, URL and status.
func BeaconCapture() Scenario {
	return Scenario{
		Name:        "beacon-capture",
		Description: "sendBeacon request is recorded as a POST with a 404 status",
		PagePath:    fixtures.SendBeaconPath,
		Body:        beaconCapture,
	}
}

func beaconCapture(ctx context.Context, tab *harness.Tab, p *harness.Panel, r *harness.Reporter) error {
	p.Dispatch(store.BatchEnable(false))
	r.Is(len(p.Requests()), 0, "The requests-menu is empty.")

	wait := p.WaitForNetworkEvents(1)
	err := tab.Spawn(ctx, harness.ContentTask{
		Script: "performRequest()",
		Emulate: func(ctx context.Context, c *harness.Content) error {
			if !c.SendBeacon(strings.TrimPrefix(fixtures.BeaconPath, "/"), "") {
				return errors.New("sendBeacon refused the request")
			}
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("sending beacon: %w", err)
	}
	waitFor(ctx, r, wait)

	reqs := p.Requests()
	r.Is(len(reqs), 1, "The beacon should be recorded.")
	if len(reqs) == 0 {
		return nil
	}
	req := reqs[0]
	r.Is(req.Method, "POST", "The method is correct.")
	r.Ok(strings.HasSuffix(req.URL, "beacon_request"), "The URL is correct.")
	r.Is(req.Status, "404", "The status is correct.")
	return nil
}
