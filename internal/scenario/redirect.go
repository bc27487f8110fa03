package scenario

import (
	"context"
	"fmt"
	"strconv"

	"github.com/raysh454/netmon/internal/fixtures"
	"github.com/raysh454/netmon/internal/harness"
	"github.com/raysh454/netmon/internal/panel"
	"github.com/raysh454/netmon/internal/security"
	"github.com/raysh454/netmon/internal/store"
)

// RedirectSecurityIcon checks that a plain request redirected to HTTPS shows
// up as two records: the first marked insecure and the second secure.
func RedirectSecurityIcon() Scenario {
	return Scenario{
		Name:        "redirect-security-icon",
		Description: "HTTP request redirected to HTTPS gets insecure then secure icons",
		PagePath:    fixtures.CustomGetPath,
		Body:        redirectSecurityIcon,
	}
}

func redirectSecurityIcon(ctx context.Context, tab *harness.Tab, p *harness.Panel, r *harness.Reporter) error {
	p.Dispatch(store.BatchEnable(false))

	target := fixtures.HTTPSRedirectPath[1:]
	wait := p.WaitForNetworkEvents(2)
	err := tab.Spawn(ctx, harness.ContentTask{
		Script: fmt.Sprintf("performRequests(1, %s)", strconv.Quote(target)),
		Emulate: func(ctx context.Context, c *harness.Content) error {
			_, err := c.Fetch(ctx, target)
			return err
		},
	})
	if err != nil {
		return fmt.Errorf("performing request in content: %w", err)
	}
	waitFor(ctx, r, wait)

	doc, err := p.Document()
	if err != nil {
		return err
	}
	icons := panel.SecurityIcons(doc)
	r.Is(len(p.Requests()), 2, "There were two requests due to redirect.")
	r.Ok(panel.HasClass(icons.Eq(0), security.CSSClass(security.StateInsecure)),
		"Initial request was marked insecure.")
	r.Ok(panel.HasClass(icons.Eq(1), security.CSSClass(security.StateSecure)),
		"Redirected request was marked secure.")
	return nil
}
