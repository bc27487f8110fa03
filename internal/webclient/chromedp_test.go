package webclient_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/raysh454/netmon/internal/webclient"
)

func newChromedpClient(t *testing.T) *webclient.ChromedpClient {
	t.Helper()
	cfg := webclient.Config{
		Client:   webclient.ClientChromedp,
		Headless: true,
		ExecPath: os.Getenv("CHROMEDP_TEST_RUNNER"),
	}
	client, err := webclient.NewChromedpClient(cfg, nil)
	if err != nil {
		t.Skipf("Skipping chromedp test (environment does not support chromedp): %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// TestChromedpClient_DoRejectsNonGET verifies that Do() returns error for non-GET methods
func TestChromedpClient_DoRejectsNonGET(t *testing.T) {
	t.Parallel()
	client := newChromedpClient(t)

	_, err := client.Do(context.Background(), &webclient.Request{Method: "POST", URL: "http://example.com"})
	if !errors.Is(err, webclient.ErrUnsupportedMethod) {
		t.Fatalf("expected ErrUnsupportedMethod, got %v", err)
	}
}

func TestChromedpClient_Evaluate(t *testing.T) {
	t.Parallel()
	client := newChromedpClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Navigate(ctx, "about:blank"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	var n int
	if err := client.Evaluate(ctx, "1 + 2", &n); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if n != 3 {
		t.Fatalf("Evaluate = %d, want 3", n)
	}
}
