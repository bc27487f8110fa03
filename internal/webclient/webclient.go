package webclient

import (
	"context"
)

// WebClient is a tab backend: it loads pages, and every request it makes is
// reported to the configured netevent.Sink.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	Close() error
}

// ScriptRunner is implemented by backends that execute page script.
type ScriptRunner interface {
	Navigate(ctx context.Context, url string) error
	// Evaluate runs expr in the current page and stores its result in res
	// (which may be nil).
	Evaluate(ctx context.Context, expr string, res any) error
}
