package webclient

import (
	"errors"
	"net/http"
	"time"

	"github.com/raysh454/netmon/internal/netevent"
)

var (
	ErrNilRequest           = errors.New("request cannot be nil")
	ErrUnsupportedMethod    = errors.New("method not supported by backend")
	ErrBackendNotRegistered = errors.New("webclient backend not registered")
)

type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
	// Cause is reported as the request's initiator. Defaults to document.
	Cause netevent.Cause
	// Options contains backend-specific options like "wait_idle": "false" for chromedp
	Options map[string]string
}

type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}
