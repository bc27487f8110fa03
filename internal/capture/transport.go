// Package capture contains the sources that observe network traffic and
// report it as netevent events: an http.RoundTripper, a forward proxy and a
// Chrome DevTools listener.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/netevent"
	"github.com/raysh454/netmon/internal/security"
)

type causeKey struct{}
type actorKey struct{}

// WithCause tags requests made with ctx with the given cause.
func WithCause(ctx context.Context, c netevent.Cause) context.Context {
	return context.WithValue(ctx, causeKey{}, c)
}

// CauseFrom returns the cause set by WithCause, or CauseOther.
func CauseFrom(ctx context.Context) netevent.Cause {
	if c, ok := ctx.Value(causeKey{}).(netevent.Cause); ok && c != "" {
		return c
	}
	return netevent.CauseOther
}

// ActorFrom returns the actor id Transport assigned to the request that
// carries ctx.
func ActorFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(actorKey{}).(string)
	return id, ok
}

// Transport reports every round trip it makes to Sink. Redirects followed by
// an http.Client appear as separate requests linked to the hop before them.
type Transport struct {
	Base   http.RoundTripper
	Sink   netevent.Sink
	Logger logging.Logger

	// NewID and Now default to uuid.NewString and time.Now.
	NewID func() string
	Now   func() time.Time
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger() logging.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return logging.Nop()
}

func (t *Transport) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Transport) emit(ev netevent.Event) {
	if t.Sink != nil {
		t.Sink.Emit(ev)
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	newID := uuid.NewString
	if t.NewID != nil {
		newID = t.NewID
	}
	id := newID()

	cause := CauseFrom(req.Context())
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	info := &netevent.RequestInfo{
		Method:   method,
		URL:      req.URL.String(),
		Headers:  req.Header.Clone(),
		Cause:    cause,
		IsXHR:    cause == netevent.CauseXHR || cause == netevent.CauseFetch,
		BodySize: req.ContentLength,
	}
	if req.Response != nil && req.Response.Request != nil {
		if prev, ok := ActorFrom(req.Response.Request.Context()); ok {
			info.RedirectFrom = prev
		}
	}
	t.emit(netevent.Event{Kind: netevent.KindRequest, ActorID: id, Time: t.now(), Request: info})

	var (
		remoteMu sync.Mutex
		remote   string
	)
	trace := &httptrace.ClientTrace{
		GotConn: func(ci httptrace.GotConnInfo) {
			if ci.Conn == nil {
				return
			}
			remoteMu.Lock()
			remote = ci.Conn.RemoteAddr().String()
			remoteMu.Unlock()
		},
	}
	ctx := context.WithValue(httptrace.WithClientTrace(req.Context(), trace), actorKey{}, id)
	out := req.WithContext(ctx)

	resp, err := t.base().RoundTrip(out)
	if err != nil {
		t.logger().Debug("round trip failed",
			logging.F("url", info.URL),
			logging.Err(err))
		t.emit(failedEvent(id, t.now(), req, err))
		return nil, err
	}

	remoteMu.Lock()
	addr := remote
	remoteMu.Unlock()
	t.emit(netevent.Event{
		Kind:     netevent.KindResponse,
		ActorID:  id,
		Time:     t.now(),
		Response: responseInfo(req, resp, addr),
	})

	resp.Body = &observedBody{
		rc:         resp.Body,
		headerSize: headerSize(resp),
		done: func(n, transferred int64, err error) {
			if err != nil {
				t.emit(netevent.Event{
					Kind:    netevent.KindFailed,
					ActorID: id,
					Time:    t.now(),
					Failed:  &netevent.FailedInfo{ErrorText: err.Error(), Canceled: errors.Is(err, context.Canceled)},
				})
				return
			}
			t.emit(netevent.Event{
				Kind:     netevent.KindFinished,
				ActorID:  id,
				Time:     t.now(),
				Finished: &netevent.FinishedInfo{TransferredSize: transferred, ContentSize: n},
			})
		},
	}
	resp.Request = out
	return resp, nil
}

func failedEvent(id string, at time.Time, req *http.Request, err error) netevent.Event {
	f := &netevent.FailedInfo{
		ErrorText: err.Error(),
		Canceled:  errors.Is(err, context.Canceled),
	}
	if security.IsHandshakeError(err) {
		f.Security = &netevent.SecurityInfo{
			Scheme:         req.URL.Scheme,
			Host:           req.URL.Hostname(),
			HandshakeError: err.Error(),
		}
	}
	return netevent.Event{Kind: netevent.KindFailed, ActorID: id, Time: at, Failed: f}
}

func responseInfo(req *http.Request, resp *http.Response, remote string) *netevent.ResponseInfo {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprint(resp.StatusCode)))
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return &netevent.ResponseInfo{
		Status:      resp.StatusCode,
		StatusText:  text,
		HTTPVersion: resp.Proto,
		Headers:     resp.Header.Clone(),
		RemoteAddr:  remote,
		Security:    security.FromConnectionState(req.URL.Scheme, req.URL.Hostname(), resp.TLS),
	}
}

// headerSize approximates the bytes of the status line and headers on the wire.
func headerSize(resp *http.Response) int64 {
	n := int64(len(resp.Proto) + len(resp.Status) + 3)
	for k, vs := range resp.Header {
		for _, v := range vs {
			n += int64(len(k) + len(v) + 4)
		}
	}
	return n + 2
}

// observedBody counts bytes read and calls done exactly once, at EOF, on a
// read error or on Close, whichever comes first.
type observedBody struct {
	rc         io.ReadCloser
	headerSize int64
	done       func(n, transferred int64, err error)

	mu   sync.Mutex
	n    int64
	once sync.Once
}

func (b *observedBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	b.mu.Lock()
	b.n += int64(n)
	b.mu.Unlock()
	switch {
	case err == io.EOF:
		b.finish(nil)
	case err != nil:
		b.finish(err)
	}
	return n, err
}

func (b *observedBody) Close() error {
	err := b.rc.Close()
	b.finish(nil)
	return err
}

func (b *observedBody) finish(err error) {
	b.once.Do(func() {
		b.mu.Lock()
		n := b.n
		b.mu.Unlock()
		b.done(n, n+b.headerSize, err)
	})
}
