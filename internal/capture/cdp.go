package capture

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/netevent"
)

// CDPSource translates DevTools network events of one chromedp target into
// netevent events.
//
// DevTools reuses a request id for every hop of a redirect chain, so each hop
// gets its own actor id: the request id for the first hop and
// "<request id>-hop<N>" after that.
type CDPSource struct {
	sink   netevent.Sink
	logger logging.Logger

	mu       sync.Mutex
	inflight map[network.RequestID]*cdpRequest
}

type cdpRequest struct {
	actor string
	hops  int
	// offset converts monotonic DevTools timestamps to wall time.
	offset time.Duration
	url    string
}

func NewCDPSource(sink netevent.Sink, logger logging.Logger) *CDPSource {
	if logger == nil {
		logger = logging.Nop()
	}
	return &CDPSource{
		sink:     sink,
		logger:   logger.With(logging.F("component", "cdp")),
		inflight: make(map[network.RequestID]*cdpRequest),
	}
}

// Attach enables the network domain on the target behind ctx and starts
// forwarding its events. ctx must be a chromedp context.
func (s *CDPSource) Attach(ctx context.Context) error {
	chromedp.ListenTarget(ctx, s.handle)
	if err := chromedp.Run(ctx, network.Enable()); err != nil {
		return fmt.Errorf("enable network domain: %w", err)
	}
	return nil
}

func (s *CDPSource) handle(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		s.onRequestWillBeSent(e)
	case *network.EventResponseReceived:
		s.onResponseReceived(e)
	case *network.EventLoadingFinished:
		s.onLoadingFinished(e)
	case *network.EventLoadingFailed:
		s.onLoadingFailed(e)
	}
}

func skipURL(u string) bool {
	return strings.HasPrefix(u, "data:") || strings.HasPrefix(u, "blob:")
}

func (s *CDPSource) onRequestWillBeSent(e *network.EventRequestWillBeSent) {
	if e.Request == nil || skipURL(e.Request.URL) {
		return
	}

	s.mu.Lock()
	cur, exists := s.inflight[e.RequestID]
	var redirectFrom string
	switch {
	case exists && e.RedirectResponse != nil:
		// the previous hop ends with the redirect response
		at := cur.wall(e.Timestamp)
		s.mu.Unlock()
		s.emitResponse(cur.actor, cur.url, e.RedirectResponse, at)
		s.sink.Emit(netevent.Event{
			Kind:     netevent.KindFinished,
			ActorID:  cur.actor,
			Time:     at,
			Finished: &netevent.FinishedInfo{TransferredSize: int64(e.RedirectResponse.EncodedDataLength)},
		})
		s.mu.Lock()
		redirectFrom = cur.actor
		cur.hops++
		cur.actor = string(e.RequestID) + "-hop" + strconv.Itoa(cur.hops)
	case exists:
		s.logger.Debug("request id reused without redirect", logging.F("request_id", string(e.RequestID)))
		s.mu.Unlock()
		return
	default:
		cur = &cdpRequest{actor: string(e.RequestID)}
		s.inflight[e.RequestID] = cur
	}
	cur.url = e.Request.URL + e.Request.URLFragment
	cur.offset = offset(e.WallTime, e.Timestamp)
	at := cur.wall(e.Timestamp)
	actor := cur.actor
	s.mu.Unlock()

	cause := netevent.CauseFromResourceType(string(e.Type))
	s.sink.Emit(netevent.Event{
		Kind:    netevent.KindRequest,
		ActorID: actor,
		Time:    at,
		Request: &netevent.RequestInfo{
			Method:       e.Request.Method,
			URL:          e.Request.URL + e.Request.URLFragment,
			Headers:      toHeader(e.Request.Headers),
			Cause:        cause,
			IsXHR:        cause == netevent.CauseXHR || cause == netevent.CauseFetch,
			RedirectFrom: redirectFrom,
		},
	})
}

func (s *CDPSource) onResponseReceived(e *network.EventResponseReceived) {
	s.mu.Lock()
	cur, ok := s.inflight[e.RequestID]
	if !ok {
		s.mu.Unlock()
		return
	}
	actor, u, at := cur.actor, cur.url, cur.wall(e.Timestamp)
	s.mu.Unlock()
	s.emitResponse(actor, u, e.Response, at)
}

func (s *CDPSource) emitResponse(actor, rawURL string, r *network.Response, at time.Time) {
	if r == nil {
		return
	}
	info := &netevent.ResponseInfo{
		Status:      int(r.Status),
		StatusText:  r.StatusText,
		HTTPVersion: strings.ToUpper(r.Protocol),
		Headers:     toHeader(r.Headers),
		MimeType:    r.MimeType,
		FromCache:   r.FromDiskCache,
	}
	if r.RemoteIPAddress != "" {
		info.RemoteAddr = net.JoinHostPort(strings.Trim(r.RemoteIPAddress, "[]"), strconv.FormatInt(r.RemotePort, 10))
	}
	if scheme, _, found := strings.Cut(rawURL, "://"); found {
		info.Security.Scheme = strings.ToLower(scheme)
	}
	info.Security.Reported = string(r.SecurityState)
	if d := r.SecurityDetails; d != nil {
		info.Security.ProtocolName = d.Protocol
		info.Security.CipherName = d.Cipher
		info.Security.PeerCertSubject = d.SubjectName
		info.Security.PeerCertIssuer = d.Issuer
	}
	s.sink.Emit(netevent.Event{Kind: netevent.KindResponse, ActorID: actor, Time: at, Response: info})
}

func (s *CDPSource) onLoadingFinished(e *network.EventLoadingFinished) {
	s.mu.Lock()
	cur, ok := s.inflight[e.RequestID]
	delete(s.inflight, e.RequestID)
	s.mu.Unlock()
	if !ok {
		return
	}
	s.sink.Emit(netevent.Event{
		Kind:    netevent.KindFinished,
		ActorID: cur.actor,
		Time:    cur.wall(e.Timestamp),
		Finished: &netevent.FinishedInfo{
			TransferredSize: int64(e.EncodedDataLength),
			ContentSize:     int64(e.EncodedDataLength),
		},
	})
}

func (s *CDPSource) onLoadingFailed(e *network.EventLoadingFailed) {
	s.mu.Lock()
	cur, ok := s.inflight[e.RequestID]
	delete(s.inflight, e.RequestID)
	s.mu.Unlock()
	if !ok {
		return
	}
	f := &netevent.FailedInfo{ErrorText: e.ErrorText, Canceled: e.Canceled}
	if isCertError(e.ErrorText) {
		f.Security = &netevent.SecurityInfo{HandshakeError: e.ErrorText}
	}
	s.sink.Emit(netevent.Event{Kind: netevent.KindFailed, ActorID: cur.actor, Time: cur.wall(e.Timestamp), Failed: f})
}

// isCertError matches Chromium net error names for TLS failures.
func isCertError(text string) bool {
	return strings.Contains(text, "ERR_CERT_") || strings.Contains(text, "ERR_SSL_")
}

func offset(wall *cdp.TimeSinceEpoch, mono *cdp.MonotonicTime) time.Duration {
	if wall == nil || mono == nil {
		return 0
	}
	return wall.Time().Sub(mono.Time())
}

func (r *cdpRequest) wall(mono *cdp.MonotonicTime) time.Time {
	if mono == nil || r.offset == 0 {
		return time.Now()
	}
	return mono.Time().Add(r.offset)
}

func toHeader(h network.Headers) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		switch vv := v.(type) {
		case string:
			// DevTools joins repeated headers with newlines
			for _, line := range strings.Split(vv, "\n") {
				out.Add(k, line)
			}
		default:
			out.Add(k, fmt.Sprint(vv))
		}
	}
	return out
}
