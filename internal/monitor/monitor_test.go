package monitor

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/raysh454/netmon/internal/netevent"
	"github.com/raysh454/netmon/internal/security"
	"github.com/raysh454/netmon/internal/store"
)

func newTestMonitor(t *testing.T) (*Monitor, *store.Store) {
	t.Helper()
	st := store.New()
	st.Dispatch(store.BatchEnable(false))
	t.Cleanup(st.Close)
	return New(st, nil, Options{}), st
}

var t0 = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func request(id, method, url string, at time.Time) netevent.Event {
	return netevent.Event{
		Kind:    netevent.KindRequest,
		ActorID: id,
		Time:    at,
		Request: &netevent.RequestInfo{Method: method, URL: url, Cause: netevent.CauseXHR, IsXHR: true},
	}
}

func response(id string, status int, h http.Header, sec netevent.SecurityInfo, at time.Time) netevent.Event {
	return netevent.Event{
		Kind:     netevent.KindResponse,
		ActorID:  id,
		Time:     at,
		Response: &netevent.ResponseInfo{Status: status, Headers: h, Security: sec},
	}
}

func finished(id string, at time.Time) netevent.Event {
	return netevent.Event{
		Kind:     netevent.KindFinished,
		ActorID:  id,
		Time:     at,
		Finished: &netevent.FinishedInfo{TransferredSize: 120, ContentSize: 20},
	}
}

var tls13 = netevent.SecurityInfo{Scheme: "https", TLSVersion: 0x0304, CipherSuite: 0x1301}

func TestMonitor_RequestLifecycle(t *testing.T) {
	t.Parallel()
	m, st := newTestMonitor(t)

	m.Emit(request("a", "post", "http://example.com/beacon_request", t0))
	r, ok := store.GetRequestByID(st.GetState(), "a")
	if !ok {
		t.Fatal("request not added")
	}
	if r.Method != "POST" || r.Seq != 1 || r.Domain != "example.com" {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.SecurityState != security.StateInsecure {
		t.Fatalf("expected insecure before response, got %s", r.SecurityState)
	}

	h := http.Header{"Content-Type": []string{"text/html; charset=utf-8"}}
	m.Emit(response("a", 404, h, netevent.SecurityInfo{}, t0.Add(10*time.Millisecond)))
	m.Emit(finished("a", t0.Add(25*time.Millisecond)))

	r, _ = store.GetRequestByID(st.GetState(), "a")
	if r.Status != "404" {
		t.Errorf("status = %q, want 404", r.Status)
	}
	if r.MimeType != "text/html" {
		t.Errorf("mime = %q", r.MimeType)
	}
	if !r.Complete || r.TotalTime != 25*time.Millisecond || r.TransferredSize != 120 {
		t.Errorf("completion not recorded: %+v", r)
	}
	if got := m.Completed(); got != 1 {
		t.Errorf("completed = %d, want 1", got)
	}
}

func TestMonitor_RedirectByLocation(t *testing.T) {
	t.Parallel()
	m, st := newTestMonitor(t)

	m.Emit(request("a", "GET", "http://example.com/sjs?redirect=1", t0))
	m.Emit(response("a", 302, http.Header{"Location": []string{"https://example.com:443/sjs"}}, netevent.SecurityInfo{}, t0))
	m.Emit(finished("a", t0))
	m.Emit(request("b", "GET", "https://EXAMPLE.com/sjs", t0.Add(time.Millisecond)))
	m.Emit(response("b", 200, nil, tls13, t0.Add(2*time.Millisecond)))
	m.Emit(finished("b", t0.Add(3*time.Millisecond)))

	reqs := store.GetSortedRequests(st.GetState())
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].ID != "a" || reqs[0].RedirectedTo != "b" {
		t.Errorf("first hop not linked: %+v", reqs[0])
	}
	if reqs[1].RedirectedFrom != "a" {
		t.Errorf("second hop not linked: %+v", reqs[1])
	}
	if reqs[0].SecurityState != security.StateInsecure || reqs[1].SecurityState != security.StateSecure {
		t.Errorf("states = %s, %s", reqs[0].SecurityState, reqs[1].SecurityState)
	}
}

func TestMonitor_RedirectExplicit(t *testing.T) {
	t.Parallel()
	m, st := newTestMonitor(t)

	m.Emit(request("a", "GET", "http://example.com/", t0))
	m.Emit(response("a", 301, http.Header{"Location": []string{"/elsewhere"}}, netevent.SecurityInfo{}, t0))
	m.Emit(finished("a", t0))

	ev := request("b", "GET", "http://example.com/somewhere-else", t0)
	ev.Request.RedirectFrom = "a"
	m.Emit(ev)

	r, _ := store.GetRequestByID(st.GetState(), "b")
	if r.RedirectedFrom != "a" {
		t.Fatalf("explicit link ignored: %+v", r)
	}
	// the pending Location entry was consumed by the explicit link
	m.Emit(request("c", "GET", "http://example.com/elsewhere", t0))
	r, _ = store.GetRequestByID(st.GetState(), "c")
	if r.RedirectedFrom != "" {
		t.Fatalf("unexpected link for c: %q", r.RedirectedFrom)
	}
}

func TestMonitor_RedirectExpires(t *testing.T) {
	t.Parallel()
	st := store.New()
	st.Dispatch(store.BatchEnable(false))
	m := New(st, nil, Options{RedirectTTL: time.Second})

	m.Emit(request("a", "GET", "http://example.com/", t0))
	m.Emit(response("a", 302, http.Header{"Location": []string{"https://example.com/"}}, netevent.SecurityInfo{}, t0))
	m.Emit(request("b", "GET", "https://example.com/", t0.Add(2*time.Second)))

	r, _ := store.GetRequestByID(st.GetState(), "b")
	if r.RedirectedFrom != "" {
		t.Fatalf("expired redirect still linked")
	}
}

func TestMonitor_PausedDropsRequests(t *testing.T) {
	t.Parallel()
	m, st := newTestMonitor(t)

	m.Pause()
	if !m.Paused() {
		t.Fatal("expected paused")
	}
	m.Emit(request("a", "GET", "http://example.com/", t0))
	m.Emit(finished("a", t0))
	if n := st.GetState().Requests.Size(); n != 0 {
		t.Fatalf("paused monitor recorded %d requests", n)
	}
	if m.Completed() != 0 {
		t.Fatal("dropped request counted as completed")
	}

	m.Resume()
	m.Emit(request("b", "GET", "http://example.com/", t0))
	if n := st.GetState().Requests.Size(); n != 1 {
		t.Fatalf("expected 1 request after resume, got %d", n)
	}
}

func TestMonitor_Clear(t *testing.T) {
	t.Parallel()
	m, st := newTestMonitor(t)

	m.Emit(request("a", "GET", "http://example.com/", t0))
	m.Clear()
	if n := st.GetState().Requests.Size(); n != 0 {
		t.Fatalf("expected empty list, got %d", n)
	}
	// late events for a cleared request are dropped
	m.Emit(finished("a", t0))
	if m.Completed() != 0 {
		t.Fatal("cleared request counted")
	}
}

func TestMonitor_HandshakeFailureIsBroken(t *testing.T) {
	t.Parallel()
	m, st := newTestMonitor(t)

	m.Emit(request("a", "GET", "https://self-signed.example/", t0))
	m.Emit(netevent.Event{
		Kind:    netevent.KindFailed,
		ActorID: "a",
		Time:    t0,
		Failed: &netevent.FailedInfo{
			ErrorText: "tls: failed to verify certificate",
			Security:  &netevent.SecurityInfo{HandshakeError: "x509: certificate signed by unknown authority"},
		},
	})

	r, _ := store.GetRequestByID(st.GetState(), "a")
	if r.SecurityState != security.StateBroken {
		t.Fatalf("state = %s, want broken", r.SecurityState)
	}
	if !r.Complete || r.Error == "" {
		t.Fatalf("failure not recorded: %+v", r)
	}
}

func TestWaitForNetworkEvents(t *testing.T) {
	t.Parallel()
	m, _ := newTestMonitor(t)

	m.Emit(request("old", "GET", "http://example.com/", t0))
	m.Emit(finished("old", t0))

	w := m.WaitForNetworkEvents(2)
	m.Emit(request("a", "GET", "http://example.com/a", t0))
	m.Emit(finished("a", t0))

	select {
	case <-w.Done():
		t.Fatal("waiter released after 1 of 2 events")
	default:
	}

	m.Emit(request("b", "GET", "http://example.com/b", t0))
	m.Emit(finished("b", t0))
	// a second completion event for the same request does not count
	m.Emit(finished("b", t0))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func TestWaitForNetworkEvents_Timeout(t *testing.T) {
	t.Parallel()
	m, _ := newTestMonitor(t)

	w := m.WaitForNetworkEvents(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestWaitForNetworkEvents_Zero(t *testing.T) {
	t.Parallel()
	m, _ := newTestMonitor(t)
	if err := m.WaitForNetworkEvents(0).Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
}
