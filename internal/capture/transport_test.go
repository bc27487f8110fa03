package capture_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/raysh454/netmon/internal/capture"
	"github.com/raysh454/netmon/internal/netevent"
	"github.com/raysh454/netmon/internal/testutil"
)

func sequentialIDs() func() string {
	ids := []string{"a", "b", "c", "d"}
	i := 0
	return func() string {
		id := ids[i]
		i++
		return id
	}
}

func TestTransport_RedirectToHTTPS(t *testing.T) {
	t.Parallel()
	secure := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "ok")
	}))
	defer secure.Close()
	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, secure.URL+"/final", http.StatusFound)
	}))
	defer plain.Close()

	rec := &testutil.EventRecorder{}
	client := &http.Client{Transport: &capture.Transport{
		Base:  secure.Client().Transport,
		Sink:  rec,
		NewID: sequentialIDs(),
	}}

	ctx := capture.WithCause(context.Background(), netevent.CauseXHR)
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, plain.URL+"/start", nil)
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Fatalf("unexpected body %q", body)
	}

	want := []string{
		"a:request", "a:response", "a:finished",
		"b:request", "b:response", "b:finished",
	}
	if got := rec.Kinds(); !reflect.DeepEqual(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}

	reqs := rec.Of(netevent.KindRequest)
	if reqs[0].Request.Cause != netevent.CauseXHR || !reqs[0].Request.IsXHR {
		t.Errorf("cause not carried: %+v", reqs[0].Request)
	}
	if reqs[1].Request.RedirectFrom != "a" {
		t.Errorf("second hop RedirectFrom = %q, want a", reqs[1].Request.RedirectFrom)
	}
	if !strings.HasPrefix(reqs[1].Request.URL, "https://") {
		t.Errorf("second hop url = %s", reqs[1].Request.URL)
	}

	resps := rec.Of(netevent.KindResponse)
	if resps[0].Response.Status != http.StatusFound || resps[0].Response.Security.TLSVersion != 0 {
		t.Errorf("first response: %+v", resps[0].Response)
	}
	if resps[0].Response.Security.Scheme != "http" {
		t.Errorf("first scheme = %q", resps[0].Response.Security.Scheme)
	}
	sec := resps[1].Response.Security
	if sec.Scheme != "https" || sec.TLSVersion == 0 || sec.CipherName == "" {
		t.Errorf("second response security: %+v", sec)
	}
	if resps[1].Response.RemoteAddr == "" {
		t.Error("remote address not captured")
	}

	fin := rec.Of(netevent.KindFinished)
	if fin[1].Finished.ContentSize != 2 {
		t.Errorf("content size = %d, want 2", fin[1].Finished.ContentSize)
	}
	if fin[1].Finished.TransferredSize <= fin[1].Finished.ContentSize {
		t.Errorf("transferred size should include headers: %+v", fin[1].Finished)
	}
}

func TestTransport_HandshakeFailure(t *testing.T) {
	t.Parallel()
	secure := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer secure.Close()

	rec := &testutil.EventRecorder{}
	client := &http.Client{Transport: &capture.Transport{Base: &http.Transport{}, Sink: rec}}

	_, err := client.Get(secure.URL)
	if err == nil {
		t.Fatal("expected certificate error")
	}

	failed := rec.Of(netevent.KindFailed)
	if len(failed) != 1 {
		t.Fatalf("expected 1 failed event, got %v", rec.Kinds())
	}
	if failed[0].Failed.Security == nil || failed[0].Failed.Security.HandshakeError == "" {
		t.Fatalf("handshake failure not flagged: %+v", failed[0].Failed)
	}
}

func TestTransport_FinishedOnClose(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	rec := &testutil.EventRecorder{}
	client := &http.Client{Transport: &capture.Transport{Sink: rec}}

	ctx := capture.WithCause(context.Background(), netevent.CauseBeacon)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, srv.URL+"/beacon_request", strings.NewReader("x"))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Of(netevent.KindFinished)) != 0 {
		t.Fatal("finished before body was consumed")
	}
	resp.Body.Close()
	resp.Body.Close()

	if n := len(rec.Of(netevent.KindFinished)); n != 1 {
		t.Fatalf("expected exactly one finished event, got %d", n)
	}
	r := rec.Of(netevent.KindRequest)[0].Request
	if r.Method != http.MethodPost || r.Cause != netevent.CauseBeacon || r.IsXHR {
		t.Errorf("request info: %+v", r)
	}
	if got := rec.Of(netevent.KindResponse)[0].Response.Status; got != http.StatusNotFound {
		t.Errorf("status = %d", got)
	}
}

func TestCauseFrom_Default(t *testing.T) {
	t.Parallel()
	if got := capture.CauseFrom(context.Background()); got != netevent.CauseOther {
		t.Fatalf("CauseFrom = %q", got)
	}
}
