package model_test

import (
	"net/http"
	"testing"

	"github.com/raysh454/netmon/internal/model"
)

func TestRequest_StatusCode(t *testing.T) {
	t.Parallel()
	cases := map[string]int{"404": 404, "200": 200, "": 0, "2xx": 0}
	for in, want := range cases {
		r := &model.Request{Status: in}
		if got := r.StatusCode(); got != want {
			t.Errorf("StatusCode(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestRequest_FileName(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"http://example.com/a/beacon_request":  "beacon_request",
		"http://example.com/":                  "/",
		"http://example.com":                   "/",
		"https://example.com/x/y.sjs?a=1&b=2":  "y.sjs?a=1&b=2",
	}
	for in, want := range cases {
		r := &model.Request{URL: in}
		if got := r.FileName(); got != want {
			t.Errorf("FileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDomainOf(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"https://www.example.co.uk/x": "example.co.uk",
		"http://a.b.example.com":      "example.com",
		"http://127.0.0.1:8080/":      "127.0.0.1",
		"http://localhost:3000/":      "localhost",
		"http://[::1]:80/":            "::1",
		"not a url\x00":               "",
	}
	for in, want := range cases {
		if got := model.DomainOf(in); got != want {
			t.Errorf("DomainOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRequest_CloneIsDeep(t *testing.T) {
	t.Parallel()
	orig := &model.Request{ID: "a", RequestHeaders: http.Header{"X": {"1"}}}
	cp := orig.Clone()
	cp.RequestHeaders.Set("X", "2")
	if orig.RequestHeaders.Get("X") != "1" {
		t.Fatal("clone shares header map with original")
	}
	if (*model.Request)(nil).Clone() != nil {
		t.Fatal("clone of nil should be nil")
	}
}

func TestRedirectChain(t *testing.T) {
	t.Parallel()
	a := &model.Request{ID: "a", RedirectedTo: "b"}
	b := &model.Request{ID: "b", RedirectedFrom: "a", RedirectedTo: "c"}
	c := &model.Request{ID: "c", RedirectedFrom: "b"}
	lone := &model.Request{ID: "lone"}
	byID := map[string]*model.Request{"a": a, "b": b, "c": c, "lone": lone}

	for _, start := range []string{"a", "b", "c"} {
		chain := model.RedirectChain(byID, start)
		if len(chain) != 3 || chain[0].ID != "a" || chain[2].ID != "c" {
			t.Errorf("chain from %s: unexpected %v", start, ids(chain))
		}
	}
	if chain := model.RedirectChain(byID, "lone"); len(chain) != 1 {
		t.Errorf("expected single hop, got %v", ids(chain))
	}
	if chain := model.RedirectChain(byID, "missing"); chain != nil {
		t.Errorf("expected nil for unknown id")
	}
}

func TestRedirectChain_Cycle(t *testing.T) {
	t.Parallel()
	a := &model.Request{ID: "a", RedirectedFrom: "b", RedirectedTo: "b"}
	b := &model.Request{ID: "b", RedirectedFrom: "a", RedirectedTo: "a"}
	chain := model.RedirectChain(map[string]*model.Request{"a": a, "b": b}, "a")
	if len(chain) != 2 {
		t.Fatalf("cycle should terminate with 2 hops, got %v", ids(chain))
	}
}

func ids(rs []*model.Request) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}
