package model

import (
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/raysh454/netmon/internal/netevent"
	"github.com/raysh454/netmon/internal/security"
)

// Request is one row of the request list. Status is kept as a string, the
// way the panel shows it ("404"); it is empty until a response arrives.
type Request struct {
	ID     string         `json:"id"`
	Seq    int64          `json:"seq"`
	Method string         `json:"method"`
	URL    string         `json:"url"`
	Domain string         `json:"domain"`
	Cause  netevent.Cause `json:"cause"`
	IsXHR  bool           `json:"is_xhr"`

	Status        string `json:"status,omitempty"`
	StatusText    string `json:"status_text,omitempty"`
	HTTPVersion   string `json:"http_version,omitempty"`
	RemoteAddress string `json:"remote_address,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`

	SecurityState security.State        `json:"security_state"`
	SecurityInfo  netevent.SecurityInfo `json:"security_info"`

	RequestHeaders  http.Header `json:"request_headers,omitempty"`
	ResponseHeaders http.Header `json:"response_headers,omitempty"`

	StartedAt       time.Time     `json:"started_at"`
	TotalTime       time.Duration `json:"total_time"`
	TransferredSize int64         `json:"transferred_size"`
	ContentSize     int64         `json:"content_size"`
	FromCache       bool          `json:"from_cache,omitempty"`

	Complete bool   `json:"complete"`
	Error    string `json:"error,omitempty"`
	Canceled bool   `json:"canceled,omitempty"`

	RedirectedFrom string `json:"redirected_from,omitempty"`
	RedirectedTo   string `json:"redirected_to,omitempty"`
}

// Clone returns a deep copy so store snapshots never share header maps.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	cp := *r
	cp.RequestHeaders = r.RequestHeaders.Clone()
	cp.ResponseHeaders = r.ResponseHeaders.Clone()
	return &cp
}

// StatusCode parses Status; 0 when there is none.
func (r *Request) StatusCode() int {
	n := 0
	for _, c := range r.Status {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// FileName is the last path segment plus query, as the "File" column shows it.
func (r *Request) FileName() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = "/"
	}
	if u.RawQuery != "" {
		name += "?" + u.RawQuery
	}
	return name
}

// DomainOf returns the registrable domain (eTLD+1) of rawURL, or its host
// for IP addresses, single-label hosts and anything publicsuffix rejects.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	if !strings.Contains(host, ".") || strings.Trim(host, "0123456789.") == "" || strings.Contains(host, ":") {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// RedirectChain returns the hops id belongs to, origin first.
func RedirectChain(byID map[string]*Request, id string) []*Request {
	cur, ok := byID[id]
	if !ok {
		return nil
	}
	back := map[string]bool{cur.ID: true}
	for cur.RedirectedFrom != "" {
		prev, ok := byID[cur.RedirectedFrom]
		if !ok || back[prev.ID] {
			break
		}
		back[prev.ID] = true
		cur = prev
	}

	chain := []*Request{cur}
	visited := map[string]bool{cur.ID: true}
	for cur.RedirectedTo != "" {
		next, ok := byID[cur.RedirectedTo]
		if !ok || visited[next.ID] {
			break
		}
		visited[next.ID] = true
		chain = append(chain, next)
		cur = next
	}
	return chain
}
