// Package har exports captured requests as an HTTP Archive (HAR 1.2).
package har

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/raysh454/netmon/internal/model"
)

const Version = "1.2"

// File is the top-level HAR document.
type File struct {
	Log Log `json:"log"`
}

type Log struct {
	// Version of the format, always 1.2.
	Version string `json:"version"`

	// Creator names the exporting application.
	Creator Creator `json:"creator"`

	// Entries in start order.
	Entries []Entry `json:"entries"`
}

type Creator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Entry describes one request-response pair.
type Entry struct {
	// Start of the request (ISO 8601)
	Start string `json:"startedDateTime"`

	// Total time in milliseconds, Time=SUM(Timings.*)
	Time float64 `json:"time"`

	Request  Request  `json:"request"`
	Response Response `json:"response"`

	// Cache is always empty; the monitor does not inspect caches.
	Cache struct{} `json:"cache"`

	Timings Timings `json:"timings"`

	// ServerIP contains the connected server address.
	ServerIP string `json:"serverIPAddress,omitempty"`

	// SecurityState is the monitor's classification of the transport.
	SecurityState string `json:"_securityState,omitempty"`

	// ID and RedirectedFrom carry the monitor's request ids so redirect
	// chains survive the export.
	ID             string `json:"_id,omitempty"`
	RedirectedFrom string `json:"_redirectedFrom,omitempty"`
}

type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Request struct {
	Method      string      `json:"method"`
	URL         string      `json:"url"`
	HTTPVersion string      `json:"httpVersion"`
	Cookies     []NameValue `json:"cookies"`
	Headers     []NameValue `json:"headers"`
	QueryString []NameValue `json:"queryString"`
	HeadersSize int         `json:"headersSize"`
	BodySize    int         `json:"bodySize"`
}

type Response struct {
	Status      int         `json:"status"`
	StatusText  string      `json:"statusText"`
	HTTPVersion string      `json:"httpVersion"`
	Cookies     []NameValue `json:"cookies"`
	Headers     []NameValue `json:"headers"`
	Content     Content     `json:"content"`
	RedirectURL string      `json:"redirectURL"`
	HeadersSize int         `json:"headersSize"`
	BodySize    int64       `json:"bodySize"`
	// Error is set for requests that never got a response.
	Error string `json:"_error,omitempty"`
}

type Content struct {
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// Timings in milliseconds; -1 means not available.
type Timings struct {
	Send    float64 `json:"send"`
	Wait    float64 `json:"wait"`
	Receive float64 `json:"receive"`
}

// Export converts requests to a HAR log, ordered by start time.
func Export(requests []*model.Request, creator Creator) *File {
	sorted := append([]*model.Request(nil), requests...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].StartedAt.Equal(sorted[j].StartedAt) {
			return sorted[i].StartedAt.Before(sorted[j].StartedAt)
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	f := &File{Log: Log{Version: Version, Creator: creator, Entries: make([]Entry, 0, len(sorted))}}
	for _, r := range sorted {
		f.Log.Entries = append(f.Log.Entries, entry(r))
	}
	return f
}

func entry(r *model.Request) Entry {
	ms := float64(r.TotalTime) / float64(time.Millisecond)
	version := r.HTTPVersion
	if version == "" {
		version = "HTTP/1.1"
	}
	status, _ := strconv.Atoi(r.Status)

	e := Entry{
		Start: r.StartedAt.UTC().Format(time.RFC3339Nano),
		Time:  ms,
		Request: Request{
			Method:      r.Method,
			URL:         r.URL,
			HTTPVersion: version,
			Cookies:     cookies(r.RequestHeaders, "Cookie"),
			Headers:     nameValues(r.RequestHeaders),
			QueryString: query(r.URL),
			HeadersSize: -1,
			BodySize:    -1,
		},
		Response: Response{
			Status:      status,
			StatusText:  r.StatusText,
			HTTPVersion: version,
			Cookies:     cookies(r.ResponseHeaders, "Set-Cookie"),
			Headers:     nameValues(r.ResponseHeaders),
			Content:     Content{Size: r.ContentSize, MimeType: r.MimeType},
			RedirectURL: r.ResponseHeaders.Get("Location"),
			HeadersSize: -1,
			BodySize:    r.ContentSize,
			Error:       r.Error,
		},
		Timings:        Timings{Send: 0, Wait: ms, Receive: 0},
		SecurityState:  string(r.SecurityState),
		ID:             r.ID,
		RedirectedFrom: r.RedirectedFrom,
	}
	if !r.Complete {
		e.Response.BodySize = -1
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddress); err == nil {
		e.ServerIP = host
	} else {
		e.ServerIP = r.RemoteAddress
	}
	return e
}

func nameValues(h http.Header) []NameValue {
	out := make([]NameValue, 0, len(h))
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		for _, v := range h[k] {
			out = append(out, NameValue{Name: k, Value: v})
		}
	}
	return out
}

func query(raw string) []NameValue {
	out := make([]NameValue, 0)
	u, err := url.Parse(raw)
	if err != nil {
		return out
	}
	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range q[k] {
			out = append(out, NameValue{Name: k, Value: v})
		}
	}
	return out
}

func cookies(h http.Header, name string) []NameValue {
	out := make([]NameValue, 0)
	for _, line := range h.Values(name) {
		for _, part := range strings.Split(line, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok || k == "" {
				continue
			}
			out = append(out, NameValue{Name: k, Value: v})
			if name == "Set-Cookie" {
				// attributes follow the first pair
				break
			}
		}
	}
	return out
}

// Write encodes f as indented JSON.
func Write(w io.Writer, f *File) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("write har: %w", err)
	}
	return nil
}
