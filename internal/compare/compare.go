// Package compare diffs two captured requests, e.g. the two hops of a
// redirect or a request against its replay.
package compare

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/raysh454/netmon/internal/model"
)

const redacted = "[REDACTED]"

var sensitiveHeaders = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"www-authenticate":    true,
	"x-api-key":           true,
	"x-auth-token":        true,
}

// Chunk is one changed run of text.
type Chunk struct {
	Type    string `json:"type"` // "added" or "removed"
	Content string `json:"content"`
}

type Diff struct {
	BaseID    string  `json:"base_id"`
	HeadID    string  `json:"head_id"`
	Identical bool    `json:"identical"`
	Chunks    []Chunk `json:"chunks"`
}

// Requests diffs the text rendering of base and head. Credentials in
// headers are redacted before diffing.
func Requests(base, head *model.Request) *Diff {
	d := &Diff{Chunks: make([]Chunk, 0)}
	if base != nil {
		d.BaseID = base.ID
	}
	if head != nil {
		d.HeadID = head.ID
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(Text(base, true), Text(head, true))
	// Line mode without semantic cleanup: every chunk is whole lines.
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for _, df := range diffs {
		var typ string
		switch df.Type {
		case diffmatchpatch.DiffInsert:
			typ = "added"
		case diffmatchpatch.DiffDelete:
			typ = "removed"
		case diffmatchpatch.DiffEqual:
			continue
		}
		if strings.TrimSpace(df.Text) != "" {
			d.Chunks = append(d.Chunks, Chunk{Type: typ, Content: df.Text})
		}
	}
	d.Identical = len(d.Chunks) == 0
	return d
}

// Text renders r as request line, request headers, status line and
// response headers, one per line, headers sorted.
func Text(r *model.Request, redact bool) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", r.Method, r.URL)
	writeHeaders(&b, NormalizeHeaders(r.RequestHeaders, redact))
	if r.Status != "" {
		fmt.Fprintf(&b, "\n%s %s %s\n", r.HTTPVersion, r.Status, r.StatusText)
		writeHeaders(&b, NormalizeHeaders(r.ResponseHeaders, redact))
	}
	if r.SecurityState != "" {
		fmt.Fprintf(&b, "\nsecurity: %s\n", r.SecurityState)
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "error: %s\n", r.Error)
	}
	return b.String()
}

func writeHeaders(b *strings.Builder, h map[string][]string) {
	names := make([]string, 0, len(h))
	for k := range h {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		for _, v := range h[k] {
			fmt.Fprintf(b, "%s: %s\n", k, v)
		}
	}
}

// NormalizeHeaders lower-cases names, trims and sorts values and drops empty
// ones. With redact set, credential-bearing headers are replaced by a
// placeholder.
func NormalizeHeaders(h http.Header, redact bool) map[string][]string {
	out := make(map[string][]string, len(h))
	for name, values := range h {
		key := strings.ToLower(strings.TrimSpace(name))
		if redact && IsSensitiveHeader(key) {
			out[key] = []string{redacted}
			continue
		}
		var kept []string
		for _, v := range values {
			if v = strings.TrimSpace(v); v != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			continue
		}
		sort.Strings(kept)
		out[key] = append(out[key], kept...)
	}
	return out
}

func IsSensitiveHeader(name string) bool {
	return sensitiveHeaders[strings.ToLower(name)]
}
