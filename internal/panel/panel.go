// Package panel renders the request list the way the network panel shows it
// and queries the rendered markup.
package panel

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/raysh454/netmon/internal/model"
	"github.com/raysh454/netmon/internal/security"
	"github.com/raysh454/netmon/internal/store"
)

const (
	RowSelector          = ".request-list-item"
	SecurityIconSelector = ".requests-security-state-icon"
)

var pageTmpl = template.Must(template.New("panel").Parse(panelHTML))

type row struct {
	ID            string
	Selected      bool
	Method        string
	Status        string
	StatusText    string
	URL           string
	File          string
	Domain        string
	Type          string
	Transferred   string
	Size          string
	Duration      string
	SecurityState string
	SecurityClass string
	Pending       bool
	Failed        bool
}

type view struct {
	Rows    []row
	Empty   bool
	Summary string
	Filter  string
}

func newView(st store.State) view {
	reqs := store.GetDisplayedRequests(st)
	v := view{
		Rows:    make([]row, 0, len(reqs)),
		Empty:   st.Requests.Size() == 0,
		Summary: summaryText(store.GetSummary(st)),
		Filter:  st.Filter.Text,
	}
	for _, r := range reqs {
		v.Rows = append(v.Rows, newRow(r, r.ID == st.SelectedID))
	}
	return v
}

func newRow(r *model.Request, selected bool) row {
	state := r.SecurityState
	if state == "" {
		state = security.StateUnknown
	}
	rw := row{
		ID:            r.ID,
		Selected:      selected,
		Method:        r.Method,
		Status:        r.Status,
		StatusText:    r.StatusText,
		URL:           r.URL,
		File:          r.FileName(),
		Domain:        r.Domain,
		Type:          string(store.Category(r)),
		SecurityState: string(state),
		SecurityClass: security.CSSClass(state),
		Pending:       !r.Complete,
		Failed:        r.Error != "",
	}
	switch {
	case r.FromCache:
		rw.Transferred = "cached"
	case r.Complete:
		rw.Transferred = FormatSize(r.TransferredSize)
	}
	if r.Complete {
		rw.Size = FormatSize(r.ContentSize)
		rw.Duration = FormatDuration(r.TotalTime)
	}
	return rw
}

// Render writes the request list as an HTML document.
func Render(w io.Writer, st store.State) error {
	if err := pageTmpl.Execute(w, newView(st)); err != nil {
		return fmt.Errorf("render panel: %w", err)
	}
	return nil
}

// Document renders st and parses the result for DOM queries.
func Document(st store.State) (*goquery.Document, error) {
	var buf bytes.Buffer
	if err := Render(&buf, st); err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return nil, fmt.Errorf("parse panel: %w", err)
	}
	return doc, nil
}

// SecurityIcons returns the security icon of every row, in display order.
func SecurityIcons(doc *goquery.Document) *goquery.Selection {
	return doc.Find(SecurityIconSelector)
}

// Rows returns every request row, in display order.
func Rows(doc *goquery.Document) *goquery.Selection {
	return doc.Find(RowSelector)
}

// HasClass reports whether the first element of sel carries class.
func HasClass(sel *goquery.Selection, class string) bool {
	return sel.Length() > 0 && sel.First().HasClass(class)
}

// RowText returns the trimmed text of the cell matching selector in a row.
func RowText(rowSel *goquery.Selection, selector string) string {
	return strings.TrimSpace(rowSel.Find(selector).First().Text())
}

// FormatSize prints n the way the size columns do.
func FormatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.2f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
	}
}

func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%d ms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2f s", d.Seconds())
}

func summaryText(s store.Summary) string {
	if s.Count == 0 {
		return "No requests"
	}
	noun := "requests"
	if s.Count == 1 {
		noun = "request"
	}
	return fmt.Sprintf("%d %s, %s / %s transferred, Finish: %s",
		s.Count, noun, FormatSize(s.ContentSize), FormatSize(s.TransferredSize), FormatDuration(s.Elapsed))
}

const panelHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>Network</title>
<style>
  .requests-list-status[data-code^="4"], .requests-list-status[data-code^="5"] { color: #d70022; }
  .request-list-item.selected { background: #0074e8; color: #fff; }
  .security-state-secure::before { content: "\1F512"; }
  .security-state-insecure::before { content: "\26A0"; }
  .security-state-broken::before { content: "\2716"; }
  .security-state-weak::before { content: "\26A0"; }
</style>
</head>
<body>
<div class="requests-list-contents" data-filter="{{.Filter}}">
{{if .Empty}}
  <div class="request-list-empty-notice">Perform a request or reload the page to see detailed information about network activity.</div>
{{end}}
{{range .Rows}}
  <div class="request-list-item{{if .Selected}} selected{{end}}{{if .Pending}} pending{{end}}{{if .Failed}} failed{{end}}" data-id="{{.ID}}">
    <div class="requests-list-column requests-list-status" data-code="{{.Status}}" title="{{.Status}} {{.StatusText}}">{{.Status}}</div>
    <div class="requests-list-column requests-list-method">{{.Method}}</div>
    <div class="requests-list-column requests-list-file" title="{{.URL}}">{{.File}}</div>
    <div class="requests-list-column requests-list-domain">
      <span class="requests-security-state-icon {{.SecurityClass}}" title="{{.SecurityState}}"></span>
      <span class="requests-list-domain-name">{{.Domain}}</span>
    </div>
    <div class="requests-list-column requests-list-url">{{.URL}}</div>
    <div class="requests-list-column requests-list-type">{{.Type}}</div>
    <div class="requests-list-column requests-list-transferred">{{.Transferred}}</div>
    <div class="requests-list-column requests-list-size">{{.Size}}</div>
    <div class="requests-list-column requests-list-duration">{{.Duration}}</div>
  </div>
{{end}}
</div>
<div class="requests-list-network-summary">{{.Summary}}</div>
</body>
</html>
`
