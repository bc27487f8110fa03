package store

import (
	"net/url"
	"strings"

	"github.com/raysh454/netmon/internal/model"
	"github.com/raysh454/netmon/internal/netevent"
)

type FilterType string

const (
	FilterAll    FilterType = "all"
	FilterHTML   FilterType = "html"
	FilterCSS    FilterType = "css"
	FilterJS     FilterType = "js"
	FilterXHR    FilterType = "xhr"
	FilterFonts  FilterType = "fonts"
	FilterImages FilterType = "images"
	FilterMedia  FilterType = "media"
	FilterWS     FilterType = "ws"
	FilterOther  FilterType = "other"
)

var filterTypes = []FilterType{
	FilterAll, FilterHTML, FilterCSS, FilterJS, FilterXHR,
	FilterFonts, FilterImages, FilterMedia, FilterWS, FilterOther,
}

// FilterTypes lists every filter button, "all" first.
func FilterTypes() []FilterType { return append([]FilterType(nil), filterTypes...) }

// ParseFilterType maps a filter button name to its FilterType.
func ParseFilterType(s string) (FilterType, bool) {
	t := FilterType(strings.ToLower(strings.TrimSpace(s)))
	return t, validFilterType(t)
}

func validFilterType(t FilterType) bool {
	for _, ft := range filterTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// Category is the single filter bucket r falls into.
func Category(r *model.Request) FilterType {
	mime := strings.ToLower(r.MimeType)
	switch {
	case r.IsXHR || r.Cause == netevent.CauseXHR || r.Cause == netevent.CauseFetch || r.Cause == netevent.CauseBeacon:
		return FilterXHR
	case r.Cause == netevent.CauseWebSocket:
		return FilterWS
	case strings.Contains(mime, "/html"):
		return FilterHTML
	case strings.Contains(mime, "/css") || r.Cause == netevent.CauseStylesheet:
		return FilterCSS
	case strings.Contains(mime, "javascript") || strings.Contains(mime, "ecmascript") || r.Cause == netevent.CauseScript:
		return FilterJS
	case strings.HasPrefix(mime, "font/") || strings.Contains(mime, "font-") || r.Cause == netevent.CauseFont:
		return FilterFonts
	case strings.HasPrefix(mime, "image/") || r.Cause == netevent.CauseImage:
		return FilterImages
	case strings.HasPrefix(mime, "audio/") || strings.HasPrefix(mime, "video/") || r.Cause == netevent.CauseMedia:
		return FilterMedia
	default:
		return FilterOther
	}
}

func matchesTypes(f Filter, r *model.Request) bool {
	if len(f.Types) == 0 || f.Types[FilterAll] {
		return true
	}
	return f.Types[Category(r)]
}

// matchesText applies the free-text box. Whitespace separates terms, all of
// which must match. A term is either a URL substring or a "flag:value" pair
// (method, status-code, domain, scheme, is:running); a leading '-' negates.
func matchesText(text string, r *model.Request) bool {
	for _, term := range strings.Fields(text) {
		negate := false
		if strings.HasPrefix(term, "-") && len(term) > 1 {
			negate = true
			term = term[1:]
		}
		if matchTerm(term, r) == negate {
			return false
		}
	}
	return true
}

func matchTerm(term string, r *model.Request) bool {
	flag, value, hasFlag := strings.Cut(term, ":")
	if hasFlag && value != "" {
		switch strings.ToLower(flag) {
		case "method":
			return strings.EqualFold(r.Method, value)
		case "status-code":
			return r.Status == value
		case "domain":
			return strings.Contains(strings.ToLower(hostOf(r.URL)), strings.ToLower(value))
		case "scheme":
			return strings.EqualFold(schemeOf(r.URL), value)
		case "is":
			if strings.EqualFold(value, "running") {
				return !r.Complete
			}
			return false
		}
	}
	return strings.Contains(strings.ToLower(r.URL), strings.ToLower(term))
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

func schemeOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Scheme
}
