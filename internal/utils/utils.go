// Package utils holds URL helpers shared by capture sources and the monitor.
package utils

import (
	"errors"
	"net"
	"net/url"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var (
	ErrEmptyURL    = errors.New("empty url")
	ErrMissingHost = errors.New("missing host")
)

// CanonicalizeOptions controls optional canonicalization policies.
type CanonicalizeOptions struct {
	StripTrailingSlash bool   // treat /a and /a/ the same (root "/" is kept)
	DefaultScheme      string // scheme assumed for schemeless input; empty means required
	KeepQueryOrder     bool   // leave the query string untouched instead of sorting it
}

// Canonicalize returns a deterministic form of raw so that two spellings of
// the same resource compare equal: lower-case scheme and host, punycode
// host, default ports dropped, cleaned path, no userinfo, no fragment and
// (unless KeepQueryOrder) sorted query parameters.
func Canonicalize(raw string, opts CanonicalizeOptions) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}
	if opts.DefaultScheme != "" && !strings.Contains(raw, "://") {
		raw = opts.DefaultScheme + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", ErrMissingHost
	}

	u.Scheme = strings.ToLower(u.Scheme)

	host := strings.ToLower(u.Hostname())
	if puny, err := idna.Lookup.ToASCII(host); err == nil {
		host = puny
	}
	port := u.Port()
	switch {
	case port == "", isDefaultPort(u.Scheme, port):
		if strings.Contains(host, ":") {
			u.Host = "[" + host + "]"
		} else {
			u.Host = host
		}
	default:
		u.Host = net.JoinHostPort(host, port)
	}

	u.User = nil
	u.Fragment = ""
	u.RawFragment = ""

	cleanPath := path.Clean(u.Path)
	if cleanPath == "." {
		cleanPath = "/"
	}
	if strings.HasSuffix(u.Path, "/") && cleanPath != "/" && !opts.StripTrailingSlash {
		cleanPath += "/"
	}
	u.Path = cleanPath
	u.RawPath = ""

	if !opts.KeepQueryOrder && u.RawQuery != "" {
		u.RawQuery = sortedQuery(u.Query())
	}
	return u.String(), nil
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" || scheme == "ws") && port == "80" ||
		(scheme == "https" || scheme == "wss") && port == "443"
}

func sortedQuery(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := url.Values{}
	for _, k := range keys {
		values := append([]string(nil), q[k]...)
		sort.Strings(values)
		for _, v := range values {
			ordered.Add(k, v)
		}
	}
	return ordered.Encode()
}

// ResolveLocation resolves a Location header value against the URL of the
// response that carried it.
//
//	ResolveLocation("http://a.test/x/y", "z")               → "http://a.test/x/z"
//	ResolveLocation("http://a.test/x/y", "https://b.test/") → "https://b.test/"
func ResolveLocation(base, location string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(location))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(ref).String(), nil
}
