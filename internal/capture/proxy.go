package capture

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/raysh454/netmon/internal/cert"
	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/netevent"
)

// hop-by-hop headers are not forwarded in either direction.
var hopHeaders = []string{
	"Connection", "Proxy-Connection", "Keep-Alive", "Proxy-Authenticate",
	"Proxy-Authorization", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

type ProxyConfig struct {
	ListenAddr string
	// Timeout bounds one upstream round trip.
	Timeout time.Duration
	// Upstream is the transport used to reach origin servers. Its TLS
	// connection state feeds security classification.
	Upstream http.RoundTripper
}

// Proxy is a forward HTTP proxy that reports every request passing through
// it. CONNECT tunnels are intercepted with certificates from a cert.Manager
// so HTTPS requests are observed too. Redirects are passed back to the
// client, never followed.
type Proxy struct {
	cfg    ProxyConfig
	certs  *cert.Manager
	logger logging.Logger
	client *http.Client
	server *http.Server
}

func NewProxy(cfg ProxyConfig, certs *cert.Manager, sink netevent.Sink, logger logging.Logger) *Proxy {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger = logger.With(logging.F("component", "proxy"))
	p := &Proxy{
		cfg:    cfg,
		certs:  certs,
		logger: logger,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: &Transport{Base: cfg.Upstream, Sink: sink, Logger: logger},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	p.server = &http.Server{Handler: p, ReadHeaderTimeout: 10 * time.Second}
	return p
}

// ListenAndServe blocks until the proxy stops. It returns nil after Shutdown.
func (p *Proxy) ListenAndServe() error {
	ln, err := net.Listen("tcp", p.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("proxy listen: %w", err)
	}
	return p.Serve(ln)
}

func (p *Proxy) Serve(ln net.Listener) error {
	p.logger.Info("proxy listening", logging.F("addr", ln.Addr().String()))
	if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (p *Proxy) Shutdown(ctx context.Context) error {
	return p.server.Shutdown(ctx)
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.handleConnect(w, r)
		return
	}

	target := r.URL.String()
	if !r.URL.IsAbs() {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		target = scheme + "://" + r.Host + r.RequestURI
	}

	resp, err := p.forward(r.Context(), r, target)
	if err != nil {
		p.logger.Warn("upstream request failed", logging.F("url", target), logging.Err(err))
		http.Error(w, "proxy error: "+err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	removeHopHeaders(resp.Header)
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		p.logger.Debug("copy response body", logging.F("url", target), logging.Err(err))
	}
}

func (p *Proxy) forward(ctx context.Context, r *http.Request, target string) (*http.Response, error) {
	ctx = WithCause(ctx, causeFromFetchMetadata(r.Header))
	out, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		return nil, err
	}
	out.ContentLength = r.ContentLength
	out.Header = r.Header.Clone()
	removeHopHeaders(out.Header)
	return p.client.Do(out)
}

func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request) {
	if p.certs == nil {
		http.Error(w, "https interception disabled", http.StatusMethodNotAllowed)
		return
	}
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	clientConn, _, err := hijacker.Hijack()
	if err != nil {
		http.Error(w, "cannot hijack connection", http.StatusInternalServerError)
		return
	}
	defer clientConn.Close()

	if _, err := clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return
	}

	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
	}
	tlsConn := tls.Server(clientConn, p.certs.TLSConfig(host))
	defer tlsConn.Close()
	if err := tlsConn.HandshakeContext(r.Context()); err != nil {
		p.logger.Debug("client handshake failed", logging.F("host", r.Host), logging.Err(err))
		return
	}

	reader := bufio.NewReader(tlsConn)
	for {
		req, err := http.ReadRequest(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Debug("read tunneled request", logging.F("host", r.Host), logging.Err(err))
			}
			return
		}
		target := "https://" + r.Host + req.URL.RequestURI()
		if !p.serveTunneled(r.Context(), tlsConn, req, target) || req.Close {
			return
		}
	}
}

// serveTunneled answers one request read from an intercepted tunnel and
// reports whether the connection can be reused.
func (p *Proxy) serveTunneled(ctx context.Context, conn net.Conn, req *http.Request, target string) bool {
	resp, err := p.forward(ctx, req, target)
	if err != nil {
		p.logger.Warn("upstream request failed", logging.F("url", target), logging.Err(err))
		_, _ = io.WriteString(conn, "HTTP/1.1 502 Bad Gateway\r\nContent-Length: 0\r\nConnection: close\r\n\r\n")
		return false
	}
	defer resp.Body.Close()

	removeHopHeaders(resp.Header)
	if err := resp.Write(conn); err != nil {
		p.logger.Debug("write tunneled response", logging.F("url", target), logging.Err(err))
		return false
	}
	return true
}

func removeHopHeaders(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}

// causeFromFetchMetadata derives the initiator from Sec-Fetch-* request
// headers, which browsers attach to every request.
func causeFromFetchMetadata(h http.Header) netevent.Cause {
	dest := strings.ToLower(h.Get("Sec-Fetch-Dest"))
	switch dest {
	case "":
		return netevent.CauseOther
	case "empty":
		if strings.EqualFold(h.Get("Sec-Fetch-Mode"), "no-cors") && strings.HasPrefix(h.Get("Content-Type"), "text/ping") {
			return netevent.CauseBeacon
		}
		if h.Get("X-Requested-With") != "" {
			return netevent.CauseXHR
		}
		return netevent.CauseFetch
	case "style":
		return netevent.CauseStylesheet
	case "audio", "video", "track":
		return netevent.CauseMedia
	case "iframe", "frame":
		return netevent.CauseDocument
	default:
		return netevent.CauseFromResourceType(dest)
	}
}
