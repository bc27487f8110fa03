// Package fixtures serves the pages and endpoints the monitor checks run
// against: a page that issues XHRs, a page that sends a beacon, an endpoint
// that redirects plain HTTP to HTTPS and a beacon target that does not exist.
package fixtures

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/raysh454/netmon/internal/logging"
)

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

// Server routes fixture requests. One Server may back both a plain and a TLS
// listener.
type Server struct {
	cfg    Config
	logger logging.Logger
	pages  map[string]Page

	mu        sync.RWMutex
	httpsBase string
}

func NewServer(cfg Config, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	pages := make(map[string]Page)
	for _, p := range GetAllPages() {
		pages[p.Path] = p
	}
	s := &Server{
		cfg:    cfg,
		logger: logger.With(logging.F("component", "fixtures")),
		pages:  pages,
	}
	switch {
	case cfg.HTTPSBaseURL != "":
		s.httpsBase = cfg.HTTPSBaseURL
	case cfg.HTTPSPort != 0:
		s.httpsBase = "https://localhost:" + strconv.Itoa(cfg.HTTPSPort)
	}
	return s
}

// SetHTTPSBaseURL changes the redirect target, for listeners whose address
// is only known after they start.
func (s *Server) SetHTTPSBaseURL(u string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.httpsBase = strings.TrimRight(u, "/")
}

func (s *Server) HTTPSBaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.httpsBase
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	for path := range s.pages {
		mux.HandleFunc(path, s.pageHandler(path))
	}
	mux.HandleFunc(HTTPSRedirectPath, s.httpsRedirectHandler)
	mux.HandleFunc(SimplePath, s.simpleHandler)
	mux.HandleFunc("/{$}", s.indexHandler)
	// anything else, the beacon target included, is a 404
	return s.logRequests(mux)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("fixture request",
			logging.F("method", r.Method),
			logging.F("path", r.URL.Path),
			logging.F("tls", r.TLS != nil))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) pageHandler(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := s.pages[path]
		w.Header().Set("Content-Type", p.ContentType)
		w.Header().Set("Cache-Control", "no-store")
		_, _ = io.WriteString(w, p.Body)
	}
}

// httpsRedirectHandler sends plain-text requests to the same path on the
// HTTPS listener and answers HTTPS requests directly.
func (s *Server) httpsRedirectHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	base := s.HTTPSBaseURL()
	if r.TLS == nil && base != "" {
		target := base + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Page was accessed over HTTPS!")
}

// simpleHandler answers with text/plain; ?sts=<code> picks the status.
func (s *Server) simpleHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	status := http.StatusOK
	if sts := r.URL.Query().Get("sts"); sts != "" {
		if n, err := strconv.Atoi(sts); err == nil && n >= 100 && n <= 599 {
			status = n
		}
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, "Hello world!")
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(w, GetAllPages()); err != nil {
		s.logger.Warn("render index", logging.Err(err))
	}
}

// Start serves plain HTTP on cfg.Port and, with tlsCfg set, HTTPS on
// cfg.HTTPSPort. It blocks until a listener fails.
func (s *Server) Start(tlsCfg *tls.Config) error {
	h := s.Handler()
	errs := make(chan error, 2)

	if tlsCfg != nil && s.cfg.HTTPSPort != 0 {
		srv := &http.Server{Addr: fmt.Sprintf(":%d", s.cfg.HTTPSPort), Handler: h, TLSConfig: tlsCfg}
		go func() { errs <- srv.ListenAndServeTLS("", "") }()
		s.logger.Info("fixture https listener starting", logging.F("addr", srv.Addr))
	}
	srv := &http.Server{Addr: fmt.Sprintf(":%d", s.cfg.Port), Handler: h}
	go func() { errs <- srv.ListenAndServe() }()
	s.logger.Info("fixture http listener starting", logging.F("addr", srv.Addr))

	err := <-errs
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Local is a pair of in-process fixture listeners: plain HTTP and HTTPS.
type Local struct {
	Server   *Server
	HTTPURL  string
	HTTPSURL string

	plain  *httptest.Server
	secure *httptest.Server
}

// StartLocal starts both listeners on loopback ports. The redirect endpoint
// on the plain listener points at the TLS one.
func StartLocal(logger logging.Logger) *Local {
	s := NewServer(Config{}, logger)
	h := s.Handler()
	secure := httptest.NewTLSServer(h)
	s.SetHTTPSBaseURL(secure.URL)
	plain := httptest.NewServer(h)
	return &Local{
		Server:   s,
		HTTPURL:  plain.URL,
		HTTPSURL: secure.URL,
		plain:    plain,
		secure:   secure,
	}
}

// RootCAs trusts the TLS listener's certificate.
func (l *Local) RootCAs() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(l.secure.Certificate())
	return pool
}

// SPKIHash is the base64 SHA-256 of the TLS listener's public key, the form
// Chrome's --ignore-certificate-errors-spki-list takes.
func (l *Local) SPKIHash() string {
	sum := sha256.Sum256(l.secure.Certificate().RawSubjectPublicKeyInfo)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// URL joins a fixture path onto the plain listener.
func (l *Local) URL(path string) string { return l.HTTPURL + path }

func (l *Local) Close() {
	l.plain.Close()
	l.secure.Close()
}
