package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/raysh454/netmon/internal/app"
	"github.com/raysh454/netmon/internal/logging"
	_ "github.com/raysh454/netmon/internal/server/docs" // swagger spec
	"github.com/raysh454/netmon/internal/store"
)

var ErrRequestNotFound = errors.New("request not found")

// Server is the HTTP + WebSocket API surface for netmon.
type Server struct {
	cfg      Config
	app      *app.Application
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
	hub      *Hub

	unsubscribe func()
	stopHub     context.CancelFunc
}

// NewServer wires routes onto cfg.App.
func NewServer(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server: nil application")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}

	r := chi.NewRouter()
	s := &Server{
		cfg:    cfg,
		app:    cfg.App,
		router: r,
		logger: logger,
		hub:    NewHub(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: restrict to the configured UI origin once there is one
				return true
			},
		},
	}

	hubCtx, cancel := context.WithCancel(context.Background())
	s.stopHub = cancel
	go s.hub.Run(hubCtx)
	s.unsubscribe = s.app.Store.Subscribe(s.hub.OnAction)

	s.routes()
	return s, nil
}

func (s *Server) store() *store.Store { return s.app.Store }

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/requests", s.optionsHandler("GET, DELETE"))
	r.Options("/batch", s.optionsHandler("POST"))
	r.Options("/recording", s.optionsHandler("POST"))
	r.Options("/sort", s.optionsHandler("POST"))
	r.Options("/filter", s.optionsHandler("POST"))
	r.Options("/select", s.optionsHandler("POST"))
	r.Options("/load", s.optionsHandler("POST"))
	r.Options("/checks", s.optionsHandler("GET, POST"))
	r.Options("/checks/{jobID}", s.optionsHandler("GET, DELETE"))

	r.Get("/health", s.handleHealth)

	// Request list
	r.Get("/requests", s.handleListRequests)
	r.Delete("/requests", s.handleClearRequests)
	r.Get("/requests/{id}", s.handleGetRequest)
	r.Get("/requests/{id}/redirects", s.handleRedirectChain)
	r.Get("/compare", s.handleCompare)
	r.Get("/har", s.handleHAR)
	r.Get("/panel", s.handlePanel)

	// Panel actions
	r.Post("/batch", s.handleBatch)
	r.Post("/recording", s.handleRecording)
	r.Post("/sort", s.handleSort)
	r.Post("/filter", s.handleFilter)
	r.Post("/select", s.handleSelect)
	r.Post("/load", s.handleLoad)

	// Archive
	r.Get("/sessions", s.handleListSessions)
	r.Get("/sessions/{id}/requests", s.handleSessionRequests)
	r.Get("/sessions/{id}/har", s.handleSessionHAR)

	// Check jobs
	r.Post("/checks", s.handleStartChecks)
	r.Get("/checks", s.handleListChecks)
	r.Get("/checks/{jobID}", s.handleGetCheck)
	r.Delete("/checks/{jobID}", s.handleCancelCheck)

	// WebSockets
	r.Get("/ws/events", s.handleEventsWS)
	r.Get("/ws/checks/{jobID}", s.handleChecksWS)

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close stops the event stream. The application is owned by the caller.
func (s *Server) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.stopHub != nil {
		s.stopHub()
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
