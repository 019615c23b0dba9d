// Package httpapi exposes the adapter over plain HTTP for hosts that cannot
// speak stdio MCP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golovatskygroup/billy-mcp/internal/adapter"
	"github.com/golovatskygroup/billy-mcp/pkg/mcp"
)

// Options configures the HTTP surface.
type Options struct {
	Adapter *adapter.Adapter
	// Token, when set, is required as a bearer token on /mcp routes.
	Token  string
	Logger *slog.Logger
}

// Server holds the configured router.
type Server struct {
	adapter *adapter.Adapter
	token   string
	logger  *slog.Logger
	router  *chi.Mux
}

// CallRequest is the body of POST /mcp/call.
type CallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  int    `json:"code,omitempty"`
}

// New constructs a Server with middleware and routes configured.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		adapter: opts.Adapter,
		token:   opts.Token,
		logger:  logger,
		router:  chi.NewRouter(),
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/mcp", func(r chi.Router) {
		r.Use(s.auth)
		r.Get("/tools", s.handleListTools)
		r.Post("/call", s.handleCall)
		r.Get("/resources", s.handleListResources)
		r.Get("/resources/read", s.handleReadResource)
	})

	return s
}

// Router exposes the root HTTP handler.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.token {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	descriptors := s.adapter.Advertise()
	tools := make([]mcp.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		tools = append(tools, mcp.Tool{Name: d.Name, Description: d.Description, InputSchema: d.InputSchema})
	}
	writeJSON(w, http.StatusOK, mcp.ListToolsResult{Tools: tools})
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid json"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing tool name"})
		return
	}

	result, err := s.adapter.Invoke(r.Context(), req.Name, req.Arguments)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

func (s *Server) handleListResources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, mcp.ListResourcesResult{Resources: s.adapter.Resources()})
}

func (s *Server) handleReadResource(w http.ResponseWriter, r *http.Request) {
	block, err := s.adapter.Describe(r.Context(), r.URL.Query().Get("uri"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mcp.ReadResourceResult{Contents: []mcp.ContentBlock{block}})
}

// statusFor maps an adapter error kind onto an HTTP status.
func statusFor(kind adapter.Kind) int {
	switch kind {
	case adapter.KindUnknownTool, adapter.KindUnknownResource:
		return http.StatusNotFound
	case adapter.KindInvalidArguments:
		return http.StatusBadRequest
	case adapter.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func writeError(w http.ResponseWriter, err error) {
	var ae *adapter.Error
	if !errors.As(err, &ae) {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, statusFor(ae.Kind), errorBody{Error: ae.Message, Kind: ae.Kind.String(), Code: ae.Kind.Code()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
