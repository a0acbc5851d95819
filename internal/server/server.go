// Package server exposes the port registry over HTTP with JSON bodies.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/thatjpcsguy/portlease/internal/allocator"
	"github.com/thatjpcsguy/portlease/internal/netstate"
	"github.com/thatjpcsguy/portlease/internal/registry"
	"github.com/thatjpcsguy/portlease/internal/service"
)

const maxBodyBytes = 1 << 20

// Server routes HTTP requests to the service
type Server struct {
	svc        *service.Service
	log        *zap.Logger
	router     *mux.Router
	suggestMin int
	suggestMax int
}

// Option configures a Server
type Option func(*Server)

// WithSuggestRange sets the range used when /suggest omits min or max
func WithSuggestRange(lo, hi int) Option {
	return func(s *Server) {
		s.suggestMin, s.suggestMax = lo, hi
	}
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// New creates a server for svc
func New(svc *service.Service, opts ...Option) *Server {
	s := &Server{
		svc:        svc,
		log:        zap.NewNop(),
		router:     mux.NewRouter(),
		suggestMin: allocator.DefaultMin,
		suggestMax: allocator.DefaultMax,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.logRequests)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ports", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/ports", s.handleClear).Methods(http.MethodDelete)
	r.HandleFunc("/ports/system", s.handleSystem).Methods(http.MethodGet)
	r.HandleFunc("/ports/check/{port}", s.handleCheck).Methods(http.MethodGet)
	r.HandleFunc("/ports/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/ports/{port}/heartbeat", s.handleHeartbeat).Methods(http.MethodPost)
	r.HandleFunc("/ports/{port}", s.handleRelease).Methods(http.MethodDelete)
	r.HandleFunc("/suggest", s.handleSuggest).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no such endpoint"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Annotatef(err, "failed to listen on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", ln.Addr().String()))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Annotate(err, "failed to shut down")
	}
	if err := <-errc; err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type errorBody struct {
	Error        string                 `json:"error"`
	RegisteredBy *registry.Registration `json:"registeredBy,omitempty"`
}

type agentBody struct {
	Agent string `json:"agent"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.NotValid):
		return http.StatusBadRequest
	case errors.Is(err, errors.AlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errors.NotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.Forbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var conflict *registry.ConflictError
	if errors.As(err, &conflict) {
		body.RegisteredBy = &conflict.Existing
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}

	writeJSON(w, status, body)
}

// decode reads an optional JSON body. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return errors.NewNotValid(err, "malformed request body")
	}
	return nil
}

func portParam(r *http.Request) (int, error) {
	raw := mux.Vars(r)["port"]
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NotValidf("port %q", raw)
	}
	return port, registry.ValidatePort(port)
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.NotValidf("%s %q", key, raw)
	}
	return n, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	listing, err := s.svc.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	listing, err := s.svc.System(r.Context())
	if err != nil {
		if errors.Is(err, netstate.ErrScanUnavailable) {
			s.log.Warn("system scan unavailable", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	port, err := portParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.svc.Check(r.Context(), port)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	reg, err := s.svc.Register(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"registration": reg})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	port, err := portParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body agentBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	reg, err := s.svc.Heartbeat(r.Context(), port, body.Agent)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"port":          reg.Port,
		"expiresAt":     reg.ExpiresAt,
		"lastHeartbeat": reg.LastHeartbeat,
	})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	port, err := portParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	body := agentBody{Agent: r.URL.Query().Get("agent")}
	if err := decode(r, &body); err != nil {
		s.writeError(w, err)
		return
	}
	reg, err := s.svc.Release(r.Context(), port, body.Agent)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"released": reg})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.ClearAll(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": n})
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	lo, err := queryInt(r, "min", s.suggestMin)
	if err != nil {
		s.writeError(w, err)
		return
	}
	hi, err := queryInt(r, "max", s.suggestMax)
	if err != nil {
		s.writeError(w, err)
		return
	}
	suggestion, err := s.svc.Suggest(r.Context(), lo, hi)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
