// Package httpapi serves the selection service as JSON over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ppiankov/factorwatch/internal/engine"
	"github.com/ppiankov/factorwatch/internal/ratelimit"
	"github.com/ppiankov/factorwatch/internal/service"
	"github.com/ppiankov/factorwatch/internal/wire"
)

// DefaultMaxBodyBytes caps request bodies when Config leaves it unset.
const DefaultMaxBodyBytes = 1 << 20

// Config holds HTTP server configuration.
type Config struct {
	Addr         string
	MaxBodyBytes int64
	// RateLimit bounds /v1 requests per client address. Zero disables it.
	RateLimit ratelimit.Limit
	Logger    *zap.Logger
}

// Server is the HTTP front end.
type Server struct {
	svc     service.Selector
	cfg     Config
	logger  *zap.Logger
	router  chi.Router
	limiter *ratelimit.Limiter
}

// New builds the router. Routes:
//
//	POST /v1/decide
//	POST /v1/derive
//	GET  /v1/factors
//	GET  /healthz
func New(svc service.Selector, cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, cfg: cfg, logger: logger, limiter: ratelimit.New(cfg.RateLimit, nil)}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.limitRequestBody)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "factorwatch"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Post("/decide", s.handleDecide)
		r.Post("/derive", s.handleDerive)
		r.Get("/factors", s.handleFactors)
	})
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) String() string { return "http" }

// Serve listens on cfg.Addr until ctx is cancelled. It satisfies
// suture.Service.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("http listening", zap.String("addr", s.cfg.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if !decodeBody(w, r, &req) {
		return
	}

	d, err := s.svc.Decide(r.Context(), req)
	if d == nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wire.NewDecideResponse(d, err))
}

func (s *Server) handleDerive(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	if !decodeBody(w, r, &req) {
		return
	}
	c, adj := s.svc.Derive(req)
	writeJSON(w, http.StatusOK, wire.DeriveResponse{Constraints: c, Adjustments: adj})
}

func (s *Server) handleFactors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, wire.FactorsResponse{Factors: s.svc.Factors()})
}

func statusFor(err error) int {
	switch wire.Classify(err) {
	case wire.KindInvalid:
		return http.StatusBadRequest
	case wire.KindConfiguration:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) limitRequestBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			key = r.RemoteAddr
		}
		if res := s.limiter.Allow(key); res.Exceeded {
			s.logger.Warn("rate limited", zap.String("client", key), zap.String("reason", res.Reason))
			w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds()+0.999)))
			writeError(w, http.StatusTooManyRequests, res.Reason)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)))
	})
}
