package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	sessionHeader   = "Mcp-Session-Id"
	shutdownTimeout = 10 * time.Second
)

// sessions tracks the IDs handed out on initialize.
type sessions struct {
	mu  sync.RWMutex
	ids map[string]time.Time
}

func newSessions() *sessions {
	return &sessions{ids: make(map[string]time.Time)}
}

func (s *sessions) open() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.ids[id] = time.Now()
	s.mu.Unlock()
	return id
}

func (s *sessions) known(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *sessions) close(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	delete(s.ids, id)
	return ok
}

// Handler returns the HTTP transport:
//
//	POST   /mcp      one JSON-RPC message, JSON response
//	DELETE /mcp      end the session named by Mcp-Session-Id
//	GET    /healthz  liveness probe
//	GET    /metrics  Prometheus metrics, when WithMetrics is set
//
// Requests that carry an Mcp-Session-Id must name a live session. Requests
// without one are served statelessly.
func (s *Server) Handler() http.Handler {
	sess := newSessions()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("POST /mcp", func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(sessionHeader); id != "" && !sess.known(id) {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxLineBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}

		var req MCPRequest
		if err := json.Unmarshal(body, &req); err != nil {
			s.logger.Warn("failed to parse request", zap.Error(err))
			writeJSON(w, http.StatusOK, errorResponse(nil, codeParseError, "Parse error", err.Error()), s.logger)
			return
		}

		resp := s.handleRequest(r.Context(), &req)
		if resp == nil {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		if req.Method == "initialize" && resp.Error == nil {
			w.Header().Set(sessionHeader, sess.open())
		}
		writeJSON(w, http.StatusOK, resp, s.logger)
	})

	mux.HandleFunc("DELETE /mcp", func(w http.ResponseWriter, r *http.Request) {
		if !sess.close(r.Header.Get(sessionHeader)) {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// ListenAndServe runs the HTTP transport on addr until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       90 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("starting HTTP transport", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down HTTP transport")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
