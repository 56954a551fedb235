package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jpalmerr/pulsewatch/internal/metrics"
	"github.com/jpalmerr/pulsewatch/internal/push"
	"github.com/jpalmerr/pulsewatch/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// maxPushBody caps POST /api/push bodies.
	maxPushBody = 64 << 10
)

// ErrCodeUnauthorized is returned in a push Result when the bearer token
// does not match.
const ErrCodeUnauthorized = "unauthorized"

// Server handles HTTP requests for the push API and the status feed.
type Server struct {
	store      store.Store
	pusher     push.Handler
	port       int
	token      string
	httpServer *http.Server
	logger     *slog.Logger

	// done is closed once the server has shut down
	done chan struct{}
}

// Option configures a [Server].
type Option func(*Server)

// WithPushToken requires "Authorization: Bearer <token>" on POST /api/push.
// An empty token disables the check.
func WithPushToken(token string) Option {
	return func(s *Server) {
		s.token = token
	}
}

// NewServer creates a new HTTP [Server] listening on port.
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, pusher push.Handler, port int, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		store:  st,
		pusher: pusher,
		port:   port,
		logger: logger.With("component", "http"),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(recovery(s.logger))
	r.Use(requestLogger(s.logger))
	r.Use(middleware.StripSlashes)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/push", s.handlePush)
		r.Get("/entities", s.handleEntities)
		r.Get("/sse", s.handleSSE)
	})
	return r
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE streams end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// Done is closed after the server started by Start has shut down. It never
// closes if Start was not called or failed.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// handlePush decodes a push payload and hands it to the ingestor.
func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.writeResult(w, http.StatusUnauthorized, push.Result{Sent: []string{}, Error: ErrCodeUnauthorized})
		return
	}

	p, err := push.DecodePayload(http.MaxBytesReader(w, r.Body, maxPushBody))
	if err != nil {
		s.logger.Info("malformed push body", "request_id", requestIDFrom(r.Context()), "error", err)
		s.writeResult(w, http.StatusBadRequest, push.Result{Sent: []string{}, Error: push.ErrCodeInvalidPayload})
		return
	}

	res := s.pusher.HandlePush(r.Context(), p)
	s.writeResult(w, statusFor(res), res)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(s.token)) == 1
}

// statusFor maps a push result onto an HTTP status code.
func statusFor(res push.Result) int {
	if res.OK {
		return http.StatusOK
	}
	switch res.Error {
	case push.ErrCodeEntityRequired, push.ErrCodeInvalidPayload:
		return http.StatusBadRequest
	case push.ErrCodeChannelNotConfigured:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeResult(w http.ResponseWriter, status int, res push.Result) {
	if res.Sent == nil {
		res.Sent = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		s.logger.Error("failed to encode push response", "error", err)
	}
}

// handleEntities returns every current snapshot as JSON.
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(s.store.GetAll()); err != nil {
		s.logger.Error("failed to encode entities response", "error", err)
	}
}

// handleSSE streams snapshot updates via Server-Sent Events.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// some ResponseWriter implementations cannot set deadlines
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Debug("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	for _, snap := range s.store.GetAll() {
		data, err := json.Marshal(snap)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and, via BaseContext, on shutdown
			return
		}
	}
}
