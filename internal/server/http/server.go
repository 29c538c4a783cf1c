package httpserver

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rzbill/eventbus/internal/server/http/controllers"
	bussvc "github.com/rzbill/eventbus/internal/services/bus"
	"github.com/rzbill/eventbus/pkg/id"
	logpkg "github.com/rzbill/eventbus/pkg/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type Server struct {
	svc    *bussvc.Service
	srv    *http.Server
	lis    net.Listener
	logger logpkg.Logger
}

// New builds the HTTP gateway. Every request is traced, tagged with a
// request id and logged.
func New(svc *bussvc.Service, logger logpkg.Logger) *Server {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	logger = logger.WithComponent("http")
	mux := http.NewServeMux()
	controllers.NewControllerRegistry(svc).RegisterAllRoutes(mux)

	s := &Server{svc: svc, logger: logger}
	handler := s.withRequestLog(mux)
	s.srv = &http.Server{
		Handler:           otelhttp.NewHandler(handler, "eventbus.http"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done, then shuts down gracefully. Request
// contexts derive from ctx so open SSE streams end with it.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }
	s.logger.Info("http listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()
	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(cctx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the bound address once listening.
func (s *Server) Addr() net.Addr {
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

func (s *Server) Close() {
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack lets the WebSocket upgrade take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(RequestIDHeader)
		if rid == "" {
			rid = id.New()
		}
		w.Header().Set(RequestIDHeader, rid)
		ctx := logpkg.ContextWithRequestID(r.Context(), rid)
		ctx = logpkg.ContextWithOperation(ctx, r.Method+" "+r.URL.Path)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		l := s.logger.WithContext(ctx)
		fields := []logpkg.Field{logpkg.Int("status", rec.status), logpkg.Duration("elapsed", time.Since(start))}
		if rec.status >= http.StatusInternalServerError {
			l.Warn("request failed", fields...)
			return
		}
		l.Debug("request", fields...)
	})
}
