package grpcserver

import (
	"context"
	"net"
	"time"

	bussvc "github.com/rzbill/eventbus/internal/services/bus"
	"github.com/rzbill/eventbus/pkg/id"
	logpkg "github.com/rzbill/eventbus/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RequestIDKey is the metadata key carrying the request id.
const RequestIDKey = "x-request-id"

// Server owns the gRPC server instance.
type Server struct {
	grpc   *grpc.Server
	lis    net.Listener
	logger logpkg.Logger
}

// New constructs a gRPC server and registers the EventBus service.
func New(svc *bussvc.Service, logger logpkg.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	s := &Server{logger: logger.WithComponent("grpc")}
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(s.logUnary)}, opts...)
	s.grpc = grpc.NewServer(opts...)
	s.grpc.RegisterService(&ServiceDesc, &busServer{svc: svc})
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	s.logger.Info("grpc listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

// logUnary tags each call with a request id and logs its outcome.
func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	rid := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(RequestIDKey); len(v) > 0 {
			rid = v[0]
		}
	}
	if rid == "" {
		rid = id.New()
	}
	_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDKey, rid))
	ctx = logpkg.ContextWithRequestID(ctx, rid)
	ctx = logpkg.ContextWithOperation(ctx, info.FullMethod)

	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	l := s.logger.WithContext(ctx)
	fields := []logpkg.Field{logpkg.Str("code", code.String()), logpkg.Duration("elapsed", time.Since(start))}
	switch code {
	case codes.OK, codes.InvalidArgument:
		l.Debug("rpc", fields...)
	default:
		l.Warn("rpc failed", fields...)
	}
	return resp, err
}
