package client

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/rzbill/eventbus/internal/cmd/client/transports"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// AddrFunc provides the gRPC server address (e.g., from env or flag).
type AddrFunc func() string

// GRPCAddrFromEnv returns the gRPC server address from BUS_GRPC or a default.
func GRPCAddrFromEnv() string {
	if addr := os.Getenv("BUS_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:50051"
}

// dialer returns a gRPC dialer with insecure transport for local/dev.
func dialer(addr AddrFunc) func(context.Context) (*grpc.ClientConn, error) {
	return func(context.Context) (*grpc.ClientConn, error) {
		return grpc.NewClient(addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
}

func newTransport(addr AddrFunc) transports.BusTransport {
	return transports.NewGrpcTransport(dialer(addr))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
