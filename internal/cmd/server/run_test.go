package serverrun

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/eventbus/internal/config"
	grpcserver "github.com/rzbill/eventbus/internal/server/grpc"
	pebblestore "github.com/rzbill/eventbus/internal/storage/pebble"
	logpkg "github.com/rzbill/eventbus/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestGetenvDefault(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		envValue string
		expected string
	}{
		{name: "environment variable set", key: "BUS_TEST_VAR", envValue: "env_value", expected: "env_value"},
		{name: "environment variable empty", key: "BUS_TEST_VAR_EMPTY", envValue: "", expected: "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.envValue)
			if got := getenvDefault(tt.key, "default"); got != tt.expected {
				t.Errorf("getenvDefault(%s) = %s, expected %s", tt.key, got, tt.expected)
			}
		})
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.ThroughputWindowMs = 0
	err := Run(context.Background(), Options{
		DataDir:  t.TempDir(),
		HTTPAddr: "127.0.0.1:0",
		GRPCAddr: "127.0.0.1:0",
		Fsync:    pebblestore.FsyncModeAlways,
		Config:   cfg,
		Logger:   logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{})),
	})
	if err == nil {
		t.Fatalf("expected config validation error")
	}
}

type lockedBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func TestRunServesBothTransports(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type addrs struct{ http, grpc net.Addr }
	ready := make(chan addrs, 1)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			DataDir:     t.TempDir(),
			HTTPAddr:    "127.0.0.1:0",
			GRPCAddr:    "127.0.0.1:0",
			Fsync:       pebblestore.FsyncModeNever,
			Config:      cfgpkg.Default(),
			Logger:      logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{})),
			TraceWriter: &lockedBuffer{},
			Ready:       func(h, g net.Addr) { ready <- addrs{h, g} },
		})
	}()

	var a addrs
	select {
	case a = <-ready:
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatalf("servers did not start")
	}

	resp, err := http.Get("http://" + a.http.String() + "/v1/healthz")
	if err != nil {
		t.Fatalf("http health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("http health status: %d", resp.StatusCode)
	}

	conn, err := grpc.NewClient(a.grpc.String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc client: %v", err)
	}
	defer conn.Close()
	out := new(structpb.Struct)
	rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
	defer rcancel()
	if err := conn.Invoke(rctx, grpcserver.FullMethod(grpcserver.MethodHealth), &structpb.Struct{}, out); err != nil {
		t.Fatalf("grpc health: %v", err)
	}
	if out.AsMap()["status"] != "ok" {
		t.Fatalf("grpc health: %v", out.AsMap())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("run did not stop")
	}
}
