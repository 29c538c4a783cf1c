package otel

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestInitExportsSpansToWriter(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()
	shutdown, err := Init(ctx, Config{ServiceName: "eventbus-test", UseStdout: true, Writer: &buf})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	_, span := Tracer("test").Start(ctx, "publish")
	if !span.SpanContext().IsSampled() {
		t.Fatalf("expected sampled span")
	}
	span.End()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), `"Name":"publish"`) {
		t.Fatalf("span not exported: %s", buf.String())
	}
}
