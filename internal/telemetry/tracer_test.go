package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInit_DisabledIsNoop(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := initWithWriter("svc", Config{Enabled: false}, &buf, discardLogger())
	if err != nil {
		t.Fatalf("initWithWriter: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no export output, got %q", buf.String())
	}
}

func TestInit_ExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Enabled: true, PrettyPrint: false}
	shutdown, err := initWithWriter("reliability-test", cfg, &buf, discardLogger())
	if err != nil {
		t.Fatalf("initWithWriter: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "detect")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "detect") {
		t.Fatalf("exported spans missing span name: %q", out)
	}
	if !strings.Contains(out, "reliability-test") {
		t.Fatalf("exported spans missing service name: %q", out)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.Enabled || !cfg.PrettyPrint {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}
