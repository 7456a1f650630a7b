package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type fakeExporter struct {
	exported []sdktrace.ReadOnlySpan
	shutdown bool
}

func (f *fakeExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	f.exported = append(f.exported, spans...)
	return nil
}

func (f *fakeExporter) Shutdown(_ context.Context) error {
	f.shutdown = true
	return nil
}

func restoreGlobalProvider(t *testing.T) {
	t.Helper()
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
}

func TestInitUsesConfiguredEndpointAndResourceAttributes(t *testing.T) {
	restoreGlobalProvider(t)
	originalVersion := ServiceVersion
	ServiceVersion = "v1.2.3-test"
	defer func() { ServiceVersion = originalVersion }()

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://ignored:4318")
	t.Setenv("INTERP_ENV", "prod")

	fake := &fakeExporter{}
	capturedEndpoint := ""
	restoreFactory := setOTLPExporterFactoryForTest(func(_ context.Context, endpoint string) (sdktrace.SpanExporter, error) {
		capturedEndpoint = endpoint
		return fake, nil
	})
	defer restoreFactory()

	shutdown, err := Init(context.Background(), Options{Endpoint: " http://collector:4318 ", TraceDir: t.TempDir()})
	if err != nil {
		t.Fatalf("init telemetry: %v", err)
	}

	if capturedEndpoint != "http://collector:4318" {
		t.Fatalf("endpoint = %q, want collector endpoint", capturedEndpoint)
	}

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "startup")
	span.End()

	shutdown()
	if !fake.shutdown {
		t.Fatal("expected exporter shutdown on telemetry shutdown")
	}
	if len(fake.exported) == 0 {
		t.Fatal("expected at least one exported span")
	}

	attrs := fake.exported[0].Resource().Attributes()
	assertResourceAttribute(t, attrs, "service.name", ServiceName)
	assertResourceAttribute(t, attrs, "service.version", "v1.2.3-test")
	assertResourceAttribute(t, attrs, "environment", "prod")
}

func TestInitFallsBackToEnvironmentEndpoint(t *testing.T) {
	restoreGlobalProvider(t)
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://env-collector:4318")

	capturedEndpoint := ""
	restoreFactory := setOTLPExporterFactoryForTest(func(_ context.Context, endpoint string) (sdktrace.SpanExporter, error) {
		capturedEndpoint = endpoint
		return &fakeExporter{}, nil
	})
	defer restoreFactory()

	shutdown, err := Init(context.Background(), Options{TraceDir: t.TempDir()})
	if err != nil {
		t.Fatalf("init telemetry: %v", err)
	}
	defer shutdown()

	if capturedEndpoint != "http://env-collector:4318" {
		t.Fatalf("endpoint = %q, want env endpoint", capturedEndpoint)
	}
}

func TestInitWritesSpansToFileWithoutEndpoint(t *testing.T) {
	restoreGlobalProvider(t)
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	dir := t.TempDir()

	restoreFactory := setOTLPExporterFactoryForTest(func(_ context.Context, _ string) (sdktrace.SpanExporter, error) {
		t.Fatal("OTLP exporter must not be created without an endpoint")
		return nil, nil
	})
	defer restoreFactory()

	shutdown, err := Init(context.Background(), Options{TraceDir: dir})
	if err != nil {
		t.Fatalf("init telemetry: %v", err)
	}

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "session.start")
	span.End()
	shutdown()

	names := spanNamesInDir(t, dir)
	if len(names) != 1 || names[0] != "session.start" {
		t.Fatalf("file spans = %v, want [session.start]", names)
	}
}

func TestInitFallsBackToFileWhenCollectorUnavailable(t *testing.T) {
	restoreGlobalProvider(t)
	dir := t.TempDir()

	restoreFactory := setOTLPExporterFactoryForTest(func(_ context.Context, _ string) (sdktrace.SpanExporter, error) {
		return nil, errors.New("dial failed")
	})
	defer restoreFactory()

	shutdown, err := Init(context.Background(), Options{Endpoint: "http://down:4318", TraceDir: dir})
	if err != nil {
		t.Fatalf("init telemetry: %v", err)
	}

	_, span := otel.Tracer("telemetry-test").Start(context.Background(), "fallback")
	span.End()
	shutdown()

	if names := spanNamesInDir(t, dir); len(names) != 1 || names[0] != "fallback" {
		t.Fatalf("file spans = %v, want [fallback]", names)
	}
}

func TestInitFailsWhenTraceDirUnusable(t *testing.T) {
	restoreGlobalProvider(t)
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	shutdown, err := Init(context.Background(), Options{TraceDir: filepath.Join(blocker, "logs")})
	if err == nil {
		t.Fatal("expected trace directory error")
	}
	if shutdown != nil {
		t.Fatal("shutdown must be nil when init fails")
	}
}

func TestBatchConfigConstants(t *testing.T) {
	if BatchSize != 512 {
		t.Fatalf("BatchSize = %d, want 512", BatchSize)
	}
	if BatchTimeout != 5*time.Second {
		t.Fatalf("BatchTimeout = %s, want 5s", BatchTimeout)
	}
}

func TestResolveEnvironmentFallback(t *testing.T) {
	t.Setenv("INTERP_ENV", "")
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("ENV", "Staging")

	if got := resolveEnvironment(); got != "staging" {
		t.Fatalf("environment = %q, want staging", got)
	}
}

func assertResourceAttribute(t *testing.T, attrs []attribute.KeyValue, key, want string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != want {
				t.Fatalf("resource attr %s = %q, want %q", key, attr.Value.AsString(), want)
			}
			return
		}
	}
	t.Fatalf("resource attribute %q not found", key)
}

func spanNamesInDir(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "traces-*.jsonl"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("trace files = %v (%v), want exactly one", matches, err)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read trace file: %v", err)
	}

	var names []string
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var span struct {
			Name string `json:"Name"`
		}
		if err := json.Unmarshal([]byte(line), &span); err != nil {
			t.Fatalf("decode span line %q: %v", line, err)
		}
		names = append(names, span.Name)
	}
	return names
}
