package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func loadConfigFromString(t *testing.T, content string) *Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bench.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	return cfg
}

func validBenchmark() BenchmarkConfig {
	b := Default()
	b.Server = "tcp://localhost:1883"
	b.Topic = "bench"
	b.Message = "hello"
	b.Duration = 10 * time.Second
	return b
}

func TestLoadConfig_Full(t *testing.T) {
	cfg := loadConfigFromString(t, `
benchmark:
  server: tcp://broker:1883
  topic: sensors
  message: hello
  qos: 1
  hook: hooks/demo.yaml
  pub_threads: 4
  pub_connections: 40
  sub_threads: 2
  sub_connections: 4
  duration: 30s
  rate: 12.5
  isolation: process
  client:
    protocol_version: 4
    keep_alive: 15s
    ca_file: ca.pem
thresholds:
  connected_rate: "99%"
  max_errors: 0
  publish_latency:
    p99: 200ms
`)

	b := cfg.Benchmark
	if b.Server != "tcp://broker:1883" || b.Topic != "sensors" || b.Message != "hello" || b.QoS != 1 {
		t.Errorf("basic fields = %+v", b)
	}
	if !filepath.IsAbs(b.Hook) || !strings.HasSuffix(b.Hook, filepath.Join("hooks", "demo.yaml")) {
		t.Errorf("Hook = %q, want it next to the config file", b.Hook)
	}
	if b.PubThreads != 4 || b.PubConnections != 40 || b.SubThreads != 2 || b.SubConnections != 4 {
		t.Errorf("counts = %d/%d/%d/%d", b.PubThreads, b.PubConnections, b.SubThreads, b.SubConnections)
	}
	if b.Duration != 30*time.Second || b.Rate != 12.5 || b.Isolation != IsolationProcess {
		t.Errorf("duration/rate/isolation = %v/%v/%v", b.Duration, b.Rate, b.Isolation)
	}
	if b.Client.ProtocolVersion != 4 || b.Client.KeepAlive != 15*time.Second || b.Client.CAFile != "ca.pem" {
		t.Errorf("client = %+v", b.Client)
	}
	// untouched defaults survive
	if b.Client.ConnectTimeout != 10*time.Second {
		t.Errorf("ConnectTimeout = %v, want default 10s", b.Client.ConnectTimeout)
	}

	th := cfg.Thresholds
	if th == nil {
		t.Fatal("expected thresholds")
	}
	if th.ConnectedRate != "99%" || th.MaxErrors == nil || *th.MaxErrors != 0 {
		t.Errorf("thresholds = %+v", th)
	}
	if th.PublishLatency == nil || th.PublishLatency.P99 != 200*time.Millisecond {
		t.Errorf("publish_latency = %+v", th.PublishLatency)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadConfig_DefaultsOnly(t *testing.T) {
	cfg := loadConfigFromString(t, `
benchmark:
  server: tcp://broker:1883
  topic: t
`)
	b := cfg.Benchmark
	if b.PubThreads != 5 || b.PubConnections != 10 || b.SubThreads != 1 || b.SubConnections != 2 {
		t.Errorf("defaults not applied: %+v", b)
	}
	if b.Client.ProtocolVersion != 3 || b.Isolation != IsolationGoroutine {
		t.Errorf("client defaults not applied: %+v", b)
	}
	if cfg.Thresholds != nil {
		t.Error("expected no thresholds")
	}
}

func TestLoadConfig_AbsoluteHookUnchanged(t *testing.T) {
	hook := filepath.Join(t.TempDir(), "h.yaml")
	cfg := loadConfigFromString(t, "benchmark:\n  hook: "+hook+"\n")
	if cfg.Benchmark.Hook != hook {
		t.Errorf("Hook = %q, want %q", cfg.Benchmark.Hook, hook)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("benchmark: [nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "parsing") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(b *BenchmarkConfig)
		wantErr string
	}{
		{"valid", func(b *BenchmarkConfig) {}, ""},
		{"hook replaces server", func(b *BenchmarkConfig) { b.Server = ""; b.Hook = "h.yaml" }, ""},
		{"hook replaces message", func(b *BenchmarkConfig) { b.Message = ""; b.Hook = "h.yaml" }, ""},
		{"subscribers need no message", func(b *BenchmarkConfig) { b.Message = ""; b.PubThreads = 0; b.PubConnections = 0 }, ""},
		{"missing server", func(b *BenchmarkConfig) { b.Server = "" }, "server is required"},
		{"missing topic", func(b *BenchmarkConfig) { b.Topic = "" }, "topic is required"},
		{"missing message", func(b *BenchmarkConfig) { b.Message = "" }, "message is required"},
		{"qos too high", func(b *BenchmarkConfig) { b.QoS = 3 }, "qos"},
		{"negative qos", func(b *BenchmarkConfig) { b.QoS = -1 }, "qos"},
		{"zero duration", func(b *BenchmarkConfig) { b.Duration = 0 }, "duration"},
		{"negative rate", func(b *BenchmarkConfig) { b.Rate = -1 }, "rate"},
		{"negative connections", func(b *BenchmarkConfig) { b.SubConnections = -2 }, "sub_connections must be >= 0"},
		{"no threads", func(b *BenchmarkConfig) { b.PubThreads = 0; b.SubThreads = 0 }, "at least one"},
		{"connections without threads", func(b *BenchmarkConfig) { b.PubThreads = 0 }, "pub_connections requires"},
		{"bad isolation", func(b *BenchmarkConfig) { b.Isolation = "thread" }, "isolation"},
		{"bad protocol", func(b *BenchmarkConfig) { b.Client.ProtocolVersion = 5 }, "protocol version"},
		{"cert without key", func(b *BenchmarkConfig) { b.Client.CertFile = "c.pem" }, "cert file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := validBenchmark()
			tt.mutate(&b)
			err := b.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	b := BenchmarkConfig{QoS: 9}
	err := b.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server", "topic", "qos", "duration", "at least one"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestConfig_ValidateThresholds(t *testing.T) {
	cfg := loadConfigFromString(t, `
benchmark:
  server: tcp://b:1883
  topic: t
  message: m
  duration: 1s
thresholds:
  connected_rate: "ninety"
`)
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "connected_rate") {
		t.Errorf("expected threshold error, got %v", err)
	}
}

func TestRequestedCounts(t *testing.T) {
	b := validBenchmark()
	b.PubConnections, b.SubConnections = 7, 3
	if b.RequestedConnections() != 10 || b.RequestedSubscriptions() != 3 {
		t.Errorf("requested = %d/%d, want 10/3", b.RequestedConnections(), b.RequestedSubscriptions())
	}
}
