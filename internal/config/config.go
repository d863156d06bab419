// Package config handles benchmark configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"mqttbench/internal/collector"
	"mqttbench/internal/core"
)

// Isolation selects how worker units are run.
type Isolation string

const (
	// IsolationGoroutine runs every worker unit in this process.
	IsolationGoroutine Isolation = "goroutine"
	// IsolationProcess runs every worker unit in a child process.
	IsolationProcess Isolation = "process"
)

// Config is the root configuration structure.
type Config struct {
	Benchmark  BenchmarkConfig       `yaml:"benchmark"`
	Thresholds *collector.Thresholds `yaml:"thresholds,omitempty"`
}

// BenchmarkConfig is the benchmark input. Read-only once loaded.
type BenchmarkConfig struct {
	Server         string             `yaml:"server"`
	Topic          string             `yaml:"topic"`
	Message        string             `yaml:"message"`
	QoS            int                `yaml:"qos"`
	Hook           string             `yaml:"hook"`
	PubThreads     int                `yaml:"pub_threads"`
	PubConnections int                `yaml:"pub_connections"`
	SubThreads     int                `yaml:"sub_threads"`
	SubConnections int                `yaml:"sub_connections"`
	Duration       time.Duration      `yaml:"duration"`
	Rate           float64            `yaml:"rate"` // per publish connection, 0 = unlimited
	Isolation      Isolation          `yaml:"isolation"`
	Client         core.ClientOptions `yaml:"client"`
}

// Default returns the defaults applied before the file and flags.
func Default() BenchmarkConfig {
	return BenchmarkConfig{
		PubThreads:     5,
		PubConnections: 10,
		SubThreads:     1,
		SubConnections: 2,
		Isolation:      IsolationGoroutine,
		Client: core.ClientOptions{
			ProtocolVersion: 3,
			KeepAlive:       30 * time.Second,
			ConnectTimeout:  10 * time.Second,
		},
	}
}

// LoadConfig reads a YAML configuration file on top of Default. A relative
// hook path is taken relative to the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Config{Benchmark: Default()}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if h := cfg.Benchmark.Hook; h != "" && !filepath.IsAbs(h) {
		cfg.Benchmark.Hook = filepath.Join(filepath.Dir(path), h)
	}

	return &cfg, nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	return errors.Join(c.Benchmark.Validate(), c.Thresholds.Validate())
}

// Validate checks the benchmark invariants. All problems are reported.
func (b *BenchmarkConfig) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if b.Server == "" && b.Hook == "" {
		add("server is required")
	}
	if b.Topic == "" {
		add("topic is required")
	}
	if b.QoS < 0 || b.QoS > 2 {
		add("qos must be 0, 1 or 2, got %d", b.QoS)
	}
	if b.Duration <= 0 {
		add("duration must be positive")
	}
	if b.Rate < 0 {
		add("rate must be >= 0")
	}

	for _, c := range []struct {
		name  string
		value int
	}{
		{"pub_threads", b.PubThreads},
		{"pub_connections", b.PubConnections},
		{"sub_threads", b.SubThreads},
		{"sub_connections", b.SubConnections},
	} {
		if c.value < 0 {
			add("%s must be >= 0, got %d", c.name, c.value)
		}
	}
	if b.PubThreads+b.SubThreads <= 0 {
		add("at least one publish or subscribe thread is required")
	}
	if b.PubConnections > 0 && b.PubThreads == 0 {
		add("pub_connections requires pub_threads > 0")
	}
	if b.SubConnections > 0 && b.SubThreads == 0 {
		add("sub_connections requires sub_threads > 0")
	}
	if b.PubConnections > 0 && b.Message == "" && b.Hook == "" {
		add("message is required for publishers unless a hook supplies it")
	}

	switch b.Isolation {
	case "", IsolationGoroutine, IsolationProcess:
	default:
		add("isolation must be %q or %q, got %q", IsolationGoroutine, IsolationProcess, b.Isolation)
	}
	switch b.Client.ProtocolVersion {
	case 0, 3, 4:
	default:
		add("protocol version must be 3 (MQTT 3.1) or 4 (MQTT 3.1.1), got %d", b.Client.ProtocolVersion)
	}
	if (b.Client.CertFile == "") != (b.Client.KeyFile == "") {
		add("cert file and key file must be given together")
	}

	return errors.Join(errs...)
}

// RequestedConnections is the total of publish and subscribe connections.
func (b *BenchmarkConfig) RequestedConnections() int {
	return b.PubConnections + b.SubConnections
}

// RequestedSubscriptions is the number of subscribe connections.
func (b *BenchmarkConfig) RequestedSubscriptions() int {
	return b.SubConnections
}
