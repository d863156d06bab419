package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"mqttbench/internal/config"
	"mqttbench/internal/coordinator"
)

const envPrefix = "MQTTBENCH_"

// options holds flag values. Benchmark fields only take effect when the
// flag (or its environment variable) was set, so a config file keeps its
// values otherwise.
type options struct {
	configPath  string
	output      string
	quiet       bool
	metricsAddr string

	server         string
	topic          string
	message        string
	qos            int
	hook           string
	pubThreads     int
	pubConnections int
	subThreads     int
	subConnections int
	duration       int
	rate           float64
	isolation      string

	protocolVersion uint
	keepAlive       time.Duration
	connectTimeout  time.Duration
	caFile          string
	certFile        string
	keyFile         string
	insecure        bool
}

func (o *options) register(cmd *cobra.Command) {
	def := config.Default()

	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "path to YAML config file")
	f.StringVarP(&o.output, "output", "o", "text", "output format: text, json")
	f.BoolVar(&o.quiet, "quiet", false, "suppress progress output")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9100")

	f.StringVarP(&o.server, "server", "s", "", "broker URI, e.g. tcp://localhost:1883")
	f.StringVarP(&o.topic, "topic", "t", "", "topic to publish and subscribe to")
	f.StringVarP(&o.message, "message", "m", "", "message payload")
	f.IntVarP(&o.qos, "qos", "q", 0, "QoS level 0, 1 or 2")
	f.StringVarP(&o.hook, "hook", "S", "", "hook plugin (.so) or script (.yaml)")
	f.IntVar(&o.pubThreads, "pub-threads", def.PubThreads, "publisher worker units")
	f.IntVar(&o.pubConnections, "pub-connections", def.PubConnections, "total publisher connections")
	f.IntVar(&o.subThreads, "sub-threads", def.SubThreads, "subscriber worker units")
	f.IntVar(&o.subConnections, "sub-connections", def.SubConnections, "total subscriber connections")
	f.IntVarP(&o.duration, "duration", "d", 0, "benchmark duration in seconds")
	f.Float64Var(&o.rate, "rate", 0, "publishes per second per connection (0 = unlimited)")
	f.StringVar(&o.isolation, "isolation", string(def.Isolation), "worker isolation: goroutine, process")

	f.UintVar(&o.protocolVersion, "protocol-version", def.Client.ProtocolVersion, "MQTT protocol version: 3 (3.1) or 4 (3.1.1)")
	f.DurationVar(&o.keepAlive, "keep-alive", def.Client.KeepAlive, "MQTT keep alive interval")
	f.DurationVar(&o.connectTimeout, "connect-timeout", def.Client.ConnectTimeout, "MQTT connect timeout")
	f.StringVar(&o.caFile, "ca-file", "", "CA certificate for TLS brokers")
	f.StringVar(&o.certFile, "cert-file", "", "client certificate for TLS brokers")
	f.StringVar(&o.keyFile, "key-file", "", "client key for TLS brokers")
	f.BoolVar(&o.insecure, "insecure", false, "skip TLS certificate verification")

	p := cmd.PersistentFlags()
	p.BoolP("verbose", "v", false, "enable debug logging")
	p.String("log-format", "text", "log format: text, json")
}

// load builds the configuration: defaults, then the config file, then any
// flag that was set.
func (o *options) load(fs *pflag.FlagSet) (*config.Config, error) {
	cfg := &config.Config{Benchmark: config.Default()}
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(o.configPath); err != nil {
			return nil, err
		}
	}

	b := &cfg.Benchmark
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("server", func() { b.Server = o.server })
	set("topic", func() { b.Topic = o.topic })
	set("message", func() { b.Message = o.message })
	set("qos", func() { b.QoS = o.qos })
	set("hook", func() { b.Hook = o.hook })
	set("pub-threads", func() { b.PubThreads = o.pubThreads })
	set("pub-connections", func() { b.PubConnections = o.pubConnections })
	set("sub-threads", func() { b.SubThreads = o.subThreads })
	set("sub-connections", func() { b.SubConnections = o.subConnections })
	set("duration", func() { b.Duration = time.Duration(o.duration) * time.Second })
	set("rate", func() { b.Rate = o.rate })
	set("isolation", func() { b.Isolation = config.Isolation(o.isolation) })
	set("protocol-version", func() { b.Client.ProtocolVersion = o.protocolVersion })
	set("keep-alive", func() { b.Client.KeepAlive = o.keepAlive })
	set("connect-timeout", func() { b.Client.ConnectTimeout = o.connectTimeout })
	set("ca-file", func() { b.Client.CAFile = o.caFile })
	set("cert-file", func() { b.Client.CertFile = o.certFile })
	set("key-file", func() { b.Client.KeyFile = o.keyFile })
	set("insecure", func() { b.Client.Insecure = o.insecure })

	return cfg, nil
}

// envName maps a flag name to its environment variable.
func envName(flag string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// applyEnv sets every flag not given on the command line from its
// environment variable. Such flags then count as changed.
func applyEnv(fs *pflag.FlagSet) error {
	var errs []string
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "help" {
			return
		}
		v, ok := os.LookupEnv(envName(f.Name))
		if !ok {
			return
		}
		if err := fs.Set(f.Name, v); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", envName(f.Name), err))
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

func newLogger(fs *pflag.FlagSet, out io.Writer) (*logrus.Logger, error) {
	verbose, _ := fs.GetBool("verbose")
	format, _ := fs.GetString("log-format")

	log := logrus.New()
	log.SetOutput(out)
	switch format {
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("--log-format must be 'text' or 'json', got %q", format)
	}
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
	return log, nil
}

// workerArgs are the child command line for subprocess units, carrying
// the logging flags over.
func workerArgs(fs *pflag.FlagSet) []string {
	verbose, _ := fs.GetBool("verbose")
	format, _ := fs.GetString("log-format")
	args := []string{coordinator.WorkerCommand, "--log-format", format}
	if verbose {
		args = append(args, "--verbose")
	}
	return args
}
