// Package metrics exposes live benchmark telemetry to Prometheus. It never
// feeds the final report.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"mqttbench/internal/core"
)

const namespace = "mqttbench"

// Reporter counts session events by action and kind.
type Reporter struct {
	events      *prometheus.CounterVec
	workersDone prometheus.Counter
	lastEvent   *prometheus.GaugeVec
}

// NewReporter registers the benchmark collectors with reg.
func NewReporter(reg prometheus.Registerer) (*Reporter, error) {
	r := &Reporter{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Connection session events by action and kind.",
		}, []string{"action", "kind"}),
		workersDone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_completed_total",
			Help:      "Worker units that finished.",
		}),
		lastEvent: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_event_timestamp_seconds",
			Help:      "Unix time of the most recent event per kind.",
		}, []string{"kind"}),
	}
	for _, c := range []prometheus.Collector{r.events, r.workersDone, r.lastEvent} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return r, nil
}

func (r *Reporter) Report(e core.Event) {
	r.events.WithLabelValues(string(e.Action), string(e.Kind)).Inc()
	if !e.Timestamp.IsZero() {
		r.lastEvent.WithLabelValues(string(e.Kind)).Set(float64(e.Timestamp.UnixNano()) / 1e9)
	}
}

// WorkerDone matches the coordinator's completion callback.
func (r *Reporter) WorkerDone(core.WorkerResult) {
	r.workersDone.Inc()
}

// Server serves /metrics until closed.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen binds addr and starts serving g in the background.
func Listen(addr string, g prometheus.Gatherer, log logrus.FieldLogger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	s := &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()
	return s, nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Close(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
