// Package coordinator partitions a benchmark into worker units, runs them
// concurrently and folds their results into the final report.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"mqttbench/internal/collector"
	"mqttbench/internal/config"
	"mqttbench/internal/core"
)

type Coordinator struct {
	spawner Spawner
	log     *logrus.Logger

	mu     sync.Mutex
	onDone []func(core.WorkerResult)
}

func NewCoordinator(spawner Spawner, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Coordinator{spawner: spawner, log: logger}
}

// OnWorkerDone registers fn to be called each time a unit completes
// successfully. Callbacks may run concurrently.
func (c *Coordinator) OnWorkerDone(fn func(core.WorkerResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDone = append(c.onDone, fn)
}

// Partition splits cfg into one WorkerParams per thread. Each unit gets
// floor(connections / threads) connections; the remainder is not run.
func Partition(cfg *config.BenchmarkConfig) []core.WorkerParams {
	base := core.WorkerParams{
		Server:   cfg.Server,
		Topic:    cfg.Topic,
		Message:  cfg.Message,
		QoS:      byte(cfg.QoS),
		HookPath: cfg.Hook,
		Duration: cfg.Duration,
		Client:   cfg.Client,
	}

	out := make([]core.WorkerParams, 0, cfg.PubThreads+cfg.SubThreads)
	for i := 0; i < cfg.PubThreads; i++ {
		p := base
		p.Action = core.ActionPublish
		p.WorkerID = fmt.Sprintf("p%d", i)
		p.Connections = cfg.PubConnections / cfg.PubThreads
		p.Rate = cfg.Rate
		out = append(out, p)
	}
	for i := 0; i < cfg.SubThreads; i++ {
		p := base
		p.Action = core.ActionSubscribe
		p.WorkerID = fmt.Sprintf("s%d", i)
		p.Connections = cfg.SubConnections / cfg.SubThreads
		out = append(out, p)
	}
	return out
}

// Run executes every unit of cfg and returns the aggregated report. The
// first unit-fatal error cancels the remaining units and fails the run.
func (c *Coordinator) Run(ctx context.Context, cfg *config.BenchmarkConfig) (*collector.Report, error) {
	units := Partition(cfg)
	results := make([]core.WorkerResult, len(units))

	c.log.WithFields(logrus.Fields{
		"workers":  len(units),
		"duration": cfg.Duration,
	}).Debug("starting benchmark")

	g, gctx := errgroup.WithContext(ctx)
	for i, params := range units {
		g.Go(func() error {
			res, err := c.spawner.Spawn(gctx, params)
			if err != nil {
				return err
			}
			results[i] = res
			c.log.WithFields(logrus.Fields{
				"worker":    params.WorkerID,
				"sent":      res.MessagesSent,
				"received":  res.MessagesReceived,
				"errors":    res.Errors,
				"connected": res.Connected,
			}).Debug("worker done")
			c.notify(res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return collector.ComputeReport(results, cfg.RequestedConnections(), cfg.RequestedSubscriptions()), nil
}

func (c *Coordinator) notify(res core.WorkerResult) {
	c.mu.Lock()
	fns := append([]func(core.WorkerResult){}, c.onDone...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(res)
	}
}
