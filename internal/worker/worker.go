// Package worker runs one worker unit: a fixed number of connection
// sessions sharing one action, folded into a single result.
package worker

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"mqttbench/internal/collector"
	"mqttbench/internal/core"
	"mqttbench/internal/hook"
	"mqttbench/internal/mqtt"
	"mqttbench/internal/session"
)

// ErrInvalidParams means the unit was handed params it cannot run.
var ErrInvalidParams = errors.New("invalid worker params")

// Runner runs worker units. The zero value dials real brokers.
type Runner struct {
	Dialer   core.Dialer
	Reporter core.Reporter
	Logger   *logrus.Logger
	Clock    core.Clock
}

// Run starts params.Connections sessions, waits for all of them and folds
// their results. A returned error is unit-fatal; the folded result is
// still returned alongside it.
func (r *Runner) Run(ctx context.Context, params core.WorkerParams) (core.WorkerResult, error) {
	empty := core.WorkerResult{WorkerID: params.WorkerID, Action: params.Action, Connections: params.Connections}
	if !params.Action.Valid() {
		return empty, fmt.Errorf("worker %s: %w: unknown action %q", params.WorkerID, ErrInvalidParams, params.Action)
	}
	if params.Connections < 0 {
		return empty, fmt.Errorf("worker %s: %w: negative connection count", params.WorkerID, ErrInvalidParams)
	}

	hooks, err := hook.Load(params.HookPath)
	if err != nil {
		return empty, fmt.Errorf("worker %s: loading hook: %w", params.WorkerID, err)
	}
	tlsConfig, err := mqtt.NewTLSConfig(params.Client)
	if err != nil {
		return empty, fmt.Errorf("worker %s: %w", params.WorkerID, err)
	}

	log := r.logger().WithField("worker", params.WorkerID)
	log.WithFields(logrus.Fields{
		"action":      params.Action,
		"connections": params.Connections,
		"hooks":       hooks.String(),
	}).Debug("worker starting")

	results := make([]core.ConnectionResult, params.Connections)
	errs := make([]error, params.Connections)

	var wg sync.WaitGroup
	for i := 0; i < params.Connections; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = r.runSession(ctx, params, i, hooks, tlsConfig, log)
		}(i)
	}
	wg.Wait()

	result := collector.ComputeWorkerResult(params, results)
	log.WithFields(logrus.Fields{
		"sent":      result.MessagesSent,
		"received":  result.MessagesReceived,
		"errors":    result.Errors,
		"connected": result.Connected,
	}).Debug("worker finished")

	for _, err := range errs {
		if err != nil {
			return result, fmt.Errorf("worker %s: %w", params.WorkerID, err)
		}
	}
	return result, nil
}

func (r *Runner) runSession(ctx context.Context, params core.WorkerParams, idx int, hooks hook.Set, tlsConfig *tls.Config, log *logrus.Entry) (res core.ConnectionResult, err error) {
	clock := r.clock()
	start := clock.Now()
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("connection", idx).Errorf("session panic: %v", rec)
			res = core.ConnectionResult{Errors: 1, Elapsed: clock.Since(start)}
			err = nil
		}
	}()

	s := session.New(session.Config{
		Params:     params,
		Connection: idx,
		Hooks:      hooks,
		Dialer:     r.dialer(),
		TLS:        tlsConfig,
		Reporter:   r.Reporter,
		Logger:     log,
		Clock:      clock,
	})
	return s.Run(ctx)
}

func (r *Runner) dialer() core.Dialer {
	if r.Dialer == nil {
		return mqtt.Dialer{}
	}
	return r.Dialer
}

func (r *Runner) clock() core.Clock {
	if r.Clock == nil {
		return core.RealClock{}
	}
	return r.Clock
}

func (r *Runner) logger() *logrus.Logger {
	if r.Logger == nil {
		return logrus.StandardLogger()
	}
	return r.Logger
}
