package collector

import (
	"time"

	"github.com/codahale/hdrhistogram"

	"mqttbench/internal/core"
)

// Report is the global fold of all worker results.
type Report struct {
	MessagesSent     int64
	MessagesReceived int64
	Errors           int64
	Reconnects       int64
	Connected        int
	Subscribed       int

	MinDuration time.Duration
	AvgDuration time.Duration
	MaxDuration time.Duration

	// RequestedConnections is pub + sub connections as configured;
	// RequestedSubscriptions is the sub connections.
	RequestedConnections   int
	RequestedSubscriptions int
	// AllocatedConnections is what partitioning actually handed out.
	AllocatedConnections int
	Workers              int

	SentPerSec     float64
	ReceivedPerSec float64
	PublishLatency DurationMetrics
}

// ConnectedRate is the percentage of requested connections that connected.
func (r *Report) ConnectedRate() float64 {
	return percent(r.Connected, r.RequestedConnections)
}

// SubscribedRate is the percentage of requested subscriptions that succeeded.
func (r *Report) SubscribedRate() float64 {
	return percent(r.Subscribed, r.RequestedSubscriptions)
}

func percent(n, of int) float64 {
	if of == 0 {
		return 100
	}
	return float64(n) / float64(of) * 100
}

// ComputeWorkerResult folds the results of one worker unit. Pure function.
// The average divides by requested, not len(results); it is 0 when nothing
// was requested.
func ComputeWorkerResult(params core.WorkerParams, results []core.ConnectionResult) core.WorkerResult {
	w := core.WorkerResult{
		WorkerID:    params.WorkerID,
		Action:      params.Action,
		Connections: params.Connections,
	}

	var sum time.Duration
	var latency *hdrhistogram.Histogram
	for i, r := range results {
		w.MessagesSent += r.MessagesSent
		w.MessagesReceived += r.MessagesReceived
		w.Errors += r.Errors
		w.Reconnects += r.Reconnects
		if r.WasConnected {
			w.Connected++
		}
		if r.WasSubscribed {
			w.Subscribed++
		}

		sum += r.Elapsed
		if i == 0 || r.Elapsed < w.MinDuration {
			w.MinDuration = r.Elapsed
		}
		if r.Elapsed > w.MaxDuration {
			w.MaxDuration = r.Elapsed
		}
		latency = mergeInto(latency, r.Latency)
	}

	if params.Connections > 0 {
		w.AvgDuration = sum / time.Duration(params.Connections)
	}
	if latency != nil {
		w.PublishLatency = latency.Export()
	}
	return w
}

// ComputeReport folds worker results into the benchmark report. Pure
// function; the order of results does not matter.
//
// Min and max span the workers that were given connections. The average is
// the plain mean of the worker averages, not weighted by connection count.
func ComputeReport(results []core.WorkerResult, requestedConnections, requestedSubscriptions int) *Report {
	r := &Report{
		RequestedConnections:   requestedConnections,
		RequestedSubscriptions: requestedSubscriptions,
		Workers:                len(results),
	}

	var avgSum time.Duration
	var latency *hdrhistogram.Histogram
	seen := false
	for _, w := range results {
		r.MessagesSent += w.MessagesSent
		r.MessagesReceived += w.MessagesReceived
		r.Errors += w.Errors
		r.Reconnects += w.Reconnects
		r.Connected += w.Connected
		r.Subscribed += w.Subscribed
		r.AllocatedConnections += w.Connections
		avgSum += w.AvgDuration

		if w.Connections > 0 {
			if !seen || w.MinDuration < r.MinDuration {
				r.MinDuration = w.MinDuration
			}
			if !seen || w.MaxDuration > r.MaxDuration {
				r.MaxDuration = w.MaxDuration
			}
			seen = true
		}
		if w.PublishLatency != nil {
			latency = mergeInto(latency, hdrhistogram.Import(w.PublishLatency))
		}
	}

	if len(results) > 0 {
		r.AvgDuration = avgSum / time.Duration(len(results))
	}
	if secs := r.MaxDuration.Seconds(); secs > 0 {
		r.SentPerSec = float64(r.MessagesSent) / secs
		r.ReceivedPerSec = float64(r.MessagesReceived) / secs
	}
	r.PublishLatency = ComputeDurationMetrics(latency)
	return r
}
