package collector_test

import (
	"fmt"
	"time"

	"mqttbench/internal/collector"
	"mqttbench/internal/core"
)

func ExampleComputeWorkerResult() {
	params := core.WorkerParams{WorkerID: "p0", Action: core.ActionPublish, Connections: 3}
	results := []core.ConnectionResult{
		{MessagesSent: 100, WasConnected: true, Elapsed: 10 * time.Second},
		{MessagesSent: 120, WasConnected: true, Elapsed: 11 * time.Second},
		{Errors: 1, Elapsed: 0}, // never connected
	}

	w := collector.ComputeWorkerResult(params, results)

	fmt.Printf("Sent: %d, Connected: %d/%d, Avg: %v\n", w.MessagesSent, w.Connected, w.Connections, w.AvgDuration)
	// Output: Sent: 220, Connected: 2/3, Avg: 7s
}

func ExampleComputeReport() {
	workers := []core.WorkerResult{
		{Connections: 2, MessagesSent: 400, Connected: 2, MinDuration: 10 * time.Second, AvgDuration: 10 * time.Second, MaxDuration: 10 * time.Second},
		{Connections: 2, MessagesReceived: 400, Connected: 2, Subscribed: 2, MinDuration: 10 * time.Second, AvgDuration: 10 * time.Second, MaxDuration: 10 * time.Second},
	}

	r := collector.ComputeReport(workers, 4, 2)

	fmt.Printf("Sent: %.0f/s, Connections: %d/%d, Subscriptions: %d/%d\n",
		r.SentPerSec, r.Connected, r.RequestedConnections, r.Subscribed, r.RequestedSubscriptions)
	// Output: Sent: 40/s, Connections: 4/4, Subscriptions: 2/2
}

func ExampleThresholds_Check() {
	maxErrors := int64(0)
	th := &collector.Thresholds{ConnectedRate: "100%", MaxErrors: &maxErrors}

	res := th.Check(&collector.Report{Connected: 10, RequestedConnections: 10, Errors: 2})
	for _, v := range res.Violations() {
		fmt.Printf("%s: %s (actual %s)\n", v.Name, v.Threshold, v.Actual)
	}
	// Output: max_errors: <= 0 (actual 2)
}
