package coordinator_test

import (
	"context"
	"fmt"
	"time"

	"mqttbench/internal/config"
	"mqttbench/internal/coordinator"
	"mqttbench/internal/core"
)

func ExamplePartition() {
	cfg := config.Default()
	cfg.Server = "tcp://localhost:1883"
	cfg.Topic = "bench"
	cfg.Duration = 10 * time.Second

	for _, p := range coordinator.Partition(&cfg) {
		fmt.Printf("%s %s %d\n", p.WorkerID, p.Action, p.Connections)
	}
	// Output:
	// p0 publish 2
	// p1 publish 2
	// p2 publish 2
	// p3 publish 2
	// p4 publish 2
	// s0 subscribe 2
}

func ExampleCoordinator_Run() {
	// Every unit reports one connected publisher sending 100 messages.
	spawner := coordinator.SpawnerFunc(func(ctx context.Context, p core.WorkerParams) (core.WorkerResult, error) {
		return core.WorkerResult{
			WorkerID:     p.WorkerID,
			Action:       p.Action,
			Connections:  p.Connections,
			Connected:    p.Connections,
			MessagesSent: 100,
			MinDuration:  time.Second,
			AvgDuration:  time.Second,
			MaxDuration:  time.Second,
		}, nil
	})

	cfg := config.Default()
	cfg.PubThreads, cfg.PubConnections = 2, 2
	cfg.SubThreads, cfg.SubConnections = 0, 0
	cfg.Duration = time.Second

	report, err := coordinator.NewCoordinator(spawner, nil).Run(context.Background(), &cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("sent=%d connected=%d/%d\n", report.MessagesSent, report.Connected, report.RequestedConnections)
	// Output: sent=200 connected=2/2
}
