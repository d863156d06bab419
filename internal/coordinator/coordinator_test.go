package coordinator

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"mqttbench/internal/config"
	"mqttbench/internal/core"
	"mqttbench/internal/worker"
)

// TestMain doubles as the child process for Subprocess tests.
func TestMain(m *testing.M) {
	switch os.Getenv("MQTTBENCH_TEST_WORKER") {
	case "serve":
		runner := &worker.Runner{Dialer: &core.FakeDialer{}, Logger: quietLogger()}
		if err := worker.Serve(context.Background(), os.Stdin, os.Stdout, runner.Run); err != nil {
			os.Exit(2)
		}
		os.Exit(0)
	case "crash":
		os.Exit(3)
	case "garbage":
		os.Stdout.WriteString("not json")
		os.Exit(0)
	}
	os.Exit(m.Run())
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func benchConfig() *config.BenchmarkConfig {
	b := config.Default()
	b.Server = "tcp://broker:1883"
	b.Topic = "bench"
	b.Message = "hello"
	b.Duration = 100 * time.Millisecond
	return &b
}

// fakeSpawner returns canned results and records the params it saw.
type fakeSpawner struct {
	mu     sync.Mutex
	seen   []core.WorkerParams
	result func(p core.WorkerParams) (core.WorkerResult, error)
}

func (f *fakeSpawner) Spawn(ctx context.Context, p core.WorkerParams) (core.WorkerResult, error) {
	f.mu.Lock()
	f.seen = append(f.seen, p)
	f.mu.Unlock()
	if f.result != nil {
		return f.result(p)
	}
	return core.WorkerResult{WorkerID: p.WorkerID, Action: p.Action, Connections: p.Connections}, nil
}

func TestPartition(t *testing.T) {
	cfg := benchConfig()
	cfg.PubThreads, cfg.PubConnections = 3, 10
	cfg.SubThreads, cfg.SubConnections = 2, 5
	cfg.Rate = 20
	cfg.Hook = "hook.yaml"
	cfg.QoS = 1

	units := Partition(cfg)
	if len(units) != 5 {
		t.Fatalf("got %d units, want 5", len(units))
	}

	wantIDs := []string{"p0", "p1", "p2", "s0", "s1"}
	for i, u := range units {
		if u.WorkerID != wantIDs[i] {
			t.Errorf("unit %d id = %s, want %s", i, u.WorkerID, wantIDs[i])
		}
		if u.Server != cfg.Server || u.Topic != cfg.Topic || u.HookPath != "hook.yaml" || u.QoS != 1 || u.Duration != cfg.Duration {
			t.Errorf("unit %d did not inherit config: %+v", i, u)
		}
	}

	for _, u := range units[:3] {
		if u.Action != core.ActionPublish || u.Connections != 3 || u.Rate != 20 {
			t.Errorf("publisher = %+v, want 3 connections at rate 20", u)
		}
	}
	for _, u := range units[3:] {
		if u.Action != core.ActionSubscribe || u.Connections != 2 || u.Rate != 0 {
			t.Errorf("subscriber = %+v, want 2 connections", u)
		}
	}
}

func TestPartition_Edges(t *testing.T) {
	tests := []struct {
		name                    string
		pubT, pubC, subT, subC  int
		wantUnits, wantPerUnitP int
	}{
		{"defaults", 5, 10, 1, 2, 6, 2},
		{"fewer connections than threads", 4, 2, 0, 0, 4, 0},
		{"subscribers only", 0, 0, 2, 6, 2, 0},
		{"exact split", 2, 8, 1, 1, 3, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := benchConfig()
			cfg.PubThreads, cfg.PubConnections = tt.pubT, tt.pubC
			cfg.SubThreads, cfg.SubConnections = tt.subT, tt.subC

			units := Partition(cfg)
			if len(units) != tt.wantUnits {
				t.Fatalf("got %d units, want %d", len(units), tt.wantUnits)
			}
			for _, u := range units {
				if u.Action == core.ActionPublish && u.Connections != tt.wantPerUnitP {
					t.Errorf("publisher connections = %d, want %d", u.Connections, tt.wantPerUnitP)
				}
			}
		})
	}
}

func TestCoordinator_Run(t *testing.T) {
	spawner := &fakeSpawner{result: func(p core.WorkerParams) (core.WorkerResult, error) {
		res := core.WorkerResult{
			WorkerID:    p.WorkerID,
			Action:      p.Action,
			Connections: p.Connections,
			Connected:   p.Connections,
			MinDuration: time.Second,
			AvgDuration: time.Second,
			MaxDuration: time.Second,
		}
		if p.Action == core.ActionPublish {
			res.MessagesSent = 10
		} else {
			res.MessagesReceived = 50
			res.Subscribed = p.Connections
		}
		return res, nil
	}}
	coord := NewCoordinator(spawner, quietLogger())

	var done atomic.Int32
	coord.OnWorkerDone(func(core.WorkerResult) { done.Add(1) })

	report, err := coord.Run(context.Background(), benchConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Workers != 6 {
		t.Errorf("Workers = %d, want 6", report.Workers)
	}
	if report.MessagesSent != 50 || report.MessagesReceived != 50 {
		t.Errorf("sent/received = %d/%d, want 50/50", report.MessagesSent, report.MessagesReceived)
	}
	if report.Connected != 12 || report.Subscribed != 2 {
		t.Errorf("connected/subscribed = %d/%d, want 12/2", report.Connected, report.Subscribed)
	}
	if report.RequestedConnections != 12 || report.RequestedSubscriptions != 2 {
		t.Errorf("requested = %d/%d", report.RequestedConnections, report.RequestedSubscriptions)
	}
	if done.Load() != 6 {
		t.Errorf("observer called %d times, want 6", done.Load())
	}
}

func TestCoordinator_RunFailsOnUnitError(t *testing.T) {
	boom := errors.New("worker s0: no server address")
	spawner := &fakeSpawner{result: func(p core.WorkerParams) (core.WorkerResult, error) {
		if p.WorkerID == "s0" {
			return core.WorkerResult{}, boom
		}
		return core.WorkerResult{WorkerID: p.WorkerID}, nil
	}}
	coord := NewCoordinator(spawner, quietLogger())

	report, err := coord.Run(context.Background(), benchConfig())
	if !errors.Is(err, boom) {
		t.Fatalf("expected unit error, got %v", err)
	}
	if report != nil {
		t.Error("no report expected on failure")
	}
}

func TestCoordinator_UnitErrorCancelsOthers(t *testing.T) {
	spawner := &fakeSpawner{result: func(p core.WorkerParams) (core.WorkerResult, error) {
		return core.WorkerResult{}, nil
	}}
	blocking := SpawnerFunc(func(ctx context.Context, p core.WorkerParams) (core.WorkerResult, error) {
		if p.WorkerID == "p0" {
			return core.WorkerResult{}, errors.New("fatal")
		}
		select {
		case <-ctx.Done():
			return core.WorkerResult{}, nil
		case <-time.After(10 * time.Second):
			return spawner.Spawn(ctx, p)
		}
	})

	start := time.Now()
	if _, err := NewCoordinator(blocking, quietLogger()).Run(context.Background(), benchConfig()); err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("remaining units were not cancelled")
	}
}

func TestCoordinator_InProcessEndToEnd(t *testing.T) {
	dialer := &core.FakeDialer{}
	spawner := InProcess{Run: (&worker.Runner{Dialer: dialer, Logger: quietLogger()}).Run}
	coord := NewCoordinator(spawner, quietLogger())

	cfg := benchConfig()
	cfg.SubThreads, cfg.SubConnections = 0, 0
	cfg.PubThreads, cfg.PubConnections = 2, 4

	report, err := coord.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Connected != 4 {
		t.Errorf("Connected = %d, want 4", report.Connected)
	}
	if report.MessagesSent == 0 {
		t.Error("expected messages to be sent")
	}
	if len(dialer.Clients()) != 4 {
		t.Errorf("dialed %d clients, want 4", len(dialer.Clients()))
	}
	if report.PublishLatency.Count != report.MessagesSent {
		t.Errorf("latency samples = %d, want %d", report.PublishLatency.Count, report.MessagesSent)
	}
}

func TestCoordinator_InProcessNoServer(t *testing.T) {
	spawner := InProcess{Run: (&worker.Runner{Dialer: &core.FakeDialer{}, Logger: quietLogger()}).Run}
	cfg := benchConfig()
	cfg.Server = ""

	_, err := NewCoordinator(spawner, quietLogger()).Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "no server address") {
		t.Errorf("expected no-server error, got %v", err)
	}
}

func TestInProcess_RecoversPanic(t *testing.T) {
	spawner := InProcess{Run: func(ctx context.Context, p core.WorkerParams) (core.WorkerResult, error) {
		panic("unit exploded")
	}}

	_, err := spawner.Spawn(context.Background(), core.WorkerParams{WorkerID: "p2"})
	if err == nil || !strings.Contains(err.Error(), "worker p2 panicked: unit exploded") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInProcess_PassesResult(t *testing.T) {
	spawner := InProcess{Run: func(ctx context.Context, p core.WorkerParams) (core.WorkerResult, error) {
		return core.WorkerResult{WorkerID: p.WorkerID, MessagesSent: 3}, nil
	}}

	res, err := spawner.Spawn(context.Background(), core.WorkerParams{WorkerID: "p1"})
	if err != nil || res.WorkerID != "p1" || res.MessagesSent != 3 {
		t.Errorf("Spawn = %+v, %v", res, err)
	}
}

func TestSubprocess_RoundTrip(t *testing.T) {
	spawner := Subprocess{Executable: os.Args[0], Env: []string{"MQTTBENCH_TEST_WORKER=serve"}}
	p := core.WorkerParams{Action: core.ActionPublish, Server: "tcp://b:1883", Topic: "t", Message: "m", Connections: 2, Duration: 100 * time.Millisecond, WorkerID: "p3"}

	res, err := spawner.Spawn(context.Background(), p)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if res.WorkerID != "p3" || res.Connections != 2 || res.Connected != 2 {
		t.Errorf("result = %+v", res)
	}
	if res.MessagesSent == 0 {
		t.Error("expected messages from the child")
	}
}

func TestSubprocess_ExitCode(t *testing.T) {
	spawner := Subprocess{Executable: os.Args[0], Env: []string{"MQTTBENCH_TEST_WORKER=crash"}}

	_, err := spawner.Spawn(context.Background(), core.WorkerParams{WorkerID: "s1"})
	if err == nil || err.Error() != "worker s1 stopped with exit code 3" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSubprocess_ChildRunError(t *testing.T) {
	spawner := Subprocess{Executable: os.Args[0], Env: []string{"MQTTBENCH_TEST_WORKER=serve"}}
	p := core.WorkerParams{Action: core.ActionPublish, Topic: "t", Message: "m", Connections: 1, Duration: 50 * time.Millisecond, WorkerID: "p0"}

	_, err := spawner.Spawn(context.Background(), p)
	if err == nil || err.Error() != "worker p0 stopped with exit code 2" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSubprocess_BadOutput(t *testing.T) {
	spawner := Subprocess{Executable: os.Args[0], Env: []string{"MQTTBENCH_TEST_WORKER=garbage"}}

	_, err := spawner.Spawn(context.Background(), core.WorkerParams{WorkerID: "p0"})
	if err == nil || !strings.Contains(err.Error(), "decoding result") {
		t.Errorf("unexpected error: %v", err)
	}
}
