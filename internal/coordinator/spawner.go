package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"mqttbench/internal/core"
	"mqttbench/internal/worker"
)

// WorkerCommand is the hidden subcommand a Subprocess spawner runs.
const WorkerCommand = "worker"

// subprocessWaitDelay bounds how long an interrupted child may take to
// write its result.
const subprocessWaitDelay = 30 * time.Second

// Spawner runs one worker unit to completion.
type Spawner interface {
	Spawn(ctx context.Context, params core.WorkerParams) (core.WorkerResult, error)
}

// SpawnerFunc adapts a function to Spawner.
type SpawnerFunc func(ctx context.Context, params core.WorkerParams) (core.WorkerResult, error)

func (f SpawnerFunc) Spawn(ctx context.Context, params core.WorkerParams) (core.WorkerResult, error) {
	return f(ctx, params)
}

// InProcess runs units as goroutines of the current process. A panic in
// the unit becomes a unit-fatal error.
type InProcess struct {
	Run worker.RunFunc
}

func (s InProcess) Spawn(ctx context.Context, params core.WorkerParams) (res core.WorkerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %s panicked: %v", params.WorkerID, r)
		}
	}()
	run := s.Run
	if run == nil {
		run = (&worker.Runner{}).Run
	}
	return run(ctx, params)
}

// Subprocess runs every unit in a child process speaking JSON over
// stdin and stdout.
type Subprocess struct {
	// Executable defaults to the running binary.
	Executable string
	// Args default to the hidden worker command.
	Args   []string
	Env    []string
	Stderr io.Writer
}

func (s Subprocess) Spawn(ctx context.Context, params core.WorkerParams) (core.WorkerResult, error) {
	exe := s.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return core.WorkerResult{}, fmt.Errorf("worker %s: locating executable: %w", params.WorkerID, err)
		}
	}
	args := s.Args
	if args == nil {
		args = []string{WorkerCommand}
	}

	in, err := json.Marshal(params)
	if err != nil {
		return core.WorkerResult{}, fmt.Errorf("worker %s: encoding params: %w", params.WorkerID, err)
	}

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdin = bytes.NewReader(in)
	cmd.Stdout = &stdout
	cmd.Stderr = s.Stderr
	if s.Env != nil {
		cmd.Env = append(os.Environ(), s.Env...)
	}
	// SIGINT, not SIGKILL: the child still disconnects and writes its result.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = subprocessWaitDelay

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return core.WorkerResult{}, fmt.Errorf("worker %s stopped with exit code %d", params.WorkerID, exitErr.ExitCode())
		}
		return core.WorkerResult{}, fmt.Errorf("worker %s: %w", params.WorkerID, err)
	}

	var res core.WorkerResult
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		return core.WorkerResult{}, fmt.Errorf("worker %s: decoding result: %w", params.WorkerID, err)
	}
	return res, nil
}
