package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"mqttbench/internal/core"
)

// RunFunc runs one worker unit.
type RunFunc func(ctx context.Context, params core.WorkerParams) (core.WorkerResult, error)

// Serve is the child side of a subprocess unit: it reads one WorkerParams
// document from r, runs it and writes the WorkerResult to w. The result is
// written even when run fails; the error is returned so the caller can exit
// non-zero.
func Serve(ctx context.Context, r io.Reader, w io.Writer, run RunFunc) error {
	var params core.WorkerParams
	if err := json.NewDecoder(r).Decode(&params); err != nil {
		return fmt.Errorf("reading worker params: %w", err)
	}

	result, runErr := run(ctx, params)

	if err := json.NewEncoder(w).Encode(result); err != nil {
		return fmt.Errorf("writing worker result: %w", err)
	}
	return runErr
}
