// Package progress prints a single live status line while a benchmark runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"mqttbench/internal/collector"
)

type Progress struct {
	startTime   time.Time
	collector   *collector.Collector
	connections int
	workers     int
	workersDone atomic.Int64
	ticker      *time.Ticker
	stopCh      chan struct{}
	stopped     atomic.Bool
	quiet       bool
	output      io.Writer
	mu          sync.Mutex
}

// NewProgress reports against c. connections and workers are the totals the
// run was asked for.
func NewProgress(c *collector.Collector, connections, workers int, quiet bool) *Progress {
	return &Progress{
		collector:   c,
		connections: connections,
		workers:     workers,
		quiet:       quiet,
		output:      os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

// WorkerDone records one finished worker unit.
func (p *Progress) WorkerDone() {
	p.workersDone.Add(1)
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(1 * time.Second)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	line := p.render(p.collector.Snapshot(), time.Since(p.startTime))
	p.mu.Lock()
	fmt.Fprint(p.output, line)
	p.mu.Unlock()
}

func (p *Progress) render(t collector.Tally, elapsed time.Duration) string {
	elapsed = elapsed.Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60
	sentPerSec := 0.0
	if elapsed > 0 {
		sentPerSec = float64(t.Sent) / elapsed.Seconds()
	}
	return fmt.Sprintf("\033[K[%02d:%02d] Connected: %d/%d | Sent: %d (%.1f/s) | Received: %d | Errors: %d | Workers: %d/%d\r",
		mins, secs, t.Connected, p.connections, t.Sent, sentPerSec, t.Received, t.Errors,
		p.workersDone.Load(), p.workers)
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...interface{}) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}
