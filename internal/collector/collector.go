// Package collector folds connection results into worker results and
// benchmark reports, tallies live events and formats the final report.
package collector

import (
	"sync/atomic"

	"mqttbench/internal/core"
)

// Tally is a point-in-time count of live events.
type Tally struct {
	Connected  int64
	Subscribed int64
	Sent       int64
	Received   int64
	Errors     int64
	Reconnects int64
	Closed     int64
}

// Collector tallies live events for progress output. It never feeds the
// report: the report is folded from results only.
type Collector struct {
	connected  atomic.Int64
	subscribed atomic.Int64
	sent       atomic.Int64
	received   atomic.Int64
	errors     atomic.Int64
	reconnects atomic.Int64
	closed     atomic.Int64
}

func NewCollector() *Collector {
	return &Collector{}
}

// Report counts an event. Safe for concurrent use.
func (c *Collector) Report(e core.Event) {
	switch e.Kind {
	case core.EventConnected:
		c.connected.Add(1)
	case core.EventSubscribed:
		c.subscribed.Add(1)
	case core.EventSent:
		c.sent.Add(1)
	case core.EventReceived:
		c.received.Add(1)
	case core.EventError:
		c.errors.Add(1)
	case core.EventReconnect:
		c.reconnects.Add(1)
	case core.EventClosed:
		c.closed.Add(1)
	}
}

// Snapshot returns the current tallies.
func (c *Collector) Snapshot() Tally {
	return Tally{
		Connected:  c.connected.Load(),
		Subscribed: c.subscribed.Load(),
		Sent:       c.sent.Load(),
		Received:   c.received.Load(),
		Errors:     c.errors.Load(),
		Reconnects: c.reconnects.Load(),
		Closed:     c.closed.Load(),
	}
}
