// Package core defines the fundamental interfaces and types for mqttbench.
package core

import (
	"context"
	"crypto/tls"
	"errors"
	"time"
)

// ErrNotConnected is returned by Client operations while the transport has no
// live connection. Sessions back off and retry instead of counting it.
var ErrNotConnected = errors.New("not connected")

// Action selects what a worker unit's connections do.
type Action string

const (
	ActionPublish   Action = "publish"
	ActionSubscribe Action = "subscribe"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionPublish || a == ActionSubscribe
}

// EventKind classifies a live session event.
type EventKind string

const (
	EventConnected  EventKind = "connected"
	EventSubscribed EventKind = "subscribed"
	EventSent       EventKind = "sent"
	EventReceived   EventKind = "received"
	EventError      EventKind = "error"
	EventReconnect  EventKind = "reconnect"
	EventClosed     EventKind = "closed"
)

// Event is a single live notification from a connection session.
// Events feed telemetry only; results are folded from ConnectionResult.
type Event struct {
	WorkerID   string
	Connection int
	Action     Action
	Kind       EventKind
	Timestamp  time.Time
}

// Reporter is the interface sessions use to publish live events.
type Reporter interface {
	Report(Event)
}

// NullReporter discards all events.
var NullReporter Reporter = nullReporter{}

type nullReporter struct{}

func (nullReporter) Report(Event) {}

// MultiReporter fans an event out to several reporters.
type MultiReporter []Reporter

func (m MultiReporter) Report(e Event) {
	for _, r := range m {
		r.Report(e)
	}
}

// Handlers receives transport events for one client. Callbacks may be
// invoked from transport goroutines.
type Handlers struct {
	OnConnect   func()
	OnError     func(error)
	OnReconnect func()
	OnMessage   func(topic string, payload []byte)
}

// DialOptions describes one client connection.
type DialOptions struct {
	Server          string
	ClientID        string
	ProtocolVersion uint
	KeepAlive       time.Duration
	ConnectTimeout  time.Duration
	TLS             *tls.Config
}

// Dialer creates clients. Dial must not block on the network: the connect
// outcome is delivered through Handlers.
type Dialer interface {
	Dial(opts DialOptions, h Handlers) (Client, error)
}

// Client is the subset of an MQTT client a connection session drives.
type Client interface {
	IsConnected() bool
	// Publish blocks until the transport completes the publish.
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error
	// Subscribe blocks until the broker acknowledges the subscription.
	Subscribe(ctx context.Context, topic string, qos byte) error
	// Disconnect closes the connection gracefully and blocks until done.
	Disconnect()
}
